package rooms

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"pairpad-server/core"
	"pairpad-server/metrics"
)

type (
	CreateRoomRequest struct {
		Language string `json:"language"`
	}

	CreateRoomResponse struct {
		RoomID string `json:"room_id"`
	}

	ActiveRoom struct {
		RoomID      string `json:"room_id"`
		Connections int    `json:"connections"`
	}

	// ActiveLister reports live rooms and their connection counts.
	ActiveLister interface {
		Active() map[string]int
	}
)

// HandleCreate provisions a new room. The body is optional.
func HandleCreate(store core.RoomStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			logrus.WithError(err).Warn("Failed to decode create room request")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}

		room, err := store.CreateRoom(r.Context(), req.Language)
		if err != nil {
			metrics.StoreErrors.WithLabelValues("create").Inc()
			logrus.WithError(err).Error("Failed to create room")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to create room"})
			return
		}

		render.JSON(w, r, CreateRoomResponse{RoomID: room.ID})
	}
}

// HandleGet returns the stored snapshot of a room.
func HandleGet(store core.RoomStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		log := logrus.WithField("room_id", roomID)

		room, err := store.GetRoom(r.Context(), roomID)
		if err != nil {
			if errors.Is(err, core.ErrRoomNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, map[string]string{"error": "Room not found"})
				return
			}
			metrics.StoreErrors.WithLabelValues("get").Inc()
			log.WithError(err).Error("Failed to get room")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to get room"})
			return
		}

		render.JSON(w, r, room)
	}
}

// HandleListActive lists rooms that currently have live connections.
func HandleListActive(lister ActiveLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active := lister.Active()
		out := make([]ActiveRoom, 0, len(active))
		for id, n := range active {
			out = append(out, ActiveRoom{RoomID: id, Connections: n})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Connections == out[j].Connections {
				return out[i].RoomID < out[j].RoomID
			}
			return out[i].Connections > out[j].Connections
		})

		render.JSON(w, r, out)
	}
}
