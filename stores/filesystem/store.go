package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pairpad-server/core"
)

const maxIDAttempts = 5

type fsStore struct {
	basePath string
	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

// record is the on-disk layout of a room.
type record struct {
	ID          string    `json:"room_id"`
	CodeContent string    `json:"code_content"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewStore creates a store that keeps one JSON file per room under basePath.
func NewStore(basePath string) (*fsStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &fsStore{basePath: basePath}, nil
}

func (s *fsStore) roomPath(id string) (string, error) {
	// Room ids must be plain names so they cannot escape basePath.
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return "", fmt.Errorf("invalid room id %q", id)
	}
	return filepath.Join(s.basePath, id+".json"), nil
}

func (s *fsStore) GetRoom(ctx context.Context, id string) (*core.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filePath, err := s.roomPath(id)
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", id, core.ErrRoomNotFound)
	}
	log := logrus.WithFields(logrus.Fields{"room_id": id, "file_path": filePath})

	rec, err := readRecord(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("Room with specified ID not found")
			return nil, fmt.Errorf("room %s: %w", id, core.ErrRoomNotFound)
		}
		log.WithError(err).Error("Failed to retrieve room")
		return nil, err
	}
	log.Debug("Room retrieved successfully")
	return rec.room(), nil
}

func (s *fsStore) CreateRoom(ctx context.Context, language string) (*core.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < maxIDAttempts; i++ {
		room := core.NewRoom(language)
		filePath, err := s.roomPath(room.ID)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(filePath); err == nil {
			continue
		}
		if err := writeRecord(filePath, newRecord(room)); err != nil {
			logrus.WithError(err).WithField("room_id", room.ID).Error("Failed to create room")
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"room_id":   room.ID,
			"language":  room.Language,
			"file_path": filePath,
		}).Info("Room created successfully")
		return room, nil
	}
	return nil, fmt.Errorf("allocate room id: gave up after %d attempts", maxIDAttempts)
}

func (s *fsStore) UpdateRoomCode(ctx context.Context, id, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filePath, err := s.roomPath(id)
	if err != nil {
		return fmt.Errorf("room %s: %w", id, core.ErrRoomNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := readRecord(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("room %s: %w", id, core.ErrRoomNotFound)
		}
		return err
	}
	rec.CodeContent = code
	rec.UpdatedAt = time.Now().UTC()
	if err := writeRecord(filePath, rec); err != nil {
		logrus.WithError(err).WithField("room_id", id).Error("Failed to update room")
		return err
	}
	return nil
}

func newRecord(room *core.Room) *record {
	return &record{
		ID:          room.ID,
		CodeContent: room.CodeContent,
		Language:    room.Language,
		CreatedAt:   room.CreatedAt,
		UpdatedAt:   room.UpdatedAt,
	}
}

func (r *record) room() *core.Room {
	return &core.Room{
		ID:          r.ID,
		CodeContent: r.CodeContent,
		Language:    r.Language,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func readRecord(filePath string) (*record, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	return &rec, nil
}

// writeRecord replaces the file atomically so readers never see a partial
// document.
func writeRecord(filePath string, rec *record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".room-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filePath)
}
