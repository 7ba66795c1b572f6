package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"pairpad-server/config"
	"pairpad-server/core"
	"pairpad-server/handlers/api/autocomplete"
	"pairpad-server/handlers/api/rooms"
	"pairpad-server/handlers/websocket"
	"pairpad-server/metrics"
	ratelimit "pairpad-server/middleware"
	hub "pairpad-server/rooms"
)

const (
	serviceName    = "Pair Programming API"
	serviceVersion = "1.0.0"
)

type (
	Banner struct {
		Message   string            `json:"message"`
		Version   string            `json:"version"`
		Endpoints map[string]string `json:"endpoints"`
	}
)

func handleBanner(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, Banner{
		Message: serviceName,
		Version: serviceVersion,
		Endpoints: map[string]string{
			"rooms":        "/rooms",
			"autocomplete": "/autocomplete",
			"websocket":    "/ws/{room_id}",
		},
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func setupRouter(cfg *config.Config, store core.RoomStore, broadcaster *hub.Broadcaster, ws *websocket.Handler, limiter *ratelimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/", handleBanner)
	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", rooms.HandleCreate(store))
		r.Get("/{roomId}", rooms.HandleGet(store))
	})
	r.Get("/api/rooms", rooms.HandleListActive(broadcaster.Table()))
	r.Post("/autocomplete", autocomplete.HandleSuggest(autocomplete.NewSuggester()))

	r.With(limiter.Middleware).Get("/ws/{roomId}", ws.ServeWS)

	return r
}
