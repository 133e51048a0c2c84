package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/buzzinlive/buzzin/internal/gateway"
	"github.com/buzzinlive/buzzin/internal/room"
)

func setupServer(cfg *Config, hub *gateway.Hub, store *room.Store) *http.Server {
	r := mux.NewRouter()

	r.HandleFunc("/ws", hub.ServeWS)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{code}/state", handleRoomState(store)).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", handleStats(hub)).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})
	handler := c.Handler(r)

	return &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Warn().Err(err).Msg("failed to write health response")
	}
}

// handleRoomState serves the current snapshot over plain HTTP. Handy for
// debugging with curl; the websocket push is the real delivery path.
func handleRoomState(store *room.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := mux.Vars(r)["code"]
		snap, err := store.Snapshot(code)
		if err != nil {
			if room.IsKind(err, room.ErrRoomNotFound) {
				http.Error(w, "room not found", http.StatusNotFound)
				return
			}
			log.Error().Err(err).Str("room_code", code).Msg("failed to read snapshot")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			log.Error().Err(err).Msg("failed to encode snapshot")
		}
	}
}

func handleStats(hub *gateway.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(hub.Stats()); err != nil {
			log.Error().Err(err).Msg("failed to encode stats")
		}
	}
}
