package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/buzzinlive/buzzin/internal/gateway"
	"github.com/buzzinlive/buzzin/internal/presence"
	"github.com/buzzinlive/buzzin/internal/room"
	"github.com/buzzinlive/buzzin/internal/router"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := loadConfig(getEnv("BUZZIN_CONFIG", ""))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	hub := gateway.NewHub(gateway.DefaultConfig())
	store := room.NewStore(hub)
	tracker := presence.NewTracker(store)
	rt := router.New(store, tracker, hub)
	hub.SetDispatcher(rt)
	reaper := room.NewReaper(store, hub, cfg.idleTTL(), clockwork.NewRealClock())

	log.Info().
		Str("addr", cfg.Server.Addr).
		Dur("room_idle_ttl", cfg.idleTTL()).
		Msg("starting buzzin server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)
	go reaper.Run(ctx)

	server := setupServer(cfg, hub, store)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()

	log.Info().Msg("buzzin server shutdown complete")
}
