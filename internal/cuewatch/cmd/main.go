package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/buzzinlive/buzzin/internal/cue"
	"github.com/buzzinlive/buzzin/internal/cuewatch"
	"github.com/buzzinlive/buzzin/internal/room"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var (
		hostName  = flag.String("host", "", "create a room as host with this name")
		joinCode  = flag.String("join", "", "join an existing room by code")
		name      = flag.String("name", "", "display name when joining")
		escalateD = flag.Duration("escalation", cue.DefaultEscalationDelay, "how long the queue head may wait before the escalation cue")
	)
	flag.Parse()

	if (*hostName == "") == (*joinCode == "") {
		log.Fatal().Msg("pass exactly one of -host or -join")
	}

	serverURL := getEnv("BUZZIN_SERVER_URL", "http://localhost:5175")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := cuewatch.Dial(ctx, serverURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer client.Close()

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(runCtx) }()

	var selfID, roomCode string
	if *hostName != "" {
		res, err := client.CreateRoom(ctx, *hostName)
		if err != nil {
			log.Fatal().Err(err).Msg("create_room failed")
		}
		selfID, roomCode = res.HostID, res.RoomCode
		log.Info().Str("room_code", roomCode).Msg("lobby open, waiting for players")
	} else {
		res, err := client.JoinRoom(ctx, *joinCode, *name)
		if err != nil {
			log.Fatal().Err(err).Msg("join_room failed")
		}
		selfID, roomCode = res.PlayerID, room.NormalizeCode(*joinCode)
		log.Info().Str("room_code", roomCode).Str("player_id", selfID).Msg("joined lobby")
	}

	engine := cue.NewEngine(selfID, *escalateD, clockwork.NewRealClock(), func(ev cue.Event) {
		// The terminal bell stands in for the sound effects.
		os.Stderr.WriteString("\a")
		log.Info().Str("cue", ev.String()).Msg("cue fired")
	})

	client.OnState = func(snap room.Snapshot) {
		engine.Observe(snap)
		board := cuewatch.Leaderboard(snap)
		ev := log.Info().
			Str("room_code", snap.RoomCode).
			Bool("locked", snap.Locked).
			Bool("show_scores", snap.ShowScores).
			Strs("buzz_queue", snap.BuzzQueue)
		for i, p := range board {
			if i >= 5 {
				break
			}
			ev = ev.Str(p.Name, strconv.Itoa(p.Score))
		}
		ev.Msg("room state")
	}
	client.OnClosed = func(code string) {
		engine.RoomClosed()
		log.Info().Str("room_code", code).Msg("room torn down, exiting")
		cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-runErr:
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("connection lost")
		}
	case <-ctx.Done():
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
