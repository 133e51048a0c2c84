package room

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ConnectionCounter reports how many live connections a room has. The
// gateway hub implements it.
type ConnectionCounter interface {
	ActiveConnections(roomCode string) int
}

// Reaper reclaims rooms that have had no connected participants for the
// configured TTL. Host disconnects tear rooms down immediately; the reaper
// exists for the leftover case where every socket died without a clean
// presence transition.
type Reaper struct {
	store *Store
	conns ConnectionCounter
	ttl   time.Duration
	clock clockwork.Clock

	idleSince map[string]time.Time
}

// NewReaper builds a reaper sweeping on the given clock. Pass
// clockwork.NewRealClock() in production.
func NewReaper(store *Store, conns ConnectionCounter, ttl time.Duration, clock clockwork.Clock) *Reaper {
	return &Reaper{
		store:     store,
		conns:     conns,
		ttl:       ttl,
		clock:     clock,
		idleSince: make(map[string]time.Time),
	}
}

// Run sweeps periodically until the context is cancelled.
func (rp *Reaper) Run(ctx context.Context) {
	interval := rp.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := rp.clock.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("ttl", rp.ttl).Dur("interval", interval).Msg("room reaper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room reaper stopped")
			return
		case <-ticker.Chan():
			rp.Sweep()
		}
	}
}

// Sweep closes every room that has been connection-less for at least the
// TTL. Exposed so tests can drive it directly.
func (rp *Reaper) Sweep() {
	now := rp.clock.Now()
	live := make(map[string]bool)

	for _, code := range rp.store.ActiveCodes() {
		live[code] = true
		if rp.conns.ActiveConnections(code) > 0 {
			delete(rp.idleSince, code)
			continue
		}
		since, seen := rp.idleSince[code]
		if !seen {
			rp.idleSince[code] = now
			continue
		}
		if now.Sub(since) >= rp.ttl {
			log.Info().Str("room_code", code).Dur("idle", now.Sub(since)).Msg("reaping idle room")
			if err := rp.store.CloseRoom(code); err != nil {
				log.Warn().Err(err).Str("room_code", code).Msg("failed to reap room")
			}
			delete(rp.idleSince, code)
		}
	}

	// Forget rooms that were closed through other paths.
	for code := range rp.idleSince {
		if !live[code] {
			delete(rp.idleSince, code)
		}
	}
}
