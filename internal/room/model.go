package room

import (
	"sync"
	"time"
)

const (
	// MaxNameLength bounds display names on create/join.
	MaxNameLength = 40
	// MaxScoreDelta bounds a single award or penalty.
	MaxScoreDelta = 1000

	DefaultHostName   = "Host"
	DefaultPlayerName = "Player"
)

// Team identifies one of the two fixed teams.
type Team string

const (
	TeamTipsy  Team = "tipsy"
	TeamWobbly Team = "wobbly"
)

// Teams is the fixed team enumeration. Team assignment accepts exactly
// these values or the empty team (unassigned).
var Teams = []Team{TeamTipsy, TeamWobbly}

// ValidTeam reports whether t is assignable. The empty team means
// "no team" and is always valid.
func ValidTeam(t Team) bool {
	if t == "" {
		return true
	}
	for _, known := range Teams {
		if t == known {
			return true
		}
	}
	return false
}

// Player is a participant in a room, keyed by a connection-scoped id.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
	Team  Team   `json:"team,omitempty"`
}

// Room is the authoritative state of one game session. All mutation goes
// through Store; the per-room mutex is the serialization point that the
// buzz-order guarantee depends on.
type Room struct {
	Code       string
	HostID     string
	Locked     bool
	ShowScores bool
	BuzzQueue  []string
	TeamScores map[Team]int
	Players    map[string]*Player

	// playerOrder preserves join order so snapshots are deterministic.
	playerOrder []string

	CreatedAt time.Time

	mu sync.Mutex
}

// Snapshot is the complete wire-visible state of a room. It is pushed to
// every participant after each successful transition; clients reconcile
// statelessly and diff successive snapshots themselves for UI cues.
type Snapshot struct {
	RoomCode   string       `json:"roomCode"`
	HostID     string       `json:"hostId"`
	Locked     bool         `json:"locked"`
	ShowScores bool         `json:"showScores"`
	BuzzQueue  []string     `json:"buzzQueue"`
	TeamScores map[Team]int `json:"teamScores"`
	Players    []Player     `json:"players"`
}

// snapshot builds a deep copy of the room state. Callers must hold r.mu.
func (r *Room) snapshot() Snapshot {
	snap := Snapshot{
		RoomCode:   r.Code,
		HostID:     r.HostID,
		Locked:     r.Locked,
		ShowScores: r.ShowScores,
		BuzzQueue:  make([]string, len(r.BuzzQueue)),
		TeamScores: make(map[Team]int, len(r.TeamScores)),
		Players:    make([]Player, 0, len(r.Players)),
	}
	copy(snap.BuzzQueue, r.BuzzQueue)
	for team, total := range r.TeamScores {
		snap.TeamScores[team] = total
	}
	for _, id := range r.playerOrder {
		if p, ok := r.Players[id]; ok {
			snap.Players = append(snap.Players, *p)
		}
	}
	return snap
}

// Head returns the player id on the clock, or "" for an empty queue.
func (s Snapshot) Head() string {
	if len(s.BuzzQueue) == 0 {
		return ""
	}
	return s.BuzzQueue[0]
}

// PlayerByID resolves a queue entry against the player list for display.
func (s Snapshot) PlayerByID(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}
