package cuewatch

import (
	"sort"

	"github.com/buzzinlive/buzzin/internal/room"
)

// Leaderboard derives the score-sorted player list from a snapshot. It is
// a pure function of the snapshot: consumers recompute it on every
// room_state instead of tracking sorted state of their own.
func Leaderboard(snap room.Snapshot) []room.Player {
	players := make([]room.Player, len(snap.Players))
	copy(players, snap.Players)
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Score > players[j].Score
	})
	return players
}
