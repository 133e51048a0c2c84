package cuewatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/buzzinlive/buzzin/internal/room"
)

func TestLeaderboardSortsByScoreDescending(t *testing.T) {
	snap := room.Snapshot{
		Players: []room.Player{
			{ID: "a", Name: "Alice", Score: 50},
			{ID: "b", Name: "Bob", Score: 150},
			{ID: "c", Name: "Carol", Score: -50},
		},
	}

	board := Leaderboard(snap)
	var ids []string
	for _, p := range board {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)

	// Input order is untouched.
	assert.Equal(t, "a", snap.Players[0].ID)
}

func TestLeaderboardStableOnTies(t *testing.T) {
	snap := room.Snapshot{
		Players: []room.Player{
			{ID: "a", Score: 100},
			{ID: "b", Score: 100},
			{ID: "c", Score: 100},
		},
	}

	board := Leaderboard(snap)
	assert.Equal(t, "a", board[0].ID)
	assert.Equal(t, "b", board[1].ID)
	assert.Equal(t, "c", board[2].ID)
}

func TestLeaderboardEmpty(t *testing.T) {
	assert.Empty(t, Leaderboard(room.Snapshot{}))
}
