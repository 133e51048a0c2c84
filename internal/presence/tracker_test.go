package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buzzinlive/buzzin/internal/room"
)

func setupTracked(t *testing.T) (*room.Store, *Tracker, room.Snapshot) {
	t.Helper()
	store := room.NewStore(nil)
	tracker := NewTracker(store)
	snap, err := store.CreateRoom("Alice")
	require.NoError(t, err)
	tracker.Bind(Binding{ConnID: "conn-host", RoomCode: snap.RoomCode, PlayerID: snap.HostID, Host: true})
	return store, tracker, snap
}

func TestBindAndLookup(t *testing.T) {
	_, tracker, snap := setupTracked(t)

	b, ok := tracker.Lookup("conn-host")
	require.True(t, ok)
	assert.Equal(t, snap.RoomCode, b.RoomCode)
	assert.Equal(t, snap.HostID, b.PlayerID)
	assert.True(t, b.Host)

	_, ok = tracker.Lookup("conn-unknown")
	assert.False(t, ok)
}

func TestInRoomNormalizesCode(t *testing.T) {
	_, tracker, snap := setupTracked(t)

	b, ok := tracker.InRoom("conn-host", "  "+snap.RoomCode+" ")
	require.True(t, ok)
	assert.Equal(t, snap.HostID, b.PlayerID)

	_, ok = tracker.InRoom("conn-host", "ZZZZ")
	assert.False(t, ok)
}

func TestReleasePlayerRemovesFromRoom(t *testing.T) {
	store, tracker, snap := setupTracked(t)
	bob, _, err := store.JoinRoom(snap.RoomCode, "Bob")
	require.NoError(t, err)
	tracker.Bind(Binding{ConnID: "conn-bob", RoomCode: snap.RoomCode, PlayerID: bob})

	b, ok := tracker.Release("conn-bob")
	require.True(t, ok)
	assert.Equal(t, bob, b.PlayerID)

	cur, err := store.Snapshot(snap.RoomCode)
	require.NoError(t, err)
	_, stillThere := cur.PlayerByID(bob)
	assert.False(t, stillThere)

	_, ok = tracker.Lookup("conn-bob")
	assert.False(t, ok)
}

func TestReleaseHostTearsDownRoom(t *testing.T) {
	store, tracker, snap := setupTracked(t)
	bob, _, _ := store.JoinRoom(snap.RoomCode, "Bob")
	tracker.Bind(Binding{ConnID: "conn-bob", RoomCode: snap.RoomCode, PlayerID: bob})

	_, ok := tracker.Release("conn-host")
	require.True(t, ok)

	_, err := store.Snapshot(snap.RoomCode)
	assert.Equal(t, room.ErrRoomNotFound, room.KindOf(err))

	// Every binding for the room is gone, not just the host's.
	_, ok = tracker.Lookup("conn-bob")
	assert.False(t, ok)
	assert.Empty(t, tracker.RoomConnIDs(snap.RoomCode))
}

func TestReleaseUnknownConn(t *testing.T) {
	_, tracker, _ := setupTracked(t)
	_, ok := tracker.Release("never-bound")
	assert.False(t, ok)
}

func TestReleaseAfterRoomAlreadyClosed(t *testing.T) {
	store, tracker, snap := setupTracked(t)
	bob, _, _ := store.JoinRoom(snap.RoomCode, "Bob")
	tracker.Bind(Binding{ConnID: "conn-bob", RoomCode: snap.RoomCode, PlayerID: bob})

	require.NoError(t, store.CloseRoom(snap.RoomCode))

	// Socket teardown races room teardown; both orders must be clean.
	_, ok := tracker.Release("conn-bob")
	assert.True(t, ok)
	_, ok = tracker.Release("conn-host")
	assert.True(t, ok)
}

func TestRoomConnIDs(t *testing.T) {
	store, tracker, snap := setupTracked(t)
	bob, _, _ := store.JoinRoom(snap.RoomCode, "Bob")
	tracker.Bind(Binding{ConnID: "conn-bob", RoomCode: snap.RoomCode, PlayerID: bob})

	ids := tracker.RoomConnIDs(snap.RoomCode)
	assert.ElementsMatch(t, []string{"conn-host", "conn-bob"}, ids)
}
