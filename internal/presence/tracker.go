// Package presence maps live connections to their room and player
// identity, and applies the cleanup transitions when a connection drops.
package presence

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/buzzinlive/buzzin/internal/room"
)

// Binding ties a connection to the room and player it acts as. A
// connection holds at most one binding: the room it most recently created
// or joined.
type Binding struct {
	ConnID   string
	RoomCode string
	PlayerID string
	Host     bool
}

// Tracker owns the connection→(room, player) mapping. Disconnect
// transitions go through the store: host loss tears the room down, player
// loss removes the player and triggers a fresh snapshot broadcast.
type Tracker struct {
	store *room.Store

	mu     sync.RWMutex
	byConn map[string]Binding
	byRoom map[string]map[string]string // roomCode -> connID -> playerID
}

func NewTracker(store *room.Store) *Tracker {
	return &Tracker{
		store:  store,
		byConn: make(map[string]Binding),
		byRoom: make(map[string]map[string]string),
	}
}

// Bind records a connection's identity in a room, replacing any previous
// binding bookkeeping for that connection. Callers that rebind across
// rooms must Release first so the old room sees a leave transition.
func (t *Tracker) Bind(b Binding) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.byConn[b.ConnID] = b
	if t.byRoom[b.RoomCode] == nil {
		t.byRoom[b.RoomCode] = make(map[string]string)
	}
	t.byRoom[b.RoomCode][b.ConnID] = b.PlayerID

	log.Debug().
		Str("conn_id", b.ConnID).
		Str("room_code", b.RoomCode).
		Str("player_id", b.PlayerID).
		Bool("host", b.Host).
		Msg("presence bound")
}

// Lookup returns the binding for a connection.
func (t *Tracker) Lookup(connID string) (Binding, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.byConn[connID]
	return b, ok
}

// InRoom reports whether the connection is currently bound to roomCode.
func (t *Tracker) InRoom(connID, roomCode string) (Binding, bool) {
	b, ok := t.Lookup(connID)
	if !ok || b.RoomCode != room.NormalizeCode(roomCode) {
		return Binding{}, false
	}
	return b, true
}

// RoomConnIDs lists the connections currently bound to a room.
func (t *Tracker) RoomConnIDs(roomCode string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conns := t.byRoom[roomCode]
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	return ids
}

// Release runs the disconnect transition for a connection and drops its
// binding. For a host it closes the room, which unbinds every remaining
// participant of that room; for a player it removes the player, which
// publishes a fresh snapshot. Connection drops are not errors: Release
// always succeeds.
func (t *Tracker) Release(connID string) (Binding, bool) {
	t.mu.Lock()
	b, ok := t.byConn[connID]
	if !ok {
		t.mu.Unlock()
		return Binding{}, false
	}
	delete(t.byConn, connID)
	if conns := t.byRoom[b.RoomCode]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(t.byRoom, b.RoomCode)
		}
	}
	t.mu.Unlock()

	if b.Host {
		t.dropRoom(b.RoomCode)
		if err := t.store.CloseRoom(b.RoomCode); err != nil && !room.IsKind(err, room.ErrRoomNotFound) {
			log.Warn().Err(err).Str("room_code", b.RoomCode).Msg("host disconnect teardown failed")
		}
		log.Info().
			Str("conn_id", connID).
			Str("room_code", b.RoomCode).
			Msg("host disconnected, room torn down")
		return b, true
	}

	if _, err := t.store.RemovePlayer(b.RoomCode, b.PlayerID); err != nil && !room.IsKind(err, room.ErrRoomNotFound) {
		log.Warn().
			Err(err).
			Str("room_code", b.RoomCode).
			Str("player_id", b.PlayerID).
			Msg("player disconnect cleanup failed")
	}
	log.Info().
		Str("conn_id", connID).
		Str("room_code", b.RoomCode).
		Str("player_id", b.PlayerID).
		Msg("player disconnected")
	return b, true
}

// dropRoom forgets every binding for a room. Used on host teardown; the
// remaining participants learn about it from the room_closed push.
func (t *Tracker) dropRoom(roomCode string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for connID := range t.byRoom[roomCode] {
		delete(t.byConn, connID)
	}
	delete(t.byRoom, roomCode)
}
