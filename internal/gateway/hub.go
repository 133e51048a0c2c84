// Package gateway carries room snapshots to every participant over
// websockets. It adapts the classic read/write pump layout: one goroutine
// per direction per connection, plus a single drain goroutine that fans
// ordered snapshot frames out to each room's connection pool.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/buzzinlive/buzzin/internal/room"
	"github.com/buzzinlive/buzzin/internal/wire"
)

// Dispatcher handles inbound frames and disconnects. The returned ack, if
// any, is written back to the issuing connection only.
type Dispatcher interface {
	HandleMessage(connID string, data []byte) []byte
	HandleDisconnect(connID string)
}

// Config holds websocket transport tuning.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns sane transport defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

// frame is one ordered broadcast unit for a room.
type frame struct {
	roomCode string
	data     []byte
	terminal bool
}

// Hub owns every live connection and the per-room pools. It implements
// room.Publisher: snapshots are enqueued while the room's serialization
// lock is held, and a single goroutine drains the queue, so each client
// sees snapshots in exactly the order the transitions occurred.
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]*Conn
	roomConns map[string]map[string]*Conn
	connRoom  map[string]string

	upgrader    websocket.Upgrader
	config      Config
	dispatcher  Dispatcher
	broadcastCh chan frame
}

// NewHub creates a hub. SetDispatcher must be called before serving.
func NewHub(config Config) *Hub {
	return &Hub{
		conns:     make(map[string]*Conn),
		roomConns: make(map[string]map[string]*Conn),
		connRoom:  make(map[string]string),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan frame, 1024),
	}
}

// SetDispatcher wires the command layer in. Separate from NewHub because
// the router needs the hub first.
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatcher = d
}

// Run drains the broadcast queue until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("gateway hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway hub shutting down")
			return
		case f := <-h.broadcastCh:
			h.deliver(f)
		}
	}
}

// PublishState implements room.Publisher. Called under the room lock, so
// enqueue order is transition order.
func (h *Hub) PublishState(snap room.Snapshot) {
	data, err := wire.MarshalState(snap)
	if err != nil {
		log.Error().Err(err).Str("room_code", snap.RoomCode).Msg("failed to marshal snapshot")
		return
	}
	h.enqueue(frame{roomCode: snap.RoomCode, data: data})
}

// PublishClosed implements room.Publisher: the terminal notification for a
// destroyed room, after which the pool is dropped.
func (h *Hub) PublishClosed(roomCode string) {
	data, err := wire.MarshalClosed(roomCode)
	if err != nil {
		log.Error().Err(err).Str("room_code", roomCode).Msg("failed to marshal room_closed")
		return
	}
	h.enqueue(frame{roomCode: roomCode, data: data, terminal: true})
}

func (h *Hub) enqueue(f frame) {
	select {
	case h.broadcastCh <- f:
	default:
		// Clients reconcile from full snapshots, so a dropped frame heals
		// on the next transition.
		log.Warn().Str("room_code", f.roomCode).Msg("broadcast queue full, dropping frame")
	}
}

func (h *Hub) deliver(f frame) {
	h.mu.RLock()
	pool := h.roomConns[f.roomCode]
	targets := make([]*Conn, 0, len(pool))
	for _, c := range pool {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.trySend(f.data) {
			log.Warn().Str("conn_id", c.ID).Str("room_code", f.roomCode).Msg("slow consumer, dropping connection")
			h.unregister(c)
			c.close()
		}
	}

	if f.terminal {
		h.dropRoomPool(f.roomCode)
	}

	log.Debug().
		Str("room_code", f.roomCode).
		Int("connections", len(targets)).
		Bool("terminal", f.terminal).
		Msg("frame delivered")
}

// Subscribe moves a connection into a room's pool. A connection subscribes
// to at most one room: the previous pool membership, if any, is dropped.
func (h *Hub) Subscribe(connID, roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return
	}
	h.unsubscribeLocked(connID)
	if h.roomConns[roomCode] == nil {
		h.roomConns[roomCode] = make(map[string]*Conn)
	}
	h.roomConns[roomCode][connID] = c
	h.connRoom[connID] = roomCode
}

// Unsubscribe removes a connection from its room pool, if any.
func (h *Hub) Unsubscribe(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(connID)
}

func (h *Hub) unsubscribeLocked(connID string) {
	code, ok := h.connRoom[connID]
	if !ok {
		return
	}
	delete(h.connRoom, connID)
	if pool := h.roomConns[code]; pool != nil {
		delete(pool, connID)
		if len(pool) == 0 {
			delete(h.roomConns, code)
		}
	}
}

func (h *Hub) dropRoomPool(roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for connID := range h.roomConns[roomCode] {
		delete(h.connRoom, connID)
	}
	delete(h.roomConns, roomCode)
}

// SendEvent pushes a frame to one connection, bypassing room fan-out.
// Used for the initial snapshot after create/join.
func (h *Hub) SendEvent(connID string, data []byte) bool {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return c.trySend(data)
}

// ActiveConnections implements room.ConnectionCounter for the idle reaper.
func (h *Hub) ActiveConnections(roomCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.roomConns[roomCode])
}

// Stats summarizes live connections for the debug endpoint.
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	perRoom := make(map[string]int, len(h.roomConns))
	for code, pool := range h.roomConns {
		perRoom[code] = len(pool)
	}
	return map[string]any{
		"total_connections": len(h.conns),
		"active_rooms":      len(h.roomConns),
		"room_connections":  perRoom,
	}
}

// ServeWS upgrades an HTTP request and runs the connection until it drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &Conn{
		ID:          uuid.New().String(),
		sock:        sock,
		send:        make(chan []byte, 64),
		hub:         h,
		ConnectedAt: time.Now(),
	}

	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()

	log.Info().Str("conn_id", c.ID).Str("remote", r.RemoteAddr).Msg("connection established")

	go c.writePump()
	go c.readPump()
}

// register adds an already-built connection. Split out of ServeWS so tests
// can drive the hub without sockets.
func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()
}

// unregister drops a connection from every table and runs the disconnect
// transition. Safe to call more than once.
func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	_, known := h.conns[c.ID]
	if known {
		delete(h.conns, c.ID)
		h.unsubscribeLocked(c.ID)
	}
	h.mu.Unlock()

	if known {
		c.closeSend()
		if h.dispatcher != nil {
			h.dispatcher.HandleDisconnect(c.ID)
		}
		log.Info().Str("conn_id", c.ID).Msg("connection closed")
	}
}
