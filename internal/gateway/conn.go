package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Conn is one participant's bidirectional channel. Frames written to send
// are flushed by writePump; readPump feeds inbound commands to the hub's
// dispatcher and acks synchronously.
type Conn struct {
	ID   string
	sock *websocket.Conn
	hub  *Hub

	// sendMu guards send and closed: the drain goroutine may still be
	// pushing frames while a disconnect tears the connection down.
	sendMu sync.Mutex
	send   chan []byte
	closed bool

	ConnectedAt time.Time
}

func (c *Conn) close() {
	if c.sock != nil {
		c.sock.Close()
	}
}

// trySend queues a frame without blocking. A full buffer means the client
// stopped draining; the caller decides whether that kills the connection.
// Sending to an already-closed connection reports failure.
func (c *Conn) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend shuts the outbound channel exactly once, waking writePump.
func (c *Conn) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump flushes outbound frames and keeps the connection alive with
// pings. One per connection; exits when send closes or a write fails.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("conn_id", c.ID).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("conn_id", c.ID).Msg("ping failed")
				return
			}
		}
	}
}

// readPump reads commands until the connection drops, then runs the
// disconnect transition exactly once.
func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.sock.Close()
	}()

	c.sock.SetReadLimit(c.hub.config.MaxMessageSize)
	c.sock.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.sock.SetPongHandler(func(string) error {
		c.sock.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("conn_id", c.ID).Msg("unexpected close")
			}
			return
		}
		c.sock.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))

		if ack := c.hub.dispatcher.HandleMessage(c.ID, data); ack != nil {
			if !c.trySend(ack) {
				log.Warn().Str("conn_id", c.ID).Msg("send buffer full on ack, dropping connection")
				return
			}
		}
	}
}
