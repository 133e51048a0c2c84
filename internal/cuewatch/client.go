// Package cuewatch is a headless reference consumer of the room protocol:
// it dials the server, keeps exactly one room subscription, reconciles
// full snapshots, and drives the cue engine off the snapshot stream.
package cuewatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/buzzinlive/buzzin/internal/room"
	"github.com/buzzinlive/buzzin/internal/wire"
)

const commandTimeout = 10 * time.Second

// frame is the inbound superset: acks carry seq/ok, events carry payload.
type frame struct {
	Type    string          `json:"type"`
	Seq     int64           `json:"seq"`
	OK      bool            `json:"ok"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
	Payload json.RawMessage `json:"payload"`
}

// Client is one connection to the server. Command methods are synchronous:
// command out, ack in, Result or typed error back.
type Client struct {
	sock *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	seq     int64
	pending map[int64]chan frame

	// OnState receives every room_state snapshot, in delivery order.
	OnState func(room.Snapshot)
	// OnClosed receives the terminal room_closed notification.
	OnClosed func(roomCode string)
}

// WSURL converts a server base URL into the websocket endpoint.
func WSURL(baseURL string) (string, error) {
	base := strings.TrimRight(baseURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), nil
}

// Dial connects to the server base URL (http/https/ws/wss).
func Dial(ctx context.Context, baseURL string) (*Client, error) {
	wsURL, err := WSURL(baseURL)
	if err != nil {
		return nil, err
	}
	sock, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	log.Info().Str("url", wsURL).Msg("connected")
	return &Client{
		sock:    sock,
		pending: make(map[int64]chan frame),
	}, nil
}

// Run reads frames until the connection drops or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.sock.Close()
	}()

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Warn().Err(err).Msg("unparseable frame")
			continue
		}

		switch f.Type {
		case wire.TypeAck:
			c.mu.Lock()
			ch, ok := c.pending[f.Seq]
			if ok {
				delete(c.pending, f.Seq)
			}
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case wire.EventRoomState:
			var snap room.Snapshot
			if err := json.Unmarshal(f.Payload, &snap); err != nil {
				log.Warn().Err(err).Msg("bad room_state payload")
				continue
			}
			if c.OnState != nil {
				c.OnState(snap)
			}
		case wire.EventRoomClosed:
			var closed wire.RoomClosedPayload
			if err := json.Unmarshal(f.Payload, &closed); err != nil {
				continue
			}
			log.Info().Str("room_code", closed.RoomCode).Msg("room closed")
			if c.OnClosed != nil {
				c.OnClosed(closed.RoomCode)
			}
		default:
			log.Debug().Str("type", f.Type).Msg("ignoring frame")
		}
	}
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.sock.Close()
}

// do sends one command and waits for its ack.
func (c *Client) do(ctx context.Context, cmdType string, payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	ch := make(chan frame, 1)
	c.pending[seq] = ch
	c.mu.Unlock()

	cmd := wire.Command{Type: cmdType, Seq: seq, Payload: raw}
	c.writeMu.Lock()
	err = c.sock.WriteJSON(cmd)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, fmt.Errorf("write %s: %w", cmdType, err)
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, ctx.Err()
	case f := <-ch:
		if !f.OK {
			return nil, room.NewError(room.ErrorKind(f.Error), "%s rejected", cmdType)
		}
		return f.Data, nil
	}
}

// CreateRoom opens a fresh lobby with this connection as host.
func (c *Client) CreateRoom(ctx context.Context, hostName string) (wire.CreateRoomResult, error) {
	data, err := c.do(ctx, wire.CmdCreateRoom, wire.CreateRoomPayload{HostName: hostName})
	if err != nil {
		return wire.CreateRoomResult{}, err
	}
	var res wire.CreateRoomResult
	if err := json.Unmarshal(data, &res); err != nil {
		return wire.CreateRoomResult{}, fmt.Errorf("decode create_room result: %w", err)
	}
	return res, nil
}

// JoinRoom enters an existing lobby by code.
func (c *Client) JoinRoom(ctx context.Context, roomCode, name string) (wire.JoinRoomResult, error) {
	data, err := c.do(ctx, wire.CmdJoinRoom, wire.JoinRoomPayload{RoomCode: roomCode, Name: name})
	if err != nil {
		return wire.JoinRoomResult{}, err
	}
	var res wire.JoinRoomResult
	if err := json.Unmarshal(data, &res); err != nil {
		return wire.JoinRoomResult{}, fmt.Errorf("decode join_room result: %w", err)
	}
	return res, nil
}

// Buzz signals readiness; order is assigned by the server.
func (c *Client) Buzz(ctx context.Context, roomCode string) error {
	_, err := c.do(ctx, wire.CmdBuzz, wire.RoomPayload{RoomCode: roomCode})
	return err
}

// ClearBuzzers empties the queue (host only).
func (c *Client) ClearBuzzers(ctx context.Context, roomCode string) error {
	_, err := c.do(ctx, wire.CmdClearBuzzers, wire.RoomPayload{RoomCode: roomCode})
	return err
}

// LockBuzzers toggles the buzz lock (host only).
func (c *Client) LockBuzzers(ctx context.Context, roomCode string, locked bool) error {
	_, err := c.do(ctx, wire.CmdLockBuzzers, wire.LockBuzzersPayload{RoomCode: roomCode, Locked: locked})
	return err
}

// Award credits a player (host only). Negative deltas via Penalty.
func (c *Client) Award(ctx context.Context, roomCode, playerID string, delta int) error {
	_, err := c.do(ctx, wire.CmdAward, wire.ScorePayload{RoomCode: roomCode, PlayerID: playerID, Delta: delta})
	return err
}

// Penalty docks a player (host only).
func (c *Client) Penalty(ctx context.Context, roomCode, playerID string, delta int) error {
	_, err := c.do(ctx, wire.CmdPenalty, wire.ScorePayload{RoomCode: roomCode, PlayerID: playerID, Delta: delta})
	return err
}

// NextQuestion advances the two-phase reveal toggle (host only).
func (c *Client) NextQuestion(ctx context.Context, roomCode string) error {
	_, err := c.do(ctx, wire.CmdNextQuestion, wire.RoomPayload{RoomCode: roomCode})
	return err
}

// AssignTeam sets or clears a player's team (host only). Pass nil to
// clear.
func (c *Client) AssignTeam(ctx context.Context, roomCode, playerID string, team *string) error {
	_, err := c.do(ctx, wire.CmdAssignTeam, wire.AssignTeamPayload{RoomCode: roomCode, PlayerID: playerID, Team: team})
	return err
}
