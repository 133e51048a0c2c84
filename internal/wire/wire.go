// Package wire defines the JSON frames exchanged over a participant's
// message channel: client commands, their synchronous acks, and the
// server-pushed room events.
package wire

import (
	"encoding/json"

	"github.com/buzzinlive/buzzin/internal/room"
)

// Command names accepted from clients.
const (
	CmdCreateRoom   = "create_room"
	CmdJoinRoom     = "join_room"
	CmdBuzz         = "buzz"
	CmdClearBuzzers = "clear_buzzers"
	CmdLockBuzzers  = "lock_buzzers"
	CmdAward        = "award"
	CmdPenalty      = "penalty"
	CmdNextQuestion = "next_question"
	CmdAssignTeam   = "assign_team"
)

// Server push event names.
const (
	EventRoomState  = "room_state"
	EventRoomClosed = "room_closed"
	TypeAck         = "ack"
)

// Command is the inbound envelope. Seq is echoed on the ack so clients can
// pair responses with requests over the shared channel.
type Command struct {
	Type    string          `json:"type"`
	Seq     int64           `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// Ack is the synchronous result of a command, delivered only to the
// issuing connection. Failures carry the error kind; they are never
// broadcast.
type Ack struct {
	Type  string `json:"type"`
	Seq   int64  `json:"seq"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Event is a server-initiated push frame.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Command payloads. Field names match what the reference client emits.

type CreateRoomPayload struct {
	HostName string `json:"hostName"`
}

type JoinRoomPayload struct {
	RoomCode string `json:"roomCode"`
	Name     string `json:"name"`
}

type RoomPayload struct {
	RoomCode string `json:"roomCode"`
}

type LockBuzzersPayload struct {
	RoomCode string `json:"roomCode"`
	Locked   bool   `json:"locked"`
}

type ScorePayload struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
	Delta    int    `json:"delta"`
}

type AssignTeamPayload struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
	// Team is nil or empty to clear the assignment.
	Team *string `json:"team"`
}

// Ack data payloads.

type CreateRoomResult struct {
	RoomCode string `json:"roomCode"`
	HostID   string `json:"hostId"`
}

type JoinRoomResult struct {
	PlayerID string `json:"playerId"`
}

// RoomClosedPayload is the terminal notification sent to every remaining
// participant when a room is destroyed.
type RoomClosedPayload struct {
	RoomCode string `json:"roomCode"`
}

// MarshalState frames a snapshot as a room_state push.
func MarshalState(snap room.Snapshot) ([]byte, error) {
	return json.Marshal(Event{Type: EventRoomState, Payload: snap})
}

// MarshalClosed frames a room_closed push.
func MarshalClosed(code string) ([]byte, error) {
	return json.Marshal(Event{Type: EventRoomClosed, Payload: RoomClosedPayload{RoomCode: code}})
}

// MarshalAck frames an ack; marshal failures fall back to a static error
// frame so the client always gets a response.
func MarshalAck(ack Ack) []byte {
	data, err := json.Marshal(ack)
	if err != nil {
		return []byte(`{"type":"ack","ok":false,"error":"InvalidInput"}`)
	}
	return data
}

// OkAck builds a successful ack for seq with optional data.
func OkAck(seq int64, data any) Ack {
	return Ack{Type: TypeAck, Seq: seq, OK: true, Data: data}
}

// ErrAck builds a failed ack carrying the error kind.
func ErrAck(seq int64, kind room.ErrorKind) Ack {
	return Ack{Type: TypeAck, Seq: seq, OK: false, Error: string(kind)}
}
