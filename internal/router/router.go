// Package router validates inbound participant commands and dispatches
// them against the room store. Every command gets a synchronous ack on the
// issuing connection; successful transitions reach everyone else through
// the broadcast path, never through acks.
package router

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/buzzinlive/buzzin/internal/presence"
	"github.com/buzzinlive/buzzin/internal/room"
	"github.com/buzzinlive/buzzin/internal/wire"
)

// Subscriptions is the slice of the gateway hub the router needs: room
// pool membership and direct pushes. Kept narrow so tests can fake it.
type Subscriptions interface {
	Subscribe(connID, roomCode string)
	Unsubscribe(connID string)
	SendEvent(connID string, data []byte) bool
}

// Router routes commands from connections to the store.
type Router struct {
	store   *room.Store
	tracker *presence.Tracker
	subs    Subscriptions
}

func New(store *room.Store, tracker *presence.Tracker, subs Subscriptions) *Router {
	return &Router{store: store, tracker: tracker, subs: subs}
}

// HandleMessage implements gateway.Dispatcher. Malformed frames are acked
// as InvalidInput rather than dropped, so clients always hear back.
func (rt *Router) HandleMessage(connID string, data []byte) []byte {
	var cmd wire.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Debug().Err(err).Str("conn_id", connID).Msg("unparseable command frame")
		return wire.MarshalAck(wire.ErrAck(0, room.ErrInvalidInput))
	}
	return wire.MarshalAck(rt.dispatch(connID, cmd))
}

// HandleDisconnect implements gateway.Dispatcher: connection drops are not
// errors, they drive the presence cleanup transition.
func (rt *Router) HandleDisconnect(connID string) {
	rt.tracker.Release(connID)
}

func (rt *Router) dispatch(connID string, cmd wire.Command) wire.Ack {
	log.Debug().Str("conn_id", connID).Str("command", cmd.Type).Int64("seq", cmd.Seq).Msg("dispatching command")

	switch cmd.Type {
	case wire.CmdCreateRoom:
		return rt.createRoom(connID, cmd)
	case wire.CmdJoinRoom:
		return rt.joinRoom(connID, cmd)
	case wire.CmdBuzz:
		return rt.buzz(connID, cmd)
	case wire.CmdClearBuzzers:
		return rt.clearBuzzers(connID, cmd)
	case wire.CmdLockBuzzers:
		return rt.lockBuzzers(connID, cmd)
	case wire.CmdAward, wire.CmdPenalty:
		return rt.adjustScore(connID, cmd)
	case wire.CmdNextQuestion:
		return rt.nextQuestion(connID, cmd)
	case wire.CmdAssignTeam:
		return rt.assignTeam(connID, cmd)
	default:
		log.Debug().Str("command", cmd.Type).Msg("unknown command")
		return wire.ErrAck(cmd.Seq, room.ErrInvalidInput)
	}
}

// leaveCurrent runs the leave transition for a connection's previous room,
// if any. A connection holds exactly one subscription, so creating or
// joining again means leaving first.
func (rt *Router) leaveCurrent(connID string) {
	if _, bound := rt.tracker.Lookup(connID); bound {
		rt.subs.Unsubscribe(connID)
		rt.tracker.Release(connID)
	}
}

func (rt *Router) createRoom(connID string, cmd wire.Command) wire.Ack {
	var p wire.CreateRoomPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return wire.ErrAck(cmd.Seq, room.ErrInvalidInput)
	}

	rt.leaveCurrent(connID)

	snap, err := rt.store.CreateRoom(p.HostName)
	if err != nil {
		return wire.ErrAck(cmd.Seq, room.KindOf(err))
	}

	rt.subs.Subscribe(connID, snap.RoomCode)
	rt.tracker.Bind(presence.Binding{
		ConnID:   connID,
		RoomCode: snap.RoomCode,
		PlayerID: snap.HostID,
		Host:     true,
	})

	// The creation snapshot was published before this connection entered
	// the pool, so push it directly.
	if data, err := wire.MarshalState(snap); err == nil {
		rt.subs.SendEvent(connID, data)
	}

	return wire.OkAck(cmd.Seq, wire.CreateRoomResult{RoomCode: snap.RoomCode, HostID: snap.HostID})
}

func (rt *Router) joinRoom(connID string, cmd wire.Command) wire.Ack {
	var p wire.JoinRoomPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return wire.ErrAck(cmd.Seq, room.ErrInvalidInput)
	}
	code := room.NormalizeCode(p.RoomCode)

	rt.leaveCurrent(connID)

	// Subscribe before the transition so the join broadcast reaches the
	// joiner as its first snapshot.
	rt.subs.Subscribe(connID, code)

	playerID, snap, err := rt.store.JoinRoom(code, p.Name)
	if err != nil {
		rt.subs.Unsubscribe(connID)
		return wire.ErrAck(cmd.Seq, room.KindOf(err))
	}

	rt.tracker.Bind(presence.Binding{
		ConnID:   connID,
		RoomCode: snap.RoomCode,
		PlayerID: playerID,
	})

	return wire.OkAck(cmd.Seq, wire.JoinRoomResult{PlayerID: playerID})
}

func (rt *Router) buzz(connID string, cmd wire.Command) wire.Ack {
	var p wire.RoomPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return wire.ErrAck(cmd.Seq, room.ErrInvalidInput)
	}

	b, ok := rt.tracker.InRoom(connID, p.RoomCode)
	if !ok {
		return wire.ErrAck(cmd.Seq, rt.denyKind(p.RoomCode))
	}

	_, err := rt.store.Buzz(b.RoomCode, b.PlayerID)
	if room.IsKind(err, room.ErrAlreadyQueued) {
		// Repeat buzzes are a no-op, not a failure.
		return wire.OkAck(cmd.Seq, nil)
	}
	if err != nil {
		return wire.ErrAck(cmd.Seq, room.KindOf(err))
	}
	return wire.OkAck(cmd.Seq, nil)
}

// denyKind classifies a command from a connection with no standing in the
// room. The room being gone outranks the membership failure: after a host
// teardown, a former member's straggling command reports RoomNotFound,
// not Forbidden.
func (rt *Router) denyKind(roomCode string) room.ErrorKind {
	if _, err := rt.store.Snapshot(roomCode); room.IsKind(err, room.ErrRoomNotFound) {
		return room.ErrRoomNotFound
	}
	return room.ErrForbidden
}

// hostOnly validates that the connection is the host of the target room.
// The empty kind means the check passed.
func (rt *Router) hostOnly(connID, roomCode string) (presence.Binding, room.ErrorKind) {
	b, ok := rt.tracker.InRoom(connID, roomCode)
	if !ok {
		return presence.Binding{}, rt.denyKind(roomCode)
	}
	if !b.Host {
		return presence.Binding{}, room.ErrForbidden
	}
	return b, ""
}

func (rt *Router) clearBuzzers(connID string, cmd wire.Command) wire.Ack {
	var p wire.RoomPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return wire.ErrAck(cmd.Seq, room.ErrInvalidInput)
	}
	b, kind := rt.hostOnly(connID, p.RoomCode)
	if kind != "" {
		return wire.ErrAck(cmd.Seq, kind)
	}
	if _, err := rt.store.ClearBuzzers(b.RoomCode); err != nil {
		return wire.ErrAck(cmd.Seq, room.KindOf(err))
	}
	return wire.OkAck(cmd.Seq, nil)
}

func (rt *Router) lockBuzzers(connID string, cmd wire.Command) wire.Ack {
	var p wire.LockBuzzersPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return wire.ErrAck(cmd.Seq, room.ErrInvalidInput)
	}
	b, kind := rt.hostOnly(connID, p.RoomCode)
	if kind != "" {
		return wire.ErrAck(cmd.Seq, kind)
	}
	if _, err := rt.store.LockBuzzers(b.RoomCode, p.Locked); err != nil {
		return wire.ErrAck(cmd.Seq, room.KindOf(err))
	}
	return wire.OkAck(cmd.Seq, nil)
}

func (rt *Router) adjustScore(connID string, cmd wire.Command) wire.Ack {
	var p wire.ScorePayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return wire.ErrAck(cmd.Seq, room.ErrInvalidInput)
	}
	b, kind := rt.hostOnly(connID, p.RoomCode)
	if kind != "" {
		return wire.ErrAck(cmd.Seq, kind)
	}
	if _, err := rt.store.Award(b.RoomCode, p.PlayerID, p.Delta); err != nil {
		return wire.ErrAck(cmd.Seq, room.KindOf(err))
	}
	return wire.OkAck(cmd.Seq, nil)
}

func (rt *Router) nextQuestion(connID string, cmd wire.Command) wire.Ack {
	var p wire.RoomPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return wire.ErrAck(cmd.Seq, room.ErrInvalidInput)
	}
	b, kind := rt.hostOnly(connID, p.RoomCode)
	if kind != "" {
		return wire.ErrAck(cmd.Seq, kind)
	}
	if _, err := rt.store.NextQuestion(b.RoomCode); err != nil {
		return wire.ErrAck(cmd.Seq, room.KindOf(err))
	}
	return wire.OkAck(cmd.Seq, nil)
}

func (rt *Router) assignTeam(connID string, cmd wire.Command) wire.Ack {
	var p wire.AssignTeamPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return wire.ErrAck(cmd.Seq, room.ErrInvalidInput)
	}
	b, kind := rt.hostOnly(connID, p.RoomCode)
	if kind != "" {
		return wire.ErrAck(cmd.Seq, kind)
	}
	var team room.Team
	if p.Team != nil {
		team = room.Team(*p.Team)
	}
	if _, err := rt.store.AssignTeam(b.RoomCode, p.PlayerID, team); err != nil {
		return wire.ErrAck(cmd.Seq, room.KindOf(err))
	}
	return wire.OkAck(cmd.Seq, nil)
}
