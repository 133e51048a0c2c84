// Package cue turns successive room snapshots into local attention cues
// for the host: a buzz cue when the queue grows, and an escalation cue
// when the head of the queue sits unacknowledged for too long. It lives
// entirely on the client; nothing here feeds back into room state.
package cue

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/buzzinlive/buzzin/internal/room"
)

// DefaultEscalationDelay is how long the head of the queue may sit
// unacknowledged before the escalation cue fires.
const DefaultEscalationDelay = 15 * time.Second

// Event is a cue the consumer should surface (play a sound, flash the
// screen, whatever the view layer does with it).
type Event int

const (
	// EventBuzz fires when a new entrant lands in the queue.
	EventBuzz Event = iota
	// EventEscalate fires when the armed timer expires with the queue
	// head still unacknowledged.
	EventEscalate
)

func (e Event) String() string {
	switch e {
	case EventBuzz:
		return "buzz"
	case EventEscalate:
		return "escalate"
	default:
		return "unknown"
	}
}

// state of the escalation machine.
type state int

const (
	stateIdle state = iota
	stateArmed
	stateFired
)

// Engine is the per-client cue state machine {idle, armed, fired}, driven
// purely by comparing each snapshot against the previous one. The server
// signals no edges; the diffing happens here.
type Engine struct {
	clock  clockwork.Clock
	delay  time.Duration
	selfID string
	emit   func(Event)

	mu        sync.Mutex
	prev      *room.Snapshot
	latest    room.Snapshot
	st        state
	armedHead string
	timer     clockwork.Timer
}

// NewEngine builds a cue engine for the local participant identified by
// selfID (cues are host-only; non-hosts observe snapshots silently).
// emit is called from the timer goroutine for escalations and from
// Observe for buzz cues; it must not block.
func NewEngine(selfID string, delay time.Duration, clock clockwork.Clock, emit func(Event)) *Engine {
	if delay <= 0 {
		delay = DefaultEscalationDelay
	}
	return &Engine{
		clock:  clock,
		delay:  delay,
		selfID: selfID,
		emit:   emit,
	}
}

// Observe feeds the next snapshot through the machine.
//
// Rules, in order:
//   - queue grew and we are host: emit the buzz cue;
//   - scoreboard up or queue empty: disarm, no re-arm;
//   - new head (differs from previous snapshot's head) and we are host:
//     re-arm from scratch for the new head;
//   - unchanged head: leave the armed timer running toward its original
//     expiry.
func (e *Engine) Observe(snap room.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.prev
	e.latest = snap
	isHost := snap.HostID == e.selfID

	if isHost && prev != nil && len(snap.BuzzQueue) > len(prev.BuzzQueue) && len(snap.BuzzQueue) > 0 {
		log.Debug().Str("room_code", snap.RoomCode).Int("queue", len(snap.BuzzQueue)).Msg("buzz cue")
		e.emit(EventBuzz)
	}

	head := snap.Head()
	var prevHead string
	if prev != nil {
		prevHead = prev.Head()
	}

	switch {
	case snap.ShowScores || head == "":
		e.disarmLocked()
	case isHost && head != prevHead:
		e.disarmLocked()
		e.armLocked(head)
	}

	snapCopy := snap
	e.prev = &snapCopy
}

// RoomClosed resets the machine when the subscription ends.
func (e *Engine) RoomClosed() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disarmLocked()
	e.prev = nil
	e.latest = room.Snapshot{}
}

func (e *Engine) armLocked(head string) {
	e.st = stateArmed
	e.armedHead = head
	e.timer = e.clock.AfterFunc(e.delay, e.fire)
	log.Debug().Str("head", head).Dur("delay", e.delay).Msg("escalation armed")
}

func (e *Engine) disarmLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.st = stateIdle
	e.armedHead = ""
}

// fire runs on timer expiry. It re-checks the latest snapshot: the cue is
// suppressed if we stopped being host, the queue emptied, or the
// scoreboard went up since arming.
func (e *Engine) fire() {
	e.mu.Lock()
	if e.st != stateArmed {
		e.mu.Unlock()
		return
	}
	snap := e.latest
	stillHost := snap.HostID == e.selfID
	stillQueued := snap.Head() != ""
	notConfirmed := !snap.ShowScores

	e.timer = nil
	if !(stillHost && stillQueued && notConfirmed) {
		e.st = stateIdle
		e.armedHead = ""
		e.mu.Unlock()
		return
	}
	e.st = stateFired
	e.mu.Unlock()

	log.Debug().Str("head", snap.Head()).Msg("escalation cue")
	e.emit(EventEscalate)
}

// Armed reports whether the escalation timer is currently running, and
// for which head. Used by tests.
func (e *Engine) Armed() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.armedHead, e.st == stateArmed
}
