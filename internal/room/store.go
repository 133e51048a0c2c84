package room

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Publisher receives the post-transition snapshot after every successful
// mutation, and a terminal notification when a room is destroyed. Both are
// invoked while the room's serialization lock is held, so publish order is
// exactly transition order for a given room.
type Publisher interface {
	PublishState(snap Snapshot)
	PublishClosed(roomCode string)
}

// Store is the authoritative in-memory model of all active rooms.
//
// Concurrency model: the rooms map is guarded by an RWMutex; each room has
// its own mutex and every transition on a room runs under it, single writer
// per room. Commands against different rooms proceed independently. No
// operation does I/O while holding a lock except handing the snapshot to
// the Publisher, which is required for broadcast ordering.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	codes *codeGenerator
	pub   Publisher
}

// NewStore creates an empty store. pub may be nil, in which case
// transitions are applied without fan-out (used by tests).
func NewStore(pub Publisher) *Store {
	return &Store{
		rooms: make(map[string]*Room),
		codes: newCodeGenerator(time.Now().UnixNano()),
		pub:   pub,
	}
}

func (s *Store) publishState(snap Snapshot) {
	if s.pub != nil {
		s.pub.PublishState(snap)
	}
}

func (s *Store) publishClosed(code string) {
	if s.pub != nil {
		s.pub.PublishClosed(code)
	}
}

// normalizeName trims a display name, substitutes the fallback for blank
// input, and rejects names over the length bound.
func normalizeName(name, fallback string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback, nil
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", NewError(ErrInvalidInput, "name exceeds %d characters", MaxNameLength)
	}
	return name, nil
}

// CreateRoom allocates a fresh room with the creator as host. The returned
// snapshot carries the room code and host id.
func (s *Store) CreateRoom(hostName string) (Snapshot, error) {
	name, err := normalizeName(hostName, DefaultHostName)
	if err != nil {
		return Snapshot{}, err
	}

	hostID := uuid.New().String()
	host := &Player{ID: hostID, Name: name}

	s.mu.Lock()
	var code string
	for attempt := 0; ; attempt++ {
		if attempt >= maxCodeAttempts {
			s.mu.Unlock()
			return Snapshot{}, NewError(ErrInvalidInput, "could not allocate a unique room code")
		}
		code = s.codes.next()
		if _, taken := s.rooms[code]; !taken {
			break
		}
	}

	r := &Room{
		Code:        code,
		HostID:      hostID,
		BuzzQueue:   make([]string, 0),
		TeamScores:  map[Team]int{TeamTipsy: 0, TeamWobbly: 0},
		Players:     map[string]*Player{hostID: host},
		playerOrder: []string{hostID},
		CreatedAt:   time.Now(),
	}
	s.rooms[code] = r
	s.mu.Unlock()

	r.mu.Lock()
	snap := r.snapshot()
	s.publishState(snap)
	r.mu.Unlock()

	log.Info().
		Str("room_code", code).
		Str("host_id", hostID).
		Str("host_name", name).
		Msg("room created")

	return snap, nil
}

// lookup fetches a live room by code.
func (s *Store) lookup(code string) (*Room, error) {
	s.mu.RLock()
	r, ok := s.rooms[NormalizeCode(code)]
	s.mu.RUnlock()
	if !ok {
		return nil, NewError(ErrRoomNotFound, "no room with code %q", code)
	}
	return r, nil
}

// withRoom runs fn under the room's serialization lock and, when fn
// succeeds, publishes the post-transition snapshot before the lock is
// released. fn must either fully apply a transition or leave the room
// untouched.
func (s *Store) withRoom(code string, fn func(r *Room) error) (Snapshot, error) {
	r, err := s.lookup(code)
	if err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Closed between lookup and lock.
	if r.Players == nil {
		return Snapshot{}, NewError(ErrRoomNotFound, "room %s is closed", r.Code)
	}

	if err := fn(r); err != nil {
		if IsKind(err, ErrAlreadyQueued) {
			// Soft no-op: report current state, nothing to broadcast.
			return r.snapshot(), err
		}
		return Snapshot{}, err
	}

	snap := r.snapshot()
	s.publishState(snap)
	return snap, nil
}

// JoinRoom adds a new player to an existing room. Joining is permitted
// while buzzers are locked; the lock gates buzzing only.
func (s *Store) JoinRoom(code, name string) (playerID string, snap Snapshot, err error) {
	display, err := normalizeName(name, DefaultPlayerName)
	if err != nil {
		return "", Snapshot{}, err
	}

	playerID = uuid.New().String()
	snap, err = s.withRoom(code, func(r *Room) error {
		r.Players[playerID] = &Player{ID: playerID, Name: display}
		r.playerOrder = append(r.playerOrder, playerID)
		return nil
	})
	if err != nil {
		return "", Snapshot{}, err
	}

	log.Info().
		Str("room_code", snap.RoomCode).
		Str("player_id", playerID).
		Str("player_name", display).
		Msg("player joined")

	return playerID, snap, nil
}

// Buzz appends the player to the buzz queue. The queue records
// first-server-received order: whatever order commands reach this room's
// lock is the order players stand in, regardless of client clocks.
func (s *Store) Buzz(code, playerID string) (Snapshot, error) {
	return s.withRoom(code, func(r *Room) error {
		if _, ok := r.Players[playerID]; !ok {
			return NewError(ErrPlayerNotFound, "player %s not in room", playerID)
		}
		for _, queued := range r.BuzzQueue {
			if queued == playerID {
				return NewError(ErrAlreadyQueued, "")
			}
		}
		if r.Locked {
			return NewError(ErrBuzzersLocked, "")
		}
		if r.ShowScores {
			return NewError(ErrShowingScores, "")
		}
		r.BuzzQueue = append(r.BuzzQueue, playerID)
		return nil
	})
}

// ClearBuzzers empties the queue without touching the lock or scores.
func (s *Store) ClearBuzzers(code string) (Snapshot, error) {
	return s.withRoom(code, func(r *Room) error {
		r.BuzzQueue = r.BuzzQueue[:0]
		return nil
	})
}

// LockBuzzers sets the lock flag. The queue is left as-is.
func (s *Store) LockBuzzers(code string, locked bool) (Snapshot, error) {
	return s.withRoom(code, func(r *Room) error {
		r.Locked = locked
		return nil
	})
}

// Award adds delta to the player's score, and to their team total when
// they carry a team assignment. Negative deltas are penalties.
func (s *Store) Award(code, playerID string, delta int) (Snapshot, error) {
	if delta > MaxScoreDelta || delta < -MaxScoreDelta {
		return Snapshot{}, NewError(ErrInvalidInput, "delta %d out of bounds", delta)
	}
	return s.withRoom(code, func(r *Room) error {
		p, ok := r.Players[playerID]
		if !ok {
			return NewError(ErrPlayerNotFound, "player %s not in room", playerID)
		}
		p.Score += delta
		if p.Team != "" {
			r.TeamScores[p.Team] += delta
		}
		return nil
	})
}

// NextQuestion is the two-phase reveal toggle: the first call raises the
// scoreboard with the queue intact; the second drops the scoreboard and
// clears the queue to move on.
func (s *Store) NextQuestion(code string) (Snapshot, error) {
	return s.withRoom(code, func(r *Room) error {
		if !r.ShowScores {
			r.ShowScores = true
			return nil
		}
		r.ShowScores = false
		r.BuzzQueue = r.BuzzQueue[:0]
		return nil
	})
}

// AssignTeam sets or clears (team == "") the player's team. Existing team
// totals are not rewritten: points stay with the team they were earned on.
func (s *Store) AssignTeam(code, playerID string, team Team) (Snapshot, error) {
	if !ValidTeam(team) {
		return Snapshot{}, NewError(ErrInvalidTeam, "unknown team %q", team)
	}
	return s.withRoom(code, func(r *Room) error {
		p, ok := r.Players[playerID]
		if !ok {
			return NewError(ErrPlayerNotFound, "player %s not in room", playerID)
		}
		p.Team = team
		return nil
	})
}

// RemovePlayer drops a player from the room and the queue. Removing the
// host destroys the room instead.
func (s *Store) RemovePlayer(code, playerID string) (Snapshot, error) {
	r, err := s.lookup(code)
	if err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	isHost := playerID == r.HostID
	r.mu.Unlock()

	if isHost {
		return Snapshot{}, s.CloseRoom(code)
	}

	snap, err := s.withRoom(code, func(r *Room) error {
		if _, ok := r.Players[playerID]; !ok {
			return NewError(ErrPlayerNotFound, "player %s not in room", playerID)
		}
		delete(r.Players, playerID)
		r.playerOrder = deleteString(r.playerOrder, playerID)
		r.BuzzQueue = deleteString(r.BuzzQueue, playerID)
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	log.Info().
		Str("room_code", snap.RoomCode).
		Str("player_id", playerID).
		Msg("player removed")

	return snap, nil
}

// CloseRoom tears a room down: it is removed from the active set and a
// terminal room_closed notification is published to its participants.
// Commands referencing the code afterwards fail with RoomNotFound.
func (s *Store) CloseRoom(code string) error {
	code = NormalizeCode(code)

	s.mu.Lock()
	r, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		return NewError(ErrRoomNotFound, "no room with code %q", code)
	}
	delete(s.rooms, code)
	s.mu.Unlock()

	r.mu.Lock()
	r.Players = nil
	r.playerOrder = nil
	r.BuzzQueue = nil
	s.publishClosed(code)
	r.mu.Unlock()

	log.Info().Str("room_code", code).Msg("room closed")
	return nil
}

// Snapshot returns the current state of a room without mutating it.
func (s *Store) Snapshot(code string) (Snapshot, error) {
	r, err := s.lookup(code)
	if err != nil {
		return Snapshot{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Players == nil {
		return Snapshot{}, NewError(ErrRoomNotFound, "room %s is closed", r.Code)
	}
	return r.snapshot(), nil
}

// HostID reports the host connection id for a room.
func (s *Store) HostID(code string) (string, error) {
	snap, err := s.Snapshot(code)
	if err != nil {
		return "", err
	}
	return snap.HostID, nil
}

// ActiveCodes lists the codes of all live rooms.
func (s *Store) ActiveCodes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	return codes
}

func deleteString(list []string, target string) []string {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
