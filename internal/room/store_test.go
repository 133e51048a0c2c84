package room

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPublisher captures publishes in order.
type recordingPublisher struct {
	mu     sync.Mutex
	states []Snapshot
	closed []string
}

func (p *recordingPublisher) PublishState(snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, snap)
}

func (p *recordingPublisher) PublishClosed(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, code)
}

func (p *recordingPublisher) stateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.states)
}

func TestCreateRoom(t *testing.T) {
	s := NewStore(nil)

	snap, err := s.CreateRoom("Alice")
	require.NoError(t, err)

	assert.Len(t, snap.RoomCode, codeLength)
	for _, r := range snap.RoomCode {
		assert.Contains(t, codeAlphabet, string(r))
	}
	assert.NotEmpty(t, snap.HostID)
	assert.False(t, snap.Locked)
	assert.False(t, snap.ShowScores)
	assert.Empty(t, snap.BuzzQueue)
	assert.Equal(t, map[Team]int{TeamTipsy: 0, TeamWobbly: 0}, snap.TeamScores)

	require.Len(t, snap.Players, 1)
	host := snap.Players[0]
	assert.Equal(t, snap.HostID, host.ID)
	assert.Equal(t, "Alice", host.Name)
	assert.Zero(t, host.Score)
	assert.Empty(t, host.Team)
}

func TestCreateRoomNameHandling(t *testing.T) {
	s := NewStore(nil)

	snap, err := s.CreateRoom("   ")
	require.NoError(t, err)
	assert.Equal(t, DefaultHostName, snap.Players[0].Name)

	_, err = s.CreateRoom(strings.Repeat("x", MaxNameLength+1))
	require.Error(t, err)
	assert.Equal(t, ErrInvalidInput, KindOf(err))
}

func TestRoomCodesUniqueAmongLiveRooms(t *testing.T) {
	s := NewStore(nil)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		snap, err := s.CreateRoom("host")
		require.NoError(t, err)
		assert.False(t, seen[snap.RoomCode], "duplicate live room code %s", snap.RoomCode)
		seen[snap.RoomCode] = true
	}
}

func TestJoinRoom(t *testing.T) {
	s := NewStore(nil)
	created, err := s.CreateRoom("Alice")
	require.NoError(t, err)

	playerID, snap, err := s.JoinRoom(created.RoomCode, "Bob")
	require.NoError(t, err)
	assert.NotEmpty(t, playerID)
	assert.NotEqual(t, snap.HostID, playerID)
	require.Len(t, snap.Players, 2)
	assert.Empty(t, snap.BuzzQueue)

	// Lowercase codes are accepted: clients type them.
	_, _, err = s.JoinRoom(strings.ToLower(created.RoomCode), "Carol")
	require.NoError(t, err)

	_, _, err = s.JoinRoom("ZZZZ", "Dave")
	require.Error(t, err)
	assert.Equal(t, ErrRoomNotFound, KindOf(err))
}

func TestJoinRoomAllowedWhileLocked(t *testing.T) {
	s := NewStore(nil)
	created, _ := s.CreateRoom("Alice")
	_, err := s.LockBuzzers(created.RoomCode, true)
	require.NoError(t, err)

	// The lock gates buzzing, not joining.
	_, snap, err := s.JoinRoom(created.RoomCode, "Bob")
	require.NoError(t, err)
	assert.True(t, snap.Locked)
	assert.Len(t, snap.Players, 2)
}

func TestBuzzOrderIsArrivalOrder(t *testing.T) {
	s := NewStore(nil)
	created, _ := s.CreateRoom("host")
	code := created.RoomCode

	var ids []string
	for _, name := range []string{"p1", "p2", "p3", "p4"} {
		id, _, err := s.JoinRoom(code, name)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, id := range ids {
		_, err := s.Buzz(code, id)
		require.NoError(t, err)
	}

	snap, err := s.Snapshot(code)
	require.NoError(t, err)
	assert.Equal(t, ids, snap.BuzzQueue)
}

func TestBuzzDuplicateIsSoftNoOp(t *testing.T) {
	s := NewStore(nil)
	created, _ := s.CreateRoom("host")
	id, _, _ := s.JoinRoom(created.RoomCode, "Bob")

	_, err := s.Buzz(created.RoomCode, id)
	require.NoError(t, err)

	snap, err := s.Buzz(created.RoomCode, id)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrAlreadyQueued))
	assert.Equal(t, []string{id}, snap.BuzzQueue)
}

func TestBuzzRejectedWhileLocked(t *testing.T) {
	s := NewStore(nil)
	created, _ := s.CreateRoom("host")
	id, _, _ := s.JoinRoom(created.RoomCode, "Bob")

	_, err := s.LockBuzzers(created.RoomCode, true)
	require.NoError(t, err)

	_, err = s.Buzz(created.RoomCode, id)
	assert.Equal(t, ErrBuzzersLocked, KindOf(err))

	snap, _ := s.Snapshot(created.RoomCode)
	assert.Empty(t, snap.BuzzQueue)
}

func TestBuzzRejectedWhileShowingScores(t *testing.T) {
	s := NewStore(nil)
	created, _ := s.CreateRoom("host")
	id, _, _ := s.JoinRoom(created.RoomCode, "Bob")

	_, err := s.NextQuestion(created.RoomCode) // reveal scoreboard
	require.NoError(t, err)

	_, err = s.Buzz(created.RoomCode, id)
	assert.Equal(t, ErrShowingScores, KindOf(err))
}

func TestBuzzUnknownPlayer(t *testing.T) {
	s := NewStore(nil)
	created, _ := s.CreateRoom("host")
	_, err := s.Buzz(created.RoomCode, "nobody")
	assert.Equal(t, ErrPlayerNotFound, KindOf(err))
}

func TestClearBuzzers(t *testing.T) {
	s := NewStore(nil)
	created, _ := s.CreateRoom("host")
	code := created.RoomCode
	for _, name := range []string{"a", "b", "c"} {
		id, _, _ := s.JoinRoom(code, name)
		s.Buzz(code, id)
	}
	_, err := s.LockBuzzers(code, true)
	require.NoError(t, err)

	snap, err := s.ClearBuzzers(code)
	require.NoError(t, err)
	assert.Empty(t, snap.BuzzQueue)
	// Clearing touches only the queue.
	assert.True(t, snap.Locked)

	snap, err = s.ClearBuzzers(code)
	require.NoError(t, err)
	assert.Empty(t, snap.BuzzQueue)
}

func TestAwardWithTeam(t *testing.T) {
	s := NewStore(nil)
	created, _ := s.CreateRoom("host")
	code := created.RoomCode
	id, _, _ := s.JoinRoom(code, "Bob")

	_, err := s.AssignTeam(code, id, TeamTipsy)
	require.NoError(t, err)

	snap, err := s.Award(code, id, 50)
	require.NoError(t, err)
	p, ok := snap.PlayerByID(id)
	require.True(t, ok)
	assert.Equal(t, 50, p.Score)
	assert.Equal(t, 50, snap.TeamScores[TeamTipsy])
	assert.Equal(t, 0, snap.TeamScores[TeamWobbly])

	// Penalty is a negative award.
	snap, err = s.Award(code, id, -50)
	require.NoError(t, err)
	p, _ = snap.PlayerByID(id)
	assert.Equal(t, 0, p.Score)
	assert.Equal(t, 0, snap.TeamScores[TeamTipsy])
}

func TestAwardWithoutTeamLeavesTeamTotals(t *testing.T) {
	s := NewStore(nil)
	created, _ := s.CreateRoom("host")
	id, _, _ := s.JoinRoom(created.RoomCode, "Bob")

	snap, err := s.Award(created.RoomCode, id, -50)
	require.NoError(t, err)
	p, _ := snap.PlayerByID(id)
	assert.Equal(t, -50, p.Score) // scores may go negative
	assert.Equal(t, 0, snap.TeamScores[TeamTipsy])
	assert.Equal(t, 0, snap.TeamScores[TeamWobbly])
}

func TestAwardValidation(t *testing.T) {
	s := NewStore(nil)
	created, _ := s.CreateRoom("host")

	_, err := s.Award(created.RoomCode, "nobody", 50)
	assert.Equal(t, ErrPlayerNotFound, KindOf(err))

	id, _, _ := s.JoinRoom(created.RoomCode, "Bob")
	_, err = s.Award(created.RoomCode, id, MaxScoreDelta+1)
	assert.Equal(t, ErrInvalidInput, KindOf(err))

	// Failed awards must not partially mutate.
	snap, _ := s.Snapshot(created.RoomCode)
	p, _ := snap.PlayerByID(id)
	assert.Zero(t, p.Score)
}

func TestNextQuestionTwoPhaseToggle(t *testing.T) {
	s := NewStore(nil)
	created, _ := s.CreateRoom("host")
	code := created.RoomCode
	id, _, _ := s.JoinRoom(code, "Bob")
	_, err := s.Buzz(code, id)
	require.NoError(t, err)

	// Phase one: reveal, queue intact.
	snap, err := s.NextQuestion(code)
	require.NoError(t, err)
	assert.True(t, snap.ShowScores)
	assert.Equal(t, []string{id}, snap.BuzzQueue)

	// Phase two: drop the scoreboard and clear.
	snap, err = s.NextQuestion(code)
	require.NoError(t, err)
	assert.False(t, snap.ShowScores)
	assert.Empty(t, snap.BuzzQueue)
}

func TestAssignTeam(t *testing.T) {
	s := NewStore(nil)
	created, _ := s.CreateRoom("host")
	id, _, _ := s.JoinRoom(created.RoomCode, "Bob")

	snap, err := s.AssignTeam(created.RoomCode, id, TeamWobbly)
	require.NoError(t, err)
	p, _ := snap.PlayerByID(id)
	assert.Equal(t, TeamWobbly, p.Team)

	// Clearing the assignment.
	snap, err = s.AssignTeam(created.RoomCode, id, "")
	require.NoError(t, err)
	p, _ = snap.PlayerByID(id)
	assert.Empty(t, p.Team)

	_, err = s.AssignTeam(created.RoomCode, id, "squiffy")
	assert.Equal(t, ErrInvalidTeam, KindOf(err))

	_, err = s.AssignTeam(created.RoomCode, "nobody", TeamTipsy)
	assert.Equal(t, ErrPlayerNotFound, KindOf(err))
}

func TestTeamPointsStayWhereEarned(t *testing.T) {
	s := NewStore(nil)
	created, _ := s.CreateRoom("host")
	code := created.RoomCode
	id, _, _ := s.JoinRoom(code, "Bob")

	s.AssignTeam(code, id, TeamTipsy)
	s.Award(code, id, 50)

	snap, err := s.AssignTeam(code, id, TeamWobbly)
	require.NoError(t, err)
	assert.Equal(t, 50, snap.TeamScores[TeamTipsy])
	assert.Equal(t, 0, snap.TeamScores[TeamWobbly])

	snap, _ = s.Award(code, id, 50)
	assert.Equal(t, 50, snap.TeamScores[TeamTipsy])
	assert.Equal(t, 50, snap.TeamScores[TeamWobbly])
}

func TestRemovePlayer(t *testing.T) {
	s := NewStore(nil)
	created, _ := s.CreateRoom("host")
	code := created.RoomCode
	bob, _, _ := s.JoinRoom(code, "Bob")
	carol, _, _ := s.JoinRoom(code, "Carol")
	s.Buzz(code, bob)
	s.Buzz(code, carol)

	snap, err := s.RemovePlayer(code, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{carol}, snap.BuzzQueue)
	_, stillThere := snap.PlayerByID(bob)
	assert.False(t, stillThere)

	_, err = s.RemovePlayer(code, "nobody")
	assert.Equal(t, ErrPlayerNotFound, KindOf(err))
}

func TestRemoveHostDestroysRoom(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewStore(pub)
	created, _ := s.CreateRoom("host")
	code := created.RoomCode
	s.JoinRoom(code, "Bob")

	_, err := s.RemovePlayer(code, created.HostID)
	require.NoError(t, err)

	_, err = s.Snapshot(code)
	assert.Equal(t, ErrRoomNotFound, KindOf(err))
	assert.Equal(t, []string{code}, pub.closed)

	// Subsequent commands against the dead code fail cleanly.
	_, err = s.Buzz(code, "whatever")
	assert.Equal(t, ErrRoomNotFound, KindOf(err))
	_, _, err = s.JoinRoom(code, "Late")
	assert.Equal(t, ErrRoomNotFound, KindOf(err))
}

func TestCloseRoomTwice(t *testing.T) {
	s := NewStore(nil)
	created, _ := s.CreateRoom("host")
	require.NoError(t, s.CloseRoom(created.RoomCode))
	err := s.CloseRoom(created.RoomCode)
	assert.Equal(t, ErrRoomNotFound, KindOf(err))
}

func TestPublishOrderMatchesTransitionOrder(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewStore(pub)
	created, _ := s.CreateRoom("host")
	code := created.RoomCode
	id, _, _ := s.JoinRoom(code, "Bob")

	s.Buzz(code, id)
	s.LockBuzzers(code, true)
	s.ClearBuzzers(code)

	require.GreaterOrEqual(t, pub.stateCount(), 5)
	states := pub.states
	// create, join, buzz, lock, clear: each snapshot reflects its transition.
	assert.Len(t, states[0].Players, 1)
	assert.Len(t, states[1].Players, 2)
	assert.Equal(t, []string{id}, states[2].BuzzQueue)
	assert.True(t, states[3].Locked)
	assert.Equal(t, []string{id}, states[3].BuzzQueue)
	assert.Empty(t, states[4].BuzzQueue)
}

func TestFailedTransitionsDoNotPublish(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewStore(pub)
	created, _ := s.CreateRoom("host")
	id, _, _ := s.JoinRoom(created.RoomCode, "Bob")
	before := pub.stateCount()

	s.Buzz(created.RoomCode, "nobody")
	s.Award(created.RoomCode, "nobody", 50)
	s.Buzz(created.RoomCode, id)
	s.Buzz(created.RoomCode, id) // duplicate, soft no-op

	assert.Equal(t, before+1, pub.stateCount())
}

// The walkthrough from the protocol table: create, join, buzz, award,
// reveal, advance.
func TestHostedGameWalkthrough(t *testing.T) {
	s := NewStore(nil)

	created, err := s.CreateRoom("Alice")
	require.NoError(t, err)
	code := created.RoomCode

	bob, snap, err := s.JoinRoom(code, "Bob")
	require.NoError(t, err)
	require.Len(t, snap.Players, 2)

	snap, err = s.Buzz(code, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{bob}, snap.BuzzQueue)
	assert.Equal(t, bob, snap.Head())

	snap, err = s.Award(code, bob, 50)
	require.NoError(t, err)
	p, _ := snap.PlayerByID(bob)
	assert.Equal(t, 50, p.Score)

	snap, _ = s.NextQuestion(code)
	assert.True(t, snap.ShowScores)
	snap, _ = s.NextQuestion(code)
	assert.False(t, snap.ShowScores)
	assert.Empty(t, snap.BuzzQueue)
}
