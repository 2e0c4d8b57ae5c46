package room

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dsarena/go/internal/battle/problem"
)

// State is the lifecycle position of a room.
type State int

const (
	StateCreated State = iota
	StateAwaitingSubmissions
	StateJudging
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateAwaitingSubmissions:
		return "AWAITING_SUBMISSIONS"
	case StateJudging:
		return "JUDGING"
	case StateFinished:
		return "FINISHED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Room is a paired two-player battle. Only the Registry mutates it.
type Room struct {
	ID          uuid.UUID
	Language    string
	Problem     problem.Problem
	Players     [2]string
	Submissions map[string]string
	Remaining   int
	State       State
	CreatedAt   time.Time
	StartedAt   time.Time

	done chan struct{}
}

func newRoom(language, p1, p2 string) *Room {
	return &Room{
		ID:          uuid.New(),
		Language:    language,
		Players:     [2]string{p1, p2},
		Submissions: make(map[string]string, 2),
		State:       StateCreated,
		CreatedAt:   time.Now(),
		done:        make(chan struct{}),
	}
}

// HasPlayer reports whether playerID is one of the two participants.
func (r *Room) HasPlayer(playerID string) bool {
	return r.Players[0] == playerID || r.Players[1] == playerID
}

// Opponent returns the other participant.
func (r *Room) Opponent(playerID string) string {
	if r.Players[0] == playerID {
		return r.Players[1]
	}
	return r.Players[0]
}

// Snapshot is an immutable copy of a room handed out of the registry lock.
type Snapshot struct {
	ID          uuid.UUID
	Language    string
	Problem     problem.Problem
	Players     [2]string
	Submissions map[string]string
	Remaining   int
	State       State
	StartedAt   time.Time
}

func (r *Room) snapshot() Snapshot {
	subs := make(map[string]string, len(r.Submissions))
	for k, v := range r.Submissions {
		subs[k] = v
	}
	tests := make([]problem.TestCase, len(r.Problem.Tests))
	copy(tests, r.Problem.Tests)

	return Snapshot{
		ID:          r.ID,
		Language:    r.Language,
		Problem:     problem.Problem{Question: r.Problem.Question, Tests: tests},
		Players:     r.Players,
		Submissions: subs,
		Remaining:   r.Remaining,
		State:       r.State,
		StartedAt:   r.StartedAt,
	}
}

// Code returns the submission of playerID and whether one exists.
func (s Snapshot) Code(playerID string) (string, bool) {
	code, ok := s.Submissions[playerID]
	return code, ok
}
