package room

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dsarena/go/internal/battle/problem"
	"github.com/rs/zerolog/log"
)

// Registry owns all live rooms. Every mutation happens under mu, so concurrent
// submission, timer and teardown handlers observe one consistent view per room.
type Registry struct {
	mu          sync.Mutex
	rooms       map[uuid.UUID]*Room
	playerRooms map[string]uuid.UUID
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:       make(map[uuid.UUID]*Room),
		playerRooms: make(map[string]uuid.UUID),
	}
}

// Create registers a room for two players in the CREATED state.
func (r *Registry) Create(language, p1, p2 string) (Snapshot, error) {
	if p1 == p2 {
		return Snapshot{}, fmt.Errorf("%w: %s cannot battle itself", ErrInvalidTransition, p1)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range []string{p1, p2} {
		if id, ok := r.playerRooms[p]; ok {
			return Snapshot{}, fmt.Errorf("%w: %s is in room %s", ErrPlayerInRoom, p, id)
		}
	}

	rm := newRoom(language, p1, p2)
	r.rooms[rm.ID] = rm
	r.playerRooms[p1] = rm.ID
	r.playerRooms[p2] = rm.ID

	log.Info().
		Str("room_id", rm.ID.String()).
		Str("language", language).
		Str("player_1", p1).
		Str("player_2", p2).
		Msg("room created")

	return rm.snapshot(), nil
}

// Start attaches the problem and countdown and moves the room to AWAITING_SUBMISSIONS.
func (r *Registry) Start(id uuid.UUID, p problem.Problem, remaining int) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok {
		return Snapshot{}, ErrRoomNotFound
	}
	if rm.State != StateCreated {
		return Snapshot{}, fmt.Errorf("%w: start from %s", ErrInvalidTransition, rm.State)
	}

	rm.Problem = p
	rm.Remaining = remaining
	rm.StartedAt = time.Now()
	rm.State = StateAwaitingSubmissions

	return rm.snapshot(), nil
}

// Submit records or overwrites playerID's code and returns the number of
// distinct submissions now held by the room.
func (r *Registry) Submit(id uuid.UUID, playerID, code string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok {
		return 0, ErrRoomNotFound
	}
	if !rm.HasPlayer(playerID) {
		return 0, ErrNotParticipant
	}
	if rm.State >= StateJudging {
		return 0, ErrAlreadyJudging
	}

	rm.Submissions[playerID] = code
	return len(rm.Submissions), nil
}

// Tick decrements the countdown of a room that is accepting submissions and
// returns the new remaining value.
func (r *Registry) Tick(id uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok {
		return 0, ErrRoomNotFound
	}
	if rm.State != StateAwaitingSubmissions {
		return rm.Remaining, ErrAlreadyJudging
	}

	rm.Remaining--
	return rm.Remaining, nil
}

// BeginJudging is the one-shot guard: the first caller moves the room to JUDGING and
// receives its snapshot, every later caller gets ErrAlreadyJudging or ErrRoomNotFound.
func (r *Registry) BeginJudging(id uuid.UUID) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok {
		return Snapshot{}, ErrRoomNotFound
	}
	switch rm.State {
	case StateAwaitingSubmissions:
		rm.State = StateJudging
		return rm.snapshot(), nil
	case StateCreated:
		return Snapshot{}, fmt.Errorf("%w: judge before start", ErrInvalidTransition)
	default:
		return Snapshot{}, ErrAlreadyJudging
	}
}

// Remove finishes the room, frees both players and cancels anything waiting on Done.
// It is safe to call more than once.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok {
		return false
	}

	rm.State = StateFinished
	close(rm.done)
	delete(r.rooms, id)
	for _, p := range rm.Players {
		if r.playerRooms[p] == id {
			delete(r.playerRooms, p)
		}
	}

	log.Info().Str("room_id", id.String()).Msg("room removed")
	return true
}

// Done returns a channel closed when the room is removed.
func (r *Registry) Done(id uuid.UUID) (<-chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return rm.done, nil
}

// Get returns a snapshot of the room.
func (r *Registry) Get(id uuid.UUID) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok {
		return Snapshot{}, ErrRoomNotFound
	}
	return rm.snapshot(), nil
}

// RoomOf returns the active room of a player.
func (r *Registry) RoomOf(playerID string) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.playerRooms[playerID]
	return id, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// IDs lists the live rooms.
func (r *Registry) IDs() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	return ids
}
