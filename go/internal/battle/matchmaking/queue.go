package matchmaking

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	// ErrEmptyLanguage is returned when a join request names no language track.
	ErrEmptyLanguage = errors.New("language is required")
	// ErrEmptyPlayer is returned when a join request carries no player id.
	ErrEmptyPlayer = errors.New("player id is required")
	// ErrPlayerBusy is returned when the busy check reports the joining player.
	ErrPlayerBusy = errors.New("player is busy")
)

// PairFunc is invoked with the waiting player and the joining player while the
// slot lock is held, so the room it creates becomes visible atomically with the pairing.
type PairFunc func(waiting, joining string) error

// Status tells the caller what happened to its join request.
type Status int

const (
	StatusWaiting Status = iota
	StatusPaired
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusPaired:
		return "paired"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// JoinResult describes the outcome of a Join.
type JoinResult struct {
	Status   Status
	Language string
	Opponent string // set when paired: the player that was waiting
}

// BusyFunc reports whether a player is already committed elsewhere, e.g. to an
// active room. It is called with the slot lock held.
type BusyFunc func(playerID string) bool

type QueueOption func(*Queue)

// WithBusyCheck rejects busy joiners and evicts busy players from slots before pairing.
func WithBusyCheck(fn BusyFunc) QueueOption {
	return func(q *Queue) { q.busy = fn }
}

// Queue holds at most one waiting player per language track.
type Queue struct {
	mu    sync.Mutex
	slots map[string]string // language -> waiting player id
	busy  BusyFunc
}

func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		slots: make(map[string]string),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// NormalizeLanguage folds a client supplied language key into its slot key.
func NormalizeLanguage(language string) string {
	return strings.ToLower(strings.TrimSpace(language))
}

// Join parks playerID on the language slot or pairs it with the player already waiting.
// The slot is cleared before pair runs; if pair fails the waiting player is restored.
func (q *Queue) Join(language, playerID string, pair PairFunc) (JoinResult, error) {
	language = NormalizeLanguage(language)
	if language == "" {
		return JoinResult{}, ErrEmptyLanguage
	}
	if playerID == "" {
		return JoinResult{}, ErrEmptyPlayer
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.isBusy(playerID) {
		q.removeLocked(playerID)
		return JoinResult{}, ErrPlayerBusy
	}

	waiting, ok := q.slots[language]
	if ok && waiting != playerID && q.isBusy(waiting) {
		// a waiting player that got paired elsewhere must not block this slot
		q.removeLocked(waiting)
		ok = false
		log.Debug().
			Str("language", language).
			Str("player_id", waiting).
			Msg("evicted busy player from matchmaking slot")
	}
	if !ok || waiting == playerID {
		q.slots[language] = playerID
		log.Debug().
			Str("language", language).
			Str("player_id", playerID).
			Msg("player parked in matchmaking slot")
		return JoinResult{Status: StatusWaiting, Language: language}, nil
	}

	delete(q.slots, language)
	if err := pair(waiting, playerID); err != nil {
		q.slots[language] = waiting
		return JoinResult{}, fmt.Errorf("pair %s with %s: %w", waiting, playerID, err)
	}

	// both players now belong to a room; stale slots on other tracks must go
	q.removeLocked(waiting)
	q.removeLocked(playerID)

	log.Debug().
		Str("language", language).
		Str("waiting", waiting).
		Str("joining", playerID).
		Msg("players paired")

	return JoinResult{Status: StatusPaired, Language: language, Opponent: waiting}, nil
}

// Leave clears every slot held by playerID and reports whether any was held.
func (q *Queue) Leave(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(playerID)
}

func (q *Queue) isBusy(playerID string) bool {
	return q.busy != nil && q.busy(playerID)
}

func (q *Queue) removeLocked(playerID string) bool {
	removed := false
	for language, waiting := range q.slots {
		if waiting == playerID {
			delete(q.slots, language)
			removed = true
		}
	}
	return removed
}

// Waiting returns the player parked on language, if any.
func (q *Queue) Waiting(language string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	playerID, ok := q.slots[NormalizeLanguage(language)]
	return playerID, ok
}

// Len returns the number of occupied slots.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots)
}
