package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dsarena/go/internal/battle/events"
	"github.com/mcdev12/dsarena/go/internal/battle/judge"
	"github.com/mcdev12/dsarena/go/internal/battle/matchmaking"
	"github.com/mcdev12/dsarena/go/internal/battle/outbox"
	"github.com/mcdev12/dsarena/go/internal/battle/problem"
	"github.com/mcdev12/dsarena/go/internal/battle/room"
	"github.com/rs/zerolog/log"
)

var (
	// ErrAlreadyInBattle is returned when a player in an active room asks to be matched.
	ErrAlreadyInBattle = errors.New("player is already in a battle")
	// ErrCodeTooLarge is returned for submissions over Config.MaxCodeBytes.
	ErrCodeTooLarge = errors.New("submission exceeds size limit")
	// ErrUnsupportedLanguage is returned when a join names a track that is not enabled.
	ErrUnsupportedLanguage = errors.New("language is not supported")
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// Notifier delivers a server event to one connected player. Delivery to a
// player that has gone away is silently dropped.
type Notifier interface {
	Notify(playerID string, event *events.Event)
}

// Judge scores one submission.
type Judge interface {
	Run(ctx context.Context, language, code string, tests []problem.TestCase) judge.Score
}

type Config struct {
	DurationTicks  int
	TickInterval   time.Duration
	Workers        int
	ProblemTimeout time.Duration
	PublishTimeout time.Duration
	MaxCodeBytes   int
}

func DefaultConfig() Config {
	return Config{
		DurationTicks:  1200,
		TickInterval:   time.Second,
		Workers:        4,
		ProblemTimeout: 20 * time.Second,
		PublishTimeout: 2 * time.Second,
		MaxCodeBytes:   64 << 10,
	}
}

type Option func(*Orchestrator)

func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithPublisher(p outbox.EventPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithLanguages limits matchmaking to the given tracks. Without it every
// language with a registered judge is accepted.
func WithLanguages(keys ...string) Option {
	return func(o *Orchestrator) {
		o.languages = make(map[string]bool, len(keys))
		for _, key := range keys {
			o.languages[matchmaking.NormalizeLanguage(key)] = true
		}
	}
}

// Orchestrator drives battles from matchmaking to result. It owns the queue,
// the room registry, one countdown goroutine per room and the judging workers.
type Orchestrator struct {
	queue     *matchmaking.Queue
	rooms     *room.Registry
	generator problem.Generator
	judge     Judge
	notifier  Notifier
	publisher outbox.EventPublisher
	clock     Clock
	config    Config
	languages map[string]bool // nil: any registered judge

	instanceID string

	// Worker pool
	workCh   chan judgeJob
	stopped  chan struct{}
	stopOnce sync.Once

	// rooms currently being judged
	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex

	finished atomic.Int64
}

func NewOrchestrator(cfg Config, generator problem.Generator, j Judge, notifier Notifier, opts ...Option) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}

	rooms := room.NewRegistry()
	o := &Orchestrator{
		queue: matchmaking.NewQueue(matchmaking.WithBusyCheck(func(playerID string) bool {
			_, ok := rooms.RoomOf(playerID)
			return ok
		})),
		rooms:      rooms,
		generator:  generator,
		judge:      j,
		notifier:   notifier,
		publisher:  outbox.LogPublisher{},
		clock:      clockwork.NewRealClock(),
		config:     cfg,
		instanceID: uuid.New().String()[:8],
		workCh:     make(chan judgeJob, cfg.Workers*2),
		stopped:    make(chan struct{}),
		inFlight:   make(map[uuid.UUID]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Join puts playerID in the matchmaking slot for language. When an opponent was
// already waiting the room is created under the slot lock, the problem is
// fetched and the battle starts before Join returns.
func (o *Orchestrator) Join(ctx context.Context, playerID, language string) error {
	language = matchmaking.NormalizeLanguage(language)
	if language != "" && !o.supports(language) {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}

	var created room.Snapshot
	res, err := o.queue.Join(language, playerID, func(waiting, joining string) error {
		snap, err := o.rooms.Create(language, waiting, joining)
		if err != nil {
			return err
		}
		created = snap
		return nil
	})
	if errors.Is(err, matchmaking.ErrPlayerBusy) {
		roomID, _ := o.rooms.RoomOf(playerID)
		return fmt.Errorf("%w: room %s", ErrAlreadyInBattle, roomID)
	}
	if err != nil {
		return err
	}

	if res.Status == matchmaking.StatusWaiting {
		o.notify(playerID, events.EventTypeWaiting, "", events.WaitingPayload{Language: language})
		return nil
	}

	return o.startBattle(ctx, created)
}

func (o *Orchestrator) supports(language string) bool {
	if o.languages != nil {
		return o.languages[language]
	}
	_, err := judge.GetLanguage(language)
	return err == nil
}

// Leave withdraws the player from matchmaking. An active battle is unaffected.
func (o *Orchestrator) Leave(playerID string) bool {
	left := o.queue.Leave(playerID)
	if left {
		log.Debug().Str("player_id", playerID).Msg("player left matchmaking")
	}
	return left
}

// Disconnect is called when a player's connection closes. A battle in progress
// keeps running; the countdown resolves it if the player never submits.
func (o *Orchestrator) Disconnect(playerID string) {
	o.queue.Leave(playerID)
	if roomID, ok := o.rooms.RoomOf(playerID); ok {
		log.Info().
			Str("player_id", playerID).
			Str("room_id", roomID.String()).
			Msg("player disconnected during battle")
	}
}

func (o *Orchestrator) startBattle(ctx context.Context, created room.Snapshot) error {
	p := o.fetchProblem(ctx, created.Language)

	snap, err := o.rooms.Start(created.ID, p, o.config.DurationTicks)
	if err != nil {
		o.rooms.Remove(created.ID)
		return fmt.Errorf("start room %s: %w", created.ID, err)
	}

	done, err := o.rooms.Done(snap.ID)
	if err != nil {
		return fmt.Errorf("start room %s: %w", created.ID, err)
	}
	go o.runTimer(snap.ID, snap.Players, done)

	roomID := snap.ID.String()
	for i, player := range snap.Players {
		o.notify(player, events.EventTypeBattleStart, roomID, events.BattleStartPayload{
			Room:     roomID,
			Language: snap.Language,
			Question: snap.Problem.Question,
			Time:     snap.Remaining,
			Opponent: snap.Players[1-i],
		})
	}

	log.Info().
		Str("room_id", roomID).
		Str("language", snap.Language).
		Int("tests", len(snap.Problem.Tests)).
		Int("duration", snap.Remaining).
		Msg("battle started")

	o.publish(snap.ID, events.DomainBattleStarted, events.BattleStartedPayload{
		RoomID:      roomID,
		Language:    snap.Language,
		Players:     snap.Players,
		TotalTests:  len(snap.Problem.Tests),
		DurationSec: int(time.Duration(snap.Remaining) * o.config.TickInterval / time.Second),
		StartedAt:   snap.StartedAt,
	})

	if len(snap.Submissions) == len(snap.Players) {
		o.triggerJudging(snap.ID, TriggerAllSubmitted)
	}
	return nil
}

func (o *Orchestrator) fetchProblem(ctx context.Context, language string) problem.Problem {
	if o.generator == nil {
		return problem.Fallback()
	}
	if o.config.ProblemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.ProblemTimeout)
		defer cancel()
	}

	p, err := o.generator.Generate(ctx, language)
	if err == nil {
		err = p.Validate()
	}
	if err != nil {
		log.Warn().Err(err).Str("language", language).Msg("problem generation failed, using fallback")
		return problem.Fallback()
	}
	return p
}

// Run starts the judging workers and blocks until ctx is done. On return every
// remaining room has been torn down.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().Str("instance", o.instanceID).Int("workers", o.config.Workers).Msg("battle orchestrator started")

	var wg sync.WaitGroup
	for i := 0; i < o.config.Workers; i++ {
		wg.Add(1)
		go o.worker(ctx, &wg, i)
	}

	<-ctx.Done()

	o.stopOnce.Do(func() { close(o.stopped) })
	wg.Wait()
	o.teardownAll()

	log.Info().Str("instance", o.instanceID).Msg("battle orchestrator stopped")
	return nil
}

const shutdownMessage = "battle cancelled: server shutting down"

func (o *Orchestrator) teardownAll() {
	for _, id := range o.rooms.IDs() {
		snap, err := o.rooms.Get(id)
		if err != nil {
			continue
		}
		if o.rooms.Remove(id) {
			for _, p := range snap.Players {
				o.notify(p, events.EventTypeError, id.String(), events.ErrorPayload{Message: shutdownMessage})
			}
		}
	}
}

// Stats is a point-in-time view of the service.
type Stats struct {
	ActiveRooms     int   `json:"active_rooms"`
	WaitingPlayers  int   `json:"waiting_players"`
	Judging         int   `json:"judging"`
	BattlesFinished int64 `json:"battles_finished"`
}

func (o *Orchestrator) Stats() Stats {
	o.inFlightMu.Lock()
	judging := len(o.inFlight)
	o.inFlightMu.Unlock()

	return Stats{
		ActiveRooms:     o.rooms.Len(),
		WaitingPlayers:  o.queue.Len(),
		Judging:         judging,
		BattlesFinished: o.finished.Load(),
	}
}

func (o *Orchestrator) notify(playerID string, eventType events.EventType, roomID string, payload interface{}) {
	ev, err := events.New(eventType, roomID, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	o.notifier.Notify(playerID, ev)
}

// publish is fire and forget: a failing event stream never affects a battle.
func (o *Orchestrator) publish(roomID uuid.UUID, eventType string, payload interface{}) {
	ev, err := outbox.NewEvent(roomID, eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to build domain event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.config.PublishTimeout)
	defer cancel()
	if err := o.publisher.Publish(ctx, ev); err != nil {
		log.Error().
			Err(err).
			Str("event_type", eventType).
			Str("room_id", roomID.String()).
			Msg("failed to publish domain event")
	}
}
