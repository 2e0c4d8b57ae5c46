package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/dsarena/go/internal/battle/events"
	"github.com/mcdev12/dsarena/go/internal/battle/room"
	"github.com/rs/zerolog/log"
)

// What fired judging for a room.
const (
	TriggerAllSubmitted = "all_submitted"
	TriggerTimeout      = "timeout"
)

type judgeJob struct {
	snap    room.Snapshot
	trigger string
}

// triggerJudging is safe to call from any number of goroutines: only the caller
// that wins Registry.BeginJudging queues the room.
func (o *Orchestrator) triggerJudging(roomID uuid.UUID, trigger string) {
	snap, err := o.rooms.BeginJudging(roomID)
	if err != nil {
		log.Debug().Err(err).Str("room_id", roomID.String()).Str("trigger", trigger).Msg("judging not started")
		return
	}

	o.inFlightMu.Lock()
	o.inFlight[roomID] = true
	o.inFlightMu.Unlock()

	select {
	case o.workCh <- judgeJob{snap: snap, trigger: trigger}:
		log.Debug().Str("room_id", roomID.String()).Str("trigger", trigger).Msg("queued room for judging")
	case <-o.stopped:
		o.finishInFlight(roomID)
		o.rooms.Remove(roomID)
	}
}

func (o *Orchestrator) finishInFlight(roomID uuid.UUID) {
	o.inFlightMu.Lock()
	delete(o.inFlight, roomID)
	o.inFlightMu.Unlock()
}

// worker judges rooms from the work channel
func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("instance", o.instanceID).Int("worker_id", workerID).Msg("worker shutting down")
			return
		case job := <-o.workCh:
			log.Info().
				Str("room_id", job.snap.ID.String()).
				Str("trigger", job.trigger).
				Int("worker_id", workerID).
				Msg("worker judging room")
			o.judgeRoom(ctx, job)
		}
	}
}

// judgeRoom scores both players in parallel and announces the result. The room
// is removed however judging ends; a score that never resolved counts as 0.
// Judging cut short by shutdown is reported as a cancelled battle, not a result.
func (o *Orchestrator) judgeRoom(ctx context.Context, job judgeJob) {
	snap := job.snap
	var scores [2]int

	defer func() {
		o.rooms.Remove(snap.ID)
		o.finishInFlight(snap.ID)
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("room_id", snap.ID.String()).Msg("judging panicked")
		}
		if ctx.Err() != nil {
			o.cancelBattle(snap)
			return
		}
		o.announce(snap, scores, job.trigger)
	}()

	var wg sync.WaitGroup
	for i, player := range snap.Players {
		code, ok := snap.Code(player)
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("room_id", snap.ID.String()).
						Str("player_id", player).
						Msg("judge panicked, scoring 0")
				}
			}()

			scores[i] = o.judge.Run(ctx, snap.Language, code, snap.Problem.Tests).Passed
		}()
	}
	wg.Wait()
}

func (o *Orchestrator) cancelBattle(snap room.Snapshot) {
	log.Warn().Str("room_id", snap.ID.String()).Msg("judging interrupted by shutdown")
	for _, p := range snap.Players {
		o.notify(p, events.EventTypeError, snap.ID.String(), events.ErrorPayload{Message: shutdownMessage})
	}
}

// Winner returns the player with the strictly greater score, or nil on a draw.
func Winner(players [2]string, scores [2]int) *string {
	switch {
	case scores[0] > scores[1]:
		return &players[0]
	case scores[1] > scores[0]:
		return &players[1]
	default:
		return nil
	}
}

func (o *Orchestrator) announce(snap room.Snapshot, scores [2]int, trigger string) {
	total := len(snap.Problem.Tests)
	winner := Winner(snap.Players, scores)
	roomID := snap.ID.String()

	for i, player := range snap.Players {
		o.notify(player, events.EventTypeBattleResult, roomID, events.BattleResultPayload{
			Winner:        winner,
			YourID:        player,
			YourScore:     scores[i],
			OpponentScore: scores[1-i],
			Total:         total,
		})
	}
	o.finished.Add(1)

	ev := log.Info().
		Str("room_id", roomID).
		Str("trigger", trigger).
		Ints("scores", scores[:]).
		Int("total", total)
	if winner != nil {
		ev = ev.Str("winner", *winner)
	}
	ev.Msg("battle finished")

	o.publish(snap.ID, events.DomainBattleFinished, events.BattleFinishedPayload{
		RoomID:     roomID,
		Language:   snap.Language,
		Players:    snap.Players,
		Scores:     scores,
		TotalTests: total,
		Winner:     winner,
		Trigger:    trigger,
		FinishedAt: o.clock.Now().UTC(),
	})
}
