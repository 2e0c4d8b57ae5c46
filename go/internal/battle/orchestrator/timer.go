package orchestrator

import (
	"github.com/google/uuid"
	"github.com/mcdev12/dsarena/go/internal/battle/events"
	"github.com/rs/zerolog/log"
)

// runTimer counts a room down one tick at a time. It exits when the room is
// removed, when judging has begun, or after triggering judging at zero.
func (o *Orchestrator) runTimer(roomID uuid.UUID, players [2]string, done <-chan struct{}) {
	timer := o.clock.NewTimer(o.config.TickInterval)
	defer timer.Stop()

	id := roomID.String()
	for {
		select {
		case <-done:
			log.Debug().Str("room_id", id).Msg("countdown cancelled")
			return
		case <-timer.Chan():
		}

		remaining, err := o.rooms.Tick(roomID)
		if err != nil {
			log.Debug().Err(err).Str("room_id", id).Msg("countdown stopped")
			return
		}
		if remaining < 0 {
			remaining = 0
		}

		for _, p := range players {
			o.notify(p, events.EventTypeTimerUpdate, id, events.TimerUpdatePayload{Time: remaining})
		}

		if remaining == 0 {
			log.Info().Str("room_id", id).Msg("countdown expired")
			o.triggerJudging(roomID, TriggerTimeout)
			return
		}
		timer.Reset(o.config.TickInterval)
	}
}
