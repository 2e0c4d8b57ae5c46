package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/dsarena/go/internal/battle/events"
	"github.com/mcdev12/dsarena/go/internal/battle/room"
	"github.com/rs/zerolog/log"
)

// Submit records playerID's code for a room, overwriting any earlier
// submission. Events for unknown rooms, non-participants and rooms already
// being judged are dropped. The second distinct submission triggers judging.
func (o *Orchestrator) Submit(ctx context.Context, roomID, playerID, code string) error {
	if o.config.MaxCodeBytes > 0 && len(code) > o.config.MaxCodeBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrCodeTooLarge, len(code), o.config.MaxCodeBytes)
	}

	id, err := uuid.Parse(roomID)
	if err != nil {
		log.Debug().Str("room", roomID).Str("player_id", playerID).Msg("submission for malformed room id dropped")
		return nil
	}

	count, err := o.rooms.Submit(id, playerID, code)
	switch {
	case errors.Is(err, room.ErrRoomNotFound),
		errors.Is(err, room.ErrNotParticipant),
		errors.Is(err, room.ErrAlreadyJudging):
		log.Debug().Err(err).Str("room_id", roomID).Str("player_id", playerID).Msg("submission dropped")
		return nil
	case err != nil:
		return fmt.Errorf("submit to room %s: %w", roomID, err)
	}

	log.Info().
		Str("room_id", roomID).
		Str("player_id", playerID).
		Int("bytes", len(code)).
		Int("submissions", count).
		Msg("code submitted")

	if snap, err := o.rooms.Get(id); err == nil {
		for _, p := range snap.Players {
			if p != playerID {
				o.notify(p, events.EventTypeOpponentSubmitted, roomID, nil)
			}
		}
	}

	if count == 2 {
		o.triggerJudging(id, TriggerAllSubmitted)
	}
	return nil
}
