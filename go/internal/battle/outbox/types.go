package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is one battle lifecycle fact handed to the event stream.
type Event struct {
	ID        uuid.UUID
	RoomID    uuid.UUID
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// EventPublisher delivers events downstream. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NewEvent marshals payload into an Event with a fresh id.
func NewEvent(roomID uuid.UUID, eventType string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New(),
		RoomID:    roomID,
		EventType: eventType,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}
