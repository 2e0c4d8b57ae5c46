package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the envelope for every message exchanged with battle clients.
type Event struct {
	Type      EventType       `json:"type"`
	Room      string          `json:"room,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventType represents the type of battle event
type EventType string

// Client → server
const (
	EventTypeJoinBattle EventType = "join_battle"
	EventTypeSubmitCode EventType = "submit_code"
	EventTypeLeaveQueue EventType = "leave_queue"
)

// Server → client
const (
	EventTypeConnected         EventType = "connected"
	EventTypeWaiting           EventType = "waiting"
	EventTypeBattleStart       EventType = "battle_start"
	EventTypeTimerUpdate       EventType = "timer_update"
	EventTypeOpponentSubmitted EventType = "opponent_submitted"
	EventTypeBattleResult      EventType = "battle_result"
	EventTypeError             EventType = "error"
)

// JoinBattlePayload is sent by a client that wants to be matched.
type JoinBattlePayload struct {
	Language string `json:"language"`
}

// SubmitCodePayload carries a player's code for a room.
type SubmitCodePayload struct {
	Room string `json:"room"`
	Code string `json:"code"`
}

type ConnectedPayload struct {
	YourID string `json:"your_id"`
}

type WaitingPayload struct {
	Language string `json:"language"`
}

// BattleStartPayload is sent to both players once the problem is ready and the clock runs.
type BattleStartPayload struct {
	Room     string `json:"room"`
	Language string `json:"language"`
	Question string `json:"question"`
	Time     int    `json:"time"`
	Opponent string `json:"opponent"`
}

type TimerUpdatePayload struct {
	Time int `json:"time"`
}

// BattleResultPayload is tailored per participant; Winner is nil on a draw.
type BattleResultPayload struct {
	Winner        *string `json:"winner"`
	YourID        string  `json:"your_id"`
	YourScore     int     `json:"your_score"`
	OpponentScore int     `json:"opponent_score"`
	Total         int     `json:"total"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// New builds an envelope around payload. A nil payload produces an event without data.
func New(eventType EventType, room string, payload interface{}) (*Event, error) {
	event := &Event{
		Type:      eventType,
		Room:      room,
		Timestamp: time.Now().UTC(),
	}
	if payload == nil {
		return event, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	event.Data = data
	return event, nil
}

// MustNew is New for payload types that always marshal.
func MustNew(eventType EventType, room string, payload interface{}) *Event {
	event, err := New(eventType, room, payload)
	if err != nil {
		panic(err)
	}
	return event
}

// ParseEventPayload parses event data into the appropriate payload struct
func ParseEventPayload(event *Event) (interface{}, error) {
	switch event.Type {
	case EventTypeJoinBattle:
		var payload JoinBattlePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeSubmitCode:
		var payload SubmitCodePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		// the room may travel in the envelope instead of the payload
		if payload.Room == "" {
			payload.Room = event.Room
		}
		return payload, nil

	case EventTypeTimerUpdate:
		var payload TimerUpdatePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeBattleStart:
		var payload BattleStartPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeBattleResult:
		var payload BattleResultPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeLeaveQueue, EventTypeOpponentSubmitted:
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}
}
