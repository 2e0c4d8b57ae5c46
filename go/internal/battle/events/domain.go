package events

import "time"

// Domain event types published to the battle event stream.
const (
	DomainBattleStarted  = "BattleStarted"
	DomainBattleFinished = "BattleFinished"
)

// BattleStartedPayload is the payload for a BattleStarted event
type BattleStartedPayload struct {
	RoomID      string    `json:"room_id"`
	Language    string    `json:"language"`
	Players     [2]string `json:"players"`
	TotalTests  int       `json:"total_tests"`
	DurationSec int       `json:"duration_sec"`
	StartedAt   time.Time `json:"started_at"`
}

// BattleFinishedPayload is the payload for a BattleFinished event
type BattleFinishedPayload struct {
	RoomID     string    `json:"room_id"`
	Language   string    `json:"language"`
	Players    [2]string `json:"players"`
	Scores     [2]int    `json:"scores"`
	TotalTests int       `json:"total_tests"`
	Winner     *string   `json:"winner"`
	Trigger    string    `json:"trigger"`
	FinishedAt time.Time `json:"finished_at"`
}
