package room

import "errors"

var (
	// ErrRoomNotFound is returned for events that reference a torn-down or unknown room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrPlayerInRoom is returned when a player already belongs to an active room.
	ErrPlayerInRoom = errors.New("player already in an active room")
	// ErrNotParticipant is returned when a player acts on a room it does not belong to.
	ErrNotParticipant = errors.New("player is not a participant of the room")
	// ErrAlreadyJudging is returned once judging has begun; later triggers are no-ops.
	ErrAlreadyJudging = errors.New("room already judging")
	// ErrInvalidTransition is returned for lifecycle moves the state machine forbids.
	ErrInvalidTransition = errors.New("invalid room state transition")
)
