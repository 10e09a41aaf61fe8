package chat

import "time"

// RoomSession captures the one live attachment to a room's chat. Exactly one
// exists per open chat view; it is owned by the session controller and
// discarded on teardown or room switch.
type RoomSession struct {
	RoomID   string    `json:"roomId"`
	JoinedAt time.Time `json:"joinedAt"`
	Status   string    `json:"status"`
}

// TypingSignal is the transient "currently typing" presence of one
// participant. It is never persisted; entries expire unless refreshed.
type TypingSignal struct {
	RoomID        string    `json:"roomId"`
	ParticipantID string    `json:"participantId"`
	ExpiresAt     time.Time `json:"expiresAt"`
}
