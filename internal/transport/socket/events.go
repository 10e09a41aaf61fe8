package socket

import (
	"time"

	"github.com/clubhub-app/clubhub/backend/internal/model/chat"
)

// Inbound event names pushed by the server.
const (
	EventNewMessage      = "new-message"
	EventMessageUpdated  = "message-updated"
	EventMessageDeleted  = "message-deleted"
	EventReplyAdded      = "reply-added"
	EventReactionAdded   = "reaction-added"
	EventReactionRemoved = "reaction-removed"
	EventUserTyping      = "user-typing"
	EventUserJoinedChat  = "user-joined-chat"
	EventUserLeftChat    = "user-left-chat"
)

// Outbound event names emitted by the client.
const (
	EventJoinClub    = "join-club"
	EventLeaveClub   = "leave-club"
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// RoomPayload accompanies join/leave and typing start/stop emits.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// MessagePayload carries new-message and message-updated events.
type MessagePayload struct {
	RoomID  string       `json:"roomId"`
	Message chat.Message `json:"message"`
}

// MessageDeletedPayload carries message-deleted events.
type MessageDeletedPayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

// ReplyPayload carries reply-added events.
type ReplyPayload struct {
	RoomID    string     `json:"roomId"`
	MessageID string     `json:"messageId"`
	Reply     chat.Reply `json:"reply"`
}

// ReactionPayload carries reaction-added and reaction-removed events.
type ReactionPayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Emoji     string `json:"emoji"`
}

// TypingPayload carries user-typing events for other participants.
type TypingPayload struct {
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
	IsTyping      bool   `json:"isTyping"`
}

// ChatPresencePayload carries user-joined-chat and user-left-chat events.
type ChatPresencePayload struct {
	RoomID        string    `json:"roomId"`
	ParticipantID string    `json:"participantId"`
	Timestamp     time.Time `json:"timestamp"`
}
