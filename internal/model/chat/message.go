package chat

import "time"

// Kind classifies how a message entered the room.
type Kind string

const (
	KindText         Kind = "text"
	KindSystem       Kind = "system"
	KindEvent        Kind = "event"
	KindAnnouncement Kind = "announcement"
)

// DeliveryState tracks a message's local reconciliation status. It is never
// sent to the server; pending entries are replaced or removed once the
// originating request resolves.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

// MaxBodyLength is enforced at submission time, before any network call.
const MaxBodyLength = 500

// MaxReplyLength caps a threaded reply's body, mirroring the server's
// validation.
const MaxReplyLength = 200

// Author is the denormalized author snapshot taken at send time.
type Author struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Reaction is one (user, emoji) pair on a message. A user holds at most one
// reaction per emoji, but may hold several distinct emoji on the same message.
type Reaction struct {
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// Reply is one threaded response under a message. Replies are append-only;
// they cannot be edited or deleted once posted.
type Reply struct {
	ID        string    `json:"id"`
	Author    Author    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReadReceipt records that a user has fetched the message. Receipts are
// written server-side when history is paged; the engine only carries them.
type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Message is one entry in a room's ordered log.
type Message struct {
	ID            string        `json:"id"`
	RoomID        string        `json:"roomId"`
	Author        Author        `json:"author"`
	Body          string        `json:"body"`
	Kind          Kind          `json:"kind"`
	CreatedAt     time.Time     `json:"createdAt"`
	EditedAt      *time.Time    `json:"editedAt,omitempty"`
	Reactions     []Reaction    `json:"reactions,omitempty"`
	Replies       []Reply       `json:"replies,omitempty"`
	ReadBy        []ReadReceipt `json:"readBy,omitempty"`
	DeliveryState DeliveryState `json:"deliveryState,omitempty"`
}

// HasReaction reports whether userID already holds emoji on the message.
func (m *Message) HasReaction(userID, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// ReactionCount is one row of the per-emoji display summary.
type ReactionCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}
