package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/clubhub-app/clubhub/backend/internal/model/chat"
	"github.com/clubhub-app/clubhub/backend/internal/service/messages"
	"github.com/clubhub-app/clubhub/backend/internal/service/presence"
	"github.com/clubhub-app/clubhub/backend/internal/transport/socket"
)

var (
	ErrNotMember      = errors.New("not a member of this room")
	ErrNoActiveRoom   = errors.New("no active room")
	ErrEmptyMessage   = errors.New("message body is empty")
	ErrMessageTooLong = errors.New("message body exceeds 500 characters")
	ErrReplyTooLong   = errors.New("reply body exceeds 200 characters")
	ErrNotAuthor      = errors.New("message belongs to another user")
	ErrUnknownMessage = errors.New("message not found")
)

// State is the lifecycle of the one open room session.
type State string

const (
	StateClosed  State = "closed"
	StateJoining State = "joining"
	StateOpen    State = "open"
)

// Persistence is the REST collaborator the controller calls for durable
// operations. It never pushes events; those arrive through the transport.
type Persistence interface {
	FetchPage(ctx context.Context, roomID string) ([]chat.Message, error)
	FetchPageBefore(ctx context.Context, roomID, beforeID string) ([]chat.Message, error)
	Send(ctx context.Context, roomID, body string) (chat.Message, error)
	Edit(ctx context.Context, messageID, body string) (chat.Message, error)
	Delete(ctx context.Context, messageID string) error
	AddReply(ctx context.Context, messageID, body string) (chat.Reply, error)
	AddReaction(ctx context.Context, messageID, emoji string) error
	RemoveReaction(ctx context.Context, messageID, emoji string) error
}

// Membership answers the precondition gate for entering a room.
type Membership interface {
	IsMember(userID, roomID string) bool
}

// Identity supplies the signed-in user for author checks and outgoing
// message snapshots.
type Identity interface {
	CurrentUser() chat.Author
}

// Transport is the slice of the socket channel the controller consumes.
type Transport interface {
	JoinRoom(roomID string)
	LeaveRoom(roomID string)
	Subscribe(event string, handler socket.Handler) func()
	Emit(event string, payload interface{})
	IsConnected() bool
}

// Controller orchestrates one open chat view: it opens the room, wires user
// actions to optimistic store mutations plus network calls, funnels inbound
// socket events into the store and the typing tracker, and tears everything
// down on exit.
//
// In-flight requests are never cancelled on room switch; their resolutions
// are checked against the session epoch before touching state, so a stale
// confirmation cannot mutate another room's log.
type Controller struct {
	persistence Persistence
	membership  Membership
	identity    Identity
	transport   Transport

	store        *messages.Store
	tracker      *presence.Tracker
	roster       *presence.Roster
	typingWindow time.Duration

	mu        sync.Mutex
	state     State
	roomID    string
	joinedAt  time.Time
	epoch     uint64
	debouncer *presence.Debouncer
	unsubs    []func()
}

// NewController wires the collaborators together. A non-positive typingWindow
// falls back to the presence default.
func NewController(p Persistence, m Membership, id Identity, t Transport, typingWindow time.Duration) *Controller {
	if typingWindow <= 0 {
		typingWindow = presence.DefaultWindow
	}
	return &Controller{
		persistence:  p,
		membership:   m,
		identity:     id,
		transport:    t,
		store:        messages.NewStore(),
		tracker:      presence.NewTracker(2 * typingWindow),
		roster:       presence.NewRoster(),
		typingWindow: typingWindow,
		state:        StateClosed,
	}
}

// Run keeps the typing tracker's stale-entry sweep going until ctx is
// cancelled.
func (c *Controller) Run(ctx context.Context) {
	c.tracker.Run(ctx)
}

// State returns the current session lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session describes the active room attachment, if any.
func (c *Controller) Session() (chat.RoomSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return chat.RoomSession{}, false
	}
	return chat.RoomSession{RoomID: c.roomID, JoinedAt: c.joinedAt, Status: string(c.state)}, true
}

// Messages returns the ordered log snapshot for rendering.
func (c *Controller) Messages() []chat.Message {
	return c.store.View()
}

// TypingSummary returns the current typing indicator text.
func (c *Controller) TypingSummary() string {
	return c.tracker.Summary()
}

// ReactionSummary groups one message's reactions by emoji for display.
func (c *Controller) ReactionSummary(messageID string) []chat.ReactionCount {
	return c.store.UniqueReactionSummary(messageID)
}

// Participants returns the other users currently present in the room's chat.
func (c *Controller) Participants() []string {
	return c.roster.Participants()
}

// EnterRoom opens roomID: membership gate, history fetch, socket join,
// event subscriptions. Re-entering the already-open room is a no-op; entering
// a different room tears the previous session down first.
func (c *Controller) EnterRoom(ctx context.Context, roomID string) error {
	user := c.identity.CurrentUser()
	if !c.membership.IsMember(user.ID, roomID) {
		return ErrNotMember
	}

	c.mu.Lock()
	if c.state != StateClosed {
		if c.roomID == roomID {
			c.mu.Unlock()
			return nil
		}
		c.exitLocked()
	}
	c.state = StateJoining
	c.roomID = roomID
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	page, err := c.persistence.FetchPage(ctx, roomID)
	if err != nil {
		c.mu.Lock()
		if c.epoch == epoch {
			c.state = StateClosed
			c.roomID = ""
		}
		c.mu.Unlock()
		return fmt.Errorf("fetch room history: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		// The view moved on while the fetch was in flight.
		return nil
	}

	c.store.Load(roomID, page)
	c.tracker.Reset()
	c.roster.Reset()
	c.transport.JoinRoom(roomID)
	c.subscribeLocked(roomID, epoch, user.ID)
	c.debouncer = presence.NewDebouncer(c.transport, roomID, c.typingWindow)
	c.joinedAt = time.Now()

	if c.transport.IsConnected() {
		c.state = StateOpen
	} else {
		// Degraded: history is visible but live delivery waits for the
		// transport to come back.
		log.Printf("[session] room %s joined without live transport", roomID)
	}
	return nil
}

// ExitRoom tears the session down: unsubscribe, leave the socket room,
// discard the log, withdraw any typing announcement. Safe to call when
// already closed.
func (c *Controller) ExitRoom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.exitLocked()
}

func (c *Controller) exitLocked() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil

	if c.debouncer != nil {
		c.debouncer.StopNow()
		c.debouncer = nil
	}

	c.transport.LeaveRoom(c.roomID)
	c.store.Reset()
	c.tracker.Reset()
	c.roster.Reset()
	c.state = StateClosed
	c.roomID = ""
	c.epoch++
}

// SendMessage validates the draft locally, appends it optimistically and
// issues the network send. Success swaps the pending entry for the server's
// message; failure rolls it back and surfaces a retryable error.
func (c *Controller) SendMessage(ctx context.Context, body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return ErrEmptyMessage
	}
	if len([]rune(trimmed)) > chat.MaxBodyLength {
		return ErrMessageTooLong
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrNoActiveRoom
	}
	roomID := c.roomID
	epoch := c.epoch
	tempID := c.store.AppendOptimistic(chat.Message{
		Author: c.identity.CurrentUser(),
		Body:   trimmed,
		Kind:   chat.KindText,
	})
	c.mu.Unlock()

	server, err := c.persistence.Send(ctx, roomID, trimmed)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		// Resolved after a room switch; the optimistic entry is gone with
		// the old log.
		return nil
	}
	if err != nil {
		c.store.Fail(tempID)
		return fmt.Errorf("send message: %w", err)
	}
	c.store.Confirm(tempID, server)
	if c.debouncer != nil {
		c.debouncer.StopNow()
	}
	return nil
}

// StartEditing returns the edit buffer prefill for a message the current
// user authored. Foreign messages are rejected before any network call.
func (c *Controller) StartEditing(messageID string) (string, error) {
	msg, ok := c.store.Find(messageID)
	if !ok {
		return "", ErrUnknownMessage
	}
	if msg.Author.ID != c.identity.CurrentUser().ID {
		return "", ErrNotAuthor
	}
	return msg.Body, nil
}

// SaveEdit persists an edit and, on success, applies the server's message
// through the same idempotent path a remote echo would take.
func (c *Controller) SaveEdit(ctx context.Context, messageID, body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return ErrEmptyMessage
	}
	if len([]rune(trimmed)) > chat.MaxBodyLength {
		return ErrMessageTooLong
	}

	if _, err := c.StartEditing(messageID); err != nil {
		return err
	}

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	server, err := c.persistence.Edit(ctx, messageID, trimmed)
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return nil
	}
	c.store.ApplyRemoteUpdate(server)
	return nil
}

// LoadOlderMessages fetches the page preceding the oldest loaded message and
// prepends it, for scroll-back. It returns how many messages were added; zero
// with a nil error means there was nothing to page from yet.
func (c *Controller) LoadOlderMessages(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return 0, ErrNoActiveRoom
	}
	roomID := c.roomID
	epoch := c.epoch
	c.mu.Unlock()

	beforeID, ok := c.store.OldestConfirmedID()
	if !ok {
		return 0, nil
	}

	page, err := c.persistence.FetchPageBefore(ctx, roomID, beforeID)
	if err != nil {
		return 0, fmt.Errorf("fetch older messages: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return 0, nil
	}
	return c.store.PrependPage(page), nil
}

// ReplyToMessage validates and persists a threaded reply. The server's copy
// is applied through the same idempotent path its broadcast echo takes, so
// whichever arrives first wins and the other is absorbed.
func (c *Controller) ReplyToMessage(ctx context.Context, messageID, body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return ErrEmptyMessage
	}
	if len([]rune(trimmed)) > chat.MaxReplyLength {
		return ErrReplyTooLong
	}
	if _, ok := c.store.Find(messageID); !ok {
		return ErrUnknownMessage
	}

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	reply, err := c.persistence.AddReply(ctx, messageID, trimmed)
	if err != nil {
		return fmt.Errorf("add reply: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return nil
	}
	c.store.ApplyRemoteReply(messageID, reply)
	return nil
}

// DeleteMessage removes a message the current user authored. Deletion is not
// optimistic: the entry disappears only after the server acknowledges.
func (c *Controller) DeleteMessage(ctx context.Context, messageID string) error {
	msg, ok := c.store.Find(messageID)
	if !ok {
		return ErrUnknownMessage
	}
	if msg.Author.ID != c.identity.CurrentUser().ID {
		return ErrNotAuthor
	}

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	if err := c.persistence.Delete(ctx, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return nil
	}
	c.store.ApplyRemoteDelete(messageID)
	return nil
}

// ToggleReaction flips the user's reaction optimistically and fires the
// matching network call. Reaction failures are logged, never rolled back.
func (c *Controller) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	user := c.identity.CurrentUser()
	held, ok := c.store.ToggleReaction(messageID, emoji, user.ID)
	if !ok {
		return ErrUnknownMessage
	}

	var err error
	if held {
		err = c.persistence.AddReaction(ctx, messageID, emoji)
	} else {
		err = c.persistence.RemoveReaction(ctx, messageID, emoji)
	}
	if err != nil {
		log.Printf("[session] reaction %s on %s failed: %v", emoji, messageID, err)
	}
	return nil
}

// NotifyTypingActivity records one local keystroke for the typing announcer.
func (c *Controller) NotifyTypingActivity() {
	c.mu.Lock()
	d := c.debouncer
	c.mu.Unlock()
	if d != nil {
		d.NotifyActivity()
	}
}

// StopTyping withdraws the typing announcement immediately, used on input
// focus loss.
func (c *Controller) StopTyping() {
	c.mu.Lock()
	d := c.debouncer
	c.mu.Unlock()
	if d != nil {
		d.StopNow()
	}
}

// subscribeLocked registers the inbound event handlers for one session.
// Every handler checks the room and the session epoch, so events for other
// rooms and events outliving the session are dropped.
func (c *Controller) subscribeLocked(roomID string, epoch uint64, selfID string) {
	live := func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.epoch == epoch
	}

	c.unsubs = append(c.unsubs,
		c.transport.Subscribe(socket.EventNewMessage, func(raw json.RawMessage) {
			var p socket.MessagePayload
			if err := json.Unmarshal(raw, &p); err != nil || p.RoomID != roomID || !live() {
				return
			}
			c.store.ApplyRemoteCreate(p.Message)
		}),
		c.transport.Subscribe(socket.EventMessageUpdated, func(raw json.RawMessage) {
			var p socket.MessagePayload
			if err := json.Unmarshal(raw, &p); err != nil || p.RoomID != roomID || !live() {
				return
			}
			c.store.ApplyRemoteUpdate(p.Message)
		}),
		c.transport.Subscribe(socket.EventMessageDeleted, func(raw json.RawMessage) {
			var p socket.MessageDeletedPayload
			if err := json.Unmarshal(raw, &p); err != nil || p.RoomID != roomID || !live() {
				return
			}
			c.store.ApplyRemoteDelete(p.MessageID)
		}),
		c.transport.Subscribe(socket.EventReplyAdded, func(raw json.RawMessage) {
			var p socket.ReplyPayload
			if err := json.Unmarshal(raw, &p); err != nil || p.RoomID != roomID || !live() {
				return
			}
			c.store.ApplyRemoteReply(p.MessageID, p.Reply)
		}),
		c.transport.Subscribe(socket.EventReactionAdded, func(raw json.RawMessage) {
			var p socket.ReactionPayload
			if err := json.Unmarshal(raw, &p); err != nil || p.RoomID != roomID || !live() {
				return
			}
			c.store.ApplyReactionChange(p.MessageID, p.UserID, p.Emoji, true)
		}),
		c.transport.Subscribe(socket.EventReactionRemoved, func(raw json.RawMessage) {
			var p socket.ReactionPayload
			if err := json.Unmarshal(raw, &p); err != nil || p.RoomID != roomID || !live() {
				return
			}
			c.store.ApplyReactionChange(p.MessageID, p.UserID, p.Emoji, false)
		}),
		c.transport.Subscribe(socket.EventUserTyping, func(raw json.RawMessage) {
			var p socket.TypingPayload
			if err := json.Unmarshal(raw, &p); err != nil || p.RoomID != roomID || !live() {
				return
			}
			if p.ParticipantID == selfID {
				return
			}
			if p.IsTyping {
				c.tracker.Start(p.ParticipantID)
			} else {
				c.tracker.Stop(p.ParticipantID)
			}
		}),
		c.transport.Subscribe(socket.EventUserJoinedChat, func(raw json.RawMessage) {
			var p socket.ChatPresencePayload
			if err := json.Unmarshal(raw, &p); err != nil || p.RoomID != roomID || !live() {
				return
			}
			if p.ParticipantID == selfID {
				return
			}
			c.roster.Join(p.ParticipantID)
		}),
		c.transport.Subscribe(socket.EventUserLeftChat, func(raw json.RawMessage) {
			var p socket.ChatPresencePayload
			if err := json.Unmarshal(raw, &p); err != nil || p.RoomID != roomID || !live() {
				return
			}
			c.roster.Leave(p.ParticipantID)
			// A participant leaving the chat is no longer typing in it.
			c.tracker.Stop(p.ParticipantID)
		}),
	)
}
