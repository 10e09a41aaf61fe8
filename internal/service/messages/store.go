package messages

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clubhub-app/clubhub/backend/internal/model/chat"
)

// Store is the ordered, deduplicated, mutable log of messages for the
// currently open room. It applies inbound socket events and local optimistic
// operations, producing one consistent view; every operation is synchronous
// and touches no network.
//
// All apply operations are idempotent by message id, so replayed or
// out-of-order events (a locally confirmed send arriving again as a
// broadcast, an edit for an evicted page) settle as no-ops instead of
// corrupting the log.
type Store struct {
	mu     sync.RWMutex
	roomID string
	log    []chat.Message
}

// NewStore returns an empty store. Load must run before incremental
// operations are meaningful.
func NewStore() *Store {
	return &Store{}
}

// Load replaces the log wholesale with the fetched page for roomID. Entries
// arriving from the server are confirmed by definition.
func (s *Store) Load(roomID string, msgs []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roomID = roomID
	s.log = make([]chat.Message, len(msgs))
	copy(s.log, msgs)
	for i := range s.log {
		s.log[i].DeliveryState = chat.DeliveryConfirmed
	}
}

// Reset discards the log, used on room switch and teardown.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = ""
	s.log = nil
}

// RoomID returns the room the log currently belongs to.
func (s *Store) RoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

// View returns a snapshot of the ordered log.
func (s *Store) View() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Message, len(s.log))
	copy(out, s.log)
	return out
}

// Find returns the message with the given id, if present.
func (s *Store) Find(id string) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.log[i], true
	}
	return chat.Message{}, false
}

// AppendOptimistic inserts draft at the end of the log with a temporary
// client-generated id and pending delivery state, returning that id for later
// reconciliation.
func (s *Store) AppendOptimistic(draft chat.Message) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	tempID := "tmp-" + uuid.NewString()
	draft.ID = tempID
	draft.RoomID = s.roomID
	draft.DeliveryState = chat.DeliveryPending
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now()
	}
	s.log = append(s.log, draft)
	return tempID
}

// Confirm reconciles the optimistic entry tempID with the server's message.
// The pending entry is replaced in place, keeping its log position. When the
// server id is already present (its broadcast beat the REST response) the
// pending entry is simply dropped; when neither exists (a room reload raced
// the send) the confirmed message is appended rather than lost.
func (s *Store) Confirm(tempID string, server chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	server.DeliveryState = chat.DeliveryConfirmed

	if s.indexOf(server.ID) >= 0 {
		if i := s.indexOf(tempID); i >= 0 {
			s.log = append(s.log[:i], s.log[i+1:]...)
		}
		return
	}

	if i := s.indexOf(tempID); i >= 0 {
		s.log[i] = server
		return
	}
	s.log = append(s.log, server)
}

// Fail removes the pending entry tempID after its send failed permanently.
// The caller decides whether to resubmit.
func (s *Store) Fail(tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(tempID); i >= 0 {
		s.log = append(s.log[:i], s.log[i+1:]...)
	}
}

// ApplyRemoteCreate appends a server-originated message. A message whose id
// is already present is a replay, and a message for another room (an event
// racing a room switch) leaves the log untouched.
func (s *Store) ApplyRemoteCreate(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.RoomID != s.roomID || s.indexOf(msg.ID) >= 0 {
		return
	}
	msg.DeliveryState = chat.DeliveryConfirmed
	s.log = append(s.log, msg)
}

// ApplyRemoteUpdate replaces the message by id, preserving its position.
// Unknown ids (edits for evicted history) and other rooms' messages are
// ignored.
func (s *Store) ApplyRemoteUpdate(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.RoomID != s.roomID {
		return
	}
	if i := s.indexOf(msg.ID); i >= 0 {
		msg.DeliveryState = chat.DeliveryConfirmed
		s.log[i] = msg
	}
}

// ApplyRemoteDelete removes the message by id. Unknown ids are ignored.
func (s *Store) ApplyRemoteDelete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		s.log = append(s.log[:i], s.log[i+1:]...)
	}
}

// ApplyRemoteReply appends a reply under its message. Replayed replies (same
// reply id) and replies for unknown messages are ignored, so the REST
// response and the broadcast echo of one reply settle as a single entry.
func (s *Store) ApplyRemoteReply(messageID string, reply chat.Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(messageID)
	if i < 0 {
		return
	}
	for _, r := range s.log[i].Replies {
		if r.ID == reply.ID {
			return
		}
	}

	rs := s.log[i].Replies
	out := make([]chat.Reply, len(rs), len(rs)+1)
	copy(out, rs)
	s.log[i].Replies = append(out, reply)
}

// PrependPage inserts an older history page ahead of the current log for
// scroll-back, skipping ids already present and other rooms' messages. It
// returns how many entries were added.
func (s *Store) PrependPage(msgs []chat.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.RoomID != s.roomID || s.indexOf(m.ID) >= 0 {
			continue
		}
		m.DeliveryState = chat.DeliveryConfirmed
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return 0
	}
	s.log = append(fresh, s.log...)
	return len(fresh)
}

// OldestConfirmedID returns the id of the oldest server-confirmed entry, the
// cursor for paging older history. Pending entries carry temporary ids the
// server would not recognize.
func (s *Store) OldestConfirmedID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.log {
		if s.log[i].DeliveryState == chat.DeliveryConfirmed {
			return s.log[i].ID, true
		}
	}
	return "", false
}

// ToggleReaction flips the acting user's (emoji) reaction on a message:
// removed when held, added otherwise. Toggling twice restores the original
// state. It reports whether the reaction is held after the call and whether
// the message was found.
func (s *Store) ToggleReaction(messageID, emoji, actingUserID string) (held bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(messageID)
	if i < 0 {
		return false, false
	}

	if s.log[i].HasReaction(actingUserID, emoji) {
		s.removeReactionLocked(i, actingUserID, emoji)
		return false, true
	}
	s.addReactionLocked(i, actingUserID, emoji)
	return true, true
}

// ApplyReactionChange absorbs a reaction-added or reaction-removed broadcast.
// Unlike ToggleReaction it is idempotent: replaying the echo of a local
// toggle yields one net change, not two.
func (s *Store) ApplyReactionChange(messageID, userID, emoji string, added bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(messageID)
	if i < 0 {
		return
	}

	if added {
		if !s.log[i].HasReaction(userID, emoji) {
			s.addReactionLocked(i, userID, emoji)
		}
		return
	}
	s.removeReactionLocked(i, userID, emoji)
}

// UniqueReactionSummary groups a message's reactions by emoji for display,
// ordered by first occurrence of each emoji.
func (s *Store) UniqueReactionSummary(messageID string) []chat.ReactionCount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(messageID)
	if i < 0 {
		return nil
	}

	var summary []chat.ReactionCount
	seen := make(map[string]int)
	for _, r := range s.log[i].Reactions {
		if pos, ok := seen[r.Emoji]; ok {
			summary[pos].Count++
			continue
		}
		seen[r.Emoji] = len(summary)
		summary = append(summary, chat.ReactionCount{Emoji: r.Emoji, Count: 1})
	}
	return summary
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.log {
		if s.log[i].ID == id {
			return i
		}
	}
	return -1
}

// Reaction mutations copy the slice so snapshots handed out by View stay
// stable.
func (s *Store) addReactionLocked(i int, userID, emoji string) {
	rs := s.log[i].Reactions
	out := make([]chat.Reaction, len(rs), len(rs)+1)
	copy(out, rs)
	s.log[i].Reactions = append(out, chat.Reaction{
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now(),
	})
}

func (s *Store) removeReactionLocked(i int, userID, emoji string) {
	rs := s.log[i].Reactions
	kept := make([]chat.Reaction, 0, len(rs))
	for _, r := range rs {
		if r.UserID == userID && r.Emoji == emoji {
			continue
		}
		kept = append(kept, r)
	}
	s.log[i].Reactions = kept
}
