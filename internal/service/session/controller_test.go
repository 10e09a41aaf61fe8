package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clubhub-app/clubhub/backend/internal/model/chat"
	"github.com/clubhub-app/clubhub/backend/internal/model/member"
	"github.com/clubhub-app/clubhub/backend/internal/service/session"
	"github.com/clubhub-app/clubhub/backend/internal/transport/socket"
)

type fakePersistence struct {
	mu         sync.Mutex
	page       []chat.Message
	olderPage  []chat.Message
	fetchErr   error
	sendResp   chat.Message
	sendErr    error
	sendGate   chan struct{}
	editResp   chat.Message
	editErr    error
	deleteErr  error
	replyResp  chat.Reply
	replyErr   error
	reactErr   error
	lastBefore string
	calls      []string
}

func (f *fakePersistence) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakePersistence) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakePersistence) FetchPage(ctx context.Context, roomID string) ([]chat.Message, error) {
	f.record("fetch")
	return f.page, f.fetchErr
}

func (f *fakePersistence) FetchPageBefore(ctx context.Context, roomID, beforeID string) ([]chat.Message, error) {
	f.record("fetchBefore")
	f.mu.Lock()
	f.lastBefore = beforeID
	f.mu.Unlock()
	return f.olderPage, f.fetchErr
}

func (f *fakePersistence) Send(ctx context.Context, roomID, body string) (chat.Message, error) {
	f.record("send")
	f.mu.Lock()
	gate := f.sendGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.sendResp, f.sendErr
}

func (f *fakePersistence) Edit(ctx context.Context, messageID, body string) (chat.Message, error) {
	f.record("edit")
	return f.editResp, f.editErr
}

func (f *fakePersistence) Delete(ctx context.Context, messageID string) error {
	f.record("delete")
	return f.deleteErr
}

func (f *fakePersistence) AddReply(ctx context.Context, messageID, body string) (chat.Reply, error) {
	f.record("reply")
	return f.replyResp, f.replyErr
}

func (f *fakePersistence) AddReaction(ctx context.Context, messageID, emoji string) error {
	f.record("addReaction")
	return f.reactErr
}

func (f *fakePersistence) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	f.record("removeReaction")
	return f.reactErr
}

type fakeSub struct {
	id      int
	handler socket.Handler
}

type fakeTransport struct {
	mu     sync.Mutex
	joins  []string
	leaves []string
	emits  []string
	subs   map[string][]fakeSub
	nextID int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string][]fakeSub)}
}

func (f *fakeTransport) JoinRoom(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, roomID)
}

func (f *fakeTransport) LeaveRoom(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, roomID)
}

func (f *fakeTransport) Subscribe(event string, handler socket.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.subs[event] = append(f.subs[event], fakeSub{id: id, handler: handler})
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		kept := f.subs[event][:0]
		for _, s := range f.subs[event] {
			if s.id != id {
				kept = append(kept, s)
			}
		}
		f.subs[event] = kept
	}
}

func (f *fakeTransport) Emit(event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = append(f.emits, event)
}

func (f *fakeTransport) IsConnected() bool { return true }

// push simulates one inbound server event.
func (f *fakeTransport) push(t *testing.T, event string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	f.mu.Lock()
	handlers := append([]fakeSub(nil), f.subs[event]...)
	f.mu.Unlock()
	for _, s := range handlers {
		s.handler(raw)
	}
}

func (f *fakeTransport) subCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, subs := range f.subs {
		n += len(subs)
	}
	return n
}

func (f *fakeTransport) emitted(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.emits {
		if e == event {
			n++
		}
	}
	return n
}

func serverMessage(id, authorID, body string) chat.Message {
	return chat.Message{
		ID:     id,
		RoomID: "club-1",
		Author: chat.Author{ID: authorID, Name: "Member " + authorID},
		Body:   body,
		Kind:   chat.KindText,
	}
}

func setup(p *fakePersistence, rooms ...string) (*session.Controller, *fakeTransport) {
	memberships := make([]member.Membership, 0, len(rooms))
	for _, room := range rooms {
		memberships = append(memberships, member.Membership{UserID: "u1", RoomID: room})
	}
	identity := member.NewStaticIdentity(member.Profile{ID: "u1", Name: "Ada Lovelace"})
	transport := newFakeTransport()
	ctrl := session.NewController(p, member.NewMemoryStore(memberships), identity, transport, 20*time.Millisecond)
	return ctrl, transport
}

func TestEnterRoomNonMemberRejected(t *testing.T) {
	p := &fakePersistence{}
	ctrl, _ := setup(p) // no memberships

	err := ctrl.EnterRoom(context.Background(), "club-1")
	if !errors.Is(err, session.ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if p.callCount("fetch") != 0 {
		t.Fatal("non-member entry must not touch the network")
	}
	if ctrl.State() != session.StateClosed {
		t.Fatalf("expected closed state, got %s", ctrl.State())
	}
}

func TestEnterRoomOpensSession(t *testing.T) {
	p := &fakePersistence{page: []chat.Message{
		serverMessage("m1", "u2", "welcome"),
		serverMessage("m2", "u1", "thanks"),
	}}
	ctrl, transport := setup(p, "club-1")

	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	if ctrl.State() != session.StateOpen {
		t.Fatalf("expected open state, got %s", ctrl.State())
	}
	if got := ctrl.Messages(); len(got) != 2 {
		t.Fatalf("expected 2 loaded messages, got %d", len(got))
	}
	if len(transport.joins) != 1 || transport.joins[0] != "club-1" {
		t.Fatalf("expected join of club-1, got %v", transport.joins)
	}
	if transport.subCount() != 9 {
		t.Fatalf("expected 9 event subscriptions, got %d", transport.subCount())
	}
}

func TestEnterRoomFetchFailure(t *testing.T) {
	p := &fakePersistence{fetchErr: errors.New("backend down")}
	ctrl, _ := setup(p, "club-1")

	if err := ctrl.EnterRoom(context.Background(), "club-1"); err == nil {
		t.Fatal("expected fetch error to surface")
	}
	if ctrl.State() != session.StateClosed {
		t.Fatalf("expected closed state after failed enter, got %s", ctrl.State())
	}
}

func TestReenteringSameRoomIsNoop(t *testing.T) {
	p := &fakePersistence{}
	ctrl, _ := setup(p, "club-1")

	ctx := context.Background()
	if err := ctrl.EnterRoom(ctx, "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := ctrl.EnterRoom(ctx, "club-1"); err != nil {
		t.Fatalf("re-enter: %v", err)
	}

	if p.callCount("fetch") != 1 {
		t.Fatalf("expected 1 fetch, got %d", p.callCount("fetch"))
	}
}

func TestSendMessageValidation(t *testing.T) {
	p := &fakePersistence{}
	ctrl, _ := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	tests := []struct {
		name string
		body string
		want error
	}{
		{"empty", "", session.ErrEmptyMessage},
		{"whitespace only", "   \n\t ", session.ErrEmptyMessage},
		{"too long", strings.Repeat("a", 501), session.ErrMessageTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ctrl.SendMessage(context.Background(), tt.body); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if p.callCount("send") != 0 {
		t.Fatal("invalid drafts must not reach the network")
	}
}

func TestSendMessageConfirmsOptimisticEntry(t *testing.T) {
	p := &fakePersistence{sendResp: serverMessage("m1", "u1", "hello")}
	ctrl, _ := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	if err := ctrl.SendMessage(context.Background(), "  hello  "); err != nil {
		t.Fatalf("send: %v", err)
	}

	got := ctrl.Messages()
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 message, got %d", len(got))
	}
	if got[0].ID != "m1" || got[0].Body != "hello" {
		t.Fatalf("unexpected confirmed message: %+v", got[0])
	}
	if got[0].DeliveryState != chat.DeliveryConfirmed {
		t.Fatalf("expected confirmed state, got %s", got[0].DeliveryState)
	}
}

func TestSendMessageFailureRollsBack(t *testing.T) {
	p := &fakePersistence{sendErr: errors.New("timeout")}
	ctrl, _ := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	if err := ctrl.SendMessage(context.Background(), "hello"); err == nil {
		t.Fatal("expected send failure to surface")
	}
	if got := ctrl.Messages(); len(got) != 0 {
		t.Fatalf("expected optimistic entry rolled back, got %v", got)
	}
}

func TestSendMessageWithoutRoom(t *testing.T) {
	p := &fakePersistence{}
	ctrl, _ := setup(p, "club-1")

	if err := ctrl.SendMessage(context.Background(), "hello"); !errors.Is(err, session.ErrNoActiveRoom) {
		t.Fatalf("expected ErrNoActiveRoom, got %v", err)
	}
}

func TestRemoteEventsFlowIntoStore(t *testing.T) {
	p := &fakePersistence{}
	ctrl, transport := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	transport.push(t, socket.EventNewMessage, socket.MessagePayload{
		RoomID:  "club-1",
		Message: serverMessage("m1", "u2", "hi there"),
	})
	// An event for some other room must be ignored.
	transport.push(t, socket.EventNewMessage, socket.MessagePayload{
		RoomID:  "club-2",
		Message: serverMessage("x1", "u2", "wrong room"),
	})

	got := ctrl.Messages()
	if len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("expected only m1, got %v", got)
	}

	transport.push(t, socket.EventMessageUpdated, socket.MessagePayload{
		RoomID:  "club-1",
		Message: serverMessage("m1", "u2", "hi there, edited"),
	})
	if got := ctrl.Messages(); got[0].Body != "hi there, edited" {
		t.Fatalf("expected edit applied, got %q", got[0].Body)
	}

	transport.push(t, socket.EventReactionAdded, socket.ReactionPayload{
		RoomID: "club-1", MessageID: "m1", UserID: "u2", Emoji: "👍",
	})
	if summary := ctrl.ReactionSummary("m1"); len(summary) != 1 || summary[0].Count != 1 {
		t.Fatalf("expected one reaction, got %v", summary)
	}

	transport.push(t, socket.EventMessageDeleted, socket.MessageDeletedPayload{
		RoomID: "club-1", MessageID: "m1",
	})
	if got := ctrl.Messages(); len(got) != 0 {
		t.Fatalf("expected empty log after delete, got %v", got)
	}
}

func TestTypingEventsUpdateSummary(t *testing.T) {
	p := &fakePersistence{}
	ctrl, transport := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	transport.push(t, socket.EventUserTyping, socket.TypingPayload{
		RoomID: "club-1", ParticipantID: "u2", IsTyping: true,
	})
	if got := ctrl.TypingSummary(); got != "Someone is typing..." {
		t.Fatalf("expected singular summary, got %q", got)
	}

	// The user's own echoed typing signal is not presence of others.
	transport.push(t, socket.EventUserTyping, socket.TypingPayload{
		RoomID: "club-1", ParticipantID: "u1", IsTyping: true,
	})
	if got := ctrl.TypingSummary(); got != "Someone is typing..." {
		t.Fatalf("expected self to be ignored, got %q", got)
	}

	transport.push(t, socket.EventUserTyping, socket.TypingPayload{
		RoomID: "club-1", ParticipantID: "u2", IsTyping: false,
	})
	if got := ctrl.TypingSummary(); got != "" {
		t.Fatalf("expected empty summary, got %q", got)
	}
}

func TestNotifyTypingEmitsThroughTransport(t *testing.T) {
	p := &fakePersistence{}
	ctrl, transport := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	ctrl.NotifyTypingActivity()
	ctrl.NotifyTypingActivity()

	if n := transport.emitted(socket.EventTypingStart); n != 1 {
		t.Fatalf("expected 1 typing-start, got %d", n)
	}

	ctrl.StopTyping()
	if n := transport.emitted(socket.EventTypingStop); n != 1 {
		t.Fatalf("expected 1 typing-stop, got %d", n)
	}
}

func TestEditForeignMessageRejected(t *testing.T) {
	p := &fakePersistence{page: []chat.Message{serverMessage("m1", "u2", "not yours")}}
	ctrl, _ := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	if _, err := ctrl.StartEditing("m1"); !errors.Is(err, session.ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}
	if err := ctrl.SaveEdit(context.Background(), "m1", "hijacked"); !errors.Is(err, session.ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor from save, got %v", err)
	}
	if p.callCount("edit") != 0 {
		t.Fatal("foreign edit must not reach the network")
	}
}

func TestSaveEditAppliesServerCopy(t *testing.T) {
	edited := serverMessage("m1", "u1", "hello, edited")
	now := time.Now()
	edited.EditedAt = &now

	p := &fakePersistence{
		page:     []chat.Message{serverMessage("m1", "u1", "hello")},
		editResp: edited,
	}
	ctrl, _ := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	prefill, err := ctrl.StartEditing("m1")
	if err != nil {
		t.Fatalf("start editing: %v", err)
	}
	if prefill != "hello" {
		t.Fatalf("expected prefill %q, got %q", "hello", prefill)
	}

	if err := ctrl.SaveEdit(context.Background(), "m1", "hello, edited"); err != nil {
		t.Fatalf("save edit: %v", err)
	}

	got := ctrl.Messages()
	if got[0].Body != "hello, edited" || got[0].EditedAt == nil {
		t.Fatalf("expected edited message, got %+v", got[0])
	}
}

func TestDeleteWaitsForAcknowledgment(t *testing.T) {
	p := &fakePersistence{
		page:      []chat.Message{serverMessage("m1", "u1", "mine")},
		deleteErr: errors.New("backend down"),
	}
	ctrl, _ := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	// Failed delete leaves the message in place: removal is never optimistic.
	if err := ctrl.DeleteMessage(context.Background(), "m1"); err == nil {
		t.Fatal("expected delete failure to surface")
	}
	if got := ctrl.Messages(); len(got) != 1 {
		t.Fatalf("expected message untouched after failed delete, got %v", got)
	}

	p.deleteErr = nil
	if err := ctrl.DeleteMessage(context.Background(), "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := ctrl.Messages(); len(got) != 0 {
		t.Fatalf("expected message removed after ack, got %v", got)
	}
}

func TestDeleteForeignMessageRejected(t *testing.T) {
	p := &fakePersistence{page: []chat.Message{serverMessage("m1", "u2", "not yours")}}
	ctrl, _ := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	if err := ctrl.DeleteMessage(context.Background(), "m1"); !errors.Is(err, session.ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}
	if p.callCount("delete") != 0 {
		t.Fatal("foreign delete must not reach the network")
	}
}

func TestReactionFailureIsNotRolledBack(t *testing.T) {
	p := &fakePersistence{
		page:     []chat.Message{serverMessage("m1", "u2", "hello")},
		reactErr: errors.New("backend down"),
	}
	ctrl, _ := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	if err := ctrl.ToggleReaction(context.Background(), "m1", "👍"); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	summary := ctrl.ReactionSummary("m1")
	if len(summary) != 1 || summary[0].Emoji != "👍" {
		t.Fatalf("expected optimistic reaction kept, got %v", summary)
	}
}

func TestReactionEchoAfterLocalToggle(t *testing.T) {
	p := &fakePersistence{page: []chat.Message{serverMessage("m1", "u2", "hello")}}
	ctrl, transport := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	if err := ctrl.ToggleReaction(context.Background(), "m1", "👍"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	transport.push(t, socket.EventReactionAdded, socket.ReactionPayload{
		RoomID: "club-1", MessageID: "m1", UserID: "u1", Emoji: "👍",
	})

	summary := ctrl.ReactionSummary("m1")
	if len(summary) != 1 || summary[0].Count != 1 {
		t.Fatalf("expected exactly one 👍 after echo, got %v", summary)
	}
}

func TestLoadOlderMessagesPrepends(t *testing.T) {
	p := &fakePersistence{
		page:      []chat.Message{serverMessage("m3", "u2", "latest")},
		olderPage: []chat.Message{serverMessage("m1", "u2", "first"), serverMessage("m2", "u2", "second")},
	}
	ctrl, _ := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	added, err := ctrl.LoadOlderMessages(context.Background())
	if err != nil {
		t.Fatalf("load older: %v", err)
	}
	if added != 2 {
		t.Fatalf("expected 2 added, got %d", added)
	}
	if p.lastBefore != "m3" {
		t.Fatalf("expected cursor m3, got %q", p.lastBefore)
	}

	got := ctrl.Messages()
	if len(got) != 3 || got[0].ID != "m1" || got[2].ID != "m3" {
		t.Fatalf("unexpected order: %v", got)
	}

	// Paging again with the same server page adds nothing.
	added, err = ctrl.LoadOlderMessages(context.Background())
	if err != nil {
		t.Fatalf("load older again: %v", err)
	}
	if added != 0 {
		t.Fatalf("expected duplicate page absorbed, got %d added", added)
	}
}

func TestLoadOlderMessagesWithoutRoom(t *testing.T) {
	p := &fakePersistence{}
	ctrl, _ := setup(p, "club-1")

	if _, err := ctrl.LoadOlderMessages(context.Background()); !errors.Is(err, session.ErrNoActiveRoom) {
		t.Fatalf("expected ErrNoActiveRoom, got %v", err)
	}
}

func TestLoadOlderMessagesEmptyLogIsNoop(t *testing.T) {
	p := &fakePersistence{}
	ctrl, _ := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	added, err := ctrl.LoadOlderMessages(context.Background())
	if err != nil || added != 0 {
		t.Fatalf("expected no-op without a cursor, got %d, %v", added, err)
	}
	if p.callCount("fetchBefore") != 0 {
		t.Fatal("no cursor means no network call")
	}
}

func TestReplyValidation(t *testing.T) {
	p := &fakePersistence{page: []chat.Message{serverMessage("m1", "u2", "hello")}}
	ctrl, _ := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	ctx := context.Background()
	if err := ctrl.ReplyToMessage(ctx, "m1", "   "); !errors.Is(err, session.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if err := ctrl.ReplyToMessage(ctx, "m1", strings.Repeat("a", 201)); !errors.Is(err, session.ErrReplyTooLong) {
		t.Fatalf("expected ErrReplyTooLong, got %v", err)
	}
	if err := ctrl.ReplyToMessage(ctx, "nope", "hi"); !errors.Is(err, session.ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
	if p.callCount("reply") != 0 {
		t.Fatal("invalid replies must not reach the network")
	}
}

func TestReplyEchoAfterLocalPost(t *testing.T) {
	reply := chat.Reply{ID: "r1", Author: chat.Author{ID: "u1", Name: "Ada Lovelace"}, Body: "agreed"}
	p := &fakePersistence{
		page:      []chat.Message{serverMessage("m1", "u2", "hello")},
		replyResp: reply,
	}
	ctrl, transport := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	if err := ctrl.ReplyToMessage(context.Background(), "m1", "agreed"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	transport.push(t, socket.EventReplyAdded, socket.ReplyPayload{
		RoomID: "club-1", MessageID: "m1", Reply: reply,
	})

	got := ctrl.Messages()
	if len(got[0].Replies) != 1 || got[0].Replies[0].ID != "r1" {
		t.Fatalf("expected exactly one reply after echo, got %v", got[0].Replies)
	}
}

func TestRemoteReplyFlowsIntoStore(t *testing.T) {
	p := &fakePersistence{page: []chat.Message{serverMessage("m1", "u2", "hello")}}
	ctrl, transport := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	transport.push(t, socket.EventReplyAdded, socket.ReplyPayload{
		RoomID: "club-1", MessageID: "m1",
		Reply: chat.Reply{ID: "r1", Author: chat.Author{ID: "u2"}, Body: "me too"},
	})
	// Another room's reply must be ignored.
	transport.push(t, socket.EventReplyAdded, socket.ReplyPayload{
		RoomID: "club-2", MessageID: "m1",
		Reply: chat.Reply{ID: "r2", Author: chat.Author{ID: "u2"}, Body: "wrong room"},
	})

	got := ctrl.Messages()
	if len(got[0].Replies) != 1 || got[0].Replies[0].ID != "r1" {
		t.Fatalf("unexpected replies: %v", got[0].Replies)
	}
}

func TestChatPresenceRoster(t *testing.T) {
	p := &fakePersistence{}
	ctrl, transport := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	transport.push(t, socket.EventUserJoinedChat, socket.ChatPresencePayload{
		RoomID: "club-1", ParticipantID: "u2",
	})
	transport.push(t, socket.EventUserJoinedChat, socket.ChatPresencePayload{
		RoomID: "club-1", ParticipantID: "u3",
	})
	// The user's own echoed join is not presence of others.
	transport.push(t, socket.EventUserJoinedChat, socket.ChatPresencePayload{
		RoomID: "club-1", ParticipantID: "u1",
	})

	got := ctrl.Participants()
	if len(got) != 2 || got[0] != "u2" || got[1] != "u3" {
		t.Fatalf("unexpected roster: %v", got)
	}

	// Leaving the chat also clears any typing state for that participant.
	transport.push(t, socket.EventUserTyping, socket.TypingPayload{
		RoomID: "club-1", ParticipantID: "u2", IsTyping: true,
	})
	transport.push(t, socket.EventUserLeftChat, socket.ChatPresencePayload{
		RoomID: "club-1", ParticipantID: "u2",
	})

	if got := ctrl.Participants(); len(got) != 1 || got[0] != "u3" {
		t.Fatalf("unexpected roster after leave: %v", got)
	}
	if summary := ctrl.TypingSummary(); summary != "" {
		t.Fatalf("expected typing cleared on leave, got %q", summary)
	}

	ctrl.ExitRoom()
	if got := ctrl.Participants(); len(got) != 0 {
		t.Fatalf("expected empty roster after exit, got %v", got)
	}
}

func TestExitRoomTearsEverythingDown(t *testing.T) {
	p := &fakePersistence{page: []chat.Message{serverMessage("m1", "u2", "hello")}}
	ctrl, transport := setup(p, "club-1")
	if err := ctrl.EnterRoom(context.Background(), "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	ctrl.NotifyTypingActivity()

	ctrl.ExitRoom()

	if ctrl.State() != session.StateClosed {
		t.Fatalf("expected closed state, got %s", ctrl.State())
	}
	if len(transport.leaves) != 1 || transport.leaves[0] != "club-1" {
		t.Fatalf("expected leave of club-1, got %v", transport.leaves)
	}
	if transport.subCount() != 0 {
		t.Fatalf("expected all handlers unsubscribed, got %d", transport.subCount())
	}
	if got := ctrl.Messages(); len(got) != 0 {
		t.Fatalf("expected discarded log, got %v", got)
	}
	if n := transport.emitted(socket.EventTypingStop); n != 1 {
		t.Fatalf("expected pending typing announcement withdrawn, got %d stops", n)
	}

	// Exit when already closed is safe.
	ctrl.ExitRoom()
}

func TestStaleConfirmationCannotTouchNewRoom(t *testing.T) {
	gate := make(chan struct{})
	p := &fakePersistence{
		sendResp: serverMessage("m1", "u1", "stale"),
		sendGate: gate,
	}
	ctrl, _ := setup(p, "club-1", "club-2")

	ctx := context.Background()
	if err := ctrl.EnterRoom(ctx, "club-1"); err != nil {
		t.Fatalf("enter: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- ctrl.SendMessage(ctx, "stale") }()

	// Wait for the send to be in flight, then switch rooms under it.
	waitFor(t, func() bool { return p.callCount("send") == 1 })
	if err := ctrl.EnterRoom(ctx, "club-2"); err != nil {
		t.Fatalf("enter club-2: %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("stale send returned error: %v", err)
	}

	for _, m := range ctrl.Messages() {
		if m.ID == "m1" || m.Body == "stale" {
			t.Fatalf("stale confirmation leaked into new room: %+v", m)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}
