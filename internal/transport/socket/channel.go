package socket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Handler receives the raw payload of one inbound event.
type Handler func(payload json.RawMessage)

// Channel owns the single persistent websocket connection shared by every
// room and component for the lifetime of the application session. It is the
// only place the physical connection is touched; consumers see named events
// and fire-and-forget emits.
//
// Delivery is not guaranteed: emits are silently dropped while disconnected,
// and the channel does not retry a failed dial. Consumers are expected to
// tolerate dropped and replayed events.
type Channel struct {
	url    string
	dialer *websocket.Dialer
	header http.Header

	mu     sync.Mutex
	conn   *websocket.Conn
	done   chan struct{}
	joined map[string]struct{}

	subsMu  sync.RWMutex
	subs    map[string]map[int]Handler
	nextSub int
}

// NewChannel prepares a channel for url. No connection is made until Connect.
func NewChannel(url string, header http.Header) *Channel {
	return &Channel{
		url:    url,
		header: header,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
		joined: make(map[string]struct{}),
		subs:   make(map[string]map[int]Handler),
	}
}

// Connect establishes the websocket connection. Calling it while already
// connected is a no-op. Dial failures are returned once; the channel never
// retries on its own.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		log.Printf("[socket] connect failed: %v", err)
		return err
	}

	c.conn = conn
	c.done = make(chan struct{})
	go c.readLoop(conn, c.done)

	log.Printf("[socket] connected to %s", c.url)
	return nil
}

// Disconnect closes the connection. Calling it while disconnected is a no-op.
// Inbound events after Disconnect are silently dropped.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}

	close(c.done)
	if err := c.conn.Close(); err != nil {
		log.Printf("[socket] close failed: %v", err)
	}
	c.conn = nil
	c.joined = make(map[string]struct{})
	log.Printf("[socket] disconnected")
}

// IsConnected reports whether the underlying connection is live.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// JoinRoom announces membership in roomID's event stream. Dropped while
// disconnected.
func (c *Channel) JoinRoom(roomID string) {
	c.mu.Lock()
	if c.conn != nil {
		c.joined[roomID] = struct{}{}
	}
	c.mu.Unlock()

	c.Emit(EventJoinClub, RoomPayload{RoomID: roomID})
}

// LeaveRoom leaves roomID's event stream. Leaving a room that was never
// joined is a no-op, not an error.
func (c *Channel) LeaveRoom(roomID string) {
	c.mu.Lock()
	_, ok := c.joined[roomID]
	if ok {
		delete(c.joined, roomID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	c.Emit(EventLeaveClub, RoomPayload{RoomID: roomID})
}

// Subscribe registers handler for a named inbound event and returns the
// matching unsubscribe function. Every subscriber to an event is invoked, in
// registration order.
func (c *Channel) Subscribe(event string, handler Handler) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := c.nextSub
	c.nextSub++

	handlers, ok := c.subs[event]
	if !ok {
		handlers = make(map[int]Handler)
		c.subs[event] = handlers
	}
	handlers[id] = handler

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if handlers, ok := c.subs[event]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(c.subs, event)
			}
		}
	}
}

// Emit sends a named event. Fire-and-forget: there is no acknowledgement, and
// the event is silently dropped while disconnected.
func (c *Channel) Emit(event string, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}

	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteJSON(Envelope{Event: event, Payload: payload}); err != nil {
		log.Printf("[socket] emit %s failed: %v", event, err)
	}
}

func (c *Channel) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Deliberate disconnect, nothing to report.
			default:
				log.Printf("[socket] read failed: %v", err)
				c.markClosed(conn)
			}
			return
		}

		var frame struct {
			Event   string          `json:"event"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("[socket] dropping malformed frame: %v", err)
			continue
		}

		select {
		case <-done:
			return
		default:
		}
		c.dispatch(frame.Event, frame.Payload)
	}
}

// markClosed clears the connection after a read failure so that a later
// Connect can establish a fresh one.
func (c *Channel) markClosed(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		close(c.done)
		_ = c.conn.Close()
		c.conn = nil
		c.joined = make(map[string]struct{})
	}
}

func (c *Channel) dispatch(event string, payload json.RawMessage) {
	c.subsMu.RLock()
	handlers := c.subs[event]
	ids := make([]int, 0, len(handlers))
	for id := range handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ordered := make([]Handler, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, handlers[id])
	}
	c.subsMu.RUnlock()

	for _, h := range ordered {
		h(payload)
	}
}
