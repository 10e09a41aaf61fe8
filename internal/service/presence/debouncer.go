package presence

import (
	"sync"
	"time"

	"github.com/clubhub-app/clubhub/backend/internal/transport/socket"
)

// DefaultWindow is the inactivity span after which a typing announcement is
// withdrawn.
const DefaultWindow = time.Second

// Emitter is the outbound half of the transport channel the debouncer needs.
type Emitter interface {
	Emit(event string, payload interface{})
}

// Debouncer coalesces a raw stream of local keystrokes into a single
// typing-start/typing-stop pair per burst. It is a two-state machine: idle
// until the first keystroke, announcing until the inactivity window elapses
// with no further activity.
//
// Each keystroke replaces the pending timer rather than stacking a new one,
// so exactly one typing-stop follows each typing-start.
type Debouncer struct {
	emitter Emitter
	roomID  string
	window  time.Duration

	mu         sync.Mutex
	timer      *time.Timer
	gen        uint64
	announcing bool
}

// NewDebouncer builds a debouncer for one room. A non-positive window falls
// back to DefaultWindow.
func NewDebouncer(emitter Emitter, roomID string, window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{emitter: emitter, roomID: roomID, window: window}
}

// NotifyActivity records one local keystroke. The first keystroke of a burst
// announces typing-start; every keystroke re-arms the inactivity timer.
func (d *Debouncer) NotifyActivity() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.announcing {
		d.announcing = true
		d.emitter.Emit(socket.EventTypingStart, socket.RoomPayload{RoomID: d.roomID})
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() { d.expire(gen) })
}

// StopNow withdraws the announcement immediately, used on focus loss and on
// session teardown. A no-op while idle, so typing-stop is never duplicated.
func (d *Debouncer) StopNow() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	if d.announcing {
		d.announcing = false
		d.emitter.Emit(socket.EventTypingStop, socket.RoomPayload{RoomID: d.roomID})
	}
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A keystroke may have re-armed the timer after this expiry fired.
	if gen != d.gen || !d.announcing {
		return
	}
	d.timer = nil
	d.announcing = false
	d.emitter.Emit(socket.EventTypingStop, socket.RoomPayload{RoomID: d.roomID})
}
