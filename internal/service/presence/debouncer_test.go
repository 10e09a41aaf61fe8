package presence_test

import (
	"sync"
	"testing"
	"time"

	"github.com/clubhub-app/clubhub/backend/internal/service/presence"
	"github.com/clubhub-app/clubhub/backend/internal/transport/socket"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEmitter) Emit(event string, payload interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEmitter) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func TestBurstEmitsOneStartOneStop(t *testing.T) {
	emitter := &recordingEmitter{}
	d := presence.NewDebouncer(emitter, "club-1", 50*time.Millisecond)

	for i := 0; i < 5; i++ {
		d.NotifyActivity()
		time.Sleep(10 * time.Millisecond)
	}

	// Burst over, stop should follow one window later.
	time.Sleep(150 * time.Millisecond)

	got := emitter.snapshot()
	want := []string{socket.EventTypingStart, socket.EventTypingStop}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestStopNowEmitsStopImmediately(t *testing.T) {
	emitter := &recordingEmitter{}
	d := presence.NewDebouncer(emitter, "club-1", time.Hour)

	d.NotifyActivity()
	d.StopNow()

	got := emitter.snapshot()
	if len(got) != 2 || got[1] != socket.EventTypingStop {
		t.Fatalf("expected immediate stop, got %v", got)
	}

	// The cancelled timer must not fire a second stop.
	time.Sleep(50 * time.Millisecond)
	if got := emitter.snapshot(); len(got) != 2 {
		t.Fatalf("expected no further events, got %v", got)
	}
}

func TestStopNowWhileIdleIsNoop(t *testing.T) {
	emitter := &recordingEmitter{}
	d := presence.NewDebouncer(emitter, "club-1", 50*time.Millisecond)

	d.StopNow()

	if got := emitter.snapshot(); len(got) != 0 {
		t.Fatalf("expected no events while idle, got %v", got)
	}
}

func TestNewBurstAfterStopAnnouncesAgain(t *testing.T) {
	emitter := &recordingEmitter{}
	d := presence.NewDebouncer(emitter, "club-1", 30*time.Millisecond)

	d.NotifyActivity()
	time.Sleep(100 * time.Millisecond)
	d.NotifyActivity()
	time.Sleep(100 * time.Millisecond)

	got := emitter.snapshot()
	want := []string{
		socket.EventTypingStart, socket.EventTypingStop,
		socket.EventTypingStart, socket.EventTypingStop,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
