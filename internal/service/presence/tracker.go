package presence

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultStaleAfter is how long a participant stays "typing" without a
// refresh before the tracker drops them on its own. Twice the debounce
// window, so one lost typing-stop cannot pin the indicator forever.
const DefaultStaleAfter = 2 * DefaultWindow

// Tracker maintains the set of other participants currently typing in the
// open room. Start/stop events are idempotent; entries not refreshed within
// the stale window expire without any server involvement.
type Tracker struct {
	staleAfter time.Duration

	mu        sync.Mutex
	deadlines map[string]time.Time
}

// NewTracker builds a tracker. A non-positive staleAfter falls back to
// DefaultStaleAfter.
func NewTracker(staleAfter time.Duration) *Tracker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Tracker{
		staleAfter: staleAfter,
		deadlines:  make(map[string]time.Time),
	}
}

// Start marks participantID as typing, refreshing the deadline if already
// present.
func (t *Tracker) Start(participantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deadlines[participantID] = time.Now().Add(t.staleAfter)
}

// Stop removes participantID. Removing an absent participant is a no-op.
func (t *Tracker) Stop(participantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.deadlines, participantID)
}

// Reset clears every participant, used on room switch.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deadlines = make(map[string]time.Time)
}

// Count returns how many participants are typing right now.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(time.Now())
	return len(t.deadlines)
}

// Summary renders the typing indicator text: empty when nobody types,
// singular for one participant, a count otherwise.
func (t *Tracker) Summary() string {
	switch n := t.Count(); {
	case n == 0:
		return ""
	case n == 1:
		return "Someone is typing..."
	default:
		return fmt.Sprintf("%d people are typing...", n)
	}
}

// Run prunes stale entries on a ticker until ctx is cancelled. Reads prune
// too; the ticker covers rooms nothing is reading.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.staleAfter / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.mu.Lock()
			t.pruneLocked(now)
			t.mu.Unlock()
		}
	}
}

func (t *Tracker) pruneLocked(now time.Time) {
	for id, deadline := range t.deadlines {
		if now.After(deadline) {
			delete(t.deadlines, id)
		}
	}
}
