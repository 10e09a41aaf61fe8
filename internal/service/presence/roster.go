package presence

import (
	"sort"
	"sync"
)

// Roster tracks which other participants currently have the room's chat open,
// fed by the join and leave chat events. Unlike the typing Tracker its entries
// never expire on their own; a participant stays until their leave event or a
// room switch.
type Roster struct {
	mu      sync.Mutex
	members map[string]struct{}
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{members: make(map[string]struct{})}
}

// Join records a participant entering the chat. Repeat joins are no-ops.
func (r *Roster) Join(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[participantID] = struct{}{}
}

// Leave removes a participant. Unknown ids are ignored.
func (r *Roster) Leave(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, participantID)
}

// Reset clears the roster, used on room switch and teardown.
func (r *Roster) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = make(map[string]struct{})
}

// Count returns how many other participants are present.
func (r *Roster) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Participants returns the present participant ids in stable order.
func (r *Roster) Participants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
