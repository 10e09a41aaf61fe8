package member

// Store exposes membership lookups for the chat session controller. The real
// club service answers these over REST; the in-memory implementation stands in
// for it during local runs and tests.
type Store interface {
	IsMember(userID, roomID string) bool
	Rooms(userID string) []string
}

// MemoryStore implements Store with an in-memory slice, suitable for a single
// signed-in user.
type MemoryStore struct {
	items []Membership
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied memberships.
func NewMemoryStore(items []Membership) *MemoryStore {
	return &MemoryStore{items: append([]Membership(nil), items...)}
}

// IsMember reports whether userID belongs to roomID.
func (s *MemoryStore) IsMember(userID, roomID string) bool {
	for _, item := range s.items {
		if item.UserID == userID && item.RoomID == roomID {
			return true
		}
	}
	return false
}

// Rooms lists the rooms userID belongs to, in insertion order.
func (s *MemoryStore) Rooms(userID string) []string {
	var rooms []string
	for _, item := range s.items {
		if item.UserID == userID {
			rooms = append(rooms, item.RoomID)
		}
	}
	return rooms
}
