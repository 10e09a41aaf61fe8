package member

// Membership is one user's standing in one club.
type Membership struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
	Role   string `json:"role,omitempty"`
}

// Profile is the display identity attached to outgoing messages.
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}
