package member

import "github.com/clubhub-app/clubhub/backend/internal/model/chat"

// StaticIdentity is the signed-in user, fixed for the process lifetime. The
// auth flow that would normally produce it is out of scope for the engine.
type StaticIdentity struct {
	profile Profile
}

// NewStaticIdentity wraps a profile as the current user.
func NewStaticIdentity(profile Profile) *StaticIdentity {
	return &StaticIdentity{profile: profile}
}

// CurrentUser returns the author snapshot attached to outgoing messages.
func (s *StaticIdentity) CurrentUser() chat.Author {
	return chat.Author{
		ID:     s.profile.ID,
		Name:   s.profile.Name,
		Avatar: s.profile.Avatar,
	}
}
