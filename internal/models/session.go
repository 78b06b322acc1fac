package models

import "time"

// Session binds an opaque bearer token to a user.
type Session struct {
	Token        string    `json:"token"`
	UserID       ID        `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// LastSeen is the reference time for inactivity expiry. Rows written before
// lastActivity existed fall back to createdAt.
func (s *Session) LastSeen() time.Time {
	if s.LastActivity.IsZero() {
		return s.CreatedAt
	}
	return s.LastActivity
}
