package domain

import "time"

// Session kinds. Access sessions authorize API calls; refresh sessions only
// mint new access sessions.
const (
	SessionAccess  = "access"
	SessionRefresh = "refresh"
)

// Session is a server-held record keyed by its opaque token. A user may hold
// any number of concurrent sessions (multi-device); there is no
// revoke-on-login behavior.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Kind      string    `json:"kind"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session is past its TTL at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
