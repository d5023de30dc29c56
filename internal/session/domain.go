package session

import "time"

// State is the lifecycle state of a monitored session.
type State string

// Session states. EXPIRED is terminal for a session instance; a new login
// constructs a fresh one.
const (
	StateActive  State = "ACTIVE"
	StateWarning State = "WARNING"
	StateExpired State = "EXPIRED"
)

// Reason explains why a session ended or a logout was forced.
type Reason string

// Logout reasons.
const (
	ReasonUserLogout     Reason = "user_logout"
	ReasonInactivity     Reason = "inactivity"
	ReasonSessionExpired Reason = "session_expired"
	ReasonRefreshFailed  Reason = "refresh_failed"
	ReasonUnauthorized   Reason = "unauthorized"
)

// Session is the client-side record of an authenticated session. The ID tags
// the session instance so callbacks scheduled against an old session can be
// recognised and dropped after a new login.
type Session struct {
	ID             string
	Token          string
	RefreshToken   string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
}
