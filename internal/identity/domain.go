package identity

import "time"

// KYCStatus tracks the Know Your Customer verification state of a user.
// The core records the status; verification itself happens upstream.
type KYCStatus string

// KYC verification states.
const (
	KYCNotStarted KYCStatus = "not_started"
	KYCInProgress KYCStatus = "in_progress"
	KYCPending    KYCStatus = "pending"
	KYCVerified   KYCStatus = "verified"
	KYCRejected   KYCStatus = "rejected"
	KYCExpired    KYCStatus = "expired"
)

// User is the identity record returned by the identity service. It is
// replaced wholesale on login and refresh and cleared on logout.
type User struct {
	ID        string    `json:"id"`
	RoleID    string    `json:"role_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	KYCStatus KYCStatus `json:"kyc_status"`
}

// Credentials carries a login request.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginResult is the successful outcome of a login call.
type LoginResult struct {
	User         User      `json:"user"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RefreshResult is the successful outcome of a refresh call.
type RefreshResult struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}
