package identity

import "context"

// Client is the contract against the external identity service. The portal
// core only ever sees these three operations; wire format and token
// validation are the provider's concern.
//
// Logout is best-effort server notification and must never block or fail a
// local logout.
type Client interface {
	Login(ctx context.Context, creds Credentials) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error)
	Logout(ctx context.Context, token string) error
}
