package shared

import "errors"

var (
	// ErrNetwork indicates a transport failure talking to the identity service.
	// It is retryable and does not by itself invalidate the local session.
	ErrNetwork = errors.New("network failure")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is the 401-equivalent: the current token was rejected.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is an authorization denial; the session stays alive.
	ErrForbidden = errors.New("forbidden")
	// ErrSessionExpired indicates the session ended by idle or token expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrRefreshFailed indicates the refresh call errored or was rejected.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrNotAuthenticated indicates an operation that requires a live session.
	ErrNotAuthenticated = errors.New("not authenticated")
)
