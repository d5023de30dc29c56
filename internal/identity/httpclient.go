package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meridian-portal/meridian-portal/internal/shared"
)

// HTTPClient implements Client over the identity service's JSON API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPClient constructs an HTTPClient for the given base URL.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Login authenticates credentials against POST /v1/login.
func (c *HTTPClient) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	var result LoginResult
	if err := c.post(ctx, "/v1/login", creds, &result, shared.ErrInvalidCredentials); err != nil {
		return nil, err
	}
	result.ExpiresAt = c.ensureExpiry(result.ExpiresAt, result.Token)
	return &result, nil
}

// Refresh exchanges the refresh token via POST /v1/refresh.
func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	payload := map[string]string{"refresh_token": refreshToken}
	var result RefreshResult
	if err := c.post(ctx, "/v1/refresh", payload, &result, shared.ErrRefreshFailed); err != nil {
		return nil, err
	}
	result.ExpiresAt = c.ensureExpiry(result.ExpiresAt, result.Token)
	return &result, nil
}

// Logout notifies the server via POST /v1/logout. Failures are logged and
// swallowed so they never block a local logout.
func (c *HTTPClient) Logout(ctx context.Context, token string) error {
	payload := map[string]string{"token": token}
	if err := c.post(ctx, "/v1/logout", payload, nil, shared.ErrUnauthorized); err != nil {
		if c.logger != nil {
			c.logger.Warn("identity logout notification failed", slog.Any("error", err))
		}
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, dest any, rejection error) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNetwork, err)
	}
	defer func() { _ = res.Body.Close() }()

	switch {
	case res.StatusCode == http.StatusOK || res.StatusCode == http.StatusNoContent:
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return rejection
	case res.StatusCode >= 500:
		return fmt.Errorf("%w: identity service returned %d", shared.ErrNetwork, res.StatusCode)
	default:
		return fmt.Errorf("%w: identity service returned %d", rejection, res.StatusCode)
	}

	if dest == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(dest)
}

// ensureExpiry falls back to the token's exp claim when the provider omits an
// absolute expiry. The claim is read without signature verification; token
// validation is the server's job, the client only needs the validity window.
func (c *HTTPClient) ensureExpiry(expiresAt time.Time, token string) time.Time {
	if !expiresAt.IsZero() {
		return expiresAt
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return expiresAt
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return expiresAt
	}
	return exp.Time
}

var _ Client = (*HTTPClient)(nil)
