package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-portal/meridian-portal/internal/activity"
	"github.com/meridian-portal/meridian-portal/internal/app"
	"github.com/meridian-portal/meridian-portal/internal/identity"
	"github.com/meridian-portal/meridian-portal/internal/observability"
	"github.com/meridian-portal/meridian-portal/internal/portal"
	"github.com/meridian-portal/meridian-portal/internal/rbac"
	"github.com/meridian-portal/meridian-portal/internal/shared"
)

type nullIdentity struct{}

func (nullIdentity) Login(ctx context.Context, creds identity.Credentials) (*identity.LoginResult, error) {
	return nil, shared.ErrInvalidCredentials
}

func (nullIdentity) Refresh(ctx context.Context, refreshToken string) (*identity.RefreshResult, error) {
	return nil, shared.ErrRefreshFailed
}

func (nullIdentity) Logout(ctx context.Context, token string) error { return nil }

func newGatewayServer(t *testing.T, cfg *app.Config) *httptest.Server {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	metrics := observability.NewMetrics()
	core := portal.New(portal.Options{
		Client:        nullIdentity{},
		ActivityStore: activity.NewRedisStore(rdb, time.Hour),
		Metrics:       metrics,
	})
	require.NoError(t, core.Start(context.Background()))
	t.Cleanup(core.Stop)

	router := app.NewRouter(app.RouterParams{
		Config:        cfg,
		PortalHandler: portal.NewHandler(nil, core),
		RBACMiddleware: rbac.Middleware{
			Evaluator: core.Evaluator(),
		},
		Metrics: metrics,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	server := newGatewayServer(t, nil)

	res, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestGuardedRoutesRejectAnonymous(t *testing.T) {
	server := newGatewayServer(t, nil)

	for _, path := range []string{"/api/investor/dashboard", "/api/portfolio", "/api/clients", "/api/admin"} {
		res, err := http.Get(server.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode, path)
		_ = res.Body.Close()
	}
}

func TestSessionEndpointIsPublic(t *testing.T) {
	server := newGatewayServer(t, nil)

	res, err := http.Get(server.URL + "/auth/session")
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	server := newGatewayServer(t, &app.Config{
		LoginRateLimit:  2,
		LoginRateWindow: time.Minute,
	})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		res, err := http.Get(server.URL + "/auth/session")
		require.NoError(t, err)
		statuses = append(statuses, res.StatusCode)
		_ = res.Body.Close()
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}
