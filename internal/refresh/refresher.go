// Package refresh keeps the session token valid without user intervention.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-portal/meridian-portal/internal/identity"
	"github.com/meridian-portal/meridian-portal/internal/session"
	"github.com/meridian-portal/meridian-portal/internal/shared"
)

// Client is the slice of the identity contract the refresher needs.
type Client interface {
	Refresh(ctx context.Context, refreshToken string) (*identity.RefreshResult, error)
}

// Refresher runs a periodic check and renews the token when the expiry falls
// inside the refresh threshold. At most one refresh is in flight at any time:
// a concurrent tick or on-demand request joins the pending attempt instead of
// issuing a second call.
//
// A refresh failure is terminal for the session: the failure callback fires
// once and no retry loop is started. Stop cancels the pending timer so no
// tick fires against a cleared session.
type Refresher struct {
	client    Client
	store     *session.Store
	sched     session.Scheduler
	logger    *slog.Logger
	interval  time.Duration
	threshold time.Duration
	onFailure func(session.Reason)
	group     singleflight.Group

	mu      sync.Mutex
	now     func() time.Time
	handle  session.TimerHandle
	running bool
}

// Config groups the refresher dependencies.
type Config struct {
	Client    Client
	Store     *session.Store
	Scheduler session.Scheduler
	Logger    *slog.Logger
	// Interval between periodic checks.
	Interval time.Duration
	// Threshold under which the remaining validity triggers a refresh.
	Threshold time.Duration
	// OnFailure fires once when a refresh attempt fails terminally.
	OnFailure func(session.Reason)
}

// NewRefresher constructs a stopped Refresher.
func NewRefresher(cfg Config) *Refresher {
	return &Refresher{
		client:    cfg.Client,
		store:     cfg.Store,
		sched:     cfg.Scheduler,
		logger:    cfg.Logger,
		interval:  cfg.Interval,
		threshold: cfg.Threshold,
		onFailure: cfg.OnFailure,
		now:       time.Now,
	}
}

// SetNow overrides the clock. Intended for tests.
func (r *Refresher) SetNow(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// Start arms the periodic check.
func (r *Refresher) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.handle = r.sched.AfterFunc(r.interval, r.tick)
	r.mu.Unlock()
}

// Stop cancels the periodic check. Idempotent.
func (r *Refresher) Stop() {
	r.mu.Lock()
	r.running = false
	if r.handle != nil {
		r.handle.Cancel()
		r.handle = nil
	}
	r.mu.Unlock()
}

// Tick runs one periodic check immediately. Exposed for tests and for
// wake-from-reload paths.
func (r *Refresher) Tick() {
	r.check(context.Background())
}

// RefreshNow performs an on-demand refresh, joining any in-flight attempt.
func (r *Refresher) RefreshNow(ctx context.Context) error {
	snap := r.store.Snapshot()
	if !snap.Authenticated {
		return shared.ErrNotAuthenticated
	}
	return r.refresh(ctx, snap.Session)
}

func (r *Refresher) tick() {
	r.check(context.Background())

	r.mu.Lock()
	if r.running {
		r.handle = r.sched.AfterFunc(r.interval, r.tick)
	}
	r.mu.Unlock()
}

func (r *Refresher) check(ctx context.Context) {
	r.mu.Lock()
	running := r.running
	now := r.now()
	r.mu.Unlock()
	if !running {
		return
	}

	snap := r.store.Snapshot()
	if !snap.Authenticated {
		return
	}
	if snap.Session.ExpiresAt.Sub(now) >= r.threshold {
		return
	}
	if err := r.refresh(ctx, snap.Session); err != nil && r.logger != nil {
		r.logger.Warn("scheduled refresh failed", slog.Any("error", err))
	}
}

// refresh performs the single-flighted refresh call for the given session
// instance. The result is applied only when that instance is still current,
// so a response racing a logout is dropped.
func (r *Refresher) refresh(ctx context.Context, sess session.Session) error {
	ch := r.group.DoChan("refresh", func() (interface{}, error) {
		result, err := r.client.Refresh(context.Background(), sess.RefreshToken)
		if err != nil {
			return nil, err
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			r.fail(sess.ID, res.Err)
			return shared.ErrRefreshFailed
		}
		result := res.Val.(*identity.RefreshResult)
		if !r.store.ApplyRefresh(sess.ID, result.Token, result.RefreshToken, result.ExpiresAt) {
			// The session was cleared or replaced while the call was in
			// flight; the stale result must not resurrect it.
			return shared.ErrNotAuthenticated
		}
		return nil
	}
}

func (r *Refresher) fail(sessionID string, err error) {
	if r.logger != nil {
		r.logger.Error("token refresh failed", slog.Any("error", err))
	}
	snap := r.store.Snapshot()
	if snap.Session.ID != sessionID {
		return
	}
	r.mu.Lock()
	onFailure := r.onFailure
	r.mu.Unlock()
	if onFailure != nil {
		onFailure(session.ReasonRefreshFailed)
	}
}
