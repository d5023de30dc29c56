// Package portal assembles the session, refresh and permission subsystems
// into the surface consumed by views and routes.
package portal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-portal/meridian-portal/internal/activity"
	"github.com/meridian-portal/meridian-portal/internal/guard"
	"github.com/meridian-portal/meridian-portal/internal/identity"
	"github.com/meridian-portal/meridian-portal/internal/notify"
	"github.com/meridian-portal/meridian-portal/internal/observability"
	"github.com/meridian-portal/meridian-portal/internal/rbac"
	"github.com/meridian-portal/meridian-portal/internal/refresh"
	"github.com/meridian-portal/meridian-portal/internal/roles"
	"github.com/meridian-portal/meridian-portal/internal/session"
	"github.com/meridian-portal/meridian-portal/internal/shared"
)

// Options groups the Core dependencies and tunables. Zero durations take the
// documented defaults.
type Options struct {
	Logger        *slog.Logger
	Client        identity.Client
	ActivityStore activity.Store
	Registry      *roles.Registry
	Scheduler     session.Scheduler
	Notifier      notify.Notifier
	Metrics       *observability.Metrics

	IdleTimeout      time.Duration // default 30m
	WarningWindow    time.Duration // default 2m
	RefreshInterval  time.Duration // default 5m
	RefreshThreshold time.Duration // default 10m
	ActivityFlush    time.Duration // default 1s
	LogoutNotifyWait time.Duration // default 3s
}

// Core owns the session lifecycle end to end: login installs state and arms
// the monitor and refresher, activity resets the idle clock, and any expiry
// path tears everything down through one forced-logout funnel. It is built
// per process (or per test) with an explicit Start/Stop lifecycle.
type Core struct {
	logger    *slog.Logger
	client    identity.Client
	store     *session.Store
	registry  *roles.Registry
	eval      *rbac.Evaluator
	tracker   *activity.Tracker
	actStore  activity.Store
	monitor   *session.Monitor
	refresher *refresh.Refresher
	guard     *guard.Guard
	notifier  *notify.Deduper
	metrics   *observability.Metrics

	logoutWait time.Duration
}

// New wires a Core from the given options.
func New(opts Options) *Core {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.WarningWindow <= 0 {
		opts.WarningWindow = 2 * time.Minute
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Minute
	}
	if opts.RefreshThreshold <= 0 {
		opts.RefreshThreshold = 10 * time.Minute
	}
	if opts.LogoutNotifyWait <= 0 {
		opts.LogoutNotifyWait = 3 * time.Second
	}
	if opts.Scheduler == nil {
		opts.Scheduler = session.NewScheduler()
	}
	if opts.Registry == nil {
		opts.Registry = roles.DefaultRegistry()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.SlogNotifier{Logger: opts.Logger}
	}

	c := &Core{
		logger:     opts.Logger,
		client:     opts.Client,
		store:      session.NewStore(),
		registry:   opts.Registry,
		eval:       rbac.NewEvaluator(opts.Registry),
		actStore:   opts.ActivityStore,
		notifier:   notify.NewDeduper(opts.Notifier),
		metrics:    opts.Metrics,
		logoutWait: opts.LogoutNotifyWait,
	}
	c.tracker = activity.NewTracker(opts.ActivityStore, opts.Logger, opts.ActivityFlush)
	c.monitor = session.NewMonitor(session.MonitorConfig{
		Scheduler:     opts.Scheduler,
		Idle:          c.tracker.IdleDuration,
		Logger:        opts.Logger,
		IdleTimeout:   opts.IdleTimeout,
		WarningWindow: opts.WarningWindow,
		OnWarning:     c.warn,
		OnExpired:     c.ForceLogout,
	})
	c.refresher = refresh.NewRefresher(refresh.Config{
		Client:    opts.Client,
		Store:     c.store,
		Scheduler: opts.Scheduler,
		Logger:    opts.Logger,
		Interval:  opts.RefreshInterval,
		Threshold: opts.RefreshThreshold,
		OnFailure: c.ForceLogout,
	})
	c.guard = guard.New(c.store, c.monitor, opts.Registry, c.eval)
	c.tracker.OnTouch(c.monitor.Touch)
	return c
}

// Start begins consuming activity events. It does not log anyone in. State
// persisted by a previous run is consulted first: when the stored session
// expiry has already passed, the leftover last-activity record is cleared so
// the tracker cannot restore the idle clock of a session that no longer
// exists.
func (c *Core) Start(ctx context.Context) error {
	expiry, err := c.actStore.LoadExpiry(ctx)
	switch {
	case err != nil:
		if c.logger != nil {
			c.logger.Warn("restore session expiry", slog.Any("error", err))
		}
	case !expiry.IsZero() && !time.Now().Before(expiry):
		if c.logger != nil {
			c.logger.Info("discarding expired persisted session state", slog.Time("expired_at", expiry))
		}
		if err := c.actStore.Clear(ctx); err != nil && c.logger != nil {
			c.logger.Warn("clear persisted session state", slog.Any("error", err))
		}
	}
	return c.tracker.Start(ctx)
}

// Stop tears down timers and the activity consumer. The session state is
// left intact; call Logout first to end the session itself.
func (c *Core) Stop() {
	c.monitor.Stop()
	c.refresher.Stop()
	c.tracker.Stop()
}

// Login authenticates against the identity service and installs the session:
// state store set, permission cache cleared, idle clock reset, monitor and
// refresher armed.
func (c *Core) Login(ctx context.Context, creds identity.Credentials) (*identity.LoginResult, error) {
	result, err := c.client.Login(ctx, creds)
	if err != nil {
		c.metrics.ObserveLogin("failure")
		return nil, err
	}

	c.notifier.Reset()
	now := time.Now().UTC()
	sess := c.store.SetAuthenticated(result.User, result.Token, result.RefreshToken, now, result.ExpiresAt)
	c.eval.ClearCache()
	c.tracker.Reset(ctx)
	if err := c.actStore.SaveExpiry(ctx, sess.ExpiresAt); err != nil && c.logger != nil {
		c.logger.Warn("persist session expiry", slog.Any("error", err))
	}
	c.monitor.Start(sess.ExpiresAt)
	c.refresher.Start()
	c.metrics.ObserveLogin("success")
	if c.logger != nil {
		c.logger.Info("login", slog.String("user", result.User.ID), slog.String("role", result.User.RoleID))
	}
	return result, nil
}

// Logout ends the session. Timers are cancelled synchronously before state
// is cleared, so a refresh tick or expiry callback racing the logout finds
// nothing to act on. Idempotent: a second logout is a no-op.
func (c *Core) Logout(ctx context.Context, reason session.Reason) {
	c.monitor.Stop()
	c.refresher.Stop()

	snap := c.store.Snapshot()
	if !c.store.Clear() {
		return
	}
	c.eval.ClearCache()
	if err := c.actStore.Clear(ctx); err != nil && c.logger != nil {
		c.logger.Warn("clear persisted session state", slog.Any("error", err))
	}

	if reason != session.ReasonUserLogout {
		c.metrics.ObserveForcedLogout(string(reason))
		c.notifier.Notify("warning", notify.ReasonMessage(reason))
	}
	if c.logger != nil {
		c.logger.Info("logout", slog.String("reason", string(reason)))
	}

	// Best-effort server notification; must not block the local logout.
	if snap.Session.Token != "" {
		token := snap.Session.Token
		wait := c.logoutWait
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), wait)
			defer cancel()
			_ = c.client.Logout(ctx, token)
		}()
	}
}

// ForceLogout terminates the session centrally with the given reason. Used
// by the monitor, the refresher and the error layer.
func (c *Core) ForceLogout(reason session.Reason) {
	c.Logout(context.Background(), reason)
}

// Refresh performs an on-demand token refresh.
func (c *Core) Refresh(ctx context.Context) error {
	err := c.refresher.RefreshNow(ctx)
	if err != nil {
		c.metrics.ObserveRefresh("failure")
		return err
	}
	c.metrics.ObserveRefresh("success")
	return nil
}

// HandleUnauthorized reacts to a 401 from a business call: exactly one
// refresh attempt, then a forced logout when that attempt fails.
func (c *Core) HandleUnauthorized(ctx context.Context) error {
	if err := c.refresher.RefreshNow(ctx); err != nil {
		c.ForceLogout(session.ReasonUnauthorized)
		return shared.ErrUnauthorized
	}
	return nil
}

// IsAuthenticated reports whether a non-empty token is held and the session
// has not passed its expiry.
func (c *Core) IsAuthenticated() bool {
	return c.store.IsAuthenticated()
}

// CurrentUser returns the authenticated user, or nil.
func (c *Core) CurrentUser() *identity.User {
	return c.store.CurrentUser()
}

// SessionState exposes the monitor state.
func (c *Core) SessionState() session.State {
	return c.monitor.State()
}

// SessionTimeRemaining returns the time until token expiry.
func (c *Core) SessionTimeRemaining() time.Duration {
	return c.store.TimeRemaining()
}

// HasAccess evaluates a route requirement against the current session.
func (c *Core) HasAccess(req guard.Requirement) guard.Decision {
	decision := c.guard.Check(req)
	if !decision.Allowed {
		c.metrics.ObserveAccessDenial(string(decision.Reason))
	}
	return decision
}

// Can checks action:resource for the current user, honouring ownership
// overrides. Unauthenticated callers evaluate as guest and fail closed.
func (c *Core) Can(action, resource string, ownership rbac.OwnershipContext) bool {
	var roleID, userID string
	if user := c.store.CurrentUser(); user != nil {
		roleID, userID = user.RoleID, user.ID
	}
	return c.eval.Can(roleID, userID, action, resource, ownership)
}

// HasFeature reports whether the current role enables a feature flag.
func (c *Core) HasFeature(flag string) bool {
	var roleID string
	if user := c.store.CurrentUser(); user != nil {
		roleID = user.RoleID
	}
	return c.registry.Get(roleID).HasFeature(flag)
}

// Touch records user activity.
func (c *Core) Touch() {
	c.tracker.Touch()
}

// ActivityEvents exposes the channel input sources publish into.
func (c *Core) ActivityEvents() chan<- struct{} {
	return c.tracker.Events()
}

// Evaluator exposes the permission evaluator for route middleware.
func (c *Core) Evaluator() *rbac.Evaluator {
	return c.eval
}

// Store exposes the auth state store for observers.
func (c *Core) Store() *session.Store {
	return c.store
}

func (c *Core) warn(remaining time.Duration) {
	c.notifier.Notify("warning", fmt.Sprintf("Your session will expire in %s.", remaining.Round(time.Second)))
}
