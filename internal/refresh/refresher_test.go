package refresh_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-portal/meridian-portal/internal/identity"
	"github.com/meridian-portal/meridian-portal/internal/refresh"
	"github.com/meridian-portal/meridian-portal/internal/session"
	"github.com/meridian-portal/meridian-portal/internal/shared"
)

type stubClient struct {
	mu      sync.Mutex
	calls   int
	err     error
	entered chan struct{}
	release chan struct{}
}

func (c *stubClient) Refresh(ctx context.Context, refreshToken string) (*identity.RefreshResult, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()
	if c.entered != nil && n == 1 {
		close(c.entered)
	}
	if c.release != nil {
		<-c.release
	}
	if c.err != nil {
		return nil, c.err
	}
	return &identity.RefreshResult{
		Token:        "tok-refreshed",
		RefreshToken: "ref-refreshed",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (c *stubClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	mu        sync.Mutex
	fn        func()
	cancelled bool
}

func (t *manualTimer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) session.TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &manualTimer{fn: fn}
	s.timers = append(s.timers, timer)
	return timer
}

func (s *manualScheduler) fire() {
	s.mu.Lock()
	pending := s.timers
	s.timers = nil
	s.mu.Unlock()
	for _, timer := range pending {
		timer.mu.Lock()
		skip := timer.cancelled
		timer.mu.Unlock()
		if !skip {
			timer.fn()
		}
	}
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, timer := range s.timers {
		timer.mu.Lock()
		if !timer.cancelled {
			n++
		}
		timer.mu.Unlock()
	}
	return n
}

type refresherFixture struct {
	store    *session.Store
	client   *stubClient
	sched    *manualScheduler
	ref      *refresh.Refresher
	failures chan session.Reason
}

func newRefresherFixture(t *testing.T, client *stubClient) *refresherFixture {
	t.Helper()
	f := &refresherFixture{
		store:    session.NewStore(),
		client:   client,
		sched:    &manualScheduler{},
		failures: make(chan session.Reason, 4),
	}
	f.ref = refresh.NewRefresher(refresh.Config{
		Client:    client,
		Store:     f.store,
		Scheduler: f.sched,
		Interval:  5 * time.Minute,
		Threshold: 10 * time.Minute,
		OnFailure: func(reason session.Reason) { f.failures <- reason },
	})
	return f
}

func (f *refresherFixture) login(ttl time.Duration) session.Session {
	user := identity.User{ID: "u-1", RoleID: "investor"}
	now := time.Now()
	return f.store.SetAuthenticated(user, "tok-1", "ref-1", now, now.Add(ttl))
}

func TestTickRefreshesInsideThreshold(t *testing.T) {
	f := newRefresherFixture(t, &stubClient{})
	f.login(5 * time.Minute)
	f.ref.Start()
	defer f.ref.Stop()

	f.ref.Tick()

	assert.Equal(t, 1, f.client.callCount())
	snap := f.store.Snapshot()
	assert.Equal(t, "tok-refreshed", snap.Session.Token)
	assert.Equal(t, "ref-refreshed", snap.Session.RefreshToken)
}

func TestTickSkipsOutsideThreshold(t *testing.T) {
	f := newRefresherFixture(t, &stubClient{})
	f.login(2 * time.Hour)
	f.ref.Start()
	defer f.ref.Stop()

	f.ref.Tick()

	assert.Equal(t, 0, f.client.callCount())
	assert.Equal(t, "tok-1", f.store.Snapshot().Session.Token)
}

func TestTickIgnoredWhenStopped(t *testing.T) {
	f := newRefresherFixture(t, &stubClient{})
	f.login(5 * time.Minute)

	f.ref.Tick()

	assert.Equal(t, 0, f.client.callCount())
}

func TestPeriodicTickReschedules(t *testing.T) {
	f := newRefresherFixture(t, &stubClient{})
	f.login(2 * time.Hour)
	f.ref.Start()
	require.Equal(t, 1, f.sched.pending())

	f.sched.fire()
	assert.Equal(t, 1, f.sched.pending())

	f.ref.Stop()
	assert.Equal(t, 0, f.sched.pending())

	// A timer racing Stop does not reschedule.
	f.sched.fire()
	assert.Equal(t, 0, f.sched.pending())
}

func TestConcurrentRefreshIsSingleFlight(t *testing.T) {
	client := &stubClient{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newRefresherFixture(t, client)
	f.login(5 * time.Minute)
	f.ref.Start()
	defer f.ref.Stop()

	errs := make(chan error, 2)
	go func() { errs <- f.ref.RefreshNow(context.Background()) }()
	<-client.entered
	go func() { errs <- f.ref.RefreshNow(context.Background()) }()

	// Let the second caller join the in-flight attempt before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(client.release)

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	assert.Equal(t, 1, client.callCount())
	assert.Equal(t, "tok-refreshed", f.store.Snapshot().Session.Token)
}

func TestRefreshFailureIsTerminal(t *testing.T) {
	client := &stubClient{err: errors.New("upstream said no")}
	f := newRefresherFixture(t, client)
	f.login(5 * time.Minute)
	f.ref.Start()
	defer f.ref.Stop()

	err := f.ref.RefreshNow(context.Background())
	require.ErrorIs(t, err, shared.ErrRefreshFailed)

	select {
	case reason := <-f.failures:
		assert.Equal(t, session.ReasonRefreshFailed, reason)
	case <-time.After(time.Second):
		t.Fatal("failure callback never fired")
	}
}

func TestStaleResponseDoesNotResurrectSession(t *testing.T) {
	client := &stubClient{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newRefresherFixture(t, client)
	f.login(5 * time.Minute)
	f.ref.Start()
	defer f.ref.Stop()

	errs := make(chan error, 1)
	go func() { errs <- f.ref.RefreshNow(context.Background()) }()
	<-client.entered

	// Logout while the refresh call is in flight.
	require.True(t, f.store.Clear())
	close(client.release)

	require.ErrorIs(t, <-errs, shared.ErrNotAuthenticated)
	assert.False(t, f.store.IsAuthenticated())
	assert.Empty(t, f.failures)
}

func TestFailureForReplacedSessionIsSwallowed(t *testing.T) {
	client := &stubClient{
		err:     errors.New("upstream said no"),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newRefresherFixture(t, client)
	f.login(5 * time.Minute)
	f.ref.Start()
	defer f.ref.Stop()

	errs := make(chan error, 1)
	go func() { errs <- f.ref.RefreshNow(context.Background()) }()
	<-client.entered

	// A re-login swaps the session instance before the failure lands.
	f.store.Clear()
	f.login(time.Hour)
	close(client.release)

	require.ErrorIs(t, <-errs, shared.ErrRefreshFailed)
	assert.Empty(t, f.failures)
	assert.True(t, f.store.IsAuthenticated())
}

func TestRefreshNowRequiresAuthentication(t *testing.T) {
	f := newRefresherFixture(t, &stubClient{})

	err := f.ref.RefreshNow(context.Background())
	require.ErrorIs(t, err, shared.ErrNotAuthenticated)
	assert.Equal(t, 0, f.client.callCount())
}

func TestRefreshNowHonoursContextCancellation(t *testing.T) {
	client := &stubClient{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newRefresherFixture(t, client)
	f.login(5 * time.Minute)
	f.ref.Start()
	defer f.ref.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- f.ref.RefreshNow(ctx) }()
	<-client.entered

	cancel()
	require.ErrorIs(t, <-errs, context.Canceled)

	// The abandoned attempt is released and discarded; the session keeps its
	// original token.
	close(client.release)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "tok-1", f.store.Snapshot().Session.Token)
}
