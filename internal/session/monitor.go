package session

import (
	"log/slog"
	"sync"
	"time"
)

// Monitor owns the inactivity countdown and the absolute expiry countdown
// for one session instance, merged into a single state machine so callers
// watch one state while the distinguishing reason is preserved for the
// notification layer.
//
// The idle duration is re-read from its source at every decision point,
// never captured when a timer is registered, so activity arriving between
// ticks is always honoured. All timers go through the Scheduler and are
// cancelled by Stop in one operation.
type Monitor struct {
	sched   Scheduler
	idle    func() time.Duration
	logger  *slog.Logger
	timeout time.Duration
	warning time.Duration

	onWarning func(remaining time.Duration)
	onExpired func(Reason)

	mu        sync.Mutex
	now       func() time.Time
	state     State
	expiresAt time.Time
	handle    TimerHandle
	running   bool
}

// MonitorConfig groups the monitor dependencies.
type MonitorConfig struct {
	Scheduler Scheduler
	// Idle reports the current idle duration; typically Tracker.IdleDuration.
	Idle          func() time.Duration
	Logger        *slog.Logger
	IdleTimeout   time.Duration
	WarningWindow time.Duration
	// OnWarning fires once per entry into WARNING with the time left.
	OnWarning func(remaining time.Duration)
	// OnExpired fires exactly once when the session expires, with the reason.
	OnExpired func(Reason)
}

// NewMonitor constructs an inert Monitor; Start arms it for a session.
func NewMonitor(cfg MonitorConfig) *Monitor {
	return &Monitor{
		sched:     cfg.Scheduler,
		idle:      cfg.Idle,
		logger:    cfg.Logger,
		timeout:   cfg.IdleTimeout,
		warning:   cfg.WarningWindow,
		onWarning: cfg.OnWarning,
		onExpired: cfg.OnExpired,
		now:       time.Now,
		state:     StateExpired,
	}
}

// SetNow overrides the clock. Intended for tests.
func (m *Monitor) SetNow(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Start arms the monitor for a session ending at expiresAt. Any previous
// countdown is cancelled first.
func (m *Monitor) Start(expiresAt time.Time) {
	m.mu.Lock()
	if m.handle != nil {
		m.handle.Cancel()
		m.handle = nil
	}
	m.state = StateActive
	m.expiresAt = expiresAt
	m.running = true
	m.scheduleLocked(m.nextDelayLocked(0))
	m.mu.Unlock()
}

// Stop cancels the countdown without marking the session expired. Safe to
// call repeatedly and from expiry callbacks.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.running = false
	if m.handle != nil {
		m.handle.Cancel()
		m.handle = nil
	}
	m.mu.Unlock()
}

// State returns the current session state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Touch resets the idle countdown after user activity. A session in WARNING
// returns to ACTIVE; an expired session stays expired.
func (m *Monitor) Touch() {
	m.mu.Lock()
	if !m.running || m.state == StateExpired {
		m.mu.Unlock()
		return
	}
	m.state = StateActive
	if m.handle != nil {
		m.handle.Cancel()
	}
	m.scheduleLocked(m.nextDelayLocked(0))
	m.mu.Unlock()
}

// Check evaluates the state machine immediately. Exposed so wake-from-reload
// paths can force a decision without waiting for the next timer.
func (m *Monitor) Check() {
	m.check()
}

func (m *Monitor) check() {
	// Read the idle source before taking the lock; the tracker has its own.
	idle := m.idle()

	m.mu.Lock()
	if !m.running || m.state == StateExpired {
		m.mu.Unlock()
		return
	}
	now := m.now()

	var reason Reason
	switch {
	case !now.Before(m.expiresAt):
		reason = ReasonSessionExpired
	case idle >= m.timeout:
		reason = ReasonInactivity
	}
	if reason != "" {
		m.state = StateExpired
		m.running = false
		if m.handle != nil {
			m.handle.Cancel()
			m.handle = nil
		}
		onExpired := m.onExpired
		m.mu.Unlock()
		if m.logger != nil {
			m.logger.Info("session expired", slog.String("reason", string(reason)))
		}
		if onExpired != nil {
			onExpired(reason)
		}
		return
	}

	warned := false
	var remaining time.Duration
	if idle >= m.timeout-m.warning {
		if m.state != StateWarning {
			m.state = StateWarning
			warned = true
			remaining = m.timeout - idle
		}
	} else {
		m.state = StateActive
	}
	onWarning := m.onWarning
	m.scheduleLocked(m.nextDelayLocked(idle))
	m.mu.Unlock()

	if warned && onWarning != nil {
		onWarning(remaining)
	}
}

// nextDelayLocked computes the sleep until the next decision point: the
// warning boundary, the idle timeout, or the absolute expiry, whichever
// comes first.
func (m *Monitor) nextDelayLocked(idle time.Duration) time.Duration {
	var next time.Duration
	if idle < m.timeout-m.warning {
		next = m.timeout - m.warning - idle
	} else {
		next = m.timeout - idle
	}
	if untilExpiry := m.expiresAt.Sub(m.now()); untilExpiry < next {
		next = untilExpiry
	}
	if next < time.Millisecond {
		next = time.Millisecond
	}
	return next
}

func (m *Monitor) scheduleLocked(d time.Duration) {
	m.handle = m.sched.AfterFunc(d, m.check)
}
