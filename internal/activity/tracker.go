package activity

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker folds raw activity signals into a single monotonically-updated
// last-activity timestamp. Input sources publish into the Events channel
// without knowing anything about sessions; Touch is the synchronous
// equivalent for in-process callers. The tracker carries no business logic.
//
// Persistence is coalesced: the in-memory timestamp is authoritative, while
// writes to the store are flushed at most once per flush interval.
type Tracker struct {
	store  Store
	logger *slog.Logger
	flush  time.Duration

	mu           sync.Mutex
	now          func() time.Time
	lastActivity time.Time
	listeners    []func()

	dirty    atomic.Bool
	events   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTracker constructs a Tracker over the given store.
func NewTracker(store Store, logger *slog.Logger, flushInterval time.Duration) *Tracker {
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Tracker{
		store:  store,
		logger: logger,
		now:    time.Now,
		flush:  flushInterval,
		events: make(chan struct{}, 64),
		done:   make(chan struct{}),
	}
}

// SetNow overrides the clock. Intended for tests.
func (t *Tracker) SetNow(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Events returns the channel input sources publish activity signals into.
// Sends never block callers: the channel is buffered and signals collapse,
// so a dropped send always has an equivalent event already pending.
func (t *Tracker) Events() chan<- struct{} {
	return t.events
}

// Publish pushes one activity signal without blocking.
func (t *Tracker) Publish() {
	select {
	case t.events <- struct{}{}:
	default:
	}
}

// Start restores the persisted timestamp and begins consuming activity
// events until Stop is called.
func (t *Tracker) Start(ctx context.Context) error {
	if stored, err := t.store.LoadLastActivity(ctx); err != nil {
		if t.logger != nil {
			t.logger.Warn("restore last activity", slog.Any("error", err))
		}
	} else if !stored.IsZero() {
		t.mu.Lock()
		if stored.After(t.lastActivity) {
			t.lastActivity = stored
		}
		t.mu.Unlock()
	}

	t.wg.Add(1)
	go t.consume(ctx)
	return nil
}

// Stop terminates event consumption after flushing the latest timestamp.
// Idempotent.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.wg.Wait()
	})
}

// Touch records activity at the current instant.
func (t *Tracker) Touch() {
	t.record()
}

// LastActivity returns the latest recorded activity instant.
func (t *Tracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

// IdleDuration returns the time elapsed since the last recorded activity.
// Before any activity was recorded it reports zero idle time.
func (t *Tracker) IdleDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastActivity.IsZero() {
		return 0
	}
	d := t.now().Sub(t.lastActivity)
	if d < 0 {
		return 0
	}
	return d
}

// OnTouch registers a callback fired on every forward movement of the
// timestamp. Callbacks must be fast and must not call back into the tracker.
func (t *Tracker) OnTouch(fn func()) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Reset moves the timestamp to now and persists it immediately. Called on
// login so a fresh session never inherits a stale idle clock.
func (t *Tracker) Reset(ctx context.Context) {
	t.mu.Lock()
	t.lastActivity = t.now()
	at := t.lastActivity
	t.mu.Unlock()
	t.dirty.Store(false)
	if err := t.store.SaveLastActivity(ctx, at); err != nil && t.logger != nil {
		t.logger.Warn("persist last activity", slog.Any("error", err))
	}
}

func (t *Tracker) record() {
	t.mu.Lock()
	now := t.now()
	moved := now.After(t.lastActivity)
	if moved {
		t.lastActivity = now
	}
	listeners := t.listeners
	t.mu.Unlock()

	if !moved {
		return
	}
	t.dirty.Store(true)
	for _, fn := range listeners {
		fn()
	}
}

func (t *Tracker) consume(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.flush)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			if t.dirty.Swap(false) {
				t.persist(ctx)
			}
			return
		case <-ctx.Done():
			return
		case <-t.events:
			t.record()
		case <-ticker.C:
			if t.dirty.Swap(false) {
				t.persist(ctx)
			}
		}
	}
}

func (t *Tracker) persist(ctx context.Context) {
	t.mu.Lock()
	at := t.lastActivity
	t.mu.Unlock()
	if at.IsZero() {
		return
	}
	if err := t.store.SaveLastActivity(ctx, at); err != nil && t.logger != nil {
		t.logger.Warn("persist last activity", slog.Any("error", err))
	}
}
