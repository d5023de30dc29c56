package session

import "time"

// TimerHandle is a cancellable scheduled callback. Cancel is idempotent and
// safe to call from any goroutine; after Cancel returns the callback either
// already ran or never will.
type TimerHandle interface {
	Cancel() bool
}

// Scheduler creates cancellable timers. All timer creation in the core is
// routed through one scheduler owned by the monitor and the refresher, so
// cancelling everything on logout is a single complete operation rather than
// scattered clear calls. Periodic work is expressed by rescheduling from
// inside the callback.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) TimerHandle
}

type realScheduler struct{}

// NewScheduler returns a Scheduler backed by runtime timers.
func NewScheduler() Scheduler {
	return realScheduler{}
}

func (realScheduler) AfterFunc(d time.Duration, fn func()) TimerHandle {
	return realTimer{timer: time.AfterFunc(d, fn)}
}

type realTimer struct {
	timer *time.Timer
}

func (t realTimer) Cancel() bool {
	return t.timer.Stop()
}
