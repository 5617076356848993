package engine

import "time"

// Clock abstracts wall time so debounce and grace-period behavior is testable
// without real delays.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop cancels the timer. Safe to call more than once; returns false if
	// the callback already fired or was already stopped.
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return systemTimer{time.AfterFunc(d, fn)}
}

type systemTimer struct{ t *time.Timer }

func (s systemTimer) Stop() bool { return s.t.Stop() }

// SystemClock returns a Clock backed by the runtime timer wheel.
func SystemClock() Clock { return systemClock{} }
