package engine

import (
	"sync"
	"time"
)

/*
LEARNING: CENTRAL TIMER TABLE

The engine needs several delayed, cancellable callbacks: one debounce timer
per object id plus the editing-lock grace timer. Instead of scattering
AfterFunc calls across handlers, they all live in one table keyed by id with
explicit cancel/fire/flush, so teardown can prove no zombie timer survives.
*/

type timerEntry struct {
	timer Timer
	fn    func()
}

type timerTable struct {
	clock Clock

	mu      sync.Mutex
	entries map[string]*timerEntry
}

func newTimerTable(clock Clock) *timerTable {
	return &timerTable{
		clock:   clock,
		entries: make(map[string]*timerEntry),
	}
}

// Schedule (re)arms the timer for key. A previously scheduled callback for
// the same key is cancelled; only the latest fn can fire.
func (t *timerTable) Schedule(key string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.entries[key]; ok {
		old.timer.Stop()
	}

	entry := &timerEntry{fn: fn}
	t.entries[key] = entry
	entry.timer = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		current, ok := t.entries[key]
		if !ok || current != entry {
			// Superseded or cancelled between firing and running.
			t.mu.Unlock()
			return
		}
		delete(t.entries, key)
		t.mu.Unlock()

		fn()
	})
}

// Cancel stops the pending timer for key. Idempotent.
func (t *timerTable) Cancel(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.entries, key)
	return true
}

// Fire cancels the pending timer for key and runs its callback immediately.
func (t *timerTable) Fire(key string) bool {
	t.mu.Lock()
	entry, ok := t.entries[key]
	if ok {
		entry.timer.Stop()
		delete(t.entries, key)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	entry.fn()
	return true
}

// FlushAll fires every pending timer immediately.
func (t *timerTable) FlushAll() {
	t.mu.Lock()
	pending := make([]*timerEntry, 0, len(t.entries))
	for key, entry := range t.entries {
		entry.timer.Stop()
		delete(t.entries, key)
		pending = append(pending, entry)
	}
	t.mu.Unlock()

	for _, entry := range pending {
		entry.fn()
	}
}

// CancelAll stops every pending timer without firing. Used on teardown.
func (t *timerTable) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, entry := range t.entries {
		entry.timer.Stop()
		delete(t.entries, key)
	}
}

// Pending reports whether a timer is scheduled for key.
func (t *timerTable) Pending(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	return ok
}
