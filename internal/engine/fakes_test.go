package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"colabcanvas/internal/models"
)

// fakeClock drives every timer by hand so debounce/grace behavior is tested
// without wall-clock delays.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward and fires due timers in deadline order.
// Callbacks run outside the clock lock so they may schedule new timers.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.deadline.After(c.now) {
				continue
			}
			if next == nil || t.deadline.Before(next.deadline) {
				next = t
			}
		}
		if next != nil {
			next.fired = true
		}
		c.mu.Unlock()

		if next == nil {
			return
		}
		next.fn()
	}
}

// fakeStore records every remote write. Writes arrive from engine goroutines,
// so assertions go through waitCalls.
type storeCall struct {
	op     string // "insert", "set", "batch", "delete"
	id     string
	fields map[string]any
	writes []FieldWrite
	obj    *models.CanvasObject
}

type fakeStore struct {
	mu    sync.Mutex
	seed  []*models.CanvasObject
	calls []storeCall
	fail  bool
}

func newFakeStore(seed ...*models.CanvasObject) *fakeStore {
	return &fakeStore{seed: seed}
}

func (s *fakeStore) record(c storeCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	if s.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func (s *fakeStore) Insert(ctx context.Context, obj *models.CanvasObject) error {
	return s.record(storeCall{op: "insert", id: obj.ID, obj: obj.Clone()})
}

func (s *fakeStore) SetFields(ctx context.Context, roomID, objectID string, fields map[string]any) error {
	return s.record(storeCall{op: "set", id: objectID, fields: fields})
}

func (s *fakeStore) SetFieldsBatch(ctx context.Context, roomID string, writes []FieldWrite) error {
	return s.record(storeCall{op: "batch", writes: writes})
}

func (s *fakeStore) Delete(ctx context.Context, roomID, objectID string) error {
	return s.record(storeCall{op: "delete", id: objectID})
}

func (s *fakeStore) ListObjects(ctx context.Context, roomID string) ([]*models.CanvasObject, error) {
	out := make([]*models.CanvasObject, len(s.seed))
	for i, obj := range s.seed {
		out[i] = obj.Clone()
	}
	return out, nil
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeStore) callsOf(op string) []storeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storeCall
	for _, c := range s.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

// waitCalls blocks until at least n remote calls landed.
func (s *fakeStore) waitCalls(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.callCount() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d store calls, have %d", n, s.callCount())
}

// waitOps blocks until at least n calls of the given op landed.
func (s *fakeStore) waitOps(t *testing.T, op string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.callsOf(op)) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q calls, have %d", n, op, len(s.callsOf(op)))
}

// fakeChannel captures publishes synchronously and lets tests inject inbound
// messages.
type publishRec struct {
	key     string
	payload []byte
}

type fakeChannel struct {
	mu        sync.Mutex
	published []publishRec
	subs      []func(key string, payload []byte)
}

func newFakeChannel() *fakeChannel { return &fakeChannel{} }

func (c *fakeChannel) Publish(key string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishRec{key: key, payload: payload})
	return nil
}

func (c *fakeChannel) Subscribe(room string, fn func(key string, payload []byte)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
	return func() {}, nil
}

// deliver feeds a message to every subscriber, as the transport would.
func (c *fakeChannel) deliver(key string, payload []byte) {
	c.mu.Lock()
	subs := append(([]func(string, []byte))(nil), c.subs...)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(key, payload)
	}
}

func (c *fakeChannel) publishedTo(key string) []publishRec {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []publishRec
	for _, p := range c.published {
		if p.key == key {
			out = append(out, p)
		}
	}
	return out
}

// --- shared constructors ---

func seedObject(id string, kind models.ObjectKind, props map[string]any, z int) *models.CanvasObject {
	return &models.CanvasObject{
		ID:     id,
		RoomID: "room-1",
		Kind:   kind,
		Props:  props,
		ZOrder: z,
	}
}

func newTestEngine(t *testing.T, seed ...*models.CanvasObject) (*Engine, *fakeStore, *fakeChannel, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := newFakeStore(seed...)
	channel := newFakeChannel()

	e, err := New(Config{
		RoomID:  "room-1",
		User:    models.UserInfo{ID: "user-a", Name: "Alice", Color: "#ff0000"},
		Store:   store,
		Channel: channel,
		Clock:   clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(e.Close)
	return e, store, channel, clock
}
