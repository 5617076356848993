package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"colabcanvas/internal/models"

	"github.com/segmentio/ksuid"
)

/*
LEARNING: CLIENT-SIDE SYNCHRONIZATION ENGINE

One Engine instance owns the shared-canvas state for one room/session. Every
local mutation completes synchronously against the local mirror before any
network operation is issued (optimistic), then:

  local action -> mirror mutated -> history entry -> debounced/batched remote
  write -> change notification arrives later -> echo ledger drops it if we
  caused it, otherwise the ownership guards decide whether it lands.

Cursor/selection state flows in parallel over the ephemeral channel,
independent of the document store.

There are no package-level singletons: two rooms open in one process get two
independent engines. A single mutex serializes local calls, subscription
callbacks and timer callbacks; coordination with OTHER clients happens
entirely through the echo/guard protocol, never through shared memory.
*/

// Defaults for the timing knobs. All overridable through Config.
const (
	DefaultDebounce       = 100 * time.Millisecond
	DefaultEditingGrace   = 2 * time.Second
	DefaultCursorThrottle = 40 * time.Millisecond
	DefaultHeartbeat      = 2500 * time.Millisecond
	DefaultFreshness      = 7 * time.Second
	DefaultHistoryDepth   = 50
)

// Reserved keys in the control timer table. Object ids are KSUIDs and can
// never collide with these.
const (
	keyEditingGrace = "editing-grace"
	keyHeartbeat    = "heartbeat"
	keyCursorTrail  = "cursor-trail"
)

// Config wires an Engine to its room and collaborators.
type Config struct {
	RoomID  string
	User    models.UserInfo
	Store   DocumentStore
	Channel EphemeralChannel

	// Optional; zero values pick the defaults above.
	Clock          Clock
	Debounce       time.Duration
	EditingGrace   time.Duration
	CursorThrottle time.Duration
	Heartbeat      time.Duration
	Freshness      time.Duration
	HistoryDepth   int
}

// Engine is the per-room synchronization engine.
type Engine struct {
	mu sync.Mutex

	roomID string
	user   models.UserInfo

	store   DocumentStore
	channel EphemeralChannel
	clock   Clock

	debounceDur    time.Duration
	editingGrace   time.Duration
	cursorThrottle time.Duration
	heartbeatEvery time.Duration

	objects  *objectStore
	ledger   *echoLedger
	guards   *ownershipGuards
	pending  *pendingWrites
	history  *historyStack
	presence *presenceTracker

	// debounce holds the per-object write timers; control holds the editing
	// grace, cursor trailing-edge and heartbeat timers. Flush touches only
	// the former.
	debounce *timerTable
	control  *timerTable

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	connected   bool
	closed      bool
}

// New builds an Engine. Call Start to seed the mirror and join the room.
func New(cfg Config) (*Engine, error) {
	if cfg.RoomID == "" {
		return nil, fmt.Errorf("engine: room id is required")
	}
	if cfg.User.ID == "" {
		return nil, fmt.Errorf("engine: user id is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine: document store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.EditingGrace <= 0 {
		cfg.EditingGrace = DefaultEditingGrace
	}
	if cfg.CursorThrottle <= 0 {
		cfg.CursorThrottle = DefaultCursorThrottle
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = DefaultHistoryDepth
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		roomID:         cfg.RoomID,
		user:           cfg.User,
		store:          cfg.Store,
		channel:        cfg.Channel,
		clock:          cfg.Clock,
		debounceDur:    cfg.Debounce,
		editingGrace:   cfg.EditingGrace,
		cursorThrottle: cfg.CursorThrottle,
		heartbeatEvery: cfg.Heartbeat,
		objects:        newObjectStore(),
		ledger:         newEchoLedger(),
		guards:         newOwnershipGuards(),
		pending:        newPendingWrites(),
		history:        newHistoryStack(cfg.HistoryDepth),
		presence:       newPresenceTracker(cfg.User, cfg.Freshness),
		debounce:       newTimerTable(cfg.Clock),
		control:        newTimerTable(cfg.Clock),
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// Start seeds the mirror from the store, joins the ephemeral channel and
// announces presence. Safe to call once.
func (e *Engine) Start(ctx context.Context) error {
	seed, err := e.store.ListObjects(ctx, e.roomID)
	if err != nil {
		return fmt.Errorf("failed to seed room %s: %w", e.roomID, err)
	}

	e.mu.Lock()
	for _, obj := range seed {
		e.objects.Put(obj.Clone())
	}
	e.connected = true
	e.mu.Unlock()

	if e.channel != nil {
		unsub, err := e.channel.Subscribe(e.roomID, e.handleChannelMessage)
		if err != nil {
			return fmt.Errorf("failed to subscribe to room %s: %w", e.roomID, err)
		}
		e.mu.Lock()
		e.unsubscribe = unsub
		e.mu.Unlock()

		e.publishPresence(true)
		e.scheduleHeartbeat()
	}

	log.Printf("engine: joined room %s with %d objects (user %s)", e.roomID, len(seed), e.user.ID)
	return nil
}

// Close tears the session down: every pending timer is cancelled so no
// zombie write can fire for a since-destroyed object, and a best-effort
// leave is broadcast (readers would age the entries out regardless).
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	unsub := e.unsubscribe
	e.mu.Unlock()

	e.debounce.CancelAll()
	e.control.CancelAll()
	e.publishPresence(false)
	if unsub != nil {
		unsub()
	}
	e.cancel()
}

// --- object mutation API (optimistic local first, remote after) ---

// CreateObject inserts a new object locally and issues the remote insert.
// An empty id gets a generated KSUID; the id is returned either way.
func (e *Engine) CreateObject(id string, kind models.ObjectKind, props map[string]any, zOrder int) (string, error) {
	if !models.ValidKind(kind) {
		return "", fmt.Errorf("unknown object kind %q", kind)
	}
	if id == "" {
		id = ksuid.New().String()
	}

	now := e.clock.Now()
	obj := &models.CanvasObject{
		ID:        id,
		RoomID:    e.roomID,
		Kind:      kind,
		Props:     models.FilterProps(kind, props),
		ZOrder:    zOrder,
		CreatedBy: e.user.ID,
		CreatedAt: now,
		UpdatedBy: e.user.ID,
		UpdatedAt: now,
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", fmt.Errorf("engine is closed")
	}
	if _, exists := e.objects.Get(id); exists {
		e.mu.Unlock()
		return "", fmt.Errorf("object %s already exists", id)
	}
	e.objects.Put(obj)
	e.objects.MarkLocalCreated(id)
	e.history.Record(HistoryEntry{
		Type:     EntryCreate,
		ObjectID: id,
		Kind:     kind,
		Props:    cloneProps(obj.Props),
		ZOrder:   zOrder,
	})
	e.mu.Unlock()

	e.asyncInsert(obj.Clone())
	return id, nil
}

// UpdatePartial applies a partial prop change optimistically and schedules a
// debounced remote patch. This is the live-interaction path (drag frames,
// keystrokes); it records no history - call CompleteModify when the
// interaction ends.
func (e *Engine) UpdatePartial(id string, partial map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	obj, ok := e.objects.Get(id)
	if !ok {
		return
	}

	filtered := models.FilterProps(obj.Kind, partial)
	if len(filtered) == 0 {
		return
	}
	e.applyFields(obj, filtered)
	e.pending.Merge(id, filtered)
	e.debounce.Schedule(id, e.debounceDur, func() { e.fireDebounced(id) })
}

// CompleteModify finishes an interaction on one object: it applies the final
// props, records a single Modify history entry whose previousProps come from
// the snapshot taken when the object became active, and schedules the write.
func (e *Engine) CompleteModify(id string, newProps map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	obj, ok := e.objects.Get(id)
	if !ok {
		return
	}

	filtered := models.FilterProps(obj.Kind, newProps)
	if len(filtered) == 0 {
		return
	}

	prev := e.previousFields(obj, filtered)
	e.applyFields(obj, filtered)
	e.history.Record(HistoryEntry{
		Type:      EntryModify,
		ObjectID:  id,
		Kind:      obj.Kind,
		Props:     cloneProps(filtered),
		PrevProps: prev,
	})
	e.guards.baseline[id] = cloneProps(obj.Props)

	e.pending.Merge(id, filtered)
	e.debounce.Schedule(id, e.debounceDur, func() { e.fireDebounced(id) })
}

// UpdateBatch applies a coordinated multi-object change (multi-select drag,
// paste) as one atomic remote write and one history step. Never debounced:
// by the time a batch is requested the interaction is already complete.
func (e *Engine) UpdateBatch(writes []FieldWrite) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	issued := make([]FieldWrite, 0, len(writes))
	e.history.BeginBatch()
	for _, w := range writes {
		obj, ok := e.objects.Get(w.ObjectID)
		if !ok {
			continue
		}
		fields := filterFields(obj.Kind, w.Fields)
		if len(fields) == 0 {
			continue
		}
		prev := e.previousFields(obj, fields)
		e.applyFields(obj, fields)
		e.history.Record(HistoryEntry{
			Type:      EntryModify,
			ObjectID:  w.ObjectID,
			Kind:      obj.Kind,
			Props:     cloneProps(fields),
			PrevProps: prev,
		})
		e.ledger.Expect(w.ObjectID)
		issued = append(issued, FieldWrite{ObjectID: w.ObjectID, Fields: cloneProps(fields)})
	}
	e.history.EndBatch()
	e.mu.Unlock()

	if len(issued) > 0 {
		e.asyncBatch(issued)
	}
}

// DeleteObject removes the object locally, cancels its pending writes and
// issues the remote delete. Deletes are never guarded or echoed.
func (e *Engine) DeleteObject(id string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	obj, ok := e.objects.Get(id)
	if !ok {
		e.mu.Unlock()
		return
	}
	e.history.Record(HistoryEntry{
		Type:     EntryDelete,
		ObjectID: id,
		Kind:     obj.Kind,
		Props:    cloneProps(obj.Props),
		ZOrder:   obj.ZOrder,
	})
	e.dropLocal(id)
	e.mu.Unlock()

	e.asyncDelete(id)
}

// Duplicate copies the given objects with an offset, stacked above
// everything, as one undoable step. Returns the new ids in input order.
func (e *Engine) Duplicate(ids []string, dx, dy float64) []string {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}

	maxZ := 0
	for i, obj := range e.objects.All() {
		if i == 0 || obj.ZOrder > maxZ {
			maxZ = obj.ZOrder
		}
	}

	now := e.clock.Now()
	var created []*models.CanvasObject
	newIDs := make([]string, 0, len(ids))

	e.history.BeginBatch()
	for _, id := range ids {
		src, ok := e.objects.Get(id)
		if !ok {
			continue
		}
		props := cloneProps(src.Props)
		props["left"] = toFloat(props["left"]) + dx
		props["top"] = toFloat(props["top"]) + dy

		maxZ++
		copyObj := &models.CanvasObject{
			ID:        ksuid.New().String(),
			RoomID:    e.roomID,
			Kind:      src.Kind,
			Props:     props,
			ZOrder:    maxZ,
			CreatedBy: e.user.ID,
			CreatedAt: now,
			UpdatedBy: e.user.ID,
			UpdatedAt: now,
		}
		e.objects.Put(copyObj)
		e.objects.MarkLocalCreated(copyObj.ID)
		e.history.Record(HistoryEntry{
			Type:     EntryCreate,
			ObjectID: copyObj.ID,
			Kind:     copyObj.Kind,
			Props:    cloneProps(props),
			ZOrder:   copyObj.ZOrder,
		})
		created = append(created, copyObj.Clone())
		newIDs = append(newIDs, copyObj.ID)
	}
	e.history.EndBatch()
	e.mu.Unlock()

	for _, obj := range created {
		e.asyncInsert(obj)
	}
	return newIDs
}

// Reorder shifts the stacking position of one or more objects. No-op
// requests (already at the requested edge) return without writing.
func (e *Engine) Reorder(ids []string, action ReorderAction) {
	if len(ids) == 0 {
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	all := e.objects.All()

	assignments := make(map[string]int)
	if len(ids) == 1 {
		if z, changed := ComputeNewZOrder(all, ids[0], action); changed {
			assignments[ids[0]] = z
		}
	} else {
		assignments = ComputeBatchZOrder(all, ids, action)
	}
	if len(assignments) == 0 {
		e.mu.Unlock()
		return
	}

	writes := make([]FieldWrite, 0, len(assignments))
	e.history.BeginBatch()
	// Walk ids (not the map) for deterministic write order.
	for _, id := range ids {
		z, ok := assignments[id]
		if !ok {
			continue
		}
		obj, ok := e.objects.Get(id)
		if !ok {
			continue
		}
		e.history.Record(HistoryEntry{
			Type:      EntryModify,
			ObjectID:  id,
			Kind:      obj.Kind,
			Props:     map[string]any{"zOrder": z},
			PrevProps: map[string]any{"zOrder": obj.ZOrder},
		})
		obj.ZOrder = z
		obj.UpdatedBy = e.user.ID
		obj.UpdatedAt = e.clock.Now()
		e.ledger.Expect(id)
		writes = append(writes, FieldWrite{ObjectID: id, Fields: map[string]any{"zOrder": z}})
	}
	e.history.EndBatch()
	e.mu.Unlock()

	if len(writes) == 1 {
		e.asyncSetFields(writes[0].ObjectID, writes[0].Fields)
	} else if len(writes) > 1 {
		e.asyncBatch(writes)
	}
}

// Flush immediately fires every pending debounced write. Call when an
// interaction ends so stale unflushed state cannot leak into the next
// operation.
func (e *Engine) Flush() {
	e.debounce.FlushAll()
}

// --- remote change intake ---

// ApplyRemote feeds one store change notification into the engine.
func (e *Engine) ApplyRemote(ev models.ChangeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	switch ev.Type {
	case models.ChangeAdded:
		if _, exists := e.objects.Get(ev.ObjectID); exists {
			// Our own creation arriving; now the store has it.
			e.objects.ClearLocalCreated(ev.ObjectID)
			return
		}
		if ev.Object != nil {
			e.objects.Put(ev.Object.Clone())
		}

	case models.ChangeModified:
		if e.ledger.Consume(ev.ObjectID) {
			return // echo of our own write
		}
		if e.guards.Blocks(ev.ObjectID) {
			return // locally owned; next local write wins
		}
		if ev.Object != nil {
			e.objects.Put(ev.Object.Clone())
		}

	case models.ChangeRemoved:
		// Deletes are authoritative from any source.
		e.dropLocal(ev.ObjectID)
	}
}

// dropLocal removes an id from every corner of the engine: mirror, pending
// writes, debounce timer, ledger expectations and guards. Caller holds e.mu.
func (e *Engine) dropLocal(id string) {
	e.objects.Remove(id)
	e.pending.Drop(id)
	e.debounce.Cancel(id)
	e.ledger.Clear(id)
	e.guards.Drop(id)
}

// --- ownership guards ---

// SetActiveIDs replaces the set of objects under live local manipulation.
// Always a full replacement; nil clears the set. A props snapshot is taken
// per newly guarded id for later CompleteModify history entries.
func (e *Engine) SetActiveIDs(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	snapshots := make(map[string]map[string]any, len(ids))
	kept := ids[:0:0]
	for _, id := range ids {
		if obj, ok := e.objects.Get(id); ok {
			snapshots[id] = cloneProps(obj.Props)
			kept = append(kept, id)
		}
	}
	e.guards.ReplaceActive(kept, snapshots)
	e.presence.selfSelection = append([]string(nil), kept...)
}

// SelectObjects is the programmatic selection entry point (e.g. after an
// automated multi-object creation). Identical guard semantics; nothing is
// recorded as a user modify.
func (e *Engine) SelectObjects(ids []string) {
	e.SetActiveIDs(ids)
}

// SetEditingLock marks id as under direct text edit. Any pending grace-period
// release is cancelled first.
func (e *Engine) SetEditingLock(id string) {
	e.control.Cancel(keyEditingGrace)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.guards.SetEditing(id)
}

// ReleaseEditingLock ends direct text editing. The lock persists for the
// grace window to absorb a remote echo that was in flight when editing
// ended; re-entering edit mode before it fires cancels the release.
func (e *Engine) ReleaseEditingLock() {
	e.mu.Lock()
	if e.closed || e.guards.Editing() == "" {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.control.Schedule(keyEditingGrace, e.editingGrace, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.guards.ClearEditing()
	})
}

// --- history ---

// BeginHistoryBatch buffers subsequent history entries until
// EndHistoryBatch, so a compound operation undoes as one step.
func (e *Engine) BeginHistoryBatch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.BeginBatch()
}

func (e *Engine) EndHistoryBatch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.EndBatch()
}

func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanUndo()
}

func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanRedo()
}

// Undo reverts the newest history entry. No-op on an empty stack.
func (e *Engine) Undo() {
	e.mu.Lock()
	entry, ok := e.history.Undo()
	if !ok {
		e.mu.Unlock()
		return
	}
	var ops []func()
	e.applyEntry(entry, true, &ops)
	e.mu.Unlock()

	for _, op := range ops {
		op()
	}
}

// Redo replays the newest undone entry. No-op on an empty stack.
func (e *Engine) Redo() {
	e.mu.Lock()
	entry, ok := e.history.Redo()
	if !ok {
		e.mu.Unlock()
		return
	}
	var ops []func()
	e.applyEntry(entry, false, &ops)
	e.mu.Unlock()

	for _, op := range ops {
		op()
	}
}

// applyEntry applies a history entry in the given direction. Remote
// operations are collected into ops and run after the lock is released.
// Missing targets are skipped without aborting the rest of a batch. Caller
// holds e.mu.
func (e *Engine) applyEntry(entry HistoryEntry, inverse bool, ops *[]func()) {
	switch entry.Type {
	case EntryBatch:
		if inverse {
			for i := len(entry.Entries) - 1; i >= 0; i-- {
				e.applyEntry(entry.Entries[i], true, ops)
			}
		} else {
			for _, sub := range entry.Entries {
				e.applyEntry(sub, false, ops)
			}
		}

	case EntryCreate:
		if inverse {
			e.unapplyCreate(entry, ops)
		} else {
			e.reapplyCreate(entry, ops)
		}

	case EntryDelete:
		if inverse {
			e.reapplyCreate(entry, ops)
		} else {
			e.unapplyCreate(entry, ops)
		}

	case EntryModify:
		fields := entry.Props
		if inverse {
			fields = entry.PrevProps
		}
		obj, ok := e.objects.Get(entry.ObjectID)
		if !ok {
			return // deleted by another user in the meantime
		}
		e.applyFields(obj, fields)
		e.pending.Merge(entry.ObjectID, cloneProps(fields))
		id := entry.ObjectID
		e.debounce.Schedule(id, e.debounceDur, func() { e.fireDebounced(id) })
	}
}

// unapplyCreate deletes the object named by a Create entry (or replays a
// Delete). The locally-created mark is cleared first so the coming removed
// notification is not misread as an echo. Caller holds e.mu.
func (e *Engine) unapplyCreate(entry HistoryEntry, ops *[]func()) {
	if _, ok := e.objects.Get(entry.ObjectID); !ok {
		return
	}
	e.objects.ClearLocalCreated(entry.ObjectID)
	e.dropLocal(entry.ObjectID)
	id := entry.ObjectID
	*ops = append(*ops, func() { e.asyncDelete(id) })
}

// reapplyCreate recreates the object named by a Delete entry (or redoes a
// Create) from its stored kind/props/zOrder. Caller holds e.mu.
func (e *Engine) reapplyCreate(entry HistoryEntry, ops *[]func()) {
	if _, ok := e.objects.Get(entry.ObjectID); ok {
		return
	}
	now := e.clock.Now()
	obj := &models.CanvasObject{
		ID:        entry.ObjectID,
		RoomID:    e.roomID,
		Kind:      entry.Kind,
		Props:     cloneProps(entry.Props),
		ZOrder:    entry.ZOrder,
		CreatedBy: e.user.ID,
		CreatedAt: now,
		UpdatedBy: e.user.ID,
		UpdatedAt: now,
	}
	e.objects.Put(obj)
	e.objects.MarkLocalCreated(obj.ID)
	clone := obj.Clone()
	*ops = append(*ops, func() { e.asyncInsert(clone) })
}

// --- reads for the rendering surface ---

// Object returns a copy of one object.
func (e *Engine) Object(id string) (*models.CanvasObject, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.objects.Get(id)
	if !ok {
		return nil, false
	}
	return obj.Clone(), true
}

// Objects returns copies of every object in deterministic render order.
func (e *Engine) Objects() []*models.CanvasObject {
	e.mu.Lock()
	defer e.mu.Unlock()
	all := e.objects.All()
	out := make([]*models.CanvasObject, len(all))
	for i, obj := range all {
		out[i] = obj.Clone()
	}
	return out
}

// Geometry returns a copy of the object's current props, for duplicate/paste
// offset math.
func (e *Engine) Geometry(id string) (map[string]any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.objects.Get(id)
	if !ok {
		return nil, false
	}
	return cloneProps(obj.Props), true
}

// --- write plumbing ---

// fireDebounced issues the accumulated patch for id. Runs from a timer
// callback or from Flush, never under e.mu.
func (e *Engine) fireDebounced(id string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	fields, ok := e.pending.Take(id)
	if !ok {
		e.mu.Unlock()
		return
	}
	if _, exists := e.objects.Get(id); !exists {
		// Deleted while the timer was pending; the patch dies with it.
		e.mu.Unlock()
		return
	}
	e.ledger.Expect(id)
	e.mu.Unlock()

	e.asyncSetFields(id, fields)
}

func (e *Engine) asyncInsert(obj *models.CanvasObject) {
	go func() {
		if err := e.store.Insert(e.ctx, obj); err != nil {
			log.Printf("engine: insert %s failed (local state stands): %v", obj.ID, err)
		}
	}()
}

func (e *Engine) asyncSetFields(id string, fields map[string]any) {
	go func() {
		if err := e.store.SetFields(e.ctx, e.roomID, id, fields); err != nil {
			log.Printf("engine: patch %s failed (local state stands): %v", id, err)
		}
	}()
}

func (e *Engine) asyncBatch(writes []FieldWrite) {
	go func() {
		if err := e.store.SetFieldsBatch(e.ctx, e.roomID, writes); err != nil {
			log.Printf("engine: batch write of %d objects failed (local state stands): %v", len(writes), err)
		}
	}()
}

func (e *Engine) asyncDelete(id string) {
	go func() {
		if err := e.store.Delete(e.ctx, e.roomID, id); err != nil {
			log.Printf("engine: delete %s failed (local state stands): %v", id, err)
		}
	}()
}

// applyFields writes a field map onto an object. "zOrder" is the one meta
// field that lives outside the props bag. Caller holds e.mu.
func (e *Engine) applyFields(obj *models.CanvasObject, fields map[string]any) {
	for k, v := range fields {
		if k == "zOrder" {
			obj.ZOrder = int(toFloat(v))
			continue
		}
		obj.Props[k] = v
	}
	obj.UpdatedBy = e.user.ID
	obj.UpdatedAt = e.clock.Now()
}

// previousFields captures the prior value of each field about to change,
// preferring the snapshot taken when the object became active over the
// (already mutated during live interaction) mirror. Caller holds e.mu.
func (e *Engine) previousFields(obj *models.CanvasObject, fields map[string]any) map[string]any {
	baseline, _ := e.guards.Baseline(obj.ID)
	prev := make(map[string]any, len(fields))
	for k := range fields {
		if k == "zOrder" {
			prev[k] = obj.ZOrder
			continue
		}
		if baseline != nil {
			if v, ok := baseline[k]; ok {
				prev[k] = v
				continue
			}
		}
		if v, ok := obj.Props[k]; ok {
			prev[k] = v
		} else {
			prev[k] = nil
		}
	}
	return prev
}

// --- cursor / presence ---

// PublishCursor broadcasts the local pointer state, throttled to one message
// per throttle window with a trailing edge so the final position always goes
// out.
func (e *Engine) PublishCursor(x, y float64, isMoving bool) {
	e.mu.Lock()
	if e.closed || e.channel == nil {
		e.mu.Unlock()
		return
	}
	e.presence.selfCursor.X = x
	e.presence.selfCursor.Y = y
	e.presence.selfCursor.IsMoving = isMoving

	now := e.clock.Now()
	since := now.Sub(e.presence.lastCursorSent)
	if since >= e.cursorThrottle {
		e.presence.lastCursorSent = now
		e.presence.cursorPending = false
		state := e.presence.SelfCursor(now)
		e.mu.Unlock()
		e.publishCursorState(state)
		return
	}

	e.presence.cursorPending = true
	remaining := e.cursorThrottle - since
	e.mu.Unlock()
	e.control.Schedule(keyCursorTrail, remaining, e.flushCursor)
}

func (e *Engine) flushCursor() {
	e.mu.Lock()
	if e.closed || !e.presence.cursorPending {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()
	e.presence.cursorPending = false
	e.presence.lastCursorSent = now
	state := e.presence.SelfCursor(now)
	e.mu.Unlock()

	e.publishCursorState(state)
}

// Cursors returns the fresh remote cursors; entries older than the
// freshness window are evicted regardless of what the transport reported.
func (e *Engine) Cursors() []models.CursorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.presence.FreshCursors(e.clock.Now())
}

// Presences returns the fresh remote presence entries.
func (e *Engine) Presences() []models.PresenceEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.presence.FreshPresence(e.clock.Now())
}

// Connected reports the channel connectivity flag. Drives the UI's
// connection indicator; never tied to per-operation write failures.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// SetConnected is called by the transport glue on connect/disconnect. A
// reconnect re-announces presence so peers that evicted us see us again.
func (e *Engine) SetConnected(connected bool) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	reannounce := connected && !e.connected
	e.connected = connected
	e.mu.Unlock()

	if reannounce {
		e.publishPresence(true)
	}
}

func (e *Engine) heartbeat() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()
	e.presence.lastCursorSent = now
	cursor := e.presence.SelfCursor(now)
	e.mu.Unlock()

	// Heartbeats go out regardless of activity so a quiet user does not age
	// out of peers' freshness windows.
	e.publishCursorState(cursor)
	e.publishPresence(true)
	e.scheduleHeartbeat()
}

func (e *Engine) scheduleHeartbeat() {
	e.control.Schedule(keyHeartbeat, e.heartbeatEvery, e.heartbeat)
}

func (e *Engine) publishCursorState(state models.CursorState) {
	if e.channel == nil {
		return
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return
	}
	key := "cursor:" + e.user.ID
	msg, err := json.Marshal(models.ChannelMessage{Type: models.MessageTypeCursor, Key: key, Payload: payload})
	if err != nil {
		return
	}
	if err := e.channel.Publish(key, msg); err != nil {
		log.Printf("engine: cursor publish failed: %v", err)
	}
}

func (e *Engine) publishPresence(online bool) {
	if e.channel == nil {
		return
	}
	e.mu.Lock()
	entry := e.presence.SelfPresence(e.clock.Now(), online)
	e.mu.Unlock()

	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	key := "presence:" + e.user.ID
	msg, err := json.Marshal(models.ChannelMessage{Type: models.MessageTypePresence, Key: key, Payload: payload})
	if err != nil {
		return
	}
	if err := e.channel.Publish(key, msg); err != nil {
		log.Printf("engine: presence publish failed: %v", err)
	}
}

// handleChannelMessage is the ephemeral channel subscription callback.
func (e *Engine) handleChannelMessage(key string, payload []byte) {
	var msg models.ChannelMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}

	switch msg.Type {
	case models.MessageTypeCursor:
		var c models.CursorState
		if err := json.Unmarshal(msg.Payload, &c); err != nil {
			return
		}
		e.mu.Lock()
		e.presence.StoreCursor(&c)
		e.mu.Unlock()

	case models.MessageTypePresence, models.MessageTypeLeave:
		var p models.PresenceEntry
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		e.mu.Lock()
		e.presence.StorePresence(&p)
		e.mu.Unlock()

	case models.MessageTypeObject:
		var ev models.ChangeEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return
		}
		e.ApplyRemote(ev)
	}
}

// --- small helpers ---

func cloneProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// filterFields behaves like models.FilterProps but lets the zOrder meta
// field through.
func filterFields(kind models.ObjectKind, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "zOrder" || models.ValidProp(kind, k) {
			out[k] = v
		}
	}
	return out
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}
