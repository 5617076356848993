package engine

import "colabcanvas/internal/models"

// EntryType tags a history entry variant.
type EntryType string

const (
	EntryCreate EntryType = "create"
	EntryDelete EntryType = "delete"
	EntryModify EntryType = "modify"
	EntryBatch  EntryType = "batch"
)

// HistoryEntry is one undoable step. Create/Delete carry enough state to
// replay either direction; Modify carries the touched fields before and
// after; Batch groups sub-entries that undo/redo as one user-visible step.
type HistoryEntry struct {
	Type     EntryType
	ObjectID string
	Kind     models.ObjectKind
	Props    map[string]any
	// PrevProps holds the prior values of exactly the fields in Props.
	PrevProps map[string]any
	ZOrder    int
	Entries   []HistoryEntry
}

// historyStack keeps the bounded undo stack and the redo stack. The redo
// stack is cleared whenever a fresh entry is recorded - no redo after a new
// edit. Not self-locking: the owning Engine serializes access.
type historyStack struct {
	limit int

	undo []HistoryEntry
	redo []HistoryEntry

	// depth counts nested BeginBatch calls; entries buffer until the
	// outermost EndBatch.
	depth int
	batch []HistoryEntry
}

func newHistoryStack(limit int) *historyStack {
	return &historyStack{limit: limit}
}

// Record pushes a fresh entry. While a batch is open entries are buffered
// instead.
func (h *historyStack) Record(e HistoryEntry) {
	if h.depth > 0 {
		h.batch = append(h.batch, e)
		return
	}
	h.undo = append(h.undo, e)
	if len(h.undo) > h.limit {
		h.undo = h.undo[len(h.undo)-h.limit:]
	}
	h.redo = nil
}

// BeginBatch starts buffering. Nested calls are collapsed into the outermost
// batch.
func (h *historyStack) BeginBatch() {
	h.depth++
	if h.depth == 1 {
		h.batch = nil
	}
}

// EndBatch closes the buffer once the outermost batch ends: zero entries
// record nothing, one records a plain entry, two or more record a single
// Batch entry. Unmatched calls are ignored.
func (h *historyStack) EndBatch() {
	if h.depth == 0 {
		return
	}
	h.depth--
	if h.depth > 0 {
		return
	}
	buffered := h.batch
	h.batch = nil

	switch len(buffered) {
	case 0:
	case 1:
		h.Record(buffered[0])
	default:
		h.Record(HistoryEntry{Type: EntryBatch, Entries: buffered})
	}
}

// Undo pops the newest undo entry and parks it on the redo stack. The caller
// applies its inverse.
func (h *historyStack) Undo() (HistoryEntry, bool) {
	if len(h.undo) == 0 {
		return HistoryEntry{}, false
	}
	e := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, e)
	return e, true
}

// Redo pops the newest redo entry and parks it back on the undo stack. The
// caller replays it forward.
func (h *historyStack) Redo() (HistoryEntry, bool) {
	if len(h.redo) == 0 {
		return HistoryEntry{}, false
	}
	e := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, e)
	return e, true
}

func (h *historyStack) CanUndo() bool { return len(h.undo) > 0 }
func (h *historyStack) CanRedo() bool { return len(h.redo) > 0 }
