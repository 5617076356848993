package engine

/*
LEARNING: OWNERSHIP GUARDS

Two independent locks keep remote updates from clobbering in-flight local
edits:

1. The active set: ids under live manipulation (selection, drag, scale,
   rotate). Replaced wholesale on every selection change; incremental
   add/remove would risk stale entries from a previous selection.
2. The editing lock: the single id under direct text edit. Releasing it does
   NOT clear immediately - a grace window absorbs the echo of the final edit
   that may still be in flight when the UI exits edit mode.

While an id is guarded, remote modify notifications for it are ignored
entirely (not queued, not merged); the next local write carries the
authoritative state forward.

Pure state - the owning Engine serializes access and drives the grace timer.
*/

type ownershipGuards struct {
	active    map[string]bool
	editingID string

	// Props captured when an id entered the active set. Interaction-complete
	// history entries read their previousProps from here, never from the
	// already-mutated mirror.
	baseline map[string]map[string]any
}

func newOwnershipGuards() *ownershipGuards {
	return &ownershipGuards{
		active:   make(map[string]bool),
		baseline: make(map[string]map[string]any),
	}
}

// ReplaceActive swaps the whole active set. snapshots carries the current
// props per newly guarded id, captured by the engine before any mutation.
func (g *ownershipGuards) ReplaceActive(ids []string, snapshots map[string]map[string]any) {
	g.active = make(map[string]bool, len(ids))
	for _, id := range ids {
		g.active[id] = true
	}
	g.baseline = snapshots
}

// Baseline returns the props snapshot taken when id became active.
func (g *ownershipGuards) Baseline(id string) (map[string]any, bool) {
	b, ok := g.baseline[id]
	return b, ok
}

// Drop removes a single id from the guard state. Used when the object is
// deleted out from under a live selection.
func (g *ownershipGuards) Drop(id string) {
	delete(g.active, id)
	delete(g.baseline, id)
	if g.editingID == id {
		g.editingID = ""
	}
}

func (g *ownershipGuards) SetEditing(id string) {
	g.editingID = id
}

func (g *ownershipGuards) ClearEditing() {
	g.editingID = ""
}

func (g *ownershipGuards) Editing() string {
	return g.editingID
}

// Blocks reports whether remote modifications for id must be dropped.
func (g *ownershipGuards) Blocks(id string) bool {
	return g.active[id] || g.editingID == id
}

// ActiveIDs returns the guarded ids in unspecified order.
func (g *ownershipGuards) ActiveIDs() []string {
	ids := make([]string, 0, len(g.active))
	for id := range g.active {
		ids = append(ids, id)
	}
	return ids
}
