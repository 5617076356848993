package engine

// pendingWrites accumulates the latest partial props per object id between
// debounce firings. Updates within the window are coalesced: a later value
// for the same field supersedes the earlier one, and exactly one remote
// patch goes out when the timer fires.
//
// Not self-locking: the owning Engine serializes access.
type pendingWrites struct {
	partials map[string]map[string]any
}

func newPendingWrites() *pendingWrites {
	return &pendingWrites{partials: make(map[string]map[string]any)}
}

// Merge folds partial into the accumulated props for id.
func (p *pendingWrites) Merge(id string, partial map[string]any) {
	acc, ok := p.partials[id]
	if !ok {
		acc = make(map[string]any, len(partial))
		p.partials[id] = acc
	}
	for k, v := range partial {
		acc[k] = v
	}
}

// Take removes and returns the accumulated props for id.
func (p *pendingWrites) Take(id string) (map[string]any, bool) {
	acc, ok := p.partials[id]
	if !ok {
		return nil, false
	}
	delete(p.partials, id)
	return acc, true
}

// Drop discards any accumulated props for id without writing them.
func (p *pendingWrites) Drop(id string) {
	delete(p.partials, id)
}

// Has reports whether a write is pending for id.
func (p *pendingWrites) Has(id string) bool {
	_, ok := p.partials[id]
	return ok
}
