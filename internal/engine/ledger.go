package engine

// echoLedger counts pending remote writes per object id so the engine can
// tell "remote change I caused" from "remote change someone else caused"
// with an O(1) counter check instead of deep payload comparison.
//
// Not self-locking: the owning Engine serializes access.
type echoLedger struct {
	pending map[string]int
}

func newEchoLedger() *echoLedger {
	return &echoLedger{pending: make(map[string]int)}
}

// Expect records that one remote write for id has been issued and its echo
// is still in flight.
func (l *echoLedger) Expect(id string) {
	l.pending[id]++
}

// Consume absorbs one incoming modified notification for id. Returns true
// when the notification was an expected echo and must be dropped. More
// notifications than issued writes clamp at zero instead of going negative
// and are treated as ordinary remote updates.
func (l *echoLedger) Consume(id string) bool {
	n := l.pending[id]
	if n <= 0 {
		return false
	}
	if n == 1 {
		delete(l.pending, id)
	} else {
		l.pending[id] = n - 1
	}
	return true
}

// Clear drops every expected echo for id. Called when the object is deleted
// so stale echoes cannot resurrect state for a dead id.
func (l *echoLedger) Clear(id string) {
	delete(l.pending, id)
}

// Count returns the number of echoes still expected for id.
func (l *echoLedger) Count(id string) int {
	return l.pending[id]
}
