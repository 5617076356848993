package engine

// Test-only peeks at private engine state.

func (e *Engine) ledgerCount(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Count(id)
}

func (e *Engine) isLocalCreated(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.objects.IsLocalCreated(id)
}
