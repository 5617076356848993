package engine

import (
	"time"

	"colabcanvas/internal/models"
)

// presenceTracker keeps the last seen ephemeral state per remote user. All
// eviction is timestamp-based at read time, so it works identically whether
// the transport expires entries on disconnect or not.
//
// Not self-locking: the owning Engine serializes access.
type presenceTracker struct {
	self      models.UserInfo
	freshness time.Duration

	cursors  map[string]*models.CursorState
	presence map[string]*models.PresenceEntry

	// Local cursor broadcast state.
	selfCursor     models.CursorState
	selfSelection  []string
	lastCursorSent time.Time
	cursorPending  bool
}

func newPresenceTracker(self models.UserInfo, freshness time.Duration) *presenceTracker {
	return &presenceTracker{
		self:      self,
		freshness: freshness,
		cursors:   make(map[string]*models.CursorState),
		presence:  make(map[string]*models.PresenceEntry),
	}
}

func (p *presenceTracker) StoreCursor(c *models.CursorState) {
	if c == nil || c.UserID == "" || c.UserID == p.self.ID {
		return
	}
	p.cursors[c.UserID] = c
}

func (p *presenceTracker) StorePresence(e *models.PresenceEntry) {
	if e == nil || e.UserID == "" || e.UserID == p.self.ID {
		return
	}
	p.presence[e.UserID] = e
}

// FreshCursors returns the remote cursors inside the freshness window and
// evicts the rest. Entries the transport never explicitly removed still age
// out here.
func (p *presenceTracker) FreshCursors(now time.Time) []models.CursorState {
	out := make([]models.CursorState, 0, len(p.cursors))
	for id, c := range p.cursors {
		if now.Sub(c.LastActive) > p.freshness {
			delete(p.cursors, id)
			continue
		}
		out = append(out, *c)
	}
	return out
}

// FreshPresence returns the remote presence entries inside the freshness
// window and evicts the rest.
func (p *presenceTracker) FreshPresence(now time.Time) []models.PresenceEntry {
	out := make([]models.PresenceEntry, 0, len(p.presence))
	for id, e := range p.presence {
		if now.Sub(e.LastSeen) > p.freshness {
			delete(p.presence, id)
			continue
		}
		out = append(out, *e)
	}
	return out
}

// SelfCursor builds the local cursor state stamped at now.
func (p *presenceTracker) SelfCursor(now time.Time) models.CursorState {
	c := p.selfCursor
	c.UserID = p.self.ID
	c.UserName = p.self.Name
	c.Color = p.self.Color
	c.LastActive = now
	if len(p.selfSelection) > 0 {
		c.SelectedObjectIDs = append([]string(nil), p.selfSelection...)
	} else {
		c.SelectedObjectIDs = nil
	}
	return c
}

// SelfPresence builds the local presence entry stamped at now.
func (p *presenceTracker) SelfPresence(now time.Time, online bool) models.PresenceEntry {
	return models.PresenceEntry{
		UserID:   p.self.ID,
		UserName: p.self.Name,
		Color:    p.self.Color,
		Online:   online,
		LastSeen: now,
	}
}
