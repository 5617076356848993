package collaboration

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestRetainKeepsLatestValuePerKey(t *testing.T) {
	sm := NewSessionManager()

	sm.Retain("room-1", "cursor:u1", []byte("old"))
	sm.Retain("room-1", "cursor:u1", []byte("new"))
	sm.Retain("room-1", "presence:u1", []byte("p1"))

	got := sm.RetainedExcept("room-1", "other")
	assert.Equal(t, len(got), 2)

	found := map[string]bool{}
	for _, envelope := range got {
		found[string(envelope)] = true
	}
	assert.Equal(t, found["new"], true)
	assert.Equal(t, found["old"], false)
}

func TestRetainedExceptSkipsOwnKeys(t *testing.T) {
	sm := NewSessionManager()

	sm.Retain("room-1", "cursor:u1", []byte("c1"))
	sm.Retain("room-1", "presence:u1", []byte("p1"))
	sm.Retain("room-1", "cursor:u2", []byte("c2"))

	got := sm.RetainedExcept("room-1", "u1")
	assert.Equal(t, len(got), 1)
	assert.Equal(t, string(got[0]), "c2")
}

func TestRetainIgnoresUnkeyedMessages(t *testing.T) {
	sm := NewSessionManager()

	sm.Retain("room-1", "", []byte("noise"))
	assert.Equal(t, len(sm.RetainedExcept("room-1", "nobody")), 0)
}

func TestRetainedRoomsAreIsolated(t *testing.T) {
	sm := NewSessionManager()

	sm.Retain("room-1", "cursor:u1", []byte("c1"))
	assert.Equal(t, len(sm.RetainedExcept("room-2", "nobody")), 0)
}

func TestSlowSessionEvictedWithoutStallingHub(t *testing.T) {
	sm := NewSessionManager()
	sm.Start()
	defer close(sm.done)

	slow := &Session{
		ID:      "slow",
		RoomID:  "room-1",
		UserID:  "u-slow",
		Send:    make(chan []byte, 1),
		Manager: sm,
	}
	sm.register <- slow

	// No write pump is draining this session, so one message fills it.
	slow.Send <- []byte("stuck")
	sm.Broadcast("room-1", []byte("overflow"), nil)

	// The hub must keep serving registrations after evicting the slow
	// session; a stalled event loop would never receive this send.
	next := &Session{
		ID:      "next",
		RoomID:  "room-1",
		UserID:  "u-next",
		Send:    make(chan []byte, 8),
		Manager: sm,
	}
	select {
	case sm.register <- next:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop stalled: register never processed after a full-buffer broadcast")
	}

	waitForSessions(t, sm, "room-1", func(sessions []*Session) bool {
		return len(sessions) == 1 && sessions[0] == next
	})
}

// waitForSessions polls the room's session set until ok returns true.
func waitForSessions(t *testing.T, sm *SessionManager, roomID string, ok func([]*Session) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ok(sm.GetSessions(roomID)) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("room %s never reached the expected session set", roomID)
}
