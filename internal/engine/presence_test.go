package engine

import (
	"encoding/json"
	"testing"
	"time"

	"colabcanvas/internal/models"

	"github.com/go-playground/assert/v2"
)

func deliverCursor(ch *fakeChannel, c models.CursorState) {
	payload, _ := json.Marshal(c)
	msg, _ := json.Marshal(models.ChannelMessage{
		Type:    models.MessageTypeCursor,
		Key:     "cursor:" + c.UserID,
		Payload: payload,
	})
	ch.deliver("cursor:"+c.UserID, msg)
}

func deliverPresence(ch *fakeChannel, typ models.MessageType, p models.PresenceEntry) {
	payload, _ := json.Marshal(p)
	msg, _ := json.Marshal(models.ChannelMessage{
		Type:    typ,
		Key:     "presence:" + p.UserID,
		Payload: payload,
	})
	ch.deliver("presence:"+p.UserID, msg)
}

func decodeCursor(t *testing.T, rec publishRec) models.CursorState {
	t.Helper()
	var msg models.ChannelMessage
	if err := json.Unmarshal(rec.payload, &msg); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var c models.CursorState
	if err := json.Unmarshal(msg.Payload, &c); err != nil {
		t.Fatalf("decode cursor: %v", err)
	}
	return c
}

func decodePresence(t *testing.T, rec publishRec) models.PresenceEntry {
	t.Helper()
	var msg models.ChannelMessage
	if err := json.Unmarshal(rec.payload, &msg); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var p models.PresenceEntry
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("decode presence: %v", err)
	}
	return p
}

func TestStartAnnouncesPresence(t *testing.T) {
	_, _, channel, _ := newTestEngine(t)

	recs := channel.publishedTo("presence:user-a")
	assert.Equal(t, len(recs), 1)
	p := decodePresence(t, recs[0])
	assert.Equal(t, p.Online, true)
	assert.Equal(t, p.UserName, "Alice")
}

func TestCursorThrottleLeadingAndTrailing(t *testing.T) {
	e, _, channel, clock := newTestEngine(t)

	// First move goes out immediately.
	e.PublishCursor(10, 10, true)
	assert.Equal(t, len(channel.publishedTo("cursor:user-a")), 1)

	// Moves inside the throttle window are held.
	e.PublishCursor(20, 20, true)
	e.PublishCursor(30, 30, true)
	assert.Equal(t, len(channel.publishedTo("cursor:user-a")), 1)

	// Trailing edge: the window closes and the LAST position goes out.
	clock.Advance(50 * time.Millisecond)
	recs := channel.publishedTo("cursor:user-a")
	assert.Equal(t, len(recs), 2)
	last := decodeCursor(t, recs[1])
	assert.Equal(t, last.X, 30.0)
	assert.Equal(t, last.Y, 30.0)
}

func TestCursorCarriesSelection(t *testing.T) {
	e, _, channel, _ := newTestEngine(t,
		seedObject("a", models.KindRect, rectProps(0, 0), 0),
	)

	e.SelectObjects([]string{"a"})
	e.PublishCursor(5, 5, false)

	recs := channel.publishedTo("cursor:user-a")
	c := decodeCursor(t, recs[len(recs)-1])
	assert.Equal(t, c.SelectedObjectIDs, []string{"a"})
}

func TestRemoteCursorVisibleUntilStale(t *testing.T) {
	e, _, channel, clock := newTestEngine(t)

	deliverCursor(channel, models.CursorState{
		UserID:     "user-b",
		UserName:   "Bob",
		Color:      "#00ff00",
		X:          42,
		Y:          7,
		LastActive: clock.Now(),
	})

	cursors := e.Cursors()
	assert.Equal(t, len(cursors), 1)
	assert.Equal(t, cursors[0].UserName, "Bob")

	// Bob goes quiet; past the freshness window the cursor is evicted even
	// though the transport never reported a disconnect.
	clock.Advance(8 * time.Second)
	assert.Equal(t, len(e.Cursors()), 0)
}

func TestStalePresenceEvicted(t *testing.T) {
	e, _, channel, clock := newTestEngine(t)

	deliverPresence(channel, models.MessageTypePresence, models.PresenceEntry{
		UserID:   "user-b",
		UserName: "Bob",
		Online:   true,
		LastSeen: clock.Now(),
	})
	assert.Equal(t, len(e.Presences()), 1)

	clock.Advance(8 * time.Second)
	assert.Equal(t, len(e.Presences()), 0)
}

func TestOwnMessagesIgnored(t *testing.T) {
	e, _, channel, clock := newTestEngine(t)

	deliverCursor(channel, models.CursorState{UserID: "user-a", LastActive: clock.Now()})
	deliverPresence(channel, models.MessageTypePresence, models.PresenceEntry{UserID: "user-a", LastSeen: clock.Now()})

	assert.Equal(t, len(e.Cursors()), 0)
	assert.Equal(t, len(e.Presences()), 0)
}

func TestHeartbeatKeepsQuietUserAlive(t *testing.T) {
	_, _, channel, clock := newTestEngine(t)

	before := len(channel.publishedTo("presence:user-a"))

	// No user activity at all; the heartbeat still re-announces.
	clock.Advance(3 * time.Second)
	assert.Equal(t, len(channel.publishedTo("presence:user-a")), before+1)
	assert.Equal(t, len(channel.publishedTo("cursor:user-a")), 1)

	clock.Advance(3 * time.Second)
	assert.Equal(t, len(channel.publishedTo("presence:user-a")), before+2)
}

func TestLeaveFlipsPeerOffline(t *testing.T) {
	e, _, channel, clock := newTestEngine(t)

	deliverPresence(channel, models.MessageTypePresence, models.PresenceEntry{
		UserID: "user-b", UserName: "Bob", Online: true, LastSeen: clock.Now(),
	})
	deliverPresence(channel, models.MessageTypeLeave, models.PresenceEntry{
		UserID: "user-b", UserName: "Bob", Online: false, LastSeen: clock.Now(),
	})

	peers := e.Presences()
	assert.Equal(t, len(peers), 1)
	assert.Equal(t, peers[0].Online, false)
}

func TestCloseAnnouncesLeave(t *testing.T) {
	e, _, channel, _ := newTestEngine(t)

	e.Close()

	recs := channel.publishedTo("presence:user-a")
	last := decodePresence(t, recs[len(recs)-1])
	assert.Equal(t, last.Online, false)
}

func TestReconnectReannounces(t *testing.T) {
	e, _, channel, _ := newTestEngine(t)

	assert.Equal(t, e.Connected(), true)
	e.SetConnected(false)
	assert.Equal(t, e.Connected(), false)
	before := len(channel.publishedTo("presence:user-a"))

	// Coming back online re-announces so peers that aged us out see us again.
	e.SetConnected(true)
	recs := channel.publishedTo("presence:user-a")
	assert.Equal(t, len(recs), before+1)
	assert.Equal(t, decodePresence(t, recs[len(recs)-1]).Online, true)
}
