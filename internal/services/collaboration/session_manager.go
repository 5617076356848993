package collaboration

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"colabcanvas/internal/middleware"
	"colabcanvas/internal/models"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: WEBSOCKET SESSION MANAGER

This implements concurrent session management for real-time collaboration.

Key Concepts:
1. **sync.RWMutex**: Read-write lock for concurrent safe map access
2. **Connection Pools**: One pool per canvas room
3. **Broadcast Pattern**: Send message to all connections in a room
4. **Keyed Retention**: The latest cursor/presence value per key is retained
   so a late joiner sees everyone immediately instead of waiting for the
   next heartbeat
5. **Cleanup**: Remove dead connections automatically
*/

// SessionManager manages all active WebSocket sessions
// Learning: Central hub for coordinating real-time collaboration
type SessionManager struct {
	// Session management
	rooms      map[string]map[*Session]bool // roomID -> set of sessions
	register   chan *Session
	unregister chan *Session
	broadcast  chan *BroadcastMessage
	mu         sync.RWMutex

	// Latest retained envelope per ephemeral key (cursor:<uid>, presence:<uid>)
	retained map[string]map[string][]byte // roomID -> key -> raw envelope
	retainMu sync.RWMutex

	// Control
	done chan struct{}
}

// Session represents an active WebSocket connection
type Session struct {
	ID           string
	RoomID       string
	UserID       string
	UserName     string
	LastActiveAt time.Time

	Conn    *websocket.Conn
	Send    chan []byte // Buffered channel for outbound messages
	Manager *SessionManager
}

// BroadcastMessage represents a message to broadcast to a canvas room
type BroadcastMessage struct {
	RoomID  string
	Message []byte
	Sender  *Session // Skip this session when broadcasting
}

// NewSessionManager creates a new session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		rooms:      make(map[string]map[*Session]bool),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		broadcast:  make(chan *BroadcastMessage, 256),
		retained:   make(map[string]map[string][]byte),
		done:       make(chan struct{}),
	}
}

// Start begins the session manager event loop
// Learning: This goroutine handles all session events concurrently
func (sm *SessionManager) Start() {
	log.Println("🔄 Starting WebSocket session manager...")

	go func() {
		for {
			select {
			case <-sm.done:
				log.Println("Session manager shutting down...")
				return

			case session := <-sm.register:
				sm.handleRegister(session)

			case session := <-sm.unregister:
				sm.handleUnregister(session)

			case msg := <-sm.broadcast:
				sm.handleBroadcast(msg)
			}
		}
	}()

	// Start cleanup goroutine
	go sm.cleanupLoop()

	log.Println("✓ WebSocket session manager started")
}

// handleRegister adds a session to a room
func (sm *SessionManager) handleRegister(session *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.rooms[session.RoomID] == nil {
		sm.rooms[session.RoomID] = make(map[*Session]bool)
	}

	sm.rooms[session.RoomID][session] = true

	log.Printf("  Session %s joined room %s (total: %d users)",
		session.ID, session.RoomID, len(sm.rooms[session.RoomID]))

	// Send join notification to other users
	joinMsg, _ := json.Marshal(models.ChannelMessage{
		Type: models.MessageTypeJoin,
		Key:  "presence:" + session.UserID,
	})

	sm.enqueueBroadcast(&BroadcastMessage{
		RoomID:  session.RoomID,
		Message: joinMsg,
		Sender:  session, // Don't send to self
	})
}

// handleUnregister removes a session from a room
func (sm *SessionManager) handleUnregister(session *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sessions, ok := sm.rooms[session.RoomID]; ok {
		if _, ok := sessions[session]; ok {
			delete(sessions, session)
			close(session.Send)

			// Remove empty rooms
			if len(sessions) == 0 {
				delete(sm.rooms, session.RoomID)
			}

			log.Printf("  Session %s left room %s (remaining: %d users)",
				session.ID, session.RoomID, len(sessions))

			// Drop this user's retained cursor/presence keys
			sm.retainMu.Lock()
			if keyed, exists := sm.retained[session.RoomID]; exists {
				delete(keyed, "cursor:"+session.UserID)
				delete(keyed, "presence:"+session.UserID)
				if len(keyed) == 0 {
					delete(sm.retained, session.RoomID)
				}
			}
			sm.retainMu.Unlock()

			// Flip the user offline for everyone still in the room. Clients
			// would age the entry out regardless; this just makes the leave
			// visible immediately when the socket dropped without a goodbye.
			entry, _ := json.Marshal(models.PresenceEntry{
				UserID:   session.UserID,
				UserName: session.UserName,
				Online:   false,
				LastSeen: time.Now(),
			})
			leaveMsg, _ := json.Marshal(models.ChannelMessage{
				Type:    models.MessageTypeLeave,
				Key:     "presence:" + session.UserID,
				Payload: entry,
			})

			sm.enqueueBroadcast(&BroadcastMessage{
				RoomID:  session.RoomID,
				Message: leaveMsg,
				Sender:  nil, // Send to everyone
			})
		}
	}
}

// handleBroadcast sends a message to all sessions in a room
func (sm *SessionManager) handleBroadcast(msg *BroadcastMessage) {
	sm.mu.RLock()
	sessions := sm.rooms[msg.RoomID]
	sm.mu.RUnlock()

	// Slow sessions are collected and unregistered after the fan-out.
	// Sending them to sm.unregister here would be a self-send: this code
	// runs on the event loop, which is the only receiver of that channel.
	var stale []*Session

	for session := range sessions {
		// Skip sender if specified
		if msg.Sender != nil && session == msg.Sender {
			continue
		}

		select {
		case session.Send <- msg.Message:
			// Message queued successfully
		default:
			// Buffer full - connection is slow/dead
			log.Printf("⚠️  Session %s buffer full, closing connection", session.ID)
			stale = append(stale, session)
		}
	}

	for _, session := range stale {
		sm.handleUnregister(session)
	}
}

// enqueueBroadcast queues a broadcast without ever blocking. The register and
// unregister handlers run on the same goroutine that drains sm.broadcast, so
// a plain send from them would wedge the loop once the buffer fills. Dropping
// is safe for the join/leave announcements they emit: clients age presence
// entries out on their own TTL.
func (sm *SessionManager) enqueueBroadcast(msg *BroadcastMessage) {
	select {
	case sm.broadcast <- msg:
	default:
		log.Printf("⚠️  Broadcast buffer full, dropping %d-byte message for room %s",
			len(msg.Message), msg.RoomID)
	}
}

// Broadcast sends a message to all users in a room
func (sm *SessionManager) Broadcast(roomID string, message []byte, sender *Session) {
	sm.broadcast <- &BroadcastMessage{
		RoomID:  roomID,
		Message: message,
		Sender:  sender,
	}
}

// PublishObjectChange relays a document store change into the room as an
// object envelope. Every session gets it, the author included: the author's
// sync engine recognizes its own writes through its pending-write ledger.
func (sm *SessionManager) PublishObjectChange(ev models.ChangeEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	msg, err := json.Marshal(models.ChannelMessage{
		Type:    models.MessageTypeObject,
		Payload: payload,
	})
	if err != nil {
		return
	}
	sm.Broadcast(ev.RoomID, msg, nil)
}

// Retain stores the latest envelope for an ephemeral key so late joiners can
// be brought current. Only keyed messages (cursor, presence) are retained.
func (sm *SessionManager) Retain(roomID, key string, envelope []byte) {
	if key == "" {
		return
	}
	sm.retainMu.Lock()
	defer sm.retainMu.Unlock()

	if sm.retained[roomID] == nil {
		sm.retained[roomID] = make(map[string][]byte)
	}
	sm.retained[roomID][key] = envelope
}

// RetainedExcept returns the retained envelopes for a room, skipping the
// given user's own keys.
func (sm *SessionManager) RetainedExcept(roomID, userID string) [][]byte {
	sm.retainMu.RLock()
	defer sm.retainMu.RUnlock()

	keyed := sm.retained[roomID]
	out := make([][]byte, 0, len(keyed))
	for key, envelope := range keyed {
		if strings.HasSuffix(key, ":"+userID) {
			continue
		}
		out = append(out, envelope)
	}
	return out
}

// GetSessions returns all active sessions for a room
func (sm *SessionManager) GetSessions(roomID string) []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := sm.rooms[roomID]
	result := make([]*Session, 0, len(sessions))

	for session := range sessions {
		result = append(result, session)
	}

	return result
}

// cleanupLoop periodically removes inactive sessions
func (sm *SessionManager) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sm.done:
			return
		case <-ticker.C:
			sm.cleanup()
		}
	}
}

// cleanup removes stale sessions
func (sm *SessionManager) cleanup() {
	sm.mu.RLock()
	var stale []*Session
	now := time.Now()
	timeout := 5 * time.Minute

	for _, sessions := range sm.rooms {
		for session := range sessions {
			if now.Sub(session.LastActiveAt) > timeout {
				stale = append(stale, session)
			}
		}
	}
	sm.mu.RUnlock()

	for _, session := range stale {
		log.Printf("  Cleaning up inactive session %s", session.ID)
		sm.unregister <- session
	}
}

// Shutdown gracefully closes all connections
func (sm *SessionManager) Shutdown() {
	log.Println("🛑 Shutting down session manager...")

	close(sm.done)

	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Close all sessions
	for _, sessions := range sm.rooms {
		for session := range sessions {
			close(session.Send)
			session.Conn.Close()
		}
	}

	sm.rooms = make(map[string]map[*Session]bool)
	log.Println("✓ Session manager shutdown complete")
}

// Session methods

// ReadPump reads messages from the WebSocket connection
// Learning: Each session has its own goroutine reading from the WebSocket
func (s *Session) ReadPump(ctx context.Context) {
	defer func() {
		s.Manager.unregister <- s
		s.Conn.Close()
	}()

	// Set read deadline
	s.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		s.LastActiveAt = time.Now()
		return nil
	})

	for {
		_, message, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		s.LastActiveAt = time.Now()

		// Add span for message processing
		msgCtx, span := middleware.StartSpan(ctx, "WebSocket.ProcessMessage",
			attribute.String("session.id", s.ID),
			attribute.String("room.id", s.RoomID),
			attribute.Int("message.size", len(message)),
		)

		var envelope models.ChannelMessage
		if err := json.Unmarshal(message, &envelope); err != nil {
			log.Printf("Dropping malformed message from session %s: %v", s.ID, err)
			span.End()
			continue
		}

		switch envelope.Type {
		case models.MessageTypeCursor, models.MessageTypePresence:
			// Keyed ephemera: retain the latest value for late joiners,
			// then fan out to the rest of the room.
			s.Manager.Retain(s.RoomID, envelope.Key, message)
			s.Manager.Broadcast(s.RoomID, message, s)

		case models.MessageTypeLeave:
			s.Manager.Broadcast(s.RoomID, message, s)

		default:
			// Object mutations go through the REST/store path, never the
			// socket; anything else is noise.
			log.Printf("Ignoring message type %q from session %s", envelope.Type, s.ID)
		}

		span.End()
		_ = msgCtx // Context used for span
	}
}

// WritePump writes messages to the WebSocket connection
// Learning: Separate goroutine for writing prevents blocking on slow clients
func (s *Session) WritePump(ctx context.Context) {
	ticker := time.NewTicker(54 * time.Second) // Ping interval
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := s.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
