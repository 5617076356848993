package collaboration

import (
	"log"
	"net/http"
	"time"

	"colabcanvas/internal/middleware"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: WEBSOCKET UPGRADER

The upgrader converts HTTP connections to WebSocket connections.

Key settings:
- ReadBufferSize/WriteBufferSize: Memory for I/O operations
- CheckOrigin: CORS validation for WebSocket connections
*/

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: In production, validate origin properly
		return true
	},
}

// WebSocketHandler handles WebSocket connections for canvas rooms
type WebSocketHandler struct {
	sessionManager *SessionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(sessionManager *SessionManager) *WebSocketHandler {
	return &WebSocketHandler{
		sessionManager: sessionManager,
	}
}

// HandleRoomConnection handles the WebSocket connection for a canvas room
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	roomID := vars["room"]

	// Extract user info from query params (in production, use proper auth)
	userID := r.URL.Query().Get("user_id")
	userName := r.URL.Query().Get("user_name")

	if userID == "" {
		userID = "anon-" + uuid.NewString()
	}
	if userName == "" {
		userName = "Anonymous"
	}

	// Create span for connection
	ctx, span := middleware.StartSpan(ctx, "WebSocket.Connect",
		attribute.String("room.id", roomID),
		attribute.String("user.id", userID),
	)
	defer span.End()

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	session := &Session{
		ID:           ksuid.New().String(),
		RoomID:       roomID,
		UserID:       userID,
		UserName:     userName,
		LastActiveAt: time.Now(),
		Conn:         conn,
		Send:         make(chan []byte, 256), // Buffered channel
		Manager:      h.sessionManager,
	}

	// Register session
	h.sessionManager.register <- session

	// Bring the new client current on everyone else's cursor and presence
	h.sendRetainedState(session)

	// Start read and write pumps in separate goroutines
	// Learning: Separate goroutines prevent deadlock between reading and writing
	go session.WritePump(ctx)
	go session.ReadPump(ctx)

	log.Printf("✓ WebSocket connection established for room %s (user: %s)",
		roomID, userName)
}

// sendRetainedState replays the latest retained cursor/presence envelope per
// key so a late joiner sees the room's population immediately instead of
// waiting for the next round of heartbeats.
func (h *WebSocketHandler) sendRetainedState(session *Session) {
	for _, envelope := range h.sessionManager.RetainedExcept(session.RoomID, session.UserID) {
		select {
		case session.Send <- envelope:
			// Sent successfully
		default:
			log.Printf("Failed to send retained state to session %s", session.ID)
			return
		}
	}
}
