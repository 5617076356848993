package api

import (
	"net/http"
)

// WebSocket endpoints

// HandleRoomWebSocket handles the WebSocket connection for a canvas room
func (h *Handler) HandleRoomWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleRoomConnection(w, r)
}
