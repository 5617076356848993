package models

import "time"

// UserInfo identifies a connected user on the ephemeral channel.
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"` // Hex color for cursor/highlight
}

// CursorState is the high-frequency ephemeral state one user broadcasts:
// pointer position, current selection and a motion flag.
// Learning: This is separate from document content - it is never persisted,
// and every reader evicts entries whose LastActive is outside the freshness
// window regardless of what the transport reports.
type CursorState struct {
	X                 float64   `json:"x"`
	Y                 float64   `json:"y"`
	UserID            string    `json:"user_id"`
	UserName          string    `json:"user_name"`
	Color             string    `json:"color"`
	LastActive        time.Time `json:"last_active"`
	SelectedObjectIDs []string  `json:"selected_object_ids,omitempty"`
	IsMoving          bool      `json:"is_moving"`
}

// PresenceEntry is the durable online/offline status per user in a room,
// distinct from the cursor stream. The hub flips Online to false on an
// ungraceful disconnect so clients do not have to cooperate.
type PresenceEntry struct {
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name"`
	Color    string    `json:"color"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}
