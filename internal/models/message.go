package models

import (
	"encoding/json"
	"time"
)

// MessageType defines the message types carried by the ephemeral channel.
type MessageType string

const (
	MessageTypeCursor   MessageType = "cursor"   // keyed per-user cursor state
	MessageTypePresence MessageType = "presence" // keyed per-user online/offline
	MessageTypeObject   MessageType = "object"   // relayed document store change
	MessageTypeJoin     MessageType = "join"
	MessageTypeLeave    MessageType = "leave"
	MessageTypeError    MessageType = "error"
)

// ChannelMessage is the envelope for everything on the ephemeral channel.
// Keyed messages (cursor, presence) carry the publisher's key so the hub can
// retain the latest value per key for late joiners.
type ChannelMessage struct {
	Type    MessageType     `json:"type"`
	Key     string          `json:"key,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ChangeType tags a document store change notification.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// ChangeEvent is one entry in the store subscription stream: a change type
// plus the document as the store now sees it (nil payload for removals, the
// id alone identifies the casualty).
type ChangeEvent struct {
	Type     ChangeType    `json:"type"`
	ObjectID string        `json:"object_id"`
	RoomID   string        `json:"room_id"`
	Object   *CanvasObject `json:"object,omitempty"`
	At       time.Time     `json:"at"`
}
