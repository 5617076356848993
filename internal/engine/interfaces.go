package engine

import (
	"context"

	"colabcanvas/internal/models"
)

/*
LEARNING: CONSUMER-DRIVEN INTERFACES (Go Idiom)

The engine is the CONSUMER of the remote store and the ephemeral channel, so
their interfaces live here, not next to the implementations. The engine only
declares the operations it actually calls; the gorm repository and the
websocket client both satisfy these without knowing they exist.
*/

// FieldWrite is one entry of an atomic multi-object write.
type FieldWrite struct {
	ObjectID string         `json:"object_id"`
	Fields   map[string]any `json:"fields"`
}

// DocumentStore is what the engine needs from the remote persistent store:
// asynchronous, idempotent per document id, merge-on-write per field.
type DocumentStore interface {
	Insert(ctx context.Context, obj *models.CanvasObject) error
	SetFields(ctx context.Context, roomID, objectID string, fields map[string]any) error
	SetFieldsBatch(ctx context.Context, roomID string, writes []FieldWrite) error
	Delete(ctx context.Context, roomID, objectID string) error
	ListObjects(ctx context.Context, roomID string) ([]*models.CanvasObject, error)
}

// EphemeralChannel is what the presence broadcaster needs from the
// low-latency transport: per-key set plus room subscription. Auto-expiry on
// disconnect is optional; the engine filters by timestamp either way.
type EphemeralChannel interface {
	Publish(key string, payload []byte) error
	Subscribe(room string, fn func(key string, payload []byte)) (cancel func(), err error)
}
