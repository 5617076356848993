package api

import (
	"context"

	"colabcanvas/internal/engine"
	"colabcanvas/internal/models"
)

/*
LEARNING: CONSUMER-DRIVEN INTERFACES (Go Idiom)

This package (api/handlers) is the CONSUMER of the repository and the
assistant, so their interfaces live HERE.

The handler doesn't care about implementation details - it only cares about
the methods it needs to call. This is the "Interface Segregation Principle"
from SOLID.

Benefits:
- Handler package defines exactly what it needs
- Implementations can change without affecting handlers
- Easy to create mock services for testing handlers
- No circular dependencies
*/

// ObjectStore defines what handlers need from the persistence layer
// Only methods called by handlers are declared
type ObjectStore interface {
	Insert(ctx context.Context, obj *models.CanvasObject) error
	Get(ctx context.Context, roomID, objectID string) (*models.CanvasObject, error)
	ListObjects(ctx context.Context, roomID string) ([]*models.CanvasObject, error)
	SetFields(ctx context.Context, roomID, objectID string, fields map[string]any) error
	SetFieldsBatch(ctx context.Context, roomID string, writes []engine.FieldWrite) error
	Delete(ctx context.Context, roomID, objectID string) error
	ListRooms(ctx context.Context) ([]string, error)
}

// Assistant turns a drawing prompt into canvas objects. Optional: a nil
// assistant disables the endpoint.
type Assistant interface {
	CreateFromPrompt(ctx context.Context, roomID, userID, prompt string) ([]*models.CanvasObject, error)
}
