package repository

import (
	"context"
	"fmt"

	"colabcanvas/internal/engine"
	"colabcanvas/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ObjectRepositoryImpl handles all database operations for canvas objects
// using GORM.
// Learning: This is the IMPLEMENTATION. It doesn't know about any interface.
// The packages that consume it declare the interfaces they need.
type ObjectRepositoryImpl struct {
	db *gorm.DB
}

// NewObjectRepository creates a new canvas object repository
// Returns concrete type - "Accept interfaces, return structs"
func NewObjectRepository(db *gorm.DB) *ObjectRepositoryImpl {
	return &ObjectRepositoryImpl{db: db}
}

// Insert stores a new canvas object. The KSUID is auto-generated in the
// BeforeCreate hook when the caller did not assign one.
func (r *ObjectRepositoryImpl) Insert(ctx context.Context, obj *models.CanvasObject) error {
	if err := r.db.WithContext(ctx).Create(obj).Error; err != nil {
		return fmt.Errorf("failed to insert object %s: %w", obj.ID, err)
	}
	return nil
}

// Get retrieves one object by id within a room.
func (r *ObjectRepositoryImpl) Get(ctx context.Context, roomID, objectID string) (*models.CanvasObject, error) {
	var obj models.CanvasObject

	err := r.db.WithContext(ctx).First(&obj, "room_id = ? AND id = ?", roomID, objectID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("object not found: %s", objectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	return &obj, nil
}

// ListObjects returns every object in the room in render order: z_order
// ascending, ties broken by (updated_at, id) so all clients agree on
// stacking.
func (r *ObjectRepositoryImpl) ListObjects(ctx context.Context, roomID string) ([]*models.CanvasObject, error) {
	var objects []*models.CanvasObject

	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("z_order ASC, updated_at ASC, id ASC").
		Find(&objects).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list objects for room %s: %w", roomID, err)
	}

	return objects, nil
}

// SetFields merges a partial field write into the object's props, last write
// wins per field. Fields the write does not name keep their stored value, so
// two users editing different fields of the same object never clobber each
// other. The "zOrder" key addresses the z_order column, not a prop.
func (r *ObjectRepositoryImpl) SetFields(ctx context.Context, roomID, objectID string, fields map[string]any) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return setFieldsTx(tx, roomID, objectID, fields)
	})
}

// SetFieldsBatch applies several field writes in one transaction: either all
// of them land or none do. Used for multi-object moves and reorders.
func (r *ObjectRepositoryImpl) SetFieldsBatch(ctx context.Context, roomID string, writes []engine.FieldWrite) error {
	if len(writes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range writes {
			if err := setFieldsTx(tx, roomID, w.ObjectID, w.Fields); err != nil {
				return err
			}
		}
		return nil
	})
}

// setFieldsTx is the read-modify-write core shared by SetFields and
// SetFieldsBatch. Runs inside a transaction; the row lock from the initial
// SELECT FOR UPDATE serializes concurrent mergers of the same object.
func setFieldsTx(tx *gorm.DB, roomID, objectID string, fields map[string]any) error {
	var obj models.CanvasObject

	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&obj, "room_id = ? AND id = ?", roomID, objectID).Error
	if err == gorm.ErrRecordNotFound {
		return fmt.Errorf("object not found: %s", objectID)
	}
	if err != nil {
		return fmt.Errorf("failed to load object %s: %w", objectID, err)
	}

	if obj.Props == nil {
		obj.Props = make(map[string]any)
	}
	updates := map[string]any{}
	for k, v := range fields {
		if k == "zOrder" {
			updates["z_order"] = v
			continue
		}
		obj.Props[k] = v
	}
	updates["props"] = obj.Props

	if err := tx.Model(&obj).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update object %s: %w", objectID, err)
	}
	return nil
}

// Delete permanently removes an object. Removals are authoritative: there is
// no soft delete, a deleted object is gone for every client.
func (r *ObjectRepositoryImpl) Delete(ctx context.Context, roomID, objectID string) error {
	result := r.db.WithContext(ctx).Delete(&models.CanvasObject{}, "room_id = ? AND id = ?", roomID, objectID)

	if result.Error != nil {
		return fmt.Errorf("failed to delete object %s: %w", objectID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("object not found: %s", objectID)
	}
	return nil
}

// ListRooms returns the distinct room ids that currently hold objects.
func (r *ObjectRepositoryImpl) ListRooms(ctx context.Context) ([]string, error) {
	var rooms []string

	err := r.db.WithContext(ctx).
		Model(&models.CanvasObject{}).
		Distinct("room_id").
		Order("room_id ASC").
		Pluck("room_id", &rooms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	return rooms, nil
}
