package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

type ObjectKind string

const (
	KindRect   ObjectKind = "rect"
	KindCircle ObjectKind = "circle"
	KindLine   ObjectKind = "line"
	KindText   ObjectKind = "text"
	KindSticky ObjectKind = "sticky"
)

// CanvasObject is one drawable object on a shared canvas.
// Learning: Using KSUID instead of UUID provides:
// - Time-based sorting (first 32 bits are timestamp)
// - Better database index performance (sequential, less B-tree fragmentation)
// - No collisions across distributed clients
//
// Props holds the per-kind geometric/style fields as jsonb; the store merges
// writes field by field (last write wins per field), so a partial update never
// clobbers fields it does not name.
type CanvasObject struct {
	ID        string         `json:"id" gorm:"type:char(27);primaryKey"`
	RoomID    string         `json:"room_id" gorm:"type:varchar(64);not null;index"`
	Kind      ObjectKind     `json:"kind" gorm:"type:varchar(20);not null"`
	Props     map[string]any `json:"props" gorm:"type:jsonb;default:'{}'"`
	ZOrder    int            `json:"z_order" gorm:"column:z_order;not null;default:0;index"`
	CreatedBy string         `json:"created_by" gorm:"type:varchar(64)"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedBy string         `json:"updated_by" gorm:"type:varchar(64)"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate hook generates a KSUID when the caller did not assign an id.
func (o *CanvasObject) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = ksuid.New().String()
	}
	return nil
}

// TableName override
func (CanvasObject) TableName() string {
	return "canvas_objects"
}

// Clone returns a deep copy. The sync engine hands copies to the rendering
// surface so outside callers can never mutate the mirror directly.
func (o *CanvasObject) Clone() *CanvasObject {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Props = make(map[string]any, len(o.Props))
	for k, v := range o.Props {
		cp.Props[k] = v
	}
	return &cp
}
