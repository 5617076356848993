package db

import (
	"fmt"
	"log"

	"colabcanvas/internal/config"
	"colabcanvas/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB wraps the GORM database instance
type GormDB struct {
	*gorm.DB
}

// NewGorm initializes a new GORM database connection
// Learning: GORM provides a higher-level abstraction over raw SQL
func NewGorm(cfg *config.Config) (*GormDB, error) {
	dsn := cfg.DatabaseURL()

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate schema
	// Learning: GORM automatically creates/updates tables based on struct definitions
	if err := db.AutoMigrate(
		&models.CanvasObject{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Rooms render objects ordered by (z_order, updated_at, id); keep that
	// scan index-backed.
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_canvas_objects_room_order
		ON canvas_objects (room_id, z_order, updated_at, id)
	`).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create render order index: %w", err)
	}

	// Change notifications ride Postgres LISTEN/NOTIFY. The trigger is
	// created manually since GORM has no built-in support for it.
	if err := installChangefeed(db); err != nil {
		return nil, err
	}

	log.Println("✓ Database connected and migrated successfully")

	return &GormDB{db}, nil
}

// installChangefeed wires a row-level trigger that publishes every insert,
// update, and delete on canvas_objects to the canvas_changes NOTIFY channel.
// The payload mirrors models.ChangeEvent so listeners decode it directly.
func installChangefeed(db *gorm.DB) error {
	err := db.Exec(`
		CREATE OR REPLACE FUNCTION notify_canvas_change() RETURNS trigger AS $$
		DECLARE
			payload json;
		BEGIN
			IF TG_OP = 'DELETE' THEN
				payload = json_build_object(
					'type', 'removed',
					'object_id', OLD.id,
					'room_id', OLD.room_id,
					'at', now()
				);
			ELSE
				payload = json_build_object(
					'type', CASE TG_OP WHEN 'INSERT' THEN 'added' ELSE 'modified' END,
					'object_id', NEW.id,
					'room_id', NEW.room_id,
					'object', row_to_json(NEW),
					'at', now()
				);
			END IF;
			PERFORM pg_notify('canvas_changes', payload::text);
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql
	`).Error
	if err != nil {
		return fmt.Errorf("failed to create changefeed function: %w", err)
	}

	err = db.Exec(`
		DROP TRIGGER IF EXISTS canvas_objects_notify ON canvas_objects;
		CREATE TRIGGER canvas_objects_notify
		AFTER INSERT OR UPDATE OR DELETE ON canvas_objects
		FOR EACH ROW EXECUTE FUNCTION notify_canvas_change()
	`).Error
	if err != nil {
		return fmt.Errorf("failed to create changefeed trigger: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *GormDB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
