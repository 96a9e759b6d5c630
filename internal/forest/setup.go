package forest

import (
	"fmt"

	"github.com/EmpoweredVote/forestwatch/internal/db"
	"gorm.io/gorm"
)

// Init prepares the forest schema: PostGIS, tables, spatial indexes and the status check.
func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, "forest"); err != nil {
		return fmt.Errorf("ensure schema forest: %w", err)
	}

	if err := d.Exec(`CREATE EXTENSION IF NOT EXISTS postgis`).Error; err != nil {
		return fmt.Errorf("enable postgis extension: %w", err)
	}
	if err := d.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return fmt.Errorf("enable uuid-ossp extension: %w", err)
	}

	if err := d.AutoMigrate(
		&ForestParcel{},
		&DeforestationDetection{},
		&AuditEntry{},
	); err != nil {
		return fmt.Errorf("auto-migrate forest tables: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_parcels_geom_coarse ON forest.parcels USING GIST (geom_coarse)`,
		`CREATE INDEX IF NOT EXISTS idx_parcels_geom_medium ON forest.parcels USING GIST (geom_medium)`,
		`CREATE INDEX IF NOT EXISTS idx_parcels_geom_fine ON forest.parcels USING GIST (geom_fine)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_geom ON forest.detections USING GIST (geom)`,
		// radius searches cast to geography
		`CREATE INDEX IF NOT EXISTS idx_detections_geog ON forest.detections USING GIST ((geom::geography))`,
	}
	for _, stmt := range indexes {
		if err := d.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create spatial index: %w", err)
		}
	}

	if err := d.Exec(`
		DO $$
		BEGIN
			ALTER TABLE forest.detections
				ADD CONSTRAINT detections_status_check
				CHECK (status IN ('unverified', 'under_review', 'verified', 'rejected'));
		EXCEPTION WHEN duplicate_object THEN NULL;
		END $$;
	`).Error; err != nil {
		return fmt.Errorf("add status constraint: %w", err)
	}
	return nil
}
