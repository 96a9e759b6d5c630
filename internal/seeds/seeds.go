// Package seeds loads parcel and detection fixtures from GeoJSON feature collections.
// Existing gids are skipped, so the loaders can be re-run against a populated database.
package seeds

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"gorm.io/gorm"
)

const (
	ParcelsFile    = "parcels.geojson"
	DetectionsFile = "detections.geojson"
)

// Simplification tolerances (degrees) for the pre-generated parcel resolutions.
const (
	MediumTolerance = 0.0001
	CoarseTolerance = 0.001
)

// SeedAll loads dir/parcels.geojson then dir/detections.geojson.
func SeedAll(d *gorm.DB, dir string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	if _, err := SeedParcels(d, filepath.Join(dir, ParcelsFile), log); err != nil {
		return fmt.Errorf("seed parcels: %w", err)
	}
	if _, err := SeedDetections(d, filepath.Join(dir, DetectionsFile), log); err != nil {
		return fmt.Errorf("seed detections: %w", err)
	}
	return nil
}

// resetSequence moves the gid sequence past explicitly inserted ids.
func resetSequence(d *gorm.DB, table string) error {
	return d.Exec(
		`SELECT setval(pg_get_serial_sequence(@table, 'gid'), COALESCE((SELECT MAX(gid) FROM `+table+`), 0) + 1, false)`,
		map[string]any{"table": table},
	).Error
}
