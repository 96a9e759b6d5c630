package seeds

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

const insertDetectionSQL = `
INSERT INTO forest.detections (gid, start_date, end_date, geom, area, status, updated_at)
SELECT @gid, @start_date, @end_date, s.g,
	COALESCE(CAST(@area AS double precision), ST_Area(s.g::geography)),
	@status, now()
FROM (SELECT ST_SetSRID(ST_GeomFromGeoJSON(CAST(@geom AS text)), 4326) AS g) s
ON CONFLICT (gid) DO NOTHING`

// SeedDetections inserts every detection in the collection at path and returns how many
// were new. A feature without an area gets the geodesic area of its polygon.
func SeedDetections(d *gorm.DB, path string, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}
	fc, err := readCollection(path)
	if err != nil {
		return 0, err
	}
	rows := make([]detectionRow, 0, len(fc.Features))
	for i, f := range fc.Features {
		row, err := parseDetection(f)
		if err != nil {
			return 0, fmt.Errorf("feature %d: %w", i, err)
		}
		rows = append(rows, row)
	}

	inserted := 0
	err = d.Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			res := tx.Exec(insertDetectionSQL, map[string]any{
				"gid":        row.GID,
				"start_date": row.StartDate,
				"end_date":   row.EndDate,
				"area":       row.Area,
				"status":     string(row.Status),
				"geom":       row.Geom,
			})
			if res.Error != nil {
				return fmt.Errorf("failed to create detection %d: %w", row.GID, res.Error)
			}
			if res.RowsAffected == 0 {
				log.Debug("detection exists, skipping", "gid", row.GID)
				continue
			}
			inserted++
		}
		return resetSequence(tx, "forest.detections")
	})
	if err != nil {
		return 0, err
	}
	log.Info("seeded detections", "inserted", inserted, "skipped", len(rows)-inserted, "file", path)
	return inserted, nil
}
