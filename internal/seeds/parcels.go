package seeds

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

const insertParcelSQL = `
INSERT INTO forest.parcels
	(gid, land_use_code, forest_type, owner, province, district, commune, declared_area,
	 geom_fine, geom_medium, geom_coarse)
SELECT @gid, @land_use_code, @forest_type, @owner, @province, @district, @commune, @declared_area,
	s.g,
	ST_Multi(ST_SimplifyPreserveTopology(s.g, @medium_tol)),
	ST_Multi(ST_SimplifyPreserveTopology(s.g, @coarse_tol))
FROM (SELECT ST_SetSRID(ST_GeomFromGeoJSON(CAST(@geom AS text)), 4326) AS g) s
ON CONFLICT (gid) DO NOTHING`

// SeedParcels inserts every parcel in the collection at path and returns how many were new.
func SeedParcels(d *gorm.DB, path string, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}
	fc, err := readCollection(path)
	if err != nil {
		return 0, err
	}
	rows := make([]parcelRow, 0, len(fc.Features))
	for i, f := range fc.Features {
		row, err := parseParcel(f)
		if err != nil {
			return 0, fmt.Errorf("feature %d: %w", i, err)
		}
		rows = append(rows, row)
	}

	inserted := 0
	err = d.Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			res := tx.Exec(insertParcelSQL, map[string]any{
				"gid":           row.Info.GID,
				"land_use_code": row.Info.LandUseCode,
				"forest_type":   row.Info.ForestType,
				"owner":         row.Info.Owner,
				"province":      row.Info.Province,
				"district":      row.Info.District,
				"commune":       row.Info.Commune,
				"declared_area": row.Info.DeclaredArea,
				"medium_tol":    MediumTolerance,
				"coarse_tol":    CoarseTolerance,
				"geom":          row.Geom,
			})
			if res.Error != nil {
				return fmt.Errorf("failed to create parcel %d: %w", row.Info.GID, res.Error)
			}
			if res.RowsAffected == 0 {
				log.Debug("parcel exists, skipping", "gid", row.Info.GID)
				continue
			}
			inserted++
		}
		return resetSequence(tx, "forest.parcels")
	})
	if err != nil {
		return 0, err
	}
	log.Info("seeded parcels", "inserted", inserted, "skipped", len(rows)-inserted, "file", path)
	return inserted, nil
}
