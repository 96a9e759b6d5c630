package forest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
	"github.com/EmpoweredVote/forestwatch/internal/lod"
	"github.com/EmpoweredVote/forestwatch/internal/spatial"
	"github.com/EmpoweredVote/forestwatch/internal/utils"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StoreConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	// StatementTimeout bounds every read query; LockTimeout bounds the wait for a
	// detection row lock during verification.
	StatementTimeout time.Duration
	LockTimeout      time.Duration
}

var _ Store = (*PostGISStore)(nil)

// PostGISStore executes the spatial queries against PostgreSQL/PostGIS through gorm.
type PostGISStore struct {
	db  *gorm.DB
	cfg StoreConfig
}

func NewPostGISStore(db *gorm.DB, cfg StoreConfig) *PostGISStore {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PostGISStore{db: db, cfg: cfg}
}

// detectionColumns leaves out the geometry, which the API never returns.
var detectionColumns = []string{
	"gid", "start_date", "end_date", "area", "status", "verified_area",
	"verified_by", "verified_at", "reason", "notes", "updated_at",
}

func setLocal(tx *gorm.DB, name string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return tx.Exec(fmt.Sprintf("SET LOCAL %s = %d", name, d.Milliseconds())).Error
}

// readTx runs fn in a read-only transaction bounded by the statement timeout, so a runaway
// aggregation is cancelled server side instead of holding a pooled connection.
func (s *PostGISStore) readTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SET TRANSACTION READ ONLY").Error; err != nil {
			return err
		}
		if err := setLocal(tx, "statement_timeout", s.cfg.StatementTimeout); err != nil {
			return err
		}
		return fn(tx)
	})
}

const envelope = "ST_MakeEnvelope(@minx, @miny, @maxx, @maxy, 4326)"

// viewportSQL builds the query for one layer/strategy pair. Only layer constants are
// interpolated; request values are bound.
func viewportSQL(l Layer, s lod.Strategy) string {
	geom := l.GeomExpr(s.Resolution)
	base := "t." + l.FilterColumn(s.Resolution)

	if s.Clustered {
		return fmt.Sprintf(`
			SELECT ST_AsGeoJSON(ST_Union(f.g), 6) AS geometry,
			       json_build_object(
			           '%[1]s', f.cluster_key,
			           'member_count', COUNT(*),
			           'total_area', COALESCE(SUM(f.area), 0)
			       ) AS properties
			FROM (
				SELECT t.%[1]s AS cluster_key, t.%[2]s AS area, %[3]s AS g
				FROM %[4]s t
				WHERE %[5]s && %[6]s
			) f
			WHERE ST_IsValid(f.g) AND ST_Intersects(f.g, %[6]s)
			GROUP BY f.cluster_key
			HAVING COUNT(*) >= @min_members
			ORDER BY COUNT(*) DESC, f.cluster_key
			LIMIT @limit
		`, l.ClusterKey, l.AreaColumn, geom, l.Table, base, envelope)
	}

	cols := make([]string, 0, len(l.Properties))
	pairs := make([]string, 0, len(l.Properties))
	for _, p := range l.Properties {
		cols = append(cols, "t."+p)
		pairs = append(pairs, fmt.Sprintf("'%s', f.%s", p, p))
	}
	return fmt.Sprintf(`
		SELECT ST_AsGeoJSON(f.g, 6) AS geometry,
		       json_build_object(%[1]s) AS properties
		FROM (
			SELECT %[2]s, %[3]s AS g
			FROM %[4]s t
			WHERE %[5]s && %[6]s
		) f
		WHERE ST_IsValid(f.g) AND ST_Intersects(f.g, %[6]s)
		ORDER BY f.%[7]s
		LIMIT @limit
	`, strings.Join(pairs, ", "), strings.Join(cols, ", "), geom, l.Table, base, envelope, l.KeyColumn)
}

func (s *PostGISStore) QueryViewport(ctx context.Context, layer Layer, bbox spatial.BBox, strategy lod.Strategy) ([]FeatureRow, error) {
	query := viewportSQL(layer, strategy)
	args := map[string]any{
		"minx":        bbox.MinX,
		"miny":        bbox.MinY,
		"maxx":        bbox.MaxX,
		"maxy":        bbox.MaxY,
		"limit":       strategy.RowLimit,
		"min_members": strategy.MinClusterMembers,
	}

	var out []FeatureRow
	err := s.readTx(ctx, func(tx *gorm.DB) error {
		rows, err := tx.Raw(query, args).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var geom, props []byte
			if err := rows.Scan(&geom, &props); err != nil {
				return fmt.Errorf("scan viewport row: %w", err)
			}
			row := FeatureRow{Geometry: geom, Properties: map[string]any{}}
			if len(props) > 0 {
				if err := json.Unmarshal(props, &row.Properties); err != nil {
					return fmt.Errorf("decode viewport properties: %w", err)
				}
			}
			out = append(out, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, classify(err, "viewport query")
	}
	return out, nil
}

func (s *PostGISStore) FindParcelByPoint(ctx context.Context, lat, lon float64) (*ParcelInfo, error) {
	var found []ParcelInfo
	err := s.readTx(ctx, func(tx *gorm.DB) error {
		return tx.Raw(`
			SELECT gid, land_use_code, forest_type, owner, province, district, commune, declared_area
			FROM forest.parcels
			WHERE ST_Contains(geom_fine, ST_SetSRID(ST_MakePoint(@lon, @lat), 4326))
			  AND ST_IsValid(geom_fine)
			ORDER BY ST_Area(geom_fine) ASC
			LIMIT 1
		`, map[string]any{"lat": lat, "lon": lon}).Scan(&found).Error
	})
	if err != nil {
		return nil, classify(err, "parcel point lookup")
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (s *PostGISStore) FindParcelsByPolygon(ctx context.Context, geojson []byte, limit int) ([]ParcelIntersection, error) {
	var out []ParcelIntersection
	err := s.readTx(ctx, func(tx *gorm.DB) error {
		return tx.Raw(`
			WITH q AS (
				SELECT ST_MakeValid(ST_SetSRID(ST_GeomFromGeoJSON(CAST(@geom AS text)), 4326)) AS g
			)
			SELECT p.gid, p.land_use_code, p.forest_type, p.owner, p.province, p.district, p.commune, p.declared_area,
			       COALESCE(
			           ST_Area(ST_Intersection(p.geom_fine, q.g)::geography)
			           / NULLIF(ST_Area(p.geom_fine::geography), 0),
			       0) AS intersection_fraction
			FROM forest.parcels p, q
			WHERE p.geom_fine && q.g
			  AND ST_IsValid(p.geom_fine)
			  AND ST_Intersects(p.geom_fine, q.g)
			ORDER BY intersection_fraction DESC, p.gid
			LIMIT @limit
		`, map[string]any{"geom": string(geojson), "limit": limit}).Scan(&out).Error
	})
	if err != nil {
		return nil, classify(err, "parcel polygon lookup")
	}
	return out, nil
}

func (s *PostGISStore) detectionExists(tx *gorm.DB, gid int64) (bool, error) {
	var n int64
	if err := tx.Model(&DeforestationDetection{}).Where("gid = ?", gid).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostGISStore) GetDetection(ctx context.Context, gid int64) (*DeforestationDetection, error) {
	var d DeforestationDetection
	err := s.readTx(ctx, func(tx *gorm.DB) error {
		err := tx.Select(detectionColumns).Where("gid = ?", gid).Take(&d).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("detection %d not found", gid)
		}
		return err
	})
	if err != nil {
		return nil, classify(err, "get detection")
	}
	return &d, nil
}

// SearchWithinRadius measures on the geography type, so radius and distances are metres on
// the spheroid rather than degrees.
func (s *PostGISStore) SearchWithinRadius(ctx context.Context, gid int64, radiusMeters float64, statuses []Status, limit int) ([]NearbyDetection, error) {
	query := `
		SELECT d.gid, d.status, d.area, d.start_date, d.end_date,
		       ST_Distance(d.geom::geography, o.geom::geography) AS distance_m
		FROM forest.detections d
		JOIN forest.detections o ON o.gid = @gid
		WHERE d.gid <> @gid
		  AND ST_DWithin(d.geom::geography, o.geom::geography, CAST(@radius AS double precision))`
	args := map[string]any{"gid": gid, "radius": radiusMeters, "limit": limit}
	if len(statuses) > 0 {
		strs := make([]string, len(statuses))
		for i, st := range statuses {
			strs[i] = string(st)
		}
		query += `
		  AND d.status = ANY(@statuses)`
		args["statuses"] = pq.Array(strs)
	}
	query += `
		ORDER BY distance_m ASC, d.gid
		LIMIT @limit`

	var out []NearbyDetection
	err := s.readTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.detectionExists(tx, gid)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NotFound("detection %d not found", gid)
		}
		return tx.Raw(query, args).Scan(&out).Error
	})
	if err != nil {
		return nil, classify(err, "radius search")
	}
	return out, nil
}

// ApplyVerification is the only write path. The row update and its audit entry commit or
// roll back together; concurrent calls for one gid queue on the row lock.
func (s *PostGISStore) ApplyVerification(ctx context.Context, gid int64, patch VerificationPatch, prov utils.Provenance) (*DeforestationDetection, error) {
	var updated DeforestationDetection
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := setLocal(tx, "lock_timeout", s.cfg.LockTimeout); err != nil {
			return err
		}

		var cur DeforestationDetection
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select(detectionColumns).
			Where("gid = ?", gid).
			Take(&cur).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("detection %d not found", gid)
		}
		if err != nil {
			return err
		}

		if err := patch.CheckAgainst(cur); err != nil {
			return err
		}

		now := s.cfg.Clock.Now().UTC().Truncate(time.Microsecond)
		next := patch.Apply(cur, prov.Actor, now)

		res := tx.Model(&DeforestationDetection{}).Where("gid = ?", gid).Updates(updateColumns(next))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("update detection %d: %d rows affected", gid, res.RowsAffected)
		}

		entry := NewAuditEntry(cur, next, prov, now)
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}

		updated = next
		return nil
	})
	if err != nil {
		return nil, classify(err, "apply verification")
	}

	s.cfg.Logger.Info("detection_verified",
		"gid", gid, "status", updated.Status, "actor", prov.Actor, "request_id", prov.RequestID)
	return &updated, nil
}

func (s *PostGISStore) ListAudit(ctx context.Context, gid int64) ([]AuditEntry, error) {
	var entries []AuditEntry
	err := s.readTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.detectionExists(tx, gid)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NotFound("detection %d not found", gid)
		}
		return tx.Where("gid = ?", gid).Order("changed_at DESC").Order("id").Find(&entries).Error
	})
	if err != nil {
		return nil, classify(err, "list audit")
	}
	return entries, nil
}
