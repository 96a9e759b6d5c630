// Package foresttest provides an in-memory forest.Store for tests that do not need PostGIS.
//
// Spatial predicates are approximations: viewport filtering and polygon fractions work on
// bounding boxes, radius search measures centroid to centroid. Tests that depend on exact
// PostGIS semantics belong in the forest package integration tests.
package foresttest

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
	"github.com/EmpoweredVote/forestwatch/internal/forest"
	"github.com/EmpoweredVote/forestwatch/internal/lod"
	"github.com/EmpoweredVote/forestwatch/internal/spatial"
	"github.com/EmpoweredVote/forestwatch/internal/utils"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

type Parcel struct {
	Info forest.ParcelInfo
	// Geom is the fine geometry. Coarse and Medium fall back to it when nil.
	Geom   orb.Geometry
	Coarse orb.Geometry
	Medium orb.Geometry
}

func (p Parcel) at(r lod.Resolution) orb.Geometry {
	switch {
	case r == lod.Coarse && p.Coarse != nil:
		return p.Coarse
	case r == lod.Medium && p.Medium != nil:
		return p.Medium
	}
	return p.Geom
}

type detection struct {
	row  forest.DeforestationDetection
	geom orb.Geometry
}

var _ forest.Store = (*MemStore)(nil)

type MemStore struct {
	clock clockwork.Clock

	mu         sync.Mutex
	parcels    []Parcel
	detections map[int64]*detection
	audit      map[int64][]forest.AuditEntry
	rowLocks   map[int64]*sync.Mutex
	extraRows  map[string][]forest.FeatureRow
	failNext   []error
	failWrite  error

	viewportQueries atomic.Int64

	// LockHook, when set, runs while a verification holds the row lock.
	LockHook func(gid int64)
}

func NewMemStore(clock clockwork.Clock) *MemStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemStore{
		clock:      clock,
		detections: map[int64]*detection{},
		audit:      map[int64][]forest.AuditEntry{},
		rowLocks:   map[int64]*sync.Mutex{},
		extraRows:  map[string][]forest.FeatureRow{},
	}
}

func (s *MemStore) AddParcel(p Parcel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parcels = append(s.parcels, p)
}

func (s *MemStore) AddDetection(d forest.DeforestationDetection, geom orb.Geometry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Status == "" {
		d.Status = forest.StatusUnverified
	}
	s.detections[d.GID] = &detection{row: d, geom: geom}
	s.rowLocks[d.GID] = &sync.Mutex{}
}

// AddRawRow appends a pre-built row to every individual viewport query on layer, which lets
// tests feed geometry the database would never accept.
func (s *MemStore) AddRawRow(layer string, row forest.FeatureRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extraRows[layer] = append(s.extraRows[layer], row)
}

// FailNextViewport makes the next viewport query return err.
func (s *MemStore) FailNextViewport(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = append(s.failNext, err)
}

// FailWrites makes every verification fail with err after validation and before any change.
func (s *MemStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrite = err
}

func (s *MemStore) ViewportQueries() int64 { return s.viewportQueries.Load() }

// Detection returns a snapshot of the stored row.
func (s *MemStore) Detection(gid int64) (forest.DeforestationDetection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.detections[gid]
	if !ok {
		return forest.DeforestationDetection{}, false
	}
	return d.row, true
}

func (s *MemStore) AuditCount(gid int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audit[gid])
}

func encodeGeometry(g orb.Geometry) []byte {
	b, _ := geojson.NewGeometry(g).MarshalJSON()
	return b
}

// properties renders v the way json_build_object would and keeps only the listed keys.
func properties(v any, keep []string) map[string]any {
	b, _ := json.Marshal(v)
	var all map[string]any
	_ = json.Unmarshal(b, &all)
	out := make(map[string]any, len(keep))
	for _, k := range keep {
		if val, ok := all[k]; ok {
			out[k] = val
		}
	}
	return out
}

type candidate struct {
	gid   int64
	geom  orb.Geometry
	props map[string]any
	key   string
	area  float64
}

func (s *MemStore) candidates(layer forest.Layer, bound orb.Bound, r lod.Resolution) ([]candidate, error) {
	var out []candidate
	switch layer.Name {
	case forest.ParcelsLayer.Name:
		for _, p := range s.parcels {
			g := p.at(r)
			if g == nil || !g.Bound().Intersects(bound) {
				continue
			}
			out = append(out, candidate{
				gid:   p.Info.GID,
				geom:  g,
				props: properties(p.Info, layer.Properties),
				key:   p.Info.LandUseCode,
				area:  p.Info.DeclaredArea,
			})
		}
	case forest.DetectionsLayer.Name:
		for _, d := range s.detections {
			if d.geom == nil || !d.geom.Bound().Intersects(bound) {
				continue
			}
			out = append(out, candidate{
				gid:   d.row.GID,
				geom:  d.geom,
				props: properties(d.row, layer.Properties),
				key:   string(d.row.Status),
				area:  d.row.Area,
			})
		}
	default:
		return nil, fmt.Errorf("memstore: unknown layer %q", layer.Name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].gid < out[j].gid })
	return out, nil
}

func (s *MemStore) QueryViewport(ctx context.Context, layer forest.Layer, bbox spatial.BBox, strategy lod.Strategy) ([]forest.FeatureRow, error) {
	s.viewportQueries.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Transient(err, "viewport query cancelled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.failNext) > 0 {
		err := s.failNext[0]
		s.failNext = s.failNext[1:]
		return nil, err
	}

	cands, err := s.candidates(layer, bbox.Bound(), strategy.Resolution)
	if err != nil {
		return nil, err
	}

	if !strategy.Clustered {
		rows := make([]forest.FeatureRow, 0, len(cands))
		for _, c := range cands {
			rows = append(rows, forest.FeatureRow{Geometry: encodeGeometry(c.geom), Properties: c.props})
		}
		rows = append(rows, s.extraRows[layer.Name]...)
		if len(rows) > strategy.RowLimit {
			rows = rows[:strategy.RowLimit]
		}
		return rows, nil
	}

	type group struct {
		key   string
		count int
		area  float64
		geom  orb.MultiPolygon
	}
	groups := map[string]*group{}
	for _, c := range cands {
		g, ok := groups[c.key]
		if !ok {
			g = &group{key: c.key}
			groups[c.key] = g
		}
		g.count++
		g.area += c.area
		switch geom := c.geom.(type) {
		case orb.Polygon:
			g.geom = append(g.geom, geom)
		case orb.MultiPolygon:
			g.geom = append(g.geom, geom...)
		}
	}

	var kept []*group
	for _, g := range groups {
		if g.count >= strategy.MinClusterMembers {
			kept = append(kept, g)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].count != kept[j].count {
			return kept[i].count > kept[j].count
		}
		return kept[i].key < kept[j].key
	})
	if len(kept) > strategy.RowLimit {
		kept = kept[:strategy.RowLimit]
	}

	rows := make([]forest.FeatureRow, 0, len(kept))
	for _, g := range kept {
		rows = append(rows, forest.FeatureRow{
			Geometry: encodeGeometry(g.geom),
			Properties: map[string]any{
				layer.ClusterKey: g.key,
				"member_count":   float64(g.count),
				"total_area":     g.area,
			},
		})
	}
	return rows, nil
}

func (s *MemStore) FindParcelByPoint(ctx context.Context, lat, lon float64) (*forest.ParcelInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pt := orb.Point{lon, lat}
	var best *Parcel
	for i := range s.parcels {
		p := &s.parcels[i]
		if !contains(p.Geom, pt) {
			continue
		}
		if best == nil || planar.Area(p.Geom) < planar.Area(best.Geom) {
			best = p
		}
	}
	if best == nil {
		return nil, nil
	}
	info := best.Info
	return &info, nil
}

func contains(g orb.Geometry, pt orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, pt)
	}
	return false
}

func boundArea(b orb.Bound) float64 { return (b.Right() - b.Left()) * (b.Top() - b.Bottom()) }

func (s *MemStore) FindParcelsByPolygon(ctx context.Context, data []byte, limit int) ([]forest.ParcelIntersection, error) {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, apperrors.Validation("invalid_geometry", "body is not a GeoJSON geometry")
	}
	q := g.Geometry().Bound()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []forest.ParcelIntersection
	for _, p := range s.parcels {
		if p.Geom == nil {
			continue
		}
		pb := p.Geom.Bound()
		if !pb.Intersects(q) {
			continue
		}
		inter := orb.Bound{
			Min: orb.Point{max(pb.Min[0], q.Min[0]), max(pb.Min[1], q.Min[1])},
			Max: orb.Point{min(pb.Max[0], q.Max[0]), min(pb.Max[1], q.Max[1])},
		}
		frac := 0.0
		if a := boundArea(pb); a > 0 {
			frac = boundArea(inter) / a
		}
		out = append(out, forest.ParcelIntersection{ParcelInfo: p.Info, IntersectionFraction: frac})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IntersectionFraction != out[j].IntersectionFraction {
			return out[i].IntersectionFraction > out[j].IntersectionFraction
		}
		return out[i].GID < out[j].GID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) GetDetection(ctx context.Context, gid int64) (*forest.DeforestationDetection, error) {
	d, ok := s.Detection(gid)
	if !ok {
		return nil, apperrors.NotFound("detection %d not found", gid)
	}
	return &d, nil
}

func centroid(g orb.Geometry) orb.Point {
	c, _ := planar.CentroidArea(g)
	return c
}

func (s *MemStore) SearchWithinRadius(ctx context.Context, gid int64, radiusMeters float64, statuses []forest.Status, limit int) ([]forest.NearbyDetection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	origin, ok := s.detections[gid]
	if !ok {
		return nil, apperrors.NotFound("detection %d not found", gid)
	}
	if origin.geom == nil {
		return nil, nil
	}
	oc := centroid(origin.geom)

	var out []forest.NearbyDetection
	for id, d := range s.detections {
		if id == gid || d.geom == nil {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, d.row.Status) {
			continue
		}
		dist := geo.Distance(oc, centroid(d.geom))
		if dist > radiusMeters {
			continue
		}
		out = append(out, forest.NearbyDetection{
			GID:            d.row.GID,
			Status:         d.row.Status,
			Area:           d.row.Area,
			StartDate:      d.row.StartDate,
			EndDate:        d.row.EndDate,
			DistanceMeters: dist,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].GID < out[j].GID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ApplyVerification serialises per gid like a row lock: the read, the check and both writes
// happen while the gid lock is held.
func (s *MemStore) ApplyVerification(ctx context.Context, gid int64, patch forest.VerificationPatch, prov utils.Provenance) (*forest.DeforestationDetection, error) {
	s.mu.Lock()
	lock, ok := s.rowLocks[gid]
	s.mu.Unlock()
	if !ok {
		return nil, apperrors.NotFound("detection %d not found", gid)
	}

	lock.Lock()
	defer lock.Unlock()
	if s.LockHook != nil {
		s.LockHook(gid)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Transient(err, "apply verification cancelled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.detections[gid].row
	if err := patch.CheckAgainst(cur); err != nil {
		return nil, err
	}
	if s.failWrite != nil {
		return nil, s.failWrite
	}

	now := s.clock.Now().UTC()
	next := patch.Apply(cur, prov.Actor, now)
	s.detections[gid].row = next
	s.audit[gid] = append(s.audit[gid], forest.NewAuditEntry(cur, next, prov, now))
	return &next, nil
}

func (s *MemStore) ListAudit(ctx context.Context, gid int64) ([]forest.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.detections[gid]; !ok {
		return nil, apperrors.NotFound("detection %d not found", gid)
	}
	entries := slices.Clone(s.audit[gid])
	slices.Reverse(entries)
	return entries, nil
}
