package forest

import (
	"sort"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
	"github.com/EmpoweredVote/forestwatch/internal/lod"
)

// Layer describes how a map layer is read from the database. All identifiers are
// constants; nothing here comes from a request.
type Layer struct {
	Name       string
	Table      string
	KeyColumn  string
	Geometry   map[lod.Resolution]string // column or expression per resolution
	ClusterKey string
	AreaColumn string
	Properties []string

	// IndexColumn is the GIST-indexed column used for the bbox prefilter when the
	// per-resolution geometry is computed rather than stored.
	IndexColumn string
}

// GeomExpr returns the geometry expression for a resolution, falling back to the finest one.
func (l Layer) GeomExpr(r lod.Resolution) string {
	if g, ok := l.Geometry[r]; ok {
		return g
	}
	return l.Geometry[lod.Fine]
}

func (l Layer) FilterColumn(r lod.Resolution) string {
	if l.IndexColumn != "" {
		return l.IndexColumn
	}
	return l.GeomExpr(r)
}

var (
	ParcelsLayer = Layer{
		Name:      "parcels",
		Table:     "forest.parcels",
		KeyColumn: "gid",
		Geometry: map[lod.Resolution]string{
			lod.Coarse: "geom_coarse",
			lod.Medium: "geom_medium",
			lod.Fine:   "geom_fine",
		},
		ClusterKey: "land_use_code",
		AreaColumn: "declared_area",
		Properties: []string{"gid", "land_use_code", "forest_type", "owner", "province", "district", "commune", "declared_area"},
	}

	// Detections carry a single geometry; lower resolutions are simplified on the fly.
	DetectionsLayer = Layer{
		Name:      "detections",
		Table:     "forest.detections",
		KeyColumn: "gid",
		Geometry: map[lod.Resolution]string{
			lod.Coarse: "ST_SimplifyPreserveTopology(geom, 0.001)",
			lod.Medium: "ST_SimplifyPreserveTopology(geom, 0.0001)",
			lod.Fine:   "geom",
		},
		ClusterKey:  "status",
		AreaColumn:  "area",
		Properties:  []string{"gid", "status", "area", "verified_area", "start_date", "end_date"},
		IndexColumn: "geom",
	}
)

// Layers is the registry of servable layers.
type Layers map[string]Layer

func DefaultLayers() Layers {
	return Layers{
		ParcelsLayer.Name:    ParcelsLayer,
		DetectionsLayer.Name: DetectionsLayer,
	}
}

func (ls Layers) Lookup(name string) (Layer, error) {
	l, ok := ls[name]
	if !ok {
		return Layer{}, apperrors.NotFound("layer %q not found", name)
	}
	return l, nil
}

func (ls Layers) Names() []string {
	names := make([]string, 0, len(ls))
	for n := range ls {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
