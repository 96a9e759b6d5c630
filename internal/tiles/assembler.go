package tiles

import (
	"log/slog"
	"maps"
	"math"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
	"github.com/EmpoweredVote/forestwatch/internal/forest"
	"github.com/EmpoweredVote/forestwatch/internal/lod"
	"github.com/EmpoweredVote/forestwatch/internal/metrics"
	"github.com/EmpoweredVote/forestwatch/internal/spatial"
	"github.com/paulmach/orb/geojson"
)

const (
	LayerTypeCluster = "cluster"
	LayerTypeFeature = "feature"
)

type Metadata struct {
	Layer        string         `json:"layer"`
	BBox         [4]float64     `json:"bbox"`
	Zoom         int            `json:"zoom"`
	LoadStrategy string         `json:"load_strategy"`
	Resolution   lod.Resolution `json:"resolution"`
	FeatureCount int            `json:"feature_count"`
	SkippedCount int            `json:"skipped_count"`
	TTLSeconds   int            `json:"ttl_seconds"`
}

// Payload is a GeoJSON FeatureCollection with a foreign "metadata" member.
type Payload struct {
	Type     string             `json:"type"`
	Features []*geojson.Feature `json:"features"`
	Metadata Metadata           `json:"metadata"`
}

type RequestContext struct {
	Layer string
	BBox  spatial.BBox
	Zoom  int
}

func emptyPayload(s lod.Strategy, rc RequestContext) Payload {
	return Payload{
		Type:     "FeatureCollection",
		Features: []*geojson.Feature{},
		Metadata: Metadata{
			Layer:        rc.Layer,
			BBox:         rc.BBox.Array(),
			Zoom:         rc.Zoom,
			LoadStrategy: s.LoadStrategy(),
			Resolution:   s.Resolution,
			TTLSeconds:   s.TTLSeconds(),
		},
	}
}

// featureID turns a numeric gid decoded from JSON back into an integer.
func featureID(v any) any {
	if f, ok := v.(float64); ok && f == math.Trunc(f) {
		return int64(f)
	}
	return v
}

// Assemble converts rows into a payload. Rows whose geometry does not parse are skipped and
// reported; rows are never modified.
func Assemble(rows []forest.FeatureRow, s lod.Strategy, rc RequestContext, log *slog.Logger) Payload {
	p := emptyPayload(s, rc)
	layerType := LayerTypeFeature
	if s.Clustered {
		layerType = LayerTypeCluster
	}

	for _, row := range rows {
		gid := row.Properties["gid"]
		g, err := geojson.UnmarshalGeometry(row.Geometry)
		if err != nil || g == nil || g.Coordinates == nil {
			reason := "geometry is empty"
			if err != nil {
				reason = err.Error()
			}
			if log != nil {
				log.Warn("skipping row",
					"warning", apperrors.DataQualityWarning{Layer: rc.Layer, RowID: gid, Reason: reason})
			}
			metrics.SkippedGeometriesTotal.WithLabelValues(rc.Layer).Inc()
			p.Metadata.SkippedCount++
			continue
		}

		f := geojson.NewFeature(g.Coordinates)
		f.Properties = make(geojson.Properties, len(row.Properties)+1)
		maps.Copy(f.Properties, row.Properties)
		f.Properties["layer_type"] = layerType
		if gid != nil {
			f.ID = featureID(gid)
		}
		p.Features = append(p.Features, f)
	}
	p.Metadata.FeatureCount = len(p.Features)
	return p
}
