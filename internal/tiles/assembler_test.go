package tiles

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/EmpoweredVote/forestwatch/internal/forest"
	"github.com/EmpoweredVote/forestwatch/internal/lod"
	"github.com/EmpoweredVote/forestwatch/internal/spatial"
	"github.com/stretchr/testify/require"
)

const square = `{"type":"Polygon","coordinates":[[[100.1,10.1],[100.2,10.1],[100.2,10.2],[100.1,10.2],[100.1,10.1]]]}`

var rc = RequestContext{Layer: "parcels", BBox: spatial.BBox{MinX: 100, MinY: 10, MaxX: 101, MaxY: 11}, Zoom: 14}

func TestAssembleIndividual(t *testing.T) {
	rows := []forest.FeatureRow{
		{Geometry: []byte(square), Properties: map[string]any{"gid": float64(7), "land_use_code": "RSX"}},
		{Geometry: []byte(square), Properties: map[string]any{"gid": float64(8), "land_use_code": "RPH"}},
	}
	s := lod.Strategy{Resolution: lod.Fine, RowLimit: 5000, TTL: 30 * time.Minute}

	p := Assemble(rows, s, rc, slog.New(slog.DiscardHandler))
	require.Equal(t, "FeatureCollection", p.Type)
	require.Len(t, p.Features, 2)
	require.EqualValues(t, 7, p.Features[0].ID)
	require.Equal(t, "feature", p.Features[0].Properties["layer_type"])
	require.Equal(t, "RSX", p.Features[0].Properties["land_use_code"])

	require.Equal(t, Metadata{
		Layer:        "parcels",
		BBox:         [4]float64{100, 10, 101, 11},
		Zoom:         14,
		LoadStrategy: "individual",
		Resolution:   lod.Fine,
		FeatureCount: 2,
		SkippedCount: 0,
		TTLSeconds:   1800,
	}, p.Metadata)

	// input rows are untouched
	require.NotContains(t, rows[0].Properties, "layer_type")
}

func TestAssembleClustered(t *testing.T) {
	rows := []forest.FeatureRow{
		{Geometry: []byte(square), Properties: map[string]any{"land_use_code": "RSX", "member_count": float64(3)}},
	}
	s := lod.Strategy{Resolution: lod.Coarse, Clustered: true, RowLimit: 500, TTL: 2 * time.Hour, MinClusterMembers: 3}

	p := Assemble(rows, s, rc, nil)
	require.Len(t, p.Features, 1)
	require.Nil(t, p.Features[0].ID)
	require.Equal(t, "cluster", p.Features[0].Properties["layer_type"])
	require.Equal(t, "clustered", p.Metadata.LoadStrategy)
	require.Equal(t, 7200, p.Metadata.TTLSeconds)
}

func TestAssembleSkipsMalformedGeometry(t *testing.T) {
	rows := []forest.FeatureRow{
		{Geometry: []byte(`{"type":"Polygon","coordinates":"nope"}`), Properties: map[string]any{"gid": float64(1)}},
		{Geometry: nil, Properties: map[string]any{"gid": float64(2)}},
		{Geometry: []byte(`not json`), Properties: map[string]any{"gid": float64(3)}},
		{Geometry: []byte(square), Properties: map[string]any{"gid": float64(4)}},
	}
	p := Assemble(rows, lod.Strategy{Resolution: lod.Fine, TTL: time.Minute}, rc, slog.New(slog.DiscardHandler))
	require.Len(t, p.Features, 1)
	require.EqualValues(t, 4, p.Features[0].ID)
	require.Equal(t, 1, p.Metadata.FeatureCount)
	require.Equal(t, 3, p.Metadata.SkippedCount)
}

func TestAssembleEmptyEncodesEmptyArray(t *testing.T) {
	p := Assemble(nil, lod.Strategy{Resolution: lod.Medium, TTL: time.Hour}, rc, nil)
	b, err := json.Marshal(p)
	require.NoError(t, err)
	require.Contains(t, string(b), `"features":[]`)
	require.Contains(t, string(b), `"feature_count":0`)
}
