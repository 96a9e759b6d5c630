package seeds

import (
	"path/filepath"
	"testing"

	"github.com/EmpoweredVote/forestwatch/internal/forest"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"
)

func TestBundledParcels(t *testing.T) {
	fc, err := readCollection(filepath.Join("data", ParcelsFile))
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	for _, f := range fc.Features {
		row, err := parseParcel(f)
		require.NoError(t, err)
		require.NotEmpty(t, row.Info.LandUseCode)
		require.Contains(t, row.Geom, `"MultiPolygon"`)
	}
	first, _ := parseParcel(fc.Features[0])
	require.EqualValues(t, 1, first.Info.GID)
	require.Equal(t, "Đắk Lắk", first.Info.Province)
	require.Equal(t, 12.4, first.Info.DeclaredArea)
}

func TestBundledDetections(t *testing.T) {
	fc, err := readCollection(filepath.Join("data", DetectionsFile))
	require.NoError(t, err)

	first, err := parseDetection(fc.Features[0])
	require.NoError(t, err)
	require.Equal(t, forest.StatusUnverified, first.Status)
	require.NotNil(t, first.Area)
	require.Equal(t, 1180.5, *first.Area)
	require.Equal(t, 2026, first.StartDate.Year())

	second, err := parseDetection(fc.Features[1])
	require.NoError(t, err)
	require.Equal(t, forest.StatusUnderReview, second.Status)
	require.Nil(t, second.Area)
}

func TestMultiPolygonJSON(t *testing.T) {
	poly := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}.ToPolygon()

	got, err := multiPolygonJSON(poly)
	require.NoError(t, err)
	g, err := geojson.UnmarshalGeometry([]byte(got))
	require.NoError(t, err)
	mp, ok := g.Geometry().(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 1)

	for name, g := range map[string]orb.Geometry{
		"point": orb.Point{1, 2},
		"line":  orb.LineString{{0, 0}, {1, 1}},
		"nil":   nil,
		"empty": orb.MultiPolygon{},
	} {
		_, err := multiPolygonJSON(g)
		require.Error(t, err, name)
	}
}

func TestParseRejectsBadFeatures(t *testing.T) {
	poly := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}.ToPolygon()
	feature := func(props geojson.Properties) *geojson.Feature {
		f := geojson.NewFeature(poly)
		f.Properties = props
		return f
	}

	parcels := map[string]geojson.Properties{
		"no gid":       {"land_use_code": "RSX"},
		"fractional":   {"gid": 1.5, "land_use_code": "RSX"},
		"zero gid":     {"gid": 0.0, "land_use_code": "RSX"},
		"no use code":  {"gid": 3.0},
		"string gid":   {"gid": "3", "land_use_code": "RSX"},
		"numeric code": {"gid": 3.0, "land_use_code": 12.0},
		"string area":  {"gid": 3.0, "land_use_code": "RSX", "declared_area": "12"},
	}
	for name, props := range parcels {
		_, err := parseParcel(feature(props))
		require.Error(t, err, name)
	}

	valid := geojson.Properties{"gid": 7.0, "start_date": "2026-01-01", "end_date": "2026-01-10"}
	_, err := parseDetection(feature(valid))
	require.NoError(t, err)

	detections := map[string]geojson.Properties{
		"bad date":      {"gid": 7.0, "start_date": "01/01/2026", "end_date": "2026-01-10"},
		"reversed":      {"gid": 7.0, "start_date": "2026-02-01", "end_date": "2026-01-10"},
		"bad status":    {"gid": 7.0, "start_date": "2026-01-01", "end_date": "2026-01-10", "status": "approved"},
		"negative area": {"gid": 7.0, "start_date": "2026-01-01", "end_date": "2026-01-10", "area": -1.0},
		"numeric date":  {"gid": 7.0, "start_date": 20260101.0, "end_date": "2026-01-10"},
	}
	for name, props := range detections {
		_, err := parseDetection(feature(props))
		require.Error(t, err, name)
	}
}
