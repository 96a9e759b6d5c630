package spatial

import (
	"math"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ValidatePoint checks a WGS84 latitude/longitude pair.
func ValidatePoint(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return apperrors.Validation("invalid_point", "lat/lon outside WGS84 bounds")
	}
	return nil
}

// ParsePolygon accepts a GeoJSON geometry, or a Feature wrapping one, and requires it to be
// a non-empty Polygon or MultiPolygon. The returned bytes are the normalised geometry JSON.
func ParsePolygon(data []byte) (orb.Geometry, []byte, error) {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil || g == nil || g.Coordinates == nil {
		f, ferr := geojson.UnmarshalFeature(data)
		if ferr != nil || f.Geometry == nil {
			return nil, nil, apperrors.Validation("invalid_geometry", "body is not a GeoJSON geometry")
		}
		g = geojson.NewGeometry(f.Geometry)
	}

	switch geom := g.Geometry().(type) {
	case orb.Polygon:
		if len(geom) == 0 || len(geom[0]) < 4 {
			return nil, nil, apperrors.Validation("invalid_geometry", "polygon needs a closed ring of at least 4 points")
		}
	case orb.MultiPolygon:
		if len(geom) == 0 {
			return nil, nil, apperrors.Validation("invalid_geometry", "multipolygon is empty")
		}
	default:
		return nil, nil, apperrors.Validation("invalid_geometry", "geometry must be a Polygon or MultiPolygon, got %s", g.Type)
	}

	out, err := g.MarshalJSON()
	if err != nil {
		return nil, nil, apperrors.Validation("invalid_geometry", "geometry cannot be encoded")
	}
	return g.Geometry(), out, nil
}
