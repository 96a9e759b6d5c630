package seeds

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/EmpoweredVote/forestwatch/internal/forest"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const dateLayout = "2006-01-02"

func readCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return fc, nil
}

// multiPolygonJSON promotes polygons and returns the GeoJSON text PostGIS should ingest.
func multiPolygonJSON(g orb.Geometry) (string, error) {
	var mp orb.MultiPolygon
	switch v := g.(type) {
	case orb.Polygon:
		mp = orb.MultiPolygon{v}
	case orb.MultiPolygon:
		mp = v
	case nil:
		return "", fmt.Errorf("missing geometry")
	default:
		return "", fmt.Errorf("geometry type %s, want Polygon or MultiPolygon", g.GeoJSONType())
	}
	if len(mp) == 0 {
		return "", fmt.Errorf("empty geometry")
	}
	b, err := geojson.NewGeometry(mp).MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func gidOf(f *geojson.Feature) (int64, error) {
	v, ok := f.Properties["gid"].(float64)
	if !ok || v <= 0 || v != math.Trunc(v) {
		return 0, fmt.Errorf("feature gid %v is not a positive integer", f.Properties["gid"])
	}
	return int64(v), nil
}

func stringProp(p geojson.Properties, key string) (string, error) {
	switch v := p[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("%s is a %T, want a string", key, v)
	}
}

func floatProp(p geojson.Properties, key string) (*float64, error) {
	switch v := p[key].(type) {
	case nil:
		return nil, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s is not finite", key)
		}
		return &v, nil
	default:
		return nil, fmt.Errorf("%s is a %T, want a number", key, v)
	}
}

// stringProps reads every key as an optional string, stopping at the first type error.
func stringProps(p geojson.Properties, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, err := stringProp(p, k)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

type parcelRow struct {
	Info forest.ParcelInfo
	Geom string
}

func parseParcel(f *geojson.Feature) (parcelRow, error) {
	gid, err := gidOf(f)
	if err != nil {
		return parcelRow{}, err
	}
	geom, err := multiPolygonJSON(f.Geometry)
	if err != nil {
		return parcelRow{}, fmt.Errorf("parcel %d: %w", gid, err)
	}
	strs, err := stringProps(f.Properties, "land_use_code", "forest_type", "owner", "province", "district", "commune")
	if err != nil {
		return parcelRow{}, fmt.Errorf("parcel %d: %w", gid, err)
	}
	if strs["land_use_code"] == "" {
		return parcelRow{}, fmt.Errorf("parcel %d: land_use_code is required", gid)
	}
	area, err := floatProp(f.Properties, "declared_area")
	if err != nil {
		return parcelRow{}, fmt.Errorf("parcel %d: %w", gid, err)
	}
	row := parcelRow{
		Info: forest.ParcelInfo{
			GID:         gid,
			LandUseCode: strs["land_use_code"],
			ForestType:  strs["forest_type"],
			Owner:       strs["owner"],
			Province:    strs["province"],
			District:    strs["district"],
			Commune:     strs["commune"],
		},
		Geom: geom,
	}
	if area != nil {
		row.Info.DeclaredArea = *area
	}
	return row, nil
}

type detectionRow struct {
	GID       int64
	StartDate time.Time
	EndDate   time.Time
	Area      *float64 // nil means derive from the geometry
	Status    forest.Status
	Geom      string
}

func parseDetection(f *geojson.Feature) (detectionRow, error) {
	gid, err := gidOf(f)
	if err != nil {
		return detectionRow{}, err
	}
	geom, err := multiPolygonJSON(f.Geometry)
	if err != nil {
		return detectionRow{}, fmt.Errorf("detection %d: %w", gid, err)
	}
	strs, err := stringProps(f.Properties, "start_date", "end_date", "status")
	if err != nil {
		return detectionRow{}, fmt.Errorf("detection %d: %w", gid, err)
	}

	start, err := time.Parse(dateLayout, strs["start_date"])
	if err != nil {
		return detectionRow{}, fmt.Errorf("detection %d: start_date: %w", gid, err)
	}
	end, err := time.Parse(dateLayout, strs["end_date"])
	if err != nil {
		return detectionRow{}, fmt.Errorf("detection %d: end_date: %w", gid, err)
	}
	if end.Before(start) {
		return detectionRow{}, fmt.Errorf("detection %d: end_date before start_date", gid)
	}

	status := forest.StatusUnverified
	if raw := strs["status"]; raw != "" {
		if status, err = forest.ParseStatus(raw); err != nil {
			return detectionRow{}, fmt.Errorf("detection %d: %w", gid, err)
		}
	}

	area, err := floatProp(f.Properties, "area")
	if err != nil {
		return detectionRow{}, fmt.Errorf("detection %d: %w", gid, err)
	}
	if area != nil && *area < 0 {
		return detectionRow{}, fmt.Errorf("detection %d: negative area", gid)
	}
	return detectionRow{GID: gid, StartDate: start, EndDate: end, Area: area, Status: status, Geom: geom}, nil
}
