package foresttest

import (
	"context"
	"testing"

	"github.com/EmpoweredVote/forestwatch/internal/forest"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"
)

func TestBoundArea(t *testing.T) {
	require.InDelta(t, 6.0, boundArea(orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{4, 4}}), 1e-12)
	require.Zero(t, boundArea(orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{1, 5}}))
}

func TestFindParcelsByPolygonFractions(t *testing.T) {
	s := NewMemStore(nil)
	box := func(minX, minY, maxX, maxY float64) orb.Polygon {
		return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}.ToPolygon()
	}
	s.AddParcel(Parcel{Info: forest.ParcelInfo{GID: 1, LandUseCode: "RSX"}, Geom: box(0, 0, 2, 2)})
	s.AddParcel(Parcel{Info: forest.ParcelInfo{GID: 2, LandUseCode: "RPH"}, Geom: box(2, 0, 3, 1)})
	s.AddParcel(Parcel{Info: forest.ParcelInfo{GID: 3, LandUseCode: "RPH"}, Geom: box(10, 10, 11, 11)})

	q, err := geojson.NewGeometry(box(1, 0, 3, 1)).MarshalJSON()
	require.NoError(t, err)

	out, err := s.FindParcelsByPolygon(context.Background(), q, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.EqualValues(t, 2, out[0].GID)
	require.InDelta(t, 1.0, out[0].IntersectionFraction, 1e-12)
	require.EqualValues(t, 1, out[1].GID)
	require.InDelta(t, 0.25, out[1].IntersectionFraction, 1e-12)

	out, err = s.FindParcelsByPolygon(context.Background(), q, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
}
