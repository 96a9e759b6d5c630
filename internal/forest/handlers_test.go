package forest_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/EmpoweredVote/forestwatch/internal/forest"
	"github.com/EmpoweredVote/forestwatch/internal/forest/foresttest"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}.ToPolygon()
}

func parcelServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := foresttest.NewMemStore(nil)
	store.AddParcel(foresttest.Parcel{
		Info: forest.ParcelInfo{GID: 1, LandUseCode: "RSX", Province: "Dak Lak", DeclaredArea: 12.5},
		Geom: square(100.0, 10.0, 100.2, 10.2),
	})
	store.AddParcel(foresttest.Parcel{
		Info: forest.ParcelInfo{GID: 2, LandUseCode: "RPH", Province: "Dak Lak", DeclaredArea: 8},
		Geom: square(100.2, 10.0, 100.4, 10.2),
	})

	h := forest.NewHandler(store, slog.New(slog.DiscardHandler))
	srv := httptest.NewServer(forest.SetupRoutes(h))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetParcelAt(t *testing.T) {
	srv := parcelServer(t)

	resp, err := http.Get(srv.URL + "/at?lat=10.1&lon=100.1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p forest.ParcelInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	require.EqualValues(t, 1, p.GID)
	require.Equal(t, "RSX", p.LandUseCode)
}

func TestGetParcelAtErrors(t *testing.T) {
	srv := parcelServer(t)
	cases := map[string]int{
		"/at?lat=10.1":             http.StatusBadRequest,
		"/at?lat=abc&lon=100":      http.StatusBadRequest,
		"/at?lat=91&lon=100":       http.StatusBadRequest,
		"/at?lat=-10.1&lon=-100.1": http.StatusNotFound,
	}
	for path, want := range cases {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, want, resp.StatusCode, path)
	}
}

func TestIntersectParcels(t *testing.T) {
	srv := parcelServer(t)
	body := `{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[100.1,10.0],[100.3,10.0],[100.3,10.2],[100.1,10.2],[100.1,10.0]]]}}`

	resp, err := http.Post(srv.URL+"/intersect", "application/geo+json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Parcels []forest.ParcelIntersection `json:"parcels"`
		Count   int                         `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, 2, out.Count)
	require.InDelta(t, 0.5, out.Parcels[0].IntersectionFraction, 1e-9)
	require.NotEmpty(t, resp.Header.Get("Server-Timing"))
}

func TestIntersectParcelsRejectsNonPolygon(t *testing.T) {
	srv := parcelServer(t)
	for _, body := range []string{
		`{"type":"Point","coordinates":[100.1,10.1]}`,
		`not json`,
		`{"type":"Polygon","coordinates":[[[100,10],[101,10],[100,10]]]}`,
	} {
		resp, err := http.Post(srv.URL+"/intersect", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}

	resp, err := http.Post(srv.URL+"/intersect?limit=0", "application/json",
		strings.NewReader(`{"type":"Polygon","coordinates":[[[100,10],[101,10],[101,11],[100,10]]]}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
