package forest

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
	"github.com/EmpoweredVote/forestwatch/internal/httpx"
	"github.com/EmpoweredVote/forestwatch/internal/spatial"
)

const (
	defaultIntersectLimit = 50
	maxIntersectLimit     = 500
	maxPolygonBody        = 1 << 20
)

// Handler serves the analyst parcel lookups.
type Handler struct {
	finder ParcelFinder
	log    *slog.Logger
}

func NewHandler(finder ParcelFinder, log *slog.Logger) *Handler {
	return &Handler{finder: finder, log: log}
}

type parcelsOut struct {
	Parcels []ParcelIntersection `json:"parcels"`
	Count   int                  `json:"count"`
}

func parseFloatParam(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, apperrors.Validation("invalid_point", "missing %s", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperrors.Validation("invalid_point", "%s is not a number", name)
	}
	return v, nil
}

// GetParcelAt handles GET /parcels/at?lat=&lon=
func (h *Handler) GetParcelAt(w http.ResponseWriter, r *http.Request) {
	lat, err := parseFloatParam(r, "lat")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	lon, err := parseFloatParam(r, "lon")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := spatial.ValidatePoint(lat, lon); err != nil {
		httpx.WriteError(w, err)
		return
	}

	start := time.Now()
	p, err := h.finder.FindParcelByPoint(r.Context(), lat, lon)
	httpx.AddServerTiming(w, "db", time.Since(start))
	if err != nil {
		h.log.Error("parcel point lookup failed", "lat", lat, "lon", lon, "error", err)
		httpx.WriteError(w, err)
		return
	}
	if p == nil {
		httpx.WriteError(w, apperrors.NotFound("no parcel contains %.6f,%.6f", lat, lon))
		return
	}
	httpx.WriteJSON(w, p)
}

// IntersectParcels handles POST /parcels/intersect with a GeoJSON polygon body.
func (h *Handler) IntersectParcels(w http.ResponseWriter, r *http.Request) {
	limit := defaultIntersectLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, apperrors.Validation("invalid_limit", "limit must be a positive integer"))
			return
		}
		limit = min(n, maxIntersectLimit)
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPolygonBody))
	if err != nil {
		httpx.WriteError(w, apperrors.Validation("invalid_geometry", "body too large or unreadable"))
		return
	}
	_, geom, err := spatial.ParsePolygon(body)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	start := time.Now()
	parcels, err := h.finder.FindParcelsByPolygon(r.Context(), geom, limit)
	httpx.AddServerTiming(w, "db", time.Since(start))
	if err != nil {
		h.log.Error("parcel polygon lookup failed", "error", err)
		httpx.WriteError(w, err)
		return
	}
	if parcels == nil {
		parcels = []ParcelIntersection{}
	}
	httpx.WriteJSON(w, parcelsOut{Parcels: parcels, Count: len(parcels)})
}
