package tiles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
	"github.com/EmpoweredVote/forestwatch/internal/httpx"
	"github.com/EmpoweredVote/forestwatch/internal/metrics"
	"github.com/EmpoweredVote/forestwatch/internal/spatial"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// GetViewport handles GET /layers/{layer}/viewport?bbox=minX,minY,maxX,maxY&zoom=N
func (h *Handler) GetViewport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	bbox, err := spatial.ParseBBox(r.URL.Query().Get("bbox"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	zoom, err := strconv.Atoi(r.URL.Query().Get("zoom"))
	if err != nil {
		httpx.WriteError(w, apperrors.Validation("invalid_zoom", "zoom must be an integer"))
		return
	}

	res, err := h.svc.Viewport(r.Context(), chi.URLParam(r, "layer"), bbox, zoom)
	httpx.AddServerTiming(w, "total", time.Since(start))
	if err != nil {
		if errors.Is(err, apperrors.ErrTransient) {
			h.log.Warn("viewport unavailable", "key", res.Key, "error", err)
			w.Header().Set("Retry-After", "2")
			w.Header().Set("Cache-Control", "no-store")
			httpx.WriteRawJSON(w, http.StatusServiceUnavailable, EmptyPayload(res))
			return
		}
		if apperrors.HTTPStatus(err) == http.StatusInternalServerError {
			h.log.Error("viewport failed", "key", res.Key, "error", err)
		}
		httpx.WriteError(w, err)
		return
	}

	cache := "MISS"
	if res.CacheHit {
		cache = "HIT"
	}
	metrics.ViewportDurationMs.WithLabelValues(res.Strategy.LoadStrategy(), cache).
		Observe(float64(time.Since(start).Microseconds()) / 1000)

	w.Header().Set("X-Cache", cache)
	// whole seconds, rounded down, so clients never outlive the server entry
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(res.MaxAge/time.Second)))
	httpx.WriteRawJSON(w, http.StatusOK, res.Payload)
}
