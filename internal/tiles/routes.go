package tiles

import (
	"net/http"

	"github.com/EmpoweredVote/forestwatch/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// SetupRoutes mounts under /layers. limiter may be nil.
func SetupRoutes(h *Handler, limiter *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(limiter.Middleware)

	r.Get("/{layer}/viewport", h.GetViewport)

	return r
}
