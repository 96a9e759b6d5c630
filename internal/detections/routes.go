package detections

import (
	"net/http"

	"github.com/EmpoweredVote/forestwatch/internal/middleware"
	"github.com/go-chi/chi/v5"
)

func SetupRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/{gid}", h.GetDetection)
	r.Get("/{gid}/audit", h.GetAudit)
	r.Get("/{gid}/nearby", h.GetNearby)

	// Writes need an identified analyst
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireActor)
		r.Post("/{gid}/verify", h.VerifyDetection)
	})

	return r
}
