package forest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/at", h.GetParcelAt)
	r.Post("/intersect", h.IntersectParcels)

	return r
}
