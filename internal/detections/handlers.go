package detections

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
	"github.com/EmpoweredVote/forestwatch/internal/forest"
	"github.com/EmpoweredVote/forestwatch/internal/httpx"
	"github.com/EmpoweredVote/forestwatch/internal/utils"
	"github.com/go-chi/chi/v5"
)

const maxVerifyBody = 64 << 10

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

type verifyBody struct {
	Status       string   `json:"status"`
	VerifiedArea *float64 `json:"verifiedArea"`
	Reason       *string  `json:"reason"`
	Notes        *string  `json:"notes"`
}

type auditOut struct {
	GID     int64               `json:"gid"`
	Entries []forest.AuditEntry `json:"entries"`
}

type nearbyOut struct {
	GID          int64                    `json:"gid"`
	RadiusMeters float64                  `json:"radius_m"`
	Detections   []forest.NearbyDetection `json:"detections"`
}

func parseGID(r *http.Request) (int64, error) {
	gid, err := strconv.ParseInt(chi.URLParam(r, "gid"), 10, 64)
	if err != nil || gid <= 0 {
		return 0, apperrors.Validation("invalid_gid", "gid must be a positive integer")
	}
	return gid, nil
}

func (h *Handler) writeErr(w http.ResponseWriter, op string, gid int64, err error) {
	if apperrors.HTTPStatus(err) >= http.StatusInternalServerError {
		h.log.Error(op+" failed", "gid", gid, "error", err)
	}
	httpx.WriteError(w, err)
}

// VerifyDetection handles POST /detections/{gid}/verify
func (h *Handler) VerifyDetection(w http.ResponseWriter, r *http.Request) {
	gid, err := parseGID(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	var body verifyBody
	dec := json.NewDecoder(io.LimitReader(r.Body, maxVerifyBody))
	if err := dec.Decode(&body); err != nil {
		httpx.WriteError(w, apperrors.Validation("invalid_body", "request body must be a JSON object"))
		return
	}

	prov := utils.GetProvenanceFromContext(r.Context())
	d, err := h.svc.Verify(r.Context(), Request{
		GID:          gid,
		Status:       body.Status,
		VerifiedArea: body.VerifiedArea,
		Reason:       body.Reason,
		Notes:        body.Notes,
	}, prov)
	if err != nil {
		h.writeErr(w, "verify", gid, err)
		return
	}
	httpx.WriteJSON(w, d)
}

// GetAudit handles GET /detections/{gid}/audit
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	gid, err := parseGID(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	entries, err := h.svc.Audit(r.Context(), gid)
	if err != nil {
		h.writeErr(w, "audit", gid, err)
		return
	}
	httpx.WriteJSON(w, auditOut{GID: gid, Entries: entries})
}

// GetNearby handles GET /detections/{gid}/nearby?radius=&status=a,b&limit=
func (h *Handler) GetNearby(w http.ResponseWriter, r *http.Request) {
	gid, err := parseGID(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	q := NearbyQuery{GID: gid}
	if raw := r.URL.Query().Get("radius"); raw != "" {
		q.RadiusMeters, err = strconv.ParseFloat(raw, 64)
		if err != nil || q.RadiusMeters <= 0 {
			httpx.WriteError(w, apperrors.Validation("invalid_radius", "radius must be a positive number of meters"))
			return
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		q.Limit, err = strconv.Atoi(raw)
		if err != nil || q.Limit <= 0 {
			httpx.WriteError(w, apperrors.Validation("invalid_limit", "limit must be a positive integer"))
			return
		}
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				q.Statuses = append(q.Statuses, s)
			}
		}
	}

	out, err := h.svc.Nearby(r.Context(), q)
	if err != nil {
		h.writeErr(w, "nearby", gid, err)
		return
	}
	radius := q.RadiusMeters
	if radius == 0 {
		radius = DefaultRadiusMeters
	}
	httpx.WriteJSON(w, nearbyOut{GID: gid, RadiusMeters: radius, Detections: out})
}

// GetDetection handles GET /detections/{gid}
func (h *Handler) GetDetection(w http.ResponseWriter, r *http.Request) {
	gid, err := parseGID(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	d, err := h.svc.Get(r.Context(), gid)
	if err != nil {
		h.writeErr(w, "get detection", gid, err)
		return
	}
	httpx.WriteJSON(w, d)
}
