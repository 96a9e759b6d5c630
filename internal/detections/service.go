// Package detections holds the analyst workflow over detections: verification, the audit
// trail and proximity search.
package detections

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
	"github.com/EmpoweredVote/forestwatch/internal/forest"
	"github.com/EmpoweredVote/forestwatch/internal/metrics"
	"github.com/EmpoweredVote/forestwatch/internal/utils"
	"golang.org/x/text/unicode/norm"
)

const (
	maxReasonLen = 500
	maxNotesLen  = 4000

	DefaultRadiusMeters = 1000.0
	MaxRadiusMeters     = 50000.0
	DefaultNearbyLimit  = 50
	MaxNearbyLimit      = 500
)

// Request is a verification as submitted by an analyst.
type Request struct {
	GID          int64
	Status       string
	VerifiedArea *float64
	Reason       *string
	Notes        *string
}

type Service struct {
	store        forest.DetectionStore
	maxAreaRatio float64
	log          *slog.Logger
}

func NewService(store forest.DetectionStore, maxAreaRatio float64, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, maxAreaRatio: maxAreaRatio, log: log}
}

// normalizeText trims and NFC-normalises free text so the same words typed on different
// keyboards compare equal in the audit trail.
func normalizeText(field string, s *string, maxLen int) (*string, error) {
	if s == nil {
		return nil, nil
	}
	if !utf8.ValidString(*s) {
		return nil, apperrors.Validation("invalid_text", "%s is not valid UTF-8", field)
	}
	v := norm.NFC.String(strings.TrimSpace(*s))
	if utf8.RuneCountInString(v) > maxLen {
		return nil, apperrors.Validation("invalid_text", "%s exceeds %d characters", field, maxLen)
	}
	return &v, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrValidation):
		return "invalid"
	case errors.Is(err, apperrors.ErrConflict):
		return "conflict"
	case errors.Is(err, apperrors.ErrTransient):
		return "unavailable"
	}
	return "error"
}

// Verify applies a status change with the optional verified area and notes. Everything that
// can be checked without the stored row is checked before any I/O.
func (s *Service) Verify(ctx context.Context, req Request, prov utils.Provenance) (d *forest.DeforestationDetection, err error) {
	defer func() {
		metrics.VerificationsTotal.WithLabelValues(outcome(err)).Inc()
	}()

	if prov.Actor == "" {
		return nil, apperrors.Validation("missing_actor", "verification requires an actor")
	}
	status, err := forest.ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	if a := req.VerifiedArea; a != nil && (math.IsNaN(*a) || math.IsInf(*a, 0) || *a < 0) {
		return nil, apperrors.Validation(apperrors.CodeInvalidArea, "verified area must be a non-negative number")
	}
	reason, err := normalizeText("reason", req.Reason, maxReasonLen)
	if err != nil {
		return nil, err
	}
	notes, err := normalizeText("notes", req.Notes, maxNotesLen)
	if err != nil {
		return nil, err
	}

	d, err = s.store.ApplyVerification(ctx, req.GID, forest.VerificationPatch{
		Status:       status,
		VerifiedArea: req.VerifiedArea,
		Reason:       reason,
		Notes:        notes,
		MaxAreaRatio: s.maxAreaRatio,
	}, prov)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, gid int64) (*forest.DeforestationDetection, error) {
	return s.store.GetDetection(ctx, gid)
}

func (s *Service) Audit(ctx context.Context, gid int64) ([]forest.AuditEntry, error) {
	entries, err := s.store.ListAudit(ctx, gid)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []forest.AuditEntry{}
	}
	return entries, nil
}

type NearbyQuery struct {
	GID          int64
	RadiusMeters float64
	Statuses     []string
	Limit        int
}

// Nearby lists detections around gid. Zero radius and limit take the defaults.
func (s *Service) Nearby(ctx context.Context, q NearbyQuery) ([]forest.NearbyDetection, error) {
	radius := q.RadiusMeters
	if radius == 0 {
		radius = DefaultRadiusMeters
	}
	if math.IsNaN(radius) || radius < 0 || radius > MaxRadiusMeters {
		return nil, apperrors.Validation("invalid_radius", "radius must be between 0 and %.0f meters", MaxRadiusMeters)
	}

	limit := q.Limit
	if limit == 0 {
		limit = DefaultNearbyLimit
	}
	if limit < 0 {
		return nil, apperrors.Validation("invalid_limit", "limit must be positive")
	}
	limit = min(limit, MaxNearbyLimit)

	statuses := make([]forest.Status, 0, len(q.Statuses))
	for _, raw := range q.Statuses {
		st, err := forest.ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}

	out, err := s.store.SearchWithinRadius(ctx, q.GID, radius, statuses, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []forest.NearbyDetection{}
	}
	return out, nil
}
