package forest

import (
	"time"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
	"github.com/EmpoweredVote/forestwatch/internal/utils"
	"github.com/google/uuid"
)

// VerificationPatch is the requested change to a detection. Nil fields are left as they are.
type VerificationPatch struct {
	Status       Status
	VerifiedArea *float64
	Reason       *string
	Notes        *string

	// MaxAreaRatio caps VerifiedArea at Area*MaxAreaRatio when both are positive.
	MaxAreaRatio float64
}

// CheckAgainst validates the parts of the patch that depend on the stored row.
func (p VerificationPatch) CheckAgainst(cur DeforestationDetection) error {
	if p.VerifiedArea == nil {
		return nil
	}
	if *p.VerifiedArea < 0 {
		return apperrors.Validation(apperrors.CodeInvalidArea, "verified area %.2f is negative", *p.VerifiedArea)
	}
	if p.MaxAreaRatio > 0 && cur.Area > 0 && *p.VerifiedArea > cur.Area*p.MaxAreaRatio {
		return apperrors.Validation(apperrors.CodeInvalidArea,
			"verified area %.2f exceeds detected area %.2f by more than %.0f%%",
			*p.VerifiedArea, cur.Area, (p.MaxAreaRatio-1)*100)
	}
	return nil
}

// Apply returns the row as it looks after the patch. cur is not modified.
func (p VerificationPatch) Apply(cur DeforestationDetection, actor string, now time.Time) DeforestationDetection {
	next := cur
	next.Status = p.Status
	if p.VerifiedArea != nil {
		next.VerifiedArea = ptr(*p.VerifiedArea)
	}
	if p.Reason != nil {
		next.Reason = ptr(*p.Reason)
	}
	if p.Notes != nil {
		next.Notes = ptr(*p.Notes)
	}
	next.VerifiedBy = ptr(actor)
	next.VerifiedAt = ptr(now)
	next.UpdatedAt = now
	return next
}

// NewAuditEntry records old and new values of every mutable column.
func NewAuditEntry(old, next DeforestationDetection, prov utils.Provenance, now time.Time) AuditEntry {
	return AuditEntry{
		ID:              uuid.New(),
		GID:             old.GID,
		ChangedAt:       now,
		Action:          ActionVerify,
		OldStatus:       old.Status,
		NewStatus:       next.Status,
		OldVerifiedArea: old.VerifiedArea,
		NewVerifiedArea: next.VerifiedArea,
		OldVerifiedBy:   old.VerifiedBy,
		NewVerifiedBy:   next.VerifiedBy,
		OldVerifiedAt:   old.VerifiedAt,
		NewVerifiedAt:   next.VerifiedAt,
		OldReason:       old.Reason,
		NewReason:       next.Reason,
		OldNotes:        old.Notes,
		NewNotes:        next.Notes,
		Actor:           prov.Actor,
		ClientIP:        prov.ClientIP,
		UserAgent:       prov.UserAgent,
		RequestID:       prov.RequestID,
	}
}

// updateColumns is the column set written by a verification.
func updateColumns(next DeforestationDetection) map[string]any {
	return map[string]any{
		"status":        next.Status,
		"verified_area": next.VerifiedArea,
		"verified_by":   next.VerifiedBy,
		"verified_at":   next.VerifiedAt,
		"reason":        next.Reason,
		"notes":         next.Notes,
		"updated_at":    next.UpdatedAt,
	}
}

func ptr[T any](v T) *T { return &v }
