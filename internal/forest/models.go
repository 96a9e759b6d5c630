package forest

import (
	"time"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
	"github.com/google/uuid"
)

// Status is the verification state of a detection.
type Status string

const (
	StatusUnverified  Status = "unverified"
	StatusUnderReview Status = "under_review"
	StatusVerified    Status = "verified"
	StatusRejected    Status = "rejected"
)

var AllStatuses = []Status{StatusUnverified, StatusUnderReview, StatusVerified, StatusRejected}

func (s Status) Valid() bool {
	switch s {
	case StatusUnverified, StatusUnderReview, StatusVerified, StatusRejected:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", apperrors.Validation(apperrors.CodeInvalidStatus, "status %q is not one of unverified, under_review, verified, rejected", s)
	}
	return st, nil
}

// ForestParcel is a land parcel with three offline-generated resolutions of the same polygon.
type ForestParcel struct {
	GID          int64   `gorm:"column:gid;primaryKey;autoIncrement" json:"gid"`
	LandUseCode  string  `gorm:"size:16;index" json:"land_use_code"` // legend / cluster key
	ForestType   string  `gorm:"size:64" json:"forest_type"`
	Owner        string  `json:"owner"`
	Province     string  `gorm:"size:100;index" json:"province"`
	District     string  `gorm:"size:100" json:"district"`
	Commune      string  `gorm:"size:100" json:"commune"`
	DeclaredArea float64 `json:"declared_area"` // hectares

	// PostGIS MULTIPOLYGON, WGS84 (SRID 4326)
	GeomCoarse string `gorm:"type:geometry(MultiPolygon,4326)" json:"-"`
	GeomMedium string `gorm:"type:geometry(MultiPolygon,4326)" json:"-"`
	GeomFine   string `gorm:"type:geometry(MultiPolygon,4326)" json:"-"`
}

func (ForestParcel) TableName() string {
	return "forest.parcels"
}

// DeforestationDetection is one detected forest-loss polygon. Area is maintained by the
// ingestion pipeline; the core only changes the verification columns.
type DeforestationDetection struct {
	GID          int64      `gorm:"column:gid;primaryKey;autoIncrement" json:"gid"`
	StartDate    time.Time  `gorm:"type:date" json:"start_date"`
	EndDate      time.Time  `gorm:"type:date" json:"end_date"`
	Geom         string     `gorm:"type:geometry(MultiPolygon,4326)" json:"-"`
	Area         float64    `json:"area"` // square metres
	Status       Status     `gorm:"size:20;not null;default:unverified;index" json:"status"`
	VerifiedArea *float64   `json:"verified_area"`
	VerifiedBy   *string    `gorm:"size:100" json:"verified_by"`
	VerifiedAt   *time.Time `json:"verified_at"`
	Reason       *string    `json:"reason"`
	Notes        *string    `json:"notes"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (DeforestationDetection) TableName() string {
	return "forest.detections"
}

// AuditEntry is one immutable record of a verification change. Rows are only ever inserted.
type AuditEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	GID       int64     `gorm:"column:gid;not null;index:idx_audit_gid_changed,priority:1" json:"gid"`
	ChangedAt time.Time `gorm:"not null;index:idx_audit_gid_changed,priority:2,sort:desc" json:"changed_at"`
	Action    string    `gorm:"size:32;not null" json:"action"`

	OldStatus       Status     `gorm:"size:20" json:"old_status"`
	NewStatus       Status     `gorm:"size:20" json:"new_status"`
	OldVerifiedArea *float64   `json:"old_verified_area"`
	NewVerifiedArea *float64   `json:"new_verified_area"`
	OldVerifiedBy   *string    `gorm:"size:100" json:"old_verified_by"`
	NewVerifiedBy   *string    `gorm:"size:100" json:"new_verified_by"`
	OldVerifiedAt   *time.Time `json:"old_verified_at"`
	NewVerifiedAt   *time.Time `json:"new_verified_at"`
	OldReason       *string    `json:"old_reason"`
	NewReason       *string    `json:"new_reason"`
	OldNotes        *string    `json:"old_notes"`
	NewNotes        *string    `json:"new_notes"`

	Actor     string `gorm:"size:100;not null" json:"actor"`
	ClientIP  string `gorm:"size:64" json:"client_ip"`
	UserAgent string `json:"user_agent"`
	RequestID string `gorm:"size:64" json:"request_id"`
}

func (AuditEntry) TableName() string {
	return "forest.detection_audit"
}

const ActionVerify = "verify"

// ParcelInfo is the attribute view of a parcel returned by point and polygon lookups.
type ParcelInfo struct {
	GID          int64   `gorm:"column:gid" json:"gid"`
	LandUseCode  string  `json:"land_use_code"`
	ForestType   string  `json:"forest_type"`
	Owner        string  `json:"owner"`
	Province     string  `json:"province"`
	District     string  `json:"district"`
	Commune      string  `json:"commune"`
	DeclaredArea float64 `json:"declared_area"`
}

type ParcelIntersection struct {
	ParcelInfo
	// IntersectionFraction is area(parcel ∩ query) / area(parcel), in [0, 1].
	IntersectionFraction float64 `json:"intersection_fraction"`
}

type NearbyDetection struct {
	GID            int64     `gorm:"column:gid" json:"gid"`
	Status         Status    `json:"status"`
	Area           float64   `json:"area"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	DistanceMeters float64   `gorm:"column:distance_m" json:"distance_m"`
}

// FeatureRow is one row of a viewport query before assembly: the geometry as ST_AsGeoJSON
// text and every other selected column.
type FeatureRow struct {
	Geometry   []byte
	Properties map[string]any
}
