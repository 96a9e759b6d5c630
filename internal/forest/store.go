package forest

import (
	"context"

	"github.com/EmpoweredVote/forestwatch/internal/lod"
	"github.com/EmpoweredVote/forestwatch/internal/spatial"
	"github.com/EmpoweredVote/forestwatch/internal/utils"
)

// ViewportQuerier is the read path used by the tile service.
type ViewportQuerier interface {
	QueryViewport(ctx context.Context, layer Layer, bbox spatial.BBox, strategy lod.Strategy) ([]FeatureRow, error)
}

// ParcelFinder answers analyst lookups against parcels.
type ParcelFinder interface {
	FindParcelByPoint(ctx context.Context, lat, lon float64) (*ParcelInfo, error)
	FindParcelsByPolygon(ctx context.Context, geojson []byte, limit int) ([]ParcelIntersection, error)
}

// DetectionStore holds detections, their audit trail and the single write path.
type DetectionStore interface {
	GetDetection(ctx context.Context, gid int64) (*DeforestationDetection, error)
	SearchWithinRadius(ctx context.Context, gid int64, radiusMeters float64, statuses []Status, limit int) ([]NearbyDetection, error)
	ApplyVerification(ctx context.Context, gid int64, patch VerificationPatch, prov utils.Provenance) (*DeforestationDetection, error)
	ListAudit(ctx context.Context, gid int64) ([]AuditEntry, error)
}

// Store is everything the geometry store offers.
type Store interface {
	ViewportQuerier
	ParcelFinder
	DetectionStore
}
