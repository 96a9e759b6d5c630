package spatial

import (
	"math"
	"strconv"
	"strings"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
	"github.com/paulmach/orb"
)

const codeInvalidBBox = "invalid_bbox"

// BBox is a WGS84 viewport, lon/lat order.
type BBox struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// ParseBBox reads "minX,minY,maxX,maxY" and validates the result.
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, apperrors.Validation(codeInvalidBBox, "bbox must have 4 comma-separated numbers, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, apperrors.Validation(codeInvalidBBox, "bbox component %q is not a number", p)
		}
		v[i] = f
	}
	b := BBox{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}
	if err := b.Validate(); err != nil {
		return BBox{}, err
	}
	return b, nil
}

// Validate rejects non-finite, out-of-range and degenerate boxes.
func (b BBox) Validate() error {
	for _, f := range b.Array() {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return apperrors.Validation(codeInvalidBBox, "bbox contains a non-finite value")
		}
	}
	if b.MinX < -180 || b.MaxX > 180 || b.MinY < -90 || b.MaxY > 90 {
		return apperrors.Validation(codeInvalidBBox, "bbox outside WGS84 bounds")
	}
	if b.MinX >= b.MaxX || b.MinY >= b.MaxY {
		return apperrors.Validation(codeInvalidBBox, "bbox is empty or degenerate")
	}
	return nil
}

func (b BBox) Array() [4]float64 { return [4]float64{b.MinX, b.MinY, b.MaxX, b.MaxY} }

func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinX, b.MinY}, Max: orb.Point{b.MaxX, b.MaxY}}
}

// Snap rounds the box outward to the given number of decimals, so the snapped box always
// contains the original one.
func (b BBox) Snap(precision int) BBox {
	scale := math.Pow10(precision)
	return BBox{
		MinX: clean(math.Floor(settle(b.MinX*scale)) / scale),
		MinY: clean(math.Floor(settle(b.MinY*scale)) / scale),
		MaxX: clean(math.Ceil(settle(b.MaxX*scale)) / scale),
		MaxY: clean(math.Ceil(settle(b.MaxY*scale)) / scale),
	}
}

// settle drops float noise below 1e-6 grid units so 10.1*1000 snaps to 10100, not 10101.
func settle(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}

// clean turns -0 into 0 so it formats identically.
func clean(f float64) float64 {
	if f == 0 {
		return 0
	}
	return f
}
