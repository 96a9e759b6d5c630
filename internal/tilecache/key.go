package tilecache

import (
	"fmt"
	"strconv"

	"github.com/EmpoweredVote/forestwatch/internal/spatial"
)

// Key derives the cache key "{layer}:{minX}:{minY}:{maxX}:{maxY}:z{zoom}". The bbox is snapped
// outward to precision decimals; callers must query with the same snapped box so the payload
// depends on the key alone.
func Key(layer string, b spatial.BBox, zoom, precision int) string {
	s := b.Snap(precision)
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', precision, 64) }
	return fmt.Sprintf("%s:%s:%s:%s:%s:z%d", layer, f(s.MinX), f(s.MinY), f(s.MaxX), f(s.MaxY), zoom)
}
