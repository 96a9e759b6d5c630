// Package tiles serves map viewports: plan, cache lookup, query, assembly, cache fill.
package tiles

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/EmpoweredVote/forestwatch/internal/forest"
	"github.com/EmpoweredVote/forestwatch/internal/lod"
	"github.com/EmpoweredVote/forestwatch/internal/spatial"
	"github.com/EmpoweredVote/forestwatch/internal/tilecache"
)

type Service struct {
	layers    forest.Layers
	planner   *lod.Planner
	store     forest.ViewportQuerier
	cache     *tilecache.Cache
	precision int
	log       *slog.Logger
}

type ServiceConfig struct {
	Layers  forest.Layers
	Planner *lod.Planner
	Store   forest.ViewportQuerier
	Cache   *tilecache.Cache
	// Precision is the bbox snapping precision shared by cache keys and queries.
	Precision int
	Logger    *slog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Layers == nil {
		cfg.Layers = forest.DefaultLayers()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		layers:    cfg.Layers,
		planner:   cfg.Planner,
		store:     cfg.Store,
		cache:     cfg.Cache,
		precision: cfg.Precision,
		log:       cfg.Logger,
	}
}

// Result is an encoded payload; cached and fresh results for one key are byte-identical.
type Result struct {
	Payload  []byte
	CacheHit bool
	// MaxAge is how long the payload may still be served: the strategy TTL when freshly
	// built, what is left of the cached entry on a hit.
	MaxAge   time.Duration
	Strategy lod.Strategy
	Key      string
	Request  RequestContext
}

// Viewport returns the payload for layer/bbox/zoom. The bbox is snapped before querying so a
// cached payload answers every viewport that maps to its key.
func (s *Service) Viewport(ctx context.Context, layerName string, bbox spatial.BBox, zoom int) (Result, error) {
	layer, err := s.layers.Lookup(layerName)
	if err != nil {
		return Result{}, err
	}
	if err := bbox.Validate(); err != nil {
		return Result{}, err
	}

	zoom = s.planner.Clamp(zoom)
	strategy := s.planner.Plan(zoom)
	snapped := bbox.Snap(s.precision)
	key := tilecache.Key(layer.Name, bbox, zoom, s.precision)
	rc := RequestContext{Layer: layer.Name, BBox: snapped, Zoom: zoom}
	res := Result{Strategy: strategy, Key: key, Request: rc}

	if body, remaining, ok := s.cache.Get(ctx, key); ok {
		res.Payload = body
		res.CacheHit = true
		res.MaxAge = min(remaining, strategy.TTL)
		return res, nil
	}

	rows, err := s.store.QueryViewport(ctx, layer, snapped, strategy)
	if err != nil {
		return res, err
	}

	payload := Assemble(rows, strategy, rc, s.log)
	body, err := json.Marshal(payload)
	if err != nil {
		return res, fmt.Errorf("encode viewport payload: %w", err)
	}
	s.cache.Set(ctx, key, body, strategy.TTL)

	res.Payload = body
	res.MaxAge = strategy.TTL
	return res, nil
}

// EmptyPayload is the body sent when a viewport cannot be served.
func EmptyPayload(res Result) []byte {
	b, _ := json.Marshal(emptyPayload(res.Strategy, res.Request))
	return b
}
