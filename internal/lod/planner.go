// Package lod maps a map zoom level to the query strategy used to serve it.
// All zoom thresholds live here; nothing else in the module branches on zoom.
package lod

import (
	"errors"
	"fmt"
	"time"
)

// Resolution is one of the precomputed geometry resolutions of a layer.
type Resolution string

const (
	Coarse Resolution = "coarse"
	Medium Resolution = "medium"
	Fine   Resolution = "fine"
)

// Rank orders resolutions by detail, coarse first.
func (r Resolution) Rank() int {
	switch r {
	case Coarse:
		return 0
	case Medium:
		return 1
	case Fine:
		return 2
	}
	return -1
}

const (
	LoadClustered  = "clustered"
	LoadIndividual = "individual"
)

// Strategy is computed once per request and never persisted.
type Strategy struct {
	Resolution        Resolution
	Clustered         bool
	RowLimit          int
	TTL               time.Duration
	MinClusterMembers int
}

func (s Strategy) TTLSeconds() int { return int(s.TTL / time.Second) }

func (s Strategy) LoadStrategy() string {
	if s.Clustered {
		return LoadClustered
	}
	return LoadIndividual
}

// Config holds the zoom tier thresholds and per-tier limits.
//
// Environment variables:
//   - LOD_Z_LOW / LOD_Z_MID: last zoom served clustered / at medium resolution
//   - LOD_MIN_ZOOM / LOD_MAX_ZOOM: supported range, requests outside it are clamped
//   - LOD_CLUSTER_MIN_MEMBERS: groups smaller than this are dropped from clustered output
//   - LOD_{LOW,MID,HIGH}_ROW_LIMIT and LOD_{LOW,MID,HIGH}_TTL
type Config struct {
	ZLow              int           `env:"LOD_Z_LOW" env-default:"9"`
	ZMid              int           `env:"LOD_Z_MID" env-default:"12"`
	MinZoom           int           `env:"LOD_MIN_ZOOM" env-default:"0"`
	MaxZoom           int           `env:"LOD_MAX_ZOOM" env-default:"22"`
	ClusterMinMembers int           `env:"LOD_CLUSTER_MIN_MEMBERS" env-default:"3"`
	LowRowLimit       int           `env:"LOD_LOW_ROW_LIMIT" env-default:"500"`
	LowTTL            time.Duration `env:"LOD_LOW_TTL" env-default:"2h"`
	MidRowLimit       int           `env:"LOD_MID_ROW_LIMIT" env-default:"2000"`
	MidTTL            time.Duration `env:"LOD_MID_TTL" env-default:"1h"`
	HighRowLimit      int           `env:"LOD_HIGH_ROW_LIMIT" env-default:"5000"`
	HighTTL           time.Duration `env:"LOD_HIGH_TTL" env-default:"30m"`
}

// DefaultConfig mirrors the env-default tags for callers that do not read the environment.
func DefaultConfig() Config {
	return Config{
		ZLow:              9,
		ZMid:              12,
		MinZoom:           0,
		MaxZoom:           22,
		ClusterMinMembers: 3,
		LowRowLimit:       500,
		LowTTL:            2 * time.Hour,
		MidRowLimit:       2000,
		MidTTL:            time.Hour,
		HighRowLimit:      5000,
		HighTTL:           30 * time.Minute,
	}
}

func (c Config) Validate() error {
	if c.MinZoom > c.MaxZoom {
		return fmt.Errorf("min zoom %d above max zoom %d", c.MinZoom, c.MaxZoom)
	}
	if c.ZLow > c.ZMid {
		return fmt.Errorf("low zoom threshold %d above mid threshold %d", c.ZLow, c.ZMid)
	}
	if c.LowRowLimit <= 0 || c.MidRowLimit <= 0 || c.HighRowLimit <= 0 {
		return errors.New("row limits must be positive")
	}
	if c.LowTTL <= 0 || c.MidTTL <= 0 || c.HighTTL <= 0 {
		return errors.New("tier TTLs must be positive")
	}
	if c.ClusterMinMembers < 1 {
		return errors.New("cluster minimum member count must be at least 1")
	}
	return nil
}

type Planner struct {
	cfg Config
}

func NewPlanner(cfg Config) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lod config: %w", err)
	}
	return &Planner{cfg: cfg}, nil
}

// Clamp pulls zoom into the supported range.
func (p *Planner) Clamp(zoom int) int {
	return min(max(zoom, p.cfg.MinZoom), p.cfg.MaxZoom)
}

// Plan is pure and total: every int produces a strategy.
func (p *Planner) Plan(zoom int) Strategy {
	zoom = p.Clamp(zoom)
	switch {
	case zoom <= p.cfg.ZLow:
		return Strategy{
			Resolution:        Coarse,
			Clustered:         true,
			RowLimit:          p.cfg.LowRowLimit,
			TTL:               p.cfg.LowTTL,
			MinClusterMembers: p.cfg.ClusterMinMembers,
		}
	case zoom <= p.cfg.ZMid:
		return Strategy{Resolution: Medium, RowLimit: p.cfg.MidRowLimit, TTL: p.cfg.MidTTL}
	default:
		return Strategy{Resolution: Fine, RowLimit: p.cfg.HighRowLimit, TTL: p.cfg.HighTTL}
	}
}

func (p *Planner) Config() Config { return p.cfg }
