package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/EmpoweredVote/forestwatch/internal/lod"
	"github.com/goccy/go-yaml"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Cache backend selectors.
const (
	CacheBackendAuto   = "auto"
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config is read from the environment (and .env.local when present).
type Config struct {
	Port        string   `env:"PORT" env-default:"5050"`
	Environment string   `env:"ENVIRONMENT" env-default:"development"`
	LogLevel    string   `env:"LOG_LEVEL" env-default:"info"`
	LogFormat   string   `env:"LOG_FORMAT" env-default:"text"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:5173"`

	Database     DatabaseConfig
	Cache        CacheConfig
	LOD          lod.Config
	Verification VerificationConfig
	RateLimit    RateLimitConfig

	// LODTiersFile optionally overrides the LOD section with a YAML file.
	LODTiersFile string `env:"LOD_TIERS_FILE"`
}

type DatabaseConfig struct {
	URL              string        `env:"DATABASE_URL"`
	MaxOpenConns     int           `env:"DB_MAX_OPEN_CONNS" env-default:"20"`
	MaxIdleConns     int           `env:"DB_MAX_IDLE_CONNS" env-default:"20"`
	ConnMaxLifetime  time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"30m"`
	SlowThreshold    time.Duration `env:"DB_SLOW_THRESHOLD" env-default:"200ms"`
	StatementTimeout time.Duration `env:"STATEMENT_TIMEOUT" env-default:"15s"`
	LockTimeout      time.Duration `env:"LOCK_TIMEOUT" env-default:"5s"`
}

type CacheConfig struct {
	Backend       string        `env:"CACHE_BACKEND" env-default:"auto"`
	RedisAddr     string        `env:"REDIS_ADDR" env-default:"127.0.0.1:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" env-default:"0"`
	KeyPrefix     string        `env:"CACHE_KEY_PREFIX" env-default:"tiles:"`
	Timeout       time.Duration `env:"CACHE_TIMEOUT" env-default:"250ms"`
	// Precision is the number of decimals bbox coordinates are snapped to in cache keys.
	Precision int `env:"CACHE_BBOX_PRECISION" env-default:"3"`
}

type VerificationConfig struct {
	// MaxAreaRatio bounds verified_area relative to the detected area.
	MaxAreaRatio float64 `env:"VERIFY_MAX_AREA_RATIO" env-default:"1.5"`
}

type RateLimitConfig struct {
	RPS   float64 `env:"RATE_LIMIT_RPS" env-default:"20"`
	Burst int     `env:"RATE_LIMIT_BURST" env-default:"40"`
}

// Load reads .env.local (if any), the environment and the optional tiers file.
func Load() (Config, error) {
	_ = godotenv.Load(".env.local")

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if cfg.LODTiersFile != "" {
		tiers, err := LoadTiers(cfg.LODTiersFile, cfg.LOD)
		if err != nil {
			return Config{}, err
		}
		cfg.LOD = tiers
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is empty")
	}
	switch c.Cache.Backend {
	case CacheBackendAuto, CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q (want auto, memory or redis)", c.Cache.Backend)
	}
	if c.Cache.Precision < 0 || c.Cache.Precision > 8 {
		return fmt.Errorf("CACHE_BBOX_PRECISION %d outside 0..8", c.Cache.Precision)
	}
	if c.Verification.MaxAreaRatio < 1 {
		return fmt.Errorf("VERIFY_MAX_AREA_RATIO %.2f must be at least 1", c.Verification.MaxAreaRatio)
	}
	return c.LOD.Validate()
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ResolvedCacheBackend turns "auto" into a concrete backend: the shared redis cache in
// production, the in-process map everywhere else.
func (c *Config) ResolvedCacheBackend() string {
	if c.Cache.Backend != CacheBackendAuto {
		return c.Cache.Backend
	}
	if c.IsProduction() {
		return CacheBackendRedis
	}
	return CacheBackendMemory
}

type tierFile struct {
	ZLow              *int       `yaml:"z_low"`
	ZMid              *int       `yaml:"z_mid"`
	MinZoom           *int       `yaml:"min_zoom"`
	MaxZoom           *int       `yaml:"max_zoom"`
	ClusterMinMembers *int       `yaml:"cluster_min_members"`
	Low               *tierLimit `yaml:"low"`
	Mid               *tierLimit `yaml:"mid"`
	High              *tierLimit `yaml:"high"`
}

type tierLimit struct {
	RowLimit   int `yaml:"row_limit"`
	TTLSeconds int `yaml:"ttl_seconds"`
}

// LoadTiers overlays the values present in a YAML tiers file on base.
//
//	z_low: 9
//	z_mid: 12
//	cluster_min_members: 3
//	low:  {row_limit: 500, ttl_seconds: 7200}
func LoadTiers(path string, base lod.Config) (lod.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lod.Config{}, fmt.Errorf("read tiers file: %w", err)
	}
	var f tierFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return lod.Config{}, fmt.Errorf("parse tiers file %s: %w", path, err)
	}

	cfg := base
	setInt(&cfg.ZLow, f.ZLow)
	setInt(&cfg.ZMid, f.ZMid)
	setInt(&cfg.MinZoom, f.MinZoom)
	setInt(&cfg.MaxZoom, f.MaxZoom)
	setInt(&cfg.ClusterMinMembers, f.ClusterMinMembers)
	setTier(&cfg.LowRowLimit, &cfg.LowTTL, f.Low)
	setTier(&cfg.MidRowLimit, &cfg.MidTTL, f.Mid)
	setTier(&cfg.HighRowLimit, &cfg.HighTTL, f.High)

	if err := cfg.Validate(); err != nil {
		return lod.Config{}, fmt.Errorf("tiers file %s: %w", path, err)
	}
	return cfg, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setTier(rows *int, ttl *time.Duration, t *tierLimit) {
	if t == nil {
		return
	}
	if t.RowLimit != 0 {
		*rows = t.RowLimit
	}
	if t.TTLSeconds != 0 {
		*ttl = time.Duration(t.TTLSeconds) * time.Second
	}
}
