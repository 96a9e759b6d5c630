// Package tilecache stores assembled viewport payloads keyed by layer, snapped bbox and zoom.
//
// The cache is an optimisation only. Backend failures are logged, counted and turned into a
// miss or a no-op here; they never reach the request path.
package tilecache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
	"github.com/EmpoweredVote/forestwatch/internal/config"
	"github.com/EmpoweredVote/forestwatch/internal/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// Backend stores opaque bytes with a TTL.
type Backend interface {
	Name() string
	// Get returns the value and how long it stays valid.
	Get(ctx context.Context, key string) ([]byte, time.Duration, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Clear(ctx context.Context) (int, error)
	Close() error
}

type Cache struct {
	backend Backend
	log     *slog.Logger
	timeout time.Duration
}

func New(backend Backend, log *slog.Logger, timeout time.Duration) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{backend: backend, log: log, timeout: timeout}
}

func (c *Cache) BackendName() string { return c.backend.Name() }

func (c *Cache) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Cache) fail(op, key string, err error) {
	metrics.TileCacheErrorsTotal.WithLabelValues(c.backend.Name(), op).Inc()
	c.log.Warn("tile cache degraded",
		"backend", c.backend.Name(), "op", op, "key", key,
		"error", apperrors.CacheBackend(err, op))
}

// Get returns the decoded payload for key and its remaining lifetime. Any backend or decode
// failure reads as a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	data, remaining, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.fail("get", key, err)
		metrics.TileCacheMissesTotal.WithLabelValues(c.backend.Name()).Inc()
		return nil, 0, false
	}
	if !ok {
		metrics.TileCacheMissesTotal.WithLabelValues(c.backend.Name()).Inc()
		return nil, 0, false
	}
	raw, err := decompress(data)
	if err != nil {
		c.fail("decode", key, err)
		metrics.TileCacheMissesTotal.WithLabelValues(c.backend.Name()).Inc()
		return nil, 0, false
	}
	metrics.TileCacheHitsTotal.WithLabelValues(c.backend.Name()).Inc()
	return raw, remaining, true
}

// Set stores payload for ttl. Non-positive TTLs are not cached.
func (c *Cache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	data, err := compress(payload)
	if err != nil {
		c.fail("encode", key, err)
		return
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.backend.Set(ctx, key, data, ttl); err != nil {
		c.fail("set", key, err)
		return
	}

	ratio := 0.0
	if len(data) > 0 {
		ratio = float64(len(payload)) / float64(len(data))
	}
	metrics.TileCacheStoredBytes.Observe(float64(len(data)))
	metrics.TileCacheCompressionRatio.Observe(ratio)
	c.log.Debug("tile cached",
		"key", key, "raw_bytes", len(payload), "stored_bytes", len(data),
		"ratio", fmt.Sprintf("%.2f", ratio), "ttl", ttl)
}

// Clear empties the backend. Unlike Get and Set it reports failures, since only the
// operator tool calls it.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	n, err := c.backend.Clear(ctx)
	if err != nil {
		return n, apperrors.CacheBackend(err, "clear")
	}
	return n, nil
}

func (c *Cache) Close() error { return c.backend.Close() }

// NewBackend builds the backend named by kind ("memory" or "redis"). An unreachable redis
// is reported but not fatal; the cache then degrades to misses until it comes back.
func NewBackend(ctx context.Context, kind string, cfg config.CacheConfig, log *slog.Logger) (Backend, error) {
	switch kind {
	case config.CacheBackendMemory:
		return NewMemoryBackend(clockwork.NewRealClock()), nil
	case config.CacheBackendRedis:
		rb := NewRedisBackend(redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		}), cfg.KeyPrefix)
		bo := backoff.WithContext(backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(5*time.Second)), ctx)
		err := backoff.Retry(func() error {
			pingCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			return rb.Ping(pingCtx)
		}, bo)
		if err != nil {
			log.Warn("redis unreachable at startup, tile cache will miss until it recovers",
				"addr", cfg.RedisAddr, "error", err)
		}
		return rb, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", kind)
}
