package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TileCacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forestwatch_tile_cache_hits_total",
		Help: "Tile cache hits by backend",
	}, []string{"backend"})
	TileCacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forestwatch_tile_cache_misses_total",
		Help: "Tile cache misses by backend",
	}, []string{"backend"})
	TileCacheErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forestwatch_tile_cache_errors_total",
		Help: "Tile cache backend failures, swallowed at the cache boundary",
	}, []string{"backend", "op"})
	TileCacheStoredBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "forestwatch_tile_cache_stored_bytes",
		Help:    "Compressed payload size written to the tile cache",
		Buckets: prometheus.ExponentialBuckets(512, 4, 8),
	})
	TileCacheCompressionRatio = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "forestwatch_tile_cache_compression_ratio",
		Help:    "Raw / compressed payload size",
		Buckets: []float64{1, 1.5, 2, 3, 5, 8, 12, 20},
	})
	ViewportDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forestwatch_viewport_duration_ms",
		Help:    "Viewport request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"load_strategy", "cache"})
	SkippedGeometriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forestwatch_skipped_geometries_total",
		Help: "Rows dropped during tile assembly because of malformed geometry",
	}, []string{"layer"})
	VerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forestwatch_verifications_total",
		Help: "Verification attempts by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(TileCacheHitsTotal)
	prometheus.MustRegister(TileCacheMissesTotal)
	prometheus.MustRegister(TileCacheErrorsTotal)
	prometheus.MustRegister(TileCacheStoredBytes)
	prometheus.MustRegister(TileCacheCompressionRatio)
	prometheus.MustRegister(ViewportDurationMs)
	prometheus.MustRegister(SkippedGeometriesTotal)
	prometheus.MustRegister(VerificationsTotal)
}

func Handler() http.Handler { return promhttp.Handler() }
