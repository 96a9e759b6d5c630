// Command clear-tiles empties the configured tile cache, e.g. after a bulk re-ingest of
// detections. Verification alone does not need it; cached tiles expire with their TTL.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/EmpoweredVote/forestwatch/internal/config"
	"github.com/EmpoweredVote/forestwatch/internal/logger"
	"github.com/EmpoweredVote/forestwatch/internal/tilecache"
)

func main() {
	backendFlag := flag.String("backend", "", "cache backend to clear (memory|redis); defaults to CACHE_BACKEND")
	timeout := flag.Duration("timeout", time.Minute, "give up after this long")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	kind := cfg.ResolvedCacheBackend()
	if *backendFlag != "" {
		kind = *backendFlag
	}
	if kind == config.CacheBackendMemory {
		// an in-process cache belongs to the server; restarting it is the only way to clear it
		log.Fatal("memory backend lives inside the server process; restart the server instead")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	backend, err := tilecache.NewBackend(ctx, kind, cfg.Cache, lg)
	if err != nil {
		log.Fatalf("open cache backend: %v", err)
	}
	cache := tilecache.New(backend, lg, cfg.Cache.Timeout)
	defer cache.Close()

	n, err := cache.Clear(ctx)
	if err != nil {
		log.Fatalf("clear tiles (removed %d before failing): %v", n, err)
	}
	fmt.Printf("✓ Cleared %d cached tiles from %s (prefix %q)\n", n, kind, cfg.Cache.KeyPrefix)
}
