package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EmpoweredVote/forestwatch/internal/config"
	"github.com/EmpoweredVote/forestwatch/internal/db"
	"github.com/EmpoweredVote/forestwatch/internal/detections"
	"github.com/EmpoweredVote/forestwatch/internal/forest"
	"github.com/EmpoweredVote/forestwatch/internal/lod"
	"github.com/EmpoweredVote/forestwatch/internal/logger"
	"github.com/EmpoweredVote/forestwatch/internal/metrics"
	"github.com/EmpoweredVote/forestwatch/internal/middleware"
	"github.com/EmpoweredVote/forestwatch/internal/tilecache"
	"github.com/EmpoweredVote/forestwatch/internal/tiles"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if err := forest.Init(gdb); err != nil {
		return err
	}

	planner, err := lod.NewPlanner(cfg.LOD)
	if err != nil {
		return err
	}

	backendKind := cfg.ResolvedCacheBackend()
	backend, err := tilecache.NewBackend(ctx, backendKind, cfg.Cache, log)
	if err != nil {
		return err
	}
	cache := tilecache.New(backend, log, cfg.Cache.Timeout)
	defer cache.Close()

	store := forest.NewPostGISStore(gdb, forest.StoreConfig{
		Logger:           log,
		Clock:            clockwork.NewRealClock(),
		StatementTimeout: cfg.Database.StatementTimeout,
		LockTimeout:      cfg.Database.LockTimeout,
	})

	tileSvc := tiles.NewService(tiles.ServiceConfig{
		Layers:    forest.DefaultLayers(),
		Planner:   planner,
		Store:     store,
		Cache:     cache,
		Precision: cfg.Cache.Precision,
		Logger:    log,
	})
	detectionSvc := detections.NewService(store, cfg.Verification.MaxAreaRatio, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middleware.ProvenanceMiddleware)
	r.Get("/", RootHandler)
	r.Handle("/metrics", metrics.Handler())

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	r.Mount("/layers", tiles.SetupRoutes(tiles.NewHandler(tileSvc, log), limiter))
	r.Mount("/detections", detections.SetupRoutes(detections.NewHandler(detectionSvc, log)))
	r.Mount("/parcels", forest.SetupRoutes(forest.NewHandler(store, log)))

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Database.StatementTimeout + 15*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			"port", cfg.Port, "environment", cfg.Environment, "cache_backend", backendKind,
			"layers", forest.DefaultLayers().Names())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}
