package main

import (
	"context"
	"flag"
	"log"

	"github.com/EmpoweredVote/forestwatch/internal/config"
	"github.com/EmpoweredVote/forestwatch/internal/db"
	"github.com/EmpoweredVote/forestwatch/internal/forest"
	"github.com/EmpoweredVote/forestwatch/internal/logger"
	"github.com/EmpoweredVote/forestwatch/internal/seeds"
)

func main() {
	dir := flag.String("dir", "internal/seeds/data", "directory holding parcels.geojson and detections.geojson")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Load config: %v", err)
	}
	lg := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	gdb, err := db.Connect(context.Background(), cfg.Database)
	if err != nil {
		log.Fatalf("❌ Connect: %v", err)
	}
	if err := forest.Init(gdb); err != nil {
		log.Fatalf("❌ Schema setup failed: %v", err)
	}
	if err := seeds.SeedAll(gdb, *dir, lg); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}
}
