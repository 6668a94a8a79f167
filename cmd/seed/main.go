package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/vaidashi/service-desk-api/internal/catalog"
	"github.com/vaidashi/service-desk-api/internal/config"
	"github.com/vaidashi/service-desk-api/internal/database"
	"github.com/vaidashi/service-desk-api/internal/repository"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

// seed loads a catalog fixture (clients, technicians, products and
// services) into Postgres
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	path := flag.String("fixture", cfg.CatalogFixture, "path to the catalog YAML fixture")
	migrate := flag.Bool("migrate", true, "run migrations before seeding")
	flag.Parse()

	l := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)

	fx, err := catalog.LoadFixtureFile(*path)
	if err != nil {
		l.Error("Failed to load fixture", "path", *path, "error", err)
		log.Fatal(err)
	}

	db, err := database.New(cfg, l)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if *migrate {
		if err := db.RunMigrations(); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := fx.Apply(ctx, repository.NewCatalogRepository(db, l)); err != nil {
		log.Fatalf("Failed to seed catalog: %v", err)
	}

	l.Info("Catalog seeded",
		"path", *path,
		"clients", len(fx.Clients),
		"technicians", len(fx.Technicians),
		"products", len(fx.Products),
		"services", len(fx.Services))
}
