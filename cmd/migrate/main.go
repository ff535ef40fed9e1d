package main

import (
	"context"
	"flag"

	"github.com/rs/zerolog/log"
	"hivehook/internal/pkg/logger"
	"hivehook/internal/platform/config"
	"hivehook/internal/platform/database"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	dir := flag.String("dir", "", "Migrations directory (defaults to database.migrations_path)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	closer := logger.Init(cfg.Logging)
	defer closer.Close()

	path := cfg.Database.MigrationsPath
	if *dir != "" {
		path = *dir
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db, path); err != nil {
		log.Fatal().Err(err).Str("dir", path).Msg("migration failed")
	}

	log.Info().Str("dir", path).Msg("migrations applied")
}
