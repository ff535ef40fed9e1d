package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"hivehook/internal/engine/secrets"
	"hivehook/internal/pkg/logger"
	"hivehook/internal/platform/config"
	"hivehook/internal/platform/database"
	"hivehook/internal/platform/repositories"
	"hivehook/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	once := flag.Bool("once", false, "Run a single rotation pass and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	closer := logger.Init(cfg.Logging)
	defer closer.Close()

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	keyring, err := secrets.NewKeyring(cfg.Encryption)
	if err != nil {
		log.Fatal().Err(err).Msg("encryption keys not usable")
	}
	engine, err := secrets.NewEngine(keyring, cfg.Encryption.AlgorithmVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build encryption engine")
	}

	stores := workers.Stores{
		Repositories: repositories.NewRepositoryRepository(db),
		Workflows:    repositories.NewWorkflowConfigRepository(db),
		Credentials:  repositories.NewCredentialRepository(db),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.With().Str("worker", "secret_rotation").Logger().WithContext(ctx)

	log.Info().Str("active_key_id", keyring.ActiveID()).Dur("interval", cfg.Workers.RotationInterval).Msg("starting secret rotation worker")

	runRotation(ctx, engine, stores)
	if *once {
		return
	}

	interval := cfg.Workers.RotationInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker stopped")
			return
		case <-ticker.C:
			runRotation(ctx, engine, stores)
		}
	}
}

func runRotation(ctx context.Context, engine *secrets.Engine, stores workers.Stores) {
	start := time.Now()
	report, err := workers.RotateSecrets(ctx, engine, stores)
	if err != nil {
		log.Error().Err(err).Msg("secret rotation pass failed")
		return
	}
	log.Info().
		Int("scanned", report.Scanned).
		Int("rotated", report.Rotated).
		Int("skipped", report.Skipped).
		Dur("took", time.Since(start)).
		Msg("secret rotation pass complete")
}
