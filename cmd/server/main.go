package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"hivehook/internal/api"
	"hivehook/internal/api/handlers"
	"hivehook/internal/api/middleware"
	"hivehook/internal/engine/ingest"
	"hivehook/internal/engine/secrets"
	"hivehook/internal/engine/workflow"
	"hivehook/internal/pkg/logger"
	"hivehook/internal/platform/audit"
	"hivehook/internal/platform/auth"
	"hivehook/internal/platform/config"
	"hivehook/internal/platform/database"
	"hivehook/internal/platform/repositories"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
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
	if err := engine.SelfTest(); err != nil {
		log.Fatal().Err(err).Msg("encryption self test failed")
	}

	// Repositories
	workspaceRepo := repositories.NewWorkspaceRepository(db)
	repositoryRepo := repositories.NewRepositoryRepository(db)
	workflowRepo := repositories.NewWorkflowConfigRepository(db)
	credentialRepo := repositories.NewCredentialRepository(db)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	pipeline := ingest.NewPipeline(ingest.NewSQLStore(db), engine, workflow.NewClient(cfg.Workflow.Timeout), cfg.Ingest.CallbackBaseURL)
	limiter := middleware.NewRateLimiter(cfg.Webhooks.RateLimitPerMinute)

	deps := &api.Dependencies{
		AdminHandler:   handlers.NewAdminHandler(workspaceRepo, repositoryRepo, workflowRepo, credentialRepo, engine, audit.NewLogger(db)),
		WebhookHandler: handlers.NewWebhookHandler(pipeline, cfg.Webhooks.MaxBodyBytes),
		HealthHandler:  handlers.NewHealthHandler(db, engine),
		AuthMiddleware: middleware.NewAuthMiddleware(tokenSvc),
		RateLimiter:    limiter,
		Logger:         log.Logger,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweepRateLimiter(ctx, limiter)

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("active_key_id", keyring.ActiveID()).
			Strs("key_ids", keyring.IDs()).
			Str("algorithm_version", engine.Version()).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func sweepRateLimiter(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}
