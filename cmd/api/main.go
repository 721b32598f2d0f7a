package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/robfig/cron/v3"
	"github.com/rs/cors"

	"github.com/vykso/backend/internal/auth"
	"github.com/vykso/backend/internal/billing"
	"github.com/vykso/backend/internal/config"
	"github.com/vykso/backend/internal/dashboard"
	"github.com/vykso/backend/internal/generation"
	"github.com/vykso/backend/internal/ledger"
	"github.com/vykso/backend/internal/provider"
	"github.com/vykso/backend/internal/repository"
	"github.com/vykso/backend/internal/router"
	"github.com/vykso/backend/internal/storage"
	"github.com/vykso/backend/internal/videos"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	if err := repository.EnsureSchema(ctx, pool); err != nil {
		slog.Error("Schema bootstrap failed", "error", err)
		os.Exit(1)
	}

	accountRepo := repository.NewAccountRepo(pool)
	creditRepo := repository.NewCreditRepo(pool)
	videoRepo := repository.NewVideoJobRepo(pool)
	billingRepo := repository.NewBillingEventRepo(pool)

	ledgerSvc := ledger.NewService(pool, accountRepo, creditRepo)

	// Videos: insert func is set after the River client is created
	// (breaks the init cycle between service and worker).
	var insertMu sync.Mutex
	var insertFn videos.InsertGenerateVideoTxFunc
	insertGenerateVideo := func(ctx context.Context, tx pgx.Tx, args generation.GenerateVideoArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	videoSvc := videos.NewService(videoRepo, accountRepo, ledgerSvc, insertGenerateVideo)

	providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderCallbackURL)

	uploader, err := storage.NewUploader(ctx, storage.Config{
		Endpoint:        cfg.R2Endpoint,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		Bucket:          cfg.R2Bucket,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	})
	if err != nil {
		slog.Error("Failed to create storage uploader", "error", err)
		os.Exit(1)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, generation.NewGenerateVideoWorker(videoSvc, providerClient, uploader, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args generation.GenerateVideoArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	authSvc := auth.NewService(accountRepo, creditRepo, cfg.JWTSecret)
	authHandler := auth.NewHandler(authSvc, logger)

	billingSvc := billing.NewService(accountRepo, ledgerSvc, billingRepo, logger)
	billingHandler := billing.NewHandler(billingSvc, cfg.BillingWebhookSecret, logger)

	callbackHandler := generation.NewCallbackHandler(videoSvc, videoSvc, uploader, logger)

	dashHandler := dashboard.NewHandler(accountRepo, creditRepo, videoSvc, logger)

	apiRouter := router.New(authHandler, dashHandler, billingHandler, callbackHandler, authSvc)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (processes generation jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	// Sweep jobs stuck in generating past the timeout: fail them and refund.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 5m", func() {
		n, err := videoSvc.FailStale(ctx, cfg.GenerationTimeout)
		if err != nil {
			slog.Error("Stale job sweep failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("Swept stale generation jobs", "count", n)
		}
	}); err != nil {
		slog.Error("Failed to schedule stale job sweeper", "error", err)
		os.Exit(1)
	}
	sweeper.Start()
	defer sweeper.Stop()

	serverAddr := "0.0.0.0:" + cfg.ServerPort
	slog.Info("Starting HTTP server", "addr", serverAddr)
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
