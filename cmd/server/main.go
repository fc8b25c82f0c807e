package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/clock"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/database"
	"github.com/stemsi/exstem-attempt-engine/internal/handler"
	"github.com/stemsi/exstem-attempt-engine/internal/logger"
	"github.com/stemsi/exstem-attempt-engine/internal/middleware"
	"github.com/stemsi/exstem-attempt-engine/internal/repository"
	"github.com/stemsi/exstem-attempt-engine/internal/risk"
	"github.com/stemsi/exstem-attempt-engine/internal/router"
	"github.com/stemsi/exstem-attempt-engine/internal/service"
	"github.com/stemsi/exstem-attempt-engine/internal/validator"
	"github.com/stemsi/exstem-attempt-engine/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Attempt Engine")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Load Risk Policy ──────────────────────────────────────────────
	policy := risk.DefaultPolicy()
	if cfg.RiskPolicyFile != "" {
		p, err := risk.LoadPolicy(cfg.RiskPolicyFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.RiskPolicyFile).Msg("Failed to load risk policy")
		}
		policy = p
		log.Info().Str("path", cfg.RiskPolicyFile).Msg("Risk policy loaded")
	}

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	resultRepo := repository.NewResultRepository(pool)
	attemptStore := repository.NewAttemptStore(rdb)
	attemptLock := repository.NewAttemptLock(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	sink := worker.NewRedisSink(rdb, log)
	authService := service.NewAuthService(cfg)
	examService := service.NewExamService(examRepo, rdb, cfg, log)
	attemptService := service.NewAttemptService(
		attemptStore,
		attemptLock,
		examService,
		resultRepo,
		risk.NewScorer(policy),
		clock.System{},
		sink,
		cfg,
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	// HTTP and stream telemetry draw from the same per-user budget.
	telemetryLimiter := middleware.NewRateLimiter(ctx, cfg.TelemetryRatePerMinute, time.Minute)
	handlers := &router.Handlers{
		Attempt:          handler.NewAttemptHandler(attemptService, log),
		Admin:            handler.NewAdminHandler(attemptService, examService, resultRepo, log),
		Monitor:          handler.NewMonitorHandler(rdb, examService, resultRepo, log),
		System:           handler.NewSystemHandler(rdb, pool, log),
		WS:               handler.NewWSHandler(attemptService, telemetryLimiter, log, cfg.AllowedOrigins),
		TelemetryLimiter: telemetryLimiter,
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	workers.Go(func() { worker.NewAutosaveWorker(pool, rdb, log).Start(workerCtx) })
	workers.Go(func() { worker.NewTelemetryWorker(pool, rdb, log).Start(workerCtx) })
	workers.Go(func() { worker.NewResultWorker(pool, rdb, log).Start(workerCtx) })
	workers.Go(func() { worker.NewQuestionOrderWorker(pool, rdb, log).Start(workerCtx) })
	workers.Go(func() {
		worker.NewExpirySweeper(attemptService, cfg.SweepInterval, cfg.SweepBatchSize, log).Start(workerCtx)
	})

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published exams into Redis BEFORE accepting traffic.
	// This avoids race conditions from lazy loading under thundering herd.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, attemptService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the sweeper and workers; each flushes its pending batch.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
