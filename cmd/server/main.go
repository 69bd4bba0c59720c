package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forceadmin/bulkops/internal/config"
	"github.com/forceadmin/bulkops/internal/core"
	"github.com/forceadmin/bulkops/internal/history"
	"github.com/forceadmin/bulkops/internal/logging"
	"github.com/forceadmin/bulkops/internal/platform"
	"github.com/forceadmin/bulkops/internal/web"
)

func main() {
	// Load and validate configuration (reads .env if present)
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"api_version", cfg.Platform.APIVersion,
		"jobs_max_concurrent", cfg.Jobs.MaxConcurrent,
		"history_enabled", cfg.Database.URL != "",
	)

	ctx := context.Background()

	// Job history is optional; the dispatcher runs without it when no
	// database is configured.
	var hist *history.Store
	if cfg.Database.URL != "" {
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			slog.Error("failed to parse database URL", "error", err)
			os.Exit(1)
		}
		poolConfig.MaxConns = int32(cfg.Database.MaxConns)

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			slog.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		hist = history.NewStore(pool)
		if err := hist.EnsureSchema(ctx); err != nil {
			slog.Error("failed to ensure history schema", "error", err)
			os.Exit(1)
		}
		slog.Info("job history enabled")
	}

	// Platform client backs every remote operation
	client, err := platform.New(platform.Config{
		BaseURL:        cfg.Platform.BaseURL,
		AccessToken:    cfg.Platform.AccessToken,
		APIVersion:     cfg.Platform.APIVersion,
		RequestTimeout: cfg.Platform.RequestTimeout,
	}, slog.Default())
	if err != nil {
		slog.Error("failed to create platform client", "error", err)
		os.Exit(1)
	}

	// Register all job handlers
	handlers := core.NewHandlers(client, client, client, client, core.BulkConfig{
		ChunkSize:    cfg.Bulk.ChunkSize,
		QueryBudget:  cfg.Bulk.QueryBudget,
		PollInterval: cfg.Bulk.PollInterval,
		PollAttempts: cfg.Bulk.PollAttempts,
	})
	handlers.RegisterAll()

	core.JobTimeout = cfg.Jobs.Timeout

	limiter := core.NewJobLimiter(cfg.Jobs.MaxConcurrent, cfg.Jobs.AcquireWait)

	var archiver core.JobArchiver
	if hist != nil {
		archiver = hist
	}
	dispatcher := core.NewDispatcher(core.DispatcherOptions{
		QueueDepth: cfg.Jobs.QueueDepth,
		Limiter:    limiter,
		Archiver:   archiver,
		Logger:     slog.Default(),
	})

	slog.Info("job kinds registered",
		"count", len(core.Definitions()),
		"categories", len(core.Categories()),
	)

	// Create cancellable context for executors and background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	group := dispatcher.Start(jobCtx)

	go dispatcher.StartRetentionScheduler(jobCtx, core.RetentionConfig{
		FinishedJobTTL: cfg.Retention.FinishedJobTTL,
		HistoryTTL:     cfg.Retention.HistoryTTL,
		SweepInterval:  cfg.Retention.SweepInterval,
	})

	server := web.NewServer(dispatcher, hist, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for in-flight jobs before stopping executors
		if active := limiter.ActiveCount(); active > 0 {
			slog.Info("waiting for jobs to complete", "active", active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("jobs did not complete in time", "error", err)
			} else {
				slog.Info("all jobs completed")
			}
		}

		cancelJobs()
		if err := group.Wait(); err != nil {
			slog.Warn("executor shutdown error", "error", err)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
