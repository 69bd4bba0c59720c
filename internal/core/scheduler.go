package core

// scheduler.go provides background maintenance for the job registry.
//
// Finished jobs stay queryable for a retention window so clients can
// fetch results after the fact, then get evicted from the in-memory
// registry. When a job archiver is configured, its old rows are purged
// on the same cadence. The sweeper is long-running and context-aware
// for graceful shutdown; it logs errors but never fails the
// application over an individual sweep.

import (
	"context"
	"time"
)

// RetentionConfig holds configuration for the registry sweeper.
// All fields have sensible defaults if zero values are provided.
type RetentionConfig struct {
	FinishedJobTTL time.Duration // how long terminal jobs stay queryable (default: 1h)
	HistoryTTL     time.Duration // how long archived history rows are kept (default: 30 days)
	SweepInterval  time.Duration // how often to sweep (default: 5m)
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.FinishedJobTTL <= 0 {
		c.FinishedJobTTL = time.Hour
	}
	if c.HistoryTTL <= 0 {
		c.HistoryTTL = 30 * 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
	return c
}

// StartRetentionScheduler starts a background goroutine that
// periodically evicts finished jobs and purges old history. It runs
// immediately on start, then every SweepInterval, and stops when the
// context is cancelled.
func (d *Dispatcher) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig) {
	cfg = cfg.withDefaults()
	d.logger.Info("retention scheduler started",
		"finished_job_ttl", cfg.FinishedJobTTL,
		"sweep_interval", cfg.SweepInterval,
	)

	d.runSweep(ctx, cfg)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			d.runSweep(ctx, cfg)
		}
	}
}

// runSweep performs one evict + purge cycle.
func (d *Dispatcher) runSweep(ctx context.Context, cfg RetentionConfig) {
	start := time.Now()

	evicted := d.evictFinished(cfg.FinishedJobTTL)
	if evicted > 0 {
		d.logger.Info("evicted finished jobs", "count", evicted)
	}

	if d.archiver != nil {
		purged, err := d.archiver.Purge(ctx, cfg.HistoryTTL)
		if err != nil {
			d.logger.Error("history purge failed", "error", err)
		} else if purged > 0 {
			d.logger.Info("purged job history rows", "count", purged)
		}
	}

	d.logger.Debug("retention sweep completed", "duration_ms", time.Since(start).Milliseconds())
}
