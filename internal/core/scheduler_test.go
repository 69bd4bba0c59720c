package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// countingArchiver tracks purge calls and can fail them.
type countingArchiver struct {
	mu       sync.Mutex
	purges   int
	purgeErr error
}

func (a *countingArchiver) RecordJob(ctx context.Context, job JobDescriptor, result JobResult) error {
	return nil
}

func (a *countingArchiver) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.purges++
	return 3, a.purgeErr
}

func (a *countingArchiver) purgeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.purges
}

// ----------------------------------------------------------------------------
// Retention Scheduler Tests
// ----------------------------------------------------------------------------

func TestRetentionConfigDefaults(t *testing.T) {
	cfg := RetentionConfig{}.withDefaults()

	if cfg.FinishedJobTTL != time.Hour {
		t.Errorf("FinishedJobTTL = %v", cfg.FinishedJobTTL)
	}
	if cfg.HistoryTTL != 30*24*time.Hour {
		t.Errorf("HistoryTTL = %v", cfg.HistoryTTL)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("SweepInterval = %v", cfg.SweepInterval)
	}

	custom := RetentionConfig{FinishedJobTTL: time.Minute}.withDefaults()
	if custom.FinishedJobTTL != time.Minute {
		t.Errorf("explicit value overwritten: %v", custom.FinishedJobTTL)
	}
}

func TestRetentionSchedulerSweeps(t *testing.T) {
	ClearRegistry()
	t.Cleanup(ClearRegistry)

	archiver := &countingArchiver{}
	d := NewDispatcher(DispatcherOptions{Archiver: archiver})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.StartRetentionScheduler(ctx, RetentionConfig{SweepInterval: 10 * time.Millisecond})
		close(done)
	}()

	// The scheduler sweeps immediately, then on the interval.
	deadline := time.Now().Add(2 * time.Second)
	for archiver.purgeCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if archiver.purgeCount() < 3 {
		t.Fatalf("purges = %d, want at least 3", archiver.purgeCount())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancellation")
	}
}

func TestRetentionSchedulerSurvivesPurgeError(t *testing.T) {
	ClearRegistry()
	t.Cleanup(ClearRegistry)

	archiver := &countingArchiver{purgeErr: errors.New("database offline")}
	d := NewDispatcher(DispatcherOptions{Archiver: archiver})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.StartRetentionScheduler(ctx, RetentionConfig{SweepInterval: 10 * time.Millisecond})

	deadline := time.Now().Add(2 * time.Second)
	for archiver.purgeCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if archiver.purgeCount() < 2 {
		t.Fatal("scheduler stopped sweeping after a purge error")
	}
}
