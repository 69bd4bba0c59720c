package core

// dispatcher.go is the UI-facing boundary of the pipeline. It assigns
// job ids, forwards descriptors to the per-category executors, and
// reconciles results into the session's job registry. The registry is
// the only shared mutable state in the pipeline and is owned
// exclusively by the dispatcher; executors only emit result messages.

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// JobTimeout is the maximum wall-clock duration for one job.
var JobTimeout = 60 * time.Minute

// trackedJob is the dispatcher's view of one submitted job.
type trackedJob struct {
	Job      JobDescriptor
	Cancel   context.CancelFunc
	Progress JobProgress
	Result   *JobResult
	Done     chan struct{}

	listenerMu sync.Mutex
	listeners  []chan JobProgress
}

// notifyProgress fans the current progress out to all listeners
// without blocking on slow consumers.
func (t *trackedJob) notifyProgress(p JobProgress) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	for _, ch := range t.listeners {
		select {
		case ch <- p:
		default:
		}
	}
}

func (t *trackedJob) closeListeners() {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	for _, ch := range t.listeners {
		close(ch)
	}
	t.listeners = nil
}

// Dispatcher owns the job registry and the executors.
type Dispatcher struct {
	executors map[string]*Executor
	limiter   *JobLimiter
	archiver  JobArchiver // optional
	logger    *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*trackedJob
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	QueueDepth int
	Limiter    *JobLimiter
	Archiver   JobArchiver
	Logger     *slog.Logger
}

// NewDispatcher creates a dispatcher with one executor per registered
// job category. Call Start before submitting jobs.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewJobLimiter(DefaultMaxConcurrentJobs, DefaultLimiterWait)
	}

	d := &Dispatcher{
		executors: make(map[string]*Executor),
		limiter:   limiter,
		archiver:  opts.Archiver,
		logger:    logger,
		jobs:      make(map[string]*trackedJob),
	}
	for _, category := range Categories() {
		d.executors[category] = NewExecutor(category, opts.QueueDepth, logger)
	}
	return d
}

// Start runs every executor plus a result reconciler per executor.
// Returns once all goroutines are scheduled; the returned group
// completes when ctx is cancelled and all executors have drained.
func (d *Dispatcher) Start(ctx context.Context) *errgroup.Group {
	g, ctx := errgroup.WithContext(ctx)
	for _, exec := range d.executors {
		exec := exec
		g.Go(func() error {
			err := exec.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
		g.Go(func() error {
			d.reconcile(exec.Results())
			return nil
		})
	}
	return g
}

// Submit assigns an id to the payload, registers it, and forwards it
// to its category's executor. Returns the job id immediately; the
// caller receives the result via Result, SubscribeProgress, or a later
// Status call.
func (d *Dispatcher) Submit(ctx context.Context, kind JobKind, payload any) (string, error) {
	def, ok := Lookup(kind)
	if !ok {
		return "", ErrUnknownJobKind
	}

	if err := d.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	job := JobDescriptor{
		ID:        uuid.New().String(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now(),
	}

	// The job outlives the submission request, so its context derives
	// from the background, bounded by JobTimeout and the Cancel handle.
	jobCtx, cancel := context.WithTimeout(context.Background(), JobTimeout)

	tracked := &trackedJob{
		Job:    job,
		Cancel: cancel,
		Progress: JobProgress{
			JobID: job.ID,
			Kind:  kind,
			Phase: PhaseReceived,
		},
		Done: make(chan struct{}),
	}

	d.mu.Lock()
	d.jobs[job.ID] = tracked
	d.mu.Unlock()

	report := func(percent int) {
		d.updateProgress(job.ID, PhaseRunning, percent, "")
	}

	if err := d.executors[def.Category].Submit(jobCtx, job, report); err != nil {
		cancel()
		d.mu.Lock()
		delete(d.jobs, job.ID)
		d.mu.Unlock()
		d.limiter.Release()
		return "", err
	}

	d.updateProgress(job.ID, PhaseRunning, 0, "")
	d.logger.Info("job dispatched", "job_id", job.ID, "kind", kind, "category", def.Category)
	return job.ID, nil
}

// reconcile consumes one executor's results, recording each into the
// registry exactly once.
func (d *Dispatcher) reconcile(results <-chan JobResult) {
	for result := range results {
		d.mu.RLock()
		tracked, ok := d.jobs[result.JobID]
		d.mu.RUnlock()
		if !ok {
			continue
		}

		phase := PhaseSucceeded
		if result.Error != "" {
			phase = PhaseFailed
			if result.Error == ErrCancelled.Error() {
				phase = PhaseCancelled
			}
		}

		tracked.Result = &result
		d.updateProgress(result.JobID, phase, 100, result.Error)
		tracked.Cancel()
		tracked.closeListeners()
		close(tracked.Done)
		d.limiter.Release()

		if d.archiver != nil {
			if err := d.archiver.RecordJob(context.Background(), tracked.Job, result); err != nil {
				d.logger.Error("record job history", "job_id", result.JobID, "error", err)
			}
		}
	}
}

// updateProgress mutates a tracked job's progress and notifies
// listeners. Terminal phases stick: a late progress callback from a
// finished handler never resurrects a job.
func (d *Dispatcher) updateProgress(jobID string, phase JobPhase, percent int, message string) {
	d.mu.Lock()
	tracked, ok := d.jobs[jobID]
	if !ok {
		d.mu.Unlock()
		return
	}
	if tracked.Progress.Phase.Terminal() {
		d.mu.Unlock()
		return
	}
	tracked.Progress.Phase = phase
	if percent > tracked.Progress.Percent || phase.Terminal() {
		tracked.Progress.Percent = percent
	}
	tracked.Progress.Message = message
	snapshot := tracked.Progress
	d.mu.Unlock()

	tracked.notifyProgress(snapshot)
}

// SubscribeProgress returns a channel receiving progress updates for a
// job. The channel is closed when the job reaches a terminal state.
func (d *Dispatcher) SubscribeProgress(jobID string) (<-chan JobProgress, error) {
	d.mu.RLock()
	tracked, ok := d.jobs[jobID]
	d.mu.RUnlock()
	if !ok {
		return nil, errNotFound(jobID)
	}

	ch := make(chan JobProgress, 10)

	tracked.listenerMu.Lock()
	tracked.listeners = append(tracked.listeners, ch)
	select {
	case ch <- tracked.Progress:
	default:
	}
	tracked.listenerMu.Unlock()

	return ch, nil
}

// Cancel aborts an in-flight job. Terminal jobs are unaffected.
func (d *Dispatcher) Cancel(jobID string) error {
	d.mu.RLock()
	tracked, ok := d.jobs[jobID]
	d.mu.RUnlock()
	if !ok {
		return errNotFound(jobID)
	}

	tracked.Cancel()
	return nil
}

// Result blocks until the job completes and returns its single result.
func (d *Dispatcher) Result(ctx context.Context, jobID string) (*JobResult, error) {
	d.mu.RLock()
	tracked, ok := d.jobs[jobID]
	d.mu.RUnlock()
	if !ok {
		return nil, errNotFound(jobID)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-tracked.Done:
		return tracked.Result, nil
	}
}

// Status returns the current progress without blocking.
func (d *Dispatcher) Status(jobID string) (JobProgress, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tracked, ok := d.jobs[jobID]
	if !ok {
		return JobProgress{}, errNotFound(jobID)
	}
	return tracked.Progress, nil
}

// List returns a progress snapshot of every tracked job, newest first.
func (d *Dispatcher) List() []JobProgress {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]JobProgress, 0, len(d.jobs))
	entries := make([]*trackedJob, 0, len(d.jobs))
	for _, tracked := range d.jobs {
		entries = append(entries, tracked)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Job.CreatedAt.After(entries[j].Job.CreatedAt)
	})
	for _, tracked := range entries {
		out = append(out, tracked.Progress)
	}
	return out
}

// evictFinished removes terminal jobs older than retention from the
// registry. Called by the retention scheduler.
func (d *Dispatcher) evictFinished(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	d.mu.Lock()
	defer d.mu.Unlock()

	evicted := 0
	for id, tracked := range d.jobs {
		if !tracked.Progress.Phase.Terminal() {
			continue
		}
		if tracked.Result != nil && tracked.Result.CompletedAt.Before(cutoff) {
			delete(d.jobs, id)
			evicted++
		}
	}
	return evicted
}

func errNotFound(jobID string) error {
	return &notFoundError{jobID: jobID}
}

// notFoundError identifies an unknown job id; the web layer maps it to
// a 404.
type notFoundError struct {
	jobID string
}

func (e *notFoundError) Error() string { return "job not found: " + e.jobID }

// IsNotFound reports whether err identifies an unknown job id.
func IsNotFound(err error) bool {
	_, ok := err.(*notFoundError)
	return ok
}
