package core

// executor.go runs jobs in an isolated goroutine reachable only through
// channels: typed job envelopes in, exactly one JobResult out per job.
// No state is shared with the caller. There are no retries at this
// layer; a retry is the caller's decision, expressed as a brand-new
// JobDescriptor.

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultJobQueueDepth is the submission buffer per executor.
var DefaultJobQueueDepth = 16

// jobEnvelope carries a job into the executor goroutine together with
// its per-job cancellation context and progress sink.
type jobEnvelope struct {
	ctx    context.Context
	job    JobDescriptor
	report ProgressFunc
}

// Executor is a single isolated execution context for one category of
// job kinds. Jobs submitted to it run strictly one at a time.
type Executor struct {
	category string
	jobs     chan jobEnvelope
	results  chan JobResult
	logger   *slog.Logger
}

// NewExecutor creates an executor for the given category. queueDepth
// bounds pending submissions; zero applies DefaultJobQueueDepth.
func NewExecutor(category string, queueDepth int, logger *slog.Logger) *Executor {
	if queueDepth <= 0 {
		queueDepth = DefaultJobQueueDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		category: category,
		jobs:     make(chan jobEnvelope, queueDepth),
		results:  make(chan JobResult, queueDepth),
		logger:   logger.With("executor", category),
	}
}

// Category returns the executor's job-kind category.
func (e *Executor) Category() string { return e.category }

// Submit enqueues a job. Returns ErrJobQueueFull when the submission
// buffer is full rather than blocking the caller.
func (e *Executor) Submit(ctx context.Context, job JobDescriptor, report ProgressFunc) error {
	select {
	case e.jobs <- jobEnvelope{ctx: ctx, job: job, report: report}:
		return nil
	default:
		return ErrJobQueueFull
	}
}

// Results returns the channel on which terminal job results are
// delivered, one per submitted job.
func (e *Executor) Results() <-chan JobResult {
	return e.results
}

// Run processes submitted jobs until ctx is cancelled. Jobs run one at
// a time; every handler error or panic becomes a Failed result and
// never escapes the message boundary.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started")
	defer close(e.results)

	for {
		// Cancellation wins over queued work, so a stopping executor
		// never starts another job.
		if ctx.Err() != nil {
			e.drain()
			e.logger.Info("executor stopped")
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
		case env := <-e.jobs:
			e.results <- e.execute(env)
		}
	}
}

// drain fails every job still queued at shutdown, so each submitted
// job yields exactly one result even when it never ran.
func (e *Executor) drain() {
	for {
		select {
		case env := <-e.jobs:
			e.logger.Info("job cancelled before start", "job_id", env.job.ID, "kind", env.job.Kind)
			e.results <- JobResult{
				JobID:       env.job.ID,
				Kind:        env.job.Kind,
				Error:       ErrCancelled.Error(),
				CompletedAt: time.Now(),
			}
		default:
			return
		}
	}
}

// execute runs one job to its terminal result.
func (e *Executor) execute(env jobEnvelope) JobResult {
	start := time.Now()
	log := e.logger.With("job_id", env.job.ID, "kind", env.job.Kind)
	log.Info("job started")

	result := JobResult{JobID: env.job.ID, Kind: env.job.Kind}

	def, ok := Lookup(env.job.Kind)
	if !ok {
		result.Error = fmt.Sprintf("%v: %s", ErrUnknownJobKind, env.job.Kind)
		result.CompletedAt = time.Now()
		log.Error("job failed", "error", result.Error)
		return result
	}

	output, err := runHandler(env, def.Handler)
	result.Output = output
	result.CompletedAt = time.Now()

	switch {
	case err != nil:
		result.Error = err.Error()
		log.Error("job failed",
			"error", result.Error,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	default:
		log.Info("job completed",
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return result
}

// runHandler invokes the handler, converting a panic into an error so
// one bad job cannot take down the executor.
func runHandler(env jobEnvelope, handler HandlerFunc) (output *JobOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return handler(env.ctx, env.job, env.report)
}
