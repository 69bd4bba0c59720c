package core

// poll.go waits out slow platform-side jobs. Remote bulk batches and
// metadata retrievals complete in minutes, so the loop uses a bounded
// attempt count with a linear backoff rather than wall-clock deadlines
// or exponential retry.

import (
	"context"
	"time"
)

// Polling defaults and backoff policy.
var (
	DefaultPollInterval = 5 * time.Second
	DefaultPollAttempts = 500

	// PollBackoffEvery and PollBackoffStep grow the interval linearly:
	// every PollBackoffEvery attempts without completion, the interval
	// increases by PollBackoffStep.
	PollBackoffEvery = 25
	PollBackoffStep  = 5 * time.Second
)

// PollOptions configures one polling loop.
type PollOptions[T any] struct {
	Interval    time.Duration // defaults to DefaultPollInterval
	MaxAttempts int           // defaults to DefaultPollAttempts
	OnChecked   func(status T) // side-channel progress callback
}

// PollUntilDone repeatedly invokes check until done reports a terminal
// status. Each iteration waits the current interval, probes the status,
// and tests the predicate. Cancellation is checked both before and
// after the probe, so a cancellation mid-check surfaces as ErrCancelled
// rather than a stale success. Exceeding MaxAttempts returns
// ErrPollTimeout, distinct from a remote-reported failure (which check
// surfaces as its own error).
func PollUntilDone[T any](ctx context.Context, check func(context.Context) (T, error), done func(T) bool, opts PollOptions[T]) (T, error) {
	var zero T

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollAttempts
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ErrCancelled
		case <-timer.C:
		}

		status, err := check(ctx)
		if ctx.Err() != nil {
			return zero, ErrCancelled
		}
		if err != nil {
			return zero, err
		}
		if opts.OnChecked != nil {
			opts.OnChecked(status)
		}
		if done(status) {
			return status, nil
		}

		if attempt%PollBackoffEvery == 0 {
			interval += PollBackoffStep
		}
		timer.Reset(interval)
	}

	return zero, ErrPollTimeout
}
