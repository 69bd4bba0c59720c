package core

import (
	"errors"
	"fmt"
)

// ErrPollTimeout is returned when polling exceeds its attempt budget
// without the remote job reaching a terminal state. Distinct from a
// remote-reported failure.
var ErrPollTimeout = errors.New("polling exceeded maximum attempts")

// ErrCancelled is returned when the caller aborts a job mid-flight.
var ErrCancelled = errors.New("job cancelled")

// ErrUnknownJobKind is returned when no handler is registered for a
// submitted job kind.
var ErrUnknownJobKind = errors.New("unknown job kind")

// ErrJobQueueFull is returned when the executor's submission queue is
// full. Clients should retry after a short delay.
var ErrJobQueueFull = errors.New("job queue is full, please try again later")

// RowError records why a specific input row was excluded from a result
// set. Index is the row's position in the original input.
type RowError struct {
	Index  int      `json:"index"`
	Row    Row      `json:"row"`
	Errors []string `json:"errors"`
}

// ChunkError reports a failure in one sub-batch of a larger operation.
// Sibling chunks may have succeeded; callers surface the partial result
// alongside this error.
type ChunkError struct {
	Chunk int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.Chunk, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// payloadError marks a job payload as malformed: the job fails
// terminally without reaching the platform.
type payloadError struct {
	msg string
}

func (e *payloadError) Error() string { return e.msg }

func payloadErrorf(format string, args ...any) error {
	return &payloadError{msg: fmt.Sprintf(format, args...)}
}
