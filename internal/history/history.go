// Package history persists terminal job results to Postgres so
// operators can inspect past runs after the in-memory registry has
// evicted them. Recording is best-effort: the pipeline never fails a
// job over a history write.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forceadmin/bulkops/internal/core"
)

// Store records job runs in Postgres. Implements core.JobArchiver.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a history store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the history table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS job_history (
			id             UUID PRIMARY KEY,
			job_id         UUID NOT NULL,
			kind           TEXT NOT NULL,
			error          TEXT NOT NULL DEFAULT '',
			summary        TEXT NOT NULL DEFAULT '',
			records_total  INT NOT NULL DEFAULT 0,
			records_failed INT NOT NULL DEFAULT 0,
			row_errors     JSONB,
			created_at     TIMESTAMPTZ NOT NULL,
			completed_at   TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure job_history schema: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS job_history_completed_at_idx ON job_history (completed_at)`)
	if err != nil {
		return fmt.Errorf("ensure job_history index: %w", err)
	}
	return nil
}

// RecordJob inserts one terminal job result.
func (s *Store) RecordJob(ctx context.Context, job core.JobDescriptor, result core.JobResult) error {
	var total, failed int
	var rowErrors []byte
	if result.Output != nil {
		total = len(result.Output.Records)
		for _, r := range result.Output.Records {
			if !r.Success {
				failed++
			}
		}
		if len(result.Output.RowErrors) > 0 {
			data, err := json.Marshal(result.Output.RowErrors)
			if err != nil {
				return fmt.Errorf("encode row errors: %w", err)
			}
			rowErrors = data
		}
	}

	summary := ""
	if result.Output != nil {
		summary = result.Output.Summary
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_history
			(id, job_id, kind, error, summary, records_total, records_failed, row_errors, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		toUUID(uuid.New().String()), toUUID(job.ID), string(job.Kind),
		result.Error, summary, total, failed, rowErrors,
		toTimestamp(job.CreatedAt), toTimestamp(result.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job history: %w", err)
	}
	return nil
}

// Entry is one recorded job run.
type Entry struct {
	JobID         string    `json:"jobId"`
	Kind          string    `json:"kind"`
	Error         string    `json:"error,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	RecordsTotal  int       `json:"recordsTotal"`
	RecordsFailed int       `json:"recordsFailed"`
	CreatedAt     time.Time `json:"createdAt"`
	CompletedAt   time.Time `json:"completedAt"`
}

// List returns the most recent job runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, kind, error, summary, records_total, records_failed, created_at, completed_at
		FROM job_history
		ORDER BY completed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list job history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var jobID pgtype.UUID
		var createdAt, completedAt pgtype.Timestamptz
		if err := rows.Scan(&jobID, &e.Kind, &e.Error, &e.Summary,
			&e.RecordsTotal, &e.RecordsFailed, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan job history: %w", err)
		}
		e.JobID = uuid.UUID(jobID.Bytes).String()
		e.CreatedAt = createdAt.Time
		e.CompletedAt = completedAt.Time
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Purge deletes history rows completed before the retention window.
func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM job_history WHERE completed_at < $1`,
		toTimestamp(time.Now().Add(-olderThan)))
	if err != nil {
		return 0, fmt.Errorf("purge job history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func toUUID(s string) pgtype.UUID {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func toTimestamp(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
