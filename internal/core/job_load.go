package core

// job_load.go is the record load pipeline: transform raw rows into
// wire shape, resolve non-external-id lookups, then submit through
// either the collection API (chunked, serialized) or the bulk-file API
// (CSV batch plus status polling).

import (
	"context"
	"fmt"
)

// BulkLoadPayload carries one load session: raw rows, the column
// mapping built from the target schema, and submission options.
type BulkLoadPayload struct {
	TargetObject string
	Operation    string // insert, update, upsert, delete
	Rows         []Row
	Mapping      LoadMapping
	Mode         SubmissionMode
	InsertNulls  bool
	DateOrder    string
}

// Progress is split across the load stages: resolution dominates
// because it is the only stage issuing per-chunk queries.
const (
	loadResolveShare = 50
	loadSubmitShare  = 50
)

// BulkLoad transforms, resolves, and submits one batch of records.
// Row-level failures never abort the batch; they are reported in the
// output's RowErrors with the row's original position.
func (h *Handlers) BulkLoad(ctx context.Context, job JobDescriptor, report ProgressFunc) (*JobOutput, error) {
	payload, ok := job.Payload.(BulkLoadPayload)
	if !ok {
		return nil, payloadErrorf("invalid payload for %s job", job.Kind)
	}
	if payload.TargetObject == "" || payload.Operation == "" {
		return nil, payloadErrorf("load payload missing target object or operation")
	}
	if len(payload.Rows) == 0 {
		return nil, payloadErrorf("load payload contains no rows")
	}

	opts := TransformOptions{
		Mode:        payload.Mode,
		InsertNulls: payload.InsertNulls,
		DateOrder:   payload.DateOrder,
	}

	// Resolution runs on the raw rows, where lookup values still sit
	// under their source column names. The resolver rewrites each
	// matched column to its target field, and the transformer reads
	// those fields back out untouched.
	resolver := NewResolver(h.querier, h.cfg.QueryBudget)
	resolved := resolver.Resolve(ctx, payload.Rows, payload.Mapping, payload.TargetObject, opts, func(pct int) {
		if report != nil {
			report(pct * loadResolveShare / 100)
		}
	})
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	transformed := TransformRows(resolved.Rows, payload.Mapping, payload.TargetObject, opts)

	output := &JobOutput{RowErrors: resolved.RowErrors}

	var err error
	switch payload.Mode {
	case ModeBulkFile:
		err = h.submitBulkFile(ctx, payload, transformed, output, report)
	default:
		err = h.submitCollections(ctx, payload, transformed, output, report)
	}
	if err != nil {
		return output, err
	}

	succeeded := 0
	for _, r := range output.Records {
		if r.Success {
			succeeded++
		}
	}
	output.Summary = fmt.Sprintf("%s %s: %d succeeded, %d failed, %d rows excluded before submit",
		payload.Operation, payload.TargetObject, succeeded, len(output.Records)-succeeded, len(resolved.RowErrors))
	for _, qe := range resolved.QueryErrors {
		output.Summary += "; " + qe
	}

	if report != nil {
		report(100)
	}
	return output, nil
}

// submitCollections writes rows through the collection API in
// fixed-size chunks, strictly one chunk at a time.
func (h *Handlers) submitCollections(ctx context.Context, payload BulkLoadPayload, rows []Row, output *JobOutput, report ProgressFunc) error {
	chunks := chunkRows(rows, h.cfg.ChunkSize)
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		results, err := h.writer.Write(ctx, payload.TargetObject, payload.Operation, chunk)
		if err != nil {
			return &ChunkError{Chunk: i, Err: err}
		}
		output.Records = append(output.Records, results...)
		if report != nil {
			report(loadResolveShare + (i+1)*loadSubmitShare/len(chunks))
		}
	}
	return nil
}

// submitBulkFile renders rows to CSV, submits them as one bulk batch,
// and polls the job to a terminal state.
func (h *Handlers) submitBulkFile(ctx context.Context, payload BulkLoadPayload, rows []Row, output *JobOutput, report ProgressFunc) error {
	if len(rows) == 0 {
		return nil
	}

	csvData := writeCSV(rows, nil)

	jobID, err := h.bulkJobs.CreateJob(ctx, payload.TargetObject, payload.Operation)
	if err != nil {
		return fmt.Errorf("create bulk job: %w", err)
	}
	batchID, err := h.bulkJobs.AddBatch(ctx, jobID, csvData)
	if err != nil {
		return fmt.Errorf("add batch: %w", err)
	}
	if err := h.bulkJobs.CloseJob(ctx, jobID); err != nil {
		return fmt.Errorf("close bulk job: %w", err)
	}

	status, err := PollUntilDone(ctx,
		func(ctx context.Context) (BulkJobStatus, error) {
			return h.bulkJobs.JobStatus(ctx, jobID)
		},
		BulkJobStatus.Done,
		PollOptions[BulkJobStatus]{
			Interval:    h.cfg.PollInterval,
			MaxAttempts: h.cfg.PollAttempts,
			OnChecked: func(s BulkJobStatus) {
				if report != nil && s.BatchesTotal > 0 {
					done := s.BatchesCompleted + s.BatchesFailed
					report(loadResolveShare + done*loadSubmitShare/s.BatchesTotal)
				}
			},
		})
	if err != nil {
		return err
	}
	if status.State == "Failed" || status.State == "Aborted" {
		return fmt.Errorf("bulk job %s: %s", status.State, status.StateMessage)
	}

	results, err := h.bulkJobs.BatchResults(ctx, jobID, batchID)
	if err != nil {
		return fmt.Errorf("fetch batch results: %w", err)
	}
	output.Records = append(output.Records, results...)
	return nil
}
