package core

// job_delete.go deletes records in fixed-size chunks through a strictly
// serialized submission loop. The remote API rejects concurrent
// modifications of the same object, so chunk-level parallelism is
// intentionally disallowed here.

import (
	"context"
	"fmt"
)

// BulkDeletePayload identifies the records to delete. Records may be
// given as raw rows carrying an Id column, or directly as IDs; all must
// share one target object.
type BulkDeletePayload struct {
	TargetObject string
	IDs          []string
	Records      []Row
}

// recordIDs computes the final identifier list from the payload.
func (p BulkDeletePayload) recordIDs() ([]string, error) {
	ids := append([]string(nil), p.IDs...)
	for _, rec := range p.Records {
		id := scalarKey(rec["Id"])
		if id == "" {
			return nil, payloadErrorf("record without Id in delete payload")
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, payloadErrorf("delete payload contains no records")
	}
	return ids, nil
}

// BulkDelete splits the payload's identifiers into chunks and submits
// them one at a time. A chunk failure aborts the remaining chunks and
// surfaces the partial result plus the causing error.
func (h *Handlers) BulkDelete(ctx context.Context, job JobDescriptor, report ProgressFunc) (*JobOutput, error) {
	payload, ok := job.Payload.(BulkDeletePayload)
	if !ok {
		return nil, payloadErrorf("invalid payload for %s job", job.Kind)
	}
	if payload.TargetObject == "" {
		return nil, payloadErrorf("delete payload missing target object")
	}

	ids, err := payload.recordIDs()
	if err != nil {
		return nil, err
	}

	output := &JobOutput{}
	chunks := chunkStrings(ids, h.cfg.ChunkSize)

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			return output, ErrCancelled
		}

		results, err := h.writer.Delete(ctx, payload.TargetObject, chunk)
		if err != nil {
			return output, &ChunkError{Chunk: i, Err: err}
		}
		output.Records = append(output.Records, results...)

		if report != nil {
			report((i + 1) * 100 / len(chunks))
		}
	}

	succeeded := 0
	for _, r := range output.Records {
		if r.Success {
			succeeded++
		}
	}
	output.Summary = fmt.Sprintf("deleted %d of %d %s records", succeeded, len(ids), payload.TargetObject)

	return output, nil
}
