package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeWriter records delete calls and can fail a specific chunk.
type fakeWriter struct {
	writeCalls  [][]Row
	deleteCalls [][]string
	failOnCall  int // 1-based; 0 means never fail
	failPerID   map[string]bool
}

func (w *fakeWriter) Write(ctx context.Context, targetObject, operation string, rows []Row) ([]RecordResult, error) {
	w.writeCalls = append(w.writeCalls, rows)
	results := make([]RecordResult, len(rows))
	for i := range rows {
		results[i] = RecordResult{Success: true, ID: fmt.Sprintf("new-%d", i)}
	}
	return results, nil
}

func (w *fakeWriter) Delete(ctx context.Context, targetObject string, ids []string) ([]RecordResult, error) {
	w.deleteCalls = append(w.deleteCalls, append([]string(nil), ids...))
	if w.failOnCall > 0 && len(w.deleteCalls) == w.failOnCall {
		return nil, errors.New("UNABLE_TO_LOCK_ROW: lock contention")
	}

	results := make([]RecordResult, len(ids))
	for i, id := range ids {
		if w.failPerID[id] {
			results[i] = RecordResult{Success: false, Errors: []RecordError{{Message: "ENTITY_IS_DELETED"}}}
		} else {
			results[i] = RecordResult{Success: true, ID: id}
		}
	}
	return results, nil
}

func deleteHandlers(writer RecordWriter) *Handlers {
	return NewHandlers(nil, writer, nil, nil, BulkConfig{ChunkSize: 200})
}

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("003%06d", i)
	}
	return ids
}

// ----------------------------------------------------------------------------
// BulkDelete Tests
// ----------------------------------------------------------------------------

func TestBulkDeleteChunksSequentially(t *testing.T) {
	writer := &fakeWriter{}
	h := deleteHandlers(writer)

	ids := makeIDs(450)
	job := JobDescriptor{ID: "j1", Kind: JobBulkDelete, Payload: BulkDeletePayload{
		TargetObject: "Contact",
		IDs:          ids,
	}}

	var progress []int
	output, err := h.BulkDelete(context.Background(), job, func(pct int) {
		progress = append(progress, pct)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantSizes := []int{200, 200, 50}
	if len(writer.deleteCalls) != len(wantSizes) {
		t.Fatalf("got %d delete calls, want %d", len(writer.deleteCalls), len(wantSizes))
	}
	for i, want := range wantSizes {
		if len(writer.deleteCalls[i]) != want {
			t.Errorf("call %d deleted %d ids, want %d", i, len(writer.deleteCalls[i]), want)
		}
	}
	// Chunks preserve input order end to end.
	if writer.deleteCalls[0][0] != ids[0] || writer.deleteCalls[2][49] != ids[449] {
		t.Errorf("chunk contents out of order")
	}

	if len(output.Records) != 450 {
		t.Errorf("got %d record results, want 450", len(output.Records))
	}
	if output.Summary != "deleted 450 of 450 Contact records" {
		t.Errorf("summary = %q", output.Summary)
	}

	wantProgress := []int{33, 66, 100}
	if len(progress) != 3 {
		t.Fatalf("progress = %v, want 3 updates", progress)
	}
	for i, want := range wantProgress {
		if progress[i] != want {
			t.Errorf("progress[%d] = %d, want %d", i, progress[i], want)
		}
	}
}

func TestBulkDeleteChunkFailureAborts(t *testing.T) {
	writer := &fakeWriter{failOnCall: 2}
	h := deleteHandlers(writer)

	job := JobDescriptor{ID: "j1", Kind: JobBulkDelete, Payload: BulkDeletePayload{
		TargetObject: "Contact",
		IDs:          makeIDs(450),
	}}

	output, err := h.BulkDelete(context.Background(), job, nil)

	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("error = %v, want ChunkError", err)
	}
	if chunkErr.Chunk != 1 {
		t.Errorf("failing chunk = %d, want 1", chunkErr.Chunk)
	}

	// The third chunk must never be attempted.
	if len(writer.deleteCalls) != 2 {
		t.Errorf("got %d delete calls after failure, want 2", len(writer.deleteCalls))
	}
	// Partial output covers the chunk that succeeded.
	if output == nil || len(output.Records) != 200 {
		t.Errorf("partial output has %d records, want 200", len(output.Records))
	}
}

func TestBulkDeletePerRecordFailures(t *testing.T) {
	writer := &fakeWriter{failPerID: map[string]bool{"003000001": true}}
	h := deleteHandlers(writer)

	job := JobDescriptor{ID: "j1", Kind: JobBulkDelete, Payload: BulkDeletePayload{
		TargetObject: "Contact",
		IDs:          makeIDs(3),
	}}

	output, err := h.BulkDelete(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("per-record failures must not fail the job: %v", err)
	}
	if output.Summary != "deleted 2 of 3 Contact records" {
		t.Errorf("summary = %q", output.Summary)
	}
}

func TestBulkDeleteCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	writer := &fakeWriter{}
	h := deleteHandlers(writer)

	job := JobDescriptor{ID: "j1", Kind: JobBulkDelete, Payload: BulkDeletePayload{
		TargetObject: "Contact",
		IDs:          makeIDs(10),
	}}

	_, err := h.BulkDelete(ctx, job, nil)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("error = %v, want ErrCancelled", err)
	}
	if len(writer.deleteCalls) != 0 {
		t.Errorf("no chunk may be submitted after cancellation")
	}
}

func TestBulkDeleteRecordsCarryIDs(t *testing.T) {
	writer := &fakeWriter{}
	h := deleteHandlers(writer)

	job := JobDescriptor{ID: "j1", Kind: JobBulkDelete, Payload: BulkDeletePayload{
		TargetObject: "Contact",
		Records: []Row{
			{"Id": "003AAA", "Name": "A"},
			{"Id": "003BBB", "Name": "B"},
		},
	}}

	output, err := h.BulkDelete(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(output.Records) != 2 {
		t.Fatalf("got %d results, want 2", len(output.Records))
	}
	if writer.deleteCalls[0][0] != "003AAA" || writer.deleteCalls[0][1] != "003BBB" {
		t.Errorf("ids from records = %v", writer.deleteCalls[0])
	}
}

func TestBulkDeletePayloadValidation(t *testing.T) {
	h := deleteHandlers(&fakeWriter{})

	tests := []struct {
		name    string
		payload any
	}{
		{name: "wrong payload type", payload: "nope"},
		{name: "missing target object", payload: BulkDeletePayload{IDs: []string{"1"}}},
		{name: "no records", payload: BulkDeletePayload{TargetObject: "Contact"}},
		{name: "record without id", payload: BulkDeletePayload{TargetObject: "Contact", Records: []Row{{"Name": "x"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := JobDescriptor{ID: "j1", Kind: JobBulkDelete, Payload: tt.payload}
			if _, err := h.BulkDelete(context.Background(), job, nil); err == nil {
				t.Error("expected a payload error")
			}
		})
	}
}
