package core

// job_download.go pages a query result set to exhaustion and hands the
// accumulated records to the materializer. Pagination is inherently
// sequential: each page depends on the previous page's locator.

import (
	"context"
	"encoding/json"
	"fmt"
)

// BulkDownloadPayload carries the initial page of a query plus its
// continuation locator. Fields fixes column order for tabular formats.
type BulkDownloadPayload struct {
	Title   string
	Format  FileFormat
	Fields  []string
	Records []Row
	Locator string
	Done    bool
	// RawJSON, when set with FormatJSON, is emitted verbatim instead of
	// re-encoding the accumulated rows.
	RawJSON json.RawMessage
}

// BulkDownload fetches the remaining pages of the payload's result set
// and materializes the full record set into the requested format.
func (h *Handlers) BulkDownload(ctx context.Context, job JobDescriptor, report ProgressFunc) (*JobOutput, error) {
	payload, ok := job.Payload.(BulkDownloadPayload)
	if !ok {
		return nil, payloadErrorf("invalid payload for %s job", job.Kind)
	}

	rows := payload.Records
	locator := payload.Locator
	done := payload.Done || locator == ""

	pages := 0
	for !done {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}

		page, err := h.querier.QueryMore(ctx, locator)
		if err != nil {
			return nil, fmt.Errorf("fetch next page: %w", err)
		}
		rows = append(rows, page.Records...)
		locator = page.Locator
		done = page.Done || locator == ""
		pages++

		// Total size is unknown until the last page, so progress is an
		// estimate that only reaches 100 at the end.
		if report != nil {
			report(estimatePageProgress(pages, done))
		}
	}

	file, err := h.materializeDownload(payload, rows)
	if err != nil {
		return nil, err
	}
	if report != nil {
		report(100)
	}

	return &JobOutput{
		File:    file,
		Summary: fmt.Sprintf("downloaded %d records", len(rows)),
	}, nil
}

func (h *Handlers) materializeDownload(payload BulkDownloadPayload, rows []Row) (*FileOutput, error) {
	if payload.Format == FormatJSON && len(payload.RawJSON) > 0 {
		return &FileOutput{
			Bytes:    payload.RawJSON,
			MIMEType: mimeJSON,
			FileName: suggestedFileName(payload.Title, "json"),
		}, nil
	}
	return Materialize(rows, payload.Fields, payload.Format, payload.Title)
}

// estimatePageProgress maps an open-ended page count onto 0-99. Each
// fetched page advances the estimate, closing in on 95 without ever
// reaching it; 99 marks the terminal page and 100 is reserved for
// materialization.
func estimatePageProgress(pages int, done bool) int {
	if done {
		return 99
	}
	return 95 * pages / (pages + 5)
}
