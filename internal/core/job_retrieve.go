package core

// job_retrieve.go initiates a metadata package retrieval, polls the
// operation to completion, and decodes the resulting archive for
// download.

import (
	"context"
	"encoding/base64"
	"fmt"
)

// RetrievePackagePayload selects exactly one retrieval source: an
// explicit item list, a manifest document, or a set of named packages.
type RetrievePackagePayload struct {
	Name         string
	Items        []PackageItem
	Manifest     string
	PackageNames []string
	APIVersion   string
}

// sourceCount reports how many of the three retrieval sources are set.
func (p RetrievePackagePayload) sourceCount() int {
	n := 0
	if len(p.Items) > 0 {
		n++
	}
	if p.Manifest != "" {
		n++
	}
	if len(p.PackageNames) > 0 {
		n++
	}
	return n
}

// RetrievePackage starts a metadata retrieve, drives it to a terminal
// state via the poller, and decodes the base64 archive into the
// downloadable zip.
func (h *Handlers) RetrievePackage(ctx context.Context, job JobDescriptor, report ProgressFunc) (*JobOutput, error) {
	payload, ok := job.Payload.(RetrievePackagePayload)
	if !ok {
		return nil, payloadErrorf("invalid payload for %s job", job.Kind)
	}
	if payload.sourceCount() != 1 {
		return nil, payloadErrorf("retrieve payload must set exactly one of items, manifest, or package names")
	}

	opID, err := h.metadata.StartRetrieve(ctx, RetrieveRequest{
		Items:        payload.Items,
		Manifest:     payload.Manifest,
		PackageNames: payload.PackageNames,
		APIVersion:   payload.APIVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("start retrieve: %w", err)
	}

	checks := 0
	status, err := PollUntilDone(ctx,
		func(ctx context.Context) (RetrieveStatus, error) {
			return h.metadata.RetrieveStatus(ctx, opID)
		},
		func(s RetrieveStatus) bool { return s.Done },
		PollOptions[RetrieveStatus]{
			Interval:    h.cfg.PollInterval,
			MaxAttempts: h.cfg.PollAttempts,
			OnChecked: func(RetrieveStatus) {
				checks++
				if report != nil {
					report(estimatePollProgress(checks, h.cfg.PollAttempts))
				}
			},
		})
	if err != nil {
		return nil, err
	}
	if status.ErrorMessage != "" {
		return nil, fmt.Errorf("retrieve failed: %s", status.ErrorMessage)
	}

	archive, err := base64.StdEncoding.DecodeString(status.ZipFile)
	if err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}
	if report != nil {
		report(100)
	}

	name := payload.Name
	if name == "" {
		name = "package"
	}
	return &JobOutput{
		File: &FileOutput{
			Bytes:    archive,
			MIMEType: "application/zip",
			FileName: suggestedFileName(name, "zip"),
		},
		Summary: fmt.Sprintf("retrieved package archive (%d bytes)", len(archive)),
	}, nil
}

// estimatePollProgress maps check counts onto 0-99; completion reports
// the final 100.
func estimatePollProgress(checks, maxAttempts int) int {
	if maxAttempts <= 0 {
		return 0
	}
	pct := checks * 99 / maxAttempts
	if pct > 99 {
		pct = 99
	}
	return pct
}
