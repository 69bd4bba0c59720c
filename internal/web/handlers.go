package web

// handlers.go implements the job API: submit, list, status, SSE
// progress, cancel, result download, and history listing.

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/forceadmin/bulkops/internal/core"
)

// submitJobRequest is the JSON body for POST /api/jobs. Exactly one of
// the payload sections must match the kind.
type submitJobRequest struct {
	Kind     core.JobKind         `json:"kind"`
	Load     *bulkLoadRequest     `json:"load,omitempty"`
	Delete   *bulkDeleteRequest   `json:"delete,omitempty"`
	Download *bulkDownloadRequest `json:"download,omitempty"`
	Retrieve *retrieveRequest     `json:"retrieve,omitempty"`
}

type bulkLoadRequest struct {
	TargetObject string                     `json:"targetObject"`
	Operation    string                     `json:"operation"`
	Mode         string                     `json:"mode"`
	InsertNulls  bool                       `json:"insertNulls"`
	DateOrder    string                     `json:"dateOrder"`
	Rows         []core.Row                 `json:"rows"`
	Mapping      map[string]fieldMappingDTO `json:"mapping"`
}

type fieldMappingDTO struct {
	TargetField       string              `json:"targetField"`
	MappedToLookup    bool                `json:"mappedToLookup"`
	SelectedReference string              `json:"selectedReferenceTo"`
	RelationshipName  string              `json:"relationshipName"`
	TargetLookupField string              `json:"targetLookupField"`
	UseFirstMatch     string              `json:"lookupOptionUseFirstMatch"`
	NullIfNoMatch     bool                `json:"lookupOptionNullIfNoMatch"`
	Field             *fieldDescriptorDTO `json:"fieldMetadata,omitempty"`
}

type fieldDescriptorDTO struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	IsExternalID bool     `json:"isExternalId"`
	ReferenceTo  []string `json:"referenceTo"`
}

type bulkDeleteRequest struct {
	TargetObject string     `json:"targetObject"`
	IDs          []string   `json:"ids"`
	Records      []core.Row `json:"records"`
}

type bulkDownloadRequest struct {
	Title   string          `json:"title"`
	Format  string          `json:"format"`
	Fields  []string        `json:"fields"`
	Records []core.Row      `json:"records"`
	Locator string          `json:"locator"`
	Done    bool            `json:"done"`
	RawJSON json.RawMessage `json:"rawJson,omitempty"`
}

type retrieveRequest struct {
	Name         string             `json:"name"`
	Items        []core.PackageItem `json:"items"`
	Manifest     string             `json:"manifest"`
	PackageNames []string           `json:"packageNames"`
	APIVersion   string             `json:"apiVersion"`
}

// handleSubmitJob accepts a job descriptor and returns its id. The job
// runs asynchronously; clients follow up via status, events, or
// download.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("decode request: %w", err), http.StatusBadRequest)
		return
	}

	payload, err := req.payload()
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	jobID, err := s.dispatcher.Submit(r.Context(), req.Kind, payload)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case err == core.ErrUnknownJobKind:
			status = http.StatusBadRequest
		case err == core.ErrTooManyJobs || err == core.ErrJobQueueFull:
			status = http.StatusTooManyRequests
		}
		s.respondError(w, r, err, status)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

// payload maps the request body onto the core payload for its kind.
func (req submitJobRequest) payload() (any, error) {
	switch req.Kind {
	case core.JobBulkLoad:
		if req.Load == nil {
			return nil, fmt.Errorf("missing load payload")
		}
		return req.Load.toPayload(), nil
	case core.JobBulkDelete:
		if req.Delete == nil {
			return nil, fmt.Errorf("missing delete payload")
		}
		return core.BulkDeletePayload{
			TargetObject: req.Delete.TargetObject,
			IDs:          req.Delete.IDs,
			Records:      req.Delete.Records,
		}, nil
	case core.JobBulkDownload:
		if req.Download == nil {
			return nil, fmt.Errorf("missing download payload")
		}
		return core.BulkDownloadPayload{
			Title:   req.Download.Title,
			Format:  core.FileFormat(req.Download.Format),
			Fields:  req.Download.Fields,
			Records: req.Download.Records,
			Locator: req.Download.Locator,
			Done:    req.Download.Done,
			RawJSON: req.Download.RawJSON,
		}, nil
	case core.JobRetrievePackage:
		if req.Retrieve == nil {
			return nil, fmt.Errorf("missing retrieve payload")
		}
		return core.RetrievePackagePayload{
			Name:         req.Retrieve.Name,
			Items:        req.Retrieve.Items,
			Manifest:     req.Retrieve.Manifest,
			PackageNames: req.Retrieve.PackageNames,
			APIVersion:   req.Retrieve.APIVersion,
		}, nil
	default:
		return nil, fmt.Errorf("unknown job kind: %q", req.Kind)
	}
}

func (r *bulkLoadRequest) toPayload() core.BulkLoadPayload {
	mapping := make(core.LoadMapping, len(r.Mapping))
	for col, dto := range r.Mapping {
		fm := core.FieldMapping{
			TargetField:       dto.TargetField,
			MappedToLookup:    dto.MappedToLookup,
			SelectedReference: dto.SelectedReference,
			RelationshipName:  dto.RelationshipName,
			TargetLookupField: dto.TargetLookupField,
			UseFirstMatch:     core.LookupMatchPolicy(dto.UseFirstMatch),
			NullIfNoMatch:     dto.NullIfNoMatch,
		}
		if dto.Field != nil {
			fm.Field = &core.FieldDescriptor{
				Name:         dto.Field.Name,
				Type:         core.FieldType(dto.Field.Type),
				IsExternalID: dto.Field.IsExternalID,
				ReferenceTo:  dto.Field.ReferenceTo,
			}
		}
		mapping[col] = fm
	}

	mode := core.SubmissionMode(r.Mode)
	if mode == "" {
		mode = core.ModeCollections
	}

	return core.BulkLoadPayload{
		TargetObject: r.TargetObject,
		Operation:    r.Operation,
		Rows:         r.Rows,
		Mapping:      mapping,
		Mode:         mode,
		InsertNulls:  r.InsertNulls,
		DateOrder:    r.DateOrder,
	}
}

// handleListJobs returns progress snapshots of all tracked jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.dispatcher.List())
}

// handleJobStatus returns a job's current progress without blocking.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	progress, err := s.dispatcher.Status(jobID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

// handleJobEvents streams progress updates as server-sent events until
// the job completes or the client disconnects.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	progressCh, err := s.dispatcher.SubscribeProgress(jobID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, fmt.Errorf("streaming not supported"), http.StatusInternalServerError)
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed, job reached a terminal state
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()

		case <-r.Context().Done():
			// Client disconnected
			return
		}
	}
}

// handleJobDownload streams a completed job's file artifact. Blocks
// until the job completes.
func (s *Server) handleJobDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	result, err := s.dispatcher.Result(r.Context(), jobID)
	if err != nil {
		status := http.StatusInternalServerError
		if core.IsNotFound(err) {
			status = http.StatusNotFound
		}
		s.respondError(w, r, err, status)
		return
	}
	if result.Error != "" {
		s.respondError(w, r, fmt.Errorf("%s", result.Error), http.StatusUnprocessableEntity)
		return
	}
	if result.Output == nil || result.Output.File == nil {
		s.respondError(w, r, fmt.Errorf("job %s produced no file", jobID), http.StatusNotFound)
		return
	}

	file := result.Output.File
	w.Header().Set("Content-Type", file.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Bytes)))
	w.Write(file.Bytes)
}

// handleCancelJob aborts an in-flight job.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if err := s.dispatcher.Cancel(jobID); err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"jobId": jobID, "status": "cancelling"})
}

// handleHistory lists recorded job runs from the database.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, r, fmt.Errorf("job history is not configured"), http.StatusNotImplemented)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}
