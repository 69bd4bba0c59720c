// Package core implements the asynchronous bulk-operation pipeline:
// transforming tabular input into API-ready records, resolving related
// record lookups, executing long-running jobs against the remote platform,
// and materializing results into downloadable files. This package has no
// HTTP dependencies and can be driven by any frontend.
package core

import (
	"context"
	"time"
)

// JobKind identifies the type of work a job performs.
type JobKind string

const (
	JobBulkLoad        JobKind = "bulk_load"
	JobBulkDelete      JobKind = "bulk_delete"
	JobBulkDownload    JobKind = "bulk_download"
	JobRetrievePackage JobKind = "retrieve_package"
)

// JobPhase indicates the current stage of a job's lifecycle.
type JobPhase string

const (
	PhaseReceived  JobPhase = "received"
	PhaseRunning   JobPhase = "running"
	PhaseSucceeded JobPhase = "succeeded"
	PhaseFailed    JobPhase = "failed"
	PhaseCancelled JobPhase = "cancelled"
)

// Terminal reports whether no further phase transition can occur.
func (p JobPhase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed || p == PhaseCancelled
}

// JobDescriptor describes one unit of submitted work.
// Immutable once dispatched; ID is unique for the session.
type JobDescriptor struct {
	ID        string
	Kind      JobKind
	Payload   any
	CreatedAt time.Time
}

// JobResult is the single terminal outcome of a job.
// Error is non-empty if the job failed; Output may still carry
// partial results (e.g. chunks deleted before a failing chunk).
type JobResult struct {
	JobID       string
	Kind        JobKind
	Output      *JobOutput
	Error       string
	CompletedAt time.Time
}

// JobOutput is what a handler produces.
type JobOutput struct {
	Records   []RecordResult
	RowErrors []RowError
	File      *FileOutput
	Summary   string
}

// FileOutput is a downloadable artifact produced by a job.
type FileOutput struct {
	Bytes    []byte
	MIMEType string
	FileName string
}

// JobProgress is a point-in-time snapshot of a running job.
type JobProgress struct {
	JobID   string
	Kind    JobKind
	Phase   JobPhase
	Percent int
	Message string
}

// ProgressFunc receives 0-100 progress updates from a running operation.
type ProgressFunc func(percent int)

// Row is a single record as column name -> scalar value.
// Values are strings, numbers, booleans, nil, or nested Rows
// (relationship references produced by the transformer).
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FieldType is the data type of a platform field, used for coercion.
type FieldType string

const (
	FieldText     FieldType = "string"
	FieldDate     FieldType = "date"
	FieldDateTime FieldType = "datetime"
	FieldNumeric  FieldType = "double"
	FieldInt      FieldType = "int"
	FieldBool     FieldType = "boolean"
)

// FieldDescriptor is the subset of a platform field's schema that the
// pipeline needs: type for coercion, external-id flag and reference
// targets for lookup handling.
type FieldDescriptor struct {
	Name         string
	Type         FieldType
	IsExternalID bool
	ReferenceTo  []string
}

// LookupMatchPolicy controls behavior when a lookup value matches more
// than one target record.
type LookupMatchPolicy string

const (
	MatchFirst           LookupMatchPolicy = "FIRST"
	MatchErrorIfMultiple LookupMatchPolicy = "ERROR_IF_MULTIPLE"
)

// FieldMapping maps one source column to a target field, including
// lookup resolution options. Built once per load session; read-only
// during transform and resolve.
type FieldMapping struct {
	TargetField       string
	MappedToLookup    bool
	SelectedReference string // chosen target type for polymorphic lookups
	RelationshipName  string
	TargetLookupField string
	UseFirstMatch     LookupMatchPolicy
	NullIfNoMatch     bool
	Field             *FieldDescriptor
}

// LoadMapping maps source column names to their field mappings.
type LoadMapping map[string]FieldMapping

// SubmissionMode selects the write path, which changes null semantics:
// bulk-file APIs clear a field only when a sentinel value is submitted,
// collection APIs only when an explicit null is submitted.
type SubmissionMode string

const (
	ModeBulkFile    SubmissionMode = "bulk"
	ModeCollections SubmissionMode = "collections"
)

// BulkNullSentinel is the documented bulk-file value that clears a field.
const BulkNullSentinel = "#N/A"

// FileFormat selects the materialized output shape.
type FileFormat string

const (
	FormatCSV  FileFormat = "csv"
	FormatXLSX FileFormat = "xlsx"
	FormatJSON FileFormat = "json"
)

// QueryPage is one page of query results from the platform.
type QueryPage struct {
	Records []Row
	Locator string
	Done    bool
}

// Querier runs SOQL-style queries against the platform.
type Querier interface {
	Query(ctx context.Context, soql string) (QueryPage, error)
	QueryMore(ctx context.Context, locator string) (QueryPage, error)
}

// RecordError is one reason a record write failed.
type RecordError struct {
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// RecordResult is the per-record outcome of a write or delete.
type RecordResult struct {
	Success bool          `json:"success"`
	ID      string        `json:"id,omitempty"`
	Errors  []RecordError `json:"errors,omitempty"`
}

// RecordWriter writes or deletes records through the collection API.
type RecordWriter interface {
	Write(ctx context.Context, targetObject, operation string, rows []Row) ([]RecordResult, error)
	Delete(ctx context.Context, targetObject string, ids []string) ([]RecordResult, error)
}

// BulkJobStatus is the platform-reported state of a bulk-file job.
type BulkJobStatus struct {
	State            string
	BatchesTotal     int
	BatchesCompleted int
	BatchesFailed    int
	StateMessage     string
}

// Done reports whether the job has reached a terminal platform state.
func (s BulkJobStatus) Done() bool {
	if s.State == "Closed" || s.State == "JobComplete" || s.State == "Failed" || s.State == "Aborted" {
		return true
	}
	return s.BatchesTotal > 0 && s.BatchesCompleted+s.BatchesFailed >= s.BatchesTotal
}

// BulkJobAPI drives bulk-file jobs on the platform.
type BulkJobAPI interface {
	CreateJob(ctx context.Context, targetObject, operation string) (string, error)
	AddBatch(ctx context.Context, jobID string, csvData []byte) (string, error)
	CloseJob(ctx context.Context, jobID string) error
	JobStatus(ctx context.Context, jobID string) (BulkJobStatus, error)
	BatchResults(ctx context.Context, jobID, batchID string) ([]RecordResult, error)
}

// PackageItem names metadata components of one type for retrieval.
type PackageItem struct {
	Type    string
	Members []string
}

// RetrieveRequest starts a metadata retrieval. Exactly one of Items,
// Manifest, or PackageNames must be set.
type RetrieveRequest struct {
	Items        []PackageItem
	Manifest     string
	PackageNames []string
	APIVersion   string
}

// RetrieveStatus is the platform-reported state of a metadata retrieval.
type RetrieveStatus struct {
	Done         bool
	Status       string
	ErrorMessage string
	ZipFile      string // base64-encoded archive, present when Done
}

// MetadataAPI drives metadata retrieve operations on the platform.
type MetadataAPI interface {
	StartRetrieve(ctx context.Context, req RetrieveRequest) (string, error)
	RetrieveStatus(ctx context.Context, id string) (RetrieveStatus, error)
}

// JobArchiver records terminal job results for later inspection.
type JobArchiver interface {
	RecordJob(ctx context.Context, job JobDescriptor, result JobResult) error
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}
