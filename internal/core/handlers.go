package core

import "time"

// BulkConfig carries the remote API limits the pipeline must respect.
// The values are tied to the platform's documented limits, so they are
// configuration rather than literals baked into the algorithms.
type BulkConfig struct {
	ChunkSize    int           // max records per collection write/delete
	QueryBudget  int           // max characters per composed lookup query
	PollInterval time.Duration // initial status poll interval
	PollAttempts int           // polling attempt budget
}

// withDefaults fills zero fields from package defaults.
func (c BulkConfig) withDefaults() BulkConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.QueryBudget <= 0 {
		c.QueryBudget = DefaultQueryBudget
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = DefaultPollAttempts
	}
	return c
}

// Handlers holds the platform capabilities the job handlers run
// against. One instance is shared by all executors; handlers keep no
// per-job state of their own.
type Handlers struct {
	querier  Querier
	writer   RecordWriter
	bulkJobs BulkJobAPI
	metadata MetadataAPI
	cfg      BulkConfig
}

// NewHandlers wires the job handlers to their platform capabilities.
func NewHandlers(querier Querier, writer RecordWriter, bulkJobs BulkJobAPI, metadata MetadataAPI, cfg BulkConfig) *Handlers {
	return &Handlers{
		querier:  querier,
		writer:   writer,
		bulkJobs: bulkJobs,
		metadata: metadata,
		cfg:      cfg.withDefaults(),
	}
}

// Executor categories. Record jobs and metadata jobs run in separate
// executors so a long metadata retrieve never delays record work.
const (
	CategoryData     = "data"
	CategoryMetadata = "metadata"
)

// RegisterAll registers every job kind with its handler and category.
func (h *Handlers) RegisterAll() {
	Register(JobDefinition{Kind: JobBulkLoad, Category: CategoryData, Handler: h.BulkLoad})
	Register(JobDefinition{Kind: JobBulkDelete, Category: CategoryData, Handler: h.BulkDelete})
	Register(JobDefinition{Kind: JobBulkDownload, Category: CategoryData, Handler: h.BulkDownload})
	Register(JobDefinition{Kind: JobRetrievePackage, Category: CategoryMetadata, Handler: h.RetrievePackage})
}
