// Package platform implements the remote CRM platform capabilities the
// pipeline consumes: SOQL queries with continuation, collection record
// writes, bulk-file job control, and metadata retrieval. The remote
// APIs are treated as black boxes; this package only shapes requests
// and decodes the documented response forms.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forceadmin/bulkops/internal/core"
)

// Config holds connection settings for one org.
type Config struct {
	BaseURL        string
	AccessToken    string
	APIVersion     string
	RequestTimeout time.Duration
}

// Client is a REST client for the platform APIs. It implements
// core.Querier, core.RecordWriter, core.BulkJobAPI, and
// core.MetadataAPI.
type Client struct {
	base    string
	token   string
	version string
	httpc   *http.Client
	logger  *slog.Logger
}

// New creates a platform client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid platform base URL %q", cfg.BaseURL)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:    strings.TrimRight(base.String(), "/"),
		token:   cfg.AccessToken,
		version: cfg.APIVersion,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// apiError is the platform's documented error body shape.
type apiError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

// do issues one request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("platform request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeAPIError extracts the platform's error array, falling back to
// the raw body when the shape is unexpected.
func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))

	var errs []apiError
	if err := json.Unmarshal(data, &errs); err == nil && len(errs) > 0 {
		return fmt.Errorf("%s: %s", errs[0].ErrorCode, errs[0].Message)
	}
	return fmt.Errorf("platform returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}

// queryResponse is the query API's documented response shape.
type queryResponse struct {
	TotalSize      int        `json:"totalSize"`
	Done           bool       `json:"done"`
	NextRecordsURL string     `json:"nextRecordsUrl"`
	Records        []core.Row `json:"records"`
}

func (r queryResponse) page() core.QueryPage {
	records := make([]core.Row, len(r.Records))
	for i, rec := range r.Records {
		// The query API decorates every record with an attributes
		// object; downstream consumers only want field values.
		clean := rec.Clone()
		delete(clean, "attributes")
		records[i] = clean
	}
	return core.QueryPage{
		Records: records,
		Locator: r.NextRecordsURL,
		Done:    r.Done,
	}
}

// Query runs a SOQL query and returns its first page.
func (c *Client) Query(ctx context.Context, soql string) (core.QueryPage, error) {
	path := fmt.Sprintf("/services/data/v%s/query?q=%s", c.version, url.QueryEscape(soql))
	var resp queryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return core.QueryPage{}, err
	}
	return resp.page(), nil
}

// QueryMore fetches the next page for a continuation locator.
func (c *Client) QueryMore(ctx context.Context, locator string) (core.QueryPage, error) {
	path := locator
	if !strings.HasPrefix(path, "/") {
		path = fmt.Sprintf("/services/data/v%s/query/%s", c.version, locator)
	}
	var resp queryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return core.QueryPage{}, err
	}
	return resp.page(), nil
}

// collectionRecord wraps a row with the type attribute the collection
// API requires.
type collectionRecord struct {
	Attributes map[string]string `json:"attributes"`
	core.Row
}

func (r collectionRecord) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Row)+1)
	for k, v := range r.Row {
		flat[k] = v
	}
	flat["attributes"] = r.Attributes
	return json.Marshal(flat)
}

// Write submits rows through the collection API. operation is insert,
// update, or upsert; all rows share one target object.
func (c *Client) Write(ctx context.Context, targetObject, operation string, rows []core.Row) ([]core.RecordResult, error) {
	records := make([]collectionRecord, len(rows))
	for i, row := range rows {
		records[i] = collectionRecord{
			Attributes: map[string]string{"type": targetObject},
			Row:        row,
		}
	}

	body := map[string]any{"allOrNone": false, "records": records}
	path := fmt.Sprintf("/services/data/v%s/composite/sobjects", c.version)
	method := http.MethodPost
	if operation == "update" {
		method = http.MethodPatch
	}

	var results []core.RecordResult
	if err := c.do(ctx, method, path, body, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Delete removes records by id through the collection API.
func (c *Client) Delete(ctx context.Context, targetObject string, ids []string) ([]core.RecordResult, error) {
	path := fmt.Sprintf("/services/data/v%s/composite/sobjects?ids=%s&allOrNone=false",
		c.version, url.QueryEscape(strings.Join(ids, ",")))

	var results []core.RecordResult
	if err := c.do(ctx, http.MethodDelete, path, nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// bulkJobResponse is the bulk API's job resource shape.
type bulkJobResponse struct {
	ID                     string `json:"id"`
	State                  string `json:"state"`
	NumberBatchesTotal     int    `json:"numberBatchesTotal"`
	NumberBatchesCompleted int    `json:"numberBatchesCompleted"`
	NumberBatchesFailed    int    `json:"numberBatchesFailed"`
	StateMessage           string `json:"stateMessage"`
}

// CreateJob opens a bulk-file job for one object and operation.
func (c *Client) CreateJob(ctx context.Context, targetObject, operation string) (string, error) {
	body := map[string]string{
		"object":      targetObject,
		"operation":   operation,
		"contentType": "CSV",
	}
	var resp bulkJobResponse
	path := fmt.Sprintf("/services/data/v%s/jobs/ingest", c.version)
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// AddBatch uploads one CSV batch to an open bulk job.
func (c *Client) AddBatch(ctx context.Context, jobID string, csvData []byte) (string, error) {
	path := fmt.Sprintf("%s/services/data/v%s/jobs/ingest/%s/batches", c.base, c.version, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, path, bytes.NewReader(csvData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "text/csv")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload batch: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("upload batch: platform returned %d", resp.StatusCode)
	}
	return jobID, nil
}

// CloseJob marks a bulk job's upload as complete so processing starts.
func (c *Client) CloseJob(ctx context.Context, jobID string) error {
	path := fmt.Sprintf("/services/data/v%s/jobs/ingest/%s", c.version, jobID)
	return c.do(ctx, http.MethodPatch, path, map[string]string{"state": "UploadComplete"}, nil)
}

// JobStatus fetches the current state of a bulk job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (core.BulkJobStatus, error) {
	path := fmt.Sprintf("/services/data/v%s/jobs/ingest/%s", c.version, jobID)
	var resp bulkJobResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return core.BulkJobStatus{}, err
	}
	return core.BulkJobStatus{
		State:            resp.State,
		BatchesTotal:     resp.NumberBatchesTotal,
		BatchesCompleted: resp.NumberBatchesCompleted,
		BatchesFailed:    resp.NumberBatchesFailed,
		StateMessage:     resp.StateMessage,
	}, nil
}

// batchResultRow is one line of a bulk job's per-record results.
type batchResultRow struct {
	ID      string `json:"sf__Id"`
	Success bool   `json:"sf__Success"`
	Error   string `json:"sf__Error"`
}

// BatchResults fetches the per-record outcomes of a completed batch.
func (c *Client) BatchResults(ctx context.Context, jobID, batchID string) ([]core.RecordResult, error) {
	path := fmt.Sprintf("/services/data/v%s/jobs/ingest/%s/successfulResults", c.version, jobID)
	_ = batchID // the ingest API keys results by job, not batch

	var rows []batchResultRow
	if err := c.do(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}

	results := make([]core.RecordResult, len(rows))
	for i, row := range rows {
		rr := core.RecordResult{Success: row.Success, ID: row.ID}
		if row.Error != "" {
			rr.Errors = []core.RecordError{{Message: row.Error}}
		}
		results[i] = rr
	}
	return results, nil
}

// retrieveResponse is the metadata retrieve resource shape.
type retrieveResponse struct {
	ID           string `json:"id"`
	Done         bool   `json:"done"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	ZipFile      string `json:"zipFile"`
}

// StartRetrieve initiates a metadata retrieval and returns its
// operation id.
func (c *Client) StartRetrieve(ctx context.Context, req core.RetrieveRequest) (string, error) {
	body := map[string]any{"apiVersion": req.APIVersion}
	switch {
	case len(req.Items) > 0:
		types := make([]map[string]any, len(req.Items))
		for i, item := range req.Items {
			types[i] = map[string]any{"name": item.Type, "members": item.Members}
		}
		body["unpackaged"] = map[string]any{"types": types}
	case req.Manifest != "":
		body["manifest"] = req.Manifest
	case len(req.PackageNames) > 0:
		body["packageNames"] = req.PackageNames
	default:
		return "", fmt.Errorf("retrieve request has no source")
	}

	path := fmt.Sprintf("/services/data/v%s/metadata/retrieve", c.version)
	var resp retrieveResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// RetrieveStatus fetches the current state of a metadata retrieval,
// including the base64 archive once done.
func (c *Client) RetrieveStatus(ctx context.Context, id string) (core.RetrieveStatus, error) {
	path := fmt.Sprintf("/services/data/v%s/metadata/retrieve/%s", c.version, id)
	var resp retrieveResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return core.RetrieveStatus{}, err
	}
	return core.RetrieveStatus{
		Done:         resp.Done,
		Status:       resp.Status,
		ErrorMessage: resp.ErrorMessage,
		ZipFile:      resp.ZipFile,
	}, nil
}
