// Package client is the HTTP client for the analysis API, shared by
// the CLI commands and the TUI monitor.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

const basePath = "/api/v1"

// APIError carries the HTTP status and server-reported message of a
// failed request.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// Client talks to one analysis server
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL, e.g.
// "http://127.0.0.1:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// batchSubmission mirrors the JSON body of the batch endpoint
type batchSubmission struct {
	Images []string `json:"images"`
	domain.BatchConfig
}

// CreateBatch submits image references for batch analysis
func (c *Client) CreateBatch(ctx context.Context, images []string, cfg domain.BatchConfig) (domain.BatchReceipt, error) {
	var receipt domain.BatchReceipt
	err := c.do(ctx, http.MethodPost, "/analyze/batch", batchSubmission{Images: images, BatchConfig: cfg}, &receipt)
	return receipt, err
}

// Status returns the progress view of one batch
func (c *Client) Status(ctx context.Context, batchID string) (domain.BatchProgress, error) {
	var progress domain.BatchProgress
	err := c.do(ctx, http.MethodGet, "/analyze/batch/"+batchID+"/status", nil, &progress)
	return progress, err
}

// Results returns the full result set of a finished batch
func (c *Client) Results(ctx context.Context, batchID string) (domain.BatchResult, error) {
	var result domain.BatchResult
	err := c.do(ctx, http.MethodGet, "/analyze/batch/"+batchID+"/results", nil, &result)
	return result, err
}

// Cancel stops an active batch
func (c *Client) Cancel(ctx context.Context, batchID string) error {
	return c.do(ctx, http.MethodPost, "/analyze/batch/"+batchID+"/cancel", nil, nil)
}

// Delete removes a finished batch and its stored blobs
func (c *Client) Delete(ctx context.Context, batchID string) error {
	return c.do(ctx, http.MethodDelete, "/analyze/batch/"+batchID, nil, nil)
}

// List returns summaries of all batches, newest first
func (c *Client) List(ctx context.Context) ([]domain.BatchSummary, error) {
	var batches []domain.BatchSummary
	err := c.do(ctx, http.MethodGet, "/analyze/batches", nil, &batches)
	return batches, err
}

// PopulationStats returns the aggregate statistics of a completed batch
func (c *Client) PopulationStats(ctx context.Context, batchID string) (*domain.PopulationStatistics, error) {
	var stats domain.PopulationStatistics
	if err := c.do(ctx, http.MethodGet, "/analyze/batch/"+batchID+"/population-stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// imageSubmission mirrors the JSON body of the single-image endpoint
type imageSubmission struct {
	Image string `json:"image"`
	domain.BatchConfig
}

// AnalyzeImage analyzes one image reference the server can already
// resolve (a local path or an existing store key).
func (c *Client) AnalyzeImage(ctx context.Context, ref string, cfg domain.BatchConfig) (*domain.AnalysisResult, error) {
	var res domain.AnalysisResult
	if err := c.do(ctx, http.MethodPost, "/analyze/image", imageSubmission{Image: ref, BatchConfig: cfg}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UploadAndAnalyze uploads a local file and analyzes it in one call
func (c *Client) UploadAndAnalyze(ctx context.Context, path string, cfg domain.BatchConfig) (*domain.AnalysisResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	mw.WriteField("grid_square_size_inches", fmt.Sprintf("%g", cfg.GridSizeInches))
	mw.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+basePath+"/analyze/image", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res domain.AnalysisResult
	if err := c.send(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Health reports server liveness and store occupancy
type Health struct {
	Status        string `json:"status"`
	UptimeSeconds int    `json:"uptime_seconds"`
	StoreObjects  int    `json:"store_objects"`
}

// Healthz fetches the health endpoint
func (c *Client) Healthz(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &h)
	return h, err
}

// VersionInfo reports server build and protocol versions
type VersionInfo struct {
	Version      string `json:"version"`
	APIVersion   string `json:"api_version"`
	ModelVersion string `json:"model_version"`
}

// Version fetches the version endpoint
func (c *Client) Version(ctx context.Context) (VersionInfo, error) {
	var v VersionInfo
	err := c.do(ctx, http.MethodGet, "/version", nil, &v)
	return v, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+basePath+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return &APIError{Status: resp.StatusCode, Message: resp.Status}
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
