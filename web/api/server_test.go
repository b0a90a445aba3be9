package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/octapulse-dev/octapulse-core/internal/analyzer"
	"github.com/octapulse-dev/octapulse-core/internal/batch"
	"github.com/octapulse-dev/octapulse-core/internal/blobstore"
	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// stubAnalyzer returns a canned successful result per image, or a
// fixed error when fail is set.
type stubAnalyzer struct {
	fail  bool
	delay time.Duration
}

func (a *stubAnalyzer) Analyze(ctx context.Context, imageRef string, opts analyzer.Options) (*domain.AnalysisResult, error) {
	if a.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.delay):
		}
	}
	if a.fail {
		return nil, errors.New("no fish detected")
	}
	return &domain.AnalysisResult{
		AnalysisID: domain.NewAnalysisID(),
		ImagePath:  imageRef,
		Status:     domain.AnalysisCompleted,
		Measurements: []domain.Measurement{
			{Name: "total_length", DistanceInches: 12.5, Label: "Total Length: 12.50\"", Type: "length"},
		},
		Detections: []domain.Detection{
			{ClassName: "fish", Confidence: 0.91},
		},
		DetectionCounts: map[string]int{"fish": 1},
		Metadata: domain.ProcessingMetadata{
			ProcessingTimeSeconds: 0.01,
			ModelVersion:          domain.DefaultModelVersion,
			APIVersion:            domain.APIVersion,
			ProcessedAt:           time.Now().UTC(),
		},
	}, nil
}

func newTestServer(t *testing.T) (*Server, *blobstore.Store, *batch.Orchestrator) {
	t.Helper()
	store := blobstore.New()
	stub := &stubAnalyzer{}
	orch := batch.New(batch.NewRepository(), store, stub, batch.Options{Logger: slog.Default()})
	srv := NewServer(orch, store, stub, Options{Version: "test"})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.sseHub.Run(ctx)
	return srv, store, orch
}

func seedUploads(t *testing.T, store *blobstore.Store, n int) []string {
	t.Helper()
	refs := make([]string, n)
	for i := range refs {
		key := blobstore.UploadKey("seed", fmt.Sprintf("img-%d.jpg", i))
		store.Put(key, []byte{0xFF, 0xD8, byte(i)}, "image/jpeg", time.Minute)
		refs[i] = key
	}
	return refs
}

func doRequest(srv *Server, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func postJSON(srv *Server, path string, payload interface{}) *httptest.ResponseRecorder {
	body := &bytes.Buffer{}
	json.NewEncoder(body).Encode(payload)
	return doRequest(srv, http.MethodPost, path, body, "application/json")
}

// submitBatch drives the full submission endpoint and waits for the
// batch to finish.
func submitBatch(t *testing.T, srv *Server, orch *batch.Orchestrator, refs []string) domain.BatchReceipt {
	t.Helper()
	w := postJSON(srv, "/api/v1/analyze/batch", BatchRequest{Images: refs})
	if w.Code != http.StatusOK {
		t.Fatalf("create batch = %d, body %s", w.Code, w.Body.String())
	}
	var receipt domain.BatchReceipt
	if err := json.NewDecoder(w.Body).Decode(&receipt); err != nil {
		t.Fatalf("decoding receipt: %v", err)
	}
	orch.Wait()
	return receipt
}

func TestCreateBatch_JSON(t *testing.T) {
	srv, store, orch := newTestServer(t)
	refs := seedUploads(t, store, 2)

	receipt := submitBatch(t, srv, orch, refs)
	if receipt.BatchID == "" {
		t.Error("BatchID is empty")
	}
	if receipt.TotalImages != 2 {
		t.Errorf("TotalImages = %d, want 2", receipt.TotalImages)
	}
	if len(receipt.InvalidImages) != 0 {
		t.Errorf("InvalidImages = %v, want none", receipt.InvalidImages)
	}

	w := doRequest(srv, http.MethodGet, "/api/v1/analyze/batch/"+receipt.BatchID+"/status", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var progress domain.BatchProgress
	json.NewDecoder(w.Body).Decode(&progress)
	if progress.Status != domain.BatchCompleted {
		t.Errorf("Status = %s, want completed", progress.Status)
	}
	if progress.ProgressPercent != 100 {
		t.Errorf("ProgressPercent = %v, want 100", progress.ProgressPercent)
	}
}

func TestCreateBatch_InvalidJSON(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := doRequest(srv, http.MethodPost, "/api/v1/analyze/batch",
		bytes.NewBufferString("{not json"), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateBatch_ValidationErrors(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name   string
		images []string
	}{
		{"no images", []string{}},
		{"only unreadable references", []string{"mem://nowhere/a.jpg", "/does/not/exist.jpg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(srv, "/api/v1/analyze/batch", BatchRequest{Images: tt.images})
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestCreateBatch_Multipart(t *testing.T) {
	srv, store, orch := newTestServer(t)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, name := range []string{"one.jpg", "two.jpg"} {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte{0xFF, 0xD8, 0x01})
	}
	mw.WriteField("grid_square_size_inches", "0.5")
	mw.WriteField("include_color_analysis", "false")
	mw.Close()

	w := doRequest(srv, http.MethodPost, "/api/v1/analyze/batch", body, mw.FormDataContentType())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var receipt domain.BatchReceipt
	json.NewDecoder(w.Body).Decode(&receipt)
	if receipt.TotalImages != 2 {
		t.Errorf("TotalImages = %d, want 2", receipt.TotalImages)
	}

	orch.Wait()

	// uploads are released as each item finishes
	if n := store.Len(); n != 0 {
		t.Errorf("store holds %d objects after completion, want 0", n)
	}

	rw := doRequest(srv, http.MethodGet, "/api/v1/analyze/batch/"+receipt.BatchID+"/results", nil, "")
	if rw.Code != http.StatusOK {
		t.Fatalf("results = %d", rw.Code)
	}
	var result domain.BatchResult
	json.NewDecoder(rw.Body).Decode(&result)
	if result.CompletedImages != 2 || result.FailedImages != 0 {
		t.Errorf("completed/failed = %d/%d, want 2/0", result.CompletedImages, result.FailedImages)
	}
}

func TestCreateBatch_MultipartBadField(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, _ := mw.CreateFormFile("files", "one.jpg")
	fw.Write([]byte{0xFF, 0xD8})
	mw.WriteField("concurrency", "lots")
	mw.Close()

	w := doRequest(srv, http.MethodPost, "/api/v1/analyze/batch", body, mw.FormDataContentType())
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestBatchStatus_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := doRequest(srv, http.MethodGet, "/api/v1/analyze/batch/nope/status", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestBatchResults_ConflictWhileNotTerminal(t *testing.T) {
	srv, store, orch := newTestServer(t)
	refs := seedUploads(t, store, 1)

	receipt, err := orch.Create(refs, domain.DefaultBatchConfig())
	if err != nil {
		t.Fatal(err)
	}

	w := doRequest(srv, http.MethodGet, "/api/v1/analyze/batch/"+receipt.BatchID+"/results", nil, "")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestBatchResults_Paging(t *testing.T) {
	srv, store, orch := newTestServer(t)
	refs := seedUploads(t, store, 3)
	receipt := submitBatch(t, srv, orch, refs)

	w := doRequest(srv, http.MethodGet,
		"/api/v1/analyze/batch/"+receipt.BatchID+"/results?offset=1&limit=1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var result domain.BatchResult
	json.NewDecoder(w.Body).Decode(&result)
	if len(result.Results) != 1 {
		t.Fatalf("Results = %d entries, want 1", len(result.Results))
	}
	if result.Results[0].ImagePath != refs[1] {
		t.Errorf("paged result = %s, want %s", result.Results[0].ImagePath, refs[1])
	}
	// counts describe the whole batch, not the page
	if result.TotalImages != 3 || result.CompletedImages != 3 {
		t.Errorf("total/completed = %d/%d, want 3/3", result.TotalImages, result.CompletedImages)
	}

	bad := doRequest(srv, http.MethodGet,
		"/api/v1/analyze/batch/"+receipt.BatchID+"/results?offset=-1", nil, "")
	if bad.Code != http.StatusBadRequest {
		t.Errorf("negative offset status = %d, want 400", bad.Code)
	}
}

func TestCancelBatch(t *testing.T) {
	srv, store, orch := newTestServer(t)
	refs := seedUploads(t, store, 1)

	receipt, err := orch.Create(refs, domain.DefaultBatchConfig())
	if err != nil {
		t.Fatal(err)
	}

	w := doRequest(srv, http.MethodPost, "/api/v1/analyze/batch/"+receipt.BatchID+"/cancel", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("cancel = %d, body %s", w.Code, w.Body.String())
	}

	again := doRequest(srv, http.MethodPost, "/api/v1/analyze/batch/"+receipt.BatchID+"/cancel", nil, "")
	if again.Code != http.StatusConflict {
		t.Errorf("second cancel = %d, want 409", again.Code)
	}
}

func TestDeleteBatch(t *testing.T) {
	srv, store, orch := newTestServer(t)
	refs := seedUploads(t, store, 1)
	receipt := submitBatch(t, srv, orch, refs)

	w := doRequest(srv, http.MethodDelete, "/api/v1/analyze/batch/"+receipt.BatchID, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}

	status := doRequest(srv, http.MethodGet, "/api/v1/analyze/batch/"+receipt.BatchID+"/status", nil, "")
	if status.Code != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", status.Code)
	}
}

func TestDeleteBatch_ConflictWhileActive(t *testing.T) {
	srv, store, orch := newTestServer(t)
	refs := seedUploads(t, store, 1)

	receipt, err := orch.Create(refs, domain.DefaultBatchConfig())
	if err != nil {
		t.Fatal(err)
	}

	w := doRequest(srv, http.MethodDelete, "/api/v1/analyze/batch/"+receipt.BatchID, nil, "")
	if w.Code != http.StatusConflict {
		t.Errorf("delete pending batch = %d, want 409", w.Code)
	}
}

func TestListBatches(t *testing.T) {
	srv, store, orch := newTestServer(t)
	submitBatch(t, srv, orch, seedUploads(t, store, 1))
	refs := []string{blobstore.UploadKey("second", "a.jpg")}
	store.Put(refs[0], []byte{0xFF, 0xD8}, "image/jpeg", time.Minute)
	submitBatch(t, srv, orch, refs)

	w := doRequest(srv, http.MethodGet, "/api/v1/analyze/batches", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var batches []domain.BatchSummary
	json.NewDecoder(w.Body).Decode(&batches)
	if len(batches) != 2 {
		t.Errorf("batches = %d, want 2", len(batches))
	}
}

func TestPopulationStats(t *testing.T) {
	srv, store, orch := newTestServer(t)
	refs := seedUploads(t, store, 2)
	receipt := submitBatch(t, srv, orch, refs)

	w := doRequest(srv, http.MethodGet,
		"/api/v1/analyze/batch/"+receipt.BatchID+"/population-stats", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var stats domain.PopulationStatistics
	json.NewDecoder(w.Body).Decode(&stats)
	if stats.TotalFish != 2 {
		t.Errorf("TotalFish = %d, want 2", stats.TotalFish)
	}
	if len(stats.Distributions) == 0 {
		t.Error("Distributions is empty")
	}
}

func TestPopulationStats_ConflictWhileNotCompleted(t *testing.T) {
	srv, store, orch := newTestServer(t)
	refs := seedUploads(t, store, 1)

	receipt, err := orch.Create(refs, domain.DefaultBatchConfig())
	if err != nil {
		t.Fatal(err)
	}

	w := doRequest(srv, http.MethodGet,
		"/api/v1/analyze/batch/"+receipt.BatchID+"/population-stats", nil, "")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestAnalyzeImage_JSON(t *testing.T) {
	srv, store, _ := newTestServer(t)
	refs := seedUploads(t, store, 1)

	w := postJSON(srv, "/api/v1/analyze/image", ImageRequest{Image: refs[0]})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var res domain.AnalysisResult
	json.NewDecoder(w.Body).Decode(&res)
	if res.Status != domain.AnalysisCompleted {
		t.Errorf("Status = %s, want completed", res.Status)
	}
	if res.ImagePath != refs[0] {
		t.Errorf("ImagePath = %s, want %s", res.ImagePath, refs[0])
	}
}

func TestAnalyzeImage_FailureIsAResult(t *testing.T) {
	srv, store, _ := newTestServer(t)
	srv.analyzer = &stubAnalyzer{fail: true}
	refs := seedUploads(t, store, 1)

	w := postJSON(srv, "/api/v1/analyze/image", ImageRequest{Image: refs[0]})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var res domain.AnalysisResult
	json.NewDecoder(w.Body).Decode(&res)
	if res.Status != domain.AnalysisFailed {
		t.Errorf("Status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.ErrorMessage, "no fish detected") {
		t.Errorf("ErrorMessage = %q", res.ErrorMessage)
	}
}

func TestAnalyzeImage_MissingReference(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := postJSON(srv, "/api/v1/analyze/image", ImageRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAnalyzeImage_Multipart(t *testing.T) {
	srv, store, _ := newTestServer(t)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, _ := mw.CreateFormFile("files", "solo.jpg")
	fw.Write([]byte{0xFF, 0xD8, 0x07})
	mw.Close()

	w := doRequest(srv, http.MethodPost, "/api/v1/analyze/image", body, mw.FormDataContentType())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var res domain.AnalysisResult
	json.NewDecoder(w.Body).Decode(&res)
	if res.Status != domain.AnalysisCompleted {
		t.Errorf("Status = %s, want completed", res.Status)
	}

	// the ad-hoc upload is removed after analysis
	if n := store.Len(); n != 0 {
		t.Errorf("store holds %d objects, want 0", n)
	}
}

func TestArtifactHandler(t *testing.T) {
	srv, store, _ := newTestServer(t)
	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0xFF, 0xD9}
	store.Put(blobstore.ArtifactKey("an-1", "annotated"), payload, "image/jpeg", time.Minute)

	for _, path := range []string{
		"/api/v1/artifacts/an-1/annotated",
		"/api/v1/artifacts/an-1/annotated.jpg",
	} {
		w := doRequest(srv, http.MethodGet, path, nil, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s = %d, want 200", path, w.Code)
			continue
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("%s Content-Type = %s, want image/jpeg", path, ct)
		}
		if !bytes.Equal(w.Body.Bytes(), payload) {
			t.Errorf("%s returned wrong bytes", path)
		}
	}

	missing := doRequest(srv, http.MethodGet, "/api/v1/artifacts/an-1/grid_overlay", nil, "")
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing artifact = %d, want 404", missing.Code)
	}

	malformed := doRequest(srv, http.MethodGet, "/api/v1/artifacts/an-1", nil, "")
	if malformed.Code != http.StatusBadRequest {
		t.Errorf("malformed path = %d, want 400", malformed.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := doRequest(srv, http.MethodGet, "/api/v1/healthz", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]interface{}
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestVersion(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := doRequest(srv, http.MethodGet, "/api/v1/version", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["version"] != "test" {
		t.Errorf("version = %s, want test", body["version"])
	}
	if body["api_version"] != domain.APIVersion {
		t.Errorf("api_version = %s, want %s", body["api_version"], domain.APIVersion)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/analyze/batch"},
		{http.MethodPost, "/api/v1/analyze/batches"},
		{http.MethodPost, "/api/v1/analyze/batch/x/status"},
		{http.MethodGet, "/api/v1/analyze/batch/x/cancel"},
		{http.MethodPut, "/api/v1/healthz"},
	}
	for _, tt := range tests {
		w := doRequest(srv, tt.method, tt.path, nil, "")
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want 405", tt.method, tt.path, w.Code)
		}
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		kind domain.ErrorKind
		want int
	}{
		{domain.KindValidation, http.StatusBadRequest},
		{domain.KindNotFound, http.StatusNotFound},
		{domain.KindState, http.StatusConflict},
		{domain.KindAnalyzer, http.StatusInternalServerError},
		{domain.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := httpStatus(tt.kind); got != tt.want {
			t.Errorf("httpStatus(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}
