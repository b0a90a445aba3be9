package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/octapulse-dev/octapulse-core/internal/analyzer"
	"github.com/octapulse-dev/octapulse-core/internal/blobstore"
	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// maxUploadBytes caps the in-memory size of one multipart submission
const maxUploadBytes = 100 << 20

// BatchRequest is the JSON body accepted by the batch submission
// endpoint. Boolean options are pointers so that omitted fields keep
// their defaults instead of collapsing to false.
type BatchRequest struct {
	Images                     []string `json:"images"`
	GridSizeInches             float64  `json:"grid_square_size_inches"`
	IncludeVisualizations      *bool    `json:"include_visualizations"`
	IncludeColorAnalysis       *bool    `json:"include_color_analysis"`
	IncludeLateralLineAnalysis *bool    `json:"include_lateral_line_analysis"`
	Concurrency                int      `json:"concurrency"`
}

// Config maps the request onto a batch configuration
func (r BatchRequest) Config() domain.BatchConfig {
	cfg := domain.DefaultBatchConfig()
	if r.GridSizeInches > 0 {
		cfg.GridSizeInches = r.GridSizeInches
	}
	if r.Concurrency > 0 {
		cfg.Concurrency = r.Concurrency
	}
	if r.IncludeVisualizations != nil {
		cfg.IncludeVisualizations = *r.IncludeVisualizations
	}
	if r.IncludeColorAnalysis != nil {
		cfg.IncludeColorAnalysis = *r.IncludeColorAnalysis
	}
	if r.IncludeLateralLineAnalysis != nil {
		cfg.IncludeLateralLineAnalysis = *r.IncludeLateralLineAnalysis
	}
	return cfg
}

// ImageRequest is the JSON body for single-image analysis
type ImageRequest struct {
	Image                      string   `json:"image"`
	GridSizeInches             float64  `json:"grid_square_size_inches"`
	IncludeVisualizations      *bool    `json:"include_visualizations"`
	IncludeColorAnalysis       *bool    `json:"include_color_analysis"`
	IncludeLateralLineAnalysis *bool    `json:"include_lateral_line_analysis"`
}

func analyzerOptions(cfg domain.BatchConfig) analyzer.Options {
	return analyzer.Options{
		GridSizeInches:             cfg.GridSizeInches,
		IncludeVisualizations:      cfg.IncludeVisualizations,
		IncludeColorAnalysis:       cfg.IncludeColorAnalysis,
		IncludeLateralLineAnalysis: cfg.IncludeLateralLineAnalysis,
	}
}

func (s *Server) createBatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var (
			images []string
			cfg    domain.BatchConfig
			err    error
		)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			images, cfg, err = s.parseMultipartBatch(r)
			if err != nil {
				writeDomainError(w, err)
				return
			}
		} else {
			var req BatchRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
				return
			}
			images = req.Images
			cfg = req.Config()
		}

		receipt, err := s.orch.CreateAndStart(s.batchCtx, images, cfg)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		s.Broadcast(SSEEvent{Type: "batch_created", Data: receipt})
		writeJSON(w, receipt)
	}
}

// parseMultipartBatch stores each uploaded file and returns the
// resulting store references plus any configuration carried in form
// fields.
func (s *Server) parseMultipartBatch(r *http.Request) ([]string, domain.BatchConfig, error) {
	cfg := domain.DefaultBatchConfig()
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, cfg, domain.NewValidationError("invalid multipart form: %v", err)
	}

	if v := r.FormValue("grid_square_size_inches"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, cfg, domain.NewValidationError("invalid grid_square_size_inches %q", v)
		}
		cfg.GridSizeInches = f
	}
	if v := r.FormValue("concurrency"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, cfg, domain.NewValidationError("invalid concurrency %q", v)
		}
		cfg.Concurrency = n
	}
	boolFields := []struct {
		name string
		dst  *bool
	}{
		{"include_visualizations", &cfg.IncludeVisualizations},
		{"include_color_analysis", &cfg.IncludeColorAnalysis},
		{"include_lateral_line_analysis", &cfg.IncludeLateralLineAnalysis},
	}
	for _, f := range boolFields {
		if v := r.FormValue(f.name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, cfg, domain.NewValidationError("invalid %s %q", f.name, v)
			}
			*f.dst = b
		}
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["images"]
	}
	group := uuid.NewString()
	refs := make([]string, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, cfg, domain.NewValidationError("opening upload %s: %v", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, cfg, domain.NewValidationError("reading upload %s: %v", fh.Filename, err)
		}
		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		key := blobstore.UploadKey(group, fh.Filename)
		s.store.Put(key, data, contentType, s.uploadTTL)
		refs = append(refs, key)
	}
	return refs, cfg, nil
}

// batchHandler dispatches /api/v1/analyze/batch/{id} and its
// sub-resources.
func (s *Server) batchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/analyze/batch/")
		rest = strings.TrimSuffix(rest, "/")
		if rest == "" {
			writeError(w, http.StatusBadRequest, "batch ID required")
			return
		}

		batchID, action, _ := strings.Cut(rest, "/")
		switch action {
		case "":
			if r.Method != http.MethodDelete {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			s.deleteBatch(w, batchID)
		case "status":
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			s.batchStatus(w, batchID)
		case "results":
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			s.batchResults(w, r, batchID)
		case "cancel":
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			s.cancelBatch(w, batchID)
		case "population-stats":
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			s.populationStats(w, batchID)
		default:
			writeError(w, http.StatusNotFound, "unknown batch resource "+action)
		}
	}
}

func (s *Server) batchStatus(w http.ResponseWriter, batchID string) {
	progress, err := s.orch.Progress(batchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, progress)
}

func (s *Server) batchResults(w http.ResponseWriter, r *http.Request, batchID string) {
	result, err := s.orch.ResultSet(batchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	offset, limit, err := pagingParams(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if offset > 0 || limit > 0 {
		result.Results = page(result.Results, offset, limit)
	}
	writeJSON(w, result)
}

func pagingParams(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, domain.NewValidationError("invalid offset %q", v)
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return 0, 0, domain.NewValidationError("invalid limit %q", v)
		}
	}
	return offset, limit, nil
}

func page(results []*domain.AnalysisResult, offset, limit int) []*domain.AnalysisResult {
	if offset >= len(results) {
		return []*domain.AnalysisResult{}
	}
	out := results[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func (s *Server) cancelBatch(w http.ResponseWriter, batchID string) {
	if err := s.orch.Cancel(batchID); err != nil {
		writeDomainError(w, err)
		return
	}
	sum, err := s.orch.Status(batchID)
	if err == nil {
		s.Broadcast(SSEEvent{Type: "batch_cancelled", Data: sum})
	}
	writeJSON(w, map[string]string{"batch_id": batchID, "status": "cancelled"})
}

func (s *Server) deleteBatch(w http.ResponseWriter, batchID string) {
	if err := s.orch.Delete(batchID); err != nil {
		writeDomainError(w, err)
		return
	}
	s.Broadcast(SSEEvent{Type: "batch_deleted", Data: map[string]string{"batch_id": batchID}})
	writeJSON(w, map[string]string{"batch_id": batchID, "status": "deleted"})
}

func (s *Server) populationStats(w http.ResponseWriter, batchID string) {
	stats, err := s.orch.PopulationStats(batchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) listBatchesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, s.orch.List())
	}
}

func (s *Server) analyzeImageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var (
			ref     string
			cfg     domain.BatchConfig
			cleanup func()
		)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			refs, parsedCfg, err := s.parseMultipartBatch(r)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			if len(refs) != 1 {
				writeError(w, http.StatusBadRequest, "exactly one image file required")
				return
			}
			ref, cfg = refs[0], parsedCfg
			cleanup = func() { s.store.Delete(ref) }
		} else {
			var req ImageRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
				return
			}
			if req.Image == "" {
				writeError(w, http.StatusBadRequest, "image reference required")
				return
			}
			ref = req.Image
			cfg = BatchRequest{
				GridSizeInches:             req.GridSizeInches,
				IncludeVisualizations:      req.IncludeVisualizations,
				IncludeColorAnalysis:       req.IncludeColorAnalysis,
				IncludeLateralLineAnalysis: req.IncludeLateralLineAnalysis,
			}.Config()
		}
		if cleanup != nil {
			defer cleanup()
		}

		started := time.Now()
		res, err := s.analyzer.Analyze(r.Context(), ref, analyzerOptions(cfg))
		if err != nil {
			// mirror batch semantics: a failed analysis is a result,
			// not a transport error
			res = domain.NewFailedResult(ref, err.Error(), time.Since(started))
		}
		writeJSON(w, res)
	}
}

func (s *Server) artifactHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/artifacts/")
		analysisID, kind, found := strings.Cut(rest, "/")
		if !found || analysisID == "" || kind == "" || strings.Contains(kind, "/") {
			writeError(w, http.StatusBadRequest, "artifact path must be {analysis_id}/{kind}")
			return
		}
		kind = strings.TrimSuffix(kind, ".jpg")

		data, contentType, ok := s.store.Get(blobstore.ArtifactKey(analysisID, kind))
		if !ok {
			writeError(w, http.StatusNotFound, "artifact not found or expired")
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}
}

func (s *Server) healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, map[string]interface{}{
			"status":         "ok",
			"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
			"store_objects":  s.store.Len(),
		})
	}
}

func (s *Server) versionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, map[string]string{
			"version":       s.version,
			"api_version":   domain.APIVersion,
			"model_version": domain.DefaultModelVersion,
		})
	}
}
