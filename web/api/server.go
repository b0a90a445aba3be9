// Package api exposes the analysis engine over HTTP: batch lifecycle
// endpoints, artifact serving, an SSE event stream, and a WebSocket
// progress feed.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/octapulse-dev/octapulse-core/internal/analyzer"
	"github.com/octapulse-dev/octapulse-core/internal/batch"
	"github.com/octapulse-dev/octapulse-core/internal/blobstore"
	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// DefaultUploadTTL bounds how long uploaded image bytes stay in the
// store when the server options leave it unset.
const DefaultUploadTTL = time.Hour

// Options tunes a Server.
type Options struct {
	// Addr is the listen address, host:port.
	Addr string

	// UploadTTL is applied to image bytes uploaded through the API.
	UploadTTL time.Duration

	// Version is reported by the version endpoint.
	Version string

	// Logger receives request and lifecycle logs.
	Logger *slog.Logger
}

// Server is the HTTP API server
type Server struct {
	orch     *batch.Orchestrator
	store    *blobstore.Store
	analyzer analyzer.Analyzer
	log      *slog.Logger

	addr      string
	uploadTTL time.Duration
	version   string
	startedAt time.Time

	mux    *http.ServeMux
	sseHub *SSEHub

	// batchCtx parents batch runner goroutines so they outlive the
	// HTTP request that submitted them
	batchCtx context.Context
}

// NewServer creates a new API server
func NewServer(orch *batch.Orchestrator, store *blobstore.Store, a analyzer.Analyzer, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	uploadTTL := opts.UploadTTL
	if uploadTTL <= 0 {
		uploadTTL = DefaultUploadTTL
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		orch:      orch,
		store:     store,
		analyzer:  a,
		log:       log.With("component", "api"),
		addr:      opts.Addr,
		uploadTTL: uploadTTL,
		version:   version,
		startedAt: time.Now(),
		mux:       http.NewServeMux(),
		sseHub:    NewSSEHub(),
		batchCtx:  context.Background(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/v1/analyze/batch", s.createBatchHandler())
	s.mux.HandleFunc("/api/v1/analyze/batch/", s.batchHandler())
	s.mux.HandleFunc("/api/v1/analyze/batches", s.listBatchesHandler())
	s.mux.HandleFunc("/api/v1/analyze/image", s.analyzeImageHandler())
	s.mux.HandleFunc("/api/v1/artifacts/", s.artifactHandler())
	s.mux.HandleFunc("/api/v1/healthz", s.healthzHandler())
	s.mux.HandleFunc("/api/v1/version", s.versionHandler())
	s.mux.HandleFunc("/api/v1/events", s.sseHandler())
	s.mux.HandleFunc("/api/v1/ws/batches/", s.wsProgressHandler())
}

// Handler returns the routed handler with request logging attached.
// Exposed for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// Run serves HTTP until ctx is cancelled, then drains in-flight
// requests and waits for running batches to finalize.
func (s *Server) Run(ctx context.Context) error {
	s.batchCtx = ctx
	go s.sseHub.Run(ctx)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("api listening", "addr", s.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutCtx)
		s.orch.Wait()
		if errors.Is(err, context.DeadlineExceeded) {
			s.log.Warn("shutdown deadline exceeded, connections dropped")
		}
		return err
	}
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

// BatchFinished publishes a terminal batch transition to stream
// clients. Wire it to the orchestrator's completion callback.
func (s *Server) BatchFinished(sum domain.BatchSummary) {
	s.Broadcast(SSEEvent{Type: "batch_finished", Data: sum})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// statusWriter records the response code and forwards the streaming
// interfaces the SSE and WebSocket handlers depend on.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacking not supported")
	}
	return hj.Hijack()
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// httpStatus maps domain error kinds onto HTTP status codes. This is
// the only place the core's error taxonomy meets the protocol.
func httpStatus(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, httpStatus(domain.KindOf(err)), err.Error())
}
