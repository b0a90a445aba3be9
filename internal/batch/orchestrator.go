package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/octapulse-dev/octapulse-core/internal/analyzer"
	"github.com/octapulse-dev/octapulse-core/internal/blobstore"
	"github.com/octapulse-dev/octapulse-core/internal/domain"
	"github.com/octapulse-dev/octapulse-core/internal/popstats"
)

// DefaultMaxBatchSize caps images per submission unless overridden.
const DefaultMaxBatchSize = 100

// cancelledMessage is surfaced on batches stopped by the user.
const cancelledMessage = "Analysis cancelled by user"

// Options tunes an Orchestrator.
type Options struct {
	// MaxBatchSize caps the number of images per submission.
	MaxBatchSize int

	// Logger receives batch lifecycle events.
	Logger *slog.Logger
}

// Orchestrator owns the batch lifecycle from submission to deletion.
// It validates image references, fans tasks out to the analyzer under
// a per-batch concurrency bound, and serves status, progress, results,
// and population statistics.
type Orchestrator struct {
	repo     *Repository
	store    *blobstore.Store
	resolver *blobstore.Resolver
	analyzer analyzer.Analyzer
	log      *slog.Logger

	maxBatchSize int

	mu         sync.Mutex
	onFinished func(domain.BatchSummary)

	running sync.WaitGroup
}

// New creates an orchestrator backed by the given repository, blob
// store, and analyzer.
func New(repo *Repository, store *blobstore.Store, a analyzer.Analyzer, opts Options) *Orchestrator {
	maxSize := opts.MaxBatchSize
	if maxSize <= 0 {
		maxSize = DefaultMaxBatchSize
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		repo:         repo,
		store:        store,
		resolver:     blobstore.NewResolver(store),
		analyzer:     a,
		log:          log.With("component", "orchestrator"),
		maxBatchSize: maxSize,
	}
}

// SetOnFinished registers a callback invoked once per batch when it
// reaches a terminal state. The callback runs outside all locks.
func (o *Orchestrator) SetOnFinished(fn func(domain.BatchSummary)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onFinished = fn
}

func (o *Orchestrator) finishedCallback() func(domain.BatchSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.onFinished
}

// Create validates a submission and registers a new pending batch.
// Unreadable references are reported in the receipt rather than
// failing the call; only a submission with no usable image is rejected.
func (o *Orchestrator) Create(images []string, cfg domain.BatchConfig) (domain.BatchReceipt, error) {
	if len(images) == 0 {
		return domain.BatchReceipt{}, domain.NewValidationError("no images provided")
	}
	if len(images) > o.maxBatchSize {
		return domain.BatchReceipt{}, domain.NewValidationError(
			"batch size %d exceeds maximum of %d", len(images), o.maxBatchSize)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return domain.BatchReceipt{}, err
	}

	valid := make([]string, 0, len(images))
	invalid := []string{}
	for _, ref := range images {
		if o.resolver.IsValid(ref) {
			valid = append(valid, ref)
		} else {
			invalid = append(invalid, ref)
		}
	}
	if len(valid) == 0 {
		return domain.BatchReceipt{}, domain.NewValidationError("no valid images found in batch")
	}

	rec := newRecord(valid, invalid, cfg)
	o.repo.add(rec)
	o.log.Info("batch created",
		"batch_id", rec.id,
		"total", len(valid),
		"invalid", len(invalid))

	return domain.BatchReceipt{
		BatchID:       rec.id,
		Status:        domain.BatchPending,
		TotalImages:   len(valid),
		InvalidImages: invalid,
	}, nil
}

// Start begins processing a pending batch. It returns as soon as the
// runner goroutine is spawned; track completion via Status or Progress.
func (o *Orchestrator) Start(ctx context.Context, batchID string) error {
	rec, ok := o.repo.get(batchID)
	if !ok {
		return domain.NewNotFoundError("batch %s not found", batchID)
	}

	rec.mu.Lock()
	if rec.status != domain.BatchPending {
		status := rec.status
		rec.mu.Unlock()
		return domain.NewStateError("batch %s is already %s", batchID, status)
	}
	rec.status = domain.BatchProcessing
	rec.startedAt = time.Now()
	rec.mu.Unlock()

	o.running.Add(1)
	go o.run(ctx, rec)
	return nil
}

// CreateAndStart is the one-call submission used by the API and CLI.
func (o *Orchestrator) CreateAndStart(ctx context.Context, images []string, cfg domain.BatchConfig) (domain.BatchReceipt, error) {
	receipt, err := o.Create(images, cfg)
	if err != nil {
		return domain.BatchReceipt{}, err
	}
	if err := o.Start(ctx, receipt.BatchID); err != nil {
		return domain.BatchReceipt{}, err
	}
	return receipt, nil
}

// run fans the batch out to the analyzer, at most Concurrency images
// in flight, then finalizes.
func (o *Orchestrator) run(ctx context.Context, rec *record) {
	defer o.running.Done()
	defer o.finalize(rec)

	sem := semaphore.NewWeighted(int64(rec.config.Concurrency))
	var wg sync.WaitGroup
	for slot, ref := range rec.images {
		wg.Add(1)
		go func(slot int, ref string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return // process shutdown; the slot is compacted away
			}
			defer sem.Release(1)
			o.runTask(ctx, rec, rec.token, slot, ref)
		}(slot, ref)
	}
	wg.Wait()
}

// runTask analyzes one image and records the outcome. The token is
// consulted once before work starts: after cancellation queued tasks
// are skipped while in-flight ones run to completion.
func (o *Orchestrator) runTask(ctx context.Context, rec *record, token *cancelToken, slot int, ref string) {
	if token.isCancelled() {
		return
	}
	rec.setCurrentImage(ref)

	started := time.Now()
	res, err := o.analyze(ctx, ref, rec.config)
	if err != nil {
		o.log.Warn("image analysis failed",
			"batch_id", rec.id,
			"image", ref,
			"error", err)
		res = domain.NewFailedResult(ref, err.Error(), time.Since(started))
	}
	rec.recordResult(slot, res)

	// uploads are single-use; free them as soon as the item is done
	if blobstore.IsStoreRef(ref) {
		o.store.Delete(ref)
	}
}

// analyze invokes the analyzer with panic isolation so one bad image
// cannot take down the whole batch.
func (o *Orchestrator) analyze(ctx context.Context, ref string, cfg domain.BatchConfig) (res *domain.AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = domain.NewAnalyzerError(nil, "analyzer panic: %v", r)
		}
	}()

	res, err = o.analyzer.Analyze(ctx, ref, analyzer.Options{
		GridSizeInches:             cfg.GridSizeInches,
		IncludeVisualizations:      cfg.IncludeVisualizations,
		IncludeColorAnalysis:       cfg.IncludeColorAnalysis,
		IncludeLateralLineAnalysis: cfg.IncludeLateralLineAnalysis,
	})
	if err != nil {
		return nil, domain.NewAnalyzerError(err, "analysis failed")
	}
	if res == nil {
		return nil, domain.NewAnalyzerError(nil, "analyzer returned no result")
	}
	return res, nil
}

// finalize compacts result slots, stamps the terminal state, and fires
// the completion callback. A cancelled batch keeps its failure status
// and message; any other batch that reaches this point completed.
func (o *Orchestrator) finalize(rec *record) {
	defer func() {
		if r := recover(); r != nil {
			rec.mu.Lock()
			rec.status = domain.BatchFailed
			rec.message = fmt.Sprintf("internal error: %v", r)
			rec.mu.Unlock()
			o.log.Error("batch finalization failed", "batch_id", rec.id, "panic", r)
		}
	}()

	now := time.Now()
	rec.mu.Lock()
	rec.slots = rec.resultsLocked()
	rec.currentImage = ""
	rec.completedAt = &now
	rec.elapsed = now.Sub(rec.startedAt).Seconds()
	if rec.status == domain.BatchProcessing {
		rec.status = domain.BatchCompleted
	}
	summary := rec.summaryLocked()
	rec.mu.Unlock()

	o.log.Info("batch finished",
		"batch_id", summary.BatchID,
		"status", summary.Status,
		"completed", summary.CompletedImages,
		"failed", summary.FailedImages)

	if cb := o.finishedCallback(); cb != nil {
		cb(summary)
	}
}

// Status returns the summary view of one batch.
func (o *Orchestrator) Status(batchID string) (domain.BatchSummary, error) {
	rec, ok := o.repo.get(batchID)
	if !ok {
		return domain.BatchSummary{}, domain.NewNotFoundError("batch %s not found", batchID)
	}
	return rec.summary(), nil
}

// Progress returns the summary plus throughput estimates. Rates need
// at least one completed image; the completion estimate additionally
// requires that the batch is still processing.
func (o *Orchestrator) Progress(batchID string) (domain.BatchProgress, error) {
	rec, ok := o.repo.get(batchID)
	if !ok {
		return domain.BatchProgress{}, domain.NewNotFoundError("batch %s not found", batchID)
	}

	now := time.Now()
	rec.mu.Lock()
	defer rec.mu.Unlock()

	progress := domain.BatchProgress{
		BatchSummary: rec.summaryLocked(),
		CurrentImage: rec.currentImage,
	}
	if rec.completed == 0 {
		return progress, nil
	}

	elapsed := now.Sub(rec.startedAt)
	if rec.completedAt != nil {
		elapsed = rec.completedAt.Sub(rec.startedAt)
	}
	minutes := elapsed.Minutes()
	if minutes <= 0 {
		return progress, nil
	}

	rate := float64(rec.completed) / minutes
	avg := elapsed.Seconds() / float64(rec.completed)
	progress.ProcessingRate = &rate
	progress.AverageProcessingTime = &avg

	if rec.status == domain.BatchProcessing && rate > 0 {
		remaining := rec.total - rec.completed - rec.failed
		eta := now.Add(time.Duration(float64(remaining) / rate * float64(time.Minute)))
		progress.EstimatedCompletionTime = &eta
	}
	return progress, nil
}

// Cancel stops a pending or processing batch. Queued tasks are
// skipped; analyses already in flight finish and their results are
// still recorded.
func (o *Orchestrator) Cancel(batchID string) error {
	rec, ok := o.repo.get(batchID)
	if !ok {
		return domain.NewNotFoundError("batch %s not found", batchID)
	}

	rec.mu.Lock()
	if rec.status.IsTerminal() {
		status := rec.status
		rec.mu.Unlock()
		return domain.NewStateError("cannot cancel batch %s: already %s", batchID, status)
	}
	wasPending := rec.status == domain.BatchPending
	rec.status = domain.BatchFailed
	rec.message = cancelledMessage
	rec.token.cancel()
	if wasPending {
		// no runner will ever finalize this batch
		now := time.Now()
		rec.completedAt = &now
	}
	rec.mu.Unlock()

	o.log.Info("batch cancelled", "batch_id", batchID)
	return nil
}

// Results returns the per-image results of a finished batch in
// submission order.
func (o *Orchestrator) Results(batchID string) ([]*domain.AnalysisResult, error) {
	rec, ok := o.repo.get(batchID)
	if !ok {
		return nil, domain.NewNotFoundError("batch %s not found", batchID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.status.IsTerminal() {
		return nil, domain.NewStateError("batch %s is still %s", batchID, rec.status)
	}
	return rec.resultsLocked(), nil
}

// ResultSet bundles results with batch-level metadata for transport.
func (o *Orchestrator) ResultSet(batchID string) (domain.BatchResult, error) {
	rec, ok := o.repo.get(batchID)
	if !ok {
		return domain.BatchResult{}, domain.NewNotFoundError("batch %s not found", batchID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.status.IsTerminal() {
		return domain.BatchResult{}, domain.NewStateError("batch %s is still %s", batchID, rec.status)
	}

	processedAt := time.Now()
	if rec.completedAt != nil {
		processedAt = *rec.completedAt
	}
	return domain.BatchResult{
		BatchID:         rec.id,
		Status:          rec.status,
		TotalImages:     rec.total,
		CompletedImages: rec.completed,
		FailedImages:    rec.failed,
		InvalidImages:   rec.invalid,
		Results:         rec.resultsLocked(),
		Metadata: domain.ProcessingMetadata{
			ProcessingTimeSeconds: rec.elapsed,
			ModelVersion:          domain.DefaultModelVersion,
			APIVersion:            domain.APIVersion,
			ProcessedAt:           processedAt.UTC(),
		},
		ErrorMessage: rec.message,
	}, nil
}

// PopulationStats computes population statistics over the successful
// results of a completed batch.
func (o *Orchestrator) PopulationStats(batchID string) (*domain.PopulationStatistics, error) {
	rec, ok := o.repo.get(batchID)
	if !ok {
		return nil, domain.NewNotFoundError("batch %s not found", batchID)
	}

	rec.mu.Lock()
	if rec.status != domain.BatchCompleted {
		status := rec.status
		rec.mu.Unlock()
		return nil, domain.NewStateError(
			"population statistics need a completed batch, %s is %s", batchID, status)
	}
	results := rec.resultsLocked()
	rec.mu.Unlock()

	return popstats.Analyze(results)
}

// List returns summaries of all known batches, newest first.
func (o *Orchestrator) List() []domain.BatchSummary {
	recs := o.repo.all()
	out := make([]domain.BatchSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.summary())
	}
	return out
}

// Delete removes a finished batch and frees every store blob tied to
// it, leftover uploads and rendered artifacts both.
func (o *Orchestrator) Delete(batchID string) error {
	rec, ok := o.repo.get(batchID)
	if !ok {
		return domain.NewNotFoundError("batch %s not found", batchID)
	}

	rec.mu.Lock()
	if !rec.status.IsTerminal() {
		status := rec.status
		rec.mu.Unlock()
		return domain.NewStateError("cannot delete batch %s while %s", batchID, status)
	}
	results := rec.resultsLocked()
	rec.mu.Unlock()

	o.store.DeletePrefix(blobstore.BatchPrefix(batchID))
	for _, res := range results {
		o.store.DeletePrefix(blobstore.ArtifactPrefix(res.AnalysisID))
	}
	o.repo.remove(batchID)
	o.log.Info("batch deleted", "batch_id", batchID)
	return nil
}

// Wait blocks until every running batch has finalized. Used during
// shutdown and in tests.
func (o *Orchestrator) Wait() {
	o.running.Wait()
}
