// Package batch implements the image batch lifecycle: submission,
// bounded fan-out over the analyzer, progress tracking, cooperative
// cancellation, and retention of finished batches.
package batch

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// cancelToken tells queued tasks to skip before they start work.
// Tasks already inside the analyzer run to completion.
type cancelToken struct {
	mu        sync.Mutex
	cancelled bool
}

func (t *cancelToken) cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

func (t *cancelToken) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// record is the mutable state of one batch. mu guards every field
// except id, config, images, invalid, and createdAt, which are fixed at
// construction. The repository lock only covers its map.
type record struct {
	mu sync.Mutex

	id        string
	config    domain.BatchConfig
	images    []string // valid references, one per slot
	invalid   []string
	createdAt time.Time

	status domain.BatchStatus
	total  int
	slots  []*domain.AnalysisResult // indexed by submission order until finalize compacts

	completed int
	failed    int

	currentImage string
	message      string
	token        *cancelToken

	startedAt   time.Time
	completedAt *time.Time
	elapsed     float64 // seconds, frozen at finalize
}

func newRecord(valid, invalid []string, cfg domain.BatchConfig) *record {
	now := time.Now()
	return &record{
		id:        domain.NewBatchID(),
		config:    cfg,
		images:    valid,
		invalid:   invalid,
		createdAt: now,
		status:    domain.BatchPending,
		total:     len(valid),
		slots:     make([]*domain.AnalysisResult, len(valid)),
		token:     &cancelToken{},
		startedAt: now,
	}
}

func (r *record) setCurrentImage(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentImage = ref
}

// recordResult stores one task outcome and bumps the matching counter.
func (r *record) recordResult(slot int, res *domain.AnalysisResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[slot] = res
	if res.Status == domain.AnalysisCompleted {
		r.completed++
	} else {
		r.failed++
	}
}

// summaryLocked builds the status view. Callers hold mu.
func (r *record) summaryLocked() domain.BatchSummary {
	var pct float64
	if r.total > 0 {
		pct = round1(float64(r.completed) / float64(r.total) * 100)
	}
	return domain.BatchSummary{
		BatchID:         r.id,
		Status:          r.status,
		TotalImages:     r.total,
		CompletedImages: r.completed,
		FailedImages:    r.failed,
		ProgressPercent: pct,
		Message:         r.message,
		StartedAt:       r.startedAt,
		CompletedAt:     r.completedAt,
	}
}

func (r *record) summary() domain.BatchSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaryLocked()
}

// resultsLocked returns recorded results in submission order, skipping
// slots whose tasks never ran. Callers hold mu.
func (r *record) resultsLocked() []*domain.AnalysisResult {
	out := make([]*domain.AnalysisResult, 0, len(r.slots))
	for _, res := range r.slots {
		if res != nil {
			out = append(out, res)
		}
	}
	return out
}

// Repository is the in-memory registry of batches. State lives for the
// process lifetime only; restarts start empty.
type Repository struct {
	mu      sync.RWMutex
	batches map[string]*record
}

// NewRepository creates an empty batch registry.
func NewRepository() *Repository {
	return &Repository{batches: make(map[string]*record)}
}

func (r *Repository) add(rec *record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[rec.id] = rec
}

func (r *Repository) get(id string) (*record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.batches[id]
	return rec, ok
}

func (r *Repository) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.batches, id)
}

// all returns every record, newest submission first.
func (r *Repository) all() []*record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*record, 0, len(r.batches))
	for _, rec := range r.batches {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].createdAt.After(out[j].createdAt)
	})
	return out
}

// Count returns the number of tracked batches.
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.batches)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
