package batch

import (
	"testing"
	"time"

	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

func TestRecord_RecordResult(t *testing.T) {
	rec := newRecord([]string{"a.jpg", "b.jpg", "c.jpg"}, nil, domain.DefaultBatchConfig())

	rec.recordResult(1, &domain.AnalysisResult{Status: domain.AnalysisCompleted})
	rec.recordResult(2, &domain.AnalysisResult{Status: domain.AnalysisFailed})

	sum := rec.summary()
	if sum.CompletedImages != 1 || sum.FailedImages != 1 {
		t.Errorf("counters = %d/%d, want 1/1", sum.CompletedImages, sum.FailedImages)
	}

	rec.mu.Lock()
	results := rec.resultsLocked()
	rec.mu.Unlock()
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2 (empty slot skipped)", len(results))
	}
	if results[0].Status != domain.AnalysisCompleted || results[1].Status != domain.AnalysisFailed {
		t.Errorf("results out of submission order: %+v", results)
	}
}

func TestRecord_ProgressPercentRounding(t *testing.T) {
	tests := []struct {
		total, completed int
		want             float64
	}{
		{3, 0, 0},
		{3, 1, 33.3},
		{3, 2, 66.7},
		{3, 3, 100},
		{7, 2, 28.6},
	}
	for _, tt := range tests {
		rec := newRecord(make([]string, tt.total), nil, domain.DefaultBatchConfig())
		rec.completed = tt.completed
		if got := rec.summary().ProgressPercent; got != tt.want {
			t.Errorf("progress(%d of %d) = %v, want %v", tt.completed, tt.total, got, tt.want)
		}
	}
}

func TestCancelToken(t *testing.T) {
	token := &cancelToken{}
	if token.isCancelled() {
		t.Error("fresh token reports cancelled")
	}
	token.cancel()
	token.cancel() // idempotent
	if !token.isCancelled() {
		t.Error("token not cancelled after cancel()")
	}
}

func TestRepository_AddGetRemove(t *testing.T) {
	repo := NewRepository()
	rec := newRecord([]string{"a.jpg"}, nil, domain.DefaultBatchConfig())

	repo.add(rec)
	if repo.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", repo.Count())
	}
	got, ok := repo.get(rec.id)
	if !ok || got != rec {
		t.Fatalf("get(%s) = %v, %v", rec.id, got, ok)
	}
	if _, ok := repo.get("unknown"); ok {
		t.Error("get(unknown) = true, want false")
	}

	repo.remove(rec.id)
	if repo.Count() != 0 {
		t.Errorf("Count() after remove = %d, want 0", repo.Count())
	}
}

func TestRepository_AllNewestFirst(t *testing.T) {
	repo := NewRepository()
	older := newRecord([]string{"a.jpg"}, nil, domain.DefaultBatchConfig())
	older.createdAt = time.Now().Add(-time.Hour)
	newer := newRecord([]string{"b.jpg"}, nil, domain.DefaultBatchConfig())

	repo.add(older)
	repo.add(newer)

	all := repo.all()
	if len(all) != 2 || all[0] != newer || all[1] != older {
		t.Errorf("all() order wrong: got %s then %s", all[0].id, all[1].id)
	}
}
