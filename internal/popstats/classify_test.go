package popstats

import (
	"testing"

	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

func TestClassifySizes_Terciles(t *testing.T) {
	tbl := &table{rows: 6, cols: make(map[string]*column)}
	for i, v := range []float64{10, 12, 14, 16, 18, 100} {
		tbl.set("total_length", i, v)
	}

	got := classifySizes(tbl)

	small, medium, large := got["small"], got["medium"], got["large"]
	if small.Count != 2 || medium.Count != 2 || large.Count != 2 {
		t.Fatalf("counts = %d/%d/%d, want 2/2/2", small.Count, medium.Count, large.Count)
	}
	// the outlier lands in large
	if large.Range[1] != 100 {
		t.Errorf("large range = %v, want max 100", large.Range)
	}
	if small.Range != [2]float64{10, 12} {
		t.Errorf("small range = %v, want [10 12]", small.Range)
	}
	if medium.Range != [2]float64{14, 16} {
		t.Errorf("medium range = %v, want [14 16]", medium.Range)
	}
	if small.Percentage != 33.3 {
		t.Errorf("small percentage = %v, want 33.3", small.Percentage)
	}
}

func TestClassifySizes_TooFewSamples(t *testing.T) {
	tbl := &table{rows: 2, cols: make(map[string]*column)}
	tbl.set("total_length", 0, 10)
	tbl.set("total_length", 1, 12)

	got := classifySizes(tbl)
	for _, name := range []string{"small", "medium", "large"} {
		b, ok := got[name]
		if !ok {
			t.Fatalf("bucket %q missing", name)
		}
		if b.Count != 0 || b.Percentage != 0 || b.Range != [2]float64{0, 0} {
			t.Errorf("bucket %q = %+v, want zeroed", name, b)
		}
	}
}

func TestClassifySizes_PriorityOrder(t *testing.T) {
	tbl := &table{rows: 4, cols: make(map[string]*column)}
	for i, v := range []float64{8, 9, 10, 11} {
		tbl.set("standard_length", i, v)
		tbl.set("fork_length", i, v*2)
	}

	got := classifySizes(tbl)
	// standard_length outranks fork_length when total_length is absent
	if got["large"].Range[1] != 11 {
		t.Errorf("large range = %v, want classification on standard_length", got["large"].Range)
	}
}

func TestClassifySizes_NoLengthColumn(t *testing.T) {
	tbl := &table{rows: 5, cols: make(map[string]*column)}
	for i := 0; i < 5; i++ {
		tbl.set("eye_diameter", i, 1.5)
	}

	got := classifySizes(tbl)
	if got["small"].Count != 0 || got["medium"].Count != 0 || got["large"].Count != 0 {
		t.Errorf("classification = %+v, want zeroed buckets", got)
	}
}

func TestQualityMetrics(t *testing.T) {
	results := []*domain.AnalysisResult{
		{Detections: []domain.Detection{
			{Confidence: 0.95},
			{Confidence: 0.8},
			{Confidence: 0.6},
		}},
		{Detections: []domain.Detection{
			{Confidence: 0.5},
			{Confidence: 0.3},
		}},
		{}, // no detections contributes nothing
	}

	got := qualityMetrics(results)
	if got.HighConfidence != 2 {
		t.Errorf("HighConfidence = %d, want 2", got.HighConfidence)
	}
	if got.MediumConfidence != 2 {
		t.Errorf("MediumConfidence = %d, want 2", got.MediumConfidence)
	}
	if got.LowConfidence != 1 {
		t.Errorf("LowConfidence = %d, want 1", got.LowConfidence)
	}
	want := (0.95 + 0.8 + 0.6 + 0.5 + 0.3) / 5
	if !almostEqual(got.AverageConfidence, want, 1e-12) {
		t.Errorf("AverageConfidence = %v, want %v", got.AverageConfidence, want)
	}
}

func TestQualityMetrics_Empty(t *testing.T) {
	got := qualityMetrics(nil)
	if got.HighConfidence != 0 || got.AverageConfidence != 0 {
		t.Errorf("qualityMetrics(nil) = %+v, want zero value", got)
	}
}

func TestRound1(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{33.333333, 33.3},
		{66.666666, 66.7},
		{100, 100},
		{12.25, 12.3},
	}
	for _, tt := range tests {
		if got := round1(tt.in); got != tt.want {
			t.Errorf("round1(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
