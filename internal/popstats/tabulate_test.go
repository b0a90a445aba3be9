package popstats

import (
	"testing"

	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

func TestTabulate(t *testing.T) {
	results := []*domain.AnalysisResult{
		{
			Status: domain.AnalysisCompleted,
			Measurements: []domain.Measurement{
				{Name: "Total Length", DistanceInches: 10},
				{Name: "head_length", DistanceInches: 2},
			},
			Detections:      []domain.Detection{{ClassName: "trout", Confidence: 0.9}},
			DetectionCounts: map[string]int{"trout": 1, "eye": 2},
		},
		{
			Status: domain.AnalysisCompleted,
			Measurements: []domain.Measurement{
				{Name: "Total Length", DistanceInches: 12},
			},
			DetectionCounts: map[string]int{"trout": 1},
		},
	}

	tbl := tabulate(results)

	if tbl.rows != 2 {
		t.Fatalf("rows = %d, want 2", tbl.rows)
	}

	// confidence first, then measurements in first-seen order, then
	// detection counts in sorted class order
	wantOrder := []string{"confidence", "total_length", "head_length", "eye_count", "trout_count"}
	if len(tbl.order) != len(wantOrder) {
		t.Fatalf("order = %v, want %v", tbl.order, wantOrder)
	}
	for i, want := range wantOrder {
		if tbl.order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, tbl.order[i], want)
		}
	}

	// confidence defaults to zero for results without detections
	conf := tbl.cols["confidence"]
	if !conf.present[0] || !conf.present[1] {
		t.Error("confidence column must be present for every row")
	}
	if conf.vals[0] != 0.9 || conf.vals[1] != 0 {
		t.Errorf("confidence vals = %v", conf.vals)
	}

	// head_length is missing from the second row
	head := tbl.cols["head_length"]
	if !head.present[0] || head.present[1] {
		t.Errorf("head_length present = %v, want [true false]", head.present)
	}
	if got := head.count(); got != 1 {
		t.Errorf("head_length count = %d, want 1", got)
	}

	vals := tbl.cols["total_length"].values()
	if len(vals) != 2 || vals[0] != 10 || vals[1] != 12 {
		t.Errorf("total_length values = %v, want [10 12]", vals)
	}
}

func TestPairRows(t *testing.T) {
	tbl := &table{rows: 4, cols: make(map[string]*column)}
	tbl.set("a", 0, 1)
	tbl.set("a", 1, 2)
	tbl.set("a", 3, 4)
	tbl.set("b", 1, 20)
	tbl.set("b", 2, 30)
	tbl.set("b", 3, 40)

	xs, ys := tbl.pairRows("a", "b")
	if len(xs) != 2 || len(ys) != 2 {
		t.Fatalf("pairRows lengths = %d/%d, want 2/2", len(xs), len(ys))
	}
	if xs[0] != 2 || ys[0] != 20 || xs[1] != 4 || ys[1] != 40 {
		t.Errorf("pairRows = %v, %v", xs, ys)
	}

	if xs, _ := tbl.pairRows("a", "missing"); xs != nil {
		t.Errorf("pairRows with unknown column = %v, want nil", xs)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Total Length", "total_length"},
		{"total_length", "total_length"},
		{"Eye Diameter", "eye_diameter"},
		{"BODY DEPTH", "body_depth"},
	}
	for _, tt := range tests {
		if got := normalizeName(tt.in); got != tt.want {
			t.Errorf("normalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"total_length", "Total Length"},
		{"confidence", "Confidence"},
		{"trout_count", "Trout Count"},
		{"eye_diameter", "Eye Diameter"},
	}
	for _, tt := range tests {
		if got := displayName(tt.in); got != tt.want {
			t.Errorf("displayName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
