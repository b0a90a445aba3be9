package popstats

import (
	"math"
	"testing"

	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

func TestPearson(t *testing.T) {
	if got := pearson([]float64{1, 2, 3}, []float64{2, 4, 6}); !almostEqual(got, 1, 1e-12) {
		t.Errorf("pearson(proportional) = %v, want 1", got)
	}
	if got := pearson([]float64{1, 2, 3}, []float64{6, 4, 2}); !almostEqual(got, -1, 1e-12) {
		t.Errorf("pearson(inverse) = %v, want -1", got)
	}
	if got := pearson([]float64{1, 2, 3}, []float64{5, 5, 5}); !math.IsNaN(got) {
		t.Errorf("pearson(zero variance) = %v, want NaN", got)
	}
}

func TestPValue(t *testing.T) {
	// r = 0.6319 is the two-tailed critical value for n=10 at alpha 0.05
	if got := pValue(0.6319, 10); !almostEqual(got, 0.05, 0.001) {
		t.Errorf("pValue(0.6319, 10) = %v, want ~0.05", got)
	}

	if got := pValue(1.0, 5); got != 0 {
		t.Errorf("pValue(perfect correlation) = %v, want 0", got)
	}
	if got := pValue(0.9, 2); got != 1 {
		t.Errorf("pValue(df=0) = %v, want 1", got)
	}

	// stronger correlations are more significant at the same n
	weak, strong := pValue(0.4, 12), pValue(0.8, 12)
	if strong >= weak {
		t.Errorf("pValue(0.8) = %v should be below pValue(0.4) = %v", strong, weak)
	}

	for _, r := range []float64{-0.95, -0.5, 0, 0.5, 0.95} {
		p := pValue(r, 8)
		if p < 0 || p > 1 {
			t.Errorf("pValue(%v, 8) = %v outside [0,1]", r, p)
		}
	}
}

func TestIncompleteBeta(t *testing.T) {
	// I_x(1,1) is the identity
	for _, x := range []float64{0.1, 0.5, 0.9} {
		if got := incompleteBeta(1, 1, x); !almostEqual(got, x, 1e-10) {
			t.Errorf("incompleteBeta(1,1,%v) = %v, want %v", x, got, x)
		}
	}
	// symmetry of the arcsine distribution
	if got := incompleteBeta(0.5, 0.5, 0.5); !almostEqual(got, 0.5, 1e-10) {
		t.Errorf("incompleteBeta(0.5,0.5,0.5) = %v, want 0.5", got)
	}
	if got := incompleteBeta(2, 3, 0); got != 0 {
		t.Errorf("incompleteBeta(x=0) = %v, want 0", got)
	}
	if got := incompleteBeta(2, 3, 1); got != 1 {
		t.Errorf("incompleteBeta(x=1) = %v, want 1", got)
	}
}

func TestClassifyStrength(t *testing.T) {
	tests := []struct {
		absR float64
		want domain.CorrelationStrength
	}{
		{0.1, domain.StrengthVeryWeak},
		{0.2, domain.StrengthWeak},
		{0.39, domain.StrengthWeak},
		{0.4, domain.StrengthModerate},
		{0.6, domain.StrengthStrong},
		{0.79, domain.StrengthStrong},
		{0.8, domain.StrengthVeryStrong},
		{1.0, domain.StrengthVeryStrong},
	}

	for _, tt := range tests {
		if got := classifyStrength(tt.absR); got != tt.want {
			t.Errorf("classifyStrength(%v) = %q, want %q", tt.absR, got, tt.want)
		}
	}
}

func TestCorrelations_PairwiseMinimumRows(t *testing.T) {
	// head_length present in only 2 of 6 rows: below the 3-row minimum
	tbl := &table{rows: 6, cols: make(map[string]*column)}
	for i, v := range []float64{10, 12, 14, 16, 18, 100} {
		tbl.set("total_length", i, v)
	}
	tbl.set("head_length", 0, 2)
	tbl.set("head_length", 1, 2.4)

	if got := correlations(tbl); len(got) != 0 {
		t.Errorf("correlations() = %v, want none below the row minimum", got)
	}
}

func TestCorrelations_EmitsStrongPair(t *testing.T) {
	tbl := &table{rows: 5, cols: make(map[string]*column)}
	lengths := []float64{10, 12, 14, 16, 18}
	for i, v := range lengths {
		tbl.set("total_length", i, v)
		tbl.set("head_length", i, v*0.2+0.1*float64(i%2))
	}

	got := correlations(tbl)
	if len(got) != 1 {
		t.Fatalf("len(correlations) = %d, want 1", len(got))
	}
	c := got[0]
	if c.Measurement1 != "Total Length" || c.Measurement2 != "Head Length" {
		t.Errorf("pair = %q vs %q", c.Measurement1, c.Measurement2)
	}
	if c.Strength != domain.StrengthVeryStrong {
		t.Errorf("Strength = %q, want very_strong", c.Strength)
	}
	if c.PValue < 0 || c.PValue > 1 {
		t.Errorf("PValue = %v outside [0,1]", c.PValue)
	}
}

func TestCorrelations_ZeroVarianceDropped(t *testing.T) {
	tbl := &table{rows: 4, cols: make(map[string]*column)}
	for i, v := range []float64{10, 12, 14, 16} {
		tbl.set("total_length", i, v)
		tbl.set("eye_diameter", i, 1.5) // identical in every specimen
	}

	if got := correlations(tbl); len(got) != 0 {
		t.Errorf("correlations() = %v, want zero-variance pair dropped", got)
	}
}

func TestCorrelations_ExcludesConfidence(t *testing.T) {
	tbl := &table{rows: 4, cols: make(map[string]*column)}
	for i, v := range []float64{10, 12, 14, 16} {
		tbl.set(confidenceColumn, i, v/20)
		tbl.set("total_length", i, v)
	}

	// confidence correlates perfectly with total_length here, but the
	// confidence column never participates
	if got := correlations(tbl); len(got) != 0 {
		t.Errorf("correlations() = %v, want confidence excluded", got)
	}
}

func TestStrongestFirst(t *testing.T) {
	corrs := []domain.Correlation{
		{Measurement1: "A", Measurement2: "B", Coefficient: 0.65},
		{Measurement1: "C", Measurement2: "D", Coefficient: -0.95},
		{Measurement1: "E", Measurement2: "F", Coefficient: 0.8},
	}

	got := strongestFirst(corrs)
	if got[0].Measurement1 != "C" || got[1].Measurement1 != "E" || got[2].Measurement1 != "A" {
		t.Errorf("order = %q, %q, %q", got[0].Measurement1, got[1].Measurement1, got[2].Measurement1)
	}
	// input order untouched
	if corrs[0].Measurement1 != "A" {
		t.Error("strongestFirst mutated its input")
	}
}
