package popstats

import (
	"sort"
	"strings"

	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// confidenceColumn holds the mean detection confidence per specimen. It
// participates in distributions but never in correlations.
const confidenceColumn = "confidence"

// table is the columnar view of a result set: one row per successful
// result, one column per distinct measurement name, detection-count
// class, and the confidence column. A result that lacks a measurement
// simply leaves that cell absent.
type table struct {
	rows  int
	order []string // column names in first-seen order
	cols  map[string]*column
}

type column struct {
	vals    []float64
	present []bool
}

// values returns the cells that are present, in row order
func (c *column) values() []float64 {
	out := make([]float64, 0, len(c.vals))
	for i, ok := range c.present {
		if ok {
			out = append(out, c.vals[i])
		}
	}
	return out
}

// count returns the number of present cells
func (c *column) count() int {
	n := 0
	for _, ok := range c.present {
		if ok {
			n++
		}
	}
	return n
}

func tabulate(results []*domain.AnalysisResult) *table {
	t := &table{rows: len(results), cols: make(map[string]*column)}

	for i, r := range results {
		conf, _ := r.MeanDetectionConfidence()
		t.set(confidenceColumn, i, conf)

		for _, m := range r.Measurements {
			t.set(normalizeName(m.Name), i, m.DistanceInches)
		}

		classes := make([]string, 0, len(r.DetectionCounts))
		for class := range r.DetectionCounts {
			classes = append(classes, class)
		}
		sort.Strings(classes)
		for _, class := range classes {
			t.set(class+"_count", i, float64(r.DetectionCounts[class]))
		}
	}
	return t
}

func (t *table) set(name string, row int, v float64) {
	c, ok := t.cols[name]
	if !ok {
		c = &column{
			vals:    make([]float64, t.rows),
			present: make([]bool, t.rows),
		}
		t.cols[name] = c
		t.order = append(t.order, name)
	}
	c.vals[row] = v
	c.present[row] = true
}

// pairRows returns the aligned values of two columns restricted to rows
// where both are present
func (t *table) pairRows(a, b string) (xs, ys []float64) {
	ca, cb := t.cols[a], t.cols[b]
	if ca == nil || cb == nil {
		return nil, nil
	}
	for i := 0; i < t.rows; i++ {
		if ca.present[i] && cb.present[i] {
			xs = append(xs, ca.vals[i])
			ys = append(ys, cb.vals[i])
		}
	}
	return xs, ys
}

// normalizeName maps a measurement name to its column key
func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// displayName maps a column key to its reporting name, e.g.
// "total_length" becomes "Total Length"
func displayName(col string) string {
	words := strings.Split(strings.ReplaceAll(col, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
