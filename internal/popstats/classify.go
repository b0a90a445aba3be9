package popstats

import (
	"math"
	"sort"

	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// sizePriority lists the measurements usable for size classification,
// most preferred first
var sizePriority = []string{"total_length", "standard_length", "fork_length"}

// classifySizes splits the population into small/medium/large terciles
// on the first available length measurement. Fewer than three samples
// yields three zeroed buckets.
func classifySizes(t *table) map[string]domain.SizeBucket {
	var sizes []float64
	for _, name := range sizePriority {
		if c, ok := t.cols[name]; ok && c.count() > 0 {
			sizes = c.values()
			break
		}
	}
	if len(sizes) < 3 {
		return map[string]domain.SizeBucket{
			"small":  {},
			"medium": {},
			"large":  {},
		}
	}

	sorted := make([]float64, len(sizes))
	copy(sorted, sizes)
	sort.Float64s(sorted)
	p33 := quantile(sorted, 0.33)
	p67 := quantile(sorted, 0.67)

	var small, medium, large []float64
	for _, v := range sizes {
		switch {
		case v <= p33:
			small = append(small, v)
		case v <= p67:
			medium = append(medium, v)
		default:
			large = append(large, v)
		}
	}

	total := len(sizes)
	return map[string]domain.SizeBucket{
		"small":  sizeBucket(small, total),
		"medium": sizeBucket(medium, total),
		"large":  sizeBucket(large, total),
	}
}

func sizeBucket(vals []float64, total int) domain.SizeBucket {
	b := domain.SizeBucket{
		Count:      len(vals),
		Percentage: round1(float64(len(vals)) / float64(total) * 100),
	}
	if len(vals) > 0 {
		lo, hi := vals[0], vals[0]
		for _, v := range vals[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		b.Range = [2]float64{san(lo), san(hi)}
	}
	return b
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// qualityMetrics buckets every detection confidence across the
// population and reports the overall mean
func qualityMetrics(results []*domain.AnalysisResult) domain.QualityMetrics {
	var m domain.QualityMetrics
	var sum float64
	var n int

	for _, r := range results {
		for _, d := range r.Detections {
			switch {
			case d.Confidence >= 0.8:
				m.HighConfidence++
			case d.Confidence >= 0.5:
				m.MediumConfidence++
			default:
				m.LowConfidence++
			}
			sum += d.Confidence
			n++
		}
	}
	if n > 0 {
		m.AverageConfidence = san(sum / float64(n))
	}
	return m
}
