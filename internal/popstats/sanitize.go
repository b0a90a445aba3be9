package popstats

import (
	"math"

	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// san maps NaN and infinities to 0.0. Every numeric field the engine
// emits passes through it, preserving the observed output contract for
// degenerate inputs such as zero-variance columns.
func san(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// sanitizeStatistics applies the NaN/infinity guard to the assembled
// result one final time before it leaves the engine
func sanitizeStatistics(s *domain.PopulationStatistics) {
	s.ProcessingTimeTotal = san(s.ProcessingTimeTotal)
	s.ProcessingTimeAverage = san(s.ProcessingTimeAverage)

	for i := range s.Distributions {
		d := &s.Distributions[i]
		d.Mean = san(d.Mean)
		d.Median = san(d.Median)
		d.StdDev = san(d.StdDev)
		d.MinValue = san(d.MinValue)
		d.MaxValue = san(d.MaxValue)
		d.Q25 = san(d.Q25)
		d.Q75 = san(d.Q75)
		d.Skewness = san(d.Skewness)
		d.Kurtosis = san(d.Kurtosis)
	}

	for i := range s.Correlations {
		c := &s.Correlations[i]
		c.Coefficient = san(c.Coefficient)
		c.PValue = san(c.PValue)
	}

	for i := range s.Insights {
		ins := &s.Insights[i]
		ins.Confidence = san(ins.Confidence)
		if ins.Significance != nil {
			p := san(*ins.Significance)
			ins.Significance = &p
		}
	}

	for name, bucket := range s.SizeClassification {
		bucket.Percentage = san(bucket.Percentage)
		bucket.Range[0] = san(bucket.Range[0])
		bucket.Range[1] = san(bucket.Range[1])
		s.SizeClassification[name] = bucket
	}

	s.QualityMetrics.AverageConfidence = san(s.QualityMetrics.AverageConfidence)
}
