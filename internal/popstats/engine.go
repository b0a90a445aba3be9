// Package popstats computes population-level statistics over the
// successful results of a completed batch: per-measurement distributions,
// pairwise correlations, rule-based insights, size terciles, and
// detection-quality metrics. Everything is computed fresh per call from
// closed-form formulas; no state is kept between calls.
package popstats

import (
	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// Analyze aggregates a batch's results into population statistics.
// Only results with status completed contribute; it is a validation
// error to call with none of those.
func Analyze(results []*domain.AnalysisResult) (*domain.PopulationStatistics, error) {
	successful := make([]*domain.AnalysisResult, 0, len(results))
	for _, r := range results {
		if r != nil && r.Status == domain.AnalysisCompleted {
			successful = append(successful, r)
		}
	}
	if len(successful) == 0 {
		return nil, domain.NewValidationError("no successful analyses found")
	}

	tbl := tabulate(successful)
	dists := distributions(tbl)
	corrs := correlations(tbl)

	var totalTime float64
	for _, r := range successful {
		totalTime += r.Metadata.ProcessingTimeSeconds
	}

	stats := &domain.PopulationStatistics{
		TotalFish:             len(results),
		SuccessfulAnalyses:    len(successful),
		FailedAnalyses:        len(results) - len(successful),
		ProcessingTimeTotal:   totalTime,
		ProcessingTimeAverage: totalTime / float64(len(successful)),
		Distributions:         dists,
		Correlations:          corrs,
		Insights:              buildInsights(len(successful), dists, corrs),
		SizeClassification:    classifySizes(tbl),
		QualityMetrics:        qualityMetrics(successful),
	}
	sanitizeStatistics(stats)
	return stats, nil
}
