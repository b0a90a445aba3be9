package popstats

import (
	"fmt"
	"math"

	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// buildInsights produces the rule-based natural-language summaries in a
// fixed order: sample size, per-measurement distribution shape, strongest
// correlations, then overall variability
func buildInsights(sampleSize int, dists []domain.Distribution, corrs []domain.Correlation) []domain.Insight {
	var insights []domain.Insight

	insights = append(insights, sampleSizeInsight(sampleSize))
	insights = append(insights, distributionInsights(dists)...)
	insights = append(insights, correlationInsights(corrs, sampleSize)...)
	if v, ok := variabilityInsight(dists, sampleSize); ok {
		insights = append(insights, v)
	}
	return insights
}

func sampleSizeInsight(n int) domain.Insight {
	verdict := "Small sample size - results should be interpreted cautiously."
	confidence := 0.7
	if n >= 30 {
		verdict = "Large sample provides robust statistical power."
		confidence = 0.95
	}
	return domain.Insight{
		Category:   domain.InsightDistribution,
		Title:      "Sample Size Analysis",
		Insight:    fmt.Sprintf("Analysis based on %d fish specimens. %s", n, verdict),
		Confidence: confidence,
		DataPoints: n,
	}
}

// distributionInsights describes shape and variability for the first
// three columns, skipping any with fewer than five samples
func distributionInsights(dists []domain.Distribution) []domain.Insight {
	var out []domain.Insight
	top := dists
	if len(top) > 3 {
		top = top[:3]
	}
	for _, dist := range top {
		if dist.SampleSize < 5 {
			continue
		}

		shape := "highly skewed"
		switch abs := math.Abs(dist.Skewness); {
		case abs < 0.5:
			shape = "approximately normal"
		case abs < 1:
			shape = "moderately skewed"
		}

		cv := 0.0
		if dist.Mean > 0 {
			cv = dist.StdDev / dist.Mean
		}
		variability := "high"
		switch {
		case cv < 0.2:
			variability = "low"
		case cv < 0.5:
			variability = "moderate"
		}

		out = append(out, domain.Insight{
			Category: domain.InsightDistribution,
			Title:    fmt.Sprintf("%s Distribution", dist.MeasurementName),
			Insight: fmt.Sprintf("%s shows %s distribution with %s variability (CV: %.2f). Mean: %.2f, Range: %.2f-%.2f",
				dist.MeasurementName, shape, variability, cv, dist.Mean, dist.MinValue, dist.MaxValue),
			Confidence: 0.8,
			DataPoints: dist.SampleSize,
		})
	}
	return out
}

// correlationInsights reports the two strongest strong or very_strong
// correlations
func correlationInsights(corrs []domain.Correlation, sampleSize int) []domain.Insight {
	var strong []domain.Correlation
	for _, c := range corrs {
		if c.Strength == domain.StrengthStrong || c.Strength == domain.StrengthVeryStrong {
			strong = append(strong, c)
		}
	}
	strong = strongestFirst(strong)
	if len(strong) > 2 {
		strong = strong[:2]
	}

	var out []domain.Insight
	for _, corr := range strong {
		direction := "negative"
		if corr.Coefficient > 0 {
			direction = "positive"
		}
		confidence := 0.7
		if corr.PValue < 0.05 {
			confidence = 0.9
		}
		p := corr.PValue
		out = append(out, domain.Insight{
			Category: domain.InsightCorrelation,
			Title:    fmt.Sprintf("%s vs %s", corr.Measurement1, corr.Measurement2),
			Insight: fmt.Sprintf("Strong %s correlation (r=%.3f) between %s and %s. This suggests these measurements scale together in this population.",
				direction, corr.Coefficient, corr.Measurement1, corr.Measurement2),
			Confidence:   confidence,
			DataPoints:   sampleSize,
			Significance: &p,
		})
	}
	return out
}

// variabilityInsight fires when any distribution has at least ten
// samples and a non-zero interquartile range
func variabilityInsight(dists []domain.Distribution, sampleSize int) (domain.Insight, bool) {
	qualifies := false
	for _, dist := range dists {
		if dist.SampleSize >= 10 && dist.Q75-dist.Q25 > 0 {
			qualifies = true
			break
		}
	}
	if !qualifies {
		return domain.Insight{}, false
	}
	return domain.Insight{
		Category:   domain.InsightOutlier,
		Title:      "Measurement Variability",
		Insight:    "Some measurements show high variability which may indicate diverse size ranges or measurement outliers in the population.",
		Confidence: 0.75,
		DataPoints: sampleSize,
	}, true
}
