package popstats

import (
	"math"
	"sort"

	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// distributions summarizes every column with at least two values, in
// column order
func distributions(t *table) []domain.Distribution {
	var out []domain.Distribution
	for _, name := range t.order {
		vals := t.cols[name].values()
		if len(vals) < 2 {
			continue
		}
		out = append(out, describe(displayName(name), vals))
	}
	return out
}

func describe(name string, vals []float64) domain.Distribution {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	mu := mean(vals)
	return domain.Distribution{
		MeasurementName: name,
		Mean:            san(mu),
		Median:          san(quantile(sorted, 0.5)),
		StdDev:          san(populationStdDev(vals, mu)),
		MinValue:        san(sorted[0]),
		MaxValue:        san(sorted[len(sorted)-1]),
		Q25:             san(quantile(sorted, 0.25)),
		Q75:             san(quantile(sorted, 0.75)),
		Skewness:        san(skewness(vals, mu)),
		Kurtosis:        san(kurtosis(vals, mu)),
		SampleSize:      len(vals),
	}
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func populationStdDev(vals []float64, mu float64) float64 {
	return math.Sqrt(centralMoment(vals, mu, 2))
}

// centralMoment returns the k-th central moment 1/n Σ(x-μ)^k
func centralMoment(vals []float64, mu float64, k int) float64 {
	var sum float64
	for _, v := range vals {
		sum += math.Pow(v-mu, float64(k))
	}
	return sum / float64(len(vals))
}

// quantile interpolates linearly between the two nearest order
// statistics. Input must be sorted and non-empty.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// skewness returns the adjusted Fisher-Pearson standardized moment
// coefficient. Zero for fewer than three values or zero variance.
func skewness(vals []float64, mu float64) float64 {
	n := float64(len(vals))
	if n < 3 {
		return 0
	}
	m2 := centralMoment(vals, mu, 2)
	if m2 == 0 {
		return 0
	}
	g1 := centralMoment(vals, mu, 3) / math.Pow(m2, 1.5)
	return g1 * math.Sqrt(n*(n-1)) / (n - 2)
}

// kurtosis returns the bias-corrected excess kurtosis. Zero for fewer
// than four values or zero variance.
func kurtosis(vals []float64, mu float64) float64 {
	n := float64(len(vals))
	if n < 4 {
		return 0
	}
	m2 := centralMoment(vals, mu, 2)
	if m2 == 0 {
		return 0
	}
	g2 := centralMoment(vals, mu, 4)/(m2*m2) - 3
	return ((n+1)*g2 + 6) * (n - 1) / ((n - 2) * (n - 3))
}
