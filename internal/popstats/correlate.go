package popstats

import (
	"math"
	"sort"

	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// minCorrelationRows is the smallest pairwise-complete sample a
// correlation may be computed from
const minCorrelationRows = 3

// correlationThreshold filters out weak relationships from the output
const correlationThreshold = 0.3

// correlations computes the Pearson correlation for every unordered pair
// of measurement and detection-count columns, keeping pairs with at
// least three complete rows and |r| above the reporting threshold
func correlations(t *table) []domain.Correlation {
	var names []string
	for _, name := range t.order {
		if name != confidenceColumn {
			names = append(names, name)
		}
	}

	var out []domain.Correlation
	for i, a := range names {
		for _, b := range names[i+1:] {
			xs, ys := t.pairRows(a, b)
			if len(xs) < minCorrelationRows {
				continue
			}
			r := pearson(xs, ys)
			if math.IsNaN(r) || math.IsInf(r, 0) {
				continue
			}
			if math.Abs(r) <= correlationThreshold {
				continue
			}
			out = append(out, domain.Correlation{
				Measurement1: displayName(a),
				Measurement2: displayName(b),
				Coefficient:  san(r),
				PValue:       san(pValue(r, len(xs))),
				Strength:     classifyStrength(math.Abs(r)),
			})
		}
	}
	return out
}

func classifyStrength(absR float64) domain.CorrelationStrength {
	switch {
	case absR >= 0.8:
		return domain.StrengthVeryStrong
	case absR >= 0.6:
		return domain.StrengthStrong
	case absR >= 0.4:
		return domain.StrengthModerate
	case absR >= 0.2:
		return domain.StrengthWeak
	default:
		return domain.StrengthVeryWeak
	}
}

// pearson returns the sample correlation coefficient, NaN when either
// side has zero variance
func pearson(xs, ys []float64) float64 {
	mx, my := mean(xs), mean(ys)

	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	denom := math.Sqrt(sxx * syy)
	if denom == 0 {
		return math.NaN()
	}
	return sxy / denom
}

// pValue returns the two-tailed p-value of r under the null hypothesis
// of no correlation, using the exact Student's t relationship
// t = r*sqrt((n-2)/(1-r^2)) and the regularized incomplete beta function.
func pValue(r float64, n int) float64 {
	df := float64(n - 2)
	if df <= 0 {
		return 1.0
	}
	r2 := r * r
	if r2 >= 1 {
		return 0.0
	}
	t2 := r2 * df / (1 - r2)
	p := incompleteBeta(df/2, 0.5, df/(df+t2))
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 1.0
	}
	return math.Min(math.Max(p, 0), 1)
}

// incompleteBeta evaluates the regularized incomplete beta function
// I_x(a, b) by continued fraction expansion
func incompleteBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	lga, _ := math.Lgamma(a)
	lgb, _ := math.Lgamma(b)
	lgab, _ := math.Lgamma(a + b)
	front := math.Exp(lgab - lga - lgb + a*math.Log(x) + b*math.Log(1-x))

	if x < (a+1)/(a+b+2) {
		return front * betaCF(a, b, x) / a
	}
	return 1 - front*betaCF(b, a, 1-x)/b
}

// betaCF evaluates the continued fraction for incompleteBeta using the
// modified Lentz method
func betaCF(a, b, x float64) float64 {
	const (
		maxIterations = 200
		epsilon       = 3e-14
		tiny          = 1e-30
	)

	qab, qap, qam := a+b, a+1, a-1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIterations; m++ {
		fm := float64(m)
		m2 := 2 * fm

		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del

		if math.Abs(del-1) < epsilon {
			break
		}
	}
	return h
}

// strongestFirst orders correlations by |r| descending
func strongestFirst(corrs []domain.Correlation) []domain.Correlation {
	sorted := make([]domain.Correlation, len(corrs))
	copy(sorted, corrs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Coefficient) > math.Abs(sorted[j].Coefficient)
	})
	return sorted
}
