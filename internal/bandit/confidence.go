package bandit

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const DefaultCredibleLevel = 0.95

// CalculateConfidence is 1 - 2*stddev of Beta(alpha, beta). It is a dispersion
// heuristic, not a statistical confidence interval. Beta variance is below
// 1/4, so the result lies in (0, 1) for positive parameters.
func CalculateConfidence(alpha, beta float64) float64 {
	sum := alpha + beta
	variance := (alpha * beta) / (sum * sum * (sum + 1))

	return 1 - 2*math.Sqrt(variance)
}

// CredibleInterval returns the equal-tailed Bayesian interval holding level of
// the Beta(alpha, beta) posterior mass. Levels outside (0,1) use 95%.
func CredibleInterval(alpha, beta, level float64) (low, high float64) {
	if !(level > 0 && level < 1) {
		level = DefaultCredibleLevel
	}

	dist := distuv.Beta{Alpha: alpha, Beta: beta}
	tail := (1 - level) / 2

	return dist.Quantile(tail), dist.Quantile(1 - tail)
}
