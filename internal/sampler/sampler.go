package sampler

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Box-Muller inputs are kept inside [minUniform, 1) so log(u) stays finite.
const minUniform = 0.0001

// Sampler draws Normal, Gamma and Beta variates from a single uniform source.
// It is not safe for concurrent use.
type Sampler struct {
	rng *rand.Rand

	cachedNormal float64
	hasCached    bool
}

func New(seed uint64) *Sampler {
	return &Sampler{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Uniform returns a draw in [0, 1).
func (s *Sampler) Uniform() float64 {
	return s.rng.Float64()
}

// OpenUniform returns a draw in (0, 1).
func (s *Sampler) OpenUniform() float64 {
	for {
		if u := s.rng.Float64(); u > 0 {
			return u
		}
	}
}

// Normal uses the Box-Muller transform. Every other call is served from the
// twin value produced by the previous one.
func (s *Sampler) Normal(mean, stdDev float64) float64 {
	if s.hasCached {
		s.hasCached = false

		return mean + stdDev*s.cachedNormal
	}

	u := minUniform + s.rng.Float64()*(1-minUniform)
	v := minUniform + s.rng.Float64()*(1-minUniform)

	r := math.Sqrt(-2 * math.Log(u))
	z0 := r * math.Cos(2*math.Pi*v)
	z1 := r * math.Sin(2*math.Pi*v)

	s.cachedNormal = z1
	s.hasCached = true

	return mean + stdDev*z0
}

// Gamma samples Gamma(shape, scale) with the Marsaglia-Tsang method.
// Non-positive parameters are programming errors and panic.
func (s *Sampler) Gamma(shape, scale float64) float64 {
	if !(shape > 0) || math.IsInf(shape, 0) || !(scale > 0) || math.IsInf(scale, 0) {
		panic(fmt.Sprintf("sampler: invalid gamma parameters shape=%v scale=%v", shape, scale))
	}

	if shape < 1 {
		// shape+1 >= 1, so this recurses exactly once.
		return s.Gamma(shape+1, scale) * math.Pow(s.OpenUniform(), 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)

	for {
		var x, v float64

		for {
			x = s.Normal(0, 1)
			v = 1 + c*x

			if v > 0 {
				break
			}
		}

		v = v * v * v
		u := s.Uniform()

		if u < 1-0.0331*(x*x)*(x*x) {
			return d * v * scale
		}

		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

// Beta samples Beta(alpha, beta) as X/(X+Y) with X~Gamma(alpha,1), Y~Gamma(beta,1).
// For very small shapes floating point underflow can return exactly 0 or 1.
func (s *Sampler) Beta(alpha, beta float64) float64 {
	x := s.Gamma(alpha, 1)
	y := s.Gamma(beta, 1)

	return x / (x + y)
}
