package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestNormal(t *testing.T) {
	t.Run("second call consumes cached twin", func(t *testing.T) {
		s := New(7)

		first := s.Normal(0, 1)
		require.True(t, s.hasCached, "twin value should be cached")

		second := s.Normal(10, 2)
		require.False(t, s.hasCached, "cache should be consumed")
		require.InDelta(t, 10+2*s.cachedNormal, second, 1e-12)
		require.NotEqual(t, first, second)
	})

	t.Run("cache is per instance", func(t *testing.T) {
		a := New(1)
		b := New(1)

		a.Normal(0, 1)
		require.True(t, a.hasCached)
		require.False(t, b.hasCached)
	})

	t.Run("moments", func(t *testing.T) {
		s := New(42)
		draws := make([]float64, 20000)

		for i := range draws {
			draws[i] = s.Normal(5, 2)
		}

		mean, std := stat.MeanStdDev(draws, nil)
		require.InDelta(t, 5, mean, 0.05)
		require.InDelta(t, 2, std, 0.05)
	})
}

func TestGamma(t *testing.T) {
	s := New(3)

	for _, tc := range []struct {
		shape, scale float64
	}{
		{0.3, 1},
		{1, 1},
		{2.5, 2},
		{9, 0.5},
	} {
		draws := make([]float64, 20000)

		for i := range draws {
			draws[i] = s.Gamma(tc.shape, tc.scale)
			require.Greater(t, draws[i], 0.0)
		}

		want := distuv.Gamma{Alpha: tc.shape, Beta: 1 / tc.scale}.Mean()
		require.InEpsilon(t, want, stat.Mean(draws, nil), 0.05, "shape=%v scale=%v", tc.shape, tc.scale)
	}

	t.Run("invalid parameters panic", func(t *testing.T) {
		require.Panics(t, func() { s.Gamma(0, 1) })
		require.Panics(t, func() { s.Gamma(-1, 1) })
		require.Panics(t, func() { s.Gamma(1, 0) })
		require.Panics(t, func() { s.Gamma(math.NaN(), 1) })
	})
}

func TestBeta(t *testing.T) {
	t.Run("draws stay inside the open unit interval", func(t *testing.T) {
		s := New(11)

		for _, p := range [][2]float64{{1, 1}, {3, 1}, {0.5, 0.5}, {2, 5}, {50, 2}, {1000, 1}} {
			for i := 0; i < 10000; i++ {
				x := s.Beta(p[0], p[1])
				require.Greater(t, x, 0.0)
				require.Less(t, x, 1.0)
			}
		}
	})

	t.Run("mean converges", func(t *testing.T) {
		s := New(2024)
		sum := 0.0

		for i := 0; i < 10000; i++ {
			sum += s.Beta(3, 1)
		}

		require.InDelta(t, 0.75, sum/10000, 0.02)
		require.InDelta(t, distuv.Beta{Alpha: 3, Beta: 1}.Mean(), sum/10000, 0.02)
	})

	t.Run("same seed reproduces draws", func(t *testing.T) {
		a := New(99)
		b := New(99)

		for i := 0; i < 100; i++ {
			require.Equal(t, a.Beta(2, 3), b.Beta(2, 3))
		}
	})
}
