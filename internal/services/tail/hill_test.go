package tail

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// paretoQuantiles returns exact quantiles of a Pareto(alpha) law, largest last.
func paretoQuantiles(n int, alpha float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		u := float64(i+1) / float64(n+1)
		out[i] = math.Pow(1-u, -1/alpha)
	}
	return out
}

func TestTailSize(t *testing.T) {
	cases := map[int]int{0: 10, 20: 10, 29: 10, 100: 10, 400: 20, 499: 24, 500: 15, 1000: 30, 10000: 300}
	for n, want := range cases {
		assert.Equal(t, want, TailSize(n), "n=%d", n)
	}
}

func TestConstantWindowReturnsDefault(t *testing.T) {
	series := make([]float64, 10)
	for i := range series {
		series[i] = 0.01
	}
	got := NewHillEstimator().Estimate(series)
	assert.Equal(t, DefaultAlpha, got.Alpha)
	assert.True(t, got.Degenerate)
}

func TestLongConstantWindowReturnsDefault(t *testing.T) {
	series := make([]float64, 250)
	for i := range series {
		series[i] = -0.02
	}
	got := NewHillEstimator().Estimate(series)
	assert.Equal(t, DefaultAlpha, got.Alpha)
	assert.True(t, got.Degenerate)
}

func TestZeroThresholdReturnsDefault(t *testing.T) {
	series := make([]float64, 100)
	for i := 0; i < 5; i++ {
		series[i] = 0.1 * float64(i+1)
	}
	got := NewHillEstimator().Estimate(series)
	assert.Equal(t, DefaultAlpha, got.Alpha)
	assert.True(t, got.Degenerate)
}

func TestEmptyAndShortWindows(t *testing.T) {
	h := NewHillEstimator()
	assert.Equal(t, DefaultAlpha, h.Estimate(nil).Alpha)
	assert.Equal(t, DefaultAlpha, h.Estimate([]float64{0.1, -0.3, 0.2}).Alpha)
}

func TestParetoSampleRecoversExponent(t *testing.T) {
	h := NewHillEstimator()
	for _, alpha := range []float64{1.5, 2.5, 4.0} {
		got := h.Estimate(paretoQuantiles(1000, alpha))
		assert.False(t, got.Degenerate)
		assert.Equal(t, 30, got.TailSize)
		assert.InDelta(t, alpha, got.Alpha, 0.1*alpha+0.1, "alpha=%v", alpha)
	}
}

func TestSignIsIgnored(t *testing.T) {
	h := NewHillEstimator()
	pos := paretoQuantiles(300, 2.2)
	neg := make([]float64, len(pos))
	for i, v := range pos {
		if i%2 == 0 {
			neg[i] = -v
		} else {
			neg[i] = v
		}
	}
	assert.Equal(t, h.Estimate(pos), h.Estimate(neg))
}

func TestAlphaIsClamped(t *testing.T) {
	h := NewHillEstimator()

	light := make([]float64, 1000)
	for i := range light {
		light[i] = 1
	}
	for i := 0; i < 30; i++ {
		light[i] = 1.0001
	}
	assert.Equal(t, MaxAlpha, h.Estimate(light).Alpha)

	heavy := make([]float64, 1000)
	for i := range heavy {
		heavy[i] = 1
	}
	for i := 0; i < 30; i++ {
		heavy[i] = 1e10
	}
	assert.Equal(t, MinAlpha, h.Estimate(heavy).Alpha)
}

func TestNonFiniteValuesAreDropped(t *testing.T) {
	h := NewHillEstimator()
	clean := paretoQuantiles(200, 2.5)
	dirty := append([]float64{math.NaN(), math.Inf(1)}, clean...)
	dirty = append(dirty, math.Inf(-1))

	got := h.Estimate(dirty)
	assert.Equal(t, 200, got.SampleSize)
	assert.Equal(t, h.Estimate(clean).Alpha, got.Alpha)
}

func TestEstimateIsPure(t *testing.T) {
	h := NewHillEstimator()
	series := paretoQuantiles(150, 3.1)
	snapshot := append([]float64(nil), series...)

	first := h.Estimate(series)
	second := h.Estimate(series)
	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, series)
}
