// Package tail estimates the power-law exponent of a return distribution.
package tail

import (
	"math"
	"sort"

	"RiskKernel/internal/domain/models"
	domsvc "RiskKernel/internal/domain/service"
)

const (
	// DefaultAlpha is returned whenever the sample cannot support an estimate.
	DefaultAlpha = 3.0
	// MinAlpha and MaxAlpha bound every estimate; a sample beyond them is clamped.
	MinAlpha = 0.5
	MaxAlpha = 10.0
	// MinTailSize is the floor on the number of order statistics used.
	MinTailSize = 10
)

// HillEstimator is a maximum-likelihood tail-index estimator over the largest
// absolute values of a window. The zero value is ready to use and safe for concurrent use.
type HillEstimator struct{}

// NewHillEstimator returns a Hill estimator.
func NewHillEstimator() *HillEstimator { return &HillEstimator{} }

// TailSize returns the adaptive number of order statistics for a sample of n values.
func TailSize(n int) int {
	var k int
	switch {
	case n < 30:
		k = n / 10
	case n < 500:
		k = n * 5 / 100
	default:
		k = n * 3 / 100
	}
	if k < MinTailSize {
		k = MinTailSize
	}
	return k
}

// Estimate returns the tail exponent of series. It never fails: samples that are
// too small, constant, or otherwise degenerate resolve to DefaultAlpha.
func (h *HillEstimator) Estimate(series []float64) models.TailEstimate {
	abs := make([]float64, 0, len(series))
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		abs = append(abs, math.Abs(v))
	}
	n := len(abs)
	k := TailSize(n)
	out := models.TailEstimate{Alpha: DefaultAlpha, TailSize: k, SampleSize: n, Degenerate: true}
	if n <= k {
		return out
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(abs)))

	threshold := abs[k]
	if threshold <= 0 {
		return out
	}

	var sum float64
	for _, v := range abs[:k] {
		sum += math.Log(v / threshold)
	}
	hill := sum / float64(k)
	if !(hill > 0) || math.IsInf(hill, 0) {
		return out
	}

	out.Alpha = clamp(1/hill, MinAlpha, MaxAlpha)
	out.Degenerate = false
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var _ domsvc.TailEstimator = (*HillEstimator)(nil)
