package features

import (
	"fmt"
	"math"

	"RiskKernel/internal/domain/models"
)

// LogReturns computes r_t = ln(p_t / p_{t-1}) over a price window. It fails on a
// non-positive or non-finite price instead of substituting a value, so callers can
// tell an unusable window from a quiet one.
func LogReturns(prices []float64) ([]float64, error) {
	if len(prices) < 2 {
		return nil, nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if !(prev > 0) || !(cur > 0) || math.IsInf(prev, 0) || math.IsInf(cur, 0) {
			return nil, fmt.Errorf("log return at %d: prices %v -> %v", i, prev, cur)
		}
		out = append(out, math.Log(cur/prev))
	}
	return out, nil
}

// Closes extracts close prices from candles.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// RealizedVolatility computes per-bar sample volatility over the trailing window,
// annualized by barsPerYear. Pass barsPerYear=1 for the per-bar value.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// BarsPerYearForTF returns the approximate number of bars per year for a timeframe.
func BarsPerYearForTF(tf string) float64 {
	switch tf {
	case "1s":
		return 365 * 24 * 60 * 60
	case "1m":
		return 365 * 24 * 60
	case "5m":
		return 365 * 24 * 12
	case "1h":
		return 365 * 24
	case "1d":
		return 252
	default:
		return 365 * 24 * 60
	}
}

// BarsPerTradingDay converts a timeframe into bars per trading day, used to
// express a bar horizon in days.
func BarsPerTradingDay(tf string) float64 {
	return BarsPerYearForTF(tf) / 252
}
