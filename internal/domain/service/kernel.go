package service

import (
	"context"
	"time"

	"RiskKernel/internal/domain/models"
)

// StateEstimator filters a price stream into kinematic state. Implementations are
// stateful and not safe for concurrent use; callers confine one instance to one symbol stream.
type StateEstimator interface {
	Update(observation float64) (models.StateEstimate, error)
	State() models.StateEstimate
	Reset()
}

// TailEstimator estimates the tail exponent of a return window.
type TailEstimator interface {
	Estimate(series []float64) models.TailEstimate
}

// RegimeClassifier maps a tail exponent to a regime and its scaling factors.
type RegimeClassifier interface {
	Classify(alpha float64) models.RegimeAssessment
	Lambda(alpha float64) float64
	CriticalAlpha() float64
}

// PositionSizer turns a forecast and tail exponent into a bounded capital fraction.
type PositionSizer interface {
	Size(forecast models.ForecastQuantiles, alpha, currentPrice, riskFreeRateAnnual float64) (models.SizingDecision, error)
}

// ForecastProvider supplies forecast quantiles for a symbol at decision time.
type ForecastProvider interface {
	Forecast(ctx context.Context, symbol string, price float64) (models.ForecastQuantiles, error)
}

// SignalProvider supplies the strategy's raw candidate signal for a symbol.
type SignalProvider interface {
	Candidate(ctx context.Context, symbol string) (models.CandidateSignal, error)
}

// PriceObserver is implemented by collaborators that learn from the price stream
// the orchestrator consumes.
type PriceObserver interface {
	Observe(symbol string, price float64)
}

// DecisionMetrics receives per-step observations from the orchestrator.
type DecisionMetrics interface {
	ObserveDecision(rec *models.DecisionRecord, elapsed time.Duration)
	RecordFault(symbol, kind string)
}
