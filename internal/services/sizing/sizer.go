// Package sizing converts a forecast and tail regime into a capped capital fraction.
package sizing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"RiskKernel/internal/domain/models"
	domsvc "RiskKernel/internal/domain/service"
)

const (
	DefaultConfidence   = 0.95
	DefaultPositionCap  = 0.20
	DefaultRiskFreeRate = 0.04
	TradingDaysPerYear  = 252.0

	// quantileSpread is the 10th-to-90th percentile width of a unit normal (2 × 1.28).
	quantileSpread = 2.56
)

// Sizer is an expected-shortfall position sizer. It holds only immutable
// configuration and is safe for concurrent use.
type Sizer struct {
	classifier domsvc.RegimeClassifier
	confidence float64
	cap        float64
	// esFactor is φ(z_c)/(1−c), the normal ES per unit σ.
	esFactor float64
}

// Option configures a Sizer.
type Option func(*Sizer)

// WithConfidence sets the expected-shortfall confidence level c.
func WithConfidence(c float64) Option {
	return func(s *Sizer) {
		s.confidence = c
	}
}

// WithPositionCap sets the hard ceiling on the returned fraction.
func WithPositionCap(limit float64) Option {
	return func(s *Sizer) {
		s.cap = limit
	}
}

// NewSizer creates a sizer that takes its scaling factor from classifier.
func NewSizer(classifier domsvc.RegimeClassifier, opts ...Option) (*Sizer, error) {
	if classifier == nil {
		return nil, fmt.Errorf("sizer: classifier is required")
	}
	s := &Sizer{classifier: classifier, confidence: DefaultConfidence, cap: DefaultPositionCap}
	for _, opt := range opts {
		opt(s)
	}
	if !(s.confidence > 0 && s.confidence < 1) {
		return nil, fmt.Errorf("sizer: confidence must be in (0,1), got %v", s.confidence)
	}
	if !(s.cap > 0 && s.cap <= 1) {
		return nil, fmt.Errorf("sizer: position cap must be in (0,1], got %v", s.cap)
	}
	z := distuv.UnitNormal.Quantile(s.confidence)
	s.esFactor = distuv.UnitNormal.Prob(z) / (1 - s.confidence)
	return s, nil
}

// Cap returns the configured position ceiling.
func (s *Sizer) Cap() float64 { return s.cap }

// Confidence returns the expected-shortfall confidence level.
func (s *Sizer) Confidence() float64 { return s.confidence }

// Size returns the capital fraction for a forecast. FinalFraction is always in [0, cap].
// Inputs outside the documented domain return ErrContractViolation and a zero decision.
func (s *Sizer) Size(f models.ForecastQuantiles, alpha, price, riskFreeRateAnnual float64) (models.SizingDecision, error) {
	if err := checkContract(f, price, riskFreeRateAnnual); err != nil {
		return models.SizingDecision{}, err
	}

	d := models.SizingDecision{Lambda: s.classifier.Lambda(alpha)}
	if d.Lambda <= 0 {
		return d, nil
	}

	d.ExpectedReturn = (f.Median - price) / price
	d.Sigma = (f.High - f.Low) / quantileSpread
	d.ExpectedShortfall = d.Sigma * s.esFactor / price

	rf := riskFreeRateAnnual * (f.HorizonDays / TradingDaysPerYear)
	d.ExcessReturn = d.ExpectedReturn - rf

	if d.ExcessReturn <= 0 || d.ExpectedShortfall <= 0 {
		return d, nil
	}

	// Extreme but finite quantiles can overflow ES and excess to +Inf; no edge then.
	raw := d.Lambda * (d.ExcessReturn / d.ExpectedShortfall)
	if !finite(raw) {
		return models.SizingDecision{Lambda: d.Lambda}, nil
	}
	d.RawFraction = raw
	d.FinalFraction = math.Max(0, math.Min(d.RawFraction, s.cap))
	return d, nil
}

func checkContract(f models.ForecastQuantiles, price, rf float64) error {
	switch {
	case !finite(price) || price <= 0:
		return fmt.Errorf("sizer: price %v: %w", price, models.ErrContractViolation)
	case !finite(f.HorizonDays) || f.HorizonDays < 0:
		return fmt.Errorf("sizer: horizon %v: %w", f.HorizonDays, models.ErrContractViolation)
	case !finite(f.Low) || !finite(f.Median) || !finite(f.High):
		return fmt.Errorf("sizer: non-finite forecast %+v: %w", f, models.ErrContractViolation)
	case !finite(rf):
		return fmt.Errorf("sizer: risk-free rate %v: %w", rf, models.ErrContractViolation)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

var _ domsvc.PositionSizer = (*Sizer)(nil)
