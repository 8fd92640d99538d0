// Package regime maps a tail exponent to a discrete risk regime.
package regime

import (
	"fmt"
	"math"

	"RiskKernel/internal/domain/models"
	domsvc "RiskKernel/internal/domain/service"
)

const (
	DefaultCriticalAlpha = 2.0
	DefaultGaussianAlpha = 3.0

	levyLeverageCap = 0.5
)

// Classifier is a pure decision table. It holds only immutable boundaries and is
// safe for concurrent use.
type Classifier struct {
	critical float64
	gaussian float64
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithCriticalAlpha sets the boundary at or below which the regime is Critical.
func WithCriticalAlpha(a float64) Option {
	return func(c *Classifier) {
		c.critical = a
	}
}

// WithGaussianAlpha sets the boundary above which the regime is Gaussian.
func WithGaussianAlpha(a float64) Option {
	return func(c *Classifier) {
		c.gaussian = a
	}
}

// NewClassifier creates a classifier. Boundaries default to 2.0 and 3.0.
func NewClassifier(opts ...Option) (*Classifier, error) {
	c := &Classifier{critical: DefaultCriticalAlpha, gaussian: DefaultGaussianAlpha}
	for _, opt := range opts {
		opt(c)
	}
	if math.IsNaN(c.critical) || math.IsNaN(c.gaussian) || !(c.gaussian > c.critical) {
		return nil, fmt.Errorf("invalid alpha boundaries: critical=%v gaussian=%v", c.critical, c.gaussian)
	}
	return c, nil
}

// CriticalAlpha returns the veto boundary.
func (c *Classifier) CriticalAlpha() float64 { return c.critical }

// GaussianAlpha returns the full-size boundary.
func (c *Classifier) GaussianAlpha() float64 { return c.gaussian }

// Lambda is the sizing scale: 0 at or below critical, 1 at or above gaussian,
// linear in between. NaN maps to 0.
func (c *Classifier) Lambda(alpha float64) float64 {
	switch {
	case math.IsNaN(alpha) || alpha <= c.critical:
		return 0
	case alpha >= c.gaussian:
		return 1
	default:
		return (alpha - c.critical) / (c.gaussian - c.critical)
	}
}

// Classify returns the regime, scale and leverage cap for alpha.
func (c *Classifier) Classify(alpha float64) models.RegimeAssessment {
	a := models.RegimeAssessment{Alpha: alpha, Lambda: c.Lambda(alpha)}
	switch {
	case math.IsNaN(alpha) || alpha <= c.critical:
		a.Regime = models.RegimeCritical
		a.LeverageCap = 0
	case alpha <= c.gaussian:
		a.Regime = models.RegimeLevyStable
		a.LeverageCap = levyLeverageCap
	default:
		a.Regime = models.RegimeGaussian
		a.LeverageCap = 1
	}
	return a
}

var _ domsvc.RegimeClassifier = (*Classifier)(nil)
