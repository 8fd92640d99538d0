package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDataQuality marks an observation the kernel refused to consume.
	ErrDataQuality = errors.New("data quality fault")
	// ErrNumericalFault marks a computation whose result was not finite.
	ErrNumericalFault = errors.New("numerical fault")
	// ErrUpstreamUnavailable marks a missing collaborator input (forecast or signal).
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrContractViolation marks caller input outside the documented domain.
	ErrContractViolation = errors.New("contract violation")
	// ErrTailUnavailable marks a window that could not be evaluated for a tail estimate.
	ErrTailUnavailable = errors.New("tail estimate unavailable")
)

// DataQualityError describes a rejected observation.
type DataQualityError struct {
	Symbol string
	Value  float64
	Reason string
}

func (e *DataQualityError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("%s: %s (value=%v)", ErrDataQuality, e.Reason, e.Value)
	}
	return fmt.Sprintf("%s: %s %s (value=%v)", ErrDataQuality, e.Symbol, e.Reason, e.Value)
}

func (e *DataQualityError) Unwrap() error { return ErrDataQuality }
