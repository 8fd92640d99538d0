package usecase

import (
	"sync"

	"RiskKernel/internal/domain/models"
	domsvc "RiskKernel/internal/domain/service"
)

// Session is one symbol's tracking state: its exclusively owned estimator, the
// trailing price window and the last decision. Steps on a session are serialized.
type Session struct {
	mu sync.Mutex

	symbol    string
	estimator domsvc.StateEstimator
	alpha     *AlphaHandle

	prices []float64
	cap    int
	steps  int
	lastTs int64
	last   *models.DecisionRecord
}

func newSession(symbol string, est domsvc.StateEstimator, alpha *AlphaHandle, lookback int) *Session {
	return &Session{
		symbol:    symbol,
		estimator: est,
		alpha:     alpha,
		cap:       lookback + 1,
		prices:    make([]float64, 0, lookback+1),
	}
}

func (s *Session) Symbol() string { return s.symbol }

// Alpha returns the handle readers use for this symbol's regime.
func (s *Session) Alpha() *AlphaHandle { return s.alpha }

// State returns the current kinematic estimate.
func (s *Session) State() models.StateEstimate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estimator.State()
}

// Steps returns the number of completed steps.
func (s *Session) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// Last returns a copy of the most recent decision.
func (s *Session) Last() (models.DecisionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return models.DecisionRecord{}, false
	}
	return *s.last, true
}

// push appends a price, keeping at most lookback+1 prices.
func (s *Session) push(price float64) {
	if len(s.prices) == s.cap {
		copy(s.prices, s.prices[1:])
		s.prices = s.prices[:len(s.prices)-1]
	}
	s.prices = append(s.prices, price)
}

// window returns a copy of the trailing prices.
func (s *Session) window() []float64 {
	return append([]float64(nil), s.prices...)
}

// reset drops all state; the next step re-bootstraps the estimator.
func (s *Session) reset() {
	s.estimator.Reset()
	s.prices = s.prices[:0]
	s.steps = 0
	s.lastTs = 0
	s.last = nil
}
