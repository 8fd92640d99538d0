package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"RiskKernel/internal/domain/models"
	domsvc "RiskKernel/internal/domain/service"
	"RiskKernel/internal/service/cache"
)

// SignalBoard holds the latest candidate signal per symbol as delivered by the
// strategy collaborator. A signal older than its TTL is treated as missing.
type SignalBoard struct {
	cache *cache.TTLCache
	ttl   time.Duration
}

// NewSignalBoard creates a board. ttl <= 0 keeps signals until replaced.
func NewSignalBoard(ttl time.Duration, opts ...cache.TTLOption) *SignalBoard {
	return &SignalBoard{cache: cache.NewTTLCache(opts...), ttl: ttl}
}

// Put stores sig as the symbol's current candidate. Older signals never replace newer ones.
func (b *SignalBoard) Put(sig models.CandidateSignal) error {
	if sig.Symbol == "" {
		return fmt.Errorf("signal without symbol")
	}
	if math.IsNaN(sig.Value) || math.IsInf(sig.Value, 0) {
		return &models.DataQualityError{Symbol: sig.Symbol, Value: sig.Value, Reason: "non-finite signal"}
	}
	b.cache.Update(sig.Symbol, b.ttl, func(cur any, ok bool) (any, bool) {
		if ok && cur.(models.CandidateSignal).Timestamp > sig.Timestamp {
			return nil, false
		}
		return sig, true
	})
	return nil
}

func (b *SignalBoard) Candidate(_ context.Context, symbol string) (models.CandidateSignal, error) {
	v, ok := b.cache.Get(symbol)
	if !ok {
		return models.CandidateSignal{}, fmt.Errorf("no live signal for %s: %w", symbol, models.ErrUpstreamUnavailable)
	}
	return v.(models.CandidateSignal), nil
}

// Sweep drops expired signals and returns how many went.
func (b *SignalBoard) Sweep() int { return b.cache.Sweep() }

var _ domsvc.SignalProvider = (*SignalBoard)(nil)
