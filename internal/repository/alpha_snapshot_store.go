package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"RiskKernel/internal/domain/models"
	domrepo "RiskKernel/internal/domain/repository"
	"RiskKernel/internal/service/cache"
)

// AlphaSnapshotStore shares the latest regime assessment per symbol through a
// bytes cache (Redis in production).
type AlphaSnapshotStore struct {
	cache  cache.BytesCache
	prefix string
	ttl    time.Duration
}

func NewAlphaSnapshotStore(c cache.BytesCache, prefix string, ttl time.Duration) *AlphaSnapshotStore {
	if prefix == "" {
		prefix = "riskkernel:alpha:"
	}
	return &AlphaSnapshotStore{cache: c, prefix: prefix, ttl: ttl}
}

type alphaSnapshot struct {
	models.RegimeAssessment
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *AlphaSnapshotStore) Put(_ context.Context, symbol string, a models.RegimeAssessment) error {
	b, err := json.Marshal(alphaSnapshot{RegimeAssessment: a, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode alpha snapshot: %w", err)
	}
	return s.cache.SetBytes(s.prefix+symbol, b, s.ttl)
}

func (s *AlphaSnapshotStore) Get(_ context.Context, symbol string) (models.RegimeAssessment, bool, error) {
	b, ok, err := s.cache.GetBytes(s.prefix + symbol)
	if err != nil || !ok {
		return models.RegimeAssessment{}, false, err
	}
	var snap alphaSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return models.RegimeAssessment{}, false, fmt.Errorf("decode alpha snapshot %s: %w", symbol, err)
	}
	return snap.RegimeAssessment, true, nil
}

var _ domrepo.AlphaSnapshotStore = (*AlphaSnapshotStore)(nil)
