package repository

import (
	"context"
	"time"

	"RiskKernel/internal/domain/models"
)

// FeatureStore reads stored candles for replay and warm-up. Candles come back
// oldest first.
type FeatureStore interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}
