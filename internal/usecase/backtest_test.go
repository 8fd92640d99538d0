package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskKernel/internal/domain/models"
	domrepo "RiskKernel/internal/domain/repository"
	domsvc "RiskKernel/internal/domain/service"
	"RiskKernel/internal/services/forecast"
	"RiskKernel/internal/services/tail"
	applogger "RiskKernel/pkg/logger"
)

func syntheticBars(n int, withForecast bool) []Bar {
	bars := make([]Bar, n)
	p := 100.0
	for i := range bars {
		p *= math.Exp(0.002 + 0.01*math.Sin(float64(i)*1.3))
		sig := 0.5
		bars[i] = Bar{Timestamp: int64(1700000000 + 60*i), Price: p, Signal: &sig}
		if withForecast {
			bars[i].Forecast = &models.ForecastQuantiles{Low: p * 0.95, Median: p * 1.05, High: p * 1.15, HorizonDays: 10}
		}
	}
	return bars
}

func newTestBacktester(t *testing.T, te domsvc.TailEstimator, fallback func() domsvc.ForecastProvider) *Backtester {
	t.Helper()
	c, s := kernel(t)
	return NewBacktester(te, c, s, estimatorFactory, fallback, nil)
}

func TestBacktestIsDeterministic(t *testing.T) {
	bt := newTestBacktester(t, tail.NewHillEstimator(), nil)
	bars := syntheticBars(300, true)

	a, err := bt.Run(context.Background(), "AAPL", bars)
	require.NoError(t, err)
	b, err := bt.Run(context.Background(), "AAPL", bars)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a.Decisions, 300)
	assert.Equal(t, "AAPL-000000", a.Decisions[0].ID)
	assert.Equal(t, "AAPL-000299", a.Decisions[299].ID)
	for i, d := range a.Decisions {
		assert.Equal(t, i, d.Step)
		assert.LessOrEqual(t, math.Abs(d.FinalSize), 0.5)
	}
}

func TestBacktestSummaryCounts(t *testing.T) {
	te := &scriptedTail{script: map[int]float64{3: 1.5, 4: 1.9}, def: 3.5}
	bt := newTestBacktester(t, te, nil)
	bars := syntheticBars(10, true)
	bars[6].Price = 0
	bars[8].Signal = nil

	res, err := bt.Run(context.Background(), "X", bars)
	require.NoError(t, err)
	s := res.Summary
	assert.Equal(t, 9, s.Steps)
	assert.Equal(t, 1, s.Rejected)
	assert.Equal(t, 2, s.Vetoed)
	assert.Equal(t, 1, s.Upstream)
	assert.Equal(t, 6, s.Approved)
	assert.Equal(t, s.Steps, s.Approved+s.Vetoed+s.Zero+s.Unchecked+s.Upstream)
	assert.Equal(t, 1.5, s.MinAlpha)
	assert.InDelta(t, 0.2, s.MaxExposure, 1e-12)
}

func TestBacktestFallbackForecaster(t *testing.T) {
	bt := newTestBacktester(t, &scriptedTail{def: 3.5}, func() domsvc.ForecastProvider {
		f, err := forecast.NewBandForecaster(forecast.BandConfig{Window: 20, HorizonDays: 5})
		require.NoError(t, err)
		return f
	})
	res, err := bt.Run(context.Background(), "X", syntheticBars(60, false))
	require.NoError(t, err)

	for _, d := range res.Decisions[:20] {
		assert.Equal(t, models.OutcomeUpstream, d.Outcome)
	}
	assert.NotEqual(t, models.OutcomeUpstream, res.Decisions[59].Outcome)
}

func TestBacktestHonoursCancellation(t *testing.T) {
	bt := newTestBacktester(t, tail.NewHillEstimator(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bt.Run(ctx, "X", syntheticBars(5, true))
	assert.ErrorIs(t, err, context.Canceled)
}

type memFeatureStore struct {
	candles []models.Candle
}

func (m *memFeatureStore) GetCandles(_ context.Context, symbol string, from, to time.Time, _ domrepo.Timeframe) ([]models.Candle, error) {
	var out []models.Candle
	for _, c := range m.candles {
		if c.Symbol == symbol && !c.Bucket.Before(from) && !c.Bucket.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memFeatureStore) GetLatestNCandles(_ context.Context, symbol string, n int, _ domrepo.Timeframe) ([]models.Candle, error) {
	var out []models.Candle
	for _, c := range m.candles {
		if c.Symbol == symbol {
			out = append(out, c)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func storedCandles(symbol string, n int) []models.Candle {
	out := make([]models.Candle, n)
	base := time.Unix(1700000000, 0).UTC()
	for i := range out {
		out[i] = models.Candle{Symbol: symbol, Bucket: base.Add(time.Duration(i) * time.Minute), Close: 100 + float64(i%7)}
	}
	return out
}

func TestRunStored(t *testing.T) {
	store := &memFeatureStore{candles: storedCandles("BTC", 30)}
	bt := newTestBacktester(t, &scriptedTail{def: 3.5}, nil)

	from := time.Unix(1700000000, 0)
	res, err := bt.RunStored(context.Background(), store, "BTC", from, from.Add(9*time.Minute), domrepo.TF1m, -1)
	require.NoError(t, err)
	assert.Len(t, res.Decisions, 10)
	for _, d := range res.Decisions {
		assert.Equal(t, -1.0, d.RawSignal)
		assert.Equal(t, models.OutcomeUpstream, d.Outcome)
	}
}

func TestWarmUpFromStore(t *testing.T) {
	store := &memFeatureStore{candles: storedCandles("ETH", 50)}
	o := newTestOrchestrator(t, &scriptedTail{def: 3}, fixedSignal{value: 0.1}, workedForecast, WithLookback(20))
	WarmUp(context.Background(), o, store, []string{"ETH"}, 30, domrepo.TF1m, applogger.NewNop())

	s, ok := o.Session("ETH")
	require.True(t, ok)
	assert.False(t, s.State().Cold)
	assert.Len(t, s.window(), 21)
	assert.Equal(t, 0, s.Steps())
}
