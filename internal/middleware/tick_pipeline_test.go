package middleware

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskKernel/internal/domain/models"
)

type countingMetrics struct {
	errors map[string]int
	prices map[string]float64
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: map[string]int{}, prices: map[string]float64{}}
}

func (m *countingMetrics) RecordMessageSent(backend, symbol string) {}
func (m *countingMetrics) RecordError(kind string) { m.errors[kind]++ }
func (m *countingMetrics) RecordLastPrice(symbol string, price float64) { m.prices[symbol] = price }
func (m *countingMetrics) RecordLatency(op string, seconds float64) {}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestPipelineForwardsValidTicks(t *testing.T) {
	var got []models.Tick
	m := newCountingMetrics()
	p := NewTickPipeline(ProcFunc(func(_ context.Context, tk *models.Tick) error {
		got = append(got, *tk)
		return nil
	}), m, WithMaxRPS(0))

	require.NoError(t, p.Process(context.Background(), &models.Tick{Symbol: "A", Timestamp: 1, Price: 10}))
	require.NoError(t, p.Process(context.Background(), &models.Tick{Symbol: "A", Timestamp: 1, Price: 11}))
	require.NoError(t, p.Process(context.Background(), &models.Tick{Symbol: "A", Timestamp: 2, Price: 12}))
	assert.Len(t, got, 3)
	assert.Equal(t, 12.0, m.prices["A"])
}

func TestPipelineRejectsOutOfOrder(t *testing.T) {
	m := newCountingMetrics()
	p := NewTickPipeline(ProcFunc(func(context.Context, *models.Tick) error { return nil }), m, WithMaxRPS(0))

	require.NoError(t, p.Process(context.Background(), &models.Tick{Symbol: "A", Timestamp: 10, Price: 1}))
	err := p.Process(context.Background(), &models.Tick{Symbol: "A", Timestamp: 9, Price: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDataQuality))
	assert.Equal(t, 1, m.errors["pipeline_out_of_order"])

	// other symbols keep their own order
	require.NoError(t, p.Process(context.Background(), &models.Tick{Symbol: "B", Timestamp: 5, Price: 1}))
}

func TestPipelineValidates(t *testing.T) {
	m := newCountingMetrics()
	p := NewTickPipeline(ProcFunc(func(context.Context, *models.Tick) error { return nil }), m)

	bad := []*models.Tick{
		nil,
		{Symbol: "", Timestamp: 1, Price: 1},
		{Symbol: "A", Timestamp: 0, Price: 1},
		{Symbol: "A", Timestamp: 1, Price: 0},
		{Symbol: "A", Timestamp: 1, Price: math.NaN()},
		{Symbol: "A", Timestamp: 1, Price: math.Inf(1)},
	}
	for _, tk := range bad {
		assert.Error(t, p.Process(context.Background(), tk))
	}
	assert.Equal(t, len(bad), m.errors["pipeline_validate"])
}

func TestPipelineThrottles(t *testing.T) {
	calls := 0
	m := newCountingMetrics()
	p := NewTickPipeline(ProcFunc(func(context.Context, *models.Tick) error {
		calls++
		return nil
	}), m, WithMaxRPS(2))

	for _, ts := range []int64{1, 1, 1, 2, 2} {
		require.NoError(t, p.Process(context.Background(), &models.Tick{Symbol: "A", Timestamp: ts, Price: 1}))
	}
	// B has its own budget.
	require.NoError(t, p.Process(context.Background(), &models.Tick{Symbol: "B", Timestamp: 1, Price: 1}))

	assert.Equal(t, 5, calls)
	assert.Equal(t, 1, m.errors["pipeline_throttle"])
}

func TestPipelineThrottleIgnoresArrivalSpeed(t *testing.T) {
	forwarded := func(gap time.Duration) []int64 {
		c := &clock{t: time.Unix(1_700_000_000, 0)}
		var got []int64
		p := NewTickPipeline(ProcFunc(func(_ context.Context, tk *models.Tick) error {
			got = append(got, tk.Timestamp)
			c.t = c.t.Add(gap)
			return nil
		}), newCountingMetrics(), WithMaxRPS(50), WithNow(c.now))
		for i := 0; i < 100; i++ {
			require.NoError(t, p.Process(context.Background(), &models.Tick{Symbol: "A", Timestamp: int64(1000 + i), Price: 100}))
		}
		return got
	}

	live := forwarded(time.Second)
	catchUp := forwarded(time.Millisecond)
	assert.Len(t, live, 100)
	assert.Equal(t, live, catchUp)
}

func TestPipelineTransform(t *testing.T) {
	var got models.Tick
	p := NewTickPipeline(ProcFunc(func(_ context.Context, tk *models.Tick) error {
		got = *tk
		return nil
	}), newCountingMetrics(), WithMaxRPS(0), WithTransform(func(tk *models.Tick) *models.Tick {
		if tk.Timestamp > 1e11 {
			tk.Timestamp /= 1000
		}
		return tk
	}))
	require.NoError(t, p.Process(context.Background(), &models.Tick{Symbol: "A", Timestamp: 1700000000123, Price: 1}))
	assert.Equal(t, int64(1700000000), got.Timestamp)
}

func TestPipelineDownstreamError(t *testing.T) {
	m := newCountingMetrics()
	boom := errors.New("boom")
	p := NewTickPipeline(ProcFunc(func(context.Context, *models.Tick) error { return boom }), m, WithMaxRPS(0))
	err := p.Process(context.Background(), &models.Tick{Symbol: "A", Timestamp: 1, Price: 1})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, m.errors["pipeline_process"])
}
