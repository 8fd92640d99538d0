package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskKernel/internal/domain/models"
	domsvc "RiskKernel/internal/domain/service"
	"RiskKernel/internal/services/kinematics"
	"RiskKernel/internal/services/regime"
	"RiskKernel/internal/services/sizing"
	"RiskKernel/internal/services/tail"
)

// scriptedTail returns alpha from a per-call script; calls past the script get def.
type scriptedTail struct {
	calls  int
	script map[int]float64
	def    float64
	panics bool
}

func (s *scriptedTail) Estimate(series []float64) models.TailEstimate {
	defer func() { s.calls++ }()
	if s.panics {
		panic("estimator exploded")
	}
	if a, ok := s.script[s.calls]; ok {
		return models.TailEstimate{Alpha: a, SampleSize: len(series)}
	}
	return models.TailEstimate{Alpha: s.def, SampleSize: len(series)}
}

type fixedSignal struct {
	value float64
	err   error
}

func (f fixedSignal) Candidate(_ context.Context, symbol string) (models.CandidateSignal, error) {
	if f.err != nil {
		return models.CandidateSignal{}, f.err
	}
	return models.CandidateSignal{Symbol: symbol, Value: f.value}, nil
}

// relativeForecast quotes quantiles as multiples of the current price.
type relativeForecast struct {
	low, median, high, horizon float64
	err                        error
}

func (f relativeForecast) Forecast(_ context.Context, _ string, price float64) (models.ForecastQuantiles, error) {
	if f.err != nil {
		return models.ForecastQuantiles{}, f.err
	}
	return models.ForecastQuantiles{Low: price * f.low, Median: price * f.median, High: price * f.high, HorizonDays: f.horizon}, nil
}

var workedForecast = relativeForecast{low: 0.95, median: 1.05, high: 1.15, horizon: 10}

type recordingMetrics struct {
	decisions []models.DecisionRecord
	faults    map[string]int
}

func (m *recordingMetrics) ObserveDecision(rec *models.DecisionRecord, _ time.Duration) {
	m.decisions = append(m.decisions, *rec)
}

func (m *recordingMetrics) RecordFault(_, kind string) {
	if m.faults == nil {
		m.faults = map[string]int{}
	}
	m.faults[kind]++
}

func estimatorFactory() (domsvc.StateEstimator, error) {
	return kinematics.NewEstimator()
}

func kernel(t *testing.T) (*regime.Classifier, *sizing.Sizer) {
	t.Helper()
	c, err := regime.NewClassifier()
	require.NoError(t, err)
	s, err := sizing.NewSizer(c)
	require.NoError(t, err)
	return c, s
}

func newTestOrchestrator(t *testing.T, te domsvc.TailEstimator, sig domsvc.SignalProvider, fc domsvc.ForecastProvider, opts ...OrchestratorOption) *Orchestrator {
	t.Helper()
	c, s := kernel(t)
	n := 0
	opts = append([]OrchestratorOption{WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	})}, opts...)
	return NewOrchestrator(te, c, s, fc, sig, estimatorFactory, opts...)
}

func step(t *testing.T, o *Orchestrator, symbol string, ts int64, price float64) models.DecisionRecord {
	t.Helper()
	rec, err := o.Step(context.Background(), models.Tick{Symbol: symbol, Timestamp: ts, Price: price})
	require.NoError(t, err)
	return rec
}

func TestVetoThenRecoveryWithoutHysteresis(t *testing.T) {
	te := &scriptedTail{script: map[int]float64{10: 1.8, 15: 3.5}, def: 2.5}
	o := newTestOrchestrator(t, te, fixedSignal{value: 0.5}, workedForecast)
	_, sizer := kernel(t)

	var recs []models.DecisionRecord
	for i := 0; i < 20; i++ {
		recs = append(recs, step(t, o, "AAPL", int64(1000+i), 100))
	}

	veto := recs[10]
	assert.True(t, veto.Vetoed)
	assert.True(t, veto.VetoChecked)
	assert.Equal(t, 0.0, veto.FinalSize)
	assert.Equal(t, models.OutcomeVetoed, veto.Outcome)
	assert.Equal(t, models.RegimeCritical, veto.Regime)
	assert.Equal(t, "VETO: alpha=1.80<2.00", veto.Reason)
	assert.Equal(t, 0.5, veto.RawSignal)

	want, err := sizer.Size(models.ForecastQuantiles{Low: 95, Median: 105, High: 115, HorizonDays: 10}, 3.5, 100, 0.04)
	require.NoError(t, err)
	recovered := recs[15]
	assert.False(t, recovered.Vetoed)
	assert.Equal(t, models.OutcomeApproved, recovered.Outcome)
	assert.Equal(t, models.RegimeGaussian, recovered.Regime)
	assert.Equal(t, want.FinalFraction, recovered.SizerFraction)
	assert.Equal(t, want.FinalFraction, recovered.FinalSize)
	assert.Equal(t, "APPROVED: size=0.20, regime=Gaussian", recovered.Reason)

	// neighbours are sized on the LevyStable default, unaffected by the veto
	assert.Equal(t, recs[9].FinalSize, recs[11].FinalSize)
	assert.Equal(t, models.OutcomeApproved, recs[11].Outcome)
}

func TestCriticalBoundaryIsNotVetoedButSizesToZero(t *testing.T) {
	te := &scriptedTail{def: 2.0}
	o := newTestOrchestrator(t, te, fixedSignal{value: 0.5}, workedForecast)

	rec := step(t, o, "X", 1, 100)
	assert.False(t, rec.Vetoed)
	assert.Equal(t, 0.0, rec.FinalSize)
	assert.Equal(t, models.OutcomeZero, rec.Outcome)
	assert.Contains(t, rec.Reason, "ZERO:")
}

func TestDefaultAlphaBeforeHistory(t *testing.T) {
	o := newTestOrchestrator(t, tail.NewHillEstimator(), fixedSignal{value: 0.1}, workedForecast)

	rec := step(t, o, "BTC", 1, 100)
	assert.Equal(t, tail.DefaultAlpha, rec.Alpha)
	assert.Equal(t, models.RegimeLevyStable, rec.Regime)
	assert.Equal(t, 1.0, rec.Lambda)
	assert.True(t, rec.StateCold)
	assert.Equal(t, 0.1, rec.FinalSize)
	assert.Equal(t, "APPROVED: size=0.10, regime=LevyStable", rec.Reason)
}

func TestDirectionIsKeptAndMagnitudeCapped(t *testing.T) {
	te := &scriptedTail{def: 3.5}

	short := newTestOrchestrator(t, te, fixedSignal{value: -0.9}, workedForecast)
	rec := step(t, short, "X", 1, 100)
	assert.InDelta(t, -0.20, rec.FinalSize, 1e-12)
	assert.Equal(t, "APPROVED: size=0.20, regime=Gaussian", rec.Reason)

	small := newTestOrchestrator(t, te, fixedSignal{value: 0.05}, workedForecast)
	rec = step(t, small, "X", 1, 100)
	assert.Equal(t, 0.05, rec.FinalSize)

	flat := newTestOrchestrator(t, te, fixedSignal{value: 0}, workedForecast)
	rec = step(t, flat, "X", 1, 100)
	assert.Equal(t, 0.0, rec.FinalSize)
	assert.Equal(t, models.OutcomeZero, rec.Outcome)
}

func TestFailOpenWhenTailUnavailable(t *testing.T) {
	cases := map[string]*scriptedTail{
		"nan alpha": {def: math.NaN()},
		"panic":     {panics: true},
	}
	for name, te := range cases {
		t.Run(name, func(t *testing.T) {
			m := &recordingMetrics{}
			o := newTestOrchestrator(t, te, fixedSignal{value: 0.7}, workedForecast, WithMetrics(m))

			rec := step(t, o, "X", 1, 100)
			assert.False(t, rec.VetoChecked)
			assert.False(t, rec.Vetoed)
			assert.Equal(t, 0.7, rec.FinalSize)
			assert.Equal(t, models.OutcomeUnchecked, rec.Outcome)
			assert.Equal(t, models.RegimeUnknown, rec.Regime)
			assert.Contains(t, rec.Reason, "UNCHECKED:")
			assert.Equal(t, 1, m.faults["tail_unavailable"])

			_, ok := o.Board().Handle("X").Load()
			assert.False(t, ok)
		})
	}
}

func TestUpstreamUnavailableIsZeroSize(t *testing.T) {
	te := &scriptedTail{def: 3.5}
	unavailable := fmt.Errorf("gone: %w", models.ErrUpstreamUnavailable)

	o := newTestOrchestrator(t, te, fixedSignal{err: unavailable}, workedForecast)
	rec := step(t, o, "X", 1, 100)
	assert.Equal(t, 0.0, rec.FinalSize)
	assert.Equal(t, models.OutcomeUpstream, rec.Outcome)
	assert.Equal(t, "UPSTREAM: signal unavailable", rec.Reason)

	o = newTestOrchestrator(t, te, fixedSignal{value: 0.5}, relativeForecast{err: unavailable})
	rec = step(t, o, "X", 1, 100)
	assert.Equal(t, 0.0, rec.FinalSize)
	assert.Equal(t, 0.5, rec.RawSignal)
	assert.Equal(t, models.OutcomeUpstream, rec.Outcome)
	assert.Equal(t, "UPSTREAM: forecast unavailable", rec.Reason)
}

func TestVetoDoesNotNeedForecast(t *testing.T) {
	te := &scriptedTail{def: 1.2}
	o := newTestOrchestrator(t, te, fixedSignal{value: 0.5}, relativeForecast{err: models.ErrUpstreamUnavailable})
	rec := step(t, o, "X", 1, 100)
	assert.Equal(t, models.OutcomeVetoed, rec.Outcome)
	assert.Equal(t, "VETO: alpha=1.20<2.00", rec.Reason)
}

func TestCriticalVetoSurvivesMissingSignal(t *testing.T) {
	te := &scriptedTail{def: 1.5}
	m := &recordingMetrics{}
	unavailable := fmt.Errorf("gone: %w", models.ErrUpstreamUnavailable)
	o := newTestOrchestrator(t, te, fixedSignal{err: unavailable}, workedForecast, WithMetrics(m))

	rec := step(t, o, "X", 1, 100)
	assert.Equal(t, models.RegimeCritical, rec.Regime)
	assert.True(t, rec.Vetoed)
	assert.Equal(t, models.OutcomeVetoed, rec.Outcome)
	assert.Equal(t, 0.0, rec.FinalSize)
	assert.Equal(t, 0.0, rec.RawSignal)
	assert.Equal(t, models.VetoDecision{Vetoed: true, Reason: "VETO: alpha=1.50<2.00"}, rec.Veto())
	assert.Zero(t, m.faults["signal_unavailable"])
}

func TestRejectedObservationLeavesSessionUnchanged(t *testing.T) {
	m := &recordingMetrics{}
	o := newTestOrchestrator(t, &scriptedTail{def: 3}, fixedSignal{value: 0.1}, workedForecast, WithMetrics(m))
	for i := 0; i < 5; i++ {
		step(t, o, "X", int64(10+i), 100+float64(i))
	}
	s, ok := o.Session("X")
	require.True(t, ok)
	before := s.State()

	for _, bad := range []float64{math.NaN(), math.Inf(1), 0, -5} {
		_, err := o.Step(context.Background(), models.Tick{Symbol: "X", Timestamp: 20, Price: bad})
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrDataQuality))
	}
	_, err := o.Step(context.Background(), models.Tick{Symbol: "X", Timestamp: 3, Price: 101})
	assert.True(t, errors.Is(err, models.ErrDataQuality))

	assert.Equal(t, before, s.State())
	assert.Equal(t, 5, s.Steps())
	assert.Len(t, m.decisions, 5)
	assert.Equal(t, 4, m.faults["data_quality"])
	assert.Equal(t, 1, m.faults["out_of_order"])
}

func TestDeterministicReplay(t *testing.T) {
	prices := make([]float64, 250)
	p := 100.0
	for i := range prices {
		p *= math.Exp(0.01*math.Sin(float64(i)*0.7) + 0.003*math.Cos(float64(i*i)))
		prices[i] = p
	}
	run := func() []models.DecisionRecord {
		o := newTestOrchestrator(t, tail.NewHillEstimator(), fixedSignal{value: 0.3}, workedForecast)
		out := make([]models.DecisionRecord, 0, len(prices))
		for i, price := range prices {
			out = append(out, step(t, o, "ETH", int64(i+1), price))
		}
		return out
	}
	first, second := run(), run()
	assert.Equal(t, first, second)
	assert.Equal(t, len(prices)-1, first[len(first)-1].Step)
}

func TestAlphaBoardTracksSessions(t *testing.T) {
	te := &scriptedTail{def: 2.6}
	o := newTestOrchestrator(t, te, fixedSignal{value: 0.2}, workedForecast)

	h := o.Board().Handle("SOL")
	_, ok := h.Load()
	assert.False(t, ok)

	step(t, o, "SOL", 1, 20)
	a, ok := h.Load()
	require.True(t, ok)
	assert.Equal(t, 2.6, a.Alpha)
	assert.Equal(t, models.RegimeLevyStable, a.Regime)

	s, _ := o.Session("SOL")
	assert.Same(t, h, s.Alpha())
	assert.Equal(t, []string{"SOL"}, o.Board().Symbols())
}

func TestLookbackBoundsTailWindow(t *testing.T) {
	var sizes []int
	te := tailFunc(func(series []float64) models.TailEstimate {
		sizes = append(sizes, len(series))
		return models.TailEstimate{Alpha: 3}
	})
	o := newTestOrchestrator(t, te, fixedSignal{value: 0.1}, workedForecast, WithLookback(5))
	for i := 0; i < 8; i++ {
		step(t, o, "X", int64(i+1), 100+float64(i))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 5, 5}, sizes)
}

func TestResetAndWarm(t *testing.T) {
	o := newTestOrchestrator(t, &scriptedTail{def: 3}, fixedSignal{value: 0.1}, workedForecast)
	used, err := o.Warm("X", []float64{100, 101, 0, 102.5})
	require.NoError(t, err)
	assert.Equal(t, 3, used)

	s, _ := o.Session("X")
	st := s.State()
	assert.False(t, st.Cold)
	assert.InDelta(t, 1.25, st.Velocity, 1e-12)

	rec := step(t, o, "X", 1, 103)
	assert.False(t, rec.StateCold)
	assert.Equal(t, 0, rec.Step)

	o.Reset("X")
	assert.True(t, s.State().Cold)
	_, ok := s.Last()
	assert.False(t, ok)
}

type tailFunc func([]float64) models.TailEstimate

func (f tailFunc) Estimate(series []float64) models.TailEstimate { return f(series) }
