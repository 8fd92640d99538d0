package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"RiskKernel/internal/domain/models"
	domrepo "RiskKernel/internal/domain/repository"
	domsvc "RiskKernel/internal/domain/service"
	applogger "RiskKernel/pkg/logger"
)

// Bar is one replay step. Signal and Forecast are what the collaborators would
// have supplied at that time; nil means they had nothing.
type Bar struct {
	Timestamp int64
	Price     float64
	Signal    *float64
	Forecast  *models.ForecastQuantiles
}

// BacktestSummary aggregates a run.
type BacktestSummary struct {
	Symbol    string  `json:"symbol"`
	Steps     int     `json:"steps"`
	Rejected  int     `json:"rejected"`
	Approved  int     `json:"approved"`
	Vetoed    int     `json:"vetoed"`
	Zero      int     `json:"zero"`
	Unchecked int     `json:"unchecked"`
	Upstream  int     `json:"upstream"`
	MeanAlpha float64 `json:"mean_alpha"`
	MinAlpha  float64 `json:"min_alpha"`
	// GrossLogReturn is Σ final_t · ln(p_{t+1}/p_t).
	GrossLogReturn float64 `json:"gross_log_return"`
	MaxExposure    float64 `json:"max_exposure"`
}

// BacktestResult is the full decision trail plus its summary.
type BacktestResult struct {
	Decisions []models.DecisionRecord `json:"decisions"`
	Summary   BacktestSummary         `json:"summary"`
}

// Backtester replays bars through a fresh orchestrator, strictly in order.
type Backtester struct {
	tail       domsvc.TailEstimator
	classifier domsvc.RegimeClassifier
	sizer      domsvc.PositionSizer
	newEst     EstimatorFactory
	// fallback supplies forecasts for bars that carry none. Optional.
	fallback func() domsvc.ForecastProvider
	opts     []OrchestratorOption
	log      *applogger.Logger
}

func NewBacktester(
	tail domsvc.TailEstimator,
	classifier domsvc.RegimeClassifier,
	sizer domsvc.PositionSizer,
	newEst EstimatorFactory,
	fallback func() domsvc.ForecastProvider,
	log *applogger.Logger,
	opts ...OrchestratorOption,
) *Backtester {
	if log == nil {
		log = applogger.NewNop()
	}
	return &Backtester{
		tail:       tail,
		classifier: classifier,
		sizer:      sizer,
		newEst:     newEst,
		fallback:   fallback,
		opts:       opts,
		log:        log,
	}
}

// Run replays bars for one symbol. Rejected bars are counted and skipped.
func (b *Backtester) Run(ctx context.Context, symbol string, bars []Bar) (*BacktestResult, error) {
	feed := &barFeed{}
	if b.fallback != nil {
		feed.fallback = b.fallback()
	}
	step := 0
	opts := append([]OrchestratorOption{
		WithLogger(b.log),
		WithIDGenerator(func() string { return fmt.Sprintf("%s-%06d", symbol, step) }),
		WithClock(func() time.Time { return time.Unix(0, 0) }),
	}, b.opts...)
	orch := NewOrchestrator(b.tail, b.classifier, b.sizer, feed, feed, b.newEst, opts...)

	res := &BacktestResult{Decisions: make([]models.DecisionRecord, 0, len(bars))}
	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest %s at bar %d: %w", symbol, i, err)
		}
		step = i
		feed.set(symbol, bar)
		rec, err := orch.Step(ctx, models.Tick{Symbol: symbol, Timestamp: bar.Timestamp, Price: bar.Price})
		if err != nil {
			if errors.Is(err, models.ErrDataQuality) {
				res.Summary.Rejected++
				b.log.Warn("backtest bar rejected", applogger.String("symbol", symbol), applogger.Int("bar", i), applogger.Error(err))
				continue
			}
			return nil, fmt.Errorf("backtest %s at bar %d: %w", symbol, i, err)
		}
		res.Decisions = append(res.Decisions, rec)
	}
	res.Summary = summarize(symbol, res.Decisions, res.Summary.Rejected)
	b.log.Info("backtest finished",
		applogger.String("symbol", symbol),
		applogger.Int("steps", res.Summary.Steps),
		applogger.Int("approved", res.Summary.Approved),
		applogger.Int("vetoed", res.Summary.Vetoed),
		applogger.Float64("gross_log_return", res.Summary.GrossLogReturn),
	)
	return res, nil
}

// RunStored replays candles from the feature store, requesting signal on every bar.
func (b *Backtester) RunStored(ctx context.Context, store domrepo.FeatureStore, symbol string, from, to time.Time, tf domrepo.Timeframe, signal float64) (*BacktestResult, error) {
	cs, err := store.GetCandles(ctx, symbol, from, to, tf)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	return b.Run(ctx, symbol, BarsFromCandles(cs, signal))
}

// BarsFromCandles converts candles into bars that all carry the same candidate signal.
func BarsFromCandles(cs []models.Candle, signal float64) []Bar {
	out := make([]Bar, len(cs))
	for i, c := range cs {
		sig := signal
		out[i] = Bar{Timestamp: c.Bucket.Unix(), Price: c.Close, Signal: &sig}
	}
	return out
}

func summarize(symbol string, ds []models.DecisionRecord, rejected int) BacktestSummary {
	s := BacktestSummary{Symbol: symbol, Steps: len(ds), Rejected: rejected, MinAlpha: math.Inf(1)}
	var alphaSum float64
	var checked int
	for i, d := range ds {
		switch d.Outcome {
		case models.OutcomeApproved:
			s.Approved++
		case models.OutcomeVetoed:
			s.Vetoed++
		case models.OutcomeZero:
			s.Zero++
		case models.OutcomeUnchecked:
			s.Unchecked++
		case models.OutcomeUpstream:
			s.Upstream++
		}
		if d.VetoChecked {
			alphaSum += d.Alpha
			checked++
			s.MinAlpha = math.Min(s.MinAlpha, d.Alpha)
		}
		s.MaxExposure = math.Max(s.MaxExposure, math.Abs(d.FinalSize))
		if i+1 < len(ds) {
			s.GrossLogReturn += d.FinalSize * math.Log(ds[i+1].Price/d.Price)
		}
	}
	if checked > 0 {
		s.MeanAlpha = alphaSum / float64(checked)
	} else {
		s.MinAlpha = 0
	}
	return s
}

// barFeed plays the signal and forecast collaborators for the bar being replayed.
type barFeed struct {
	symbol   string
	bar      Bar
	fallback domsvc.ForecastProvider
}

func (f *barFeed) set(symbol string, bar Bar) {
	f.symbol = symbol
	f.bar = bar
}

func (f *barFeed) Candidate(_ context.Context, symbol string) (models.CandidateSignal, error) {
	if f.bar.Signal == nil {
		return models.CandidateSignal{}, fmt.Errorf("bar %d has no signal: %w", f.bar.Timestamp, models.ErrUpstreamUnavailable)
	}
	return models.CandidateSignal{Symbol: symbol, Timestamp: f.bar.Timestamp, Value: *f.bar.Signal, Source: "replay"}, nil
}

func (f *barFeed) Forecast(ctx context.Context, symbol string, price float64) (models.ForecastQuantiles, error) {
	if f.bar.Forecast != nil {
		return *f.bar.Forecast, nil
	}
	if f.fallback != nil {
		return f.fallback.Forecast(ctx, symbol, price)
	}
	return models.ForecastQuantiles{}, fmt.Errorf("bar %d has no forecast: %w", f.bar.Timestamp, models.ErrUpstreamUnavailable)
}

func (f *barFeed) Observe(symbol string, price float64) {
	if obs, ok := f.fallback.(domsvc.PriceObserver); ok {
		obs.Observe(symbol, price)
	}
}

var (
	_ domsvc.SignalProvider   = (*barFeed)(nil)
	_ domsvc.ForecastProvider = (*barFeed)(nil)
	_ domsvc.PriceObserver    = (*barFeed)(nil)
)
