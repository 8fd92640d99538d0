package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"RiskKernel/internal/domain/models"
	domsvc "RiskKernel/internal/domain/service"
	"RiskKernel/internal/services/features"
	applogger "RiskKernel/pkg/logger"
)

const DefaultLookback = 100

// EstimatorFactory builds a fresh estimator for a new symbol session.
type EstimatorFactory func() (domsvc.StateEstimator, error)

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLookback sets the maximum number of returns fed to the tail estimator.
func WithLookback(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.lookback = n
		}
	}
}

// WithRiskFreeRate sets the annual risk-free rate passed to the sizer.
func WithRiskFreeRate(rf float64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.riskFree = rf
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m domsvc.DecisionMetrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *applogger.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithAlphaBoard shares an existing board instead of creating a private one.
func WithAlphaBoard(b *AlphaBoard) OrchestratorOption {
	return func(o *Orchestrator) {
		if b != nil {
			o.board = b
		}
	}
}

// WithIDGenerator replaces the decision ID source.
func WithIDGenerator(fn func() string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.newID = fn
	}
}

// WithClock replaces the clock used when a tick carries no timestamp.
func WithClock(fn func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = fn
	}
}

// Orchestrator runs one decision step per price for each symbol: filter the price,
// estimate the tail over a trailing window, gate and size the candidate signal, and
// emit an audit record.
type Orchestrator struct {
	tail       domsvc.TailEstimator
	classifier domsvc.RegimeClassifier
	sizer      domsvc.PositionSizer
	forecasts  domsvc.ForecastProvider
	signals    domsvc.SignalProvider
	newEst     EstimatorFactory

	board    *AlphaBoard
	metrics  domsvc.DecisionMetrics
	log      *applogger.Logger
	lookback int
	riskFree float64
	newID    func() string
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewOrchestrator(
	tail domsvc.TailEstimator,
	classifier domsvc.RegimeClassifier,
	sizer domsvc.PositionSizer,
	forecasts domsvc.ForecastProvider,
	signals domsvc.SignalProvider,
	newEst EstimatorFactory,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		tail:       tail,
		classifier: classifier,
		sizer:      sizer,
		forecasts:  forecasts,
		signals:    signals,
		newEst:     newEst,
		log:        applogger.NewNop(),
		lookback:   DefaultLookback,
		riskFree:   0.04,
		newID:      func() string { return uuid.NewString() },
		now:        time.Now,
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.board == nil {
		o.board = NewAlphaBoard(nil)
	}
	return o
}

// Board returns the per-symbol alpha board.
func (o *Orchestrator) Board() *AlphaBoard { return o.board }

// Session returns the session for symbol, if one exists.
func (o *Orchestrator) Session(symbol string) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[symbol]
	return s, ok
}

// Reset reinitializes a symbol's session.
func (o *Orchestrator) Reset(symbol string) {
	if s, ok := o.Session(symbol); ok {
		s.mu.Lock()
		s.reset()
		s.mu.Unlock()
	}
}

// Warm feeds historical prices into a symbol's estimator and window without
// emitting decisions. Invalid prices are skipped; it returns how many were used.
func (o *Orchestrator) Warm(symbol string, prices []float64) (int, error) {
	s, err := o.session(symbol)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	used := 0
	for _, p := range prices {
		if !(p > 0) {
			continue
		}
		if _, err := s.estimator.Update(p); err != nil {
			continue
		}
		s.push(p)
		if obs, ok := o.forecasts.(domsvc.PriceObserver); ok {
			obs.Observe(symbol, p)
		}
		used++
	}
	return used, nil
}

func (o *Orchestrator) session(symbol string) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.sessions[symbol]; ok {
		return s, nil
	}
	est, err := o.newEst()
	if err != nil {
		return nil, fmt.Errorf("new estimator for %s: %w", symbol, err)
	}
	s := newSession(symbol, est, o.board.Handle(symbol), o.lookback)
	o.sessions[symbol] = s
	return s, nil
}

// Step consumes one price for tick.Symbol and returns the decision. A rejected
// observation returns a DataQuality error and no decision; the session is left as it was.
func (o *Orchestrator) Step(ctx context.Context, tick models.Tick) (models.DecisionRecord, error) {
	start := time.Now()
	s, err := o.session(tick.Symbol)
	if err != nil {
		return models.DecisionRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tick.Timestamp != 0 && tick.Timestamp < s.lastTs {
		o.fault(tick.Symbol, "out_of_order")
		return models.DecisionRecord{}, &models.DataQualityError{Symbol: tick.Symbol, Value: float64(tick.Timestamp), Reason: "out-of-order tick"}
	}
	if !(tick.Price > 0) {
		o.fault(tick.Symbol, "data_quality")
		return models.DecisionRecord{}, &models.DataQualityError{Symbol: tick.Symbol, Value: tick.Price, Reason: "non-positive price"}
	}

	state, err := s.estimator.Update(tick.Price)
	if err != nil {
		kind := "numerical"
		if errors.Is(err, models.ErrDataQuality) {
			kind = "data_quality"
			var dq *models.DataQualityError
			if errors.As(err, &dq) && dq.Symbol == "" {
				dq.Symbol = tick.Symbol
			}
		}
		o.fault(tick.Symbol, kind)
		o.log.Warn("estimator rejected observation",
			applogger.String("symbol", tick.Symbol),
			applogger.Float64("price", tick.Price),
			applogger.Error(err),
		)
		if kind == "data_quality" {
			return models.DecisionRecord{}, err
		}
		// A numerical fault keeps the prior state; the decision still runs on it.
		state = s.estimator.State()
	}

	s.push(tick.Price)
	if obs, ok := o.forecasts.(domsvc.PriceObserver); ok {
		obs.Observe(tick.Symbol, tick.Price)
	}

	ts := time.Unix(tick.Timestamp, 0).UTC()
	if tick.Timestamp == 0 {
		ts = o.now().UTC()
	}
	rec := models.DecisionRecord{
		ID:           o.newID(),
		Symbol:       tick.Symbol,
		Step:         s.steps,
		Timestamp:    ts,
		Price:        tick.Price,
		Regime:       models.RegimeUnknown,
		Position:     state.Position,
		Velocity:     state.Velocity,
		Acceleration: state.Acceleration,
		StateCold:    state.Cold,
	}
	o.decide(ctx, s, &rec)

	s.steps++
	if tick.Timestamp != 0 {
		s.lastTs = tick.Timestamp
	}
	s.last = &rec
	if o.metrics != nil {
		o.metrics.ObserveDecision(&rec, time.Since(start))
	}
	return rec, nil
}

func (o *Orchestrator) decide(ctx context.Context, s *Session, rec *models.DecisionRecord) {
	est, tailErr := o.estimateTail(s.window())
	var assessment models.RegimeAssessment
	if tailErr == nil {
		assessment = o.classifier.Classify(est.Alpha)
		rec.VetoChecked = true
		rec.Alpha = assessment.Alpha
		rec.Regime = assessment.Regime
		rec.Lambda = assessment.Lambda
		if err := o.board.publish(ctx, s.alpha, assessment); err != nil {
			o.log.Warn("alpha snapshot write failed", applogger.String("symbol", rec.Symbol), applogger.Error(err))
		}
	}

	sig, sigErr := o.signals.Candidate(ctx, rec.Symbol)
	if sigErr == nil {
		rec.RawSignal = sig.Value
	}

	// A Critical regime vetoes whether or not a candidate arrived.
	if tailErr == nil {
		if v := o.veto(est.Alpha); v.Vetoed {
			rec.ApplyVeto(v)
			o.log.Info("signal vetoed",
				applogger.String("symbol", rec.Symbol),
				applogger.Int("step", rec.Step),
				applogger.Float64("alpha", est.Alpha),
				applogger.Bool("signal_live", sigErr == nil),
				applogger.Float64("signal", rec.RawSignal),
			)
			return
		}
	}

	if sigErr != nil {
		o.upstream(rec, "signal", sigErr)
		return
	}

	if tailErr != nil {
		// Fail open: the candidate passes unchanged, and the skip is always logged.
		rec.FinalSize = sig.Value
		rec.Outcome = models.OutcomeUnchecked
		rec.Reason = fmt.Sprintf("UNCHECKED: %v", tailErr)
		o.fault(rec.Symbol, "tail_unavailable")
		o.log.Warn("veto check skipped",
			applogger.String("symbol", rec.Symbol),
			applogger.Int("step", rec.Step),
			applogger.Float64("signal", sig.Value),
			applogger.Error(tailErr),
		)
		return
	}

	fc, err := o.forecasts.Forecast(ctx, rec.Symbol, rec.Price)
	if err != nil {
		o.upstream(rec, "forecast", err)
		return
	}

	sd, err := o.sizer.Size(fc, est.Alpha, rec.Price, o.riskFree)
	if err != nil {
		rec.FinalSize = 0
		rec.Outcome = models.OutcomeZero
		rec.Reason = fmt.Sprintf("ZERO: %v", err)
		o.fault(rec.Symbol, "contract")
		o.log.Error("sizer rejected inputs",
			applogger.String("symbol", rec.Symbol),
			applogger.Any("forecast", fc),
			applogger.Error(err),
		)
		return
	}
	rec.RawSize = sd.RawFraction
	rec.SizerFraction = sd.FinalFraction
	rec.FinalSize = gate(sig.Value, sd.FinalFraction)

	if rec.FinalSize == 0 {
		rec.Outcome = models.OutcomeZero
		rec.Reason = fmt.Sprintf("ZERO: size=%.2f, signal=%.2f, regime=%s", sd.FinalFraction, sig.Value, assessment.Regime)
		return
	}
	rec.Outcome = models.OutcomeApproved
	rec.Reason = fmt.Sprintf("APPROVED: size=%.2f, regime=%s", math.Abs(rec.FinalSize), assessment.Regime)
}

// veto applies the hard gate: a tail exponent below the critical level blocks the trade.
func (o *Orchestrator) veto(alpha float64) models.VetoDecision {
	critical := o.classifier.CriticalAlpha()
	if alpha >= critical {
		return models.VetoDecision{}
	}
	return models.VetoDecision{Vetoed: true, Reason: fmt.Sprintf("VETO: alpha=%.2f<%.2f", alpha, critical)}
}

// estimateTail runs the tail estimator over the returns of prices. Before enough
// history exists the estimator's own default applies.
func (o *Orchestrator) estimateTail(prices []float64) (est models.TailEstimate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: estimator panic: %v", models.ErrTailUnavailable, r)
		}
	}()
	rets, err := features.LogReturns(prices)
	if err != nil {
		return models.TailEstimate{}, fmt.Errorf("%w: %v", models.ErrTailUnavailable, err)
	}
	est = o.tail.Estimate(rets)
	if math.IsNaN(est.Alpha) || math.IsInf(est.Alpha, 0) {
		return models.TailEstimate{}, fmt.Errorf("%w: alpha=%v", models.ErrTailUnavailable, est.Alpha)
	}
	return est, nil
}

func (o *Orchestrator) upstream(rec *models.DecisionRecord, what string, err error) {
	rec.FinalSize = 0
	rec.Outcome = models.OutcomeUpstream
	rec.Reason = fmt.Sprintf("UPSTREAM: %s unavailable", what)
	o.fault(rec.Symbol, what+"_unavailable")
	o.log.Warn("upstream unavailable, zero size",
		applogger.String("symbol", rec.Symbol),
		applogger.String("collaborator", what),
		applogger.Int("step", rec.Step),
		applogger.Error(err),
	)
}

func (o *Orchestrator) fault(symbol, kind string) {
	if o.metrics != nil {
		o.metrics.RecordFault(symbol, kind)
	}
}

// gate caps the candidate's magnitude at limit, keeping its direction.
func gate(candidate, limit float64) float64 {
	m := math.Min(math.Abs(candidate), limit)
	if m <= 0 {
		return 0
	}
	if candidate < 0 {
		return -m
	}
	return m
}
