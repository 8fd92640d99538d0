package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"RiskKernel/internal/domain/models"
	domrepo "RiskKernel/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, t *models.Tick) error
}

// ProcFunc adapts a function to Proc.
type ProcFunc func(ctx context.Context, t *models.Tick) error

func (f ProcFunc) Process(ctx context.Context, t *models.Tick) error { return f(ctx, t) }

// TickPipeline sits between the tick consumer and the orchestrator. It validates,
// enforces per-symbol time order, optionally transforms, and throttles ticks.
// Throttling counts ticks per event-time second, so a replay of the same stream
// keeps the same ticks however fast it arrives. Downstream failures are returned,
// never retried, because a replayed tick would reach the filter out of order.
type TickPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	maxRPS  int

	mu     sync.Mutex
	lastTs map[string]int64        // per-symbol last accepted event time
	window map[string]secondWindow // per-symbol accepted count in the current event second
	// simple format transform hook (optional)
	transform func(*models.Tick) *models.Tick
	now       func() time.Time
}

type PipelineOption func(*TickPipeline)

// WithMaxRPS sets the max ticks per event-time second per symbol. 0 disables
// throttling. Any non-zero value thins the stream the filter sees, so backtests
// must run with the same setting.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithTransform sets a transformation hook to modify tick format.
func WithTransform(fn func(*models.Tick) *models.Tick) PipelineOption {
	return func(p *TickPipeline) { p.transform = fn }
}

// WithNow replaces the wall clock used for latency.
func WithNow(fn func() time.Time) PipelineOption {
	return func(p *TickPipeline) { p.now = fn }
}

// NewTickPipeline creates a new pipeline.
func NewTickPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		proc:    proc,
		metrics: metrics,
		lastTs:  make(map[string]int64),
		window:  make(map[string]secondWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates, orders and throttles a tick, then forwards it downstream.
// Ticks dropped by the throttle return nil.
func (p *TickPipeline) Process(ctx context.Context, t *models.Tick) error {
	start := p.now()
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		t = p.transform(t)
		if err := validateTick(t); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}

	p.mu.Lock()
	if last, ok := p.lastTs[t.Symbol]; ok && t.Timestamp < last {
		p.mu.Unlock()
		p.metrics.RecordError("pipeline_out_of_order")
		return &models.DataQualityError{Symbol: t.Symbol, Value: float64(t.Timestamp), Reason: fmt.Sprintf("out-of-order tick (last %d)", last)}
	}
	if !p.allow(t.Symbol, t.Timestamp) {
		p.mu.Unlock()
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	p.lastTs[t.Symbol] = t.Timestamp
	p.mu.Unlock()

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLastPrice(t.Symbol, t.Price)
	p.metrics.RecordLatency("pipeline_process", p.now().Sub(start).Seconds())
	return nil
}

func validateTick(t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick nil")
	}
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.Timestamp <= 0 {
		return fmt.Errorf("timestamp invalid")
	}
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0 {
		return &models.DataQualityError{Symbol: t.Symbol, Value: t.Price, Reason: "price must be positive and finite"}
	}
	return nil
}

type secondWindow struct {
	sec int64
	n   int
}

// allow must be called with p.mu held. ts is the tick's event time in seconds.
func (p *TickPipeline) allow(symbol string, ts int64) bool {
	if p.maxRPS <= 0 {
		return true
	}
	w := p.window[symbol]
	if w.sec != ts {
		w = secondWindow{sec: ts}
	}
	if w.n >= p.maxRPS {
		return false
	}
	w.n++
	p.window[symbol] = w
	return true
}
