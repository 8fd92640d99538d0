package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"RiskKernel/internal/domain/models"
	domsvc "RiskKernel/internal/domain/service"
)

// KernelMetrics exports decision outcomes, the live tail exponent per symbol and
// data faults.
type KernelMetrics struct {
	decisions *prometheus.CounterVec
	alpha     *prometheus.GaugeVec
	final     *prometheus.GaugeVec
	faults    *prometheus.CounterVec
	latency   prometheus.Histogram
}

// NewKernelMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewKernelMetrics(reg prometheus.Registerer) *KernelMetrics {
	m := &KernelMetrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "riskkernel",
				Subsystem: "decision",
				Name:      "total",
				Help:      "Decisions by outcome and regime",
			},
			[]string{"symbol", "outcome", "regime"},
		),
		alpha: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "riskkernel",
				Subsystem: "tail",
				Name:      "alpha",
				Help:      "Latest tail exponent per symbol",
			},
			[]string{"symbol"},
		),
		final: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "riskkernel",
				Subsystem: "decision",
				Name:      "final_size",
				Help:      "Latest approved signed allocation per symbol",
			},
			[]string{"symbol"},
		),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "riskkernel",
				Subsystem: "kernel",
				Name:      "faults_total",
				Help:      "Data quality, numerical and upstream faults",
			},
			[]string{"symbol", "kind"},
		),
		latency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "riskkernel",
				Subsystem: "decision",
				Name:      "step_seconds",
				Help:      "Duration of one orchestrator step",
				Buckets:   []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.alpha, m.final, m.faults, m.latency)
	}
	return m
}

func (m *KernelMetrics) ObserveDecision(rec *models.DecisionRecord, elapsed time.Duration) {
	m.decisions.WithLabelValues(rec.Symbol, string(rec.Outcome), rec.Regime.String()).Inc()
	if rec.VetoChecked {
		m.alpha.WithLabelValues(rec.Symbol).Set(rec.Alpha)
	}
	m.final.WithLabelValues(rec.Symbol).Set(rec.FinalSize)
	m.latency.Observe(elapsed.Seconds())
}

func (m *KernelMetrics) RecordFault(symbol, kind string) {
	m.faults.WithLabelValues(symbol, kind).Inc()
}

var _ domsvc.DecisionMetrics = (*KernelMetrics)(nil)
