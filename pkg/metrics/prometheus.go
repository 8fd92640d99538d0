package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements the pipeline Metrics port with Prometheus: deliveries
// per sink, error kinds, the last accepted price and stage latencies.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		messagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskkernel_messages_delivered_total",
				Help: "Messages handed to a sink (decision topic, audit store, signal board)",
			},
			[]string{"sink", "symbol"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskkernel_errors_total",
				Help: "Pipeline errors by kind",
			},
			[]string{"type"},
		),
		lastPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riskkernel_last_price",
				Help: "Last price accepted by the tick pipeline",
			},
			[]string{"symbol"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskkernel_stage_duration_seconds",
				Help:    "Latency of pipeline stages in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"stage"},
		),
	}
	reg.MustRegister(r.messagesSent, r.errorsTotal, r.lastPrice, r.latency)
	return r
}

// RecordMessageSent counts one delivery to sink.
func (r *Recorder) RecordMessageSent(sink, symbol string) {
	r.messagesSent.WithLabelValues(sink, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency observes one stage latency. Negative values, from clock skew
// between producer and kernel, are dropped.
func (r *Recorder) RecordLatency(stage string, seconds float64) {
	if seconds < 0 {
		return
	}
	r.latency.WithLabelValues(stage).Observe(seconds)
}
