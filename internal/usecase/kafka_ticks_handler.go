package usecase

import (
	"context"
	"errors"
	"time"

	"RiskKernel/internal/domain/models"
	domrepo "RiskKernel/internal/domain/repository"
	"RiskKernel/internal/middleware"
	pkgkafka "RiskKernel/pkg/kafka"
)

// KafkaTicksHandler consumes price ticks and hands them to the tick pipeline.
type KafkaTicksHandler struct {
	topic   string
	proc    middleware.Proc
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, proc middleware.Proc, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, proc: proc, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	tick, err := decodeTick(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(tick.Timestamp, 0)).Seconds())

	err = h.proc.Process(ctx, &tick)
	if errors.Is(err, models.ErrDataQuality) {
		// Dropped, not retried: a redelivery cannot fix a bad tick.
		h.metrics.RecordError("consumer_data_quality")
		return nil
	}
	return err
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
