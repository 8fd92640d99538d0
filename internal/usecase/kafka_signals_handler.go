package usecase

import (
	"context"
	"errors"

	"RiskKernel/internal/domain/models"
	domrepo "RiskKernel/internal/domain/repository"
	pkgkafka "RiskKernel/pkg/kafka"
)

// KafkaSignalsHandler consumes candidate signals from the strategy collaborator.
type KafkaSignalsHandler struct {
	topic   string
	board   *SignalBoard
	metrics domrepo.Metrics
}

func NewKafkaSignalsHandler(topic string, board *SignalBoard, metrics domrepo.Metrics) *KafkaSignalsHandler {
	return &KafkaSignalsHandler{topic: topic, board: board, metrics: metrics}
}

func (h *KafkaSignalsHandler) Topic() string { return h.topic }

func (h *KafkaSignalsHandler) Handle(_ context.Context, b []byte) error {
	sig, err := decodeSignal(b)
	if err != nil {
		h.metrics.RecordError("signal_unmarshal")
		return err
	}
	err = h.board.Put(sig)
	if errors.Is(err, models.ErrDataQuality) {
		h.metrics.RecordError("signal_data_quality")
		return nil
	}
	if err != nil {
		h.metrics.RecordError("signal_invalid")
		return err
	}
	h.metrics.RecordMessageSent("signal_board", sig.Symbol)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaSignalsHandler)(nil)
