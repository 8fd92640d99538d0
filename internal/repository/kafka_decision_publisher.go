package repository

import (
	"context"

	"RiskKernel/internal/domain/models"
	domrepo "RiskKernel/internal/domain/repository"
	pkgkafka "RiskKernel/pkg/kafka"
)

// KafkaDecisionPublisher writes decision records keyed by symbol, so one
// symbol's decisions stay in order on one partition.
type KafkaDecisionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaDecisionPublisher(producer *pkgkafka.Producer, topic string) *KafkaDecisionPublisher {
	return &KafkaDecisionPublisher{producer: producer, topic: topic}
}

func (p *KafkaDecisionPublisher) Publish(ctx context.Context, d *models.DecisionRecord) error {
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{decisionMessage(d)})
}

func (p *KafkaDecisionPublisher) PublishBatch(ctx context.Context, ds []*models.DecisionRecord) error {
	if len(ds) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(ds))
	for i, d := range ds {
		msgs[i] = decisionMessage(d)
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaDecisionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func decisionMessage(d *models.DecisionRecord) pkgkafka.Message {
	return pkgkafka.Message{
		Key:     []byte(d.Symbol),
		Value:   d,
		Headers: map[string]string{pkgkafka.TraceHeader: d.ID, "outcome": string(d.Outcome)},
	}
}

var _ domrepo.DecisionPublisher = (*KafkaDecisionPublisher)(nil)
