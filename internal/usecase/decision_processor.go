package usecase

import (
	"context"
	"time"

	"RiskKernel/internal/domain/models"
	domrepo "RiskKernel/internal/domain/repository"
	"RiskKernel/internal/middleware"
	applogger "RiskKernel/pkg/logger"
)

// DecisionProcessor runs the orchestrator for each accepted tick and delivers the
// record downstream. Delivery failures are logged and counted; they never undo a step.
type DecisionProcessor struct {
	orch      *Orchestrator
	publisher domrepo.DecisionPublisher
	store     domrepo.DecisionStore
	metrics   domrepo.Metrics
	log       *applogger.Logger
}

func NewDecisionProcessor(orch *Orchestrator, publisher domrepo.DecisionPublisher, store domrepo.DecisionStore, metrics domrepo.Metrics, l *applogger.Logger) *DecisionProcessor {
	if l == nil {
		l = applogger.NewNop()
	}
	return &DecisionProcessor{orch: orch, publisher: publisher, store: store, metrics: metrics, log: l}
}

func (p *DecisionProcessor) Process(ctx context.Context, t *models.Tick) error {
	rec, err := p.orch.Step(ctx, *t)
	if err != nil {
		return err
	}
	if p.publisher != nil {
		start := time.Now()
		if err := p.publisher.Publish(ctx, &rec); err != nil {
			p.metrics.RecordError("decision_publish")
			p.log.Error("decision publish failed", applogger.String("symbol", rec.Symbol), applogger.String("id", rec.ID), applogger.Error(err))
		} else {
			p.metrics.RecordMessageSent("kafka", rec.Symbol)
			p.metrics.RecordLatency("decision_publish_seconds", time.Since(start).Seconds())
		}
	}
	if p.store != nil {
		start := time.Now()
		if err := p.store.Store(ctx, &rec); err != nil {
			p.metrics.RecordError("decision_store")
			p.log.Error("decision store failed", applogger.String("symbol", rec.Symbol), applogger.String("id", rec.ID), applogger.Error(err))
		} else {
			p.metrics.RecordMessageSent("clickhouse", rec.Symbol)
			p.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
		}
	}
	return nil
}

var _ middleware.Proc = (*DecisionProcessor)(nil)
