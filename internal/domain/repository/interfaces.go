package repository

import (
	"context"
	"time"

	"RiskKernel/internal/domain/models"
)

// DecisionStore persists decision records for audit.
type DecisionStore interface {
	Store(ctx context.Context, d *models.DecisionRecord) error
	StoreBatch(ctx context.Context, ds []*models.DecisionRecord) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.DecisionRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// DecisionPublisher hands decision records to downstream consumers.
type DecisionPublisher interface {
	Publish(ctx context.Context, d *models.DecisionRecord) error
	PublishBatch(ctx context.Context, ds []*models.DecisionRecord) error
	Close() error
}

// AlphaSnapshotStore shares the latest per-symbol regime assessment with readers
// outside this process.
type AlphaSnapshotStore interface {
	Put(ctx context.Context, symbol string, a models.RegimeAssessment) error
	Get(ctx context.Context, symbol string) (models.RegimeAssessment, bool, error)
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
