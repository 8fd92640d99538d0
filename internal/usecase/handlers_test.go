package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskKernel/internal/domain/models"
	"RiskKernel/internal/middleware"
)

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
	sent   map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: map[string]int{}, sent: map[string]int{}}
}

func (m *countingMetrics) RecordMessageSent(backend, _ string) {
	m.mu.Lock()
	m.sent[backend]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordLastPrice(string, float64) {}
func (m *countingMetrics) RecordLatency(string, float64)   {}

func TestKafkaTicksHandler(t *testing.T) {
	var got []models.Tick
	proc := middleware.ProcFunc(func(_ context.Context, tk *models.Tick) error {
		got = append(got, *tk)
		if tk.Price <= 0 {
			return &models.DataQualityError{Symbol: tk.Symbol, Value: tk.Price, Reason: "non-positive price"}
		}
		return nil
	})
	m := newCountingMetrics()
	h := NewKafkaTicksHandler("ticks", proc, m)
	assert.Equal(t, "ticks", h.Topic())

	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"AAPL","t":1700000000123,"c":187.5}`)))
	require.Len(t, got, 1)
	assert.Equal(t, models.Tick{Symbol: "AAPL", Timestamp: 1700000000, Price: 187.5}, got[0])

	assert.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"AAPL","t":1700000001,"c":0}`)))
	assert.Equal(t, 1, m.errors["consumer_data_quality"])

	assert.Error(t, h.Handle(context.Background(), []byte(`{"symbol":`)))
	assert.Equal(t, 1, m.errors["consumer_unmarshal"])
}

func TestKafkaTicksHandlerPropagatesOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	h := NewKafkaTicksHandler("ticks", middleware.ProcFunc(func(context.Context, *models.Tick) error { return boom }), newCountingMetrics())
	assert.ErrorIs(t, h.Handle(context.Background(), []byte(`{"symbol":"X","t":1,"c":1}`)), boom)
}

func TestKafkaSignalsHandler(t *testing.T) {
	board := NewSignalBoard(time.Minute)
	m := newCountingMetrics()
	h := NewKafkaSignalsHandler("signals", board, m)

	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"BTC","t":1700000000000,"signal":-0.4,"source":"momo"}`)))
	sig, err := board.Candidate(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, models.CandidateSignal{Symbol: "BTC", Timestamp: 1700000000, Value: -0.4, Source: "momo"}, sig)
	assert.Equal(t, 1, m.sent["signal_board"])

	assert.Error(t, h.Handle(context.Background(), []byte(`{"t":1,"signal":1}`)))
	assert.Equal(t, 1, m.errors["signal_invalid"])
	assert.Error(t, h.Handle(context.Background(), []byte(`nope`)))
	assert.Equal(t, 1, m.errors["signal_unmarshal"])
}

type memPublisher struct {
	recs []*models.DecisionRecord
	err  error
}

func (p *memPublisher) Publish(_ context.Context, d *models.DecisionRecord) error {
	if p.err != nil {
		return p.err
	}
	p.recs = append(p.recs, d)
	return nil
}

func (p *memPublisher) PublishBatch(ctx context.Context, ds []*models.DecisionRecord) error {
	for _, d := range ds {
		if err := p.Publish(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (p *memPublisher) Close() error { return nil }

type memDecisionStore struct {
	memPublisher
}

func (s *memDecisionStore) Store(ctx context.Context, d *models.DecisionRecord) error {
	return s.Publish(ctx, d)
}

func (s *memDecisionStore) StoreBatch(ctx context.Context, ds []*models.DecisionRecord) error {
	return s.PublishBatch(ctx, ds)
}

func (s *memDecisionStore) Query(context.Context, string, time.Time, time.Time, int) ([]*models.DecisionRecord, error) {
	return s.recs, nil
}

func (s *memDecisionStore) Health(context.Context) error { return nil }

func TestDecisionProcessorDelivers(t *testing.T) {
	o := newTestOrchestrator(t, &scriptedTail{def: 3.5}, fixedSignal{value: 0.5}, workedForecast)
	pub, store, m := &memPublisher{}, &memDecisionStore{}, newCountingMetrics()
	p := NewDecisionProcessor(o, pub, store, m, nil)

	require.NoError(t, p.Process(context.Background(), &models.Tick{Symbol: "AAPL", Timestamp: 1, Price: 100}))
	require.Len(t, pub.recs, 1)
	require.Len(t, store.recs, 1)
	assert.Equal(t, "id-1", pub.recs[0].ID)
	assert.Equal(t, 1, m.sent["kafka"])
	assert.Equal(t, 1, m.sent["clickhouse"])

	err := p.Process(context.Background(), &models.Tick{Symbol: "AAPL", Timestamp: 2, Price: -1})
	assert.ErrorIs(t, err, models.ErrDataQuality)
	assert.Len(t, pub.recs, 1)
}

func TestDecisionProcessorDeliveryFailureKeepsStep(t *testing.T) {
	o := newTestOrchestrator(t, &scriptedTail{def: 3.5}, fixedSignal{value: 0.5}, workedForecast)
	m := newCountingMetrics()
	p := NewDecisionProcessor(o, &memPublisher{err: errors.New("broker down")}, &memDecisionStore{memPublisher{err: errors.New("ch down")}}, m, nil)

	require.NoError(t, p.Process(context.Background(), &models.Tick{Symbol: "AAPL", Timestamp: 1, Price: 100}))
	assert.Equal(t, 1, m.errors["decision_publish"])
	assert.Equal(t, 1, m.errors["decision_store"])
	s, ok := o.Session("AAPL")
	require.True(t, ok)
	assert.Equal(t, 1, s.Steps())
}

func TestDecodeTick(t *testing.T) {
	tick, err := decodeTick([]byte(`{"symbol":"MSFT","t":1700000000500,"price":410.2}`))
	require.NoError(t, err)
	assert.Equal(t, models.Tick{Symbol: "MSFT", Timestamp: 1700000000, Price: 410.2}, tick)

	tick, err = decodeTick([]byte(`{"symbol":"MSFT","t":5,"c":1,"price":2}`))
	require.NoError(t, err)
	assert.Equal(t, 1.0, tick.Price)

	_, err = decodeTick([]byte(`{"symbol":"MSFT","t":5}`))
	assert.Error(t, err)
}
