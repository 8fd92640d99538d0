package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *memPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *memPublisher) all() [][]AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]AggregatedLogEntry(nil), p.batches...)
}

func TestCollectorFoldsRepeatsPerGroup(t *testing.T) {
	pub := &memPublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "faults", Publisher: pub, GroupBy: []string{"symbol"}})

	for i := 0; i < 3; i++ {
		c.AddLog("warn", "veto check skipped", map[string]interface{}{"symbol": "AAPL", "step": i}, "orchestrator.go:1")
	}
	c.AddLog("warn", "veto check skipped", map[string]interface{}{"symbol": "MSFT", "step": 9}, "orchestrator.go:1")
	c.Close()

	batches := pub.all()
	require.Len(t, batches, 1)
	assert.Equal(t, "faults", pub.topic)
	require.Len(t, batches[0], 2)
	first := batches[0][0]
	assert.Equal(t, 3, first.Count)
	assert.Equal(t, map[string]interface{}{"symbol": "AAPL"}, first.Group)
	assert.Equal(t, 2, first.Sample["step"])
	assert.Equal(t, 1, batches[0][1].Count)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &memPublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "faults", Publisher: pub})
	defer c.Close()

	c.AddLog("error", "a", nil, "x")
	c.AddLog("error", "b", nil, "x")

	assert.Eventually(t, func() bool { return len(pub.all()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestLoggerFeedsCollector(t *testing.T) {
	pub := &memPublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "faults", Publisher: pub})

	l.Info("ignored")
	l.Warn("upstream unavailable", String("symbol", "BTC"))
	l.Error("store failed", Error(errors.New("boom")))
	l.RemoveCollector()

	batches := pub.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, "warn", batches[0][0].Level)
	assert.Equal(t, "boom", batches[0][1].Sample["error"])
}

func TestChildLoggerSeesLaterCollector(t *testing.T) {
	pub := &memPublisher{}
	root := NewNop()
	child := root.With(String("component", "orchestrator"))
	root.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "faults", Publisher: pub, GroupBy: []string{"symbol"}})

	child.Warn("tail estimate degraded", String("symbol", "ETH"), Float64("alpha", 1.4), Error(nil))
	root.RemoveCollector()
	child.Warn("after removal")

	batches := pub.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, "ETH", batches[0][0].Group["symbol"])
	assert.Equal(t, 1.4, batches[0][0].Sample["alpha"])
}
