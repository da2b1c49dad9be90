package logger

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]DigestEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, payload.([]DigestEntry))
	return nil
}

func TestCollectorFoldsRepeats(t *testing.T) {
	pub := &capturePublisher{}
	var buf bytes.Buffer
	l := NewWriter(&buf)
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "parity.logs", Service: "test", Publisher: pub})

	for i := 0; i < 5; i++ {
		l.Error("candle fetch failed", Error(errors.New("timeout")), Int("attempt", i))
	}
	l.Warn("slow fill")
	l.Info("not collected")

	require.Equal(t, 2, l.collector.Pending())
	l.RemoveCollector()

	require.Len(t, pub.batches, 1)
	assert.Equal(t, "parity.logs", pub.topics[0])
	batch := pub.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "candle fetch failed", batch[0].Message)
	assert.Equal(t, 5, batch[0].Count)
	assert.Equal(t, 0, batch[0].Sample["attempt"])
	assert.Contains(t, buf.String(), "not collected")
}

func TestCollectorFlushesOnThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0], 2)
}
