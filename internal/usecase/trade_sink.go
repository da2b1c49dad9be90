package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ParityBot/internal/domain/models"
	domrepo "ParityBot/internal/domain/repository"
	pkgkafka "ParityBot/pkg/kafka"
)

// TradeSink consumes published trade records and writes them to a trade log
// (ClickHouse in production).
type TradeSink struct {
	topic   string
	store   domrepo.TradeLog
	metrics domrepo.Metrics
}

func NewTradeSink(topic string, store domrepo.TradeLog, metrics domrepo.Metrics) *TradeSink {
	return &TradeSink{topic: topic, store: store, metrics: metrics}
}

func (h *TradeSink) Topic() string { return h.topic }

func (h *TradeSink) Handle(ctx context.Context, b []byte) error {
	var t models.TradeRecord
	if err := json.Unmarshal(b, &t); err != nil {
		h.metrics.RecordError("sink_unmarshal")
		return fmt.Errorf("decode trade: %w", err)
	}
	if t.Symbol == "" || t.Sequence <= 0 {
		h.metrics.RecordError("sink_invalid")
		return fmt.Errorf("trade missing symbol or sequence")
	}
	h.metrics.RecordLatency("sink_e2e", time.Since(t.ExecutedAt()).Seconds())

	start := time.Now()
	err := h.store.Append(ctx, t)
	h.metrics.RecordLatency("sink_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("sink_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*TradeSink)(nil)
