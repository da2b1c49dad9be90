package repository

import (
	"context"

	"ParityBot/internal/domain/models"
	"ParityBot/internal/domain/repository"
	pkgkafka "ParityBot/pkg/kafka"
)

// KafkaPublisher streams decisions and trades keyed by symbol, so a
// symbol's events stay ordered within one partition.
type KafkaPublisher struct {
	producer       *pkgkafka.Producer
	decisionsTopic string
	tradesTopic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, decisionsTopic, tradesTopic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, decisionsTopic: decisionsTopic, tradesTopic: tradesTopic}
}

var _ repository.DecisionPublisher = (*KafkaPublisher)(nil)

func (p *KafkaPublisher) PublishDecision(ctx context.Context, d models.Decision) error {
	return p.producer.Publish(ctx, p.decisionsTopic, pkgkafka.Message{
		Key:     []byte(d.Symbol),
		Value:   d,
		Headers: map[string]string{"action": string(d.Action)},
	})
}

func (p *KafkaPublisher) PublishTrade(ctx context.Context, t models.TradeRecord) error {
	return p.producer.Publish(ctx, p.tradesTopic, pkgkafka.Message{
		Key:     []byte(t.Symbol),
		Value:   t,
		Headers: map[string]string{"source": string(t.Source), "side": string(t.Side)},
	})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher drops everything. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishDecision(context.Context, models.Decision) error { return nil }

func (NopPublisher) PublishTrade(context.Context, models.TradeRecord) error { return nil }

func (NopPublisher) Close() error { return nil }
