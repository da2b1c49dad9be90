package repository

import (
	"context"
	"time"

	"ParityBot/internal/domain/models"
)

// CandleSource provides closed candles by bulk query or by latest-N poll.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) ([]models.Candle, error)
	GetLatestCandles(ctx context.Context, symbol string, tf Timeframe, n int) ([]models.Candle, error)
}

// CandleStore persists candles fetched from an upstream source.
type CandleStore interface {
	CandleSource
	StoreCandles(ctx context.Context, tf Timeframe, candles []models.Candle) error
}

// CandleFeed blocks until the next primary candle has closed and returns the
// closed candles of both timeframes known at that moment.
type CandleFeed interface {
	Next(ctx context.Context) (primary, secondary []models.Candle, err error)
	Close() error
}

// OrderExecutor fills a BUY or SELL decision. Failures wrap models.ErrExecutionFailure.
type OrderExecutor interface {
	Execute(ctx context.Context, d models.Decision, pos models.PositionState) (models.Fill, error)
}

// TradeLog is durable storage for one source's trade records.
type TradeLog interface {
	Append(ctx context.Context, t models.TradeRecord) error
	Load(ctx context.Context, source models.TradeSource) ([]models.TradeRecord, error)
	Close() error
}

// DecisionPublisher streams decisions and trades to downstream consumers.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, d models.Decision) error
	PublishTrade(ctx context.Context, t models.TradeRecord) error
	Close() error
}

// PositionStore keeps the latest confirmed PositionState across restarts.
type PositionStore interface {
	Load(ctx context.Context, symbol string) (models.PositionState, error)
	Save(ctx context.Context, p models.PositionState) error
}

type Metrics interface {
	RecordDecision(symbol string, action models.Action)
	RecordTrade(source models.TradeSource, side models.Side)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordMatchRate(rate float64)
}
