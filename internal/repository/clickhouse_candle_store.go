package repository

import (
	"context"
	"fmt"
	"time"

	"ParityBot/internal/domain/models"
	domrepo "ParityBot/internal/domain/repository"
	pkgch "ParityBot/pkg/clickhouse"
	applogger "ParityBot/pkg/logger"
)

// CHCandleStore caches exchange candles in ClickHouse.
type CHCandleStore struct {
	ch    *pkgch.Client
	table string
	l     *applogger.Logger
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)

func NewCHCandleStore(ch *pkgch.Client, l *applogger.Logger) *CHCandleStore {
	return &CHCandleStore{ch: ch, table: ch.Database() + "." + pkgch.CandlesTable, l: l}
}

// GetCandles returns stored candles with OpenTime in [from, to).
func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time) ([]models.Candle, error) {
	const qtpl = `
        SELECT symbol, open_time, close_time, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND timeframe = ? AND open_time >= ? AND open_time < ?
        ORDER BY open_time ASC
    `
	return s.query(ctx, fmt.Sprintf(qtpl, s.table), symbol, tf, symbol, string(tf), from.UTC(), to.UTC())
}

// GetLatestCandles returns the n most recent stored candles, oldest first.
func (s *CHCandleStore) GetLatestCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, n int) ([]models.Candle, error) {
	const qtpl = `
        SELECT * FROM (
            SELECT symbol, open_time, close_time, open, high, low, close, volume
            FROM %s FINAL
            WHERE symbol = ? AND timeframe = ?
            ORDER BY open_time DESC
            LIMIT ?
        ) ORDER BY open_time ASC
    `
	return s.query(ctx, fmt.Sprintf(qtpl, s.table), symbol, tf, symbol, string(tf), n)
}

func (s *CHCandleStore) query(ctx context.Context, q, symbol string, tf domrepo.Timeframe, args ...any) ([]models.Candle, error) {
	start := time.Now()
	rows, err := s.ch.DB().QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse get_candles query error",
			applogger.String("symbol", symbol),
			applogger.String("tf", tf.String()),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 1024)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Symbol, &c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.OpenTime, c.CloseTime = c.OpenTime.UTC(), c.CloseTime.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse get_candles ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", tf.String()),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// StoreCandles upserts candles; ReplacingMergeTree keeps the newest copy.
func (s *CHCandleStore) StoreCandles(ctx context.Context, tf domrepo.Timeframe, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	q := fmt.Sprintf(`INSERT INTO %s (symbol, timeframe, open_time, close_time, open, high, low, close, volume)`, s.table)
	rows := make([][]any, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, []any{c.Symbol, string(tf), c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume})
	}
	if err := s.ch.InsertBatch(ctx, q, rows); err != nil {
		return fmt.Errorf("store candles: %w", err)
	}
	s.l.Info("candles cached",
		applogger.String("symbol", candles[0].Symbol),
		applogger.String("tf", tf.String()),
		applogger.Int("rows", len(rows)),
	)
	return nil
}
