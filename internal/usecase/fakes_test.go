package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"ParityBot/internal/domain/models"
	drepo "ParityBot/internal/domain/repository"

	"github.com/shopspring/decimal"
)

var start = time.Date(2024, 11, 4, 9, 0, 0, 0, time.UTC)

func mkCandles(from time.Time, step time.Duration, closes []float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		open := from.Add(time.Duration(i) * step)
		p := decimal.NewFromFloat(c)
		out[i] = models.Candle{Symbol: "BTCUSDT", OpenTime: open, CloseTime: open.Add(step), Open: p, High: p, Low: p, Close: p}
	}
	return out
}

// roundTripSeries declines for 30 bars, then climbs until RSI runs past 80,
// then falls away: one BUY and one SELL.
func roundTripSeries() []models.Candle {
	closes := make([]float64, 0, 50)
	for i := 0; i < 30; i++ {
		closes = append(closes, 200-float64(i)*0.5)
	}
	closes = append(closes, 200, 201, 202, 203, 204, 205, 206, 207, 208, 209)
	for i := 0; i < 10; i++ {
		closes = append(closes, 190-float64(i))
	}
	return mkCandles(start, time.Minute, closes)
}

func trendSeries(level float64) []models.Candle {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = level
	}
	return mkCandles(start.Add(-180*time.Minute), 3*time.Minute, closes)
}

type memTradeLog struct {
	mu   sync.Mutex
	recs []models.TradeRecord
	err  error
}

func (m *memTradeLog) Append(_ context.Context, t models.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, t)
	return nil
}

func (m *memTradeLog) Load(_ context.Context, source models.TradeSource) ([]models.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TradeRecord
	for _, r := range m.recs {
		if r.Source == source {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memTradeLog) Close() error { return nil }

func (m *memTradeLog) all() []models.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TradeRecord(nil), m.recs...)
}

type nopPublisher struct{}

func (nopPublisher) PublishDecision(context.Context, models.Decision) error { return nil }
func (nopPublisher) PublishTrade(context.Context, models.TradeRecord) error { return nil }
func (nopPublisher) Close() error                                          { return nil }

type failingExecutor struct{ calls int }

func (f *failingExecutor) Execute(context.Context, models.Decision, models.PositionState) (models.Fill, error) {
	f.calls++
	return models.Fill{}, errors.Join(models.ErrExecutionFailure, errors.New("exchange unavailable"))
}

// scriptedFeed returns growing prefixes of primary, then cancels the run.
type scriptedFeed struct {
	primary   []models.Candle
	secondary []models.Candle
	calls     int
	errAt     int
	cancel    context.CancelFunc
}

func (f *scriptedFeed) Next(ctx context.Context) ([]models.Candle, []models.Candle, error) {
	f.calls++
	if f.errAt > 0 && f.calls == f.errAt {
		return nil, nil, errors.New("exchange timeout")
	}
	n := f.calls
	if f.errAt > 0 && f.calls > f.errAt {
		n--
	}
	if n > len(f.primary) {
		f.cancel()
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	return f.primary[:n], f.secondary, nil
}

func (f *scriptedFeed) Close() error { return nil }

type fakeSource struct {
	mu     sync.Mutex
	series map[drepo.Timeframe][]models.Candle
	calls  map[drepo.Timeframe]int
	ranges map[drepo.Timeframe][2]time.Time
}

func newFakeSource(series map[drepo.Timeframe][]models.Candle) *fakeSource {
	return &fakeSource{series: series, calls: map[drepo.Timeframe]int{}, ranges: map[drepo.Timeframe][2]time.Time{}}
}

func (s *fakeSource) GetCandles(_ context.Context, _ string, tf drepo.Timeframe, from, to time.Time) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[tf]++
	s.ranges[tf] = [2]time.Time{from, to}
	var out []models.Candle
	for _, c := range s.series[tf] {
		if !c.OpenTime.Before(from) && c.OpenTime.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeSource) GetLatestCandles(_ context.Context, _ string, tf drepo.Timeframe, n int) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[tf]++
	all := s.series[tf]
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (s *fakeSource) count(tf drepo.Timeframe) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[tf]
}

type memStore struct {
	*fakeSource
	stored map[drepo.Timeframe]int
}

func (m *memStore) StoreCandles(_ context.Context, tf drepo.Timeframe, candles []models.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[tf] += len(candles)
	m.series[tf] = append(m.series[tf], candles...)
	return nil
}
