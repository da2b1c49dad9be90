package usecase

import (
	"context"
	"testing"
	"time"

	"ParityBot/internal/domain/models"
	drepo "ParityBot/internal/domain/repository"
	"ParityBot/internal/services/strategy"
	applogger "ParityBot/pkg/logger"
	"ParityBot/pkg/metrics"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var qty = decimal.RequireFromString("0.001")

func newBacktest(cfg BacktestConfig, loader *HistoryLoader, log *memTradeLog) *BacktestRunner {
	cfg.Symbol = "BTCUSDT"
	cfg.Primary, cfg.Secondary = drepo.TF1m, drepo.TF3m
	cfg.InitialCapital = decimal.NewFromInt(10000)
	return NewBacktestRunner(cfg, strategy.NewEngine("BTCUSDT", strategy.DefaultParams()), loader,
		NewSimulatedExecutor(qty), log, nopPublisher{}, metrics.Nop{}, applogger.Nop())
}

func TestReplayProducesRoundTrip(t *testing.T) {
	primary := roundTripSeries()
	log := &memTradeLog{}
	res, err := newBacktest(BacktestConfig{}, nil, log).Replay(context.Background(), primary, trendSeries(150))
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	buy, sell := res.Trades[0], res.Trades[1]
	assert.Equal(t, models.SideBuy, buy.Side)
	assert.Equal(t, primary[30].CloseTime, buy.EntryTime)
	assert.True(t, decimal.NewFromInt(200).Equal(buy.EntryPrice))

	assert.Equal(t, models.SideSell, sell.Side)
	assert.Equal(t, primary[34].CloseTime, *sell.ExitTime)
	assert.True(t, decimal.NewFromInt(204).Equal(sell.ExitPrice.Decimal))
	assert.Equal(t, "0.004", sell.PnL.Decimal.String())
	assert.Equal(t, "2", sell.ReturnPct.Decimal.String())

	assert.Equal(t, len(primary), res.Summary.Decisions)
	assert.Equal(t, 1, res.Summary.RoundTrips)
	assert.False(t, res.Summary.OpenPosition)
	assert.Equal(t, res.Trades, log.all())
}

func TestReplayWithoutTrendNeverBuys(t *testing.T) {
	res, err := newBacktest(BacktestConfig{}, nil, &memTradeLog{}).Replay(context.Background(), roundTripSeries(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
}

func TestReplayHonoursRange(t *testing.T) {
	primary := roundTripSeries()
	// Range ends before the exit: the position stays open.
	cfg := BacktestConfig{From: primary[0].OpenTime, To: primary[32].CloseTime}
	res, err := newBacktest(cfg, nil, &memTradeLog{}).Replay(context.Background(), primary, trendSeries(150))
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.True(t, res.Summary.OpenPosition)
	assert.Equal(t, 33, res.Summary.Decisions)
}

func TestBacktestRunLoadsWarmup(t *testing.T) {
	primary := roundTripSeries()
	src := newFakeSource(map[drepo.Timeframe][]models.Candle{drepo.TF1m: primary, drepo.TF3m: trendSeries(150)})
	from := primary[20].OpenTime
	cfg := BacktestConfig{From: from, To: primary[len(primary)-1].CloseTime, Window: 60}

	res, err := newBacktest(cfg, NewHistoryLoader(src, nil, applogger.Nop()), &memTradeLog{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, from.Add(-60*time.Minute), src.ranges[drepo.TF1m][0])
	assert.Equal(t, from.Add(-180*time.Minute), src.ranges[drepo.TF3m][0])
	assert.Equal(t, len(primary)-20, res.Summary.Decisions)
	require.Len(t, res.Trades, 2, "warm-up candles feed the indicators")

	_, err = newBacktest(BacktestConfig{From: from, To: from}, NewHistoryLoader(src, nil, applogger.Nop()), &memTradeLog{}).Run(context.Background())
	assert.Error(t, err)
}

func TestReplayStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newBacktest(BacktestConfig{}, nil, &memTradeLog{}).Replay(ctx, roundTripSeries(), trendSeries(150))
	assert.ErrorIs(t, err, context.Canceled)
}
