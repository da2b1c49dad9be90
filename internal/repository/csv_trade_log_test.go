package repository

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ParityBot/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip() []models.TradeRecord {
	entry := time.Date(2024, 11, 3, 10, 15, 0, 0, time.UTC)
	exit := entry.Add(47 * time.Minute)
	buy := models.TradeRecord{
		Sequence: 1, Symbol: "BTCUSDT", Side: models.SideBuy,
		EntryTime: entry, EntryPrice: decimal.RequireFromString("69012.5"),
		Quantity: decimal.RequireFromString("0.001"), Source: models.SourceBacktest,
	}
	sell := buy
	sell.Sequence = 2
	sell.Side = models.SideSell
	sell.ExitTime = &exit
	sell.ExitPrice = decimal.NewNullDecimal(decimal.RequireFromString("69500"))
	sell.PnL = decimal.NewNullDecimal(decimal.RequireFromString("0.4875"))
	sell.ReturnPct = decimal.NewNullDecimal(decimal.RequireFromString("0.7064"))
	return []models.TradeRecord{buy, sell}
}

func TestCSVTradeLogAppendLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "backtest_trades.csv")
	log, err := NewCSVTradeLog(path, true)
	require.NoError(t, err)

	ctx := context.Background()
	for _, tr := range roundTrip() {
		require.NoError(t, log.Append(ctx, tr))
	}
	got, err := log.Load(ctx, models.SourceBacktest)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	want := roundTrip()
	require.Len(t, got, 2)
	assert.Equal(t, want[0].EntryTime, got[0].EntryTime)
	assert.True(t, want[0].EntryPrice.Equal(got[0].EntryPrice))
	assert.False(t, got[0].PnL.Valid)
	assert.Nil(t, got[0].ExitTime)
	assert.Equal(t, *want[1].ExitTime, *got[1].ExitTime)
	assert.True(t, want[1].PnL.Decimal.Equal(got[1].PnL.Decimal))
	assert.Equal(t, want[1].ExecutedAt(), got[1].ExecutedAt())

	none, err := LoadTradeCSV(path, models.SourceLive)
	require.NoError(t, err)
	assert.Empty(t, none)

	// Reopening without truncate appends below the existing header.
	log, err = NewCSVTradeLog(path, false)
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, want[0]))
	require.NoError(t, log.Close())
	all, err := LoadTradeCSV(path, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Error(t, log.Append(ctx, want[0]))
}

func TestReadTradeCSVLoose(t *testing.T) {
	in := `side,entry_price,entry_time,pnl,exit_time,exit_price,extra
buy,100.5,2024-11-01 00:03:00,None,,,x
SELL,100.5,2024-11-01T00:03:00Z,1.2,2024-11-01 00:09:00,101.7,y
`
	got, err := ReadTradeCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Sequence)
	assert.Equal(t, models.SideBuy, got[0].Side)
	assert.False(t, got[0].PnL.Valid)
	assert.Equal(t, 2, got[1].Sequence)
	assert.Equal(t, time.Date(2024, 11, 1, 0, 9, 0, 0, time.UTC), got[1].ExecutedAt())
	assert.True(t, decimal.RequireFromString("101.7").Equal(got[1].ExecutedPrice()))

	_, err = ReadTradeCSV(strings.NewReader("side,price\nBUY,1\n"))
	assert.Error(t, err)
	_, err = ReadTradeCSV(strings.NewReader("side,entry_time,entry_price\nHODL,2024-11-01 00:00:00,1\n"))
	assert.Error(t, err)

	empty, err := ReadTradeCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestWriteTradeCSV(t *testing.T) {
	var b strings.Builder
	require.NoError(t, WriteTradeCSV(&b, roundTrip()))
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(TradeCSVHeader, ","), lines[0])
	assert.Equal(t, "2,2024-11-03 11:02:00,BTCUSDT,SELL,2024-11-03 10:15:00,69012.5,2024-11-03 11:02:00,69500,0.001,0.4875,0.7064,BACKTEST,", lines[2])
}

func TestCSVTradeLogKeepsMilliseconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live_trades.csv")
	log, err := NewCSVTradeLog(path, true)
	require.NoError(t, err)

	fill := time.Date(2024, 11, 3, 10, 15, 0, 999*int(time.Millisecond), time.UTC)
	tr := roundTrip()[0]
	tr.EntryTime = fill
	tr.Source = models.SourceLive
	require.NoError(t, log.Append(context.Background(), tr))
	require.NoError(t, log.Close())

	got, err := LoadTradeCSV(path, models.SourceLive)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, fill.Equal(got[0].EntryTime), "got %s", got[0].EntryTime)
}
