package usecase

import (
	"testing"
	"time"

	"ParityBot/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeBookRoundTrip(t *testing.T) {
	book := NewTradeBook("BTCUSDT", models.SourceBacktest, decimal.RequireFromString("0.001"), 0)
	qty := decimal.RequireFromString("0.5")

	buy, err := book.Record(models.Fill{Side: models.SideBuy, Time: start, Price: decimal.NewFromInt(100), Quantity: qty, OrderID: "1"}, models.NewFlatPosition("BTCUSDT"))
	require.NoError(t, err)
	assert.Equal(t, 1, buy.Sequence)
	assert.False(t, buy.PnL.Valid)
	assert.Nil(t, buy.ExitTime)

	long := models.PositionState{Symbol: "BTCUSDT", Side: models.Long, EntryTime: start, EntryPrice: decimal.NewFromInt(100), Quantity: qty}
	exitAt := start.Add(10 * time.Minute)
	sell, err := book.Record(models.Fill{Side: models.SideSell, Time: exitAt, Price: decimal.NewFromInt(110), Quantity: qty}, long)
	require.NoError(t, err)

	assert.Equal(t, 2, sell.Sequence)
	assert.Equal(t, start, sell.EntryTime)
	assert.Equal(t, exitAt, *sell.ExitTime)
	// gross 5, fees (50 + 55) * 0.001 = 0.105
	assert.Equal(t, "4.895", sell.PnL.Decimal.String())
	assert.Equal(t, "9.79", sell.ReturnPct.Decimal.String())

	sum := book.Summary(decimal.NewFromInt(10000))
	assert.Equal(t, 2, sum.Records)
	assert.Equal(t, 1, sum.RoundTrips)
	assert.Equal(t, 100.0, sum.WinRate)
	assert.Equal(t, "10004.895", sum.FinalEquity.String())
	assert.InDelta(t, 0.04895, sum.ReturnPct, 1e-9)
}

func TestTradeBookRejectsSellWhileFlat(t *testing.T) {
	book := NewTradeBook("BTCUSDT", models.SourceLive, decimal.Zero, 7)
	_, err := book.Record(models.Fill{Side: models.SideSell, Time: start, Price: decimal.NewFromInt(1)}, models.NewFlatPosition("BTCUSDT"))
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	rec, err := book.Record(models.Fill{Side: models.SideBuy, Time: start, Price: decimal.NewFromInt(1)}, models.NewFlatPosition("BTCUSDT"))
	require.NoError(t, err)
	assert.Equal(t, 8, rec.Sequence, "numbering continues after startSeq")
}
