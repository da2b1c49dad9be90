package binance

import (
	"context"
	"errors"
	"testing"

	"ParityBot/internal/domain/models"
	applogger "ParityBot/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlacer struct {
	resp OrderResponse
	err  error
	qty  decimal.Decimal
	side models.Side
}

func (f *fakePlacer) PlaceMarketOrder(_ context.Context, _ string, side models.Side, qty decimal.Decimal, _ string) (OrderResponse, error) {
	f.side, f.qty = side, qty
	return f.resp, f.err
}

func buyDecision() models.Decision {
	return models.Decision{Symbol: "BTCUSDT", Timestamp: t0, Action: models.ActionBuy, PriceReference: decimal.NewFromInt(100)}
}

func TestExecutorDryRun(t *testing.T) {
	e := NewExecutor(&fakePlacer{err: errors.New("must not be called")}, decimal.RequireFromString("0.001"), true, applogger.Nop())
	fill, err := e.Execute(context.Background(), buyDecision(), models.NewFlatPosition("BTCUSDT"))
	require.NoError(t, err)
	assert.Equal(t, models.SideBuy, fill.Side)
	assert.True(t, decimal.NewFromInt(100).Equal(fill.Price))
	assert.NotEmpty(t, fill.OrderID)
}

func TestExecutorSellsHeldQuantity(t *testing.T) {
	placer := &fakePlacer{resp: OrderResponse{
		OrderID:             7,
		TransactTime:        t0.UnixMilli(),
		ExecutedQty:         decimal.RequireFromString("0.002"),
		CummulativeQuoteQty: decimal.RequireFromString("0.21"),
		Status:              "FILLED",
	}}
	e := NewExecutor(placer, decimal.RequireFromString("0.001"), false, applogger.Nop())
	d := buyDecision()
	d.Action = models.ActionSell
	pos := models.PositionState{Symbol: "BTCUSDT", Side: models.Long, Quantity: decimal.RequireFromString("0.002")}

	fill, err := e.Execute(context.Background(), d, pos)
	require.NoError(t, err)
	assert.Equal(t, models.SideSell, placer.side)
	assert.True(t, decimal.RequireFromString("0.002").Equal(placer.qty))
	assert.True(t, decimal.RequireFromString("105").Equal(fill.Price))
	assert.Equal(t, "7", fill.OrderID)
	assert.Equal(t, t0, fill.Time)
}

func TestExecutorFailuresWrap(t *testing.T) {
	e := NewExecutor(&fakePlacer{err: errors.New("timeout")}, decimal.RequireFromString("0.001"), false, applogger.Nop())
	_, err := e.Execute(context.Background(), buyDecision(), models.NewFlatPosition("BTCUSDT"))
	assert.ErrorIs(t, err, models.ErrExecutionFailure)

	e = NewExecutor(&fakePlacer{resp: OrderResponse{Status: "EXPIRED"}}, decimal.RequireFromString("0.001"), false, applogger.Nop())
	_, err = e.Execute(context.Background(), buyDecision(), models.NewFlatPosition("BTCUSDT"))
	assert.ErrorIs(t, err, models.ErrExecutionFailure)

	hold := buyDecision()
	hold.Action = models.ActionHold
	_, err = e.Execute(context.Background(), hold, models.NewFlatPosition("BTCUSDT"))
	assert.ErrorIs(t, err, models.ErrExecutionFailure)
}
