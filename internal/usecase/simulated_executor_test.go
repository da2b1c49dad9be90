package usecase

import (
	"context"
	"testing"

	"ParityBot/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedExecutorFillsAtClose(t *testing.T) {
	e := NewSimulatedExecutor(qty)
	d := models.Decision{Symbol: "BTCUSDT", Timestamp: start, Action: models.ActionBuy, PriceReference: decimal.NewFromInt(100)}

	fill, err := e.Execute(context.Background(), d, models.NewFlatPosition("BTCUSDT"))
	require.NoError(t, err)
	assert.Equal(t, start, fill.Time)
	assert.Equal(t, "sim-1", fill.OrderID)
	assert.True(t, qty.Equal(fill.Quantity))

	d.Action = models.ActionSell
	pos := models.PositionState{Side: models.Long, Quantity: decimal.RequireFromString("0.3")}
	fill, err = e.Execute(context.Background(), d, pos)
	require.NoError(t, err)
	assert.Equal(t, models.SideSell, fill.Side)
	assert.Equal(t, "0.3", fill.Quantity.String())

	d.Action = models.ActionHold
	_, err = e.Execute(context.Background(), d, pos)
	assert.ErrorIs(t, err, models.ErrExecutionFailure)
}
