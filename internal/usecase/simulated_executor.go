package usecase

import (
	"context"
	"fmt"

	"ParityBot/internal/domain/models"
	domrepo "ParityBot/internal/domain/repository"

	"github.com/shopspring/decimal"
)

// SimulatedExecutor fills every order at the decision's reference price
// (the close of the evaluated candle) at the decision time.
type SimulatedExecutor struct {
	quantity decimal.Decimal
	orders   int
}

var _ domrepo.OrderExecutor = (*SimulatedExecutor)(nil)

func NewSimulatedExecutor(quantity decimal.Decimal) *SimulatedExecutor {
	return &SimulatedExecutor{quantity: quantity}
}

func (e *SimulatedExecutor) Execute(_ context.Context, d models.Decision, pos models.PositionState) (models.Fill, error) {
	fill := models.Fill{Time: d.Timestamp, Price: d.PriceReference, Quantity: e.quantity}
	switch d.Action {
	case models.ActionBuy:
		fill.Side = models.SideBuy
	case models.ActionSell:
		fill.Side = models.SideSell
		if pos.Quantity.IsPositive() {
			fill.Quantity = pos.Quantity
		}
	default:
		return models.Fill{}, fmt.Errorf("%w: nothing to execute for %s", models.ErrExecutionFailure, d.Action)
	}
	if !d.PriceReference.IsPositive() {
		return models.Fill{}, fmt.Errorf("%w: no reference price", models.ErrExecutionFailure)
	}
	e.orders++
	fill.OrderID = fmt.Sprintf("sim-%d", e.orders)
	return fill, nil
}
