package binance

import (
	"context"
	"fmt"
	"time"

	"ParityBot/internal/domain/models"
	drepo "ParityBot/internal/domain/repository"
	applogger "ParityBot/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// orderPlacer is the part of Client the executor needs.
type orderPlacer interface {
	PlaceMarketOrder(ctx context.Context, symbol string, side models.Side, qty decimal.Decimal, clientOrderID string) (OrderResponse, error)
}

// Executor fills decisions with exchange market orders. In dry-run mode no
// order is sent and the fill is taken at the decision's reference price.
type Executor struct {
	orders   orderPlacer
	quantity decimal.Decimal
	dryRun   bool
	log      *applogger.Logger
	now      func() time.Time
}

var _ drepo.OrderExecutor = (*Executor)(nil)

func NewExecutor(orders orderPlacer, quantity decimal.Decimal, dryRun bool, log *applogger.Logger) *Executor {
	return &Executor{orders: orders, quantity: quantity, dryRun: dryRun, log: log, now: time.Now}
}

// Execute buys the configured quantity, or sells the quantity held.
func (e *Executor) Execute(ctx context.Context, d models.Decision, pos models.PositionState) (models.Fill, error) {
	var side models.Side
	qty := e.quantity
	switch d.Action {
	case models.ActionBuy:
		side = models.SideBuy
	case models.ActionSell:
		side = models.SideSell
		if pos.Quantity.IsPositive() {
			qty = pos.Quantity
		}
	default:
		return models.Fill{}, fmt.Errorf("%w: nothing to execute for %s", models.ErrExecutionFailure, d.Action)
	}

	clientID := "pb-" + uuid.NewString()[:18]
	if e.dryRun {
		e.log.Info("dry-run order",
			applogger.String("symbol", d.Symbol),
			applogger.String("side", string(side)),
			applogger.String("qty", qty.String()),
			applogger.String("price", d.PriceReference.String()),
		)
		return models.Fill{OrderID: clientID, Side: side, Time: e.now().UTC(), Price: d.PriceReference, Quantity: qty}, nil
	}

	resp, err := e.orders.PlaceMarketOrder(ctx, d.Symbol, side, qty, clientID)
	if err != nil {
		return models.Fill{}, fmt.Errorf("%w: %v", models.ErrExecutionFailure, err)
	}
	if resp.ExecutedQty.IsZero() {
		return models.Fill{}, fmt.Errorf("%w: order %s status %s with no fill", models.ErrExecutionFailure, resp.ClientOrderID, resp.Status)
	}

	fill := models.Fill{
		OrderID:  fmt.Sprintf("%d", resp.OrderID),
		Side:     side,
		Time:     time.UnixMilli(resp.TransactTime).UTC(),
		Price:    resp.AvgPrice(),
		Quantity: resp.ExecutedQty,
	}
	e.log.Info("order filled",
		applogger.String("symbol", d.Symbol),
		applogger.String("side", string(side)),
		applogger.String("order_id", fill.OrderID),
		applogger.String("qty", fill.Quantity.String()),
		applogger.String("avg_price", fill.Price.String()),
	)
	return fill, nil
}
