package strategy

import (
	"fmt"
	"time"

	"ParityBot/internal/domain/models"
	"ParityBot/internal/domain/service"
	"ParityBot/internal/services/alignment"
	"ParityBot/internal/services/indicators"

	"github.com/shopspring/decimal"
)

// Params configure the multi-timeframe SMA crossover strategy.
type Params struct {
	Indicators    indicators.Params
	RSIOverbought float64
	RSIOversold   float64
}

func DefaultParams() Params {
	return Params{Indicators: indicators.DefaultParams(), RSIOverbought: 80, RSIOversold: 30}
}

// Engine is the FLAT/LONG state machine. It keeps no position of its own:
// callers pass the current state in and receive the next one back.
type Engine struct {
	symbol string
	p      Params
	ind    *indicators.Engine
}

func NewEngine(symbol string, p Params) *Engine {
	return &Engine{symbol: symbol, p: p, ind: indicators.NewEngine(p.Indicators)}
}

var _ service.SignalEngine = (*Engine)(nil)

func (e *Engine) Params() Params { return e.p }

// Step computes the snapshot at the close time at and evaluates it.
func (e *Engine) Step(state models.PositionState, primary, secondary []models.Candle, at time.Time) models.Decision {
	d := e.Evaluate(state, e.ind.Snapshot(primary, secondary, at))
	if last, err := alignment.Latest(primary, at); err == nil {
		d.PriceReference = last.Close
	}
	return d
}

// Evaluate is a pure function of the state and the snapshot.
func (e *Engine) Evaluate(state models.PositionState, s models.IndicatorSnapshot) models.Decision {
	d := models.Decision{
		Symbol:         e.symbol,
		Timestamp:      s.At,
		Action:         models.ActionHold,
		PriceReference: decimal.NewFromFloat(s.Close),
		Indicators:     s,
	}

	cross := crossover(s)
	rsiCode, rsiKnown := e.rsiReason(s)

	if state.IsLong() {
		d.Reasons = append(d.Reasons, models.ReasonInPosition)
		if cross == crossNone && !rsiKnown {
			d.Reasons = append(d.Reasons, models.ReasonInsufficientData)
			return d
		}
		d.Reasons = append(d.Reasons, cross.reason())
		if rsiKnown {
			d.Reasons = append(d.Reasons, rsiCode)
		}
		if cross == crossDown || rsiCode == models.ReasonRSIOverbought {
			d.Action = models.ActionSell
		}
		return d
	}

	d.Reasons = append(d.Reasons, models.ReasonFlat)
	if cross == crossNone || !rsiKnown {
		d.Reasons = append(d.Reasons, models.ReasonInsufficientData)
		return d
	}
	d.Reasons = append(d.Reasons, cross.reason())

	trendUp := false
	switch {
	case s.TrendSMA == nil:
		d.Reasons = append(d.Reasons, models.ReasonTrendUnavailable)
	case s.Close > *s.TrendSMA:
		trendUp = true
		d.Reasons = append(d.Reasons, models.ReasonTrendUp)
	default:
		d.Reasons = append(d.Reasons, models.ReasonTrendDown)
	}
	d.Reasons = append(d.Reasons, rsiCode)

	if cross == crossUp && trendUp && *s.RSI < e.p.RSIOverbought {
		d.Action = models.ActionBuy
	}
	return d
}

// Transition applies a confirmed fill to the state. HOLD decisions return
// the state unchanged.
func (e *Engine) Transition(state models.PositionState, d models.Decision, fill models.Fill) (models.PositionState, error) {
	switch d.Action {
	case models.ActionHold:
		return state, nil
	case models.ActionBuy:
		if state.IsLong() {
			return state, fmt.Errorf("%w: buy while %s", models.ErrInvalidTransition, state.Side)
		}
		return models.PositionState{
			Symbol:     state.Symbol,
			Side:       models.Long,
			EntryTime:  fill.Time,
			EntryPrice: fill.Price,
			Quantity:   fill.Quantity,
			UpdatedAt:  fill.Time,
		}, nil
	case models.ActionSell:
		if !state.IsLong() {
			return state, fmt.Errorf("%w: sell while %s", models.ErrInvalidTransition, state.Side)
		}
		next := models.NewFlatPosition(state.Symbol)
		next.UpdatedAt = fill.Time
		return next, nil
	default:
		return state, fmt.Errorf("%w: unknown action %q", models.ErrInvalidTransition, d.Action)
	}
}

func (e *Engine) rsiReason(s models.IndicatorSnapshot) (models.ReasonCode, bool) {
	if s.RSI == nil {
		return "", false
	}
	switch {
	case *s.RSI > e.p.RSIOverbought:
		return models.ReasonRSIOverbought, true
	case *s.RSI == e.p.RSIOverbought:
		return models.ReasonRSIHigh, true
	default:
		return models.ReasonRSIOK, true
	}
}

type crossKind int

const (
	crossNone crossKind = iota // undefined, not enough history
	crossFlat
	crossUp
	crossDown
)

func (c crossKind) reason() models.ReasonCode {
	switch c {
	case crossUp:
		return models.ReasonCrossUp
	case crossDown:
		return models.ReasonCrossDown
	default:
		return models.ReasonNoCross
	}
}

// crossover is a sign-change test between the previous and the current
// candle, so a cross fires once and does not repeat while the order holds.
func crossover(s models.IndicatorSnapshot) crossKind {
	if s.FastSMA == nil || s.SlowSMA == nil || s.PrevFastSMA == nil || s.PrevSlowSMA == nil {
		return crossNone
	}
	fast, slow, pf, ps := *s.FastSMA, *s.SlowSMA, *s.PrevFastSMA, *s.PrevSlowSMA
	switch {
	case pf <= ps && fast > slow:
		return crossUp
	case pf >= ps && fast < slow:
		return crossDown
	default:
		return crossFlat
	}
}
