package usecase

import (
	"fmt"

	"ParityBot/internal/domain/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TradeBook turns confirmed fills into trade records and keeps running
// totals. Backtest and live use the same book so their logs line up.
type TradeBook struct {
	symbol     string
	source     models.TradeSource
	commission decimal.Decimal

	seq    int
	closed int
	wins   int
	pnl    decimal.Decimal
}

// NewTradeBook numbers records after startSeq. Commission is a fraction of
// notional charged on both legs.
func NewTradeBook(symbol string, source models.TradeSource, commission decimal.Decimal, startSeq int) *TradeBook {
	return &TradeBook{symbol: symbol, source: source, commission: commission, seq: startSeq}
}

// Record builds the record for fill. prev is the position before the fill.
func (b *TradeBook) Record(fill models.Fill, prev models.PositionState) (models.TradeRecord, error) {
	t := models.TradeRecord{
		Symbol:   b.symbol,
		Side:     fill.Side,
		Quantity: fill.Quantity,
		Source:   b.source,
		OrderID:  fill.OrderID,
	}
	switch fill.Side {
	case models.SideBuy:
		t.EntryTime = fill.Time
		t.EntryPrice = fill.Price
	case models.SideSell:
		if !prev.IsLong() {
			return t, fmt.Errorf("%w: sell fill while flat", models.ErrInvalidTransition)
		}
		exit := fill.Time
		t.EntryTime = prev.EntryTime
		t.EntryPrice = prev.EntryPrice
		t.ExitTime = &exit
		t.ExitPrice = decimal.NewNullDecimal(fill.Price)

		cost := prev.EntryPrice.Mul(fill.Quantity)
		gross := fill.Price.Sub(prev.EntryPrice).Mul(fill.Quantity)
		fees := cost.Add(fill.Price.Mul(fill.Quantity)).Mul(b.commission)
		pnl := gross.Sub(fees)
		t.PnL = decimal.NewNullDecimal(pnl)
		if cost.IsPositive() {
			t.ReturnPct = decimal.NewNullDecimal(pnl.Div(cost).Mul(hundred).Round(6))
		}

		b.closed++
		b.pnl = b.pnl.Add(pnl)
		if pnl.IsPositive() {
			b.wins++
		}
	default:
		return t, fmt.Errorf("unknown fill side %q", fill.Side)
	}
	b.seq++
	t.Sequence = b.seq
	return t, nil
}

// Summary reports the totals against initial capital.
func (b *TradeBook) Summary(initialCapital decimal.Decimal) Summary {
	s := Summary{
		Records:        b.seq,
		RoundTrips:     b.closed,
		Wins:           b.wins,
		TotalPnL:       b.pnl,
		InitialCapital: initialCapital,
		FinalEquity:    initialCapital.Add(b.pnl),
	}
	if b.closed > 0 {
		s.WinRate = float64(b.wins) / float64(b.closed) * 100
	}
	if initialCapital.IsPositive() {
		s.ReturnPct = b.pnl.Div(initialCapital).Mul(hundred).InexactFloat64()
	}
	return s
}

// Summary is the outcome of a run.
type Summary struct {
	Records        int             `json:"records"`
	RoundTrips     int             `json:"round_trips"`
	Wins           int             `json:"wins"`
	WinRate        float64         `json:"win_rate"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	ReturnPct      float64         `json:"return_pct"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalEquity    decimal.Decimal `json:"final_equity"`
	Decisions      int             `json:"decisions"`
	OpenPosition   bool            `json:"open_position"`
}
