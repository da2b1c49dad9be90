package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts any letter case.
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	default:
		return "", false
	}
}

type TradeSource string

const (
	SourceBacktest TradeSource = "BACKTEST"
	SourceLive     TradeSource = "LIVE"
)

// TradeRecord is one line of a trade log. A round trip writes a BUY record
// carrying the entry and a SELL record carrying entry, exit and result.
type TradeRecord struct {
	Sequence   int                 `json:"sequence"`
	Symbol     string              `json:"symbol"`
	Side       Side                `json:"side"`
	EntryTime  time.Time           `json:"entry_time"`
	EntryPrice decimal.Decimal     `json:"entry_price"`
	ExitTime   *time.Time          `json:"exit_time,omitempty"`
	ExitPrice  decimal.NullDecimal `json:"exit_price"`
	Quantity   decimal.Decimal     `json:"quantity"`
	PnL        decimal.NullDecimal `json:"pnl"`
	ReturnPct  decimal.NullDecimal `json:"return_pct"`
	Source     TradeSource         `json:"source"`
	OrderID    string              `json:"order_id,omitempty"`
}

// ExecutedAt is the time of the record's own fill.
func (t TradeRecord) ExecutedAt() time.Time {
	if t.Side == SideSell && t.ExitTime != nil {
		return *t.ExitTime
	}
	return t.EntryTime
}

// ExecutedPrice is the price of the record's own fill.
func (t TradeRecord) ExecutedPrice() decimal.Decimal {
	if t.Side == SideSell && t.ExitPrice.Valid {
		return t.ExitPrice.Decimal
	}
	return t.EntryPrice
}

// Fill is what an order executor reports for an accepted order.
type Fill struct {
	OrderID  string          `json:"order_id"`
	Side     Side            `json:"side"`
	Time     time.Time       `json:"time"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}
