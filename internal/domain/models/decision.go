package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// ReasonCode tags one evaluated condition behind a decision.
type ReasonCode string

const (
	ReasonCrossUp          ReasonCode = "CROSS_UP"
	ReasonCrossDown        ReasonCode = "CROSS_DOWN"
	ReasonNoCross          ReasonCode = "NO_CROSS"
	ReasonTrendUp          ReasonCode = "TREND_UP"
	ReasonTrendDown        ReasonCode = "TREND_DOWN"
	ReasonTrendUnavailable ReasonCode = "TREND_UNAVAILABLE"
	ReasonRSIOK            ReasonCode = "RSI_OK"
	ReasonRSIHigh          ReasonCode = "RSI_HIGH"
	ReasonRSIOverbought    ReasonCode = "RSI_OVERBOUGHT"
	ReasonInsufficientData ReasonCode = "INSUFFICIENT_DATA"
	ReasonInPosition       ReasonCode = "IN_POSITION"
	ReasonFlat             ReasonCode = "FLAT"
)

// IndicatorSnapshot holds indicator readings as of one closed primary candle.
// Nil fields are undefined.
type IndicatorSnapshot struct {
	At          time.Time `json:"at"`
	Close       float64   `json:"close"`
	FastSMA     *float64  `json:"fast_sma,omitempty"`
	SlowSMA     *float64  `json:"slow_sma,omitempty"`
	PrevFastSMA *float64  `json:"prev_fast_sma,omitempty"`
	PrevSlowSMA *float64  `json:"prev_slow_sma,omitempty"`
	TrendSMA    *float64  `json:"trend_sma,omitempty"`
	TrendClose  *float64  `json:"trend_close,omitempty"`
	RSI         *float64  `json:"rsi,omitempty"`
}

// Decision is emitted once per evaluated primary candle close.
type Decision struct {
	Symbol         string            `json:"symbol"`
	Timestamp      time.Time         `json:"timestamp"`
	Action         Action            `json:"action"`
	PriceReference decimal.Decimal   `json:"price_reference"`
	Reasons        []ReasonCode      `json:"reasons"`
	Indicators     IndicatorSnapshot `json:"indicators"`
}

func (d Decision) IsTrade() bool { return d.Action == ActionBuy || d.Action == ActionSell }

// HasReason reports whether the decision carries code.
func (d Decision) HasReason(code ReasonCode) bool {
	for _, r := range d.Reasons {
		if r == code {
			return true
		}
	}
	return false
}
