package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is a closed OHLCV bar. CloseTime is the exclusive end of the bar's
// window: the candle may influence a decision at T only if CloseTime <= T.
type Candle struct {
	Symbol    string          `json:"symbol"`
	OpenTime  time.Time       `json:"open_time"`
	CloseTime time.Time       `json:"close_time"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// ClosedAt reports whether the candle window has fully elapsed at t.
func (c Candle) ClosedAt(t time.Time) bool {
	return !c.CloseTime.After(t)
}

// SortCandles orders candles by open time and drops duplicates, keeping the
// last occurrence of each open time.
func SortCandles(in []Candle) []Candle {
	if len(in) == 0 {
		return in
	}
	sort.SliceStable(in, func(i, j int) bool { return in[i].OpenTime.Before(in[j].OpenTime) })
	out := in[:0]
	for _, c := range in {
		if n := len(out); n > 0 && out[n-1].OpenTime.Equal(c.OpenTime) {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

// Closes extracts close prices as float64 for indicator math.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close.InexactFloat64()
	}
	return out
}
