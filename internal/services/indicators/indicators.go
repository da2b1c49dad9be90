package indicators

import (
	"time"

	"ParityBot/internal/domain/models"
	"ParityBot/internal/services/alignment"
)

// SMA returns the arithmetic mean of the last n values.
func SMA(values []float64, n int) (float64, bool) {
	if n <= 0 || len(values) < n {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n), true
}

// RSI computes Wilder's RSI over the last lookback closes. The first period
// changes in the window seed the averages with a simple mean; any further
// changes are smoothed with avg = (avg*(period-1) + x) / period.
// Needs at least period+1 closes; lookback below period+1 is raised to it.
func RSI(closes []float64, period, lookback int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	if lookback < period+1 {
		lookback = period + 1
	}
	if lookback > len(closes) {
		lookback = len(closes)
	}
	window := closes[len(closes)-lookback:]

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		g, l := gainLoss(window[i] - window[i-1])
		avgGain += g
		avgLoss += l
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	p := float64(period)
	for i := period + 1; i < len(window); i++ {
		g, l := gainLoss(window[i] - window[i-1])
		avgGain = (avgGain*(p-1) + g) / p
		avgLoss = (avgLoss*(p-1) + l) / p
	}

	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50, true
	case avgLoss == 0:
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

func gainLoss(delta float64) (float64, float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

// Params are the indicator periods.
type Params struct {
	FastPeriod  int
	SlowPeriod  int
	TrendPeriod int
	RSIPeriod   int
	RSILookback int
}

// DefaultParams returns fast 5, slow 10, trend 50, RSI 14.
func DefaultParams() Params {
	return Params{FastPeriod: 5, SlowPeriod: 10, TrendPeriod: 50, RSIPeriod: 14, RSILookback: 15}
}

// Engine computes snapshots. It holds only parameters and is safe for
// concurrent use across symbols.
type Engine struct {
	p Params
}

func NewEngine(p Params) *Engine {
	return &Engine{p: p}
}

func (e *Engine) Params() Params { return e.p }

// Snapshot evaluates indicators as of time at. Candles that close after at
// are ignored on both timeframes.
func (e *Engine) Snapshot(primary, secondary []models.Candle, at time.Time) models.IndicatorSnapshot {
	primary = alignment.Align(primary, at)
	snap := models.IndicatorSnapshot{At: at}
	if len(primary) == 0 {
		return snap
	}
	closes := models.Closes(primary)
	snap.Close = closes[len(closes)-1]

	snap.FastSMA = opt(SMA(closes, e.p.FastPeriod))
	snap.SlowSMA = opt(SMA(closes, e.p.SlowPeriod))
	prev := closes[:len(closes)-1]
	snap.PrevFastSMA = opt(SMA(prev, e.p.FastPeriod))
	snap.PrevSlowSMA = opt(SMA(prev, e.p.SlowPeriod))
	snap.RSI = opt(RSI(closes, e.p.RSIPeriod, e.p.RSILookback))

	// an unavailable secondary leaves the trend nil, which blocks BUY only
	if last, err := alignment.Latest(secondary, at); err == nil {
		trend := models.Closes(alignment.Align(secondary, last.CloseTime))
		snap.TrendSMA = opt(SMA(trend, e.p.TrendPeriod))
		snap.TrendClose = opt(last.Close.InexactFloat64(), true)
	}
	return snap
}

func opt(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
