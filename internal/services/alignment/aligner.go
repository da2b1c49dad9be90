package alignment

import (
	"sort"
	"time"

	"ParityBot/internal/domain/models"
)

// Resolve returns the index of the candle with the greatest CloseTime <= t.
// A candle whose window is still open at t is never returned. series must
// be ordered by open time.
func Resolve(series []models.Candle, t time.Time) (int, bool) {
	n := sort.Search(len(series), func(i int) bool {
		return series[i].CloseTime.After(t)
	})
	if n == 0 {
		return -1, false
	}
	return n - 1, true
}

// Align truncates series to the candles closed at or before t.
func Align(series []models.Candle, t time.Time) []models.Candle {
	idx, ok := Resolve(series, t)
	if !ok {
		return series[:0]
	}
	return series[:idx+1]
}

// Latest returns the aligned candle itself, or ErrTimeframeUnavailable when
// nothing in series has closed by t.
func Latest(series []models.Candle, t time.Time) (models.Candle, error) {
	idx, ok := Resolve(series, t)
	if !ok {
		return models.Candle{}, models.ErrTimeframeUnavailable
	}
	return series[idx], nil
}
