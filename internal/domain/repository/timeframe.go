package repository

import (
	"fmt"
	"time"
)

// Timeframe represents candle resolution buckets, spelled as exchange intervals.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF3m  Timeframe = "3m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

var tfDurations = map[Timeframe]time.Duration{
	TF1m:  time.Minute,
	TF3m:  3 * time.Minute,
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF30m: 30 * time.Minute,
	TF1h:  time.Hour,
	TF4h:  4 * time.Hour,
	TF1d:  24 * time.Hour,
}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	_, ok := tfDurations[tf]
	return ok
}

// ParseTimeframe rejects timeframes the exchange client cannot request.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !IsValidTimeframe(tf) {
		return "", fmt.Errorf("unsupported timeframe: %q", s)
	}
	return tf, nil
}

// Duration is the bar length; zero for unsupported values.
func (tf Timeframe) Duration() time.Duration { return tfDurations[tf] }

// Truncate returns the open time of the bar containing t. Bars are aligned
// to the Unix epoch in UTC, as exchanges align them.
func (tf Timeframe) Truncate(t time.Time) time.Time {
	d := tf.Duration()
	if d <= 0 {
		return t
	}
	return t.UTC().Truncate(d)
}

// NextBoundary returns the first bar boundary strictly after t.
func (tf Timeframe) NextBoundary(t time.Time) time.Time {
	return tf.Truncate(t).Add(tf.Duration())
}

func (tf Timeframe) String() string { return string(tf) }
