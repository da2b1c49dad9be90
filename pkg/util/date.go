package util

import (
	"fmt"
	"strconv"
	"time"
)

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts RFC3339, "YYYY-MM-DD[ HH:MM[:SS]]" (UTC) and unix
// seconds or milliseconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		// 1e11 seconds is year 5138; anything larger is milliseconds
		if ts > 1e11 {
			return time.UnixMilli(ts).UTC(), true
		}
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// ResolveRange turns a start/end pair into a concrete [from, to) window.
// An empty end means now; an empty start means days before end.
func ResolveRange(start, end string, days int, now time.Time) (time.Time, time.Time, error) {
	to := now.UTC()
	if end != "" {
		t, ok := ParseTime(end)
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end time %q", end)
		}
		to = t
	}

	var from time.Time
	switch {
	case start != "":
		t, ok := ParseTime(start)
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start time %q", start)
		}
		from = t
	case days > 0:
		from = to.AddDate(0, 0, -days)
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("either start or days is required")
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %s is not before end %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from, to, nil
}
