package binanceclient

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"klineforge/internal/domain"
)

var lookbackUnits = map[byte]time.Duration{
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// ParseLookback parses a relative window such as "720d", "12h", "4w" or
// "30m".
func ParseLookback(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid lookback %q: %w", s, domain.ErrConfiguration)
	}
	unit, ok := lookbackUnits[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("invalid lookback %q: unit must be one of m, h, d, w: %w", s, domain.ErrConfiguration)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid lookback %q: amount must be a positive integer: %w", s, domain.ErrConfiguration)
	}
	return time.Duration(n) * unit, nil
}

// StartFor returns the start time of a lookback window ending at now.
func StartFor(lookback string, now time.Time) (time.Time, error) {
	d, err := ParseLookback(lookback)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-d), nil
}

// Kline intervals accepted by the exchange, except 1M which has no fixed
// length and is handled by LastClosed.
var intervalDurations = map[string]time.Duration{
	"1s":  time.Second,
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

const monthInterval = "1M"

// firstMonday is the first Monday after the Unix epoch; weekly klines open
// on Mondays 00:00 UTC.
var firstMonday = time.Date(1970, 1, 5, 0, 0, 0, 0, time.UTC)

// ValidateInterval checks that interval is a kline interval the exchange
// serves.
func ValidateInterval(interval string) error {
	if _, ok := intervalDurations[interval]; ok || interval == monthInterval {
		return nil
	}
	return fmt.Errorf("invalid interval %q: %w", interval, domain.ErrConfiguration)
}

// LastClosed returns the open time of the kline that is still forming at
// now, i.e. the boundary every earlier kline has closed before. It is stable
// for the whole interval.
func LastClosed(interval string, now time.Time) (time.Time, error) {
	now = now.UTC()
	if interval == monthInterval {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	d, ok := intervalDurations[interval]
	if !ok {
		return time.Time{}, fmt.Errorf("invalid interval %q: %w", interval, domain.ErrConfiguration)
	}
	origin := time.Unix(0, 0).UTC()
	if interval == "1w" {
		origin = firstMonday
	}
	r := now.Sub(origin) % d
	if r < 0 {
		r += d
	}
	return now.Add(-r), nil
}

// ClosedRange returns the lookback window ending with the last closed kline
// of interval at now. end is one millisecond before the forming kline's open
// time, so the exchange, which filters on open time, returns closed klines
// only. Both bounds are stable for the whole interval.
func ClosedRange(interval, lookback string, now time.Time) (start, end time.Time, err error) {
	boundary, err := LastClosed(interval, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err = StartFor(lookback, boundary)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, boundary.Add(-time.Millisecond), nil
}
