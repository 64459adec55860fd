package domain

import (
	"fmt"
	"math"
	"time"
)

// BaseColumns are the bar fields every output table carries, in output order.
var BaseColumns = []string{
	"open_time",
	"close_time",
	"open",
	"high",
	"low",
	"close",
	"volume",
	"quote_asset_volume",
	"number_of_trades",
	"taker_buy_base",
	"taker_buy_quote",
}

// RequiredNumericColumns is the set a cleaned row must have defined.
var RequiredNumericColumns = []string{
	"open", "high", "low", "close", "volume", "quote_asset_volume", "taker_buy_base", "taker_buy_quote",
}

// Series is an ordered set of bars keyed by OpenTime together with the
// feature columns derived from them. Columns stay aligned 1:1 with Bars.
type Series struct {
	Symbol   string
	Interval string
	Bars     []Bar

	columns map[string][]float64
	order   []string
}

// NewSeries creates a series that takes ownership of bars.
func NewSeries(symbol, interval string, bars []Bar) *Series {
	return &Series{
		Symbol:   symbol,
		Interval: interval,
		Bars:     bars,
		columns:  make(map[string][]float64),
	}
}

// Len returns the number of rows.
func (s *Series) Len() int { return len(s.Bars) }

// Columns returns the feature column names in the order they were added.
func (s *Series) Columns() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// HasColumn reports whether a feature column exists.
func (s *Series) HasColumn(name string) bool {
	_, ok := s.columns[name]
	return ok
}

// Column returns the named feature column. The returned slice is owned by
// the series and must not be modified.
func (s *Series) Column(name string) ([]float64, bool) {
	col, ok := s.columns[name]
	return col, ok
}

// SetColumn adds or replaces a feature column. Values must match the row count.
func (s *Series) SetColumn(name string, values []float64) error {
	if len(values) != len(s.Bars) {
		return fmt.Errorf("column %q has %d values, series has %d rows", name, len(values), len(s.Bars))
	}
	if _, exists := s.columns[name]; !exists {
		s.order = append(s.order, name)
	}
	if s.columns == nil {
		s.columns = make(map[string][]float64)
	}
	s.columns[name] = values
	return nil
}

// Value returns a base field or feature column value at row i by column name.
func (s *Series) Value(name string, i int) (float64, bool) {
	if col, ok := s.columns[name]; ok {
		return col[i], true
	}
	b := s.Bars[i]
	switch name {
	case "open":
		return b.Open, true
	case "high":
		return b.High, true
	case "low":
		return b.Low, true
	case "close":
		return b.Close, true
	case "volume":
		return b.Volume, true
	case "quote_asset_volume":
		return b.QuoteAssetVolume, true
	case "taker_buy_base":
		return b.TakerBuyBase, true
	case "taker_buy_quote":
		return b.TakerBuyQuote, true
	case "number_of_trades":
		if n, ok := b.Trades(); ok {
			return float64(n), true
		}
		return math.NaN(), true
	}
	return 0, false
}

// Closes returns a copy of the close prices.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Highs returns a copy of the high prices.
func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows returns a copy of the low prices.
func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Volumes returns a copy of the traded volumes.
func (s *Series) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// OpenTimes returns the ordering keys.
func (s *Series) OpenTimes() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.OpenTime
	}
	return out
}

// Filter keeps the rows for which keep returns true, in place, and returns
// the number of rows removed. Feature columns are filtered in lockstep.
func (s *Series) Filter(keep func(i int, b Bar) bool) int {
	mask := make([]bool, len(s.Bars))
	kept := 0
	for i, b := range s.Bars {
		if keep(i, b) {
			mask[i] = true
			kept++
		}
	}
	removed := len(s.Bars) - kept
	if removed == 0 {
		return 0
	}

	bars := make([]Bar, 0, kept)
	for i, b := range s.Bars {
		if mask[i] {
			bars = append(bars, b)
		}
	}
	for name, col := range s.columns {
		filtered := make([]float64, 0, kept)
		for i, v := range col {
			if mask[i] {
				filtered = append(filtered, v)
			}
		}
		s.columns[name] = filtered
	}
	s.Bars = bars
	return removed
}

// Reorder permutes the rows so that row i of the result is row perm[i] of
// the receiver. Feature columns follow the same permutation.
func (s *Series) Reorder(perm []int) {
	bars := make([]Bar, len(perm))
	for i, p := range perm {
		bars[i] = s.Bars[p]
	}
	for name, col := range s.columns {
		reordered := make([]float64, len(perm))
		for i, p := range perm {
			reordered[i] = col[p]
		}
		s.columns[name] = reordered
	}
	s.Bars = bars
}

// Select returns a new series holding the same bars and only the named
// feature columns, in the given order.
func (s *Series) Select(columns ...string) (*Series, error) {
	out := NewSeries(s.Symbol, s.Interval, append([]Bar(nil), s.Bars...))
	for _, name := range columns {
		col, ok := s.columns[name]
		if !ok {
			return nil, fmt.Errorf("select column %q: %w", name, ErrMissingColumn)
		}
		values := make([]float64, len(col))
		copy(values, col)
		if err := out.SetColumn(name, values); err != nil {
			return nil, err
		}
	}
	return out, nil
}
