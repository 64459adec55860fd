package domain

import (
	"math"
	"time"
)

// RawFieldCount is the arity of an exchange kline row.
const RawFieldCount = 12

// Raw kline field positions in exchange order.
const (
	FieldOpenTime = iota
	FieldOpen
	FieldHigh
	FieldLow
	FieldClose
	FieldVolume
	FieldCloseTime
	FieldQuoteAssetVolume
	FieldNumberOfTrades
	FieldTakerBuyBase
	FieldTakerBuyQuote
	FieldIgnore
)

// RawFieldNames lists the column names of a raw kline row, in exchange order.
var RawFieldNames = [RawFieldCount]string{
	"open_time",
	"open",
	"high",
	"low",
	"close",
	"volume",
	"close_time",
	"quote_asset_volume",
	"number_of_trades",
	"taker_buy_base",
	"taker_buy_quote",
	"ignore",
}

// RawRow is one kline as delivered by the exchange: 12 positional fields,
// numbers either as numeric-looking strings or as JSON numbers.
type RawRow []any

// Bar represents a single typed candlestick.
// Numeric fields hold NaN when the source value was not a number.
type Bar struct {
	OpenTime         time.Time // Start time of the interval (UTC, inclusive)
	CloseTime        time.Time // End time of the interval (UTC)
	Open             float64
	High             float64
	Low              float64
	Close            float64
	Volume           float64
	QuoteAssetVolume float64
	NumberOfTrades   *int64 // nil when unknown
	TakerBuyBase     float64
	TakerBuyQuote    float64
}

// Undefined returns the value used for missing numeric entries.
func Undefined() float64 { return math.NaN() }

// IsUndefined reports whether v is a missing numeric entry.
func IsUndefined(v float64) bool { return math.IsNaN(v) }

// Consistent reports whether the OHLC invariant holds for the bar.
func (b Bar) Consistent() bool {
	return b.High >= math.Max(b.Open, b.Close) &&
		b.Low <= math.Min(b.Open, b.Close) &&
		b.High >= b.Low
}

// Trades returns the number of trades and whether it is known.
func (b Bar) Trades() (int64, bool) {
	if b.NumberOfTrades == nil {
		return 0, false
	}
	return *b.NumberOfTrades, true
}

// Int64Ptr is a small helper for building bars with a known trade count.
func Int64Ptr(v int64) *int64 { return &v }
