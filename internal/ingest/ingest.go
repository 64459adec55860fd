// Package ingest turns raw exchange kline rows into a typed bar series.
package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"klineforge/internal/domain"
)

// FromRows converts raw kline rows into a Series. A row with the wrong arity
// or an unparsable timestamp aborts the whole conversion; unparsable numeric
// cells become undefined.
func FromRows(symbol, interval string, rows []domain.RawRow) (*domain.Series, error) {
	bars := make([]domain.Bar, 0, len(rows))
	for i, row := range rows {
		bar, err := ParseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		bars = append(bars, bar)
	}
	return domain.NewSeries(symbol, interval, bars), nil
}

// ParseRow converts one raw row into a Bar.
func ParseRow(row domain.RawRow) (domain.Bar, error) {
	if len(row) != domain.RawFieldCount {
		return domain.Bar{}, fmt.Errorf("expected %d fields, got %d: %w", domain.RawFieldCount, len(row), domain.ErrSchema)
	}

	openTime, err := parseMillis(row[domain.FieldOpenTime])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("column %s: %v: %w", domain.RawFieldNames[domain.FieldOpenTime], err, domain.ErrTimeParse)
	}
	closeTime, err := parseMillis(row[domain.FieldCloseTime])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("column %s: %v: %w", domain.RawFieldNames[domain.FieldCloseTime], err, domain.ErrTimeParse)
	}

	return domain.Bar{
		OpenTime:         openTime,
		CloseTime:        closeTime,
		Open:             Float(row[domain.FieldOpen]),
		High:             Float(row[domain.FieldHigh]),
		Low:              Float(row[domain.FieldLow]),
		Close:            Float(row[domain.FieldClose]),
		Volume:           Float(row[domain.FieldVolume]),
		QuoteAssetVolume: Float(row[domain.FieldQuoteAssetVolume]),
		NumberOfTrades:   Count(row[domain.FieldNumberOfTrades]),
		TakerBuyBase:     Float(row[domain.FieldTakerBuyBase]),
		TakerBuyQuote:    Float(row[domain.FieldTakerBuyQuote]),
	}, nil
}

// Float coerces a raw cell to float64, returning NaN when it is not a number.
func Float(cell any) float64 {
	switch v := cell.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// Count coerces a raw cell to a non-negative integer. Anything else is
// reported as unknown (nil).
func Count(cell any) *int64 {
	f := Float(cell)
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) || f >= 1<<63 {
		return nil
	}
	n := int64(f)
	return &n
}

func parseMillis(cell any) (time.Time, error) {
	var ms int64
	switch v := cell.(type) {
	case int64:
		ms = v
	case int:
		ms = int64(v)
	case int32:
		ms = int64(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || v >= 1<<63 || v < -1<<63 {
			return time.Time{}, fmt.Errorf("%v is not an integer millisecond timestamp", v)
		}
		ms = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%q is not an integer millisecond timestamp", v.String())
		}
		ms = n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%q is not an integer millisecond timestamp", v)
		}
		ms = n
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", cell)
	}
	return time.UnixMilli(ms).UTC(), nil
}
