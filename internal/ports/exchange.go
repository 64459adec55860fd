package ports

import (
	"context"
	"time"

	"klineforge/internal/domain"
)

// KlineSource fetches raw historical klines from an exchange or a cache in
// front of one.
type KlineSource interface {
	// GetHistoricalKlines returns every kline of symbol/interval whose open
	// time lies in [start, end], oldest first, as raw exchange rows.
	// A zero end means "up to now".
	GetHistoricalKlines(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.RawRow, error)
}
