// Package cleaner repairs and validates a bar series before features are
// derived from it. Every pass is exported so it can be run and tested on its
// own; Run applies them in the fixed order the pipeline relies on.
package cleaner

import (
	"context"
	"fmt"

	"klineforge/internal/domain"
	"klineforge/internal/ports"
)

// Cleaner runs the repair passes and logs what each one changed.
type Cleaner struct {
	logger ports.Logger
}

// New creates a new Cleaner.
func New(logger ports.Logger) (*Cleaner, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for cleaner")
	}
	return &Cleaner{logger: logger}, nil
}

// Run applies type normalization, time indexing, de-duplication, OHLC repair
// and invalid-row removal, in that order. Only timestamp violations are
// returned as errors; everything else is repaired or dropped and counted.
func (c *Cleaner) Run(ctx context.Context, s *domain.Series) (domain.CleanReport, error) {
	report := domain.CleanReport{RowsIn: s.Len()}
	fields := func(extra map[string]interface{}) map[string]interface{} {
		extra["symbol"] = s.Symbol
		extra["interval"] = s.Interval
		return extra
	}

	report.CoercedValues = NormalizeTypes(s)
	c.logger.Debug(ctx, "Normalized value types", fields(map[string]interface{}{"coerced": report.CoercedValues}))

	if err := IndexByTime(s); err != nil {
		c.logger.Error(ctx, err, "Time indexing failed", fields(map[string]interface{}{}))
		return report, err
	}

	report.DuplicatesDropped = DropDuplicates(s)
	c.logger.Info(ctx, "Dropped duplicate rows by open time", fields(map[string]interface{}{"dropped": report.DuplicatesDropped}))

	rc := RepairOHLC(s)
	report.HighLowSwapped = rc.Swapped
	report.HighsClamped = rc.HighsClamped
	report.LowsClamped = rc.LowsClamped
	c.logger.Info(ctx, "OHLC check", fields(map[string]interface{}{
		"swapped":       rc.Swapped,
		"highs_clamped": rc.HighsClamped,
		"lows_clamped":  rc.LowsClamped,
	}))

	dc := DropInvalid(s)
	report.NaNDropped = dc.NaN
	report.RowsAfterNaN = dc.AfterNaN
	report.NonPositivePriceDrops = dc.NonPositive
	report.RowsAfterPrice = dc.AfterPrice
	report.NegativeVolumeDropped = dc.NegativeVolume
	report.RowsOut = dc.Remaining
	c.logger.Info(ctx, "Removed undefined and negative rows", fields(map[string]interface{}{
		"nan_dropped":             dc.NaN,
		"non_positive_dropped":    dc.NonPositive,
		"negative_volume_dropped": dc.NegativeVolume,
		"remaining":               dc.Remaining,
	}))

	if !strictlyIncreasing(s.Bars) {
		// IndexByTime followed by DropDuplicates cannot leave equal or
		// decreasing keys behind; reaching this is a programming error.
		return report, fmt.Errorf("cleaned series keys are not strictly increasing")
	}
	return report, nil
}
