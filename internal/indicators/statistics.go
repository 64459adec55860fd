package indicators

import (
	"context"
	"fmt"
	"math"

	"klineforge/internal/domain"
)

// RollingStats writes the trailing mean, sample std, min and max of close.
type RollingStats struct {
	BaseIndicator
}

// NewRollingStats creates a new rolling statistics indicator instance
func NewRollingStats(config IndicatorConfig) *RollingStats {
	return &RollingStats{BaseIndicator{Config: config}}
}

func (r *RollingStats) Name() string { return "rolling_stats" }

func (r *RollingStats) Columns() []string {
	p := r.Config.Period
	return []string{
		periodSuffix("rolling_mean", p),
		periodSuffix("rolling_std", p),
		periodSuffix("rolling_min", p),
		periodSuffix("rolling_max", p),
	}
}

func (r *RollingStats) Apply(ctx context.Context, s *domain.Series) error {
	closes := s.Closes()
	p := r.Config.Period
	return setColumns(s, r.Columns(),
		Shift(RollingMean(closes, p), 1),
		Shift(RollingStd(closes, p), 1),
		Shift(RollingMin(closes, p), 1),
		Shift(RollingMax(closes, p), 1),
	)
}

// ZScore is (close - rolling mean) / rolling std.
type ZScore struct {
	BaseIndicator
}

// NewZScore creates a new z-score indicator instance
func NewZScore(config IndicatorConfig) *ZScore {
	return &ZScore{BaseIndicator{Config: config}}
}

func (z *ZScore) Name() string { return "zscore" }

func (z *ZScore) Columns() []string {
	return []string{periodSuffix("zscore", z.Config.Period)}
}

// Apply fails with domain.ErrDegenerateWindow on the first complete window
// whose standard deviation or mean is exactly zero. Nothing is written in
// that case.
func (z *ZScore) Apply(ctx context.Context, s *domain.Series) error {
	closes := s.Closes()
	p := z.Config.Period
	avg := RollingMean(closes, p)
	std := RollingStd(closes, p)

	values := undefinedColumn(len(closes))
	for i := range closes {
		if math.IsNaN(avg[i]) || math.IsNaN(std[i]) {
			continue
		}
		if std[i] == 0 {
			return fmt.Errorf("zscore period %d: rolling std is zero at row %d: %w", p, i, domain.ErrDegenerateWindow)
		}
		if avg[i] == 0 {
			return fmt.Errorf("zscore period %d: rolling mean is zero at row %d: %w", p, i, domain.ErrDegenerateWindow)
		}
		values[i] = (closes[i] - avg[i]) / std[i]
	}
	return setColumns(s, z.Columns(), Shift(values, 1))
}
