// Package indicators derives causal feature columns from a cleaned series.
//
// Every windowed indicator shifts its output one row later, so the value
// stored at row i only depends on rows up to i-1. OBV is the only exception.
package indicators

import (
	"context"
	"fmt"

	"klineforge/internal/domain"
)

// Indicator represents a technical indicator that appends columns to a series
type Indicator interface {
	// Name returns the catalogue name of the indicator
	Name() string

	// Columns returns the column names Apply writes, in order
	Columns() []string

	// RequiredDataPoints returns the number of rows needed before every
	// output column can hold a defined value
	RequiredDataPoints() int

	// Apply computes the indicator over the whole series and appends its columns
	Apply(ctx context.Context, s *domain.Series) error
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the window length plus the row lost to the
// causal shift
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period + 1
}

func periodSuffix(prefix string, period int) string {
	return fmt.Sprintf("%s_%d", prefix, period)
}

// setColumns writes values under names, pairwise.
func setColumns(s *domain.Series, names []string, values ...[]float64) error {
	for i, name := range names {
		if err := s.SetColumn(name, values[i]); err != nil {
			return fmt.Errorf("failed to set column %s: %w", name, err)
		}
	}
	return nil
}
