// Package labels builds the forward-looking training target. Unlike the
// indicators, these columns deliberately look ahead.
package labels

import (
	"fmt"
	"math"

	"klineforge/internal/domain"
)

const (
	FuturePriceColumn = "future_price"
	PctChangeColumn   = "pct_change"
	BinaryLabelColumn = "binary_label"
)

// AddFuturePrice writes future_price[i] = close[i+steps] and
// pct_change = (future_price - close) / close. The last steps rows are
// undefined.
func AddFuturePrice(s *domain.Series, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("label steps must be positive, got %d: %w", steps, domain.ErrConfiguration)
	}

	closes := s.Closes()
	future := make([]float64, len(closes))
	pct := make([]float64, len(closes))
	for i := range closes {
		if i+steps >= len(closes) {
			future[i] = domain.Undefined()
			pct[i] = domain.Undefined()
			continue
		}
		future[i] = closes[i+steps]
		if closes[i] == 0 {
			pct[i] = domain.Undefined()
			continue
		}
		pct[i] = (future[i] - closes[i]) / closes[i]
	}

	if err := s.SetColumn(FuturePriceColumn, future); err != nil {
		return err
	}
	return s.SetColumn(PctChangeColumn, pct)
}

// AddBinaryLabel writes binary_label = 1 where pct_change >= threshold and 0
// otherwise. Rows with an undefined pct_change get an undefined label so they
// can be excluded from training instead of counting as negatives.
func AddBinaryLabel(s *domain.Series, threshold float64) error {
	if _, ok := s.Column(FuturePriceColumn); !ok {
		return fmt.Errorf("binary label needs column %q: %w", FuturePriceColumn, domain.ErrMissingColumn)
	}
	pct, ok := s.Column(PctChangeColumn)
	if !ok {
		return fmt.Errorf("binary label needs column %q: %w", PctChangeColumn, domain.ErrMissingColumn)
	}
	if math.IsNaN(threshold) {
		return fmt.Errorf("label threshold is undefined: %w", domain.ErrConfiguration)
	}

	label := make([]float64, len(pct))
	for i, v := range pct {
		switch {
		case domain.IsUndefined(v):
			label[i] = domain.Undefined()
		case v >= threshold:
			label[i] = 1
		default:
			label[i] = 0
		}
	}
	return s.SetColumn(BinaryLabelColumn, label)
}

// Builder applies the future price and, optionally, the binary label.
type Builder struct {
	Steps     int     `yaml:"steps"`
	Threshold float64 `yaml:"threshold"`
	Binary    bool    `yaml:"binary"`
}

// Columns returns the columns Apply writes.
func (b Builder) Columns() []string {
	cols := []string{FuturePriceColumn, PctChangeColumn}
	if b.Binary {
		cols = append(cols, BinaryLabelColumn)
	}
	return cols
}

// Apply writes the label columns to s.
func (b Builder) Apply(s *domain.Series) error {
	if err := AddFuturePrice(s, b.Steps); err != nil {
		return err
	}
	if !b.Binary {
		return nil
	}
	return AddBinaryLabel(s, b.Threshold)
}
