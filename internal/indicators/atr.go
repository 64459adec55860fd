package indicators

import (
	"context"
	"math"

	"klineforge/internal/domain"
)

// ATR implements the Average True Range as an exponential average of the
// true range
type ATR struct {
	BaseIndicator
}

// NewATR creates a new Average True Range indicator instance
func NewATR(config IndicatorConfig) *ATR {
	return &ATR{BaseIndicator{Config: config}}
}

func (a *ATR) Name() string { return "atr" }

func (a *ATR) Columns() []string {
	return []string{periodSuffix("atr", a.Config.Period)}
}

// Apply computes the ATR column
func (a *ATR) Apply(ctx context.Context, s *domain.Series) error {
	return setColumns(s, a.Columns(), Shift(EWM(TrueRange(s), a.Config.Period), 1))
}

// TrueRange returns the true range of every bar. The first bar has no prior
// close, so its range is high - low.
func TrueRange(s *domain.Series) []float64 {
	out := make([]float64, s.Len())
	for i, b := range s.Bars {
		// True Range is the greatest of:
		// 1. Current High - Current Low
		// 2. |Current High - Previous Close|
		// 3. |Current Low - Previous Close|
		tr := b.High - b.Low
		if i > 0 {
			prevClose := s.Bars[i-1].Close
			tr = maxDefined(tr, math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose))
		}
		out[i] = tr
	}
	return out
}

// maxDefined returns the largest defined value, or NaN when none is.
func maxDefined(vals ...float64) float64 {
	m := math.NaN()
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(m) || v > m {
			m = v
		}
	}
	return m
}
