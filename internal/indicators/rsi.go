package indicators

import (
	"context"
	"math"

	"klineforge/internal/domain"
)

// RSI implements the Relative Strength Index using simple rolling means of
// gains and losses
type RSI struct {
	BaseIndicator
}

// NewRSI creates a new RSI indicator instance
func NewRSI(config IndicatorConfig) *RSI {
	return &RSI{BaseIndicator{Config: config}}
}

// Name returns the name of the indicator
func (r *RSI) Name() string {
	return "rsi"
}

func (r *RSI) Columns() []string {
	return []string{periodSuffix("rsi", r.Config.Period)}
}

// RequiredDataPoints counts the first difference, the window and the shift
func (r *RSI) RequiredDataPoints() int {
	return r.Config.Period + 2
}

// Apply computes the RSI column
func (r *RSI) Apply(ctx context.Context, s *domain.Series) error {
	delta := Diff(s.Closes(), 1)
	gains := make([]float64, len(delta))
	losses := make([]float64, len(delta))
	for i, d := range delta {
		if math.IsNaN(d) {
			gains[i], losses[i] = d, d
			continue
		}
		gains[i] = math.Max(d, 0)
		losses[i] = math.Max(-d, 0)
	}

	avgGain := RollingMean(gains, r.Config.Period)
	avgLoss := RollingMean(losses, r.Config.Period)
	values := make([]float64, len(delta))
	for i := range values {
		values[i] = rsiValue(avgGain[i], avgLoss[i])
	}
	return setColumns(s, r.Columns(), Shift(values, 1))
}

// rsiValue maps average gain and loss to RSI. A zero average loss makes RS
// infinite, which gives 100 when there were gains. A flat window (no gains,
// no losses) is 0/0; it gives the neutral 50 instead of 100 or undefined.
func rsiValue(avgGain, avgLoss float64) float64 {
	if math.IsNaN(avgGain) || math.IsNaN(avgLoss) {
		return math.NaN()
	}
	// Handle edge cases
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50 // Neutral if no change
		}
		return 100 // Max RSI if only gains
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
