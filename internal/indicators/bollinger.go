package indicators

import (
	"context"

	"klineforge/internal/domain"
)

// DefaultBandWidth is the number of standard deviations between mid and band.
const DefaultBandWidth = 2.0

// BollingerConfig holds configuration for Bollinger Bands
type BollingerConfig struct {
	IndicatorConfig
	K float64 // band width in standard deviations

	// Unsuffixed writes bb_mid/bb_std/bb_upper/bb_lower instead of the
	// period-qualified names.
	Unsuffixed bool
}

// Bollinger implements Bollinger Bands over close
type Bollinger struct {
	BaseIndicator
	config BollingerConfig
}

// NewBollinger creates a new Bollinger Bands indicator instance
func NewBollinger(config BollingerConfig) *Bollinger {
	if config.K == 0 {
		config.K = DefaultBandWidth
	}
	return &Bollinger{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

func (b *Bollinger) Name() string { return "bollinger" }

func (b *Bollinger) Columns() []string {
	prefix := periodSuffix("bb", b.Config.Period)
	if b.config.Unsuffixed {
		prefix = "bb"
	}
	return []string{prefix + "_mid", prefix + "_std", prefix + "_upper", prefix + "_lower"}
}

func (b *Bollinger) Apply(ctx context.Context, s *domain.Series) error {
	closes := s.Closes()
	mid := Shift(RollingMean(closes, b.Config.Period), 1)
	std := Shift(RollingStd(closes, b.Config.Period), 1)

	upper := make([]float64, len(closes))
	lower := make([]float64, len(closes))
	for i := range closes {
		upper[i] = mid[i] + b.config.K*std[i]
		lower[i] = mid[i] - b.config.K*std[i]
	}
	return setColumns(s, b.Columns(), mid, std, upper, lower)
}
