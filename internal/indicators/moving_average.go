package indicators

import (
	"context"
	"fmt"

	"klineforge/internal/domain"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA of close
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	switch m.config.Type {
	case SimpleMovingAverage:
		return "sma"
	case ExponentialMovingAverage:
		return "ema"
	}
	return string(m.config.Type)
}

// Columns returns ema_{period} or sma_{period}
func (m *MovingAverage) Columns() []string {
	return []string{periodSuffix(m.Name(), m.Config.Period)}
}

// Apply computes the moving average based on the configured type
func (m *MovingAverage) Apply(ctx context.Context, s *domain.Series) error {
	var values []float64
	switch m.config.Type {
	case SimpleMovingAverage:
		values = RollingMean(s.Closes(), m.Config.Period)
	case ExponentialMovingAverage:
		values = EWM(s.Closes(), m.Config.Period)
	default:
		return fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
	return setColumns(s, m.Columns(), Shift(values, 1))
}
