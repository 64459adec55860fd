package indicators

import (
	"context"

	"klineforge/internal/domain"
)

// Momentum is close[t] - close[t-period].
type Momentum struct {
	BaseIndicator
}

// NewMomentum creates a new momentum indicator instance
func NewMomentum(config IndicatorConfig) *Momentum {
	return &Momentum{BaseIndicator{Config: config}}
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) Columns() []string {
	return []string{periodSuffix("momentum", m.Config.Period)}
}

// RequiredDataPoints counts the difference base, the window and the shift
func (m *Momentum) RequiredDataPoints() int { return m.Config.Period + 2 }

func (m *Momentum) Apply(ctx context.Context, s *domain.Series) error {
	return setColumns(s, m.Columns(), Shift(Diff(s.Closes(), m.Config.Period), 1))
}

// LaggedReturn is the fractional change of close over period rows.
type LaggedReturn struct {
	BaseIndicator
}

// NewLaggedReturn creates a new lagged return indicator instance
func NewLaggedReturn(config IndicatorConfig) *LaggedReturn {
	return &LaggedReturn{BaseIndicator{Config: config}}
}

func (l *LaggedReturn) Name() string { return "lagged_return" }

func (l *LaggedReturn) Columns() []string {
	return []string{periodSuffix("return_lag", l.Config.Period)}
}

func (l *LaggedReturn) RequiredDataPoints() int { return l.Config.Period + 2 }

func (l *LaggedReturn) Apply(ctx context.Context, s *domain.Series) error {
	return setColumns(s, l.Columns(), Shift(PctChange(s.Closes(), l.Config.Period), 1))
}
