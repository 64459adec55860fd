package indicators

import (
	"context"

	"klineforge/internal/domain"
)

// MACDConfig holds configuration for the MACD indicator
type MACDConfig struct {
	Fast   int
	Slow   int
	Signal int

	// Legacy computes the signal over the unshifted line and shifts it once.
	// The default computes it over the already shifted line and shifts again,
	// so the signal never sees a value from the current row.
	Legacy bool
}

// MACD implements Moving Average Convergence Divergence over close
type MACD struct {
	config MACDConfig
}

// NewMACD creates a new MACD indicator instance
func NewMACD(config MACDConfig) *MACD {
	return &MACD{config: config}
}

func (m *MACD) Name() string {
	if m.config.Legacy {
		return "macd_legacy"
	}
	return "macd"
}

func (m *MACD) Columns() []string { return []string{"macd", "macd_signal"} }

func (m *MACD) RequiredDataPoints() int {
	return m.config.Slow + m.config.Signal
}

func (m *MACD) Apply(ctx context.Context, s *domain.Series) error {
	closes := s.Closes()
	fast := EWM(closes, m.config.Fast)
	slow := EWM(closes, m.config.Slow)

	raw := make([]float64, len(closes))
	for i := range raw {
		raw[i] = fast[i] - slow[i]
	}

	line := Shift(raw, 1)
	var signal []float64
	if m.config.Legacy {
		signal = Shift(EWM(raw, m.config.Signal), 1)
	} else {
		signal = Shift(EWM(line, m.config.Signal), 1)
	}
	return setColumns(s, m.Columns(), line, signal)
}
