package indicators

import (
	"context"

	"klineforge/internal/domain"
)

// CCIScale keeps most Commodity Channel Index values within ±100.
const CCIScale = 0.015

// StochasticConfig holds configuration for the stochastic oscillator
type StochasticConfig struct {
	IndicatorConfig
	Smooth int // %D window over %K
}

// Stochastic implements the stochastic oscillator %K and %D.
type Stochastic struct {
	BaseIndicator
	smooth int
}

// NewStochastic creates a new stochastic oscillator instance
func NewStochastic(config StochasticConfig) *Stochastic {
	return &Stochastic{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		smooth:        config.Smooth,
	}
}

func (st *Stochastic) Name() string { return "stochastic" }

func (st *Stochastic) Columns() []string {
	return []string{periodSuffix("stoch_k", st.Config.Period), periodSuffix("stoch_d", st.Config.Period)}
}

// RequiredDataPoints covers the %K window, its shift and the %D window
func (st *Stochastic) RequiredDataPoints() int {
	return st.Config.Period + st.smooth
}

// Apply writes %K shifted by one row and %D as the mean of the already
// shifted %K. A flat high/low range leaves %K undefined.
func (st *Stochastic) Apply(ctx context.Context, s *domain.Series) error {
	lowest := RollingMin(s.Lows(), st.Config.Period)
	highest := RollingMax(s.Highs(), st.Config.Period)
	closes := s.Closes()

	num := make([]float64, len(closes))
	den := make([]float64, len(closes))
	for i := range closes {
		num[i] = closes[i] - lowest[i]
		den[i] = highest[i] - lowest[i]
	}
	k := ratio(num, den)
	for i := range k {
		k[i] *= 100
	}
	k = Shift(k, 1)
	d := RollingMean(k, st.smooth)
	return setColumns(s, st.Columns(), k, d)
}

// CCI implements the Commodity Channel Index over the typical price
type CCI struct {
	BaseIndicator
}

// NewCCI creates a new CCI indicator instance
func NewCCI(config IndicatorConfig) *CCI {
	return &CCI{BaseIndicator{Config: config}}
}

func (c *CCI) Name() string { return "cci" }

func (c *CCI) Columns() []string {
	return []string{periodSuffix("cci", c.Config.Period)}
}

// Apply computes the CCI column. A window with zero mean absolute deviation
// is undefined.
func (c *CCI) Apply(ctx context.Context, s *domain.Series) error {
	tp := TypicalPrice(s)
	avg := RollingMean(tp, c.Config.Period)
	mad := RollingMeanAbsDev(tp, c.Config.Period)

	num := make([]float64, len(tp))
	den := make([]float64, len(tp))
	for i := range tp {
		num[i] = tp[i] - avg[i]
		den[i] = CCIScale * mad[i]
	}
	return setColumns(s, c.Columns(), Shift(ratio(num, den), 1))
}

// TypicalPrice returns (high + low + close) / 3 for every bar.
func TypicalPrice(s *domain.Series) []float64 {
	out := make([]float64, s.Len())
	for i, b := range s.Bars {
		out[i] = (b.High + b.Low + b.Close) / 3
	}
	return out
}
