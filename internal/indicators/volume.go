package indicators

import (
	"context"
	"math"

	"klineforge/internal/domain"
)

// OBV is On Balance Volume: the running sum of volume signed by the
// direction of the close. It is causal by construction and is not shifted.
type OBV struct{}

// NewOBV creates a new OBV indicator instance
func NewOBV() *OBV { return &OBV{} }

func (o *OBV) Name() string            { return "obv" }
func (o *OBV) Columns() []string       { return []string{"obv"} }
func (o *OBV) RequiredDataPoints() int { return 1 }

func (o *OBV) Apply(ctx context.Context, s *domain.Series) error {
	delta := Diff(s.Closes(), 1)
	signed := make([]float64, len(delta))
	for i, d := range delta {
		v := sign(d) * s.Bars[i].Volume
		if math.IsNaN(v) {
			v = 0
		}
		signed[i] = v
	}
	return setColumns(s, o.Columns(), CumSum(signed))
}

func sign(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return v
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// CumulativeVWAPColumn is written once per series, by the first VWAP applied.
const CumulativeVWAPColumn = "vwap_cumulative"

// VWAP is the volume weighted average close, both over the whole history and
// over a trailing window.
type VWAP struct {
	BaseIndicator
}

// NewVWAP creates a new VWAP indicator instance
func NewVWAP(config IndicatorConfig) *VWAP {
	return &VWAP{BaseIndicator{Config: config}}
}

func (v *VWAP) Name() string { return "vwap" }

func (v *VWAP) Columns() []string {
	return []string{CumulativeVWAPColumn, periodSuffix("vwap", v.Config.Period)}
}

func (v *VWAP) Apply(ctx context.Context, s *domain.Series) error {
	volumes := s.Volumes()
	closes := s.Closes()
	notional := make([]float64, len(closes))
	for i := range closes {
		notional[i] = volumes[i] * closes[i]
	}

	if !s.HasColumn(CumulativeVWAPColumn) {
		cumulative := Shift(ratio(CumSum(notional), CumSum(volumes)), 1)
		if err := s.SetColumn(CumulativeVWAPColumn, cumulative); err != nil {
			return err
		}
	}

	windowed := ratio(RollingSum(notional, v.Config.Period), RollingSum(volumes, v.Config.Period))
	return setColumns(s, v.Columns()[1:], Shift(windowed, 1))
}
