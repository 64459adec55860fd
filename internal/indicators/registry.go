package indicators

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"klineforge/internal/domain"
)

// Request names one catalogue indicator and its parameters. Parameters that
// are omitted take the catalogue default.
type Request struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

type entry struct {
	defaults map[string]float64
	build    func(p params) (Indicator, error)
}

var catalogue = map[string]entry{
	"sma": {
		defaults: map[string]float64{"period": 20},
		build: func(p params) (Indicator, error) {
			return NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: p.window("period")}, Type: SimpleMovingAverage}), nil
		},
	},
	"ema": {
		defaults: map[string]float64{"period": 12},
		build: func(p params) (Indicator, error) {
			return NewMovingAverage(MovingAverageConfig{IndicatorConfig: IndicatorConfig{Period: p.window("period")}, Type: ExponentialMovingAverage}), nil
		},
	},
	"momentum": {
		defaults: map[string]float64{"period": 10},
		build: func(p params) (Indicator, error) {
			return NewMomentum(IndicatorConfig{Period: p.window("period")}), nil
		},
	},
	"macd": {
		defaults: map[string]float64{"fast": 12, "slow": 26, "signal": 9, "legacy": 0},
		build: func(p params) (Indicator, error) {
			cfg := MACDConfig{Fast: p.window("fast"), Slow: p.window("slow"), Signal: p.window("signal"), Legacy: p.flag("legacy")}
			if cfg.Fast >= cfg.Slow {
				return nil, fmt.Errorf("fast period %d must be shorter than slow period %d: %w", cfg.Fast, cfg.Slow, domain.ErrConfiguration)
			}
			return NewMACD(cfg), nil
		},
	},
	"bollinger": {
		defaults: map[string]float64{"period": 20, "k": DefaultBandWidth, "unsuffixed": 0},
		build: func(p params) (Indicator, error) {
			if err := p.atLeast("period", 2); err != nil {
				return nil, err
			}
			if !(p.values["k"] > 0) || math.IsInf(p.values["k"], 0) {
				return nil, fmt.Errorf("parameter k must be positive, got %v: %w", p.values["k"], domain.ErrConfiguration)
			}
			return NewBollinger(BollingerConfig{
				IndicatorConfig: IndicatorConfig{Period: p.window("period")},
				K:               p.values["k"],
				Unsuffixed:      p.flag("unsuffixed"),
			}), nil
		},
	},
	"rsi": {
		defaults: map[string]float64{"period": 14},
		build: func(p params) (Indicator, error) {
			return NewRSI(IndicatorConfig{Period: p.window("period")}), nil
		},
	},
	"atr": {
		defaults: map[string]float64{"period": 14},
		build: func(p params) (Indicator, error) {
			return NewATR(IndicatorConfig{Period: p.window("period")}), nil
		},
	},
	"obv": {
		defaults: map[string]float64{},
		build: func(p params) (Indicator, error) {
			return NewOBV(), nil
		},
	},
	"stochastic": {
		defaults: map[string]float64{"period": 14, "smooth": 3},
		build: func(p params) (Indicator, error) {
			return NewStochastic(StochasticConfig{IndicatorConfig: IndicatorConfig{Period: p.window("period")}, Smooth: p.window("smooth")}), nil
		},
	},
	"cci": {
		defaults: map[string]float64{"period": 20},
		build: func(p params) (Indicator, error) {
			return NewCCI(IndicatorConfig{Period: p.window("period")}), nil
		},
	},
	"vwap": {
		defaults: map[string]float64{"period": 20},
		build: func(p params) (Indicator, error) {
			return NewVWAP(IndicatorConfig{Period: p.window("period")}), nil
		},
	},
	"rolling_stats": {
		defaults: map[string]float64{"period": 20},
		build: func(p params) (Indicator, error) {
			if err := p.atLeast("period", 2); err != nil {
				return nil, err
			}
			return NewRollingStats(IndicatorConfig{Period: p.window("period")}), nil
		},
	},
	"zscore": {
		defaults: map[string]float64{"period": 20},
		build: func(p params) (Indicator, error) {
			if err := p.atLeast("period", 2); err != nil {
				return nil, err
			}
			return NewZScore(IndicatorConfig{Period: p.window("period")}), nil
		},
	},
	"lagged_return": {
		defaults: map[string]float64{"period": 1},
		build: func(p params) (Indicator, error) {
			return NewLaggedReturn(IndicatorConfig{Period: p.window("period")}), nil
		},
	},
}

// flags are on/off parameters; every other parameter is a window length
// except the Bollinger band width.
var flags = map[string]bool{"legacy": true, "unsuffixed": true}

// Names returns the catalogue names in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MaxWindow bounds every window parameter so it converts to int without
// overflow on any platform.
const MaxWindow = math.MaxInt32

// Build validates a request and returns the indicator it names. Every
// failure wraps domain.ErrConfiguration.
func Build(req Request) (Indicator, error) {
	name := strings.ToLower(strings.TrimSpace(req.Name))
	sp, ok := catalogue[name]
	if !ok {
		return nil, fmt.Errorf("unknown indicator %q: %w", req.Name, domain.ErrConfiguration)
	}

	p := params{values: make(map[string]float64, len(sp.defaults))}
	for k, v := range sp.defaults {
		p.values[k] = v
	}
	for k, v := range req.Params {
		if _, known := sp.defaults[k]; !known {
			return nil, fmt.Errorf("indicator %s: unknown parameter %q: %w", name, k, domain.ErrConfiguration)
		}
		p.values[k] = v
	}
	for k, v := range p.values {
		if flags[k] || k == "k" {
			continue
		}
		if v <= 0 || v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("indicator %s: parameter %s must be a positive integer, got %v: %w", name, k, v, domain.ErrConfiguration)
		}
		if v > MaxWindow {
			return nil, fmt.Errorf("indicator %s: parameter %s must be at most %d, got %v: %w", name, k, MaxWindow, v, domain.ErrConfiguration)
		}
	}

	ind, err := sp.build(p)
	if err != nil {
		return nil, fmt.Errorf("indicator %s: %w", name, err)
	}
	return ind, nil
}

// BuildAll builds every request in order.
func BuildAll(reqs []Request) ([]Indicator, error) {
	out := make([]Indicator, 0, len(reqs))
	for i, req := range reqs {
		ind, err := Build(req)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		out = append(out, ind)
	}
	return out, nil
}

type params struct {
	values map[string]float64
}

func (p params) window(key string) int { return int(p.values[key]) }

func (p params) flag(key string) bool { return p.values[key] != 0 }

func (p params) atLeast(key string, lo int) error {
	if p.window(key) < lo {
		return fmt.Errorf("parameter %s must be at least %d, got %d: %w", key, lo, p.window(key), domain.ErrConfiguration)
	}
	return nil
}
