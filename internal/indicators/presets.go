package indicators

import (
	"fmt"
	"sort"
	"strings"

	"klineforge/internal/domain"
)

var presets = map[string][]Request{
	"default": {
		{Name: "ema", Params: map[string]float64{"period": 12}},
		{Name: "ema", Params: map[string]float64{"period": 26}},
		{Name: "momentum", Params: map[string]float64{"period": 10}},
		{Name: "macd"},
		{Name: "bollinger", Params: map[string]float64{"period": 20}},
		{Name: "rsi", Params: map[string]float64{"period": 14}},
		{Name: "atr", Params: map[string]float64{"period": 14}},
		{Name: "obv"},
		{Name: "stochastic", Params: map[string]float64{"period": 14, "smooth": 3}},
		{Name: "cci", Params: map[string]float64{"period": 20}},
		{Name: "vwap", Params: map[string]float64{"period": 20}},
		{Name: "rolling_stats", Params: map[string]float64{"period": 20}},
		{Name: "lagged_return", Params: map[string]float64{"period": 1}},
		{Name: "lagged_return", Params: map[string]float64{"period": 5}},
	},
	// Short and long EMA and momentum, requested as pairs.
	"legacy_pairs": {
		{Name: "ema", Params: map[string]float64{"period": 12}},
		{Name: "ema", Params: map[string]float64{"period": 26}},
		{Name: "momentum", Params: map[string]float64{"period": 5}},
		{Name: "momentum", Params: map[string]float64{"period": 10}},
	},
	"macd_legacy": {
		{Name: "macd", Params: map[string]float64{"fast": 12, "slow": 26, "signal": 9, "legacy": 1}},
	},
	"bollinger_legacy": {
		{Name: "bollinger", Params: map[string]float64{"period": 20, "unsuffixed": 1}},
	},
}

// Preset returns a copy of the named request list.
func Preset(name string) ([]Request, error) {
	reqs, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (known: %s): %w", name, strings.Join(PresetNames(), ", "), domain.ErrConfiguration)
	}
	out := make([]Request, len(reqs))
	for i, r := range reqs {
		params := make(map[string]float64, len(r.Params))
		for k, v := range r.Params {
			params[k] = v
		}
		out[i] = Request{Name: r.Name, Params: params}
	}
	return out, nil
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
