package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klineforge/internal/domain"
	"klineforge/internal/indicators"
	"klineforge/internal/labels"
)

func TestParsePlan(t *testing.T) {
	data := []byte(`
preset: legacy_pairs
indicators:
  - name: rsi
    params:
      period: 7
  - name: obv
label:
  steps: 3
  threshold: 0.01
  binary: true
`)
	p, err := ParsePlan(data)
	require.NoError(t, err)
	assert.Equal(t, "legacy_pairs", p.Preset)
	require.NotNil(t, p.Label)
	assert.Equal(t, labels.Builder{Steps: 3, Threshold: 0.01, Binary: true}, *p.Label)

	reqs, err := p.Requests()
	require.NoError(t, err)
	preset, err := indicators.Preset("legacy_pairs")
	require.NoError(t, err)
	require.Len(t, reqs, len(preset)+2)
	assert.Equal(t, preset, reqs[:len(preset)])
	assert.Equal(t, "rsi", reqs[len(preset)].Name)
	assert.Equal(t, 7.0, reqs[len(preset)].Params["period"])
	assert.Equal(t, "obv", reqs[len(preset)+1].Name)
}

func TestParsePlan_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		msg  string
	}{
		{
			name: "unknown key",
			data: "presets: default\n",
			msg:  "presets",
		},
		{
			name: "unknown preset",
			data: "preset: nope\n",
			msg:  "nope",
		},
		{
			name: "invalid indicator",
			data: "indicators:\n  - name: macd\n    params:\n      fast: 30\n      slow: 10\n",
			msg:  "macd",
		},
		{
			name: "oversized window",
			data: "indicators:\n  - name: momentum\n    params:\n      period: 1e19\n",
			msg:  "at most",
		},
		{
			name: "non-positive label steps",
			data: "label:\n  steps: 0\n",
			msg:  "steps",
		},
		{
			name: "malformed yaml",
			data: "indicators: [\n",
			msg:  "decode plan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParsePlan_EmptyDocument(t *testing.T) {
	p, err := ParsePlan(nil)
	require.NoError(t, err)
	assert.Equal(t, Plan{}, p)

	reqs, err := p.Requests()
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestPlan_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	want := Plan{
		Preset: "macd_legacy",
		Indicators: []indicators.Request{
			{Name: "bollinger", Params: map[string]float64{"period": 10, "k": 1.5}},
		},
		Label: &labels.Builder{Steps: 2},
	}
	require.NoError(t, want.Save(path))

	got, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadPlan_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadPlan(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("preset: unknown\n"), 0o644))
	_, err = LoadPlan(bad)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), bad)
}

func TestDefaultPlan_Validates(t *testing.T) {
	assert.NoError(t, DefaultPlan().Validate())
}
