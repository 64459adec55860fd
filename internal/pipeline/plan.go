package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"klineforge/internal/domain"
	"klineforge/internal/indicators"
	"klineforge/internal/labels"
)

// Plan lists the indicators to compute, in order, and the optional label.
// A preset, when named, expands in front of the explicit indicators.
type Plan struct {
	Preset     string               `yaml:"preset,omitempty"`
	Indicators []indicators.Request `yaml:"indicators,omitempty"`
	Label      *labels.Builder      `yaml:"label,omitempty"`
}

// DefaultPlan computes the default indicator preset with no label.
func DefaultPlan() Plan {
	return Plan{Preset: "default"}
}

// Requests returns the full ordered request list.
func (p Plan) Requests() ([]indicators.Request, error) {
	var reqs []indicators.Request
	if p.Preset != "" {
		preset, err := indicators.Preset(p.Preset)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, preset...)
	}
	return append(reqs, p.Indicators...), nil
}

// Validate builds every indicator once and checks the label settings.
func (p Plan) Validate() error {
	reqs, err := p.Requests()
	if err != nil {
		return err
	}
	if _, err := indicators.BuildAll(reqs); err != nil {
		return err
	}
	if p.Label != nil && p.Label.Steps <= 0 {
		return fmt.Errorf("label steps must be positive, got %d: %w", p.Label.Steps, domain.ErrConfiguration)
	}
	return nil
}

// ParsePlan decodes a YAML plan. Unknown keys are rejected.
func ParsePlan(data []byte) (Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Plan{}, fmt.Errorf("decode plan: %v: %w", err, domain.ErrConfiguration)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// LoadPlan reads and validates a YAML plan file.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read plan %s: %w", path, err)
	}
	p, err := ParsePlan(data)
	if err != nil {
		return Plan{}, fmt.Errorf("plan %s: %w", path, err)
	}
	return p, nil
}

// Save writes the plan as YAML.
func (p Plan) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
