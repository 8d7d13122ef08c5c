package correct

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Strategy binds one rejection code to a transform and a baseline
// confidence. auto_eligible=false pins the code to manual review no matter
// how confident the transform is.
type Strategy struct {
	Transform    string  `yaml:"transform"`
	AutoEligible bool    `yaml:"auto_eligible"`
	Confidence   float64 `yaml:"confidence"`
}

// StrategyTable maps rejection codes to correction strategies. Read-only at
// pipeline runtime; shared across workers without locking.
type StrategyTable struct {
	strategies map[string]Strategy
}

// LoadStrategies reads a strategy table from a YAML file and verifies every
// referenced transform exists. Failing at load beats failing per record.
func LoadStrategies(path string) (*StrategyTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy table: %w", err)
	}

	var raw map[string]Strategy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse strategy table: %w", err)
	}
	return NewStrategyTable(raw)
}

// NewStrategyTable builds a table from an in-memory strategy map.
func NewStrategyTable(raw map[string]Strategy) (*StrategyTable, error) {
	for code, s := range raw {
		if _, err := LookupTransform(s.Transform); err != nil {
			return nil, fmt.Errorf("strategy for %s: %w", code, err)
		}
		if s.Confidence < 0 || s.Confidence > 1 {
			return nil, fmt.Errorf("strategy for %s: confidence %f out of range", code, s.Confidence)
		}
	}
	return &StrategyTable{strategies: raw}, nil
}

// Lookup returns the strategy for a code and whether the code has one.
func (t *StrategyTable) Lookup(code string) (Strategy, bool) {
	s, ok := t.strategies[code]
	return s, ok
}
