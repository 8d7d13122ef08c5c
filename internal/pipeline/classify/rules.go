package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/denialdesk/reclaim/internal/core/domain"
)

// Rule describes how one rejection code is categorized.
type Rule struct {
	Category   string `yaml:"category"`
	Severity   string `yaml:"severity"`
	QueueClass string `yaml:"queue_class"` // worker pool partition, defaults to "claims"
}

// RuleTable maps rejection codes to classification rules. It is read-only at
// pipeline runtime and safe to share across workers without locking.
type RuleTable struct {
	rules map[string]Rule
}

// LoadRules reads a rule table from a YAML file. The file is the
// hot-swappable half of the classifier: operators edit it, the service
// reloads it at startup.
func LoadRules(path string) (*RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule table: %w", err)
	}

	var raw map[string]Rule
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse rule table: %w", err)
	}
	return NewRuleTable(raw), nil
}

// NewRuleTable builds a table from an in-memory rule map.
func NewRuleTable(raw map[string]Rule) *RuleTable {
	rules := make(map[string]Rule, len(raw))
	for code, r := range raw {
		if r.QueueClass == "" {
			r.QueueClass = "claims"
		}
		rules[code] = r
	}
	return &RuleTable{rules: rules}
}

// Lookup returns the rule for a code and whether the code is known.
func (t *RuleTable) Lookup(code string) (Rule, bool) {
	r, ok := t.rules[code]
	return r, ok
}

// severityFromString falls back to medium for anything unrecognized, the
// same safety default applied to unknown rejection codes.
func severityFromString(s string) domain.Severity {
	switch domain.Severity(s) {
	case domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium,
		domain.SeverityLow, domain.SeverityInfo:
		return domain.Severity(s)
	}
	return domain.SeverityMedium
}
