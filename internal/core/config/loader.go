package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if cfg.Submission.HardTimeout <= cfg.Submission.SoftTimeout {
		return nil, fmt.Errorf(
			"submission hard_timeout (%v) must exceed soft_timeout (%v)",
			cfg.Submission.HardTimeout, cfg.Submission.SoftTimeout,
		)
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	p := &cfg.Pipeline
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 5
	}
	if p.BaseRetryDelay == 0 {
		p.BaseRetryDelay = 2 * time.Second
	}
	if p.MaxRetryDelay == 0 {
		p.MaxRetryDelay = 5 * time.Minute
	}
	if p.ConfidenceThreshold == 0 {
		p.ConfidenceThreshold = 0.70
	}
	if p.PollInterval == 0 {
		p.PollInterval = time.Second
	}
	if p.SLABands.CriticalHours == 0 {
		p.SLABands.CriticalHours = 8
	}
	if p.SLABands.HighHours == 0 {
		p.SLABands.HighHours = 24
	}
	if p.SLABands.MediumHours == 0 {
		p.SLABands.MediumHours = 72
	}
	if len(p.QueueClasses) == 0 {
		p.QueueClasses = []QueueClassConfig{
			{Name: "eligibility", Workers: 4, BackpressureThreshold: 500},
			{Name: "claims", Workers: 4, BackpressureThreshold: 500},
		}
	}
	for i := range p.QueueClasses {
		if p.QueueClasses[i].Workers == 0 {
			p.QueueClasses[i].Workers = 4
		}
		if p.QueueClasses[i].BackpressureThreshold == 0 {
			p.QueueClasses[i].BackpressureThreshold = 500
		}
	}

	if cfg.Submission.SoftTimeout == 0 {
		cfg.Submission.SoftTimeout = 55 * time.Second
	}
	if cfg.Submission.HardTimeout == 0 {
		cfg.Submission.HardTimeout = 60 * time.Second
	}
	if cfg.Rules.ClassificationPath == "" {
		cfg.Rules.ClassificationPath = "rules/classification.yaml"
	}
	if cfg.Rules.StrategyPath == "" {
		cfg.Rules.StrategyPath = "rules/strategies.yaml"
	}
}
