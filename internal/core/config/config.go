package config

import (
	"time"

	redisclient "github.com/denialdesk/reclaim/internal/infra/redis"
	"github.com/denialdesk/reclaim/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Database   postgres.Config    `yaml:"database"`
	Redis      redisclient.Config `yaml:"redis"`
	Pipeline   PipelineConfig     `yaml:"pipeline"`
	Submission SubmissionConfig   `yaml:"submission"`
	Rules      RulesConfig        `yaml:"rules"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RulesConfig points at the hot-swappable rule tables.
type RulesConfig struct {
	ClassificationPath string `yaml:"classification_path"`
	StrategyPath       string `yaml:"strategy_path"`
}

// SubmissionConfig holds settings for the external claims endpoint.
type SubmissionConfig struct {
	Transport   string        `yaml:"transport"` // http, grpc
	URL         string        `yaml:"url"`
	SoftTimeout time.Duration `yaml:"soft_timeout"` // escalate/log past this
	HardTimeout time.Duration `yaml:"hard_timeout"` // force-fail retryable past this
}

// QueueClassConfig sizes one worker pool. Rejections are partitioned into
// queue classes (e.g. eligibility vs claims) by the classifier's category.
type QueueClassConfig struct {
	Name                  string `yaml:"name"`
	Workers               int    `yaml:"workers"`
	BackpressureThreshold int    `yaml:"backpressure_threshold"`
}

// PipelineConfig holds the retry, correction, and SLA policy knobs. It is
// passed into components at construction and never mutated at runtime.
type PipelineConfig struct {
	MaxAttempts         int                `yaml:"max_attempts"`
	BaseRetryDelay      time.Duration      `yaml:"base_retry_delay"`
	MaxRetryDelay       time.Duration      `yaml:"max_retry_delay"`
	ConfidenceThreshold float64            `yaml:"confidence_threshold"`
	SLABands            SLABandConfig      `yaml:"sla_bands"`
	DefaultSLAWindow    time.Duration      `yaml:"default_sla_window"` // due_at fallback when the payer gives none; zero leaves it unset
	QueueClasses        []QueueClassConfig `yaml:"queue_classes"`
	PollInterval        time.Duration      `yaml:"poll_interval"` // scheduler dequeue cadence
}

// SLABandConfig holds the hours-until-due thresholds for priority banding.
type SLABandConfig struct {
	CriticalHours int `yaml:"critical_hours"`
	HighHours     int `yaml:"high_hours"`
	MediumHours   int `yaml:"medium_hours"`
}
