// Package config provides configuration management for the daylog pipeline.
// It supports loading configuration from YAML files with environment
// variable overrides for deployment-sensitive values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultHighThreshold      = 0.8
	DefaultMediumThreshold    = 0.5
	DefaultMatchFloor         = 0.5
	DefaultFallbackConfidence = 0.3
	DefaultDailyCapacityMin   = 480
	DefaultAnalyzerTimeout    = 30 * time.Second
	DefaultMaxAttempts        = 3
	DefaultRankCandidates     = 10
	DefaultContextTokenBudget = 1000
)

// Config is the root configuration for the daylog pipeline.
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Inference InferenceConfig `yaml:"inference"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PipelineConfig holds the tunable thresholds and limits of the inference
// and reconciliation pipeline.
type PipelineConfig struct {
	// HighThreshold is the confidence at or above which extractions (and
	// their selected ticket match, if one is required) auto-approve.
	HighThreshold float64 `yaml:"high_threshold"`

	// MediumThreshold is the confidence at or above which extractions are
	// created flagged for human review. Below it nothing is auto-created.
	MediumThreshold float64 `yaml:"medium_threshold"`

	// MatchFloor discards ticket match candidates below this confidence
	// entirely rather than returning them as weak candidates.
	MatchFloor float64 `yaml:"match_floor"`

	// FallbackConfidence is assigned to extractions synthesized from raw
	// text after a parse failure.
	FallbackConfidence float64 `yaml:"fallback_confidence"`

	// RankCandidates caps how many tickets are sent to the inference
	// service for the semantic ranking pass.
	RankCandidates int `yaml:"rank_candidates"`

	// ContextTokenBudget bounds the surrounding thread context injected
	// into analysis prompts.
	ContextTokenBudget int `yaml:"context_token_budget"`

	// DailyCapacityMinutes is the scheduling capacity of one day.
	DailyCapacityMinutes int `yaml:"daily_capacity_minutes"`

	// MaxParallelAnalyses bounds concurrent inference calls per worker.
	MaxParallelAnalyses int `yaml:"max_parallel_analyses"`

	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig is the orchestrator's retry contract for transient failures.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
}

// InferenceConfig configures the external text-completion service client.
type InferenceConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`

	// RequestsPerSecond rate-limits outbound inference calls; zero
	// disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

// RedisConfig holds Redis connection settings for the job queue and the
// completion-event sink.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSONFormat bool   `yaml:"json_format"`
}

// Default returns a Config with development defaults.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			HighThreshold:        DefaultHighThreshold,
			MediumThreshold:      DefaultMediumThreshold,
			MatchFloor:           DefaultMatchFloor,
			FallbackConfidence:   DefaultFallbackConfidence,
			RankCandidates:       DefaultRankCandidates,
			ContextTokenBudget:   DefaultContextTokenBudget,
			DailyCapacityMinutes: DefaultDailyCapacityMin,
			MaxParallelAnalyses:  4,
			Retry: RetryConfig{
				MaxAttempts:    DefaultMaxAttempts,
				InitialBackoff: time.Second,
				MaxBackoff:     5 * time.Minute,
				BackoffFactor:  2.0,
			},
		},
		Inference: InferenceConfig{
			BaseURL:           "https://openrouter.ai/api/v1",
			Model:             "gpt-4o-mini",
			MaxTokens:         2000,
			Temperature:       0.1,
			Timeout:           DefaultAnalyzerTimeout,
			RequestsPerSecond: 2,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "daylog",
			User:     "daylog",
			SSLMode:  "disable",
			MaxConns: 25,
			MinConns: 5,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path (if non-empty), applies environment
// overrides, validates, and returns the result. A missing file with an
// empty path is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides deployment-sensitive values from the environment.
// Secrets (API keys, passwords) are expected to arrive this way rather
// than living in the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("DAYLOG_INFERENCE_API_KEY"); v != "" {
		c.Inference.APIKey = v
	}
	if v := os.Getenv("DAYLOG_INFERENCE_BASE_URL"); v != "" {
		c.Inference.BaseURL = v
	}
	if v := os.Getenv("DAYLOG_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DAYLOG_DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Database.Port = p
		}
	}
	if v := os.Getenv("DAYLOG_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DAYLOG_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("DAYLOG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks threshold ordering and required limits.
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.HighThreshold < 0 || p.HighThreshold > 1 {
		return fmt.Errorf("pipeline.high_threshold %v out of range [0,1]", p.HighThreshold)
	}
	if p.MediumThreshold < 0 || p.MediumThreshold > 1 {
		return fmt.Errorf("pipeline.medium_threshold %v out of range [0,1]", p.MediumThreshold)
	}
	if p.MediumThreshold > p.HighThreshold {
		return fmt.Errorf("pipeline.medium_threshold %v exceeds high_threshold %v", p.MediumThreshold, p.HighThreshold)
	}
	if p.MatchFloor < 0 || p.MatchFloor > 1 {
		return fmt.Errorf("pipeline.match_floor %v out of range [0,1]", p.MatchFloor)
	}
	if p.FallbackConfidence < 0 || p.FallbackConfidence > 1 {
		return fmt.Errorf("pipeline.fallback_confidence %v out of range [0,1]", p.FallbackConfidence)
	}
	if p.DailyCapacityMinutes <= 0 {
		return fmt.Errorf("pipeline.daily_capacity_minutes must be positive, got %d", p.DailyCapacityMinutes)
	}
	if p.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("pipeline.retry.max_attempts must be positive, got %d", p.Retry.MaxAttempts)
	}
	if p.Retry.BackoffFactor < 1 {
		return fmt.Errorf("pipeline.retry.backoff_factor must be >= 1, got %v", p.Retry.BackoffFactor)
	}
	if c.Inference.Timeout <= 0 {
		return fmt.Errorf("inference.timeout must be positive, got %v", c.Inference.Timeout)
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database.max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}
	return nil
}
