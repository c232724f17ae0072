// Package config provides configuration management for deke.
package config

import "time"

// Config is the root configuration for deke.
type Config struct {
	// Output configures output settings.
	Output OutputConfig `mapstructure:"output" json:"output"`
	// Policies configures where policy sets are found and how risk is judged.
	Policies PoliciesConfig `mapstructure:"policies" json:"policies"`
	// Evaluation configures the analysis runner.
	Evaluation EvaluationConfig `mapstructure:"evaluation" json:"evaluation"`
	// Server configures the HTTP evaluation API started by deke serve.
	Server ServerConfig `mapstructure:"server" json:"server"`
	// History configures the store of past run reports.
	History HistoryConfig `mapstructure:"history" json:"history"`
}

// OutputConfig configures output settings.
type OutputConfig struct {
	// Format is the output format (text, json).
	Format string `mapstructure:"format" json:"format"`
	// Color enables colored output.
	Color bool `mapstructure:"color" json:"color"`
	// Verbose enables verbose output.
	Verbose bool `mapstructure:"verbose" json:"verbose"`
	// LogLevel is the log level (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	// LogFile is the path to the log file. Empty means stderr.
	LogFile string `mapstructure:"log_file" json:"log_file,omitempty"`
}

// PoliciesConfig configures policy discovery.
type PoliciesConfig struct {
	// Paths are directories searched for policy set files.
	Paths []string `mapstructure:"paths" json:"paths"`
	// RiskPolicy is evaluated against the risk score of a run.
	// A policy set may override it.
	RiskPolicy string `mapstructure:"risk_policy" json:"risk_policy"`
}

// EvaluationConfig configures the analysis runner.
type EvaluationConfig struct {
	// Concurrency bounds how many analyses are evaluated at once.
	Concurrency int `mapstructure:"concurrency" json:"concurrency"`
	// FailOnErrored makes a run fail when any analysis errored.
	FailOnErrored bool `mapstructure:"fail_on_errored" json:"fail_on_errored"`
	// MaxInputBytes bounds the size of context and results files.
	MaxInputBytes int64 `mapstructure:"max_input_bytes" json:"max_input_bytes"`
}

// ServerConfig configures the HTTP evaluation API.
type ServerConfig struct {
	// Address is the listen address (host:port).
	Address string `mapstructure:"address" json:"address"`
	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	// WriteTimeout is the HTTP write timeout.
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	// IdleTimeout is the HTTP idle timeout.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" json:"idle_timeout"`
	// APIKeys, when set, must accompany every /api request as X-API-Key
	// or a bearer token. Values support ${VAR} expansion.
	APIKeys []string `mapstructure:"api_keys" json:"-"`
	// CORSOrigins are the origins allowed to call the API from a browser.
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins,omitempty"`
	// RateLimit is the number of requests per minute allowed per client.
	// Zero disables rate limiting.
	RateLimit int `mapstructure:"rate_limit" json:"rate_limit"`
}

// HistoryConfig configures the SQLite store of run reports.
type HistoryConfig struct {
	// Enabled records every policy set run.
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Path is the database file.
	Path string `mapstructure:"path" json:"path"`
	// Retention is how long reports are kept. Zero keeps them forever.
	Retention time.Duration `mapstructure:"retention" json:"retention"`
	// PruneSchedule is a cron expression for pruning while serving.
	// Empty disables scheduled pruning.
	PruneSchedule string `mapstructure:"prune_schedule" json:"prune_schedule"`
}

// ConfigFileNames are the base names searched for a config file.
var ConfigFileNames = []string{"deke", ".deke"}

// ConfigFileExtensions are the extensions tried for each base name.
var ConfigFileExtensions = []string{"yaml", "yml", "toml", "json"}

// DefaultConfig returns the configuration used when no file sets a value.
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Format:   "text",
			Color:    true,
			LogLevel: "info",
		},
		Policies: PoliciesConfig{
			Paths:      []string{".deke/policies", "policies"},
			RiskPolicy: "(lte $ 0.5)",
		},
		Evaluation: EvaluationConfig{
			Concurrency:   4,
			FailOnErrored: true,
			MaxInputBytes: 10 << 20,
		},
		Server: ServerConfig{
			Address:      "127.0.0.1:8700",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			RateLimit:    600,
		},
		History: HistoryConfig{
			Path:          ".deke/history.db",
			Retention:     30 * 24 * time.Hour,
			PruneSchedule: "0 3 * * *",
		},
	}
}
