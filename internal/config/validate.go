package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/expr"
)

// ValidationError contains all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var parts []string

	if len(e.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Errors:\n  - %s", strings.Join(e.Errors, "\n  - ")))
	}

	if len(e.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("Warnings:\n  - %s", strings.Join(e.Warnings, "\n  - ")))
	}

	return fmt.Sprintf("configuration validation failed:\n%s", strings.Join(parts, "\n"))
}

// HasErrors returns true if there are validation errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// HasWarnings returns true if there are validation warnings.
func (e *ValidationError) HasWarnings() bool {
	return len(e.Warnings) > 0
}

// Addf adds a formatted error to the validation error.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// Warnf adds a formatted warning to the validation error.
func (e *ValidationError) Warnf(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

// Validator validates configuration.
type Validator struct {
	errors *ValidationError
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: &ValidationError{},
	}
}

// Warnings returns the warnings collected by the last Validate call.
func (v *Validator) Warnings() []string {
	return v.errors.Warnings
}

// Validate validates the configuration. Warnings never fail validation;
// read them with Warnings.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = &ValidationError{}
	v.validateOutput(cfg.Output)
	v.validatePolicies(cfg.Policies)
	v.validateEvaluation(cfg.Evaluation)
	v.validateServer(cfg.Server)
	v.validateHistory(cfg.History)

	if v.errors.HasErrors() {
		return dekeerrors.Validation("config.Validate", v.errors.Error()).
			WithDetail("errors", v.errors.Errors)
	}
	return nil
}

// Validate validates cfg with a fresh Validator.
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

func (v *Validator) validateOutput(cfg OutputConfig) {
	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, cfg.Format) {
		v.errors.Addf("output.format: must be one of %v, got %q", validFormats, cfg.Format)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(cfg.LogLevel)) {
		v.errors.Addf("output.log_level: must be one of %v, got %q", validLevels, cfg.LogLevel)
	}
}

func (v *Validator) validatePolicies(cfg PoliciesConfig) {
	if len(cfg.Paths) == 0 {
		v.errors.Warnf("policies.paths: empty; policy sets must be passed explicitly")
	}
	for i, p := range cfg.Paths {
		if strings.TrimSpace(p) == "" {
			v.errors.Addf("policies.paths[%d]: must not be empty", i)
		}
	}

	if strings.TrimSpace(cfg.RiskPolicy) == "" {
		v.errors.Addf("policies.risk_policy: required")
		return
	}
	if _, err := expr.Parse(cfg.RiskPolicy); err != nil {
		v.errors.Addf("policies.risk_policy: %v", err)
	}
}

func (v *Validator) validateEvaluation(cfg EvaluationConfig) {
	if cfg.Concurrency < 1 {
		v.errors.Addf("evaluation.concurrency: must be at least 1, got %d", cfg.Concurrency)
	} else if cfg.Concurrency > 256 {
		v.errors.Warnf("evaluation.concurrency: %d is unusually high", cfg.Concurrency)
	}
	if cfg.MaxInputBytes <= 0 {
		v.errors.Addf("evaluation.max_input_bytes: must be positive, got %d", cfg.MaxInputBytes)
	}
}

func (v *Validator) validateServer(cfg ServerConfig) {
	if strings.TrimSpace(cfg.Address) == "" {
		v.errors.Addf("server.address: required")
	} else if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
		v.errors.Addf("server.address: %v", err)
	}
	for name, d := range map[string]time.Duration{
		"read_timeout":  cfg.ReadTimeout,
		"write_timeout": cfg.WriteTimeout,
		"idle_timeout":  cfg.IdleTimeout,
	} {
		if d < 0 {
			v.errors.Addf("server.%s: must not be negative, got %s", name, d)
		}
	}
	if cfg.RateLimit < 0 {
		v.errors.Addf("server.rate_limit: must not be negative, got %d", cfg.RateLimit)
	}
	for i, k := range cfg.APIKeys {
		if strings.TrimSpace(k) == "" {
			v.errors.Addf("server.api_keys[%d]: must not be empty", i)
		}
	}
	if len(cfg.APIKeys) == 0 && !isLoopback(cfg.Address) {
		v.errors.Warnf("server.address: %s is not a loopback address and no api_keys are set", cfg.Address)
	}
}

func isLoopback(address string) bool {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (v *Validator) validateHistory(cfg HistoryConfig) {
	if cfg.Enabled && strings.TrimSpace(cfg.Path) == "" {
		v.errors.Addf("history.path: required when history is enabled")
	}
	if cfg.Retention < 0 {
		v.errors.Addf("history.retention: must not be negative, got %s", cfg.Retention)
	}
	if cfg.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			v.errors.Addf("history.prune_schedule: %v", err)
		}
	}
}
