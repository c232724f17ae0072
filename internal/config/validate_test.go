package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

func TestValidate_Defaults(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.Validate(DefaultConfig()))
	assert.Empty(t, v.Warnings())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		contains string
	}{
		{"format", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
		{"log level", func(c *Config) { c.Output.LogLevel = "loud" }, "output.log_level"},
		{"empty path", func(c *Config) { c.Policies.Paths = []string{" "} }, "policies.paths[0]"},
		{"missing risk policy", func(c *Config) { c.Policies.RiskPolicy = "" }, "policies.risk_policy: required"},
		{"bad risk policy", func(c *Config) { c.Policies.RiskPolicy = "(lte $" }, "policies.risk_policy"},
		{"concurrency", func(c *Config) { c.Evaluation.Concurrency = 0 }, "evaluation.concurrency"},
		{"input size", func(c *Config) { c.Evaluation.MaxInputBytes = 0 }, "evaluation.max_input_bytes"},
		{"missing address", func(c *Config) { c.Server.Address = "" }, "server.address: required"},
		{"bad address", func(c *Config) { c.Server.Address = "8700" }, "server.address"},
		{"timeout", func(c *Config) { c.Server.ReadTimeout = -time.Second }, "server.read_timeout"},
		{"rate limit", func(c *Config) { c.Server.RateLimit = -1 }, "server.rate_limit"},
		{"empty api key", func(c *Config) { c.Server.APIKeys = []string{""} }, "server.api_keys[0]"},
		{"history path", func(c *Config) { c.History.Enabled = true; c.History.Path = "" }, "history.path"},
		{"retention", func(c *Config) { c.History.Retention = -time.Hour }, "history.retention"},
		{"prune schedule", func(c *Config) { c.History.PruneSchedule = "every day" }, "history.prune_schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, dekeerrors.IsKind(err, dekeerrors.KindValidation))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policies.Paths = nil
	cfg.Evaluation.Concurrency = 1000

	v := NewValidator()
	require.NoError(t, v.Validate(cfg))
	assert.Len(t, v.Warnings(), 2)
}

func TestValidate_ExposedServerWarns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Address = "0.0.0.0:8700"

	v := NewValidator()
	require.NoError(t, v.Validate(cfg))
	require.Len(t, v.Warnings(), 1)
	assert.Contains(t, v.Warnings()[0], "no api_keys")

	cfg.Server.APIKeys = []string{"secret"}
	require.NoError(t, v.Validate(cfg))
	assert.Empty(t, v.Warnings())
}

func TestValidationError_Error(t *testing.T) {
	e := &ValidationError{}
	assert.False(t, e.HasErrors())
	assert.False(t, e.HasWarnings())

	e.Addf("field %s broken", "a")
	e.Warnf("field %s odd", "b")
	assert.True(t, e.HasErrors())
	assert.True(t, e.HasWarnings())
	assert.Contains(t, e.Error(), "field a broken")
	assert.Contains(t, e.Error(), "field b odd")
}
