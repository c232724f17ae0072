package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

var (
	// envVarPattern matches ${VAR} or ${VAR:-default}
	envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)
)

// EnvPrefix prefixes environment overrides, e.g. DEKE_EVALUATION_CONCURRENCY.
const EnvPrefix = "DEKE"

// Loader handles configuration loading and merging.
type Loader struct {
	v           *viper.Viper
	configPath  string
	searchPaths []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Loader{
		v:           v,
		searchPaths: []string{"."},
	}
}

// WithConfigPath sets an explicit config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithSearchPaths adds directories to search for config files.
func (l *Loader) WithSearchPaths(paths ...string) *Loader {
	l.searchPaths = append(l.searchPaths, paths...)
	return l
}

// Viper exposes the underlying viper instance so flags can be bound to it.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads the configuration.
func (l *Loader) Load() (*Config, error) {
	const op = "config.Load"

	l.setDefaults()

	if err := l.loadConfigFile(); err != nil {
		return nil, dekeerrors.ConfigWrap(err, op, "failed to load config file")
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, dekeerrors.ConfigWrap(err, op, "failed to unmarshal config")
	}

	cfg.Output.LogFile = expandEnvVar(cfg.Output.LogFile)
	for i, p := range cfg.Policies.Paths {
		cfg.Policies.Paths[i] = expandEnvVar(p)
	}
	cfg.History.Path = expandEnvVar(cfg.History.Path)
	for i, k := range cfg.Server.APIKeys {
		cfg.Server.APIKeys[i] = expandEnvVar(k)
	}

	return cfg, nil
}

func (l *Loader) setDefaults() {
	for key, value := range settings(DefaultConfig()) {
		l.v.SetDefault(key, value)
	}
}

// settings flattens cfg into viper keys.
func settings(cfg *Config) map[string]any {
	m := map[string]any{
		"output.format":    cfg.Output.Format,
		"output.color":     cfg.Output.Color,
		"output.verbose":   cfg.Output.Verbose,
		"output.log_level": cfg.Output.LogLevel,
		"output.log_file":  cfg.Output.LogFile,

		"policies.paths":       cfg.Policies.Paths,
		"policies.risk_policy": cfg.Policies.RiskPolicy,

		"evaluation.concurrency":     cfg.Evaluation.Concurrency,
		"evaluation.fail_on_errored": cfg.Evaluation.FailOnErrored,
		"evaluation.max_input_bytes": cfg.Evaluation.MaxInputBytes,

		"server.address":       cfg.Server.Address,
		"server.read_timeout":  cfg.Server.ReadTimeout,
		"server.write_timeout": cfg.Server.WriteTimeout,
		"server.idle_timeout":  cfg.Server.IdleTimeout,
		"server.rate_limit":    cfg.Server.RateLimit,

		"history.enabled":        cfg.History.Enabled,
		"history.path":           cfg.History.Path,
		"history.retention":      cfg.History.Retention,
		"history.prune_schedule": cfg.History.PruneSchedule,
	}
	// Unset lists stay unset so a written file reads back unchanged.
	if len(cfg.Server.APIKeys) > 0 {
		m["server.api_keys"] = cfg.Server.APIKeys
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		m["server.cors_origins"] = cfg.Server.CORSOrigins
	}
	return m
}

func (l *Loader) loadConfigFile() error {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", l.configPath, err)
		}
		return nil
	}

	path, err := FindConfigFile(l.searchPaths...)
	if err != nil {
		// No config file found - defaults apply
		return nil
	}
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

// expandEnvVar expands ${VAR} and ${VAR:-default} references.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		if value := os.Getenv(submatch[1]); value != "" {
			return value
		}
		if len(submatch) > 2 {
			return submatch[2]
		}
		return ""
	})
}

// GetConfigPath returns the path to the loaded config file, if any.
func (l *Loader) GetConfigPath() string {
	return l.v.ConfigFileUsed()
}

// WriteConfig writes cfg to path; the format follows the file extension.
func WriteConfig(cfg *Config, path string) error {
	const op = "config.WriteConfig"

	v := viper.New()
	for key, value := range settings(cfg) {
		v.Set(key, value)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return dekeerrors.ConfigWrap(err, op, "failed to write config file")
	}
	return nil
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// LoadFromDirectory loads configuration from a directory.
func LoadFromDirectory(dir string) (*Config, error) {
	l := NewLoader()
	l.searchPaths = []string{dir}
	return l.Load()
}

// FindConfigFile searches for a config file and returns its path.
func FindConfigFile(searchPaths ...string) (string, error) {
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}

	for _, searchPath := range searchPaths {
		for _, name := range ConfigFileNames {
			for _, ext := range ConfigFileExtensions {
				configFile := filepath.Join(searchPath, name+"."+ext)
				if _, err := os.Stat(configFile); err == nil {
					return configFile, nil
				}
			}
		}
	}

	return "", dekeerrors.NotFound("config.FindConfigFile", "no config file found")
}
