package cli

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/relicta-tech/deke/internal/config"
	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/observability"
)

// ErrPolicyFailed is returned when a policy or policy set does not pass.
var ErrPolicyFailed = errors.New("policy failed")

// Exit codes.
const (
	ExitOK       = 0
	ExitFailed   = 1
	ExitError    = 2
	ExitCanceled = 130
)

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrPolicyFailed):
		return ExitFailed
	case errors.Is(err, context.Canceled), dekeerrors.IsKind(err, dekeerrors.KindCanceled):
		return ExitCanceled
	default:
		return ExitError
	}
}

var (
	defaultOptions = NewOptions()
	rootCmd        = NewRootCommand(defaultOptions)
)

// SetVersionInfo sets the version information from main.
func SetVersionInfo(version, commit, date string) {
	defaultOptions.SetVersion(version, commit, date)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with a context for graceful shutdown.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// Cleanup closes any open resources. Should be called before program exit.
func Cleanup() {
	defaultOptions.Cleanup()
}

// NewRootCommand builds the command tree around opts.
func NewRootCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deke",
		Short: "Evaluate S-expression policies against JSON data",
		Long: `deke evaluates small S-expression policies against JSON documents.

A policy such as (lte $ 0.05) reads its input through $ or a JSON pointer
like $/alerts/count, returns a value, and, when it fails, explains itself
in plain English.

Key features:
  • Evaluate, check, and explain single policies
  • Policy sets in YAML, TOML, or .deke files
  • Weighted risk scoring with a configurable risk policy
  • Watch mode for iterating on policies`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetOut(opts.Stdout)
			cmd.SetErr(opts.Stderr)
			// Skip config loading for commands that do not need it
			if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "init" {
				return nil
			}
			return opts.initConfig(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default: deke.yaml)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output")
	flags.BoolVar(&opts.JSONOutput, "json", false, "output results as JSON")
	flags.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	flags.StringVar(&opts.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newEvalCommand(opts),
		newCheckCommand(opts),
		newExplainCommand(opts),
		newPolicyCommand(opts),
		newInitCommand(opts),
		newServeCommand(opts),
		newHistoryCommand(opts),
		newVersionCommand(opts),
	)
	return cmd
}

// loadAndValidateConfig loads the configuration, letting set flags
// override file and environment values.
func (o *Options) loadAndValidateConfig(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if o.ConfigFile != "" {
		loader.WithConfigPath(o.ConfigFile)
	}

	v := loader.Viper()
	flags := cmd.Flags()
	if f := flags.Lookup("log-level"); f != nil && f.Changed {
		_ = v.BindPFlag("output.log_level", f)
	}
	if f := flags.Lookup("verbose"); f != nil && f.Changed {
		_ = v.BindPFlag("output.verbose", f)
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	o.Config = cfg
	return nil
}

// applyGlobalFlags applies global CLI flags to the configuration.
func (o *Options) applyGlobalFlags() {
	if o.Verbose {
		o.Config.Output.Verbose = true
	}
	if o.JSONOutput {
		o.Config.Output.Format = "json"
	}
	if o.NoColor || !o.Config.Output.Color {
		o.Config.Output.Color = false
		o.DisableColor()
	}
}

// configureLogger applies format and level settings to the logger.
func (o *Options) configureLogger() {
	if o.Config.Output.Format == "json" {
		o.Logger.SetFormatter(log.JSONFormatter)
	} else if !o.Config.Output.Color {
		o.Logger.SetFormatter(log.TextFormatter)
	}

	level, err := log.ParseLevel(o.Config.Output.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	o.Logger.SetLevel(level)
	if o.Config.Output.Verbose {
		o.Logger.SetLevel(log.DebugLevel)
	}
}

// configureLogFile sets up log file output if specified.
func (o *Options) configureLogFile() error {
	if o.Config.Output.LogFile == "" {
		return nil
	}

	f, err := os.OpenFile(o.Config.Output.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return dekeerrors.IOWrap(err, "cli.configureLogFile", "failed to open log file")
	}
	o.LogFile = f
	o.Logger.SetOutput(f)
	return nil
}

// initConfig reads in config file and ENV variables if set.
func (o *Options) initConfig(cmd *cobra.Command) error {
	if err := o.loadAndValidateConfig(cmd); err != nil {
		return err
	}

	o.applyGlobalFlags()
	o.configureLogger()
	if o.Metrics == nil {
		o.Metrics = observability.InitGlobal(o.Version.Version)
	}

	return o.configureLogFile()
}
