// Package cli provides the command-line interface for deke.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/relicta-tech/deke/internal/config"
	"github.com/relicta-tech/deke/internal/observability"
)

// Options is the state shared by every command: global flags, the loaded
// configuration and the output streams.
type Options struct {
	Version VersionInfo

	ConfigFile string
	Verbose    bool
	JSONOutput bool
	NoColor    bool
	LogLevel   string

	Config  *config.Config
	Logger  *log.Logger
	LogFile *os.File
	Styles  Styles
	Metrics *observability.Metrics

	// Streams are swapped out in tests.
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
}

// VersionInfo holds build metadata.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// Styles maps verdicts to terminal styles.
type Styles struct {
	Title   lipgloss.Style
	Pass    lipgloss.Style
	Fail    lipgloss.Style
	Errored lipgloss.Style
	Info    lipgloss.Style
	Subtle  lipgloss.Style
}

// Line prefixes, one per verdict.
const (
	passMark    = "✓ "
	failMark    = "✗ "
	erroredMark = "⚠ "
	infoMark    = "ℹ "
)

func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		Pass:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Fail:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Errored: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		Subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// NewOptions returns options writing to the process streams. NO_COLOR in
// the environment disables styling before any flag is read.
func NewOptions() *Options {
	o := &Options{
		LogLevel: "info",
		Styles:   DefaultStyles(),
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Stdin:    os.Stdin,
		Logger: log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "deke",
		}),
	}
	if termenv.EnvNoColor() {
		o.DisableColor()
	}
	return o
}

func (o *Options) SetVersion(version, commit, date string) {
	o.Version = VersionInfo{Version: version, Commit: commit, Date: date}
}

// IsJSON reports whether output is JSON, by flag or by output.format.
func (o *Options) IsJSON() bool {
	return o.JSONOutput || (o.Config != nil && o.Config.Output.Format == "json")
}

func (o *Options) IsVerbose() bool {
	return o.Verbose || (o.Config != nil && o.Config.Output.Verbose)
}

// Slog adapts the CLI logger for packages that log through log/slog.
func (o *Options) Slog() *slog.Logger {
	return slog.New(o.Logger)
}

// DisableColor switches every style to plain ASCII output.
func (o *Options) DisableColor() {
	o.NoColor = true
	lipgloss.SetColorProfile(termenv.Ascii)
}

// Cleanup closes the log file, if one was opened.
func (o *Options) Cleanup() {
	if o.LogFile == nil {
		return
	}
	if err := o.LogFile.Close(); err != nil {
		fmt.Fprintf(o.Stderr, "deke: closing log file: %v\n", err)
	}
	o.LogFile = nil
}

// PrintSuccess prints a passing verdict or a completed action.
func (o *Options) PrintSuccess(msg string) {
	o.println(o.Styles.Pass.Render(passMark + msg))
}

// PrintError prints a failing verdict.
func (o *Options) PrintError(msg string) {
	o.println(o.Styles.Fail.Render(failMark + msg))
}

// PrintWarning prints an errored outcome or a recoverable problem.
func (o *Options) PrintWarning(msg string) {
	o.println(o.Styles.Errored.Render(erroredMark + msg))
}

func (o *Options) PrintInfo(msg string) {
	o.println(o.Styles.Info.Render(infoMark + msg))
}

// PrintTitle prints msg in title case.
func (o *Options) PrintTitle(msg string) {
	o.println(o.Styles.Title.Render(cases.Title(language.English).String(msg)))
}

func (o *Options) PrintSubtle(msg string) {
	o.println(o.Styles.Subtle.Render(msg))
}

func (o *Options) Println(a ...any) {
	o.println(fmt.Sprint(a...))
}

func (o *Options) println(s string) {
	if o.Stdout != nil {
		_, _ = io.WriteString(o.Stdout, s+"\n")
	}
}
