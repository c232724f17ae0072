package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/relicta-tech/deke/internal/analysis"
	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/expr"
	"github.com/relicta-tech/deke/internal/fileutil"
	"github.com/relicta-tech/deke/internal/observability"
	"github.com/relicta-tech/deke/internal/policy"
)

const watchDebounce = 500 * time.Millisecond

type policyRunFlags struct {
	file        string
	dir         string
	results     string
	out         string
	showMetrics bool
	watch       bool
}

func newPolicyRunCommand(opts *Options) *cobra.Command {
	var f policyRunFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run policy sets against analysis results",
		Long: `Run every analysis in a policy set against a results document and rate
the overall risk.

The results document maps analysis names to their values and concerns:

  {"review": {"value": 0.2, "concerns": ["PR #12 merged without review"]}}

The command exits with status 1 when a set's risk policy recommends
investigation, or when an analysis errors and evaluation.fail_on_errored
is set. With --watch, it re-runs whenever the policy or results files change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.watch {
				return watchPolicyRun(cmd.Context(), opts, f)
			}
			return runPolicySets(cmd.Context(), opts, f)
		},
	}
	cmd.Flags().StringVar(&f.file, "file", "", "policy set file")
	cmd.Flags().StringVar(&f.dir, "dir", "", "directory of policy set files")
	cmd.Flags().StringVarP(&f.results, "results", "r", "", "results document (- for stdin)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "also write the JSON report to this file")
	cmd.Flags().BoolVar(&f.showMetrics, "metrics", false, "print evaluation metrics after the report")
	cmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "re-run when policy or results files change")
	cmd.MarkFlagsMutuallyExclusive("file", "dir")
	_ = cmd.MarkFlagRequired("results")
	return cmd
}

func runPolicySets(ctx context.Context, opts *Options, f policyRunFlags) error {
	sets, err := opts.loadSets(f.file, f.dir)
	if err != nil {
		return err
	}
	data, err := fileutil.ReadInput(f.results, opts.Stdin, opts.maxInputBytes())
	if err != nil {
		return err
	}
	results, err := analysis.ParseResults(data)
	if err != nil {
		return err
	}

	tracer := observability.NoopTracer()
	if opts.IsVerbose() {
		tracer = observability.NewLoggingTracer(opts.Slog())
	}

	x := expr.NewExecutor()
	reports := make([]*analysis.Report, 0, len(sets))
	for _, set := range sets {
		runner := analysis.NewRunner(x,
			analysis.WithRiskPolicy(set.EffectiveRiskPolicy(opts.Config.Policies.RiskPolicy)),
			analysis.WithPolicySet(set.Name),
			analysis.WithConcurrency(opts.Config.Evaluation.Concurrency),
			analysis.WithLogger(opts.Slog()),
			analysis.WithMetrics(opts.Metrics),
			analysis.WithTracer(tracer),
		)
		report, err := runner.Run(ctx, set.Analyses, results)
		if err != nil {
			return dekeerrors.Wrap(err, dekeerrors.GetKind(err), "cli.runPolicySets", "policy set "+set.Name)
		}
		reports = append(reports, report)
	}

	if opts.Config.History.Enabled {
		if err := saveReports(ctx, opts, reports); err != nil {
			return err
		}
	}

	if f.out != "" {
		encoded, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return dekeerrors.Wrap(err, dekeerrors.KindInternal, "cli.runPolicySets", "encode report")
		}
		if err := fileutil.WriteOutput(f.out, opts.Stdout, append(encoded, '\n')); err != nil {
			return err
		}
	}

	if opts.IsJSON() {
		if err := writeJSON(opts, reports); err != nil {
			return err
		}
	} else {
		for _, report := range reports {
			printReport(opts, report)
		}
	}

	if f.showMetrics && opts.Metrics != nil {
		if err := opts.Metrics.WriteText(opts.Stdout); err != nil {
			return dekeerrors.IOWrap(err, "cli.runPolicySets", "write metrics")
		}
	}

	for _, report := range reports {
		if report.Recommendation.Kind == analysis.Investigate {
			return ErrPolicyFailed
		}
		if opts.Config.Evaluation.FailOnErrored && len(report.Errored) > 0 {
			return ErrPolicyFailed
		}
	}
	return nil
}

// saveReports records reports in the configured history.
func saveReports(ctx context.Context, opts *Options, reports []*analysis.Report) error {
	store, err := opts.openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	for _, report := range reports {
		if err := store.Save(ctx, report); err != nil {
			return err
		}
	}
	opts.Slog().Debug("saved reports to history", "count", len(reports), "path", store.Path())
	return nil
}

func printReport(opts *Options, report *analysis.Report) {
	opts.PrintTitle("policy set " + report.PolicySet)
	opts.PrintSubtle(fmt.Sprintf("report %s at %s", report.ID, report.AnalyzedAt.Format(time.RFC3339)))

	for _, o := range report.Passing {
		opts.PrintSuccess(o.Statement())
	}
	for _, o := range report.Failing {
		opts.PrintError(o.Statement())
		for _, c := range o.Concerns {
			opts.PrintSubtle("    concern: " + c)
		}
	}
	for _, o := range report.Errored {
		opts.PrintWarning(o.Statement())
	}

	rec := report.Recommendation
	if rec.Kind == analysis.Pass {
		opts.PrintSuccess("PASS: " + rec.Statement())
	} else {
		opts.PrintError("INVESTIGATE: " + rec.Statement())
	}
	opts.Println()
}

// watchTargets returns the paths to watch and a filter for relevant events.
func watchTargets(opts *Options, f policyRunFlags) ([]string, func(string) bool) {
	files := map[string]bool{}
	dirs := map[string]bool{}

	if f.results != fileutil.Stdin {
		if abs, err := filepath.Abs(f.results); err == nil {
			files[abs] = true
			dirs[filepath.Dir(abs)] = true
		}
	}
	if f.file != "" {
		if abs, err := filepath.Abs(f.file); err == nil {
			files[abs] = true
			dirs[filepath.Dir(abs)] = true
		}
	} else {
		for _, d := range opts.policyDirs(f.dir) {
			if abs, err := filepath.Abs(d); err == nil {
				dirs[abs] = true
			}
		}
	}

	var watched []string
	for d := range dirs {
		watched = append(watched, d)
	}
	relevant := func(name string) bool {
		abs, err := filepath.Abs(name)
		if err != nil {
			return false
		}
		if files[abs] {
			return true
		}
		_, isPolicy := policy.FormatOf(abs)
		return isPolicy && f.file == "" && dirs[filepath.Dir(abs)]
	}
	return watched, relevant
}

func watchPolicyRun(ctx context.Context, opts *Options, f policyRunFlags) error {
	if f.results == fileutil.Stdin {
		return dekeerrors.Validation("cli.watchPolicyRun", "--watch needs a results file, not stdin")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return dekeerrors.IOWrap(err, "cli.watchPolicyRun", "failed to create watcher")
	}
	defer func() { _ = watcher.Close() }()

	paths, relevant := watchTargets(opts, f)
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := watcher.Add(p); err != nil {
			return dekeerrors.IOWrap(err, "cli.watchPolicyRun", "watch "+p)
		}
	}

	rerun := func() {
		if err := runPolicySets(ctx, opts, f); err != nil && !errors.Is(err, ErrPolicyFailed) {
			opts.PrintError(err.Error())
		}
	}

	rerun()
	opts.PrintSubtle("Watching for changes... (press Ctrl+C to stop)")
	return watchLoop(ctx, watcher.Events, watcher.Errors, relevant, watchDebounce, func(name string) {
		opts.PrintInfo(fmt.Sprintf("[%s] Change detected: %s", time.Now().Format("15:04:05"), filepath.Base(name)))
		rerun()
	}, opts)
}

// watchLoop calls rerun once per burst of relevant events, after the burst
// has been quiet for debounce. It returns when ctx is done or events closes.
func watchLoop(
	ctx context.Context,
	events <-chan fsnotify.Event,
	errs <-chan error,
	relevant func(string) bool,
	debounce time.Duration,
	rerun func(name string),
	opts *Options,
) error {
	// A stopped timer never delivers a stale tick, so there is nothing to drain.
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	var pending string
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if !relevant(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = event.Name
			timer.Reset(debounce)

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			opts.PrintWarning(fmt.Sprintf("Watch error: %v", err))

		case <-timer.C:
			if pending != "" {
				name := pending
				pending = ""
				rerun(name)
			}

		case <-ctx.Done():
			opts.PrintSubtle("Stopping watch mode...")
			return nil
		}
	}
}
