package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/deke/internal/analysis"
	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/history"
)

// openHistory opens the configured report history.
func (o *Options) openHistory() (*history.Store, error) {
	return history.Open(history.Config{
		Path:   o.Config.History.Path,
		Logger: o.Slog(),
	})
}

func newHistoryCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored run reports",
		Long: `Inspect reports stored by policy set runs.

Runs are recorded when history.enabled is set in the configuration; the
database lives at history.path.

Examples:
  deke history list --set supply-chain
  deke history show 3f0c2a9e-...
  deke history prune --older-than 720h`,
	}
	cmd.AddCommand(
		newHistoryListCommand(opts),
		newHistoryShowCommand(opts),
		newHistoryPruneCommand(opts),
	)
	return cmd
}

func newHistoryListCommand(opts *Options) *cobra.Command {
	var filter history.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			summaries, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if opts.IsJSON() {
				return writeJSON(opts, summaries)
			}
			if len(summaries) == 0 {
				opts.PrintInfo("No reports stored in " + store.Path())
				return nil
			}
			for _, s := range summaries {
				line := fmt.Sprintf("%s  %s  %s  risk %.2f  (%d passing, %d failing, %d errored)",
					s.AnalyzedAt.Local().Format(time.DateTime), s.ID, s.PolicySet, s.RiskScore,
					s.Passing, s.Failing, s.Errored)
				if s.Recommendation == analysis.Pass {
					opts.PrintSuccess(line)
				} else {
					opts.PrintError(line)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.PolicySet, "set", "", "only reports of this policy set")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", history.DefaultListLimit, "maximum number of reports")
	return cmd
}

func newHistoryShowCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			report, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.IsJSON() {
				return writeJSON(opts, report)
			}
			printReport(opts, report)
			return nil
		},
	}
}

func newHistoryPruneCommand(opts *Options) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old reports",
		Long: `Delete reports older than --older-than, which defaults to
history.retention from the configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("older-than") {
				olderThan = opts.Config.History.Retention
			}
			if olderThan <= 0 {
				return dekeerrors.Validation("cli.historyPrune", "--older-than must be positive")
			}

			store, err := opts.openHistory()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			deleted, err := store.PruneBefore(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			opts.PrintSuccess(fmt.Sprintf("Pruned %d reports older than %s", deleted, olderThan))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age of the oldest report to keep")
	return cmd
}
