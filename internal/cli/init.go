package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/deke/internal/analysis"
	"github.com/relicta-tech/deke/internal/config"
	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/fileutil"
	"github.com/relicta-tech/deke/internal/policy"
)

// samplePolicySet is written by init as a starting point.
var samplePolicySet = &policy.Set{
	Name:       "example",
	Requires:   ">= 0.1.0",
	RiskPolicy: analysis.DefaultRiskPolicy,
	Analyses: []analysis.Analysis{
		{
			Name:        "review",
			Policy:      "(lte $ 0.05)",
			Explanation: "the share of unreviewed pull requests",
		},
		{
			Name:        "binary",
			Policy:      "(lte (count (filter (eq #t) $)) 0)",
			Explanation: "binary files",
		},
	},
}

func newInitCommand(opts *Options) *cobra.Command {
	var dir string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a deke configuration and an example policy set",
		Long: `Create deke.yaml with the default settings and an example policy set
under .deke/policies in the target directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, dir, force)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "directory to initialize")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}

func runInit(opts *Options, dir string, force bool) error {
	const op = "cli.runInit"

	cfgPath := filepath.Join(dir, "deke.yaml")
	setPath := filepath.Join(dir, ".deke", "policies", "example.yaml")

	for _, p := range []string{cfgPath, setPath} {
		if _, err := os.Stat(p); err == nil && !force {
			return dekeerrors.Validation(op, fmt.Sprintf("%s already exists (use --force to overwrite)", p))
		}
	}

	if err := config.WriteConfig(config.DefaultConfig(), cfgPath); err != nil {
		return err
	}
	opts.PrintSuccess("Created " + cfgPath)

	data, err := policy.Encode(samplePolicySet, policy.FormatYAML)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(setPath), 0o755); err != nil {
		return dekeerrors.IOWrap(err, op, "create policy directory")
	}
	if err := fileutil.AtomicWriteFile(setPath, data, 0o644); err != nil {
		return dekeerrors.IOWrap(err, op, "write "+setPath)
	}
	opts.PrintSuccess("Created " + setPath)
	opts.PrintSubtle("Next: deke policy validate")
	return nil
}
