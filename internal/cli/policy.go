package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/policy"
)

func newPolicyCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage and run policy sets",
		Long: `Manage policy sets: named groups of analyses, each with a policy, that
are scored together against a risk policy.

Examples:
  # Validate all policy sets in the configured directories
  deke policy validate

  # Validate a specific policy file
  deke policy validate --file supply-chain.yaml

  # List all loaded policy sets
  deke policy list

  # Run a policy set against analysis results
  deke policy run --file supply-chain.yaml --results results.json`,
	}
	cmd.AddCommand(
		newPolicyValidateCommand(opts),
		newPolicyListCommand(opts),
		newPolicyRunCommand(opts),
	)
	return cmd
}

// policyDirs returns the directories searched for policy sets.
func (o *Options) policyDirs(dir string) []string {
	if dir != "" {
		return []string{dir}
	}
	if o.Config != nil && len(o.Config.Policies.Paths) > 0 {
		return o.Config.Policies.Paths
	}
	return policy.DefaultPolicyPaths()
}

// loadSets loads the set in file, or every set under the policy dirs.
func (o *Options) loadSets(file, dir string) ([]*policy.Set, error) {
	const op = "cli.loadSets"

	if file != "" {
		set, err := policy.NewLoader(policy.LoaderOptions{}).LoadFile(file)
		if err != nil {
			return nil, err
		}
		return []*policy.Set{set}, nil
	}

	dirs := o.policyDirs(dir)
	loader := policy.NewLoader(policy.LoaderOptions{Recursive: true})
	var sets []*policy.Set
	for _, d := range dirs {
		result, err := loader.LoadDir(d)
		if err != nil {
			return nil, err
		}
		sets = append(sets, result.Sets...)
	}
	if len(sets) == 0 {
		return nil, dekeerrors.NotFound(op, "no policy sets found in "+strings.Join(dirs, ", "))
	}
	return sets, nil
}

func newPolicyValidateCommand(opts *Options) *cobra.Command {
	var dir, file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate policy files",
		Long: `Validate policy set files for syntax and semantic correctness.

By default, searches for .yaml, .yml, .toml and .deke files in the
directories listed under policies.paths in the configuration.

Use --dir to specify a custom directory or --file to validate a single file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				return validatePolicyFile(opts, file)
			}
			return validatePolicyDirs(opts, opts.policyDirs(dir))
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory containing policy files")
	cmd.Flags().StringVar(&file, "file", "", "specific policy file to validate")
	return cmd
}

func validatePolicyFile(opts *Options, path string) error {
	if err := policy.ValidateFile(path); err != nil {
		opts.PrintError(fmt.Sprintf("Validation failed for %s:", path))
		printProblems(opts, err)
		return dekeerrors.ValidationWrap(err, "cli.validatePolicyFile", "policy validation failed")
	}
	opts.PrintSuccess("Validation passed: " + path)
	return nil
}

func validatePolicyDirs(opts *Options, dirs []string) error {
	var valid int
	var failures []policy.LoadError

	loader := policy.NewLoader(policy.LoaderOptions{IgnoreErrors: true, Recursive: true})
	for _, dir := range dirs {
		result, err := loader.LoadDir(dir)
		if err != nil {
			opts.PrintWarning(fmt.Sprintf("Error validating directory %s: %v", dir, err))
			continue
		}
		valid += len(result.Sets)
		failures = append(failures, result.Errors...)
	}

	total := valid + len(failures)
	if total == 0 {
		opts.PrintInfo("No policy files found.")
		opts.PrintSubtle("Search paths:")
		for _, dir := range dirs {
			opts.PrintSubtle("  - " + dir)
		}
		return nil
	}

	if len(failures) > 0 {
		opts.PrintTitle("validation errors")
		for _, f := range failures {
			opts.Println(f.File + ":")
			printProblems(opts, f.Err)
		}
		return dekeerrors.Validation("cli.validatePolicyDirs",
			fmt.Sprintf("%d/%d policy files have validation errors", len(failures), total))
	}

	opts.PrintSuccess(fmt.Sprintf("Validation passed: %d files OK", valid))
	return nil
}

// printProblems prints each problem recorded on err, or err itself.
func printProblems(opts *Options, err error) {
	var de *dekeerrors.Error
	if dekeerrors.As(err, &de) {
		for cur := de; cur != nil; {
			if problems, ok := cur.Detail("problems"); ok {
				for _, p := range problems.([]string) {
					opts.Println("  " + p)
				}
				return
			}
			next, ok := cur.Err.(*dekeerrors.Error)
			if !ok {
				break
			}
			cur = next
		}
	}
	for _, line := range strings.Split(err.Error(), "\n") {
		opts.Println("  " + line)
	}
}

func newPolicyListCommand(opts *Options) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded policy sets",
		Long:  `Display all policy sets that would be loaded for the current project.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sets, err := opts.loadSets("", dir)
			if err != nil {
				return err
			}

			if opts.IsJSON() {
				return writeJSON(opts, sets)
			}
			for _, set := range sets {
				opts.PrintTitle(set.Name)
				opts.PrintSubtle(fmt.Sprintf("  source: %s", set.Source))
				opts.PrintSubtle(fmt.Sprintf("  risk policy: %s", set.EffectiveRiskPolicy(opts.Config.Policies.RiskPolicy)))
				for _, a := range set.Analyses {
					opts.Println(fmt.Sprintf("  • %s  %s  (weight %g)", a.Name, a.Policy, a.EffectiveWeight()))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory containing policy files")
	return cmd
}
