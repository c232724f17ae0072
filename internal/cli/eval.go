package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/expr"
	"github.com/relicta-tech/deke/internal/fileutil"
)

// inputFlags selects the program and its context document.
type inputFlags struct {
	programFile string
	contextFile string
	contextJSON string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.programFile, "file", "f", "", "read the program from a file (- for stdin)")
	cmd.Flags().StringVar(&f.contextFile, "context", "", "JSON context document (- for stdin)")
	cmd.Flags().StringVar(&f.contextJSON, "context-json", "", "inline JSON context document")
	cmd.MarkFlagsMutuallyExclusive("context", "context-json")
}

// program returns the program from args or --file.
func (f *inputFlags) program(opts *Options, args []string) (string, error) {
	const op = "cli.program"

	switch {
	case len(args) > 0 && f.programFile != "":
		return "", dekeerrors.Validation(op, "pass the program as an argument or with --file, not both")
	case len(args) > 0:
		return args[0], nil
	case f.programFile != "":
		data, err := fileutil.ReadInput(f.programFile, opts.Stdin, opts.maxInputBytes())
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return "", dekeerrors.Validation(op, "no program given")
}

// context returns the raw context document, nil when none was given.
func (f *inputFlags) context(opts *Options) ([]byte, error) {
	if f.contextJSON != "" {
		return []byte(f.contextJSON), nil
	}
	if f.contextFile == "" {
		return nil, nil
	}
	if f.contextFile == fileutil.Stdin && f.programFile == fileutil.Stdin {
		return nil, dekeerrors.Validation("cli.context", "program and context cannot both come from stdin")
	}
	return fileutil.ReadInput(f.contextFile, opts.Stdin, opts.maxInputBytes())
}

func (o *Options) maxInputBytes() int64 {
	if o.Config != nil && o.Config.Evaluation.MaxInputBytes > 0 {
		return o.Config.Evaluation.MaxInputBytes
	}
	return 10 << 20
}

func newEvalCommand(opts *Options) *cobra.Command {
	var in inputFlags
	cmd := &cobra.Command{
		Use:   "eval [program]",
		Short: "Evaluate a program and print its result",
		Long: `Evaluate a program against an optional JSON context and print the result.

Examples:
  deke eval '(add 1 2)'
  deke eval '(count (filter (gt 3) $))' --context-json '[1, 5, 9]'
  deke eval '(max $/durations)' --context results.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := in.program(opts, args)
			if err != nil {
				return err
			}
			doc, err := in.context(opts)
			if err != nil {
				return err
			}

			result, err := expr.NewExecutor().EvalBytes(program, doc)
			if err != nil {
				return err
			}
			opts.Logger.Debug("evaluated", "program", program, "kind", expr.KindOf(result))

			if opts.IsJSON() {
				out := map[string]any{
					"program": program,
					"kind":    expr.KindOf(result),
					"result":  result.String(),
				}
				if v, err := expr.ToJSON(result); err == nil {
					out["result"] = v
				}
				return writeJSON(opts, out)
			}
			opts.Println(result.String())
			return nil
		},
	}
	in.register(cmd)
	return cmd
}

func newCheckCommand(opts *Options) *cobra.Command {
	var in inputFlags
	var label string
	cmd := &cobra.Command{
		Use:   "check [program]",
		Short: "Run a policy and report whether it passes",
		Long: `Run a policy that must return a bool. The command exits with status 1
when the policy fails and prints an explanation of the failure.

Examples:
  deke check '(lte $ 0.05)' --context-json 0.2 --label "unreviewed changes"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := in.program(opts, args)
			if err != nil {
				return err
			}
			doc, err := in.context(opts)
			if err != nil {
				return err
			}

			x := expr.NewExecutor()
			pass, err := x.RunBytes(program, doc)
			if err != nil {
				return err
			}

			var explanation string
			if !pass {
				explanation, err = x.Explain(program, labelOr(label), json.RawMessage(doc))
				if err != nil {
					opts.Logger.Debug("no explanation", "error", err)
					explanation = fmt.Sprintf("policy %s did not pass", program)
				}
			}

			if opts.IsJSON() {
				out := map[string]any{"program": program, "pass": pass}
				if !pass {
					out["explanation"] = explanation
				}
				if err := writeJSON(opts, out); err != nil {
					return err
				}
			} else if pass {
				opts.PrintSuccess("pass")
			} else {
				opts.PrintError("fail: " + explanation)
			}

			if !pass {
				return ErrPolicyFailed
			}
			return nil
		},
	}
	in.register(cmd)
	cmd.Flags().StringVarP(&label, "label", "l", "", "what the context measures, used in explanations")
	return cmd
}

func newExplainCommand(opts *Options) *cobra.Command {
	var in inputFlags
	var label string
	cmd := &cobra.Command{
		Use:   "explain [program]",
		Short: "Explain in English why a policy fails",
		Long: `Render the English explanation of a failing policy for the given context.

Examples:
  deke explain '(lte (divz (count (filter (eq #f) $)) (count $)) 0.5)' \
    --label commits --context-json '[true, false, false]'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := in.program(opts, args)
			if err != nil {
				return err
			}
			doc, err := in.context(opts)
			if err != nil {
				return err
			}

			explanation, err := expr.NewExecutor().Explain(program, labelOr(label), json.RawMessage(doc))
			if err != nil {
				return err
			}
			if opts.IsJSON() {
				return writeJSON(opts, map[string]any{"program": program, "explanation": explanation})
			}
			opts.Println(explanation)
			return nil
		},
	}
	in.register(cmd)
	cmd.Flags().StringVarP(&label, "label", "l", "", "what the context measures")
	return cmd
}

func labelOr(label string) string {
	if label == "" {
		return "the value"
	}
	return label
}

func writeJSON(opts *Options, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return dekeerrors.Wrap(err, dekeerrors.KindInternal, "cli.writeJSON", "encode output")
	}
	opts.Println(string(data))
	return nil
}
