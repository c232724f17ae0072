package cli

import (
	"github.com/spf13/cobra"

	"github.com/relicta-tech/deke/internal/expr"
	"github.com/relicta-tech/deke/internal/version"
)

func newVersionCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Resolve(opts.Version.Version, opts.Version.Commit, opts.Version.Date, expr.LanguageVersion)
			if opts.JSONOutput {
				_ = writeJSON(opts, info)
				return
			}
			if opts.Verbose {
				opts.Println(info.String())
				return
			}
			opts.Println("deke " + info.Version)
		},
	}
}
