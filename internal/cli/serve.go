package cli

import (
	"github.com/spf13/cobra"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/expr"
	"github.com/relicta-tech/deke/internal/history"
	"github.com/relicta-tech/deke/internal/httpserver"
	"github.com/relicta-tech/deke/internal/observability"
	"github.com/relicta-tech/deke/internal/policy"
)

type serveFlags struct {
	addr string
	dir  string
}

func newServeCommand(opts *Options) *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the evaluation API over HTTP",
		Long: `Serve programs and policy sets over a JSON HTTP API.

Endpoints:
  GET  /health                              liveness and version
  GET  /metrics                             evaluation metrics (Prometheus text)
  POST /api/v1/eval                         {"program": "...", "context": ...}
  POST /api/v1/check                        same body, plus an optional "label"
  POST /api/v1/explain                      same body as check
  GET  /api/v1/policy-sets                  loaded policy sets
  GET  /api/v1/policy-sets/{name}           one policy set
  POST /api/v1/policy-sets/{name}/run       {"results": {...}}
  GET  /api/v1/reports                      stored reports (history.enabled)
  GET  /api/v1/reports/{id}                 one stored report

Requests under /api need an API key when server.api_keys is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, store, err := newAPIServer(opts, f)
			if err != nil {
				return err
			}
			if store != nil {
				defer func() { _ = store.Close() }()

				h := opts.Config.History
				sched := history.NewScheduler(store, h.PruneSchedule, h.Retention, opts.Slog())
				if err := sched.Start(cmd.Context()); err != nil {
					return err
				}
				defer sched.Stop()
			}
			if err := srv.Listen(); err != nil {
				return err
			}
			opts.PrintSuccess("Serving evaluation API on http://" + srv.Address())
			opts.PrintSubtle("Press Ctrl+C to stop")
			return srv.Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", "", "listen address (overrides server.address)")
	cmd.Flags().StringVar(&f.dir, "dir", "", "directory of policy set files")
	return cmd
}

// newAPIServer loads the policy sets and builds the server. Serving with
// no policy sets is allowed; only eval, check and explain are useful then.
// The returned store is nil unless history is enabled; the caller closes it.
func newAPIServer(opts *Options, f serveFlags) (*httpserver.Server, *history.Store, error) {
	sets, err := opts.loadSets("", f.dir)
	if err != nil {
		if !dekeerrors.IsKind(err, dekeerrors.KindNotFound) {
			return nil, nil, err
		}
		opts.PrintWarning("No policy sets found; serving programs only")
		sets = []*policy.Set{}
	}

	serverCfg := opts.Config.Server
	if f.addr != "" {
		serverCfg.Address = f.addr
	}

	tracer := observability.NoopTracer()
	if opts.IsVerbose() {
		tracer = observability.NewLoggingTracer(opts.Slog())
	}

	var store *history.Store
	if opts.Config.History.Enabled {
		if store, err = opts.openHistory(); err != nil {
			return nil, nil, err
		}
	}

	srv := httpserver.NewServer(httpserver.ServerDeps{
		Config:     serverCfg,
		Policies:   opts.Config.Policies,
		Evaluation: opts.Config.Evaluation,
		Executor:   expr.NewExecutor(),
		Sets:       sets,
		Metrics:    opts.Metrics,
		Tracer:     tracer,
		Logger:     opts.Slog(),
		Version:    opts.Version.Version,
		History:    store,
	})
	return srv, store, nil
}
