package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/expr"
	"github.com/relicta-tech/deke/internal/observability"
)

// Runner evaluates analyses concurrently and builds a report.
type Runner struct {
	executor    *expr.Executor
	riskPolicy  string
	policySet   string
	concurrency int
	logger      *slog.Logger
	metrics     *observability.Metrics
	tracer      observability.Tracer
	now         func() time.Time
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRiskPolicy sets the policy run against the risk score.
func WithRiskPolicy(policy string) RunnerOption {
	return func(r *Runner) {
		r.riskPolicy = policy
	}
}

// WithPolicySet names the policy set in reports.
func WithPolicySet(name string) RunnerOption {
	return func(r *Runner) {
		r.policySet = name
	}
}

// WithConcurrency caps the number of analyses evaluated at once.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithMetrics records evaluations into m.
func WithMetrics(m *observability.Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithTracer opens a span per evaluated analysis.
func WithTracer(t observability.Tracer) RunnerOption {
	return func(r *Runner) {
		r.tracer = t
	}
}

// NewRunner creates a runner backed by executor.
func NewRunner(executor *expr.Executor, opts ...RunnerOption) *Runner {
	if executor == nil {
		executor = expr.NewExecutor()
	}
	r := &Runner{
		executor:    executor,
		riskPolicy:  DefaultRiskPolicy,
		concurrency: 4,
		logger:      slog.Default().With("component", "analysis_runner"),
		tracer:      observability.NoopTracer(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run evaluates every analysis against its result and rates the risk.
// Per-analysis failures become errored outcomes; Run itself fails only on
// invalid analyses, cancellation, or a broken risk policy.
func (r *Runner) Run(ctx context.Context, analyses []Analysis, results map[string]Result) (*Report, error) {
	const op = "analysis.Run"

	if err := Validate(analyses); err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(analyses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, a := range analyses {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, ok := results[a.Name]
			outcomes[i] = r.evaluate(gctx, a, result, ok)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dekeerrors.Canceled(err, op)
	}
	if err := ctx.Err(); err != nil {
		return nil, dekeerrors.Canceled(err, op)
	}

	score := RiskScore(analyses, outcomes)
	pass, err := r.executor.Run(r.riskPolicy, score)
	if err != nil {
		return nil, dekeerrors.Wrap(err, dekeerrors.GetKind(err), op, "evaluate risk policy")
	}
	rec := Recommendation{Kind: Investigate, RiskScore: score, RiskPolicy: r.riskPolicy}
	if pass {
		rec.Kind = Pass
	}

	report := &Report{
		ID:             uuid.NewString(),
		PolicySet:      r.policySet,
		AnalyzedAt:     r.now().UTC(),
		Passing:        []Outcome{},
		Failing:        []Outcome{},
		Errored:        []Outcome{},
		Recommendation: rec,
	}
	for _, o := range outcomes {
		switch o.Status {
		case StatusPassing:
			report.Passing = append(report.Passing, o)
		case StatusFailing:
			report.Failing = append(report.Failing, o)
		default:
			report.Errored = append(report.Errored, o)
		}
	}

	if r.metrics != nil {
		r.metrics.RecordRun(score)
	}
	r.logger.Info("analyses complete",
		"policy_set", r.policySet,
		"passing", len(report.Passing),
		"failing", len(report.Failing),
		"errored", len(report.Errored),
		"risk_score", score,
		"recommendation", rec.Kind)

	return report, nil
}

func (r *Runner) evaluate(ctx context.Context, a Analysis, result Result, found bool) Outcome {
	_, span := r.tracer.Start(ctx, "analysis.evaluate")
	span.SetAttribute(observability.AttrAnalysis, a.Name)
	span.SetAttribute(observability.AttrPolicy, a.Policy)
	if r.policySet != "" {
		span.SetAttribute(observability.AttrSetName, r.policySet)
	}
	start := time.Now()

	o := Outcome{Analysis: a.Name, Policy: a.Policy, Concerns: result.Concerns}
	switch {
	case !found:
		o.Status = StatusErrored
		o.Err = dekeerrors.NotFound("analysis.evaluate", fmt.Sprintf("no result for analysis %q", a.Name))
	default:
		pass, err := r.executor.RunBytes(a.Policy, result.Value)
		switch {
		case err != nil:
			o.Status = StatusErrored
			o.Err = err
		case pass:
			o.Status = StatusPassing
		default:
			o.Status = StatusFailing
			o.Message = r.explain(a, result)
		}
	}
	if o.Err != nil {
		o.Message = o.Err.Error()
		o.Kind = dekeerrors.GetKind(o.Err).String()
		span.RecordError(o.Err)
	}
	o.Duration = time.Since(start)

	span.SetAttribute(observability.AttrOutcome, string(o.Status))
	span.End()
	if r.metrics != nil {
		r.metrics.RecordEvaluation(a.Name, metricOutcome(o.Status), o.Duration)
	}
	r.logger.Debug("analysis evaluated", "analysis", a.Name, "status", o.Status, "duration", o.Duration)
	return o
}

// explain falls back to the policy text when the policy has no English form.
func (r *Runner) explain(a Analysis, result Result) string {
	msg, err := r.executor.Explain(a.Policy, a.Label(), result.Value)
	if err != nil {
		r.logger.Debug("explanation unavailable", "analysis", a.Name, "error", err)
		return fmt.Sprintf("%s: policy %s did not pass", a.Label(), a.Policy)
	}
	return msg
}

func metricOutcome(s Status) string {
	switch s {
	case StatusPassing:
		return observability.OutcomePassed
	case StatusFailing:
		return observability.OutcomeFailed
	default:
		return observability.OutcomeErrored
	}
}
