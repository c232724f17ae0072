// Package observability provides metrics and tracing for policy evaluation.
package observability

import (
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Outcome labels for recorded evaluations.
const (
	OutcomePassed  = "passed"
	OutcomeFailed  = "failed"
	OutcomeErrored = "errored"
)

const namespace = "deke"

// Metrics collects evaluation metrics in its own Prometheus registry.
//
// Metrics:
//   - deke_info: build information
//   - deke_uptime_seconds: time since the collector was created
//   - deke_runs_total: policy set runs
//   - deke_risk_score: risk score of the last run
//   - deke_evaluations_total: analysis evaluations by outcome
//   - deke_evaluation_duration_seconds: analysis evaluation duration
//   - deke_analysis_evaluations_total: evaluations by analysis and outcome
type Metrics struct {
	registry *prometheus.Registry

	runsTotal           prometheus.Counter
	riskScore           prometheus.Gauge
	evaluationsTotal    *prometheus.CounterVec
	evaluationDuration  prometheus.Histogram
	analysisEvaluations *prometheus.CounterVec

	startTime time.Time
}

// NewMetrics creates a new Metrics instance with a fresh registry.
func NewMetrics(version string) *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),

		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of policy set runs",
		}),
		riskScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Risk score of the last run",
		}),
		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Analysis evaluations by outcome",
		}, []string{"outcome"}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Analysis evaluation duration in seconds",
			// Evaluations are bounded and fast: 1µs to ~0.5s.
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
		}),
		analysisEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_evaluations_total",
			Help:      "Evaluations per analysis and outcome",
		}, []string{"analysis", "outcome"}),
	}

	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "info",
		Help:      "Build information",
	}, []string{"version"})
	info.WithLabelValues(version).Set(1)

	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Uptime in seconds",
	}, func() float64 { return time.Since(m.startTime).Seconds() })

	// Every outcome series exists from the start, at zero.
	for _, outcome := range []string{OutcomePassed, OutcomeFailed, OutcomeErrored} {
		m.evaluationsTotal.WithLabelValues(outcome)
	}

	m.registry.MustRegister(
		info,
		uptime,
		m.runsTotal,
		m.riskScore,
		m.evaluationsTotal,
		m.evaluationDuration,
		m.analysisEvaluations,
	)
	return m
}

// normalizeOutcome folds unknown outcomes into errored.
func normalizeOutcome(outcome string) string {
	switch outcome {
	case OutcomePassed, OutcomeFailed:
		return outcome
	default:
		return OutcomeErrored
	}
}

// RecordEvaluation records one analysis evaluation and its outcome.
func (m *Metrics) RecordEvaluation(analysis, outcome string, duration time.Duration) {
	outcome = normalizeOutcome(outcome)
	m.evaluationsTotal.WithLabelValues(outcome).Inc()
	m.analysisEvaluations.WithLabelValues(analysis, outcome).Inc()
	m.evaluationDuration.Observe(duration.Seconds())
}

// RecordRun records a completed run and its risk score.
func (m *Metrics) RecordRun(riskScore float64) {
	m.runsTotal.Inc()
	m.riskScore.Set(riskScore)
}

// Registry returns the registry the metrics are registered in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// WriteText writes all metrics to w in Prometheus text format, sorted by
// metric name and labels.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func read(c prometheus.Metric) *dto.Metric {
	var out dto.Metric
	_ = c.Write(&out)
	return &out
}

func counterValue(c prometheus.Counter) int64 {
	return int64(read(c).GetCounter().GetValue())
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	passed := counterValue(m.evaluationsTotal.WithLabelValues(OutcomePassed))
	failed := counterValue(m.evaluationsTotal.WithLabelValues(OutcomeFailed))
	errored := counterValue(m.evaluationsTotal.WithLabelValues(OutcomeErrored))

	perAnalysis := make(map[string]int64)
	if families, err := m.registry.Gather(); err == nil {
		for _, mf := range families {
			if mf.GetName() != namespace+"_analysis_evaluations_total" {
				continue
			}
			for _, metric := range mf.GetMetric() {
				for _, label := range metric.GetLabel() {
					if label.GetName() == "analysis" {
						perAnalysis[label.GetValue()] += int64(metric.GetCounter().GetValue())
					}
				}
			}
		}
	}

	var avg time.Duration
	if h := read(m.evaluationDuration).GetHistogram(); h.GetSampleCount() > 0 {
		secs := h.GetSampleSum() / float64(h.GetSampleCount())
		avg = time.Duration(math.Round(secs * float64(time.Second))).Round(time.Microsecond)
	}

	return MetricsSnapshot{
		RunsTotal:          counterValue(m.runsTotal),
		EvaluationsTotal:   passed + failed + errored,
		EvaluationsPassed:  passed,
		EvaluationsFailed:  failed,
		EvaluationsErrored: errored,
		PerAnalysis:        perAnalysis,
		LastRiskScore:      read(m.riskScore).GetGauge().GetValue(),
		AverageLatency:     avg,
		Uptime:             time.Since(m.startTime),
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	RunsTotal          int64
	EvaluationsTotal   int64
	EvaluationsPassed  int64
	EvaluationsFailed  int64
	EvaluationsErrored int64
	PerAnalysis        map[string]int64
	LastRiskScore      float64
	AverageLatency     time.Duration
	Uptime             time.Duration
}

// Global metrics instance.
var (
	globalMetrics     *Metrics
	globalMetricsOnce sync.Once
)

// Global returns the global metrics instance.
// If InitGlobal has not been called, the version is "unknown".
func Global() *Metrics {
	return InitGlobal("unknown")
}

// InitGlobal initializes the global metrics instance with version info.
// Only the first call (to either InitGlobal or Global) sets the version.
func InitGlobal(version string) *Metrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = NewMetrics(version)
	})
	return globalMetrics
}
