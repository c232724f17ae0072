package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("1.0.0")

	snap := m.Snapshot()
	assert.Zero(t, snap.EvaluationsTotal)
	assert.Zero(t, snap.RunsTotal)
	assert.Empty(t, snap.PerAnalysis)
	assert.Zero(t, snap.AverageLatency)
}

func TestMetrics_RecordEvaluation(t *testing.T) {
	m := NewMetrics("1.0.0")

	m.RecordEvaluation("activity", OutcomePassed, 2*time.Millisecond)
	m.RecordEvaluation("activity", OutcomeFailed, 4*time.Millisecond)
	m.RecordEvaluation("binary", OutcomeErrored, 6*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.EvaluationsTotal)
	assert.Equal(t, int64(1), snap.EvaluationsPassed)
	assert.Equal(t, int64(1), snap.EvaluationsFailed)
	assert.Equal(t, int64(1), snap.EvaluationsErrored)
	assert.Equal(t, map[string]int64{"activity": 2, "binary": 1}, snap.PerAnalysis)
	assert.Equal(t, 4*time.Millisecond, snap.AverageLatency)
}

func TestMetrics_RecordRun(t *testing.T) {
	m := NewMetrics("1.0.0")
	m.RecordRun(0.25)
	m.RecordRun(0.75)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.RunsTotal)
	assert.InDelta(t, 0.75, snap.LastRiskScore, 1e-9)
}

func TestMetrics_WriteText(t *testing.T) {
	m := NewMetrics("0.1.0")
	m.RecordEvaluation("zeta", OutcomePassed, time.Millisecond)
	m.RecordEvaluation("alpha", OutcomeFailed, time.Millisecond)
	m.RecordRun(0.5)

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	out := buf.String()

	assert.Contains(t, out, `deke_info{version="0.1.0"} 1`)
	assert.Contains(t, out, "deke_runs_total 1")
	assert.Contains(t, out, "deke_risk_score 0.5")
	assert.Contains(t, out, `deke_evaluations_total{outcome="passed"} 1`)
	assert.Contains(t, out, `deke_evaluations_total{outcome="failed"} 1`)
	assert.Contains(t, out, `deke_evaluations_total{outcome="errored"} 0`)
	assert.Contains(t, out, "deke_evaluation_duration_seconds_count 2")
	assert.Contains(t, out, "# TYPE deke_evaluation_duration_seconds histogram")
	assert.Contains(t, out, `deke_analysis_evaluations_total{analysis="alpha",outcome="failed"} 1`)

	// Per-analysis series are sorted by name.
	assert.Less(t,
		bytes.Index(buf.Bytes(), []byte(`analysis="alpha"`)),
		bytes.Index(buf.Bytes(), []byte(`analysis="zeta"`)))
}

func TestMetrics_UnknownOutcomeCountsAsErrored(t *testing.T) {
	m := NewMetrics("1.0.0")
	m.RecordEvaluation("odd", "skipped", time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.EvaluationsErrored)
	assert.Equal(t, int64(1), snap.EvaluationsTotal)
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("0.1.0")
	m.RecordRun(0.1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "deke_runs_total 1")
	assert.Contains(t, rec.Body.String(), "deke_uptime_seconds")
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	a, b := NewMetrics("1"), NewMetrics("2")
	a.RecordRun(1)

	assert.NotSame(t, a.Registry(), b.Registry())
	assert.Equal(t, int64(0), b.Snapshot().RunsTotal)
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	m := NewMetrics("1.0.0")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := OutcomePassed
			if i%2 == 0 {
				outcome = OutcomeFailed
			}
			m.RecordEvaluation("shared", outcome, time.Microsecond)
			_ = m.Snapshot()
		}(i)
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(100), snap.EvaluationsTotal)
	assert.Equal(t, int64(100), snap.PerAnalysis["shared"])
}

func TestGlobal(t *testing.T) {
	g := Global()
	require.NotNil(t, g)
	assert.Same(t, g, Global())
	assert.Same(t, g, InitGlobal("ignored after first use"))
}
