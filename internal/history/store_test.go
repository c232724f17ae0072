package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/deke/internal/analysis"
	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{
		Path:   filepath.Join(t.TempDir(), "nested", "history.db"),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testReport(id, set string, at time.Time, kind analysis.RecommendationKind) *analysis.Report {
	return &analysis.Report{
		ID:         id,
		PolicySet:  set,
		AnalyzedAt: at,
		Passing:    []analysis.Outcome{{Analysis: "review", Status: analysis.StatusPassing, Policy: "(lte $ 0.5)"}},
		Failing: []analysis.Outcome{{
			Analysis: "typos",
			Status:   analysis.StatusFailing,
			Policy:   "(eq 0 (count $))",
			Message:  "expected typos to be equal to 0",
			Concerns: []string{"teh"},
		}},
		Errored:        []analysis.Outcome{},
		Recommendation: analysis.Recommendation{Kind: kind, RiskScore: 0.25, RiskPolicy: "(lte $ 0.5)"},
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
	assert.True(t, dekeerrors.IsKind(err, dekeerrors.KindConfig))
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, testReport("r1", "set", time.Now(), analysis.Pass)))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "closing twice is harmless")

	s, err = Open(Config{Path: path})
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, path, s.Path())
}

func TestStore_SaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	want := testReport("r1", "supply-chain", at, analysis.Pass)
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "supply-chain", got.PolicySet)
	assert.True(t, at.Equal(got.AnalyzedAt))
	require.Len(t, got.Failing, 1)
	assert.Equal(t, []string{"teh"}, got.Failing[0].Concerns)
	assert.Equal(t, want.Recommendation, got.Recommendation)

	_, err = s.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, dekeerrors.IsKind(err, dekeerrors.KindNotFound))
}

func TestStore_SaveReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testReport("r1", "a", time.Now(), analysis.Pass)))
	require.NoError(t, s.Save(ctx, testReport("r1", "a", time.Now(), analysis.Investigate)))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, analysis.Investigate, got.Recommendation.Kind)
}

func TestStore_SaveRejectsMissingID(t *testing.T) {
	s := openTestStore(t)
	err := s.Save(context.Background(), &analysis.Report{})
	require.Error(t, err)
	assert.True(t, dekeerrors.IsKind(err, dekeerrors.KindValidation))
}

func TestStore_List(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, testReport("old", "a", base, analysis.Pass)))
	require.NoError(t, s.Save(ctx, testReport("mid", "b", base.Add(time.Hour), analysis.Investigate)))
	require.NoError(t, s.Save(ctx, testReport("new", "a", base.Add(2*time.Hour), analysis.Pass)))

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "old", all[2].ID)
	assert.Equal(t, analysis.Investigate, all[1].Recommendation)
	assert.Equal(t, 1, all[1].Passing)
	assert.Equal(t, 1, all[1].Failing)
	assert.Equal(t, 0, all[1].Errored)
	assert.True(t, base.Add(time.Hour).Equal(all[1].AnalyzedAt))

	onlyA, err := s.List(ctx, Filter{PolicySet: "a", Limit: 1})
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, "new", onlyA[0].ID)

	none, err := s.List(ctx, Filter{PolicySet: "zzz"})
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestStore_PruneBefore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, testReport(id, "set", base.Add(time.Duration(i)*24*time.Hour), analysis.Pass)))
	}

	deleted, err := s.PruneBefore(ctx, base.Add(36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	left, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "c", left[0].ID)
}

func TestScheduler(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, testReport("stale", "set", now.Add(-48*time.Hour), analysis.Pass)))
	require.NoError(t, s.Save(ctx, testReport("fresh", "set", now.Add(-time.Hour), analysis.Pass)))

	sched := NewScheduler(s, "0 3 * * *", 24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sched.now = func() time.Time { return now }

	require.NoError(t, sched.Start(ctx))
	assert.True(t, sched.IsRunning())
	assert.NotNil(t, sched.NextRun())

	assert.Equal(t, int64(1), sched.Prune(ctx))
	_, err := s.Get(ctx, "fresh")
	assert.NoError(t, err)

	sched.Stop()
	assert.False(t, sched.IsRunning())
}

func TestScheduler_Idle(t *testing.T) {
	s := openTestStore(t)

	for _, sched := range []*Scheduler{
		NewScheduler(s, "", time.Hour, nil),
		NewScheduler(s, "0 3 * * *", 0, nil),
	} {
		require.NoError(t, sched.Start(context.Background()))
		assert.False(t, sched.IsRunning())
		assert.Nil(t, sched.NextRun())
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := openTestStore(t)
	err := NewScheduler(s, "whenever", time.Hour, nil).Start(context.Background())
	require.Error(t, err)
	assert.True(t, dekeerrors.IsKind(err, dekeerrors.KindConfig))
}
