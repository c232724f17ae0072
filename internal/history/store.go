// Package history stores policy set run reports in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/relicta-tech/deke/internal/analysis"
	dekeerrors "github.com/relicta-tech/deke/internal/errors"
)

// DefaultListLimit bounds List when the filter sets no limit.
const DefaultListLimit = 50

// Config configures the store.
type Config struct {
	// Path is the database file. Parent directories are created.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	Logger *slog.Logger
}

// Summary is the listing form of a stored report.
type Summary struct {
	ID             string                      `json:"id"`
	PolicySet      string                      `json:"policy_set"`
	AnalyzedAt     time.Time                   `json:"analyzed_at"`
	Recommendation analysis.RecommendationKind `json:"recommendation"`
	RiskScore      float64                     `json:"risk_score"`
	Passing        int                         `json:"passing"`
	Failing        int                         `json:"failing"`
	Errored        int                         `json:"errored"`
}

// Filter narrows List.
type Filter struct {
	// PolicySet keeps only reports of this set when non-empty.
	PolicySet string
	// Limit caps the number of summaries; zero means DefaultListLimit.
	Limit int
}

// Store persists run reports. It is safe for concurrent use.
type Store struct {
	db        *sql.DB
	path      string
	logger    *slog.Logger
	closeOnce sync.Once
}

// Open opens or creates the database at cfg.Path and applies the schema.
func Open(cfg Config) (*Store, error) {
	const op = "history.Open"

	if cfg.Path == "" {
		return nil, dekeerrors.Config(op, "history path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, dekeerrors.IOWrap(err, op, "failed to create history directory")
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, dekeerrors.IOWrap(err, op, "failed to open history database")
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{
		db:     db,
		path:   cfg.Path,
		logger: logger.With("component", "history"),
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.logger.Debug("history store opened", "path", cfg.Path)
	return s, nil
}

func (s *Store) initSchema() error {
	const op = "history.initSchema"

	if _, err := s.db.Exec(Schema); err != nil {
		return dekeerrors.IOWrap(err, op, "failed to create schema")
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return dekeerrors.IOWrap(err, op, "failed to record schema version")
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return dekeerrors.IOWrap(err, op, "failed to read schema version")
	}
	if version != SchemaVersion {
		return dekeerrors.Config(op,
			fmt.Sprintf("history schema version %d is not supported (want %d)", version, SchemaVersion))
	}
	return nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Save stores report. Saving a report ID twice replaces the first.
func (s *Store) Save(ctx context.Context, report *analysis.Report) error {
	const op = "history.Save"

	if report == nil || report.ID == "" {
		return dekeerrors.Validation(op, "report has no ID")
	}
	body, err := json.Marshal(report)
	if err != nil {
		return dekeerrors.Wrap(err, dekeerrors.KindInternal, op, "encode report")
	}

	rec := report.Recommendation
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (
			id, policy_set, analyzed_at,
			recommendation, risk_score, risk_policy,
			passing, failing, errored, body
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			policy_set = excluded.policy_set,
			analyzed_at = excluded.analyzed_at,
			recommendation = excluded.recommendation,
			risk_score = excluded.risk_score,
			risk_policy = excluded.risk_policy,
			passing = excluded.passing,
			failing = excluded.failing,
			errored = excluded.errored,
			body = excluded.body`,
		report.ID, report.PolicySet, report.AnalyzedAt.UnixNano(),
		string(rec.Kind), rec.RiskScore, rec.RiskPolicy,
		len(report.Passing), len(report.Failing), len(report.Errored), string(body),
	)
	if err != nil {
		return dekeerrors.IOWrap(err, op, "failed to save report "+report.ID)
	}
	return nil
}

// Get returns the report with id.
func (s *Store) Get(ctx context.Context, id string) (*analysis.Report, error) {
	const op = "history.Get"

	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dekeerrors.NotFound(op, "no report with id "+id)
	}
	if err != nil {
		return nil, dekeerrors.IOWrap(err, op, "failed to read report "+id)
	}

	var report analysis.Report
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return nil, dekeerrors.Wrap(err, dekeerrors.KindInternal, op, "decode report "+id)
	}
	return &report, nil
}

// List returns report summaries, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Summary, error) {
	const op = "history.List"

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, policy_set, analyzed_at, recommendation, risk_score, passing, failing, errored
		FROM reports`
	args := []any{}
	if f.PolicySet != "" {
		query += ` WHERE policy_set = ?`
		args = append(args, f.PolicySet)
	}
	query += ` ORDER BY analyzed_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dekeerrors.IOWrap(err, op, "failed to list reports")
	}
	defer func() { _ = rows.Close() }()

	summaries := []Summary{}
	for rows.Next() {
		var (
			sum  Summary
			at   int64
			kind string
		)
		if err := rows.Scan(&sum.ID, &sum.PolicySet, &at, &kind, &sum.RiskScore,
			&sum.Passing, &sum.Failing, &sum.Errored); err != nil {
			return nil, dekeerrors.IOWrap(err, op, "failed to scan report")
		}
		sum.AnalyzedAt = time.Unix(0, at).UTC()
		sum.Recommendation = analysis.RecommendationKind(kind)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, dekeerrors.IOWrap(err, op, "failed to list reports")
	}
	return summaries, nil
}

// Count returns the number of stored reports.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n); err != nil {
		return 0, dekeerrors.IOWrap(err, "history.Count", "failed to count reports")
	}
	return n, nil
}

// PruneBefore deletes reports analyzed before cutoff and returns how many
// were deleted.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "history.PruneBefore"

	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE analyzed_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, dekeerrors.IOWrap(err, op, "failed to prune reports")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dekeerrors.IOWrap(err, op, "failed to prune reports")
	}
	if n > 0 {
		s.logger.Info("pruned reports", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}
