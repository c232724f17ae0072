package history

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the report history tables.
const Schema = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    policy_set TEXT NOT NULL,
    analyzed_at INTEGER NOT NULL,

    recommendation TEXT NOT NULL,
    risk_score REAL NOT NULL,
    risk_policy TEXT NOT NULL,

    passing INTEGER NOT NULL,
    failing INTEGER NOT NULL,
    errored INTEGER NOT NULL,

    -- The full report as JSON
    body TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_analyzed_at ON reports(analyzed_at);
CREATE INDEX IF NOT EXISTS idx_reports_policy_set ON reports(policy_set, analyzed_at);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);
`

// InsertSchemaVersion records the schema version once.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

// GetSchemaVersion reads the highest recorded schema version.
const GetSchemaVersion = `SELECT MAX(version) FROM schema_version`
