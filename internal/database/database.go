package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jordanhubbard/leadscore/pkg/models"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = models.ErrNotFound

// Database is the SQL-backed lead repository. It serves SQLite for single
// node deployments and PostgreSQL (see NewPostgres) for HA.
type Database struct {
	db         *sql.DB
	postgres   bool
	supportsHA bool
}

// New creates a new SQLite database instance and initializes the schema
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	// SQLite allows one writer; serialize through a single connection.
	db.SetMaxOpenConns(1)

	d := &Database{db: db}

	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return d, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks connectivity for health probes.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// SupportsHA reports whether distributed locks are available.
func (d *Database) SupportsHA() bool {
	return d.supportsHA
}

// q adapts a ?-placeholder query to the active dialect.
func (d *Database) q(query string) string {
	if d.postgres {
		return rebind(query)
	}
	return query
}

// initSchema creates the SQLite tables
func (d *Database) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS organizations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		name TEXT NOT NULL,
		UNIQUE (organization_id, name)
	);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		age INTEGER NOT NULL DEFAULT 0,
		interaction_count INTEGER NOT NULL DEFAULT 0,
		lead_score REAL NOT NULL DEFAULT 0,
		engagement_level TEXT NOT NULL DEFAULT 'low',
		source TEXT,
		agent_id TEXT,
		category_id TEXT,
		date_created DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		last_contacted_at DATETIME,
		follow_up_at DATETIME,
		follow_up_notes TEXT NOT NULL DEFAULT '',
		is_snoozed BOOLEAN NOT NULL DEFAULT 0,
		snooze_until DATETIME,
		CHECK (is_snoozed = 0 OR snooze_until IS NOT NULL)
	);

	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		lead_id TEXT NOT NULL,
		agent_id TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL DEFAULT 'neutral',
		duration_minutes REAL,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (lead_id) REFERENCES leads(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS performance_records (
		agent_id TEXT NOT NULL,
		date DATETIME NOT NULL,
		leads_assigned INTEGER NOT NULL DEFAULT 0,
		leads_contacted INTEGER NOT NULL DEFAULT 0,
		leads_converted INTEGER NOT NULL DEFAULT 0,
		total_interactions INTEGER NOT NULL DEFAULT 0,
		conversion_rate REAL NOT NULL DEFAULT 0,
		contact_rate REAL NOT NULL DEFAULT 0,
		average_response_time_hours REAL NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (agent_id, date)
	);

	CREATE TABLE IF NOT EXISTS training_sessions (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		trained_at DATETIME NOT NULL,
		accuracy REAL NOT NULL DEFAULT 0,
		training_samples INTEGER NOT NULL DEFAULT 0,
		test_samples INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS scoring_models (
		organization_id TEXT PRIMARY KEY,
		artifact BLOB NOT NULL,
		trained_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS job_runs (
		id TEXT PRIMARY KEY,
		job TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		processed INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		stopped BOOLEAN NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		details_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_leads_organization_id ON leads(organization_id);
	CREATE INDEX IF NOT EXISTS idx_leads_agent_id ON leads(agent_id);
	CREATE INDEX IF NOT EXISTS idx_leads_follow_up_at ON leads(follow_up_at);
	CREATE INDEX IF NOT EXISTS idx_leads_snooze_until ON leads(snooze_until);
	CREATE INDEX IF NOT EXISTS idx_interactions_lead_id ON interactions(lead_id);
	CREATE INDEX IF NOT EXISTS idx_interactions_agent_created ON interactions(agent_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_training_sessions_org ON training_sessions(organization_id, trained_at);
	CREATE INDEX IF NOT EXISTS idx_job_runs_job ON job_runs(job, started_at);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Best-effort migrations for existing databases.
	// SQLite doesn't support IF NOT EXISTS on ADD COLUMN.
	_, _ = d.db.Exec("ALTER TABLE leads ADD COLUMN follow_up_notes TEXT NOT NULL DEFAULT ''")
	_, _ = d.db.Exec("ALTER TABLE job_runs ADD COLUMN details_json TEXT")

	return nil
}

// WithTransaction executes a function within a database transaction.
func (d *Database) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
