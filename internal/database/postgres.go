package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// rebind converts ? placeholders to $1, $2, ... for PostgreSQL.
// This is used throughout the database package for parameterized queries.
func rebind(query string) string {
	n := 1
	out := strings.Builder{}
	for _, ch := range query {
		if ch == '?' {
			out.WriteString(fmt.Sprintf("$%d", n))
			n++
		} else {
			out.WriteRune(ch)
		}
	}
	return out.String()
}

// NewPostgres creates a PostgreSQL database connection.
func NewPostgres(dsn string) (*Database, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	d := &Database{
		db:         db,
		postgres:   true,
		supportsHA: true,
	}

	if err := d.initSchemaPostgres(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return d, nil
}

// initSchemaPostgres creates PostgreSQL-specific tables.
func (d *Database) initSchemaPostgres() error {
	schema := `
	-- Distributed locks table for HA job triggering
	CREATE TABLE IF NOT EXISTS distributed_locks (
		lock_name TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL,
		acquired_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at TIMESTAMP NOT NULL,
		heartbeat_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS organizations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		UNIQUE (organization_id, name)
	);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Leads are owned by the CRM; this service mutates scores and snoozes only
	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		age INTEGER NOT NULL DEFAULT 0,
		interaction_count INTEGER NOT NULL DEFAULT 0,
		lead_score DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (lead_score >= 0 AND lead_score <= 100),
		engagement_level TEXT NOT NULL DEFAULT 'low',
		source TEXT,
		agent_id TEXT,
		category_id TEXT,
		date_created TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_contacted_at TIMESTAMP,
		follow_up_at TIMESTAMP,
		follow_up_notes TEXT NOT NULL DEFAULT '',
		is_snoozed BOOLEAN NOT NULL DEFAULT false,
		snooze_until TIMESTAMP,
		CHECK (NOT is_snoozed OR snooze_until IS NOT NULL)
	);

	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		lead_id TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
		agent_id TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL DEFAULT 'neutral',
		duration_minutes DOUBLE PRECISION,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS performance_records (
		agent_id TEXT NOT NULL,
		date TIMESTAMP NOT NULL,
		leads_assigned INTEGER NOT NULL DEFAULT 0,
		leads_contacted INTEGER NOT NULL DEFAULT 0,
		leads_converted INTEGER NOT NULL DEFAULT 0,
		total_interactions INTEGER NOT NULL DEFAULT 0,
		conversion_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		contact_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		average_response_time_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (agent_id, date)
	);

	CREATE TABLE IF NOT EXISTS training_sessions (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		trained_at TIMESTAMP NOT NULL,
		accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
		training_samples INTEGER NOT NULL DEFAULT 0,
		test_samples INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	-- One serialized model/scaler/encoder artifact per organization
	CREATE TABLE IF NOT EXISTS scoring_models (
		organization_id TEXT PRIMARY KEY,
		artifact BYTEA NOT NULL,
		trained_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS job_runs (
		id TEXT PRIMARY KEY,
		job TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		processed INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		stopped BOOLEAN NOT NULL DEFAULT false,
		error TEXT NOT NULL DEFAULT '',
		details_json TEXT
	);

	-- Create indexes for performance
	CREATE INDEX IF NOT EXISTS idx_distributed_locks_expires_at ON distributed_locks(expires_at);
	CREATE INDEX IF NOT EXISTS idx_leads_organization_id ON leads(organization_id);
	CREATE INDEX IF NOT EXISTS idx_leads_agent_id ON leads(agent_id);
	CREATE INDEX IF NOT EXISTS idx_leads_follow_up_at ON leads(follow_up_at) WHERE follow_up_at IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_leads_snooze_until ON leads(snooze_until) WHERE is_snoozed;
	CREATE INDEX IF NOT EXISTS idx_interactions_lead_id ON interactions(lead_id);
	CREATE INDEX IF NOT EXISTS idx_interactions_agent_created ON interactions(agent_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_training_sessions_org ON training_sessions(organization_id, trained_at DESC);
	CREATE INDEX IF NOT EXISTS idx_job_runs_job ON job_runs(job, started_at DESC);
	`

	_, err := d.db.Exec(schema)
	return err
}
