package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jordanhubbard/leadscore/pkg/models"
)

// Performance records

// UpsertPerformanceRecord writes the (agent, day) row, replacing any previous
// roll-up for the same day.
func (d *Database) UpsertPerformanceRecord(ctx context.Context, rec *models.PerformanceRecord) error {
	if rec == nil {
		return fmt.Errorf("performance record cannot be nil")
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	query := `
		INSERT INTO performance_records (agent_id, date, leads_assigned, leads_contacted, leads_converted,
			total_interactions, conversion_rate, contact_rate, average_response_time_hours, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_id, date) DO UPDATE SET
			leads_assigned = excluded.leads_assigned,
			leads_contacted = excluded.leads_contacted,
			leads_converted = excluded.leads_converted,
			total_interactions = excluded.total_interactions,
			conversion_rate = excluded.conversion_rate,
			contact_rate = excluded.contact_rate,
			average_response_time_hours = excluded.average_response_time_hours,
			updated_at = excluded.updated_at
	`
	_, err := d.db.ExecContext(ctx, d.q(query),
		rec.AgentID,
		models.DayStart(rec.Date),
		rec.LeadsAssigned,
		rec.LeadsContacted,
		rec.LeadsConverted,
		rec.TotalInteractions,
		rec.ConversionRate,
		rec.ContactRate,
		rec.AverageResponseTimeHours,
		updatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert performance record: %w", err)
	}
	return nil
}

func (d *Database) GetPerformanceRecord(ctx context.Context, agentID string, date time.Time) (*models.PerformanceRecord, error) {
	query := `
		SELECT agent_id, date, leads_assigned, leads_contacted, leads_converted, total_interactions,
			conversion_rate, contact_rate, average_response_time_hours, updated_at
		FROM performance_records
		WHERE agent_id = ? AND date = ?
	`
	var r models.PerformanceRecord
	err := d.db.QueryRowContext(ctx, d.q(query), agentID, models.DayStart(date)).Scan(
		&r.AgentID, &r.Date, &r.LeadsAssigned, &r.LeadsContacted, &r.LeadsConverted, &r.TotalInteractions,
		&r.ConversionRate, &r.ContactRate, &r.AverageResponseTimeHours, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("performance record %s/%s: %w", agentID, date.Format("2006-01-02"), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get performance record: %w", err)
	}
	r.Date = r.Date.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

// ListPerformanceRecords returns agentID's daily records for the UTC days
// from..to inclusive, newest first.
func (d *Database) ListPerformanceRecords(ctx context.Context, agentID string, from, to time.Time) ([]models.PerformanceRecord, error) {
	query := `
		SELECT agent_id, date, leads_assigned, leads_contacted, leads_converted, total_interactions,
			conversion_rate, contact_rate, average_response_time_hours, updated_at
		FROM performance_records
		WHERE agent_id = ? AND date >= ? AND date <= ?
		ORDER BY date DESC
	`
	rows, err := d.db.QueryContext(ctx, d.q(query), agentID, models.DayStart(from), models.DayStart(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list performance records: %w", err)
	}
	defer rows.Close()

	var out []models.PerformanceRecord
	for rows.Next() {
		var r models.PerformanceRecord
		if err := rows.Scan(&r.AgentID, &r.Date, &r.LeadsAssigned, &r.LeadsContacted, &r.LeadsConverted, &r.TotalInteractions,
			&r.ConversionRate, &r.ContactRate, &r.AverageResponseTimeHours, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan performance record: %w", err)
		}
		r.Date = r.Date.UTC()
		r.UpdatedAt = r.UpdatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Training sessions

func (d *Database) RecordTrainingSession(ctx context.Context, s *models.TrainingSession) error {
	query := `
		INSERT INTO training_sessions (id, organization_id, trained_at, accuracy, training_samples, test_samples, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := d.db.ExecContext(ctx, d.q(query),
		s.ID, s.OrganizationID, s.TrainedAt.UTC(), s.Accuracy, s.TrainingSamples, s.TestSamples, string(s.Status), s.Error)
	if err != nil {
		return fmt.Errorf("failed to record training session: %w", err)
	}
	return nil
}

// ListTrainingSessions returns sessions newest first. An empty orgID lists
// every organization; limit <= 0 means no limit.
func (d *Database) ListTrainingSessions(ctx context.Context, orgID string, limit int) ([]models.TrainingSession, error) {
	query := `SELECT id, organization_id, trained_at, accuracy, training_samples, test_samples, status, error FROM training_sessions`
	var args []any
	if orgID != "" {
		query += ` WHERE organization_id = ?`
		args = append(args, orgID)
	}
	query += ` ORDER BY trained_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, d.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list training sessions: %w", err)
	}
	defer rows.Close()

	var out []models.TrainingSession
	for rows.Next() {
		var s models.TrainingSession
		var status string
		if err := rows.Scan(&s.ID, &s.OrganizationID, &s.TrainedAt, &s.Accuracy, &s.TrainingSamples, &s.TestSamples, &status, &s.Error); err != nil {
			return nil, fmt.Errorf("failed to scan training session: %w", err)
		}
		s.Status = models.TrainingStatus(status)
		s.TrainedAt = s.TrainedAt.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Job runs

func (d *Database) RecordJobRun(ctx context.Context, run *models.JobRun) error {
	var details sql.NullString
	if len(run.Details) > 0 {
		b, err := json.Marshal(run.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal job details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}
	var finished sql.NullTime
	if !run.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}

	query := `
		INSERT INTO job_runs (id, job, status, started_at, finished_at, processed, succeeded, failed, stopped, error, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			processed = excluded.processed,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			stopped = excluded.stopped,
			error = excluded.error,
			details_json = excluded.details_json
	`
	_, err := d.db.ExecContext(ctx, d.q(query),
		run.ID, run.Job, string(run.Status), run.StartedAt.UTC(), finished,
		run.Processed, run.Succeeded, run.Failed, run.Stopped, run.Error, details)
	if err != nil {
		return fmt.Errorf("failed to record job run: %w", err)
	}
	return nil
}

// ListJobRuns returns runs newest first, optionally for a single job.
func (d *Database) ListJobRuns(ctx context.Context, job string, limit int) ([]models.JobRun, error) {
	query := `SELECT id, job, status, started_at, finished_at, processed, succeeded, failed, stopped, error, details_json FROM job_runs`
	var args []any
	if job != "" {
		query += ` WHERE job = ?`
		args = append(args, job)
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, d.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list job runs: %w", err)
	}
	defer rows.Close()

	var out []models.JobRun
	for rows.Next() {
		var r models.JobRun
		var status string
		var finished sql.NullTime
		var details sql.NullString
		if err := rows.Scan(&r.ID, &r.Job, &status, &r.StartedAt, &finished, &r.Processed, &r.Succeeded, &r.Failed, &r.Stopped, &r.Error, &details); err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}
		r.Status = models.JobStatus(status)
		r.StartedAt = r.StartedAt.UTC()
		if finished.Valid {
			r.FinishedAt = finished.Time.UTC()
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &r.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal job details: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Model blobs

// PutModelBlob replaces the organization's serialized model in one statement,
// so readers see either the previous or the new artifact.
func (d *Database) PutModelBlob(ctx context.Context, orgID string, blob []byte, trainedAt time.Time) error {
	query := `
		INSERT INTO scoring_models (organization_id, artifact, trained_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (organization_id) DO UPDATE SET
			artifact = excluded.artifact,
			trained_at = excluded.trained_at,
			updated_at = excluded.updated_at
	`
	_, err := d.db.ExecContext(ctx, d.q(query), orgID, blob, trainedAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store model: %w", err)
	}
	return nil
}

func (d *Database) GetModelBlob(ctx context.Context, orgID string) ([]byte, bool, error) {
	var blob []byte
	err := d.db.QueryRowContext(ctx, d.q(`SELECT artifact FROM scoring_models WHERE organization_id = ?`), orgID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load model: %w", err)
	}
	return blob, true, nil
}
