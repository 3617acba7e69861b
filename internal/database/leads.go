package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jordanhubbard/leadscore/pkg/models"
)

// Organizations

// CreateOrganization inserts org and seeds its default categories in the same
// transaction.
func (d *Database) CreateOrganization(ctx context.Context, org *models.Organization) error {
	if org == nil {
		return fmt.Errorf("organization cannot be nil")
	}
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	return d.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, d.q(`INSERT INTO organizations (id, name, created_at) VALUES (?, ?, ?)`),
			org.ID, org.Name, org.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to create organization: %w", err)
		}
		return d.insertDefaultCategories(ctx, tx, org.ID)
	})
}

func (d *Database) ListOrganizations(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id FROM organizations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Categories

// EnsureDefaultCategories creates any missing default category for orgID and
// returns all of the organization's categories.
func (d *Database) EnsureDefaultCategories(ctx context.Context, orgID string) ([]models.Category, error) {
	err := d.WithTransaction(ctx, func(tx *sql.Tx) error {
		return d.insertDefaultCategories(ctx, tx, orgID)
	})
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, d.q(`SELECT id, organization_id, name FROM categories WHERE organization_id = ? ORDER BY name`), orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *Database) insertDefaultCategories(ctx context.Context, tx *sql.Tx, orgID string) error {
	for _, name := range models.DefaultCategoryNames {
		_, err := tx.ExecContext(ctx, d.q(`
			INSERT INTO categories (id, organization_id, name) VALUES (?, ?, ?)
			ON CONFLICT (organization_id, name) DO NOTHING
		`), uuid.New().String(), orgID, name)
		if err != nil {
			return fmt.Errorf("failed to insert category %q: %w", name, err)
		}
	}
	return nil
}

// Agents

func (d *Database) CreateAgent(ctx context.Context, agent *models.Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now().UTC()
	}
	_, err := d.db.ExecContext(ctx, d.q(`
		INSERT INTO agents (id, organization_id, name, email, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), agent.ID, agent.OrganizationID, agent.Name, agent.Email, agent.Active, agent.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

// ListActiveAgents returns active agents of orgID, or of every organization
// when orgID is empty.
func (d *Database) ListActiveAgents(ctx context.Context, orgID string) ([]*models.Agent, error) {
	query := `SELECT id, organization_id, name, email, active, created_at FROM agents WHERE active = ?`
	args := []any{true}
	if orgID != "" {
		query += ` AND organization_id = ?`
		args = append(args, orgID)
	}
	query += ` ORDER BY id`

	rows, err := d.db.QueryContext(ctx, d.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.Name, &a.Email, &a.Active, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// Leads

const leadColumns = `
	l.id, l.organization_id, l.first_name, l.last_name, l.email, l.age, l.interaction_count,
	l.lead_score, l.engagement_level, COALESCE(l.source, ''), COALESCE(l.agent_id, ''),
	COALESCE(a.email, ''), COALESCE(l.category_id, ''), COALESCE(c.name, ''),
	l.date_created, l.updated_at, l.last_contacted_at, l.follow_up_at, l.follow_up_notes,
	l.is_snoozed, l.snooze_until`

const leadFrom = `
	FROM leads l
	LEFT JOIN agents a ON a.id = l.agent_id
	LEFT JOIN categories c ON c.id = l.category_id`

func (d *Database) CreateLead(ctx context.Context, lead *models.Lead) error {
	if lead == nil {
		return fmt.Errorf("lead cannot be nil")
	}
	if lead.IsSnoozed && lead.SnoozeUntil == nil {
		return fmt.Errorf("lead %s is snoozed without snooze_until", lead.ID)
	}
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.DateCreated.IsZero() {
		lead.DateCreated = time.Now().UTC()
	}
	if lead.UpdatedAt.IsZero() {
		lead.UpdatedAt = lead.DateCreated
	}
	if lead.EngagementLevel == "" {
		lead.EngagementLevel = models.EngagementLow
	}
	lead.LeadScore = models.ClampScore(lead.LeadScore)

	query := `
		INSERT INTO leads (id, organization_id, first_name, last_name, email, age, interaction_count,
			lead_score, engagement_level, source, agent_id, category_id, date_created, updated_at,
			last_contacted_at, follow_up_at, follow_up_notes, is_snoozed, snooze_until)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := d.db.ExecContext(ctx, d.q(query),
		lead.ID,
		lead.OrganizationID,
		lead.FirstName,
		lead.LastName,
		lead.Email,
		lead.Age,
		lead.InteractionCount,
		lead.LeadScore,
		string(lead.EngagementLevel),
		nullString(lead.Source),
		nullString(lead.AgentID),
		nullString(lead.CategoryID),
		lead.DateCreated.UTC(),
		lead.UpdatedAt.UTC(),
		nullTime(lead.LastContactedAt),
		nullTime(lead.FollowUpAt),
		lead.FollowUpNotes,
		lead.IsSnoozed,
		nullTime(lead.SnoozeUntil),
	)
	if err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}
	return nil
}

func (d *Database) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	row := d.db.QueryRowContext(ctx, d.q(`SELECT `+leadColumns+leadFrom+` WHERE l.id = ?`), id)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lead %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return lead, nil
}

func (d *Database) GetLeadsByOrganization(ctx context.Context, orgID string, filter *models.LeadFilter) ([]*models.Lead, error) {
	f := models.LeadFilter{}
	if filter != nil {
		f = *filter
	}
	f.OrganizationID = orgID
	return d.FindLeads(ctx, f)
}

func (d *Database) GetLeadsByAgent(ctx context.Context, agentID string) ([]*models.Lead, error) {
	return d.FindLeads(ctx, models.LeadFilter{AgentID: agentID})
}

// FindLeads translates filter into SQL. Results are ordered by creation time.
func (d *Database) FindLeads(ctx context.Context, filter models.LeadFilter) ([]*models.Lead, error) {
	where, args := leadWhere(filter)
	query := `SELECT ` + leadColumns + leadFrom
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY l.date_created, l.id`

	rows, err := d.db.QueryContext(ctx, d.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	leads := make([]*models.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

func leadWhere(f models.LeadFilter) ([]string, []any) {
	var where []string
	var args []any
	if f.OrganizationID != "" {
		where = append(where, `l.organization_id = ?`)
		args = append(args, f.OrganizationID)
	}
	if f.AgentID != "" {
		where = append(where, `l.agent_id = ?`)
		args = append(args, f.AgentID)
	}
	if f.RequireAgent {
		where = append(where, `l.agent_id IS NOT NULL`)
	}
	if f.Snoozed != nil {
		where = append(where, `l.is_snoozed = ?`)
		args = append(args, *f.Snoozed)
	}
	if f.FollowUpFrom != nil || f.FollowUpTo != nil {
		where = append(where, `l.follow_up_at IS NOT NULL`)
	}
	if f.FollowUpFrom != nil {
		where = append(where, `l.follow_up_at >= ?`)
		args = append(args, f.FollowUpFrom.UTC())
	}
	if f.FollowUpTo != nil {
		where = append(where, `l.follow_up_at <= ?`)
		args = append(args, f.FollowUpTo.UTC())
	}
	if f.SnoozeEndsBefore != nil {
		where = append(where, `l.snooze_until < ?`)
		args = append(args, f.SnoozeEndsBefore.UTC())
	}
	return where, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*models.Lead, error) {
	var l models.Lead
	var engagement string
	var lastContacted, followUp, snoozeUntil sql.NullTime
	err := row.Scan(
		&l.ID, &l.OrganizationID, &l.FirstName, &l.LastName, &l.Email, &l.Age, &l.InteractionCount,
		&l.LeadScore, &engagement, &l.Source, &l.AgentID,
		&l.AgentEmail, &l.CategoryID, &l.CategoryName,
		&l.DateCreated, &l.UpdatedAt, &lastContacted, &followUp, &l.FollowUpNotes,
		&l.IsSnoozed, &snoozeUntil,
	)
	if err != nil {
		return nil, err
	}
	l.EngagementLevel = models.EngagementLevel(engagement)
	l.DateCreated = l.DateCreated.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	l.LastContactedAt = timePtr(lastContacted)
	l.FollowUpAt = timePtr(followUp)
	l.SnoozeUntil = timePtr(snoozeUntil)
	return &l, nil
}

// UpdateLead applies a pipeline update. updated_at is left alone: it tracks
// user edits and feeds the conversion roll-up.
func (d *Database) UpdateLead(ctx context.Context, id string, update models.LeadUpdate) error {
	if update.Empty() {
		return nil
	}
	var sets []string
	var args []any
	if update.LeadScore != nil {
		sets = append(sets, `lead_score = ?`)
		args = append(args, models.ClampScore(*update.LeadScore))
	}
	if update.Unsnooze {
		sets = append(sets, `is_snoozed = ?`, `snooze_until = NULL`)
		args = append(args, false)
	}
	args = append(args, id)

	result, err := d.db.ExecContext(ctx, d.q(`UPDATE leads SET `+strings.Join(sets, `, `)+` WHERE id = ?`), args...)
	if err != nil {
		return fmt.Errorf("failed to update lead: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check lead update: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("lead %s: %w", id, ErrNotFound)
	}
	return nil
}

// LeadStatistics summarizes orgID's leads relative to now.
func (d *Database) LeadStatistics(ctx context.Context, orgID string, now time.Time) (*models.LeadStatistics, error) {
	weekStart, monthStart := models.StatisticsWindows(now)
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN agent_id IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN category_id IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN date_created >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN date_created >= ? THEN 1 ELSE 0 END), 0)
		FROM leads
		WHERE organization_id = ?
	`
	stats := &models.LeadStatistics{OrganizationID: orgID}
	err := d.db.QueryRowContext(ctx, d.q(query), weekStart, monthStart, orgID).Scan(
		&stats.Total, &stats.Assigned, &stats.Categorized, &stats.ThisWeek, &stats.ThisMonth)
	if err != nil {
		return nil, fmt.Errorf("failed to compute lead statistics: %w", err)
	}
	stats.Unassigned = stats.Total - stats.Assigned
	stats.Uncategorized = stats.Total - stats.Categorized
	return stats, nil
}

// Interactions

func (d *Database) AddInteraction(ctx context.Context, in *models.Interaction) error {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	if in.Outcome == "" {
		in.Outcome = models.OutcomeNeutral
	}
	var duration sql.NullFloat64
	if in.DurationMinutes != nil {
		duration = sql.NullFloat64{Float64: *in.DurationMinutes, Valid: true}
	}
	_, err := d.db.ExecContext(ctx, d.q(`
		INSERT INTO interactions (id, lead_id, agent_id, type, outcome, duration_minutes, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), in.ID, in.LeadID, in.AgentID, in.Type, string(in.Outcome), duration, in.Notes, in.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to add interaction: %w", err)
	}
	return nil
}

const interactionColumns = `id, lead_id, agent_id, type, outcome, duration_minutes, notes, created_at`

func (d *Database) GetInteractions(ctx context.Context, leadID string) ([]models.Interaction, error) {
	return d.queryInteractions(ctx,
		`SELECT `+interactionColumns+` FROM interactions WHERE lead_id = ? ORDER BY created_at, id`, leadID)
}

// GetInteractionsByAgent returns the agent's interactions created in [from, to).
func (d *Database) GetInteractionsByAgent(ctx context.Context, agentID string, from, to time.Time) ([]models.Interaction, error) {
	return d.queryInteractions(ctx,
		`SELECT `+interactionColumns+` FROM interactions
		WHERE agent_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at, id`, agentID, from.UTC(), to.UTC())
}

func (d *Database) queryInteractions(ctx context.Context, query string, args ...any) ([]models.Interaction, error) {
	rows, err := d.db.QueryContext(ctx, d.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var out []models.Interaction
	for rows.Next() {
		var in models.Interaction
		var outcome string
		var duration sql.NullFloat64
		if err := rows.Scan(&in.ID, &in.LeadID, &in.AgentID, &in.Type, &outcome, &duration, &in.Notes, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		in.Outcome = models.InteractionOutcome(outcome)
		in.CreatedAt = in.CreatedAt.UTC()
		if duration.Valid {
			v := duration.Float64
			in.DurationMinutes = &v
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
