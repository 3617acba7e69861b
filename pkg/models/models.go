package models

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is wrapped by repositories when an addressed record does not exist.
var ErrNotFound = errors.New("not found")

// EngagementLevel is the coarse engagement bucket recorded on a lead.
type EngagementLevel string

const (
	EngagementLow    EngagementLevel = "low"
	EngagementMedium EngagementLevel = "medium"
	EngagementHigh   EngagementLevel = "high"
)

// InteractionOutcome is the recorded result of a single interaction.
type InteractionOutcome string

const (
	OutcomePositive   InteractionOutcome = "positive"
	OutcomeNeutral    InteractionOutcome = "neutral"
	OutcomeNegative   InteractionOutcome = "negative"
	OutcomeNoResponse InteractionOutcome = "no_response"
)

const (
	MinLeadScore = 0.0
	MaxLeadScore = 100.0
)

// Lead is a sales prospect tracked through the conversion funnel.
type Lead struct {
	ID               string          `json:"id"`
	OrganizationID   string          `json:"organization_id"`
	FirstName        string          `json:"first_name"`
	LastName         string          `json:"last_name"`
	Email            string          `json:"email,omitempty"`
	Age              int             `json:"age"`
	InteractionCount int             `json:"interaction_count"`
	LeadScore        float64         `json:"lead_score"`
	EngagementLevel  EngagementLevel `json:"engagement_level"`
	Source           string          `json:"source,omitempty"`
	AgentID          string          `json:"agent_id,omitempty"`
	AgentEmail       string          `json:"agent_email,omitempty"`
	CategoryID       string          `json:"category_id,omitempty"`
	CategoryName     string          `json:"category_name,omitempty"`
	DateCreated      time.Time       `json:"date_created"`
	UpdatedAt        time.Time       `json:"updated_at"`
	LastContactedAt  *time.Time      `json:"last_contacted_at,omitempty"`
	FollowUpAt       *time.Time      `json:"follow_up_at,omitempty"`
	FollowUpNotes    string          `json:"follow_up_notes,omitempty"`
	IsSnoozed        bool            `json:"is_snoozed"`
	SnoozeUntil      *time.Time      `json:"snooze_until,omitempty"`
}

// AgentAssigned reports whether an agent owns the lead.
func (l *Lead) AgentAssigned() bool {
	return l.AgentID != ""
}

// CategoryAssigned reports whether the lead has been categorized.
func (l *Lead) CategoryAssigned() bool {
	return l.CategoryID != ""
}

// FullName joins first and last name.
func (l *Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// Converted reports whether the lead's category marks it as converted.
// The match is a case-insensitive substring test on the category name, so
// "Unconverted" also matches.
func (l *Lead) Converted() bool {
	return IsConvertedCategory(l.CategoryName)
}

// IsConvertedCategory applies the conversion label rule to a category name.
func IsConvertedCategory(name string) bool {
	return strings.Contains(strings.ToLower(name), "converted")
}

// ClampScore bounds a score to [MinLeadScore, MaxLeadScore].
func ClampScore(score float64) float64 {
	if score < MinLeadScore {
		return MinLeadScore
	}
	if score > MaxLeadScore {
		return MaxLeadScore
	}
	return score
}

// Interaction is a single recorded touchpoint between an agent and a lead.
type Interaction struct {
	ID              string             `json:"id"`
	LeadID          string             `json:"lead_id"`
	AgentID         string             `json:"agent_id"`
	Type            string             `json:"type"`
	Outcome         InteractionOutcome `json:"outcome"`
	DurationMinutes *float64           `json:"duration_minutes,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// Agent is a sales agent that can own leads.
type Agent struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Category is an organization-defined lead bucket.
type Category struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
}

// DefaultCategoryNames are created for every new organization.
var DefaultCategoryNames = []string{"New", "Contacted", "Converted", "Unconverted"}

// LeadStatistics summarizes an organization's lead book.
type LeadStatistics struct {
	OrganizationID string `json:"organization_id"`
	Total          int    `json:"total"`
	Assigned       int    `json:"assigned"`
	Unassigned     int    `json:"unassigned"`
	Categorized    int    `json:"categorized"`
	Uncategorized  int    `json:"uncategorized"`
	ThisWeek       int    `json:"this_week"`
	ThisMonth      int    `json:"this_month"`
}

// StatisticsWindows returns the start of the trailing 7-day window and the
// start of the current UTC calendar month.
func StatisticsWindows(now time.Time) (weekStart, monthStart time.Time) {
	u := now.UTC()
	return u.Add(-7 * 24 * time.Hour), time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Organization scopes leads, agents, categories and trained models.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
