// Package features turns a lead snapshot and its interaction history into the
// fixed-schema record used both for model training and for scoring.
package features

import (
	"math"
	"time"

	"github.com/jordanhubbard/leadscore/pkg/models"
)

// Column names, in model column order.
const (
	Age                    = "age"
	InteractionCount       = "interaction_count"
	LeadScore              = "lead_score"
	DaysSinceCreated       = "days_since_created"
	DaysSinceLastContact   = "days_since_last_contact"
	HasFollowUp            = "has_follow_up"
	IsSnoozed              = "is_snoozed"
	EngagementLevel        = "engagement_level"
	Source                 = "source"
	HasAgent               = "has_agent"
	HasCategory            = "has_category"
	TotalInteractions      = "total_interactions"
	PositiveInteractions   = "positive_interactions"
	NegativeInteractions   = "negative_interactions"
	AvgInteractionDuration = "avg_interaction_duration"
)

// NeverContactedDays is reported for leads that have no last-contact time.
const NeverContactedDays = 999

// UnknownSource replaces an empty lead source.
const UnknownSource = "unknown"

// Columns is the full feature schema in model order.
var Columns = []string{
	Age,
	InteractionCount,
	LeadScore,
	DaysSinceCreated,
	DaysSinceLastContact,
	HasFollowUp,
	IsSnoozed,
	EngagementLevel,
	Source,
	HasAgent,
	HasCategory,
	TotalInteractions,
	PositiveInteractions,
	NegativeInteractions,
	AvgInteractionDuration,
}

// CategoricalColumns are the columns that must be encoded before scaling.
var CategoricalColumns = []string{EngagementLevel, Source}

// IsCategorical reports whether the named column holds a categorical value.
func IsCategorical(column string) bool {
	return column == EngagementLevel || column == Source
}

// Record is the feature vector for one lead at one point in time.
type Record struct {
	Age                    float64 `json:"age"`
	InteractionCount       float64 `json:"interaction_count"`
	LeadScore              float64 `json:"lead_score"`
	DaysSinceCreated       float64 `json:"days_since_created"`
	DaysSinceLastContact   float64 `json:"days_since_last_contact"`
	HasFollowUp            float64 `json:"has_follow_up"`
	IsSnoozed              float64 `json:"is_snoozed"`
	EngagementLevel        string  `json:"engagement_level"`
	Source                 string  `json:"source"`
	HasAgent               float64 `json:"has_agent"`
	HasCategory            float64 `json:"has_category"`
	TotalInteractions      float64 `json:"total_interactions"`
	PositiveInteractions   float64 `json:"positive_interactions"`
	NegativeInteractions   float64 `json:"negative_interactions"`
	AvgInteractionDuration float64 `json:"avg_interaction_duration"`
}

// Numeric returns the value of a numeric column.
func (r Record) Numeric(column string) (float64, bool) {
	switch column {
	case Age:
		return r.Age, true
	case InteractionCount:
		return r.InteractionCount, true
	case LeadScore:
		return r.LeadScore, true
	case DaysSinceCreated:
		return r.DaysSinceCreated, true
	case DaysSinceLastContact:
		return r.DaysSinceLastContact, true
	case HasFollowUp:
		return r.HasFollowUp, true
	case IsSnoozed:
		return r.IsSnoozed, true
	case HasAgent:
		return r.HasAgent, true
	case HasCategory:
		return r.HasCategory, true
	case TotalInteractions:
		return r.TotalInteractions, true
	case PositiveInteractions:
		return r.PositiveInteractions, true
	case NegativeInteractions:
		return r.NegativeInteractions, true
	case AvgInteractionDuration:
		return r.AvgInteractionDuration, true
	}
	return 0, false
}

// Categorical returns the value of a categorical column.
func (r Record) Categorical(column string) (string, bool) {
	switch column {
	case EngagementLevel:
		return r.EngagementLevel, true
	case Source:
		return r.Source, true
	}
	return "", false
}

// Extractor builds feature records against an injectable clock.
type Extractor struct {
	now func() time.Time
}

// NewExtractor returns an extractor reading the current time from now.
// A nil clock uses time.Now.
func NewExtractor(now func() time.Time) *Extractor {
	if now == nil {
		now = time.Now
	}
	return &Extractor{now: now}
}

// Extract builds the record for lead using the extractor's clock.
func (e *Extractor) Extract(lead *models.Lead, interactions []models.Interaction) Record {
	return Extract(lead, interactions, e.now())
}

// Extract builds the record for lead as of now. It performs no I/O.
func Extract(lead *models.Lead, interactions []models.Interaction, now time.Time) Record {
	rec := Record{
		Age:                  float64(lead.Age),
		InteractionCount:     float64(lead.InteractionCount),
		LeadScore:            lead.LeadScore,
		DaysSinceCreated:     float64(WholeDays(now.Sub(lead.DateCreated))),
		DaysSinceLastContact: NeverContactedDays,
		HasFollowUp:          boolFeature(lead.FollowUpAt != nil),
		IsSnoozed:            boolFeature(lead.IsSnoozed),
		EngagementLevel:      string(lead.EngagementLevel),
		Source:               lead.Source,
		HasAgent:             boolFeature(lead.AgentAssigned()),
		HasCategory:          boolFeature(lead.CategoryAssigned()),
		TotalInteractions:    float64(len(interactions)),
	}
	if lead.LastContactedAt != nil {
		rec.DaysSinceLastContact = float64(WholeDays(now.Sub(*lead.LastContactedAt)))
	}
	if rec.Source == "" {
		rec.Source = UnknownSource
	}

	var durationSum float64
	var durations int
	for _, in := range interactions {
		switch in.Outcome {
		case models.OutcomePositive:
			rec.PositiveInteractions++
		case models.OutcomeNegative:
			rec.NegativeInteractions++
		}
		if in.DurationMinutes != nil {
			durationSum += *in.DurationMinutes
			durations++
		}
	}
	if durations > 0 {
		rec.AvgInteractionDuration = durationSum / float64(durations)
	}
	return rec
}

// WholeDays floors a duration to whole days, rounding toward negative infinity.
func WholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
