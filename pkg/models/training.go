package models

import "time"

// TrainingStatus is the outcome of a training attempt.
type TrainingStatus string

const (
	TrainingSuccess TrainingStatus = "success"
	TrainingFailed  TrainingStatus = "failed"
)

// TrainingSession is the immutable audit row written for every training attempt.
type TrainingSession struct {
	ID              string         `json:"id"`
	OrganizationID  string         `json:"organization_id"`
	TrainedAt       time.Time      `json:"trained_at"`
	Accuracy        float64        `json:"accuracy"`
	TrainingSamples int            `json:"training_samples"`
	TestSamples     int            `json:"test_samples"`
	Status          TrainingStatus `json:"status"`
	Error           string         `json:"error,omitempty"`
}

// PerformanceRecord is one agent's activity roll-up for one UTC calendar day.
type PerformanceRecord struct {
	AgentID                  string    `json:"agent_id"`
	Date                     time.Time `json:"date"`
	LeadsAssigned            int       `json:"leads_assigned"`
	LeadsContacted           int       `json:"leads_contacted"`
	LeadsConverted           int       `json:"leads_converted"`
	TotalInteractions        int       `json:"total_interactions"`
	ConversionRate           float64   `json:"conversion_rate"`
	ContactRate              float64   `json:"contact_rate"`
	AverageResponseTimeHours float64   `json:"average_response_time_hours"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// ComputeRates derives the conversion and contact rates from the counts.
// Both rates are zero when no leads were assigned.
func (r *PerformanceRecord) ComputeRates() {
	if r.LeadsAssigned == 0 {
		r.ConversionRate = 0
		r.ContactRate = 0
		return
	}
	r.ConversionRate = float64(r.LeadsConverted) / float64(r.LeadsAssigned) * 100
	r.ContactRate = float64(r.LeadsContacted) / float64(r.LeadsAssigned) * 100
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// PerformanceSummary aggregates an agent's daily records over a window.
type PerformanceSummary struct {
	AgentID           string              `json:"agent_id"`
	From              time.Time           `json:"from"`
	To                time.Time           `json:"to"`
	LeadsAssigned     int                 `json:"leads_assigned"`
	LeadsContacted    int                 `json:"leads_contacted"`
	LeadsConverted    int                 `json:"leads_converted"`
	TotalInteractions int                 `json:"total_interactions"`
	ConversionRate    float64             `json:"conversion_rate"`
	ContactRate       float64             `json:"contact_rate"`
	Records           []PerformanceRecord `json:"records"`
}

// SummarizePerformance totals records and derives the window's rates from
// the totals, not from the daily rates.
func SummarizePerformance(agentID string, from, to time.Time, records []PerformanceRecord) PerformanceSummary {
	sum := PerformanceSummary{AgentID: agentID, From: DayStart(from), To: DayStart(to), Records: records}
	if sum.Records == nil {
		sum.Records = []PerformanceRecord{}
	}
	for _, r := range records {
		sum.LeadsAssigned += r.LeadsAssigned
		sum.LeadsContacted += r.LeadsContacted
		sum.LeadsConverted += r.LeadsConverted
		sum.TotalInteractions += r.TotalInteractions
	}
	totals := PerformanceRecord{
		LeadsAssigned:  sum.LeadsAssigned,
		LeadsContacted: sum.LeadsContacted,
		LeadsConverted: sum.LeadsConverted,
	}
	totals.ComputeRates()
	sum.ConversionRate = totals.ConversionRate
	sum.ContactRate = totals.ContactRate
	return sum
}
