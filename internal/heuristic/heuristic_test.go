package heuristic

import (
	"testing"
	"time"

	"github.com/jordanhubbard/leadscore/pkg/models"
)

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func daysAgo(d int) *time.Time {
	return ago(time.Duration(d) * 24 * time.Hour)
}

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		lead models.Lead
		want float64
	}{
		{
			name: "minimum buckets",
			lead: models.Lead{Age: 0, InteractionCount: 0, EngagementLevel: models.EngagementLow},
			want: 25,
		},
		{
			name: "hot lead",
			lead: models.Lead{
				Age:              25,
				InteractionCount: 3,
				EngagementLevel:  models.EngagementHigh,
				AgentID:          "agent-1",
				LastContactedAt:  daysAgo(3),
			},
			want: 85,
		},
		{
			name: "interaction points capped",
			lead: models.Lead{Age: 35, InteractionCount: 40, EngagementLevel: models.EngagementMedium},
			want: 15 + 30 + 15,
		},
		{
			name: "contacted within a month",
			lead: models.Lead{Age: 60, EngagementLevel: models.EngagementLow, LastContactedAt: daysAgo(20)},
			want: 10 + 5 + 10,
		},
		{
			name: "contacted long ago",
			lead: models.Lead{Age: 60, EngagementLevel: models.EngagementLow, LastContactedAt: daysAgo(45)},
			want: 15,
		},
		{
			name: "partial eighth day still recent",
			lead: models.Lead{Age: 60, LastContactedAt: ago(7*24*time.Hour + 12*time.Hour)},
			want: 10 + 15,
		},
		{
			name: "eight whole days",
			lead: models.Lead{Age: 60, LastContactedAt: daysAgo(8)},
			want: 10 + 10,
		},
		{
			name: "partial thirty-first day within a month",
			lead: models.Lead{Age: 60, LastContactedAt: ago(30*24*time.Hour + 12*time.Hour)},
			want: 10 + 10,
		},
		{
			name: "thirty-one whole days",
			lead: models.Lead{Age: 60, LastContactedAt: daysAgo(31)},
			want: 10,
		},
		{
			name: "age boundary 30",
			lead: models.Lead{Age: 30},
			want: 15,
		},
		{
			name: "age boundary 50",
			lead: models.Lead{Age: 50},
			want: 10,
		},
		{
			name: "unknown engagement adds nothing",
			lead: models.Lead{Age: 20, EngagementLevel: "lukewarm"},
			want: 20,
		},
		{
			name: "maximum buckets",
			lead: models.Lead{
				Age:              20,
				InteractionCount: 100,
				EngagementLevel:  models.EngagementHigh,
				AgentID:          "a",
				LastContactedAt:  daysAgo(0),
			},
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(&tt.lead, now)
			if got != tt.want {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
			if got < 0 || got > 100 {
				t.Errorf("Score() = %v out of range", got)
			}
		})
	}
}

func TestScore_NilLead(t *testing.T) {
	if got := Score(nil, now); got != 0 {
		t.Errorf("expected 0 for nil lead, got %v", got)
	}
}

func TestScorer_UsesClock(t *testing.T) {
	s := NewScorer(func() time.Time { return now })
	lead := &models.Lead{Age: 45, EngagementLevel: models.EngagementMedium, LastContactedAt: daysAgo(7)}
	if got := s.Score(lead); got != 45 {
		t.Errorf("expected 45, got %v", got)
	}
}
