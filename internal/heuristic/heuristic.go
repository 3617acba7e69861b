// Package heuristic is the deterministic, model-free lead scorer used before a
// model exists and whenever model scoring fails.
package heuristic

import (
	"time"

	"github.com/jordanhubbard/leadscore/internal/features"
	"github.com/jordanhubbard/leadscore/pkg/models"
)

const (
	maxInteractionPoints = 30
	pointsPerInteraction = 5
)

// Score computes the rule-based score for lead as of now. It never fails
// and always returns a value in [0, 100].
func Score(lead *models.Lead, now time.Time) float64 {
	if lead == nil {
		return models.MinLeadScore
	}
	score := agePoints(lead.Age)

	interactionPoints := lead.InteractionCount * pointsPerInteraction
	if interactionPoints > maxInteractionPoints {
		interactionPoints = maxInteractionPoints
	}
	if interactionPoints > 0 {
		score += float64(interactionPoints)
	}

	switch lead.EngagementLevel {
	case models.EngagementHigh:
		score += 25
	case models.EngagementMedium:
		score += 15
	case models.EngagementLow:
		score += 5
	}

	if lead.AgentAssigned() {
		score += 10
	}

	if lead.LastContactedAt != nil {
		days := features.WholeDays(now.Sub(*lead.LastContactedAt))
		switch {
		case days <= 7:
			score += 15
		case days <= 30:
			score += 10
		}
	}

	return models.ClampScore(score)
}

func agePoints(age int) float64 {
	switch {
	case age < 30:
		return 20
	case age < 50:
		return 15
	default:
		return 10
	}
}

// Scorer binds Score to a clock.
type Scorer struct {
	now func() time.Time
}

// NewScorer returns a Scorer; a nil clock uses time.Now.
func NewScorer(now func() time.Time) *Scorer {
	if now == nil {
		now = time.Now
	}
	return &Scorer{now: now}
}

func (s *Scorer) Score(lead *models.Lead) float64 {
	return Score(lead, s.now())
}
