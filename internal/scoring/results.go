package scoring

import (
	"time"

	"github.com/jordanhubbard/leadscore/pkg/models"
)

// ScoreSource says which path produced a score.
type ScoreSource string

const (
	SourceModel     ScoreSource = "model"
	SourceHeuristic ScoreSource = "heuristic"
)

// ScoreResult is the outcome of scoring one lead. Score is always usable.
type ScoreResult struct {
	LeadID         string      `json:"lead_id"`
	OrganizationID string      `json:"organization_id"`
	Score          float64     `json:"score"`
	Source         ScoreSource `json:"source"`
	FallbackReason string      `json:"fallback_reason,omitempty"`
	FallbackError  string      `json:"fallback_error,omitempty"`
}

// Lookup error kinds carried by LeadScoreResult.
const (
	LookupNotFound   = "not_found"
	LookupDataAccess = "data_access"
)

// LeadScoreResult answers a score-by-id request from an external caller.
// ErrorKind is set together with Error.
type LeadScoreResult struct {
	ScoreResult
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// NotFound reports whether the lead does not exist.
func (r LeadScoreResult) NotFound() bool {
	return r.ErrorKind == LookupNotFound
}

// TrainingMetrics describes a successful training run.
type TrainingMetrics struct {
	Accuracy          float64            `json:"accuracy"`
	TrainingSamples   int                `json:"training_samples"`
	TestSamples       int                `json:"test_samples"`
	PositiveSamples   int                `json:"positive_samples"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	TrainedAt         time.Time          `json:"trained_at"`
}

// TrainingResult is returned by Train; exactly one of Metrics and Error is set.
type TrainingResult struct {
	OrganizationID string                `json:"organization_id"`
	Status         models.TrainingStatus `json:"status"`
	SessionID      string                `json:"session_id,omitempty"`
	Metrics        *TrainingMetrics      `json:"metrics,omitempty"`
	Error          *TrainingError        `json:"error,omitempty"`
}

// Succeeded reports whether a model was trained and persisted.
func (r TrainingResult) Succeeded() bool {
	return r.Status == models.TrainingSuccess
}

// RescoreResult summarizes a batch rescore of one organization.
type RescoreResult struct {
	OrganizationID string `json:"organization_id"`
	Total          int    `json:"total"`
	Updated        int    `json:"updated"`
	Failed         int    `json:"failed"`
	ModelScored    int    `json:"model_scored"`
	Stopped        bool   `json:"stopped,omitempty"`
	Error          string `json:"error,omitempty"`
}
