package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/jordanhubbard/leadscore/internal/scoring"
	"github.com/jordanhubbard/leadscore/pkg/models"
)

// Error types returned as non-retryable application errors.
const (
	ErrTypeUnknownJob = "UnknownJob"
	ErrTypeTraining   = "TrainingFailed"
)

// JobRunner runs one lifecycle job to completion.
type JobRunner interface {
	Run(ctx context.Context, job string) (*models.JobRun, error)
}

// Engine is the slice of the scoring engine the activities drive.
type Engine interface {
	Train(ctx context.Context, orgID string) scoring.TrainingResult
	RescoreAll(ctx context.Context, orgID string) scoring.RescoreResult
}

// Activities provides Temporal activities for the lead pipeline.
type Activities struct {
	jobs   JobRunner
	engine Engine
}

func NewActivities(jobs JobRunner, engine Engine) *Activities {
	return &Activities{jobs: jobs, engine: engine}
}

// RunJobActivity triggers a lifecycle job. Per-record failures are part of
// the returned run, not activity errors, so Temporal does not retry a
// partially failed sweep.
func (a *Activities) RunJobActivity(ctx context.Context, job string) (*models.JobRun, error) {
	logger := activity.GetLogger(ctx)
	run, err := a.jobs.Run(ctx, job)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnknownJob, err)
	}
	if run.Status == models.JobFailed {
		// Setup failures (database down) are worth a retry.
		return run, fmt.Errorf("job %s failed: %s", job, run.Error)
	}
	logger.Info("Job finished", "job", job, "status", run.Status, "processed", run.Processed, "failed", run.Failed)
	return run, nil
}

// TrainModelActivity trains and persists an organization's model.
// Insufficient data is final; storage errors are retried.
func (a *Activities) TrainModelActivity(ctx context.Context, orgID string) (scoring.TrainingResult, error) {
	result := a.engine.Train(ctx, orgID)
	if result.Succeeded() {
		return result, nil
	}
	reason, msg := "", "training failed"
	if result.Error != nil {
		reason, msg = result.Error.Reason, result.Error.Message
	}
	if reason == scoring.ReasonPersistence {
		return result, fmt.Errorf("train %s: %s", orgID, msg)
	}
	return result, temporal.NewNonRetryableApplicationError(msg, ErrTypeTraining, nil, reason)
}

// RescoreOrganizationActivity recomputes every lead score of an organization.
func (a *Activities) RescoreOrganizationActivity(ctx context.Context, orgID string) (scoring.RescoreResult, error) {
	result := a.engine.RescoreAll(ctx, orgID)
	if result.Error != "" {
		return result, fmt.Errorf("rescore %s: %s", orgID, result.Error)
	}
	return result, nil
}
