package workflows_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/jordanhubbard/leadscore/internal/scoring"
	"github.com/jordanhubbard/leadscore/internal/temporal/activities"
	"github.com/jordanhubbard/leadscore/internal/temporal/workflows"
	"github.com/jordanhubbard/leadscore/pkg/models"
)

func TestJobWorkflow_ContinuesAsNewAfterRuns(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	calls := 0
	env.RegisterActivityWithOptions(func(ctx context.Context, job string) (*models.JobRun, error) {
		calls++
		assert.Equal(t, "expire_snoozes", job)
		if calls == 1 {
			return nil, temporal.NewNonRetryableApplicationError("database unavailable", "Setup", nil)
		}
		return &models.JobRun{Job: job, Status: models.JobSucceeded, Processed: calls}, nil
	}, activity.RegisterOptions{Name: workflows.RunJobActivityName})

	env.ExecuteWorkflow(workflows.JobWorkflow, workflows.JobWorkflowInput{
		Job:              "expire_snoozes",
		Interval:         30 * time.Minute,
		RunsPerExecution: 3,
	})

	require.True(t, env.IsWorkflowCompleted())
	assert.True(t, workflow.IsContinueAsNewError(env.GetWorkflowError()))
	assert.Equal(t, 3, calls, "a failed trigger does not end the loop")
}

func TestJobWorkflow_RunNowSignal(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	calls := 0
	env.RegisterActivityWithOptions(func(ctx context.Context, job string) (*models.JobRun, error) {
		calls++
		return &models.JobRun{Job: job, Status: models.JobSucceeded}, nil
	}, activity.RegisterOptions{Name: workflows.RunJobActivityName})

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(workflows.SignalRunNow, nil)
	}, time.Minute)
	env.RegisterDelayedCallback(func() {
		v, err := env.QueryWorkflow(workflows.QueryRunCount)
		require.NoError(t, err)
		var n int
		require.NoError(t, v.Get(&n))
		assert.Equal(t, 2, n, "signal triggers a run well before the 24h interval")

		v, err = env.QueryWorkflow(workflows.QueryLastRun)
		require.NoError(t, err)
		var last *models.JobRun
		require.NoError(t, v.Get(&last))
		require.NotNil(t, last)
		assert.Equal(t, "refresh_scores", last.Job)
	}, 2*time.Minute)

	env.ExecuteWorkflow(workflows.JobWorkflow, workflows.JobWorkflowInput{
		Job:              "refresh_scores",
		Interval:         24 * time.Hour,
		RunsPerExecution: 2,
	})

	require.True(t, env.IsWorkflowCompleted())
	assert.True(t, workflow.IsContinueAsNewError(env.GetWorkflowError()))
	assert.Equal(t, 2, calls)
}

type fakeJobs struct{}

func (fakeJobs) Run(ctx context.Context, job string) (*models.JobRun, error) {
	return &models.JobRun{Job: job, Status: models.JobSucceeded}, nil
}

type fakeEngine struct {
	train    scoring.TrainingResult
	rescored []string
}

func (f *fakeEngine) Train(ctx context.Context, orgID string) scoring.TrainingResult {
	r := f.train
	r.OrganizationID = orgID
	return r
}

func (f *fakeEngine) RescoreAll(ctx context.Context, orgID string) scoring.RescoreResult {
	f.rescored = append(f.rescored, orgID)
	return scoring.RescoreResult{OrganizationID: orgID, Total: 4, Updated: 4, ModelScored: 4}
}

func TestTrainWorkflow_TrainsThenRescores(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	engine := &fakeEngine{train: scoring.TrainingResult{
		Status:  models.TrainingSuccess,
		Metrics: &scoring.TrainingMetrics{Accuracy: 0.9, TrainingSamples: 40, TestSamples: 10},
	}}
	env.RegisterActivity(activities.NewActivities(fakeJobs{}, engine))

	env.ExecuteWorkflow(workflows.TrainWorkflow, "org-1")

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var result workflows.TrainWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, models.TrainingSuccess, result.Training.Status)
	require.NotNil(t, result.Rescore)
	assert.Equal(t, 4, result.Rescore.Updated)
	assert.Equal(t, []string{"org-1"}, engine.rescored)
}

func TestTrainWorkflow_InsufficientDataSkipsRescore(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	engine := &fakeEngine{train: scoring.TrainingResult{
		Status: models.TrainingFailed,
		Error:  &scoring.TrainingError{Reason: scoring.ReasonInsufficientData, Message: "need 50 leads, have 3"},
	}}
	env.RegisterActivity(activities.NewActivities(fakeJobs{}, engine))

	env.ExecuteWorkflow(workflows.TrainWorkflow, "org-1")

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, activities.ErrTypeTraining, appErr.Type())
	assert.Empty(t, engine.rescored)
}
