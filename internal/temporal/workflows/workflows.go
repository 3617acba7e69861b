package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/jordanhubbard/leadscore/internal/scoring"
	"github.com/jordanhubbard/leadscore/pkg/models"
)

// Activity names as registered by activities.Activities.
const (
	RunJobActivityName              = "RunJobActivity"
	TrainModelActivityName          = "TrainModelActivity"
	RescoreOrganizationActivityName = "RescoreOrganizationActivity"
)

// Signal and query names of JobWorkflow.
const (
	SignalRunNow  = "runNow"
	QueryLastRun  = "lastRun"
	QueryRunCount = "runCount"
)

const (
	maxHistoryLength        = 10000
	defaultRunsPerExecution = 500
)

// JobWorkflowInput controls a periodic lifecycle job.
type JobWorkflowInput struct {
	Job      string
	Interval time.Duration
	// RunsPerExecution bounds history; the workflow continues as new after
	// this many triggers.
	RunsPerExecution int
	ActivityTimeout  time.Duration
	// Total counts triggers across continue-as-new boundaries.
	Total int
}

// JobWorkflow triggers input.Job every interval, or immediately on a runNow
// signal. A failed trigger is logged and the loop carries on.
func JobWorkflow(ctx workflow.Context, input JobWorkflowInput) error {
	logger := workflow.GetLogger(ctx)
	if input.Interval <= 0 {
		input.Interval = time.Hour
	}
	if input.RunsPerExecution <= 0 {
		input.RunsPerExecution = defaultRunsPerExecution
	}
	if input.ActivityTimeout <= 0 {
		input.ActivityTimeout = 30 * time.Minute
	}
	logger.Info("Job workflow started", "job", input.Job, "interval", input.Interval)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: input.ActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    10 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})

	var lastRun *models.JobRun
	total := input.Total
	if err := workflow.SetQueryHandler(ctx, QueryLastRun, func() (*models.JobRun, error) {
		return lastRun, nil
	}); err != nil {
		return err
	}
	if err := workflow.SetQueryHandler(ctx, QueryRunCount, func() (int, error) {
		return total, nil
	}); err != nil {
		return err
	}

	runNow := workflow.GetSignalChannel(ctx, SignalRunNow)
	for runs := 0; ; {
		var run models.JobRun
		err := workflow.ExecuteActivity(ctx, RunJobActivityName, input.Job).Get(ctx, &run)
		runs++
		total++
		if err != nil {
			logger.Warn("Job trigger failed", "job", input.Job, "error", err)
		} else {
			lastRun = &run
			logger.Info("Job trigger finished", "job", input.Job, "status", run.Status, "failed", run.Failed)
		}

		timerCtx, cancelTimer := workflow.WithCancel(ctx)
		selector := workflow.NewSelector(ctx)
		selector.AddFuture(workflow.NewTimer(timerCtx, input.Interval), func(workflow.Future) {})
		selector.AddReceive(runNow, func(c workflow.ReceiveChannel, more bool) {
			c.Receive(ctx, nil)
			logger.Info("Immediate trigger requested", "job", input.Job)
		})
		selector.Select(ctx)
		cancelTimer()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if runs >= input.RunsPerExecution || workflow.GetInfo(ctx).GetCurrentHistoryLength() > maxHistoryLength {
			next := input
			next.Total = total
			return workflow.NewContinueAsNewError(ctx, JobWorkflow, next)
		}
	}
}

// TrainWorkflowResult combines training with the rescore that follows it.
type TrainWorkflowResult struct {
	Training scoring.TrainingResult `json:"training"`
	Rescore  *scoring.RescoreResult `json:"rescore,omitempty"`
}

// TrainWorkflow retrains an organization's model and, on success, rescores
// its leads with the new model.
func TrainWorkflow(ctx workflow.Context, orgID string) (TrainWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})

	var out TrainWorkflowResult
	if err := workflow.ExecuteActivity(ctx, TrainModelActivityName, orgID).Get(ctx, &out.Training); err != nil {
		logger.Warn("Training failed", "organizationID", orgID, "error", err)
		return out, err
	}

	var rescore scoring.RescoreResult
	if err := workflow.ExecuteActivity(ctx, RescoreOrganizationActivityName, orgID).Get(ctx, &rescore); err != nil {
		logger.Warn("Rescore after training failed", "organizationID", orgID, "error", err)
		return out, err
	}
	out.Rescore = &rescore
	logger.Info("Training workflow completed", "organizationID", orgID, "updated", rescore.Updated)
	return out, nil
}
