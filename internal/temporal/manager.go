package temporal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/jordanhubbard/leadscore/internal/logging"
	"github.com/jordanhubbard/leadscore/internal/temporal/activities"
	temporalclient "github.com/jordanhubbard/leadscore/internal/temporal/client"
	"github.com/jordanhubbard/leadscore/internal/temporal/workflows"
	"github.com/jordanhubbard/leadscore/pkg/config"
	"github.com/jordanhubbard/leadscore/pkg/models"
)

// JobWorkflowID is the fixed workflow id of a periodic job, so a second
// replica starting the same schedule joins the running execution.
func JobWorkflowID(job string) string {
	return "leadscore-job-" + job
}

// Manager manages the Temporal worker and the job schedules.
type Manager struct {
	client *temporalclient.Client
	worker worker.Worker
	config *config.TemporalConfig
	logger *zap.Logger
}

// NewManager dials Temporal and registers the pipeline workflows and acts.
func NewManager(ctx context.Context, cfg *config.TemporalConfig, acts *activities.Activities, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("temporal config cannot be nil")
	}
	logger = logging.OrNop(logger).Named("temporal")

	c, err := temporalclient.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporal client: %w", err)
	}
	return newManager(c, cfg, acts, logger), nil
}

func newManager(c *temporalclient.Client, cfg *config.TemporalConfig, acts *activities.Activities, logger *zap.Logger) *Manager {
	w := worker.New(c.GetClient(), cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.JobWorkflow)
	w.RegisterWorkflow(workflows.TrainWorkflow)
	if acts != nil {
		w.RegisterActivity(acts)
	}
	logger.Info("temporal worker registered", zap.String("task_queue", cfg.TaskQueue))

	return &Manager{client: c, worker: w, config: cfg, logger: logger}
}

// Start starts the Temporal worker
func (m *Manager) Start() error {
	if err := m.worker.Start(); err != nil {
		return fmt.Errorf("failed to start temporal worker: %w", err)
	}
	m.logger.Info("temporal worker started")
	return nil
}

// Stop stops the worker and closes the client.
func (m *Manager) Stop() {
	if m.worker != nil {
		m.worker.Stop()
	}
	if m.client != nil {
		m.client.Close()
	}
	m.logger.Info("temporal manager stopped")
}

func (m *Manager) GetClient() *temporalclient.Client {
	return m.client
}

// ScheduleJobs starts one periodic JobWorkflow per job. Jobs already running
// are left alone.
func (m *Manager) ScheduleJobs(ctx context.Context, intervals map[string]time.Duration) error {
	jobs := make([]string, 0, len(intervals))
	for job := range intervals {
		jobs = append(jobs, job)
	}
	sort.Strings(jobs)

	var errs []error
	for _, job := range jobs {
		if err := m.StartJobWorkflow(ctx, job, intervals[job]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartJobWorkflow starts or resumes the periodic workflow for job.
func (m *Manager) StartJobWorkflow(ctx context.Context, job string, interval time.Duration) error {
	opts := client.StartWorkflowOptions{
		ID:                  JobWorkflowID(job),
		TaskQueue:           m.config.TaskQueue,
		WorkflowTaskTimeout: m.config.WorkflowTaskTimeout,
		WorkflowRunTimeout:  0, // run indefinitely
	}
	input := workflows.JobWorkflowInput{
		Job:             job,
		Interval:        interval,
		ActivityTimeout: m.config.ActivityTimeout,
	}

	_, err := m.client.GetClient().ExecuteWorkflow(ctx, opts, workflows.JobWorkflow, input)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return nil
		}
		return fmt.Errorf("failed to start %s workflow: %w", job, err)
	}
	m.logger.Info("started job workflow", zap.String("job", job), zap.Duration("interval", interval))
	return nil
}

// TriggerJob signals a running job workflow to run now.
func (m *Manager) TriggerJob(ctx context.Context, job string) error {
	if err := m.client.GetClient().SignalWorkflow(ctx, JobWorkflowID(job), "", workflows.SignalRunNow, nil); err != nil {
		return fmt.Errorf("failed to trigger %s: %w", job, err)
	}
	return nil
}

// LastJobRun queries the most recent run recorded by a job workflow.
func (m *Manager) LastJobRun(ctx context.Context, job string) (*models.JobRun, error) {
	resp, err := m.client.GetClient().QueryWorkflow(ctx, JobWorkflowID(job), "", workflows.QueryLastRun)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", job, err)
	}
	var run *models.JobRun
	if err := resp.Get(&run); err != nil {
		return nil, fmt.Errorf("failed to decode %s run: %w", job, err)
	}
	return run, nil
}

// RunTraining executes TrainWorkflow for orgID and waits for the result.
func (m *Manager) RunTraining(ctx context.Context, orgID string) (*workflows.TrainWorkflowResult, error) {
	opts := client.StartWorkflowOptions{
		ID:                  fmt.Sprintf("leadscore-train-%s-%d", orgID, time.Now().UTC().UnixNano()),
		TaskQueue:           m.config.TaskQueue,
		WorkflowTaskTimeout: m.config.WorkflowTaskTimeout,
		WorkflowRunTimeout:  m.config.WorkflowExecutionTimeout,
	}
	run, err := m.client.GetClient().ExecuteWorkflow(ctx, opts, workflows.TrainWorkflow, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to start training workflow: %w", err)
	}
	var result workflows.TrainWorkflowResult
	if err := run.Get(ctx, &result); err != nil {
		return &result, fmt.Errorf("training workflow failed: %w", err)
	}
	return &result, nil
}
