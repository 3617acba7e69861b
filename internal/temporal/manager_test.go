package temporal

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.uber.org/zap"

	temporalclient "github.com/jordanhubbard/leadscore/internal/temporal/client"
	"github.com/jordanhubbard/leadscore/internal/temporal/workflows"
	"github.com/jordanhubbard/leadscore/pkg/config"
)

func temporalTestConfig() *config.TemporalConfig {
	host := os.Getenv("TEMPORAL_HOST")
	if host == "" {
		host = "localhost:7233"
	}
	return &config.TemporalConfig{
		Host:                     host,
		Namespace:                "default",
		TaskQueue:                "leadscore-test",
		WorkflowExecutionTimeout: time.Hour,
		WorkflowTaskTimeout:      10 * time.Second,
		ActivityTimeout:          time.Minute,
	}
}

func temporalRequired() bool {
	value := strings.ToLower(os.Getenv("TEMPORAL_REQUIRED"))
	return value == "true" || value == "1" || value == "yes"
}

func mockManager(c *mocks.Client) *Manager {
	cfg := temporalTestConfig()
	return &Manager{client: temporalclient.Wrap(c, cfg), config: cfg, logger: zap.NewNop()}
}

func TestNewManager_NilConfig(t *testing.T) {
	_, err := NewManager(context.Background(), nil, nil, nil)
	assert.Error(t, err)
}

func TestScheduleJobs_StartsOneWorkflowPerJob(t *testing.T) {
	c := &mocks.Client{}
	var started []string
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			opts := args.Get(1).(client.StartWorkflowOptions)
			input := args.Get(3).(workflows.JobWorkflowInput)
			assert.Equal(t, JobWorkflowID(input.Job), opts.ID)
			assert.Equal(t, "leadscore-test", opts.TaskQueue)
			assert.Equal(t, time.Minute, input.ActivityTimeout)
			started = append(started, input.Job)
		}).
		Return(nil, nil)

	m := mockManager(c)
	err := m.ScheduleJobs(context.Background(), map[string]time.Duration{
		"refresh_scores": 24 * time.Hour,
		"expire_snoozes": 30 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"expire_snoozes", "refresh_scores"}, started)
}

func TestStartJobWorkflow_AlreadyRunningIsFine(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("running", "", ""))
	assert.NoError(t, mockManager(c).StartJobWorkflow(context.Background(), "expire_snoozes", time.Minute))

	c = &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("unavailable"))
	err := mockManager(c).ScheduleJobs(context.Background(), map[string]time.Duration{"expire_snoozes": time.Minute})
	assert.ErrorContains(t, err, "unavailable")
}

func TestTriggerJob(t *testing.T) {
	c := &mocks.Client{}
	c.On("SignalWorkflow", mock.Anything, JobWorkflowID("follow_up_reminders"), "", workflows.SignalRunNow, nil).Return(nil).Once()
	require.NoError(t, mockManager(c).TriggerJob(context.Background(), "follow_up_reminders"))
	c.AssertExpectations(t)
}

func TestRunTraining(t *testing.T) {
	run := &mocks.WorkflowRun{}
	run.On("Get", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		out := args.Get(1).(*workflows.TrainWorkflowResult)
		out.Training.OrganizationID = "org-1"
	}).Return(nil)

	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, "org-1").Return(run, nil)

	res, err := mockManager(c).RunTraining(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", res.Training.OrganizationID)
}

// TestManagerAgainstServer only runs when a Temporal server is reachable.
func TestManagerAgainstServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	m, err := NewManager(ctx, temporalTestConfig(), nil, nil)
	if err != nil {
		if temporalRequired() {
			t.Fatalf("Temporal server not available: %v", err)
		}
		t.Skipf("Temporal server not available: %v", err)
	}
	defer m.Stop()

	if m.GetClient().GetNamespace() != "default" {
		t.Errorf("expected namespace default, got %s", m.GetClient().GetNamespace())
	}
}
