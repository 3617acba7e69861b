package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jordanhubbard/leadscore/internal/lifecycle"
	"github.com/jordanhubbard/leadscore/internal/logging"
	"github.com/jordanhubbard/leadscore/internal/modelstore"
	"github.com/jordanhubbard/leadscore/internal/notify"
	"github.com/jordanhubbard/leadscore/internal/scoring"
	"github.com/jordanhubbard/leadscore/internal/storage"
	"github.com/jordanhubbard/leadscore/pkg/models"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

type testEnv struct {
	store   *storage.Storage
	handler http.Handler
	logs    *logging.Manager
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	store := storage.New()
	blobs, err := modelstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	engine := scoring.NewEngine(store, store, blobs, scoring.WithClock(clock))
	sched := lifecycle.NewScheduler(store, engine, notify.NewLogNotifier(nil),
		lifecycle.WithClock(clock),
		lifecycle.WithRunRecorder(store))

	logs := logging.NewManager(100)
	opts = append([]Option{WithLogManager(logs), WithClock(clock)}, opts...)
	srv := NewServer(engine, store, sched, opts...)
	return &testEnv{store: store, handler: srv.SetupRoutes(), logs: logs}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	w = env.do(t, http.MethodPost, "/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReady(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	env := newTestEnv(t, WithDependency("database", ok))
	w := env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	env = newTestEnv(t, WithDependency("database", ok), WithDependency("redis", down))
	w = env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Ready        bool                 `json:"ready"`
		Dependencies map[string]DepHealth `json:"dependencies"`
	}
	decode(t, w, &body)
	assert.False(t, body.Ready)
	assert.Equal(t, "healthy", body.Dependencies["database"].Status)
	assert.Equal(t, "connection refused", body.Dependencies["redis"].Message)
}

func TestTrain_InsufficientData(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.CreateLead(context.Background(), &models.Lead{
		ID: "l1", OrganizationID: "org-1", DateCreated: testNow,
	}))

	w := env.do(t, http.MethodPost, "/api/v1/organizations/org-1/train", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var res scoring.TrainingResult
	decode(t, w, &res)
	assert.Equal(t, models.TrainingFailed, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, scoring.ReasonInsufficientData, res.Error.Reason)

	// The failed attempt is still audited.
	w = env.do(t, http.MethodGet, "/api/v1/organizations/org-1/training-sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sessions []models.TrainingSession
	decode(t, w, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.TrainingFailed, sessions[0].Status)
}

func TestTrainingStatus(t *testing.T) {
	tests := []struct {
		reason string
		want   int
	}{
		{scoring.ReasonInsufficientData, http.StatusUnprocessableEntity},
		{scoring.ReasonTraining, http.StatusUnprocessableEntity},
		{scoring.ReasonDataAccess, http.StatusInternalServerError},
		{scoring.ReasonPersistence, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			assert.Equal(t, tt.want, trainingStatus(&scoring.TrainingError{Reason: tt.reason}))
		})
	}
	assert.Equal(t, http.StatusOK, trainingStatus(nil))
}

func TestScore_AdHocLead(t *testing.T) {
	env := newTestEnv(t)
	lead := models.Lead{
		ID:               "ad-hoc",
		Age:              35,
		InteractionCount: 4,
		EngagementLevel:  models.EngagementHigh,
		DateCreated:      testNow.Add(-48 * time.Hour),
	}

	w := env.do(t, http.MethodPost, "/api/v1/organizations/org-1/score", lead)
	require.Equal(t, http.StatusOK, w.Code)

	var res scoring.ScoreResult
	decode(t, w, &res)
	assert.Equal(t, "org-1", res.OrganizationID)
	assert.Equal(t, scoring.SourceHeuristic, res.Source)
	assert.Equal(t, scoring.FallbackModelNotFound, res.FallbackReason)
	assert.GreaterOrEqual(t, res.Score, models.MinLeadScore)
	assert.LessOrEqual(t, res.Score, models.MaxLeadScore)

	_, err := env.store.GetLead(context.Background(), "ad-hoc")
	assert.ErrorIs(t, err, storage.ErrNotFound, "scoring must not persist the lead")
}

func TestScore_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/organizations/org-1/score", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/organizations/org-1/score", models.Lead{OrganizationID: "org-2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeadScore(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.CreateLead(context.Background(), &models.Lead{
		ID: "l1", OrganizationID: "org-1", Age: 30, DateCreated: testNow.Add(-24 * time.Hour),
	}))

	w := env.do(t, http.MethodGet, "/api/v1/leads/l1/score", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res scoring.LeadScoreResult
	decode(t, w, &res)
	assert.Equal(t, "l1", res.LeadID)
	assert.Empty(t, res.Error)

	w = env.do(t, http.MethodGet, "/api/v1/leads/missing/score", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	decode(t, w, &res)
	assert.Equal(t, scoring.LookupNotFound, res.ErrorKind)
}

type unreachableLeads struct{ *storage.Storage }

func (unreachableLeads) GetLead(context.Context, string) (*models.Lead, error) {
	return nil, errors.New("connection refused")
}

func TestLeadScore_StoreErrorIsServerError(t *testing.T) {
	store := storage.New()
	blobs, err := modelstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	engine := scoring.NewEngine(unreachableLeads{store}, store, blobs, scoring.WithClock(clock))
	handler := NewServer(engine, store, nil).SetupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/leads/l1/score", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var res scoring.LeadScoreResult
	decode(t, w, &res)
	assert.Equal(t, scoring.LookupDataAccess, res.ErrorKind)
	assert.Contains(t, res.Error, "connection refused")
}

func TestRescore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, env.store.CreateLead(ctx, &models.Lead{
			ID: id, OrganizationID: "org-1", Age: 40, InteractionCount: 6,
			EngagementLevel: models.EngagementMedium, DateCreated: testNow.Add(-72 * time.Hour),
		}))
	}

	w := env.do(t, http.MethodPost, "/api/v1/organizations/org-1/rescore", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res scoring.RescoreResult
	decode(t, w, &res)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Updated)
	assert.Zero(t, res.ModelScored)

	lead, err := env.store.GetLead(ctx, "a")
	require.NoError(t, err)
	assert.Greater(t, lead.LeadScore, 0.0)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.CreateLead(ctx, &models.Lead{
		ID: "recent", OrganizationID: "org-1", AgentID: "agent-1", DateCreated: testNow.Add(-48 * time.Hour),
	}))
	require.NoError(t, env.store.CreateLead(ctx, &models.Lead{
		ID: "old", OrganizationID: "org-1", DateCreated: testNow.Add(-90 * 24 * time.Hour),
	}))

	w := env.do(t, http.MethodGet, "/api/v1/organizations/org-1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.LeadStatistics
	decode(t, w, &stats)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Assigned)
	assert.Equal(t, 1, stats.Unassigned)
	assert.Equal(t, 1, stats.ThisWeek)
}

func TestAgentPerformance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, daysAgo := range []int{1, 10, 40} {
		require.NoError(t, env.store.UpsertPerformanceRecord(ctx, &models.PerformanceRecord{
			AgentID: "agent-1", Date: testNow.AddDate(0, 0, -daysAgo), LeadsAssigned: 2, LeadsConverted: 1,
		}))
	}

	w := env.do(t, http.MethodGet, "/api/v1/agents/agent-1/performance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sum models.PerformanceSummary
	decode(t, w, &sum)
	assert.Equal(t, "agent-1", sum.AgentID)
	assert.Len(t, sum.Records, 2)
	assert.Equal(t, 4, sum.LeadsAssigned)
	assert.Equal(t, 50.0, sum.ConversionRate)

	w = env.do(t, http.MethodGet, "/api/v1/agents/agent-1/performance?days=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sum = models.PerformanceSummary{}
	decode(t, w, &sum)
	assert.Len(t, sum.Records, 1)

	w = env.do(t, http.MethodGet, "/api/v1/agents/nobody/performance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"records":[]`)
}

func TestRunJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	until := testNow.Add(-time.Hour)
	require.NoError(t, env.store.CreateLead(ctx, &models.Lead{
		ID: "sleepy", OrganizationID: "org-1", DateCreated: testNow.Add(-240 * time.Hour),
		IsSnoozed: true, SnoozeUntil: &until,
	}))

	w := env.do(t, http.MethodPost, "/api/v1/jobs/"+lifecycle.JobExpireSnoozes+"/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var run models.JobRun
	decode(t, w, &run)
	assert.Equal(t, models.JobSucceeded, run.Status)
	assert.Equal(t, 1, run.Succeeded)

	lead, err := env.store.GetLead(ctx, "sleepy")
	require.NoError(t, err)
	assert.False(t, lead.IsSnoozed)
	assert.Nil(t, lead.SnoozeUntil)

	w = env.do(t, http.MethodGet, "/api/v1/jobs/runs?job="+lifecycle.JobExpireSnoozes, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var runs []models.JobRun
	decode(t, w, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	w = env.do(t, http.MethodPost, "/api/v1/jobs/nope/run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobRuns_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/jobs/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestLogsRecent(t *testing.T) {
	env := newTestEnv(t)
	logger := zap.New(env.logs.Core(zapcore.DebugLevel))
	logger.Named("lifecycle").Info("job finished", zap.String("job", "expire_snoozes"))
	logger.Named("scoring").Warn("model scoring failed")

	w := env.do(t, http.MethodGet, "/api/v1/logs?source=lifecycle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Logs  []logging.LogEntry `json:"logs"`
		Count int                `json:"count"`
	}
	decode(t, w, &body)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "job finished", body.Logs[0].Message)

	w = env.do(t, http.MethodGet, "/api/v1/logs?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type panicScorer struct{ Scorer }

func (panicScorer) RescoreAll(context.Context, string) scoring.RescoreResult {
	panic("boom")
}

func TestRecoverMiddleware(t *testing.T) {
	srv := NewServer(panicScorer{}, storage.New(), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/organizations/org-1/rescore", nil)
	w := httptest.NewRecorder()
	srv.SetupRoutes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal error")
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 10},
		{"limit=5", 5},
		{"limit=0", 10},
		{"limit=-3", 10},
		{"limit=abc", 10},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
		assert.Equal(t, tt.want, queryInt(r, "limit", 10), tt.query)
	}
}
