// Package lifecycle holds the time-driven lead jobs: score refresh, follow-up
// reminders, snooze expiration and the daily agent performance roll-up.
//
// Jobs are plain methods. Cron (internal/schedule), Temporal
// (internal/temporal) and the HTTP API all call into the same Scheduler.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jordanhubbard/leadscore/internal/logging"
	"github.com/jordanhubbard/leadscore/internal/metrics"
	"github.com/jordanhubbard/leadscore/internal/notify"
	"github.com/jordanhubbard/leadscore/internal/scoring"
	"github.com/jordanhubbard/leadscore/pkg/models"
)

// Job names, used for run history, metrics labels, cron entries and workflow IDs.
const (
	JobRefreshScores     = "refresh_scores"
	JobFollowUpReminders = "follow_up_reminders"
	JobExpireSnoozes     = "expire_snoozes"
	JobRollupPerformance = "rollup_performance"
)

// JobNames lists every job in a stable order.
var JobNames = []string{JobRefreshScores, JobFollowUpReminders, JobExpireSnoozes, JobRollupPerformance}

const (
	// FollowUpLookback keeps stale follow-up dates from flooding agents.
	FollowUpLookback = 7 * 24 * time.Hour
	// FollowUpLookahead includes reminders due within the next day.
	FollowUpLookahead = 24 * time.Hour

	defaultConcurrency = 4
)

// ErrUnknownJob is returned by Run for names outside JobNames.
var ErrUnknownJob = errors.New("unknown job")

var tracer = otel.Tracer("github.com/jordanhubbard/leadscore/internal/lifecycle")

// Repository is the lead store view the jobs need.
type Repository interface {
	ListOrganizations(ctx context.Context) ([]string, error)
	FindLeads(ctx context.Context, filter models.LeadFilter) ([]*models.Lead, error)
	UpdateLead(ctx context.Context, leadID string, update models.LeadUpdate) error
	ListActiveAgents(ctx context.Context, orgID string) ([]*models.Agent, error)
	GetLeadsByAgent(ctx context.Context, agentID string) ([]*models.Lead, error)
	GetInteractionsByAgent(ctx context.Context, agentID string, from, to time.Time) ([]models.Interaction, error)
	UpsertPerformanceRecord(ctx context.Context, rec *models.PerformanceRecord) error
}

// Rescorer is satisfied by *scoring.Engine.
type Rescorer interface {
	RescoreAll(ctx context.Context, orgID string) scoring.RescoreResult
}

// RunRecorder persists finished runs.
type RunRecorder interface {
	RecordJobRun(ctx context.Context, run *models.JobRun) error
}

// Scheduler runs lifecycle jobs. It is safe for concurrent use; jobs share no
// state between invocations.
type Scheduler struct {
	repo         Repository
	rescorer     Rescorer
	notifier     notify.Notifier
	notifierName string
	recorder     RunRecorder
	now          func() time.Time
	logger       *zap.Logger
	metrics      *metrics.Metrics
	concurrency  int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithRunRecorder stores every finished run.
func WithRunRecorder(r RunRecorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithConcurrency bounds how many organizations are rescored at once.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithNotifierName sets the backend label used in notification metrics.
func WithNotifierName(name string) Option {
	return func(s *Scheduler) { s.notifierName = name }
}

// NewScheduler creates a Scheduler.
func NewScheduler(repo Repository, rescorer Rescorer, notifier notify.Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		repo:         repo,
		rescorer:     rescorer,
		notifier:     notifier,
		notifierName: notify.BackendLog,
		now:          time.Now,
		concurrency:  defaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named("lifecycle")
	return s
}

// Run dispatches a job by name.
func (s *Scheduler) Run(ctx context.Context, job string) (*models.JobRun, error) {
	switch job {
	case JobRefreshScores:
		return s.RefreshScores(ctx), nil
	case JobFollowUpReminders:
		return s.SendFollowUpReminders(ctx), nil
	case JobExpireSnoozes:
		return s.ExpireSnoozes(ctx), nil
	case JobRollupPerformance:
		return s.RollupPerformance(ctx), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}
}

// RefreshScores rescores every organization with bounded concurrency. One
// organization's failure does not affect the others.
func (s *Scheduler) RefreshScores(ctx context.Context) *models.JobRun {
	ctx, run, span := s.begin(ctx, JobRefreshScores)
	defer span.End()

	orgs, err := s.repo.ListOrganizations(ctx)
	if err != nil {
		return s.finish(ctx, run, span, fmt.Errorf("failed to list organizations: %w", err))
	}

	results := make([]scoring.RescoreResult, len(orgs))
	skipped := make([]bool, len(orgs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, orgID := range orgs {
		if ctx.Err() != nil {
			for j := i; j < len(orgs); j++ {
				skipped[j] = true
			}
			break
		}
		g.Go(func() error {
			results[i] = s.rescoreOrg(ctx, orgID)
			return nil
		})
	}
	_ = g.Wait()

	for i, orgID := range orgs {
		if skipped[i] {
			run.Stopped = true
			continue
		}
		res := results[i]
		detail := models.JobDetail{Key: orgID, Succeeded: res.Updated, Failed: res.Failed, Error: res.Error}
		run.Processed += res.Total
		run.Succeeded += res.Updated
		run.Failed += res.Failed
		if res.Error != "" {
			run.Failed++
		}
		if res.Stopped {
			run.Stopped = true
		}
		run.Details = append(run.Details, detail)
	}
	return s.finish(ctx, run, span, nil)
}

// rescoreOrg shields the batch from a panicking rescorer.
func (s *Scheduler) rescoreOrg(ctx context.Context, orgID string) (res scoring.RescoreResult) {
	defer func() {
		if r := recover(); r != nil {
			res = scoring.RescoreResult{OrganizationID: orgID, Error: fmt.Sprintf("rescore panicked: %v", r)}
		}
	}()
	return s.rescorer.RescoreAll(ctx, orgID)
}

// SendFollowUpReminders notifies the assigned agent of every un-snoozed lead
// whose follow-up falls within [now-7d, now+1d].
func (s *Scheduler) SendFollowUpReminders(ctx context.Context) *models.JobRun {
	ctx, run, span := s.begin(ctx, JobFollowUpReminders)
	defer span.End()

	now := s.now()
	from := now.Add(-FollowUpLookback)
	to := now.Add(FollowUpLookahead)
	notSnoozed := false
	leads, err := s.repo.FindLeads(ctx, models.LeadFilter{
		FollowUpFrom: &from,
		FollowUpTo:   &to,
		RequireAgent: true,
		Snoozed:      &notSnoozed,
	})
	if err != nil {
		return s.finish(ctx, run, span, fmt.Errorf("failed to find follow-up leads: %w", err))
	}

	for _, lead := range leads {
		if ctx.Err() != nil {
			run.Stopped = true
			break
		}
		run.Processed++
		err := s.sendReminder(ctx, lead, now)
		s.metrics.RecordNotification(s.notifierName, err == nil)
		if err != nil {
			s.recordFailure(run, lead.ID, err)
			continue
		}
		run.Succeeded++
	}
	return s.finish(ctx, run, span, nil)
}

func (s *Scheduler) sendReminder(ctx context.Context, lead *models.Lead, now time.Time) error {
	if lead.AgentEmail == "" {
		return &notify.NotificationFailure{
			Backend: s.notifierName,
			Err:     fmt.Errorf("agent %s has no email address", lead.AgentID),
		}
	}
	return s.notifier.Notify(ctx, lead.AgentEmail, ReminderSubject(lead), ReminderBody(lead, now))
}

// ExpireSnoozes clears snoozes whose deadline has passed. Running it twice
// without time passing changes nothing the second time.
func (s *Scheduler) ExpireSnoozes(ctx context.Context) *models.JobRun {
	ctx, run, span := s.begin(ctx, JobExpireSnoozes)
	defer span.End()

	now := s.now()
	snoozed := true
	leads, err := s.repo.FindLeads(ctx, models.LeadFilter{Snoozed: &snoozed, SnoozeEndsBefore: &now})
	if err != nil {
		return s.finish(ctx, run, span, fmt.Errorf("failed to find expired snoozes: %w", err))
	}

	for _, lead := range leads {
		if ctx.Err() != nil {
			run.Stopped = true
			break
		}
		run.Processed++
		if err := s.repo.UpdateLead(ctx, lead.ID, models.LeadUpdate{Unsnooze: true}); err != nil {
			s.recordFailure(run, lead.ID, err)
			continue
		}
		run.Succeeded++
	}
	return s.finish(ctx, run, span, nil)
}

// RollupPerformance upserts yesterday's (UTC) performance record for every
// active agent.
func (s *Scheduler) RollupPerformance(ctx context.Context) *models.JobRun {
	ctx, run, span := s.begin(ctx, JobRollupPerformance)
	defer span.End()

	now := s.now()
	day := models.DayStart(now).AddDate(0, 0, -1)
	agents, err := s.repo.ListActiveAgents(ctx, "")
	if err != nil {
		return s.finish(ctx, run, span, fmt.Errorf("failed to list active agents: %w", err))
	}

	for _, agent := range agents {
		if ctx.Err() != nil {
			run.Stopped = true
			break
		}
		run.Processed++
		rec, err := s.rollupAgent(ctx, agent.ID, day, now)
		if err == nil {
			err = s.repo.UpsertPerformanceRecord(ctx, rec)
		}
		if err != nil {
			s.recordFailure(run, agent.ID, err)
			continue
		}
		run.Succeeded++
	}
	return s.finish(ctx, run, span, nil)
}

// rollupAgent computes one agent's record for the UTC day starting at day.
func (s *Scheduler) rollupAgent(ctx context.Context, agentID string, day, now time.Time) (*models.PerformanceRecord, error) {
	end := day.Add(24 * time.Hour)
	inDay := func(t time.Time) bool { return !t.Before(day) && t.Before(end) }

	leads, err := s.repo.GetLeadsByAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load leads: %w", err)
	}
	interactions, err := s.repo.GetInteractionsByAgent(ctx, agentID, day, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}

	rec := &models.PerformanceRecord{AgentID: agentID, Date: day, UpdatedAt: now}
	for _, lead := range leads {
		if inDay(lead.DateCreated) {
			rec.LeadsAssigned++
		}
		if lead.LastContactedAt != nil && inDay(*lead.LastContactedAt) {
			rec.LeadsContacted++
		}
		if lead.Converted() && inDay(lead.UpdatedAt) {
			rec.LeadsConverted++
		}
	}

	rec.TotalInteractions = len(interactions)
	var minutes float64
	var timed int
	for _, in := range interactions {
		if in.DurationMinutes != nil {
			minutes += *in.DurationMinutes
			timed++
		}
	}
	if timed > 0 {
		rec.AverageResponseTimeHours = minutes / float64(timed) / 60
	}
	rec.ComputeRates()
	return rec, nil
}

// maxDetails caps per-record failure details kept on a run.
const maxDetails = 100

func (s *Scheduler) recordFailure(run *models.JobRun, key string, err error) {
	run.Failed++
	if len(run.Details) < maxDetails {
		run.Details = append(run.Details, models.JobDetail{Key: key, Failed: 1, Error: err.Error()})
	}
	s.logger.Warn("job record failed",
		zap.String("job", run.Job),
		zap.String("key", key),
		zap.Error(err))
}

func (s *Scheduler) begin(ctx context.Context, job string) (context.Context, *models.JobRun, trace.Span) {
	ctx, span := tracer.Start(ctx, "lifecycle."+job)
	run := &models.JobRun{ID: uuid.New().String(), Job: job, Status: models.JobPending}
	_ = run.Transition(models.JobRunning)
	run.StartedAt = s.now()
	s.logger.Debug("job started", zap.String("job", job), zap.String("run_id", run.ID))
	return ctx, run, span
}

// finish settles the run's terminal state. setupErr means the job never got
// to its records.
func (s *Scheduler) finish(ctx context.Context, run *models.JobRun, span trace.Span, setupErr error) *models.JobRun {
	next := models.JobSucceeded
	switch {
	case setupErr != nil:
		next = models.JobFailed
		run.Error = setupErr.Error()
	case run.Failed > 0:
		next = models.JobPartiallyFailed
	}
	if err := run.Transition(next); err != nil {
		s.logger.Error("invalid job transition", zap.String("job", run.Job), zap.Error(err))
	}
	run.FinishedAt = s.now()

	span.SetAttributes(
		attribute.String("status", string(run.Status)),
		attribute.Int("processed", run.Processed),
		attribute.Int("failed", run.Failed))
	if setupErr != nil {
		span.SetStatus(codes.Error, run.Error)
	}

	s.metrics.RecordJobRun(run.Job, string(run.Status), run.Duration())
	s.metrics.RecordJobRecords(run.Job, run.Succeeded, run.Failed)

	fields := []zap.Field{
		zap.String("job", run.Job),
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("processed", run.Processed),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed),
		zap.Bool("stopped", run.Stopped),
		zap.Duration("duration", run.Duration()),
	}
	if setupErr != nil {
		s.logger.Error("job failed", append(fields, zap.Error(setupErr))...)
	} else {
		s.logger.Info("job finished", fields...)
	}

	if s.recorder != nil {
		if err := s.recorder.RecordJobRun(context.WithoutCancel(ctx), run); err != nil {
			s.logger.Error("failed to record job run", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	return run
}
