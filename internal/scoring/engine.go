// Package scoring trains per-organization conversion models and scores leads,
// degrading to the heuristic scorer whenever the model path is unavailable.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jordanhubbard/leadscore/internal/classifier"
	"github.com/jordanhubbard/leadscore/internal/features"
	"github.com/jordanhubbard/leadscore/internal/heuristic"
	"github.com/jordanhubbard/leadscore/internal/logging"
	"github.com/jordanhubbard/leadscore/internal/metrics"
	"github.com/jordanhubbard/leadscore/internal/modelstore"
	"github.com/jordanhubbard/leadscore/pkg/models"
)

const (
	// MinTrainingLeads is the smallest organization that can be trained.
	MinTrainingLeads = 50
	// TestFraction is the held-out share used to measure accuracy.
	TestFraction = 0.2
)

var tracer = otel.Tracer("github.com/jordanhubbard/leadscore/internal/scoring")

// LeadRepository is the read/write view of leads the engine needs.
type LeadRepository interface {
	GetLeadsByOrganization(ctx context.Context, orgID string, filter *models.LeadFilter) ([]*models.Lead, error)
	GetLead(ctx context.Context, leadID string) (*models.Lead, error)
	GetInteractions(ctx context.Context, leadID string) ([]models.Interaction, error)
	UpdateLead(ctx context.Context, leadID string, update models.LeadUpdate) error
}

// SessionStore records and lists training audit rows.
type SessionStore interface {
	RecordTrainingSession(ctx context.Context, session *models.TrainingSession) error
	ListTrainingSessions(ctx context.Context, orgID string, limit int) ([]models.TrainingSession, error)
}

// Engine owns trained models and training sessions.
type Engine struct {
	repo      LeadRepository
	sessions  SessionStore
	store     modelstore.Store
	cache     *ModelCache
	now       func() time.Time
	logger    *zap.Logger
	metrics   *metrics.Metrics
	minLeads  int
	trainOpts classifier.TrainOptions
	seed      uint64

	trainMu  sync.Mutex
	training map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMinTrainingLeads overrides MinTrainingLeads.
func WithMinTrainingLeads(n int) Option {
	return func(e *Engine) { e.minLeads = n }
}

func WithTrainOptions(opts classifier.TrainOptions) Option {
	return func(e *Engine) { e.trainOpts = opts }
}

func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.seed = seed }
}

// NewEngine creates a scoring engine.
func NewEngine(repo LeadRepository, sessions SessionStore, store modelstore.Store, opts ...Option) *Engine {
	e := &Engine{
		repo:      repo,
		sessions:  sessions,
		store:     store,
		cache:     NewModelCache(),
		training:  make(map[string]*sync.Mutex),
		now:       time.Now,
		minLeads:  MinTrainingLeads,
		trainOpts: classifier.DefaultTrainOptions(),
		seed:      classifier.DefaultSeed,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger).Named("scoring")
	return e
}

// Cache exposes the engine's model cache.
func (e *Engine) Cache() *ModelCache {
	return e.cache
}

// Train fits and persists a new model for orgID. It never returns an error
// or panics; failures are reported in the result and recorded as a failed
// training session.
func (e *Engine) Train(ctx context.Context, orgID string) (result TrainingResult) {
	ctx, span := tracer.Start(ctx, "scoring.Train", trace.WithAttributes(attribute.String("organization_id", orgID)))
	defer span.End()

	// One training run per organization at a time; store and cache must agree.
	unlock := e.lockOrganization(orgID)
	defer unlock()

	started := e.now()
	result = TrainingResult{OrganizationID: orgID}

	defer func() {
		if r := recover(); r != nil {
			result.Status = models.TrainingFailed
			result.Metrics = nil
			result.Error = newTrainingError(ReasonTraining, fmt.Errorf("training panicked: %v", r))
			result.SessionID = e.recordSession(ctx, orgID, started, nil, result.Error)
		}
		if result.Error != nil {
			span.SetStatus(codes.Error, result.Error.Message)
			e.metrics.RecordTraining(orgID, string(models.TrainingFailed), 0, e.now().Sub(started))
			e.logger.Warn("training failed",
				zap.String("organization_id", orgID),
				zap.String("reason", result.Error.Reason),
				zap.String("error", result.Error.Message))
			return
		}
		e.metrics.RecordTraining(orgID, string(models.TrainingSuccess), result.Metrics.Accuracy, e.now().Sub(started))
		e.logger.Info("training completed",
			zap.String("organization_id", orgID),
			zap.Float64("accuracy", result.Metrics.Accuracy),
			zap.Int("training_samples", result.Metrics.TrainingSamples),
			zap.Int("test_samples", result.Metrics.TestSamples))
	}()

	tm, artifact, terr := e.fit(ctx, orgID, started)
	if terr != nil {
		result.Status = models.TrainingFailed
		result.Error = terr
		result.SessionID = e.recordSession(ctx, orgID, started, nil, terr)
		return result
	}

	if err := e.store.Save(ctx, orgID, artifact); err != nil {
		result.Status = models.TrainingFailed
		result.Error = newTrainingError(ReasonPersistence, err)
		result.SessionID = e.recordSession(ctx, orgID, started, nil, result.Error)
		return result
	}
	e.cache.Replace(orgID, artifact)

	result.Status = models.TrainingSuccess
	result.Metrics = tm
	result.SessionID = e.recordSession(ctx, orgID, started, tm, nil)
	return result
}

func (e *Engine) lockOrganization(orgID string) func() {
	e.trainMu.Lock()
	mu, ok := e.training[orgID]
	if !ok {
		mu = &sync.Mutex{}
		e.training[orgID] = mu
	}
	e.trainMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// fit runs the training pipeline without side effects beyond reads.
func (e *Engine) fit(ctx context.Context, orgID string, now time.Time) (*TrainingMetrics, *modelstore.Artifact, *TrainingError) {
	leads, err := e.repo.GetLeadsByOrganization(ctx, orgID, nil)
	if err != nil {
		return nil, nil, newTrainingError(ReasonDataAccess, fmt.Errorf("failed to load leads: %w", err))
	}
	if len(leads) < e.minLeads {
		return nil, nil, newTrainingError(ReasonInsufficientData,
			&InsufficientDataError{OrganizationID: orgID, Have: len(leads), Need: e.minLeads})
	}

	records := make([]features.Record, len(leads))
	labels := make([]int, len(leads))
	var positives int
	for i, lead := range leads {
		if err := ctx.Err(); err != nil {
			return nil, nil, newTrainingError(ReasonTraining, err)
		}
		interactions, err := e.repo.GetInteractions(ctx, lead.ID)
		if err != nil {
			return nil, nil, newTrainingError(ReasonDataAccess, fmt.Errorf("failed to load interactions for lead %s: %w", lead.ID, err))
		}
		records[i] = features.Extract(lead, interactions, now)
		if lead.Converted() {
			labels[i] = 1
			positives++
		}
	}

	encoders := make(map[string]*classifier.LabelEncoder, len(features.CategoricalColumns))
	for _, col := range features.CategoricalColumns {
		values := make([]string, len(records))
		for i, rec := range records {
			values[i], _ = rec.Categorical(col)
		}
		encoders[col] = classifier.FitLabelEncoder(values)
	}

	artifact := &modelstore.Artifact{
		Version:        modelstore.FormatVersion,
		OrganizationID: orgID,
		TrainedAt:      now,
		Columns:        append([]string(nil), features.Columns...),
		Encoders:       encoders,
	}

	rows := make([][]float64, len(records))
	for i, rec := range records {
		row, err := vectorize(artifact, rec)
		if err != nil {
			return nil, nil, newTrainingError(ReasonTraining, err)
		}
		rows[i] = row
	}

	trainIdx, testIdx := classifier.StratifiedSplit(labels, TestFraction, e.seed)
	if len(trainIdx) == 0 || len(testIdx) == 0 {
		return nil, nil, newTrainingError(ReasonTraining, errors.New("train/test split produced an empty partition"))
	}
	trainRows, trainLabels := subset(rows, labels, trainIdx)
	testRows, testLabels := subset(rows, labels, testIdx)

	scaler, err := classifier.FitStandardScaler(trainRows)
	if err != nil {
		return nil, nil, newTrainingError(ReasonTraining, err)
	}
	scaledTrain, err := scaler.TransformAll(trainRows)
	if err != nil {
		return nil, nil, newTrainingError(ReasonTraining, err)
	}
	scaledTest, err := scaler.TransformAll(testRows)
	if err != nil {
		return nil, nil, newTrainingError(ReasonTraining, err)
	}

	model, err := classifier.FitLogisticRegression(scaledTrain, trainLabels, e.trainOpts)
	if err != nil {
		return nil, nil, newTrainingError(ReasonTraining, fmt.Errorf("failed to fit classifier: %w", err))
	}
	accuracy, err := model.Accuracy(scaledTest, testLabels)
	if err != nil {
		return nil, nil, newTrainingError(ReasonTraining, err)
	}

	artifact.Model = model
	artifact.Scaler = scaler

	return &TrainingMetrics{
		Accuracy:          accuracy,
		TrainingSamples:   len(trainIdx),
		TestSamples:       len(testIdx),
		PositiveSamples:   positives,
		FeatureImportance: model.FeatureImportance(artifact.Columns),
		TrainedAt:         now,
	}, artifact, nil
}

func (e *Engine) recordSession(ctx context.Context, orgID string, at time.Time, m *TrainingMetrics, terr *TrainingError) string {
	session := &models.TrainingSession{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		TrainedAt:      at,
		Status:         models.TrainingSuccess,
	}
	if m != nil {
		session.Accuracy = m.Accuracy
		session.TrainingSamples = m.TrainingSamples
		session.TestSamples = m.TestSamples
	}
	if terr != nil {
		session.Status = models.TrainingFailed
		session.Error = terr.Message
	}
	if e.sessions == nil {
		return session.ID
	}
	if err := e.sessions.RecordTrainingSession(context.WithoutCancel(ctx), session); err != nil {
		e.logger.Error("failed to record training session",
			zap.String("organization_id", orgID),
			zap.String("status", string(session.Status)),
			zap.Error(err))
		return ""
	}
	return session.ID
}

// Score scores one lead, preferring the organization's model. The returned
// score is always valid; FallbackReason is set when the heuristic was used.
func (e *Engine) Score(ctx context.Context, lead *models.Lead) ScoreResult {
	res := ScoreResult{}
	if lead == nil {
		res.Source = SourceHeuristic
		res.FallbackReason = FallbackRuntime
		res.FallbackError = "lead is nil"
		return res
	}
	res.LeadID = lead.ID
	res.OrganizationID = lead.OrganizationID

	score, err := e.modelScore(ctx, lead)
	if err == nil {
		res.Score = score
		res.Source = SourceModel
		e.metrics.RecordScore(string(SourceModel), "")
		return res
	}

	res.Score = heuristic.Score(lead, e.now())
	res.Source = SourceHeuristic
	res.FallbackReason = fallbackReason(err)
	if res.FallbackReason != FallbackModelNotFound {
		res.FallbackError = err.Error()
		e.logger.Debug("model scoring failed, using heuristic",
			zap.String("lead_id", lead.ID),
			zap.String("reason", res.FallbackReason),
			zap.Error(err))
	}
	e.metrics.RecordScore(string(SourceHeuristic), res.FallbackReason)
	return res
}

// ScoreLead returns a score in [0, 100] for lead and never fails.
func (e *Engine) ScoreLead(ctx context.Context, lead *models.Lead) float64 {
	return e.Score(ctx, lead).Score
}

// ScoreLeadByID loads and scores a lead. Only the lookup can produce an error
// in the result; scoring itself always succeeds.
func (e *Engine) ScoreLeadByID(ctx context.Context, leadID string) LeadScoreResult {
	lead, err := e.repo.GetLead(ctx, leadID)
	if err != nil {
		kind := LookupDataAccess
		if errors.Is(err, models.ErrNotFound) {
			kind = LookupNotFound
		}
		return LeadScoreResult{
			ScoreResult: ScoreResult{LeadID: leadID},
			Error:       fmt.Sprintf("failed to load lead: %v", err),
			ErrorKind:   kind,
		}
	}
	return LeadScoreResult{ScoreResult: e.Score(ctx, lead)}
}

// modelScore is the model path: load, extract, encode, scale, predict.
func (e *Engine) modelScore(ctx context.Context, lead *models.Lead) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model scoring panicked: %v", r)
		}
	}()

	artifact, err := e.model(ctx, lead.OrganizationID)
	if err != nil {
		return 0, err
	}
	interactions, err := e.repo.GetInteractions(ctx, lead.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errDataAccess, err)
	}
	rec := features.Extract(lead, interactions, e.now())
	row, err := vectorize(artifact, rec)
	if err != nil {
		return 0, err
	}
	scaled, err := artifact.Scaler.Transform(row)
	if err != nil {
		return 0, err
	}
	p, err := artifact.Model.PredictProba(scaled)
	if err != nil {
		return 0, err
	}
	return models.ClampScore(round2(100 * p)), nil
}

// model returns the cached artifact, loading it from the store on first use.
func (e *Engine) model(ctx context.Context, orgID string) (*modelstore.Artifact, error) {
	if a, ok := e.cache.Get(orgID); ok {
		e.metrics.RecordCacheLookup(true)
		return a, nil
	}
	e.metrics.RecordCacheLookup(false)
	a, err := e.store.Load(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return e.cache.StoreIfAbsent(orgID, a), nil
}

// RescoreAll recomputes and persists the score of every lead in orgID.
// Per-lead failures are counted and skipped; cancellation stops the batch
// before the next lead.
func (e *Engine) RescoreAll(ctx context.Context, orgID string) RescoreResult {
	ctx, span := tracer.Start(ctx, "scoring.RescoreAll", trace.WithAttributes(attribute.String("organization_id", orgID)))
	defer span.End()

	res := RescoreResult{OrganizationID: orgID}
	leads, err := e.repo.GetLeadsByOrganization(ctx, orgID, nil)
	if err != nil {
		res.Error = fmt.Sprintf("failed to load leads: %v", err)
		span.SetStatus(codes.Error, res.Error)
		e.logger.Error("rescore aborted", zap.String("organization_id", orgID), zap.Error(err))
		return res
	}
	res.Total = len(leads)

	for _, lead := range leads {
		if ctx.Err() != nil {
			res.Stopped = true
			break
		}
		scored := e.Score(ctx, lead)
		score := models.ClampScore(scored.Score)
		if err := e.repo.UpdateLead(ctx, lead.ID, models.LeadUpdate{LeadScore: &score}); err != nil {
			res.Failed++
			e.logger.Warn("failed to persist lead score",
				zap.String("organization_id", orgID),
				zap.String("lead_id", lead.ID),
				zap.Error(err))
			continue
		}
		res.Updated++
		if scored.Source == SourceModel {
			res.ModelScored++
		}
	}

	span.SetAttributes(attribute.Int("updated", res.Updated), attribute.Int("failed", res.Failed))
	e.metrics.RecordRescore(orgID, res.Updated, res.Failed)
	e.logger.Info("rescore finished",
		zap.String("organization_id", orgID),
		zap.Int("total", res.Total),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
		zap.Bool("stopped", res.Stopped))
	return res
}

// TrainingHistory lists training sessions for orgID, newest first.
func (e *Engine) TrainingHistory(ctx context.Context, orgID string, limit int) ([]models.TrainingSession, error) {
	if e.sessions == nil {
		return nil, errors.New("training sessions are not recorded")
	}
	return e.sessions.ListTrainingSessions(ctx, orgID, limit)
}

// LastTraining returns the most recent session, or nil if none exist.
func (e *Engine) LastTraining(ctx context.Context, orgID string) (*models.TrainingSession, error) {
	sessions, err := e.TrainingHistory(ctx, orgID, 1)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

// vectorize lays out rec in the artifact's column order, encoding categoricals.
func vectorize(a *modelstore.Artifact, rec features.Record) ([]float64, error) {
	row := make([]float64, len(a.Columns))
	for j, col := range a.Columns {
		if features.IsCategorical(col) {
			value, _ := rec.Categorical(col)
			enc, ok := a.Encoders[col]
			if !ok {
				return nil, &EncodingMismatchError{Column: col, Value: value, Err: errors.New("no encoder for column")}
			}
			code, err := enc.Transform(value)
			if err != nil {
				return nil, &EncodingMismatchError{Column: col, Value: value, Err: err}
			}
			row[j] = float64(code)
			continue
		}
		v, ok := rec.Numeric(col)
		if !ok {
			return nil, fmt.Errorf("unknown feature column %q", col)
		}
		row[j] = v
	}
	return row, nil
}

func subset(rows [][]float64, labels []int, idx []int) ([][]float64, []int) {
	outRows := make([][]float64, len(idx))
	outLabels := make([]int, len(idx))
	for i, k := range idx {
		outRows[i] = rows[k]
		outLabels[i] = labels[k]
	}
	return outRows, outLabels
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
