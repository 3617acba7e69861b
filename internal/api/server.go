package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jordanhubbard/leadscore/internal/logging"
	"github.com/jordanhubbard/leadscore/internal/metrics"
	"github.com/jordanhubbard/leadscore/internal/scoring"
	"github.com/jordanhubbard/leadscore/pkg/models"
)

// Scorer is the scoring engine as seen by HTTP callers.
type Scorer interface {
	Train(ctx context.Context, orgID string) scoring.TrainingResult
	Score(ctx context.Context, lead *models.Lead) scoring.ScoreResult
	ScoreLeadByID(ctx context.Context, leadID string) scoring.LeadScoreResult
	RescoreAll(ctx context.Context, orgID string) scoring.RescoreResult
	TrainingHistory(ctx context.Context, orgID string, limit int) ([]models.TrainingSession, error)
}

// Store serves the read-only reports.
type Store interface {
	LeadStatistics(ctx context.Context, orgID string, now time.Time) (*models.LeadStatistics, error)
	ListJobRuns(ctx context.Context, job string, limit int) ([]models.JobRun, error)
	ListPerformanceRecords(ctx context.Context, agentID string, from, to time.Time) ([]models.PerformanceRecord, error)
}

// JobRunner triggers a lifecycle job on demand.
type JobRunner interface {
	Run(ctx context.Context, job string) (*models.JobRun, error)
}

// Pinger is an optional readiness dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server
type Server struct {
	scorer     Scorer
	store      Store
	jobs       JobRunner
	logManager *logging.Manager
	logger     *zap.Logger
	metrics    *metrics.Metrics
	deps       map[string]Pinger
	now        func() time.Time
}

type Option func(*Server)

func WithLogManager(m *logging.Manager) Option {
	return func(s *Server) { s.logManager = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNop(l).Named("api") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithDependency adds a named dependency to the readiness probe.
func WithDependency(name string, p Pinger) Option {
	return func(s *Server) { s.deps[name] = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates a new API server
func NewServer(scorer Scorer, store Store, jobs JobRunner, opts ...Option) *Server {
	s := &Server{
		scorer: scorer,
		store:  store,
		jobs:   jobs,
		logger: zap.NewNop(),
		deps:   make(map[string]Pinger),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /health", s.handleHealthLive)
	mux.HandleFunc("GET /health/ready", s.handleHealthReady)
	mux.HandleFunc("GET /api/v1/health", s.handleHealthLive)

	// Metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	// Organizations
	mux.HandleFunc("POST /api/v1/organizations/{id}/train", s.handleTrain)
	mux.HandleFunc("POST /api/v1/organizations/{id}/score", s.handleScore)
	mux.HandleFunc("POST /api/v1/organizations/{id}/rescore", s.handleRescore)
	mux.HandleFunc("GET /api/v1/organizations/{id}/stats", s.handleStats)
	mux.HandleFunc("GET /api/v1/organizations/{id}/training-sessions", s.handleTrainingSessions)

	// Leads
	mux.HandleFunc("GET /api/v1/leads/{id}/score", s.handleLeadScore)

	// Agents
	mux.HandleFunc("GET /api/v1/agents/{id}/performance", s.handleAgentPerformance)

	// Jobs
	mux.HandleFunc("POST /api/v1/jobs/{name}/run", s.handleRunJob)
	mux.HandleFunc("GET /api/v1/jobs/runs", s.handleJobRuns)

	// Logs
	mux.HandleFunc("GET /api/v1/logs", s.HandleLogsRecent)

	return s.recoverMiddleware(s.loggingMiddleware(mux))
}

// Middleware

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// r.Pattern is set by the mux and keeps label cardinality bounded.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start).Seconds())
		if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
			return
		}
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("handler panicked", zap.String("path", r.URL.Path), zap.Any("panic", v))
				s.respondError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// parseJSON parses JSON request body
func (s *Server) parseJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
