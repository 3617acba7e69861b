package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jordanhubbard/leadscore/internal/lifecycle"
	"github.com/jordanhubbard/leadscore/pkg/models"
)

// handleTrain handles POST /api/v1/organizations/{id}/train
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	orgID := strings.TrimSpace(r.PathValue("id"))
	if orgID == "" {
		s.respondError(w, http.StatusBadRequest, ErrMissingOrganization.Error())
		return
	}

	result := s.scorer.Train(r.Context(), orgID)
	s.respondJSON(w, trainingStatus(result.Error), result)
}

// handleScore handles POST /api/v1/organizations/{id}/score. The body is a
// lead that need not be stored; nothing is persisted.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	orgID := strings.TrimSpace(r.PathValue("id"))
	if orgID == "" {
		s.respondError(w, http.StatusBadRequest, ErrMissingOrganization.Error())
		return
	}

	var lead models.Lead
	if err := s.parseJSON(w, r, &lead); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if lead.OrganizationID == "" {
		lead.OrganizationID = orgID
	}
	if lead.OrganizationID != orgID {
		s.respondError(w, http.StatusBadRequest, "lead belongs to a different organization")
		return
	}

	s.respondJSON(w, http.StatusOK, s.scorer.Score(r.Context(), &lead))
}

// handleRescore handles POST /api/v1/organizations/{id}/rescore
func (s *Server) handleRescore(w http.ResponseWriter, r *http.Request) {
	orgID := strings.TrimSpace(r.PathValue("id"))
	if orgID == "" {
		s.respondError(w, http.StatusBadRequest, ErrMissingOrganization.Error())
		return
	}

	result := s.scorer.RescoreAll(r.Context(), orgID)
	if result.Error != "" {
		s.respondJSON(w, http.StatusInternalServerError, result)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// handleStats handles GET /api/v1/organizations/{id}/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	orgID := strings.TrimSpace(r.PathValue("id"))
	if orgID == "" {
		s.respondError(w, http.StatusBadRequest, ErrMissingOrganization.Error())
		return
	}

	stats, err := s.store.LeadStatistics(r.Context(), orgID, s.now())
	if err != nil {
		s.logger.Error("failed to compute lead statistics", zap.String("organization_id", orgID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to compute lead statistics")
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// handleTrainingSessions handles GET /api/v1/organizations/{id}/training-sessions
func (s *Server) handleTrainingSessions(w http.ResponseWriter, r *http.Request) {
	orgID := strings.TrimSpace(r.PathValue("id"))
	if orgID == "" {
		s.respondError(w, http.StatusBadRequest, ErrMissingOrganization.Error())
		return
	}

	sessions, err := s.scorer.TrainingHistory(r.Context(), orgID, queryInt(r, "limit", 20))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list training sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []models.TrainingSession{}
	}
	s.respondJSON(w, http.StatusOK, sessions)
}

// handleLeadScore handles GET /api/v1/leads/{id}/score
func (s *Server) handleLeadScore(w http.ResponseWriter, r *http.Request) {
	leadID := strings.TrimSpace(r.PathValue("id"))
	if leadID == "" {
		s.respondError(w, http.StatusBadRequest, ErrMissingLead.Error())
		return
	}

	result := s.scorer.ScoreLeadByID(r.Context(), leadID)
	switch {
	case result.NotFound():
		s.respondJSON(w, http.StatusNotFound, result)
		return
	case result.Error != "":
		s.logger.Error("lead lookup failed", zap.String("lead_id", leadID), zap.String("error", result.Error))
		s.respondJSON(w, http.StatusInternalServerError, result)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// handleRunJob handles POST /api/v1/jobs/{name}/run. The job runs
// synchronously on the request context.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	run, err := s.jobs.Run(r.Context(), name)
	if errors.Is(err, lifecycle.ErrUnknownJob) {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if run.Status == models.JobFailed {
		status = http.StatusInternalServerError
	}
	s.respondJSON(w, status, run)
}

// handleJobRuns handles GET /api/v1/jobs/runs?job=&limit=
func (s *Server) handleJobRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListJobRuns(r.Context(), r.URL.Query().Get("job"), queryInt(r, "limit", 50))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list job runs: %v", err))
		return
	}
	if runs == nil {
		runs = []models.JobRun{}
	}
	s.respondJSON(w, http.StatusOK, runs)
}

const (
	defaultPerformanceDays = 30
	maxPerformanceDays     = 365
)

// handleAgentPerformance handles GET /api/v1/agents/{id}/performance?days=
func (s *Server) handleAgentPerformance(w http.ResponseWriter, r *http.Request) {
	agentID := strings.TrimSpace(r.PathValue("id"))
	if agentID == "" {
		s.respondError(w, http.StatusBadRequest, ErrMissingAgent.Error())
		return
	}
	days := queryInt(r, "days", defaultPerformanceDays)
	if days > maxPerformanceDays {
		days = maxPerformanceDays
	}

	to := models.DayStart(s.now())
	from := to.AddDate(0, 0, -days)
	records, err := s.store.ListPerformanceRecords(r.Context(), agentID, from, to)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list performance records: %v", err))
		return
	}
	s.respondJSON(w, http.StatusOK, models.SummarizePerformance(agentID, from, to, records))
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
