package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jordanhubbard/leadscore/pkg/models"
)

// ErrNotFound is returned for unknown ids.
var ErrNotFound = models.ErrNotFound

// Storage is an in-memory lead repository used for local runs and tests.
// Returned values are copies; callers never share state with the store.
type Storage struct {
	mu            sync.RWMutex
	organizations map[string]*models.Organization
	categories    map[string]*models.Category
	leads         map[string]*models.Lead
	interactions  map[string][]models.Interaction
	agents        map[string]*models.Agent
	performance   map[string]models.PerformanceRecord
	sessions      []models.TrainingSession
	jobRuns       []models.JobRun
	modelBlobs    map[string][]byte
}

// New creates an empty Storage instance
func New() *Storage {
	return &Storage{
		organizations: make(map[string]*models.Organization),
		categories:    make(map[string]*models.Category),
		leads:         make(map[string]*models.Lead),
		interactions:  make(map[string][]models.Interaction),
		agents:        make(map[string]*models.Agent),
		performance:   make(map[string]models.PerformanceRecord),
		modelBlobs:    make(map[string][]byte),
	}
}

// Organizations

func (s *Storage) CreateOrganization(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	if _, exists := s.organizations[org.ID]; exists {
		return fmt.Errorf("organization with ID %s already exists", org.ID)
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	cp := *org
	s.organizations[org.ID] = &cp
	s.seedCategoriesLocked(org.ID)
	return nil
}

func (s *Storage) ListOrganizations(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.organizations))
	for id := range s.organizations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Categories

// EnsureDefaultCategories creates any missing default category for orgID.
func (s *Storage) EnsureDefaultCategories(_ context.Context, orgID string) ([]models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seedCategoriesLocked(orgID)

	var out []models.Category
	for _, c := range s.categories {
		if c.OrganizationID == orgID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Storage) seedCategoriesLocked(orgID string) {
	existing := make(map[string]bool)
	for _, c := range s.categories {
		if c.OrganizationID == orgID {
			existing[strings.ToLower(c.Name)] = true
		}
	}
	for _, name := range models.DefaultCategoryNames {
		if existing[strings.ToLower(name)] {
			continue
		}
		c := &models.Category{ID: uuid.New().String(), OrganizationID: orgID, Name: name}
		s.categories[c.ID] = c
	}
}

// Leads

func (s *Storage) CreateLead(_ context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if _, exists := s.leads[lead.ID]; exists {
		return fmt.Errorf("lead with ID %s already exists", lead.ID)
	}
	if lead.IsSnoozed && lead.SnoozeUntil == nil {
		return fmt.Errorf("lead %s is snoozed without snooze_until", lead.ID)
	}
	if lead.CategoryID != "" && lead.CategoryName == "" {
		if c, ok := s.categories[lead.CategoryID]; ok {
			lead.CategoryName = c.Name
		}
	}
	if lead.AgentID != "" && lead.AgentEmail == "" {
		if a, ok := s.agents[lead.AgentID]; ok {
			lead.AgentEmail = a.Email
		}
	}
	lead.LeadScore = models.ClampScore(lead.LeadScore)
	s.leads[lead.ID] = cloneLead(lead)
	return nil
}

func (s *Storage) GetLead(_ context.Context, id string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, exists := s.leads[id]
	if !exists {
		return nil, fmt.Errorf("lead %s: %w", id, ErrNotFound)
	}
	return cloneLead(lead), nil
}

func (s *Storage) GetLeadsByOrganization(ctx context.Context, orgID string, filter *models.LeadFilter) ([]*models.Lead, error) {
	f := models.LeadFilter{}
	if filter != nil {
		f = *filter
	}
	f.OrganizationID = orgID
	return s.FindLeads(ctx, f)
}

func (s *Storage) GetLeadsByAgent(ctx context.Context, agentID string) ([]*models.Lead, error) {
	return s.FindLeads(ctx, models.LeadFilter{AgentID: agentID})
}

// FindLeads returns matching leads ordered by creation time.
func (s *Storage) FindLeads(_ context.Context, filter models.LeadFilter) ([]*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Lead, 0)
	for _, lead := range s.leads {
		if filter.Match(lead) {
			out = append(out, cloneLead(lead))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DateCreated.Equal(out[j].DateCreated) {
			return out[i].ID < out[j].ID
		}
		return out[i].DateCreated.Before(out[j].DateCreated)
	})
	return out, nil
}

func (s *Storage) UpdateLead(_ context.Context, id string, update models.LeadUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, exists := s.leads[id]
	if !exists {
		return fmt.Errorf("lead %s: %w", id, ErrNotFound)
	}
	update.Apply(lead)
	return nil
}

// LeadStatistics summarizes orgID's leads relative to now.
func (s *Storage) LeadStatistics(_ context.Context, orgID string, now time.Time) (*models.LeadStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	weekStart, monthStart := models.StatisticsWindows(now)
	stats := &models.LeadStatistics{OrganizationID: orgID}
	for _, lead := range s.leads {
		if lead.OrganizationID != orgID {
			continue
		}
		stats.Total++
		if lead.AgentAssigned() {
			stats.Assigned++
		}
		if lead.CategoryAssigned() {
			stats.Categorized++
		}
		if !lead.DateCreated.Before(weekStart) {
			stats.ThisWeek++
		}
		if !lead.DateCreated.Before(monthStart) {
			stats.ThisMonth++
		}
	}
	stats.Unassigned = stats.Total - stats.Assigned
	stats.Uncategorized = stats.Total - stats.Categorized
	return stats, nil
}

// Interactions

func (s *Storage) AddInteraction(_ context.Context, in *models.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.leads[in.LeadID]; !exists {
		return fmt.Errorf("lead %s: %w", in.LeadID, ErrNotFound)
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	s.interactions[in.LeadID] = append(s.interactions[in.LeadID], *in)
	return nil
}

func (s *Storage) GetInteractions(_ context.Context, leadID string) ([]models.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]models.Interaction(nil), s.interactions[leadID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetInteractionsByAgent returns the agent's interactions created in [from, to).
func (s *Storage) GetInteractionsByAgent(_ context.Context, agentID string, from, to time.Time) ([]models.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Interaction
	for _, list := range s.interactions {
		for _, in := range list {
			if in.AgentID == agentID && !in.CreatedAt.Before(from) && in.CreatedAt.Before(to) {
				out = append(out, in)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Agents

func (s *Storage) CreateAgent(_ context.Context, agent *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	if _, exists := s.agents[agent.ID]; exists {
		return fmt.Errorf("agent with ID %s already exists", agent.ID)
	}
	cp := *agent
	s.agents[agent.ID] = &cp
	return nil
}

// ListActiveAgents returns active agents of orgID, or of every organization
// when orgID is empty.
func (s *Storage) ListActiveAgents(_ context.Context, orgID string) ([]*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Agent
	for _, a := range s.agents {
		if !a.Active || (orgID != "" && a.OrganizationID != orgID) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Performance records

func perfKey(agentID string, date time.Time) string {
	return agentID + "|" + models.DayStart(date).Format("2006-01-02")
}

func (s *Storage) UpsertPerformanceRecord(_ context.Context, rec *models.PerformanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	cp.Date = models.DayStart(rec.Date)
	s.performance[perfKey(rec.AgentID, rec.Date)] = cp
	return nil
}

func (s *Storage) GetPerformanceRecord(_ context.Context, agentID string, date time.Time) (*models.PerformanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.performance[perfKey(agentID, date)]
	if !ok {
		return nil, fmt.Errorf("performance record %s: %w", perfKey(agentID, date), ErrNotFound)
	}
	return &rec, nil
}

// ListPerformanceRecords returns agentID's records for the UTC days from..to
// inclusive, newest first.
func (s *Storage) ListPerformanceRecords(_ context.Context, agentID string, from, to time.Time) ([]models.PerformanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end := models.DayStart(from), models.DayStart(to)
	var out []models.PerformanceRecord
	for _, rec := range s.performance {
		if rec.AgentID != agentID || rec.Date.Before(start) || rec.Date.After(end) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// Training sessions

func (s *Storage) RecordTrainingSession(_ context.Context, session *models.TrainingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = append(s.sessions, *session)
	return nil
}

func (s *Storage) ListTrainingSessions(_ context.Context, orgID string, limit int) ([]models.TrainingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.TrainingSession
	for _, sess := range s.sessions {
		if orgID == "" || sess.OrganizationID == orgID {
			out = append(out, sess)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TrainedAt.After(out[j].TrainedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Job runs

func (s *Storage) RecordJobRun(_ context.Context, run *models.JobRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *run
	cp.Details = append([]models.JobDetail(nil), run.Details...)
	s.jobRuns = append(s.jobRuns, cp)
	return nil
}

func (s *Storage) ListJobRuns(_ context.Context, job string, limit int) ([]models.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.JobRun
	for i := len(s.jobRuns) - 1; i >= 0; i-- {
		if job != "" && s.jobRuns[i].Job != job {
			continue
		}
		out = append(out, s.jobRuns[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Model blobs

func (s *Storage) PutModelBlob(_ context.Context, orgID string, blob []byte, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.modelBlobs[orgID] = append([]byte(nil), blob...)
	return nil
}

func (s *Storage) GetModelBlob(_ context.Context, orgID string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.modelBlobs[orgID]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

func cloneLead(l *models.Lead) *models.Lead {
	cp := *l
	cp.LastContactedAt = cloneTime(l.LastContactedAt)
	cp.FollowUpAt = cloneTime(l.FollowUpAt)
	cp.SnoozeUntil = cloneTime(l.SnoozeUntil)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
