package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jordanhubbard/leadscore/internal/logging"
)

// HandleLogsRecent returns recent log entries from the in-memory buffer.
func (s *Server) HandleLogsRecent(w http.ResponseWriter, r *http.Request) {
	if s.logManager == nil {
		s.respondError(w, http.StatusServiceUnavailable, "log buffer is not enabled")
		return
	}

	limit := queryInt(r, "limit", 100)
	level := r.URL.Query().Get("level")
	source := r.URL.Query().Get("source")

	var since time.Time
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		t, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid 'since' parameter: %v", err))
			return
		}
		since = t
	}

	logs := s.logManager.GetRecent(limit, level, source, since)
	if logs == nil {
		logs = []logging.LogEntry{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}
