package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/jordanhubbard/leadscore/internal/telemetry"
)

// DepHealth represents the health of a dependency.
type DepHealth struct {
	Status  string `json:"status"` // "healthy", "unhealthy"
	Message string `json:"message,omitempty"`
	Latency int64  `json:"latency_ms"`
}

var startTime = time.Now()

// handleHealthLive handles GET /health. It returns 200 while the process is up.
func (s *Server) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "alive",
		"version":        telemetry.Version,
		"uptime_seconds": int64(time.Since(startTime).Seconds()),
		"timestamp":      s.now().UTC().Format(time.RFC3339),
	})
}

// handleHealthReady handles GET /health/ready. Every registered dependency
// must answer a ping for the server to report ready.
func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	deps := s.checkDependencies(ctx)
	ready := true
	for _, d := range deps {
		if d.Status != "healthy" {
			ready = false
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, map[string]interface{}{
		"ready":        ready,
		"timestamp":    s.now().UTC().Format(time.RFC3339),
		"dependencies": deps,
	})
}

func (s *Server) checkDependencies(ctx context.Context) map[string]DepHealth {
	names := make([]string, 0, len(s.deps))
	for name := range s.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]DepHealth, len(names))
	for _, name := range names {
		start := time.Now()
		if err := s.deps[name].Ping(ctx); err != nil {
			out[name] = DepHealth{Status: "unhealthy", Message: err.Error(), Latency: time.Since(start).Milliseconds()}
			continue
		}
		out[name] = DepHealth{Status: "healthy", Message: "connected", Latency: time.Since(start).Milliseconds()}
	}
	return out
}
