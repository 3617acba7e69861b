package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for leadscore.
// Every Record method is safe to call on a nil *Metrics.
type Metrics struct {
	// Scoring metrics
	ScoresTotal      *prometheus.CounterVec
	ModelCacheHits   prometheus.Counter
	ModelCacheMisses prometheus.Counter
	LeadsRescored    *prometheus.CounterVec

	// Training metrics
	TrainingRuns     *prometheus.CounterVec
	TrainingAccuracy *prometheus.GaugeVec
	TrainingDuration *prometheus.HistogramVec

	// Lifecycle job metrics
	JobRuns     *prometheus.CounterVec
	JobRecords  *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// Notification metrics
	Notifications *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			ScoresTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "leadscore_scores_total",
					Help: "Lead scores computed, by source and fallback reason",
				},
				[]string{"source", "reason"},
			),
			ModelCacheHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "leadscore_model_cache_hits_total",
					Help: "Model lookups served from the in-process cache",
				},
			),
			ModelCacheMisses: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "leadscore_model_cache_misses_total",
					Help: "Model lookups that went to the model store",
				},
			),
			LeadsRescored: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "leadscore_leads_rescored_total",
					Help: "Leads processed by rescoring, by result",
				},
				[]string{"organization_id", "result"},
			),
			TrainingRuns: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "leadscore_training_runs_total",
					Help: "Training attempts by status",
				},
				[]string{"organization_id", "status"},
			),
			TrainingAccuracy: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "leadscore_training_accuracy",
					Help: "Held-out accuracy of the latest successful training run",
				},
				[]string{"organization_id"},
			),
			TrainingDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "leadscore_training_duration_seconds",
					Help:    "Duration of training runs in seconds",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
				},
				[]string{"status"},
			),
			JobRuns: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "leadscore_job_runs_total",
					Help: "Lifecycle job invocations by final status",
				},
				[]string{"job", "status"},
			),
			JobRecords: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "leadscore_job_records_total",
					Help: "Records handled by lifecycle jobs, by result",
				},
				[]string{"job", "result"},
			),
			JobDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "leadscore_job_duration_seconds",
					Help:    "Duration of lifecycle job invocations in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"job"},
			),
			Notifications: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "leadscore_notifications_total",
					Help: "Notifications dispatched, by backend and result",
				},
				[]string{"backend", "result"},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "leadscore_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "leadscore_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
		}
	})
	return sharedMetrics
}

func (m *Metrics) RecordScore(source, reason string) {
	if m == nil {
		return
	}
	m.ScoresTotal.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ModelCacheHits.Inc()
	} else {
		m.ModelCacheMisses.Inc()
	}
}

func (m *Metrics) RecordRescore(orgID string, updated, failed int) {
	if m == nil {
		return
	}
	m.LeadsRescored.WithLabelValues(orgID, "updated").Add(float64(updated))
	m.LeadsRescored.WithLabelValues(orgID, "failed").Add(float64(failed))
}

// RecordTraining counts a training attempt; accuracy is only exported on success.
func (m *Metrics) RecordTraining(orgID, status string, accuracy float64, d time.Duration) {
	if m == nil {
		return
	}
	m.TrainingRuns.WithLabelValues(orgID, status).Inc()
	m.TrainingDuration.WithLabelValues(status).Observe(d.Seconds())
	if status == "success" {
		m.TrainingAccuracy.WithLabelValues(orgID).Set(accuracy)
	}
}

func (m *Metrics) RecordJobRun(job, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Metrics) RecordJobRecords(job string, succeeded, failed int) {
	if m == nil {
		return
	}
	m.JobRecords.WithLabelValues(job, "succeeded").Add(float64(succeeded))
	m.JobRecords.WithLabelValues(job, "failed").Add(float64(failed))
}

func (m *Metrics) RecordNotification(backend string, success bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !success {
		result = "failed"
	}
	m.Notifications.WithLabelValues(backend, result).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}
