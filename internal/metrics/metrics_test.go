package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_Shared(t *testing.T) {
	if NewMetrics() != NewMetrics() {
		t.Fatal("expected NewMetrics to return the shared instance")
	}
}

func TestRecordScore(t *testing.T) {
	m := NewMetrics()
	before := testutil.ToFloat64(m.ScoresTotal.WithLabelValues("heuristic", "model_not_found"))
	m.RecordScore("heuristic", "model_not_found")
	after := testutil.ToFloat64(m.ScoresTotal.WithLabelValues("heuristic", "model_not_found"))
	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestRecordTraining_AccuracyOnlyOnSuccess(t *testing.T) {
	m := NewMetrics()
	m.RecordTraining("org-metrics", "success", 0.8, time.Second)
	m.RecordTraining("org-metrics", "failed", 0.1, time.Second)
	if got := testutil.ToFloat64(m.TrainingAccuracy.WithLabelValues("org-metrics")); got != 0.8 {
		t.Errorf("expected accuracy gauge 0.8, got %v", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordScore("model", "")
	m.RecordCacheLookup(true)
	m.RecordRescore("org", 1, 1)
	m.RecordTraining("org", "success", 1, time.Second)
	m.RecordJobRun("snooze", "succeeded", time.Second)
	m.RecordJobRecords("snooze", 1, 0)
	m.RecordNotification("log", true)
	m.RecordHTTPRequest("GET", "/", "200", 0.1)
}
