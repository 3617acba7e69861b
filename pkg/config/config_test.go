package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("expected HTTP port 8080, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected 30s read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("expected sqlite, got %q", cfg.Database.Type)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestDefaultConfig_Scheduler(t *testing.T) {
	s := DefaultConfig().Scheduler
	want := map[string]time.Duration{
		"refresh_scores":      24 * time.Hour,
		"follow_up_reminders": time.Hour,
		"expire_snoozes":      30 * time.Minute,
		"rollup_performance":  time.Hour,
	}
	got := s.Intervals()
	for job, d := range want {
		if got[job] != d {
			t.Errorf("%s: expected %v, got %v", job, d, got[job])
		}
	}
}

func TestDefaultConfig_Scoring(t *testing.T) {
	s := DefaultConfig().Scoring
	if s.MinTrainingLeads != 50 {
		t.Errorf("expected 50 minimum training leads, got %d", s.MinTrainingLeads)
	}
	if s.Seed != 42 {
		t.Errorf("expected seed 42, got %d", s.Seed)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Setenv("TEST_LEADSCORE_DSN", "postgres://user:pw@db:5432/leads?sslmode=disable")
	content := `
server:
  http_port: 9000
database:
  type: postgres
  dsn: ${TEST_LEADSCORE_DSN}
scheduler:
  mode: temporal
  follow_up_interval: 15m
notifier:
  backend: kafka
  kafka_brokers: ["kafka-1:9092", "kafka-2:9092"]
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile: %v", err)
	}
	if cfg.Server.HTTPPort != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Database.DSN != "postgres://user:pw@db:5432/leads?sslmode=disable" {
		t.Errorf("env var not expanded: %q", cfg.Database.DSN)
	}
	if cfg.Scheduler.FollowUpInterval != 15*time.Minute {
		t.Errorf("expected 15m follow-up interval, got %v", cfg.Scheduler.FollowUpInterval)
	}
	if cfg.Scheduler.RefreshInterval != 24*time.Hour {
		t.Errorf("unset values should keep defaults, got %v", cfg.Scheduler.RefreshInterval)
	}
	if len(cfg.Notifier.KafkaBrokers) != 2 {
		t.Errorf("expected two brokers, got %v", cfg.Notifier.KafkaBrokers)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadConfigFromFile_Errors(t *testing.T) {
	if _, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [not, a, map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFromFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }},
		{"unknown database", func(c *Config) { c.Database.Type = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Database.Type = "postgres" }},
		{"too few training leads", func(c *Config) { c.Scoring.MinTrainingLeads = 1 }},
		{"redis without url", func(c *Config) { c.ModelStore.Backend = "redis" }},
		{"unknown scheduler", func(c *Config) { c.Scheduler.Mode = "systemd" }},
		{"zero interval", func(c *Config) { c.Scheduler.SnoozeInterval = 0 }},
		{"nats without url", func(c *Config) { c.Notifier.Backend = "nats" }},
		{"kafka without brokers", func(c *Config) { c.Notifier.Backend = "kafka" }},
		{"telemetry without endpoint", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Endpoint = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Scheduler.Mode = "none"
	cfg.Scheduler.SnoozeInterval = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("intervals are unused without a scheduler: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TEMPORAL_HOST", "temporal:7233")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("DATABASE_DSN", "")

	cfg := DefaultConfig()
	applied := cfg.ApplyEnv()

	if cfg.Temporal.Host != "temporal:7233" {
		t.Errorf("got temporal host %q", cfg.Temporal.Host)
	}
	if len(cfg.Notifier.KafkaBrokers) != 2 || cfg.Notifier.KafkaBrokers[1] != "b:9092" {
		t.Errorf("got brokers %v", cfg.Notifier.KafkaBrokers)
	}
	if cfg.Database.DSN != "" {
		t.Errorf("empty variables should not override, got %q", cfg.Database.DSN)
	}
	seen := map[string]bool{}
	for _, name := range applied {
		seen[name] = true
	}
	if !seen["TEMPORAL_HOST"] || !seen["KAFKA_BROKERS"] || seen["DATABASE_DSN"] {
		t.Errorf("unexpected applied list %v", applied)
	}
}
