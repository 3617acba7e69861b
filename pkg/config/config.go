package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration for the leadscore service.
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Database   DatabaseConfig   `yaml:"database" json:"database"`
	Scoring    ScoringConfig    `yaml:"scoring" json:"scoring"`
	ModelStore ModelStoreConfig `yaml:"model_store" json:"model_store"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" json:"scheduler"`
	Temporal   TemporalConfig   `yaml:"temporal" json:"temporal"`
	Notifier   NotifierConfig   `yaml:"notifier" json:"notifier"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port" json:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// DatabaseConfig configures the lead store
type DatabaseConfig struct {
	Type string `yaml:"type" json:"type"` // "sqlite", "postgres"
	Path string `yaml:"path" json:"path"` // For SQLite
	DSN  string `yaml:"dsn" json:"-"`     // For Postgres
}

// ScoringConfig tunes model training.
type ScoringConfig struct {
	MinTrainingLeads int     `yaml:"min_training_leads" json:"min_training_leads"`
	Seed             uint64  `yaml:"seed" json:"seed"`
	LearningRate     float64 `yaml:"learning_rate" json:"learning_rate"`
	Epochs           int     `yaml:"epochs" json:"epochs"`
	L2               float64 `yaml:"l2" json:"l2"`
	BalanceClasses   bool    `yaml:"balance_classes" json:"balance_classes"`
}

// ModelStoreConfig selects where trained artifacts live.
type ModelStoreConfig struct {
	Backend     string `yaml:"backend" json:"backend"` // "file", "database", "redis"
	Dir         string `yaml:"dir" json:"dir"`
	RedisURL    string `yaml:"redis_url" json:"-"`
	RedisPrefix string `yaml:"redis_prefix" json:"redis_prefix"`
}

// SchedulerConfig controls how lifecycle jobs are triggered.
type SchedulerConfig struct {
	Mode                string        `yaml:"mode" json:"mode"` // "cron", "temporal", "none"
	RefreshInterval     time.Duration `yaml:"refresh_interval" json:"refresh_interval"`
	FollowUpInterval    time.Duration `yaml:"follow_up_interval" json:"follow_up_interval"`
	SnoozeInterval      time.Duration `yaml:"snooze_interval" json:"snooze_interval"`
	PerformanceInterval time.Duration `yaml:"performance_interval" json:"performance_interval"`
	Concurrency         int           `yaml:"concurrency" json:"concurrency"`
	LockTTL             time.Duration `yaml:"lock_ttl" json:"lock_ttl"`
}

// Intervals maps job names to their trigger interval.
func (s SchedulerConfig) Intervals() map[string]time.Duration {
	return map[string]time.Duration{
		"refresh_scores":      s.RefreshInterval,
		"follow_up_reminders": s.FollowUpInterval,
		"expire_snoozes":      s.SnoozeInterval,
		"rollup_performance":  s.PerformanceInterval,
	}
}

// TemporalConfig configures Temporal workflow engine
type TemporalConfig struct {
	Host                     string        `yaml:"host" json:"host"`
	Namespace                string        `yaml:"namespace" json:"namespace"`
	TaskQueue                string        `yaml:"task_queue" json:"task_queue"`
	WorkflowExecutionTimeout time.Duration `yaml:"workflow_execution_timeout" json:"workflow_execution_timeout"`
	WorkflowTaskTimeout      time.Duration `yaml:"workflow_task_timeout" json:"workflow_task_timeout"`
	ActivityTimeout          time.Duration `yaml:"activity_timeout" json:"activity_timeout"`
}

// NotifierConfig selects the reminder delivery backend.
type NotifierConfig struct {
	Backend      string        `yaml:"backend" json:"backend"` // "log", "nats", "kafka"
	NATSURL      string        `yaml:"nats_url" json:"nats_url"`
	NATSStream   string        `yaml:"nats_stream" json:"nats_stream"`
	NATSSubject  string        `yaml:"nats_subject" json:"nats_subject"`
	KafkaBrokers []string      `yaml:"kafka_brokers" json:"kafka_brokers"`
	KafkaTopic   string        `yaml:"kafka_topic" json:"kafka_topic"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" json:"level"`
	Development bool   `yaml:"development" json:"development"`
	BufferSize  int    `yaml:"buffer_size" json:"buffer_size"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Endpoint    string `yaml:"endpoint" json:"endpoint"`
	ServiceName string `yaml:"service_name" json:"service_name"`
}

// LoadConfigFromFile loads configuration from a YAML file at the specified path.
// Values missing from the file keep their defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g. ${DATABASE_DSN}) before parsing YAML
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides connection settings from the environment. It returns the
// names of the variables that were applied.
func (c *Config) ApplyEnv() []string {
	var applied []string
	set := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
			applied = append(applied, name)
		}
	}
	set("DATABASE_TYPE", &c.Database.Type)
	set("DATABASE_PATH", &c.Database.Path)
	set("DATABASE_DSN", &c.Database.DSN)
	set("REDIS_URL", &c.ModelStore.RedisURL)
	set("TEMPORAL_HOST", &c.Temporal.Host)
	set("TEMPORAL_NAMESPACE", &c.Temporal.Namespace)
	set("NATS_URL", &c.Notifier.NATSURL)
	set("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	set("LOG_LEVEL", &c.Logging.Level)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Notifier.KafkaBrokers = strings.Split(v, ",")
		applied = append(applied, "KAFKA_BROKERS")
	}
	return applied
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port %d out of range", c.Server.HTTPPort))
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.type %q is not sqlite or postgres", c.Database.Type))
	}

	if c.Scoring.MinTrainingLeads < 2 {
		errs = append(errs, fmt.Errorf("scoring.min_training_leads must be at least 2, got %d", c.Scoring.MinTrainingLeads))
	}
	if c.Scoring.LearningRate <= 0 || c.Scoring.Epochs <= 0 {
		errs = append(errs, errors.New("scoring.learning_rate and scoring.epochs must be positive"))
	}

	switch c.ModelStore.Backend {
	case "file":
		if c.ModelStore.Dir == "" {
			errs = append(errs, errors.New("model_store.dir is required for the file backend"))
		}
	case "database":
	case "redis":
		if c.ModelStore.RedisURL == "" {
			errs = append(errs, errors.New("model_store.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("model_store.backend %q is not file, database or redis", c.ModelStore.Backend))
	}

	switch c.Scheduler.Mode {
	case "cron", "temporal":
		for job, d := range c.Scheduler.Intervals() {
			if d <= 0 {
				errs = append(errs, fmt.Errorf("scheduler interval for %s must be positive", job))
			}
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("scheduler.mode %q is not cron, temporal or none", c.Scheduler.Mode))
	}
	if c.Scheduler.Mode == "temporal" && c.Temporal.Host == "" {
		errs = append(errs, errors.New("temporal.host is required when scheduler.mode is temporal"))
	}

	switch c.Notifier.Backend {
	case "log":
	case "nats":
		if c.Notifier.NATSURL == "" {
			errs = append(errs, errors.New("notifier.nats_url is required for the nats backend"))
		}
	case "kafka":
		if len(c.Notifier.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("notifier.kafka_brokers is required for the kafka backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifier.backend %q is not log, nats or kafka", c.Notifier.Backend))
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}
	return errors.Join(errs...)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "./leadscore.db",
		},
		Scoring: ScoringConfig{
			MinTrainingLeads: 50,
			Seed:             42,
			LearningRate:     0.1,
			Epochs:           500,
			L2:               0.001,
			BalanceClasses:   true,
		},
		ModelStore: ModelStoreConfig{
			Backend:     "file",
			Dir:         "./models",
			RedisPrefix: "leadscore:model:",
		},
		Scheduler: SchedulerConfig{
			Mode:                "cron",
			RefreshInterval:     24 * time.Hour,
			FollowUpInterval:    time.Hour,
			SnoozeInterval:      30 * time.Minute,
			PerformanceInterval: time.Hour,
			Concurrency:         4,
			LockTTL:             10 * time.Minute,
		},
		Temporal: TemporalConfig{
			Host:                     "localhost:7233",
			Namespace:                "leadscore",
			TaskQueue:                "leadscore-jobs",
			WorkflowExecutionTimeout: 24 * time.Hour,
			WorkflowTaskTimeout:      10 * time.Second,
			ActivityTimeout:          30 * time.Minute,
		},
		Notifier: NotifierConfig{
			Backend:     "log",
			NATSStream:  "LEADSCORE",
			NATSSubject: "leadscore.notifications.reminders",
			KafkaTopic:  "leadscore.notifications",
			Timeout:     10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			BufferSize: 1000,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "otel-collector:4317",
			ServiceName: "leadscore",
		},
	}
}
