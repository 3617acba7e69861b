package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jordanhubbard/leadscore/internal/classifier"
	"github.com/jordanhubbard/leadscore/internal/database"
	"github.com/jordanhubbard/leadscore/internal/lifecycle"
	"github.com/jordanhubbard/leadscore/internal/metrics"
	"github.com/jordanhubbard/leadscore/internal/modelstore"
	"github.com/jordanhubbard/leadscore/internal/notify"
	"github.com/jordanhubbard/leadscore/internal/schedule"
	"github.com/jordanhubbard/leadscore/internal/scoring"
	"github.com/jordanhubbard/leadscore/internal/temporal"
	"github.com/jordanhubbard/leadscore/internal/temporal/activities"
	"github.com/jordanhubbard/leadscore/pkg/config"
	"github.com/jordanhubbard/leadscore/pkg/models"
)

const lockCleanupInterval = 5 * time.Minute

// app holds the long-lived components of one leadscore process.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *database.Database
	metrics   *metrics.Metrics
	engine    *scoring.Engine
	scheduler *lifecycle.Scheduler
	cron      *schedule.CronRunner
	temporal  *temporal.Manager
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.NewMetrics()}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	store, err := a.openModelStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.engine = scoring.NewEngine(a.db, a.db, store,
		scoring.WithLogger(logger),
		scoring.WithMetrics(a.metrics),
		scoring.WithMinTrainingLeads(cfg.Scoring.MinTrainingLeads),
		scoring.WithSeed(cfg.Scoring.Seed),
		scoring.WithTrainOptions(classifier.TrainOptions{
			LearningRate:   cfg.Scoring.LearningRate,
			Epochs:         cfg.Scoring.Epochs,
			L2:             cfg.Scoring.L2,
			BalanceClasses: cfg.Scoring.BalanceClasses,
		}))

	notifier, err := a.openNotifier()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.scheduler = lifecycle.NewScheduler(a.db, a.engine, notifier,
		lifecycle.WithLogger(logger),
		lifecycle.WithMetrics(a.metrics),
		lifecycle.WithRunRecorder(a.db),
		lifecycle.WithConcurrency(cfg.Scheduler.Concurrency),
		lifecycle.WithNotifierName(cfg.Notifier.Backend))
	return a, nil
}

func openDatabase(cfg config.DatabaseConfig) (*database.Database, error) {
	switch cfg.Type {
	case "postgres":
		return database.NewPostgres(cfg.DSN)
	case "sqlite":
		return database.New(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

func (a *app) openModelStore(ctx context.Context) (modelstore.Store, error) {
	cfg := a.cfg.ModelStore
	switch cfg.Backend {
	case "file":
		return modelstore.NewFileStore(cfg.Dir)
	case "database":
		return modelstore.NewDatabaseStore(a.db), nil
	case "redis":
		rs, err := modelstore.NewRedisStoreFromURL(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs.Close)
		return rs, nil
	default:
		return nil, fmt.Errorf("unsupported model store backend %q", cfg.Backend)
	}
}

func (a *app) openNotifier() (notify.Notifier, error) {
	cfg := a.cfg.Notifier
	switch cfg.Backend {
	case notify.BackendLog, "":
		return notify.NewLogNotifier(a.logger), nil
	case notify.BackendNATS:
		n, err := notify.NewNATSNotifier(notify.NATSConfig{
			URL:        cfg.NATSURL,
			StreamName: cfg.NATSStream,
			Subject:    cfg.NATSSubject,
			Timeout:    cfg.Timeout,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, n.Close)
		return n, nil
	case notify.BackendKafka:
		n, err := notify.NewKafkaNotifier(notify.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, n.Close)
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported notifier backend %q", cfg.Backend)
	}
}

// enabledIntervals drops jobs configured with a non-positive interval.
func (a *app) enabledIntervals() map[string]time.Duration {
	out := make(map[string]time.Duration)
	for job, every := range a.cfg.Scheduler.Intervals() {
		if every > 0 {
			out[job] = every
		}
	}
	return out
}

// StartScheduler starts the configured trigger for the lifecycle jobs.
func (a *app) StartScheduler(ctx context.Context) error {
	switch a.cfg.Scheduler.Mode {
	case "none":
		a.logger.Info("lifecycle jobs run only on demand")
		return nil
	case "temporal":
		return a.startTemporal(ctx)
	default:
		return a.startCron()
	}
}

func (a *app) startCron() error {
	var opts []schedule.Option
	if a.db.SupportsHA() {
		opts = append(opts, schedule.WithLock(a.lockJob, a.cfg.Scheduler.LockTTL))
	}
	a.cron = schedule.NewCronRunner(a.logger, opts...)

	intervals := a.enabledIntervals()
	for _, job := range lifecycle.JobNames {
		every, ok := intervals[job]
		if !ok {
			continue
		}
		if err := a.cron.Every(job, every, a.jobFunc(job)); err != nil {
			return err
		}
	}
	if a.db.SupportsHA() {
		err := a.cron.Every("cleanup_expired_locks", lockCleanupInterval, func(ctx context.Context) error {
			n, err := a.db.CleanupExpiredLocks(ctx)
			if n > 0 {
				a.logger.Info("removed expired locks", zap.Int("count", n))
			}
			return err
		})
		if err != nil {
			return err
		}
	}
	a.cron.Start()
	return nil
}

func (a *app) jobFunc(job string) schedule.JobFunc {
	return func(ctx context.Context) error {
		run, err := a.scheduler.Run(ctx, job)
		if err != nil {
			return err
		}
		if run.Status == models.JobFailed {
			return errors.New(run.Error)
		}
		return nil
	}
}

func (a *app) lockJob(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := a.db.AcquireLock(ctx, "job:"+name, ttl)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

func (a *app) startTemporal(ctx context.Context) error {
	acts := activities.NewActivities(a.scheduler, a.engine)
	mgr, err := temporal.NewManager(ctx, &a.cfg.Temporal, acts, a.logger)
	if err != nil {
		return err
	}
	a.temporal = mgr
	if err := mgr.Start(); err != nil {
		return err
	}
	return mgr.ScheduleJobs(ctx, a.enabledIntervals())
}

// StopScheduler stops triggering jobs and waits for running cron jobs.
func (a *app) StopScheduler(ctx context.Context) {
	if a.cron != nil {
		if err := a.cron.Stop(ctx); err != nil {
			a.logger.Warn("cron jobs still running at shutdown", zap.Error(err))
		}
	}
	if a.temporal != nil {
		a.temporal.Stop()
		a.temporal = nil
	}
}

// Close releases every opened resource in reverse order.
func (a *app) Close() {
	if a.temporal != nil {
		a.temporal.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing resource", zap.Error(err))
		}
	}
	a.closers = nil
}
