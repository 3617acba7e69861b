// Package schedule triggers lifecycle jobs in-process when no Temporal
// cluster is configured.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jordanhubbard/leadscore/internal/logging"
)

// JobFunc is one trigger of a job. The context is cancelled when the runner
// stops.
type JobFunc func(ctx context.Context) error

// LockFunc takes a named cluster-wide lock. Any error means "do not run this
// time"; release is called once the job returns.
type LockFunc func(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, err error)

// ErrDuplicateJob is returned when a job name is registered twice.
var ErrDuplicateJob = errors.New("job already registered")

// EntryInfo describes a registered job.
type EntryInfo struct {
	Name string    `json:"name"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

// CronRunner runs registered jobs on fixed intervals or cron expressions.
// Overlapping triggers of the same job are skipped, never queued.
type CronRunner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	lock    LockFunc
	lockTTL time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]cron.EntryID
	started bool
}

type Option func(*CronRunner)

// WithLock makes every trigger take the job's lock first. Used when several
// replicas share a Postgres database.
func WithLock(fn LockFunc, ttl time.Duration) Option {
	return func(r *CronRunner) {
		r.lock = fn
		r.lockTTL = ttl
	}
}

func NewCronRunner(logger *zap.Logger, opts ...Option) *CronRunner {
	logger = logging.OrNop(logger).Named("schedule")
	cl := cronLogger{l: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	r := &CronRunner{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		lockTTL: 10 * time.Minute,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Every registers fn to run each interval, measured from the previous
// trigger.
func (r *CronRunner) Every(name string, interval time.Duration, fn JobFunc) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive, got %s", name, interval)
	}
	return r.add(name, fixedInterval(interval), fn)
}

// Spec registers fn with a standard five-field cron expression or a
// descriptor such as "@hourly".
func (r *CronRunner) Spec(name, spec string, fn JobFunc) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("job %s: invalid cron spec %q: %w", name, spec, err)
	}
	return r.add(name, sched, fn)
}

func (r *CronRunner) add(name string, sched cron.Schedule, fn JobFunc) error {
	if fn == nil {
		return fmt.Errorf("job %s: nil func", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	r.entries[name] = r.cron.Schedule(sched, cron.FuncJob(func() { r.trigger(name, fn) }))
	return nil
}

func (r *CronRunner) trigger(name string, fn JobFunc) {
	ctx := r.ctx
	if ctx.Err() != nil {
		return
	}
	if r.lock != nil {
		release, err := r.lock(ctx, name, r.lockTTL)
		if err != nil {
			r.logger.Debug("skipping trigger, lock not acquired", zap.String("job", name), zap.Error(err))
			return
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("failed to release job lock", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	start := time.Now()
	if err := fn(ctx); err != nil {
		r.logger.Error("job trigger failed", zap.String("job", name), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	r.logger.Debug("job trigger finished", zap.String("job", name), zap.Duration("duration", time.Since(start)))
}

// Start begins triggering jobs in the background. Calling it twice is a no-op.
func (r *CronRunner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.cron.Start()
	r.logger.Info("cron runner started", zap.Int("jobs", len(r.entries)))
}

// Stop cancels running jobs and waits for them to return, or for ctx to end.
func (r *CronRunner) Stop(ctx context.Context) error {
	r.cancel()
	done := r.cron.Stop()
	select {
	case <-done.Done():
		r.logger.Info("cron runner stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron runner did not stop: %w", ctx.Err())
	}
}

// Entries lists registered jobs with their next trigger, sorted by name.
func (r *CronRunner) Entries() []EntryInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EntryInfo, 0, len(r.entries))
	for name, id := range r.entries {
		e := r.cron.Entry(id)
		out = append(out, EntryInfo{Name: name, Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// fixedInterval differs from cron.Every in that it keeps sub-second precision.
type fixedInterval time.Duration

func (f fixedInterval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(f))
}

type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
