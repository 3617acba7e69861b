package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jordanhubbard/leadscore/internal/lifecycle"
	"github.com/jordanhubbard/leadscore/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "leadscore.db")
	cfg.ModelStore.Dir = filepath.Join(dir, "models")
	cfg.Scheduler.Mode = "none"
	return cfg
}

func TestNewApp_SQLiteWithFileStore(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.StartScheduler(ctx))
	assert.Nil(t, a.cron)

	assert.NoError(t, a.jobFunc(lifecycle.JobExpireSnoozes)(ctx))
	assert.ErrorIs(t, a.jobFunc("nope")(ctx), lifecycle.ErrUnknownJob)

	runs, err := a.db.ListJobRuns(ctx, lifecycle.JobExpireSnoozes, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestNewApp_UnsupportedBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.ModelStore.Backend = "s3"
	_, err := newApp(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported model store backend")

	cfg = testConfig(t)
	cfg.Notifier.Backend = "smtp"
	_, err = newApp(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported notifier backend")
}

func TestEnabledIntervals(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.SnoozeInterval = 0
	a := &app{cfg: cfg}

	got := a.enabledIntervals()
	assert.Len(t, got, 3)
	assert.NotContains(t, got, lifecycle.JobExpireSnoozes)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  type: oracle\n"), 0o644))
	_, err := loadConfig(path)
	assert.Error(t, err)
}
