package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/jordanhubbard/leadscore/internal/api"
	"github.com/jordanhubbard/leadscore/internal/logging"
	"github.com/jordanhubbard/leadscore/internal/telemetry"
	"github.com/jordanhubbard/leadscore/pkg/config"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("leadscore v%s\n", version)
		return
	}
	telemetry.Version = version

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config from %s: %v", *configPath, err)
	}

	logManager := logging.NewManager(cfg.Logging.BufferSize)
	logger, _, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		BufferSize:  cfg.Logging.BufferSize,
	}, logManager)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, logManager); err != nil {
		logger.Fatal("leadscore exited with error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfigFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("config file %s not found, using defaults", path)
		cfg, err = config.DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	for _, name := range cfg.ApplyEnv() {
		log.Printf("Using %s from environment", name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, logManager *logging.Manager) error {
	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint, logger)
		if err != nil {
			logger.Warn("failed to initialize telemetry", zap.Error(err))
		} else {
			defer func() {
				if err := shutdownTelemetry(context.Background()); err != nil {
					logger.Warn("error shutting down telemetry", zap.Error(err))
				}
			}()
		}
	}

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.StartScheduler(ctx); err != nil {
		return err
	}

	apiServer := api.NewServer(app.engine, app.db, app.scheduler,
		api.WithLogger(logger),
		api.WithLogManager(logManager),
		api.WithMetrics(app.metrics),
		api.WithDependency("database", app.db))
	handler := otelhttp.NewHandler(apiServer.SetupRoutes(), "leadscore-http-server")

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("leadscore API listening", zap.String("addr", httpSrv.Addr), zap.String("version", version))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown did not complete", zap.Error(err))
	}
	app.StopScheduler(shutdownCtx)
	return nil
}
