package client

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/jordanhubbard/leadscore/internal/logging"
	"github.com/jordanhubbard/leadscore/pkg/config"
)

const (
	maxDialAttempts = 5
	baseDialDelay   = 2 * time.Second
)

// Client wraps the Temporal client with the task queue jobs run on.
type Client struct {
	temporal  client.Client
	config    *config.TemporalConfig
	namespace string
}

// New dials Temporal, retrying with exponential backoff (2s, 4s, 8s, 16s)
// until ctx ends.
func New(ctx context.Context, cfg *config.TemporalConfig, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("temporal config cannot be nil")
	}
	logger = logging.OrNop(logger).Named("temporal")

	var lastErr error
	for attempt := 0; attempt < maxDialAttempts; attempt++ {
		if attempt > 0 {
			delay := baseDialDelay * time.Duration(1<<uint(attempt-1))
			logger.Info("retrying temporal connection", zap.Duration("delay", delay), zap.Int("attempt", attempt+1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("failed to create temporal client: %w", ctx.Err())
			}
		}

		dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		c, err := client.DialContext(dialCtx, client.Options{
			HostPort:  cfg.Host,
			Namespace: cfg.Namespace,
			Logger:    NewLogger(logger),
			ConnectionOptions: client.ConnectionOptions{
				DialOptions: []grpc.DialOption{
					grpc.WithBlock(),
					grpc.FailOnNonTempDialError(false),
				},
			},
		})
		cancel()

		if err == nil {
			logger.Info("connected to temporal", zap.String("host", cfg.Host), zap.String("namespace", cfg.Namespace))
			return &Client{temporal: c, config: cfg, namespace: cfg.Namespace}, nil
		}
		lastErr = err
		logger.Warn("temporal connection attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}

	return nil, fmt.Errorf("failed to create temporal client after %d attempts: %w", maxDialAttempts, lastErr)
}

// Wrap adapts an existing SDK client, e.g. a mock in tests.
func Wrap(c client.Client, cfg *config.TemporalConfig) *Client {
	return &Client{temporal: c, config: cfg, namespace: cfg.Namespace}
}

// Close closes the Temporal client connection
func (c *Client) Close() {
	if c.temporal != nil {
		c.temporal.Close()
	}
}

// GetClient returns the underlying Temporal client
func (c *Client) GetClient() client.Client {
	return c.temporal
}

func (c *Client) GetNamespace() string {
	return c.namespace
}

func (c *Client) GetTaskQueue() string {
	return c.config.TaskQueue
}

// Logger adapts zap to Temporal's key/value logger.
type Logger struct {
	s *zap.SugaredLogger
}

func NewLogger(l *zap.Logger) *Logger {
	return &Logger{s: logging.OrNop(l).Sugar()}
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) { l.s.Debugw(msg, keyvals...) }
func (l *Logger) Info(msg string, keyvals ...interface{})  { l.s.Infow(msg, keyvals...) }
func (l *Logger) Warn(msg string, keyvals ...interface{})  { l.s.Warnw(msg, keyvals...) }
func (l *Logger) Error(msg string, keyvals ...interface{}) { l.s.Errorw(msg, keyvals...) }
