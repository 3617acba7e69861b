package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/jordanhubbard/leadscore/internal/logging"
)

// DefaultSubject is where reminders are published; a mail relay consumes it.
const DefaultSubject = "leadscore.notifications.reminders"

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL        string        // NATS server URL (e.g., "nats://nats:4222")
	StreamName string        // JetStream stream name (default: "LEADSCORE")
	Subject    string        // Publish subject (default: DefaultSubject)
	Timeout    time.Duration // Connection timeout
}

// jsPublisher is the slice of nats.JetStreamContext the notifier uses.
type jsPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSNotifier publishes notifications to a JetStream stream.
type NATSNotifier struct {
	conn    *nats.Conn
	js      jsPublisher
	subject string
	logger  *zap.Logger
}

// NewNATSNotifier connects to NATS and ensures the notification stream exists.
func NewNATSNotifier(cfg NATSConfig, logger *zap.Logger) (*NATSNotifier, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "LEADSCORE"
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger = logging.OrNop(logger).Named("notify.nats")

	nc, err := nats.Connect(cfg.URL,
		nats.Name("leadscore"),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	if err := ensureStream(js, cfg.StreamName, cfg.Subject); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	logger.Info("connected to NATS", zap.String("url", cfg.URL), zap.String("stream", cfg.StreamName))
	return &NATSNotifier{conn: nc, js: js, subject: cfg.Subject, logger: logger}, nil
}

// ensureStream creates the stream or updates its subjects.
func ensureStream(js nats.JetStreamContext, name, subject string) error {
	streamConfig := &nats.StreamConfig{
		Name:      name,
		Subjects:  []string{subject},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
		Replicas:  1,
		Discard:   nats.DiscardOld,
	}
	if _, err := js.StreamInfo(name); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("failed to look up stream: %w", err)
		}
		if _, err := js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		return nil
	}
	if _, err := js.UpdateStream(streamConfig); err != nil {
		return fmt.Errorf("failed to update stream: %w", err)
	}
	return nil
}

func (n *NATSNotifier) Notify(ctx context.Context, recipient, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return &NotificationFailure{Backend: BackendNATS, Recipient: recipient, Err: err}
	}
	data, err := json.Marshal(newNotification(recipient, subject, body))
	if err != nil {
		return &NotificationFailure{Backend: BackendNATS, Recipient: recipient, Err: fmt.Errorf("failed to marshal notification: %w", err)}
	}
	if _, err := n.js.Publish(n.subject, data, nats.Context(ctx)); err != nil {
		return &NotificationFailure{Backend: BackendNATS, Recipient: recipient, Err: fmt.Errorf("failed to publish: %w", err)}
	}
	n.logger.Debug("notification published", zap.String("recipient", recipient), zap.String("subject", n.subject))
	return nil
}

// Close drains the connection.
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
