// Package notify delivers agent reminders. Delivery is abstract: the lifecycle
// scheduler only sees Notifier, and the concrete backend is picked by config.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jordanhubbard/leadscore/internal/logging"
)

// Backend names accepted in configuration.
const (
	BackendLog   = "log"
	BackendNATS  = "nats"
	BackendKafka = "kafka"
)

// Notifier sends one message to one recipient.
type Notifier interface {
	Notify(ctx context.Context, recipient, subject, body string) error
}

// NotificationFailure wraps a delivery error with the recipient and backend.
type NotificationFailure struct {
	Backend   string
	Recipient string
	Err       error
}

func (e *NotificationFailure) Error() string {
	return fmt.Sprintf("failed to notify %s via %s: %v", e.Recipient, e.Backend, e.Err)
}

func (e *NotificationFailure) Unwrap() error { return e.Err }

// Notification is the wire payload published by the bus backends.
type Notification struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func newNotification(recipient, subject, body string) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
}

// LogNotifier writes notifications to the log. It is the default backend
// for local runs.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logging.OrNop(logger).Named("notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, recipient, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return &NotificationFailure{Backend: BackendLog, Recipient: recipient, Err: err}
	}
	if recipient == "" {
		return &NotificationFailure{Backend: BackendLog, Recipient: recipient, Err: fmt.Errorf("empty recipient")}
	}
	n.logger.Info("notification",
		zap.String("recipient", recipient),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*NATSNotifier)(nil)
	_ Notifier = (*KafkaNotifier)(nil)
)
