package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/jordanhubbard/leadscore/internal/logging"
)

// DefaultTopic is the Kafka topic for reminders.
const DefaultTopic = "leadscore.notifications"

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// messageWriter is implemented by *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier writes one message per notification, keyed by recipient so a
// recipient's reminders stay ordered within a partition.
type KafkaNotifier struct {
	writer messageWriter
	logger *zap.Logger
}

func NewKafkaNotifier(cfg KafkaConfig, logger *zap.Logger) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka notifier requires at least one broker")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaNotifier{writer: w, logger: logging.OrNop(logger).Named("notify.kafka")}, nil
}

func (n *KafkaNotifier) Notify(ctx context.Context, recipient, subject, body string) error {
	data, err := json.Marshal(newNotification(recipient, subject, body))
	if err != nil {
		return &NotificationFailure{Backend: BackendKafka, Recipient: recipient, Err: fmt.Errorf("failed to marshal notification: %w", err)}
	}
	msg := kafka.Message{
		Key:   []byte(recipient),
		Value: data,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return &NotificationFailure{Backend: BackendKafka, Recipient: recipient, Err: fmt.Errorf("failed to write message: %w", err)}
	}
	n.logger.Debug("notification written", zap.String("recipient", recipient))
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
