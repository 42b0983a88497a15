package publisher

import (
	"context"
	"encoding/json"
	"time"

	"Cirkle/backend/go/internal/models"
	"Cirkle/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// EventPublisher writes JSON events to a single Kafka topic.
// Messages are keyed by group id so events for one group stay on one partition.
type EventPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

// NewEventPublisher creates a new EventPublisher.
func NewEventPublisher(brokers []string, topic string, log *logger.Logger) *EventPublisher {
	if log == nil {
		log = logger.Nop()
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	}
	return newEventPublisher(writer, log)
}

func newEventPublisher(writer *kafka.Writer, log *logger.Logger) *EventPublisher {
	return &EventPublisher{writer: writer, logger: log.WithField("topic", writer.Topic)}
}

// Topic returns the topic this publisher writes to.
func (p *EventPublisher) Topic() string {
	return p.writer.Topic
}

// Publish sends an event to the Kafka topic.
func (p *EventPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	msgBytes, err := json.Marshal(value)
	if err != nil {
		p.logger.WithError(models.NewErrorInfo(err, "encode_error")).Error("Failed to marshal event for Kafka")
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.WithError(models.NewErrorInfo(err, "kafka_error")).WithField("key", key).Error("Failed to write message to Kafka")
		return err
	}
	return nil
}

// Close flushes pending messages and closes the underlying writer.
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}
