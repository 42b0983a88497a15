package consumer

import (
	"context"
	"errors"
	"sync"
	"time"

	"Cirkle/backend/go/internal/models"
	"Cirkle/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

const fetchBackoff = time.Second

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// GroupViewConsumer consumes group viewed events and hands them to a handler.
type GroupViewConsumer struct {
	reader MessageReader
	logger *logger.Logger
	wg     sync.WaitGroup
}

// NewGroupViewConsumer creates a consumer reading topic as part of groupID.
func NewGroupViewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *GroupViewConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 1e6, // 1MB
	})
	return NewGroupViewConsumerWithReader(reader, log)
}

// NewGroupViewConsumerWithReader wraps an existing reader.
func NewGroupViewConsumerWithReader(reader MessageReader, log *logger.Logger) *GroupViewConsumer {
	if log == nil {
		log = logger.Nop()
	}
	return &GroupViewConsumer{reader: reader, logger: log}
}

// Start begins consuming messages in a background goroutine until ctx is done.
// Messages are committed after the handler returns, whether or not it failed;
// a failed reconcile is retried on the next view rather than redelivered.
func (c *GroupViewConsumer) Start(ctx context.Context, handler func(kafka.Message) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					c.logger.Info("Stopping group viewed consumer...")
					return
				}
				c.logger.WithError(models.NewErrorInfo(err, "kafka_error")).Error("Error fetching message from Kafka")
				select {
				case <-ctx.Done():
				case <-time.After(fetchBackoff):
				}
				continue
			}

			if err := handler(msg); err != nil {
				c.logger.WithError(models.NewErrorInfo(err, "handler_error")).WithPayload(map[string]interface{}{
					"topic":     msg.Topic,
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Error("Error handling Kafka message")
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				c.logger.WithError(models.NewErrorInfo(err, "kafka_error")).Error("Failed to commit Kafka message")
			}
		}
	}()
}

// Close waits for the consume loop to exit and closes the reader.
// Cancel the context passed to Start first.
func (c *GroupViewConsumer) Close() error {
	c.wg.Wait()
	return c.reader.Close()
}
