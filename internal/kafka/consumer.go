package kafka

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer reads the given topics as part of groupID.
func NewConsumer(brokers []string, topics []string, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupTopics: topics,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Handler processes one message. A returned error is reported through
// onError and the message is still committed.
type Handler func(ctx context.Context, topic string, key, value []byte) error

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, handle Handler, onError func(error)) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			onError(err)
			continue
		}
		if err := handle(ctx, msg.Topic, msg.Key, msg.Value); err != nil {
			onError(err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
