package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"freight/internal/queue"

	"github.com/segmentio/kafka-go"
)

// Consumer reads one message at a time from a consumer group. Offsets
// are committed only when the message is acked.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(cfg Config) *Consumer {
	// Without a committed group offset kafka-go starts at StartOffset.
	startOffset := kafka.FirstOffset
	if strings.EqualFold(strings.TrimSpace(cfg.StartOffset), "latest") {
		startOffset = kafka.LastOffset
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: false, // Force IPv4
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,    // Process immediately
		MaxBytes:    10e6, // 10MB
		MaxWait:     1 * time.Second,
		Dialer:      dialer,
		StartOffset: startOffset,
	})
	return &Consumer{reader: r}
}

func (c *Consumer) Receive(ctx context.Context) (queue.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if errors.Is(err, io.EOF) {
		return queue.Message{}, fmt.Errorf("%w: %w", queue.ErrClosed, err)
	}
	if err != nil {
		return queue.Message{}, err
	}
	return queue.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Ack: func(ctx context.Context) error {
			return c.reader.CommitMessages(ctx, msg)
		},
	}, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
