package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"freight/internal/queue"

	"github.com/rabbitmq/amqp091-go"
)

var ErrDeliveriesClosed = fmt.Errorf("rabbitmq delivery channel closed: %w", queue.ErrClosed)

type Config struct {
	URL         string
	Queue       string
	ConsumerTag string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("rabbitmq url is required")
	}
	if c.Queue == "" {
		return fmt.Errorf("rabbitmq queue is required")
	}
	return nil
}

type session struct {
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

func open(cfg Config) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := amqp091.Dial(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &session{conn: conn, ch: ch}, nil
}

func (s *session) close() error {
	return errors.Join(s.ch.Close(), s.conn.Close())
}

// Publisher sends persistent messages to a durable queue through the
// default exchange.
type Publisher struct {
	s     *session
	queue string
}

func NewPublisher(cfg Config) (*Publisher, error) {
	s, err := open(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.ch.Confirm(false); err != nil {
		s.close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &Publisher{s: s, queue: cfg.Queue}, nil
}

func (p *Publisher) Publish(ctx context.Context, key, value []byte) error {
	confirm, err := p.s.ch.PublishWithDeferredConfirmWithContext(ctx, "", p.queue, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		CorrelationId: string(key),
		Body:          value,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for publish confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("publish to %s: broker nacked message", p.queue)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.s.close()
}

// Consumer receives with a prefetch of one and manual acks, so the
// broker never hands this process a second job before the first is acked.
type Consumer struct {
	s          *session
	tag        string
	deliveries <-chan amqp091.Delivery
}

func NewConsumer(cfg Config) (*Consumer, error) {
	s, err := open(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.ch.Qos(1, 0, false); err != nil {
		s.close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	tag := cfg.ConsumerTag
	if tag == "" {
		tag = "shipment-notifier"
	}
	deliveries, err := s.ch.Consume(cfg.Queue, tag, false, false, false, false, nil)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("consume queue: %w", err)
	}
	return &Consumer{s: s, tag: tag, deliveries: deliveries}, nil
}

func (c *Consumer) Receive(ctx context.Context) (queue.Message, error) {
	select {
	case <-ctx.Done():
		return queue.Message{}, ctx.Err()
	case d, ok := <-c.deliveries:
		if !ok {
			return queue.Message{}, ErrDeliveriesClosed
		}
		return queue.Message{
			Key:   []byte(d.CorrelationId),
			Value: d.Body,
			Ack: func(context.Context) error {
				return d.Ack(false)
			},
		}, nil
	}
}

func (c *Consumer) Close() error {
	_ = c.s.ch.Cancel(c.tag, false)
	return c.s.close()
}
