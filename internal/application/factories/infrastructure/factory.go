package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"freight/internal/config"
	"freight/internal/infrastructure/kafka"
	"freight/internal/infrastructure/postgres"
	"freight/internal/infrastructure/rabbitmq"
	"freight/internal/infrastructure/redis"
	"freight/internal/queue"

	pgxpool "github.com/jackc/pgx/v5/pgxpool"
	go_redis "github.com/redis/go-redis/v9"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// Factory builds and caches the clients a process needs and closes them
// in one place.
type Factory struct {
	cfg        *config.Config
	logger     *slog.Logger
	pgPool     *pgxpool.Pool
	redisCli   *go_redis.Client
	publisher  queue.Publisher
	subscriber queue.Subscriber
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	pool, err := retry(ctx, f.logger, "postgres", func() (*pgxpool.Pool, error) {
		return postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
			MaxConns: f.cfg.Postgres.MaxConns,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init postgres after retries: %w", err)
	}

	f.pgPool = pool
	return pool, nil
}

func (f *Factory) Redis(ctx context.Context) (*go_redis.Client, error) {
	if f.redisCli != nil {
		return f.redisCli, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr:     f.cfg.Redis.Addr,
		Password: f.cfg.Redis.Password,
		DB:       f.cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	f.redisCli = client
	return client, nil
}

// QueuePublisher returns the job queue producer for the configured driver.
func (f *Factory) QueuePublisher(ctx context.Context) (queue.Publisher, error) {
	if f.publisher != nil {
		return f.publisher, nil
	}

	switch f.cfg.Queue.Driver {
	case "kafka":
		f.publisher = kafka.NewProducer(f.kafkaConfig())
	case "rabbitmq":
		p, err := retry(ctx, f.logger, "rabbitmq", func() (*rabbitmq.Publisher, error) {
			return rabbitmq.NewPublisher(f.rabbitConfig())
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init rabbitmq publisher: %w", err)
		}
		f.publisher = p
	default:
		return nil, fmt.Errorf("unknown queue driver %q", f.cfg.Queue.Driver)
	}
	return f.publisher, nil
}

// QueueSubscriber returns the job queue reader for the configured driver.
func (f *Factory) QueueSubscriber(ctx context.Context) (queue.Subscriber, error) {
	if f.subscriber != nil {
		return f.subscriber, nil
	}

	switch f.cfg.Queue.Driver {
	case "kafka":
		f.subscriber = kafka.NewConsumer(f.kafkaConfig())
	case "rabbitmq":
		c, err := retry(ctx, f.logger, "rabbitmq", func() (*rabbitmq.Consumer, error) {
			return rabbitmq.NewConsumer(f.rabbitConfig())
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init rabbitmq consumer: %w", err)
		}
		f.subscriber = c
	default:
		return nil, fmt.Errorf("unknown queue driver %q", f.cfg.Queue.Driver)
	}
	return f.subscriber, nil
}

// QueueTarget names the topic or queue jobs go to, for logging.
func (f *Factory) QueueTarget() string {
	if f.cfg.Queue.Driver == "rabbitmq" {
		return f.cfg.RabbitMQ.Queue
	}
	return f.cfg.Kafka.Topic
}

func (f *Factory) kafkaConfig() kafka.Config {
	return kafka.Config{
		Brokers:     f.cfg.Kafka.Brokers,
		Topic:       f.cfg.Kafka.Topic,
		GroupID:     f.cfg.Kafka.GroupID,
		StartOffset: f.cfg.Kafka.StartOffset,
	}
}

func (f *Factory) rabbitConfig() rabbitmq.Config {
	return rabbitmq.Config{
		URL:         f.cfg.RabbitMQ.URL,
		Queue:       f.cfg.RabbitMQ.Queue,
		ConsumerTag: f.cfg.Notifier.Name,
	}
}

func (f *Factory) Close() {
	if f.subscriber != nil {
		if err := f.subscriber.Close(); err != nil {
			f.logger.Warn("close queue subscriber", "error", err)
		}
	}
	if f.publisher != nil {
		if err := f.publisher.Close(); err != nil {
			f.logger.Warn("close queue publisher", "error", err)
		}
	}
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.redisCli != nil {
		f.redisCli.Close()
	}
}

func retry[T any](ctx context.Context, logger *slog.Logger, name string, connect func() (T, error)) (T, error) {
	var (
		client T
		err    error
	)
	for i := 0; i < connectAttempts; i++ {
		client, err = connect()
		if err == nil {
			return client, nil
		}
		logger.Warn("connection failed, retrying",
			"target", name, "attempt", i+1, "max_attempts", connectAttempts, "error", err)

		select {
		case <-ctx.Done():
			return client, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
	return client, err
}
