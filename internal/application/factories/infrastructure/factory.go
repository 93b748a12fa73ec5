package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pgxpool "github.com/jackc/pgx/v5/pgxpool"
	go_redis "github.com/redis/go-redis/v9"

	"github.com/osAplet/webhook-proxy/internal/config"
	"github.com/osAplet/webhook-proxy/internal/infrastructure/kafka"
	natsinfra "github.com/osAplet/webhook-proxy/internal/infrastructure/nats"
	"github.com/osAplet/webhook-proxy/internal/infrastructure/postgres"
	redisinfra "github.com/osAplet/webhook-proxy/internal/infrastructure/redis"
	"github.com/osAplet/webhook-proxy/internal/queue"
)

// Factory lazily builds shared infrastructure clients. Postgres and redis
// are optional: an empty host/addr yields (nil, nil) and callers run
// without that feature.
type Factory struct {
	cfg        *config.Config
	pgPool     *pgxpool.Pool
	redisCli   *go_redis.Client
	kafkaProd  *kafka.Producer
	natsClient *natsinfra.Client
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		cfg: cfg,
	}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.cfg.Postgres.Host == "" {
		return nil, nil
	}
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	var pool *pgxpool.Pool
	var err error

	// Retry connection up to 5 times
	for i := 0; i < 5; i++ {
		pool, err = postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
		})
		if err == nil {
			break
		}
		slog.Warn("failed to connect to postgres, retrying in 2s", "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to init postgres after retries: %w", err)
	}

	f.pgPool = pool
	return pool, nil
}

func (f *Factory) Redis(ctx context.Context) (*go_redis.Client, error) {
	if f.cfg.Redis.Addr == "" {
		return nil, nil
	}
	if f.redisCli != nil {
		return f.redisCli, nil
	}

	client, err := redisinfra.NewClient(ctx, redisinfra.Config{
		Addr: f.cfg.Redis.Addr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	f.redisCli = client
	return client, nil
}

// Enqueuer returns the producer side of the configured queue driver.
func (f *Factory) Enqueuer(ctx context.Context) (queue.Enqueuer, error) {
	switch f.cfg.Queue.Driver {
	case "kafka":
		return f.kafkaProducer(), nil
	case "nats":
		return f.nats(ctx)
	default:
		return nil, fmt.Errorf("unknown queue driver %q", f.cfg.Queue.Driver)
	}
}

// Consumer returns a fresh consumer on the configured queue driver. Each
// worker goroutine needs its own.
func (f *Factory) Consumer(ctx context.Context) (queue.Consumer, error) {
	switch f.cfg.Queue.Driver {
	case "kafka":
		return kafka.NewConsumer(f.kafkaConfig()), nil
	case "nats":
		client, err := f.nats(ctx)
		if err != nil {
			return nil, err
		}
		return client.NewConsumer(ctx, natsinfra.ConsumerConfig{
			Durable: f.cfg.NATS.Durable,
			AckWait: f.cfg.NATS.AckWait,
		})
	default:
		return nil, fmt.Errorf("unknown queue driver %q", f.cfg.Queue.Driver)
	}
}

func (f *Factory) kafkaConfig() kafka.Config {
	return kafka.Config{
		Brokers:     f.cfg.Kafka.Brokers,
		Topic:       f.cfg.Kafka.Topic,
		GroupID:     f.cfg.Kafka.GroupID,
		StartOffset: f.cfg.Kafka.StartOffset,
	}
}

func (f *Factory) kafkaProducer() *kafka.Producer {
	if f.kafkaProd == nil {
		f.kafkaProd = kafka.NewProducer(f.kafkaConfig())
	}
	return f.kafkaProd
}

func (f *Factory) nats(ctx context.Context) (*natsinfra.Client, error) {
	if f.natsClient != nil {
		return f.natsClient, nil
	}

	client, err := natsinfra.New(ctx, f.cfg.NATS.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to init nats: %w", err)
	}

	f.natsClient = client
	return client, nil
}

func (f *Factory) Close() {
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.redisCli != nil {
		f.redisCli.Close()
	}
	if f.kafkaProd != nil {
		f.kafkaProd.Close()
	}
	if f.natsClient != nil {
		f.natsClient.Close()
	}
}
