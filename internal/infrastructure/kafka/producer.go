package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/osAplet/webhook-proxy/internal/domain/event"
	"github.com/osAplet/webhook-proxy/internal/queue"
)

type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	StartOffset string
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg Config) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            5,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &Producer{writer: w}
}

// Enqueue appends the event keyed by event type, so the hash balancer keeps
// every event type on one partition and deliveries stay ordered within it.
func (p *Producer) Enqueue(ctx context.Context, ev event.Event) error {
	value, err := event.Encode(ev)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(ev.EventType),
			Value: value,
		},
	)
	if err != nil {
		return fmt.Errorf("%w: %w", queue.ErrUnavailable, err)
	}
	return nil
}

func (p *Producer) Topic() string {
	return p.writer.Topic
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
