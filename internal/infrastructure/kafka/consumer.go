package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/osAplet/webhook-proxy/internal/domain/event"
	"github.com/osAplet/webhook-proxy/internal/queue"
)

// Consumer leases one message at a time from a consumer group. A Nak parks
// the message in-process and the next Dequeue hands it back once its delay
// passes, so offsets are always committed in order within a partition.
// Not safe for concurrent use; run one Consumer per worker goroutine.
type Consumer struct {
	reader  *kafka.Reader
	pending *pendingDelivery
}

type pendingDelivery struct {
	msg       kafka.Message
	ev        event.Event
	attempt   int
	notBefore time.Time
}

func NewConsumer(cfg Config) *Consumer {
	startOffset := kafka.FirstOffset
	// When a consumer group has no committed offset yet, kafka-go uses
	// StartOffset. Supported: "earliest" (default), "latest".
	switch strings.ToLower(strings.TrimSpace(cfg.StartOffset)) {
	case "latest":
		startOffset = kafka.LastOffset
	case "earliest":
		startOffset = kafka.FirstOffset
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

func (c *Consumer) Dequeue(ctx context.Context) (queue.Delivery, error) {
	for {
		if p := c.pending; p != nil {
			if wait := time.Until(p.notBefore); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
			}
			c.pending = nil
			return &delivery{consumer: c, msg: p.msg, ev: p.ev, attempt: p.attempt}, nil
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch message: %w", err)
		}

		ev, err := event.Decode(msg.Value)
		if err != nil {
			// A malformed envelope can never succeed; commit it away.
			slog.Error("dropping undecodable queue message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return nil, fmt.Errorf("commit undecodable message: %w", err)
			}
			continue
		}

		return &delivery{consumer: c, msg: msg, ev: ev, attempt: 1}, nil
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

type delivery struct {
	consumer *Consumer
	msg      kafka.Message
	ev       event.Event
	attempt  int
}

func (d *delivery) Event() event.Event {
	return d.ev
}

func (d *delivery) Attempt() int {
	return d.attempt
}

func (d *delivery) Ack(ctx context.Context) error {
	if err := d.consumer.reader.CommitMessages(ctx, d.msg); err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

func (d *delivery) Nak(_ context.Context, delay time.Duration) error {
	d.consumer.pending = &pendingDelivery{
		msg:       d.msg,
		ev:        d.ev,
		attempt:   d.attempt + 1,
		notBefore: time.Now().Add(delay),
	}
	return nil
}
