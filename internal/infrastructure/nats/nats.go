package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/osAplet/webhook-proxy/internal/domain/event"
	"github.com/osAplet/webhook-proxy/internal/queue"
)

const (
	StreamName     = "WEBHOOKS"
	StreamSubjects = "webhooks.>"
)

// Client owns the NATS connection and the JetStream stream that backs the
// delivery queue when the broker is "nats".
type Client struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
}

func New(ctx context.Context, url string) (*Client, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{StreamSubjects},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn:   conn,
		js:     js,
		stream: stream,
	}, nil
}

// Enqueue publishes the event under a per-event-type subject.
func (c *Client) Enqueue(ctx context.Context, ev event.Event) error {
	data, err := event.Encode(ev)
	if err != nil {
		return err
	}

	subject := "webhooks." + ev.EventType
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("%w: %w", queue.ErrUnavailable, err)
	}
	return nil
}

func (c *Client) Close() error {
	c.conn.Close()
	return nil
}

type ConsumerConfig struct {
	Durable string
	// AckWait is the visibility timeout: an unacked message is redelivered
	// after this long, so a crashed worker cannot strand it.
	AckWait time.Duration
}

// NewConsumer binds a durable pull consumer to the stream.
func (c *Client) NewConsumer(ctx context.Context, cfg ConsumerConfig) (*Consumer, error) {
	cons, err := c.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:   cfg.Durable,
		AckPolicy: jetstream.AckExplicitPolicy,
		AckWait:   cfg.AckWait,
		// Redelivery is unbounded here; the forwarding worker enforces the
		// delivery ceiling so it can dead-letter instead of silently losing.
		MaxDeliver: -1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	return &Consumer{consumer: cons}, nil
}

// Consumer leases messages from the durable pull consumer.
type Consumer struct {
	consumer jetstream.Consumer
}

func (c *Consumer) Dequeue(ctx context.Context) (queue.Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := c.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			return nil, fmt.Errorf("fetch message: %w", err)
		}

		for msg := range batch.Messages() {
			ev, err := event.Decode(msg.Data())
			if err != nil {
				// A malformed envelope can never succeed; ack it away.
				slog.Error("dropping undecodable queue message",
					"subject", msg.Subject(),
					"error", err,
				)
				if err := msg.Ack(); err != nil {
					return nil, fmt.Errorf("ack undecodable message: %w", err)
				}
				continue
			}
			return &delivery{msg: msg, ev: ev}, nil
		}
	}
}

// Close is a no-op; the consumer lives on the shared connection owned by Client.
func (c *Consumer) Close() error {
	return nil
}

type delivery struct {
	msg jetstream.Msg
	ev  event.Event
}

func (d *delivery) Event() event.Event {
	return d.ev
}

func (d *delivery) Attempt() int {
	meta, err := d.msg.Metadata()
	if err != nil || meta == nil {
		return 1
	}
	return int(meta.NumDelivered)
}

func (d *delivery) Ack(_ context.Context) error {
	if err := d.msg.Ack(); err != nil {
		return fmt.Errorf("ack message: %w", err)
	}
	return nil
}

func (d *delivery) Nak(_ context.Context, delay time.Duration) error {
	if err := d.msg.NakWithDelay(delay); err != nil {
		return fmt.Errorf("nak message: %w", err)
	}
	return nil
}
