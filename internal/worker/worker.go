package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/osAplet/webhook-proxy/internal/breaker"
	"github.com/osAplet/webhook-proxy/internal/domain/deadletter"
	"github.com/osAplet/webhook-proxy/internal/domain/event"
	"github.com/osAplet/webhook-proxy/internal/forwarder"
	"github.com/osAplet/webhook-proxy/internal/queue"
	"github.com/osAplet/webhook-proxy/internal/retry"
)

// DeliveryMarks records which event ids already reached the target, so
// queue redeliveries of a delivered event are acked without a forward.
type DeliveryMarks interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

var webhookForwards = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "webhook_forwards_total",
	Help: "Forwarding attempts resolved by the worker, by outcome and event type",
}, []string{"status", "event_type"})

type Config struct {
	// MaxDeliveries is how many delivery attempts an event gets before it
	// is dead-lettered. The ceiling is checked only after a failed
	// forward; a breaker rejection alone never drops an event.
	MaxDeliveries int
	// OpenRetryDelay is how long a delivery is parked when the breaker
	// rejects it. Roughly the breaker cool-down, so the redelivery lands
	// after the probe window opens.
	OpenRetryDelay time.Duration
}

// Worker drains one queue consumer: dequeue, gate on the breaker, forward,
// then ack, redeliver or dead-letter.
type Worker struct {
	consumer    queue.Consumer
	forwarder   *forwarder.Client
	breaker     *breaker.CircuitBreaker
	backoff     *retry.Backoff
	marks       DeliveryMarks // optional; nil disables duplicate skips
	deadLetters deadletter.Repository
	cfg         Config
}

func New(
	consumer queue.Consumer,
	fwd *forwarder.Client,
	brk *breaker.CircuitBreaker,
	backoff *retry.Backoff,
	marks DeliveryMarks,
	deadLetters deadletter.Repository,
	cfg Config,
) *Worker {
	return &Worker{
		consumer:    consumer,
		forwarder:   fwd,
		breaker:     brk,
		backoff:     backoff,
		marks:       marks,
		deadLetters: deadLetters,
		cfg:         cfg,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		d, err := w.consumer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("failed to dequeue", "error", err)
			time.Sleep(1 * time.Second)
			continue
		}

		w.process(ctx, d)
	}
}

func (w *Worker) process(ctx context.Context, d queue.Delivery) {
	ev := d.Event()

	if w.marks != nil {
		seen, err := w.marks.Seen(ctx, ev.ID)
		if err != nil {
			// A mark store outage only costs the duplicate skip.
			slog.Warn("delivery mark lookup failed", "event_id", ev.ID, "error", err)
		} else if seen {
			webhookForwards.WithLabelValues("duplicate", ev.EventType).Inc()
			slog.Info("skipping already delivered event", "event_id", ev.ID, "attempt", d.Attempt())
			w.ack(ctx, d)
			return
		}
	}

	if err := w.breaker.Allow(); err != nil {
		// Not a delivery failure; the drop ceiling applies only to
		// forwards that actually ran.
		webhookForwards.WithLabelValues("breaker_open", ev.EventType).Inc()
		slog.Warn("breaker open, delaying delivery",
			"event_id", ev.ID,
			"event_type", ev.EventType,
			"attempt", d.Attempt(),
		)
		w.nak(ctx, d, w.cfg.OpenRetryDelay)
		return
	}

	resp, err := w.forwarder.Forward(ctx, ev)
	if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		w.breaker.RecordSuccess()
		webhookForwards.WithLabelValues("delivered", ev.EventType).Inc()
		slog.Info("event delivered",
			"event_id", ev.ID,
			"event_type", ev.EventType,
			"attempt", d.Attempt(),
			"status_code", resp.StatusCode,
		)

		if w.marks != nil {
			if err := w.marks.Mark(ctx, ev.ID); err != nil {
				slog.Warn("failed to write delivery mark", "event_id", ev.ID, "error", err)
			}
		}

		w.ack(ctx, d)
		return
	}

	w.breaker.RecordFailure()
	webhookForwards.WithLabelValues("failed", ev.EventType).Inc()

	reason := failureReason(resp, err)
	slog.Error("delivery failed",
		"event_id", ev.ID,
		"event_type", ev.EventType,
		"attempt", d.Attempt(),
		"reason", reason,
	)

	if d.Attempt() >= w.cfg.MaxDeliveries {
		w.deadLetter(ctx, ev, d.Attempt(), reason)
		webhookForwards.WithLabelValues("dropped", ev.EventType).Inc()
		slog.Error("dropping event after max deliveries",
			"event_id", ev.ID,
			"event_type", ev.EventType,
			"deliveries", d.Attempt(),
		)
		w.ack(ctx, d)
		return
	}

	w.nak(ctx, d, w.backoff.NextDelay(d.Attempt()))
}

func (w *Worker) deadLetter(ctx context.Context, ev event.Event, attempts int, reason string) {
	if w.deadLetters == nil {
		return
	}

	rec := &deadletter.Record{
		ID:         ev.ID,
		EventType:  ev.EventType,
		Body:       ev.Body,
		Signature:  ev.Signature,
		Attempts:   attempts,
		LastError:  reason,
		Status:     deadletter.StatusDead,
		ReceivedAt: ev.ReceivedAt,
	}
	if err := w.deadLetters.Create(ctx, rec); err != nil {
		slog.Error("failed to record dead letter", "event_id", ev.ID, "error", err)
	}
}

func (w *Worker) ack(ctx context.Context, d queue.Delivery) {
	if err := d.Ack(ctx); err != nil {
		slog.Error("failed to ack delivery", "event_id", d.Event().ID, "error", err)
	}
}

func (w *Worker) nak(ctx context.Context, d queue.Delivery, delay time.Duration) {
	if err := d.Nak(ctx, delay); err != nil {
		slog.Error("failed to nak delivery", "event_id", d.Event().ID, "error", err)
	}
}

func failureReason(resp *forwarder.Response, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("target returned %d", resp.StatusCode)
}
