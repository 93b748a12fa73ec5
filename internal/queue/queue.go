package queue

import (
	"context"
	"errors"
	"time"

	"github.com/osAplet/webhook-proxy/internal/domain/event"
)

// ErrUnavailable wraps enqueue failures so HTTP handlers can map them to a
// retryable status without knowing which broker is behind the queue.
var ErrUnavailable = errors.New("delivery queue unavailable")

// Enqueuer appends verified events to the delivery queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev event.Event) error
}

// Delivery is one leased message. The lease must end in exactly one of
// Ack (done, never redeliver) or Nak (release for redelivery after delay).
// A consumer that crashes without deciding gets the message back later,
// so handlers must tolerate duplicates.
type Delivery interface {
	Event() event.Event
	// Attempt reports how many times this message has been delivered,
	// including the current lease. Starts at 1.
	Attempt() int
	Ack(ctx context.Context) error
	Nak(ctx context.Context, delay time.Duration) error
}

// Consumer leases messages one at a time. Dequeue blocks until a message is
// available or ctx is done. Not safe for concurrent use; run one consumer
// per worker goroutine.
type Consumer interface {
	Dequeue(ctx context.Context) (Delivery, error)
	Close() error
}
