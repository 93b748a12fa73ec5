package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeliveryMarks remembers which event IDs already reached the target, so a
// redelivered duplicate can be acked without a second forward. Marks are
// written only after a confirmed delivery; losing redis degrades the system
// back to plain at-least-once, it never blocks a delivery.
type DeliveryMarks struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeliveryMarks(client *redis.Client, ttl time.Duration) *DeliveryMarks {
	return &DeliveryMarks{
		client: client,
		ttl:    ttl,
	}
}

// Seen reports whether the event was already delivered.
func (m *DeliveryMarks) Seen(ctx context.Context, eventID string) (bool, error) {
	err := m.client.Get(ctx, markKey(eventID)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get delivery mark: %w", err)
	}
	return true, nil
}

// Mark records a confirmed delivery.
func (m *DeliveryMarks) Mark(ctx context.Context, eventID string) error {
	if err := m.client.Set(ctx, markKey(eventID), "delivered", m.ttl).Err(); err != nil {
		return fmt.Errorf("set delivery mark: %w", err)
	}
	return nil
}

func markKey(eventID string) string {
	return fmt.Sprintf("delivered:%s", eventID)
}
