package deadletter

import (
	"context"
	"errors"
	"time"
)

const (
	StatusDead     = "dead"
	StatusRedriven = "redriven"
)

// ErrNotFound is returned when no dead record matches the requested id.
var ErrNotFound = errors.New("dead letter not found")

// Record is an event that exhausted its delivery attempts. The raw body and
// original signature are kept so the event can be re-enqueued unchanged.
type Record struct {
	ID         string    `json:"id"`
	EventType  string    `json:"event_type"`
	Body       []byte    `json:"body"`
	Signature  string    `json:"signature"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
	DeadAt     time.Time `json:"dead_at"`
}

type Repository interface {
	Create(ctx context.Context, rec *Record) error
	List(ctx context.Context, limit int) ([]*Record, error)
	ClaimForRedrive(ctx context.Context, id string) (*Record, error)
	Release(ctx context.Context, id string) error
}
