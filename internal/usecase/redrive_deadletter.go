package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/osAplet/webhook-proxy/internal/domain/deadletter"
	"github.com/osAplet/webhook-proxy/internal/domain/event"
	"github.com/osAplet/webhook-proxy/internal/queue"
)

type RedriveDeadLetter struct {
	repo     deadletter.Repository
	enqueuer queue.Enqueuer
}

func NewRedriveDeadLetter(repo deadletter.Repository, enqueuer queue.Enqueuer) *RedriveDeadLetter {
	return &RedriveDeadLetter{
		repo:     repo,
		enqueuer: enqueuer,
	}
}

// Execute puts a dead event back on the delivery queue with a fresh run of
// delivery attempts. The record is claimed first so concurrent redrives of
// the same id enqueue it once.
func (uc *RedriveDeadLetter) Execute(ctx context.Context, id string) error {
	rec, err := uc.repo.ClaimForRedrive(ctx, id)
	if err != nil {
		return err
	}

	ev := event.Event{
		ID:         rec.ID,
		EventType:  rec.EventType,
		ReceivedAt: rec.ReceivedAt,
		Body:       rec.Body,
		Signature:  rec.Signature,
	}

	if err := uc.enqueuer.Enqueue(ctx, ev); err != nil {
		// Put the claim back so the record is not stranded as redriven.
		if rerr := uc.repo.Release(ctx, id); rerr != nil {
			return errors.Join(fmt.Errorf("re-enqueue dead letter: %w", err), rerr)
		}
		return fmt.Errorf("re-enqueue dead letter: %w", err)
	}

	return nil
}
