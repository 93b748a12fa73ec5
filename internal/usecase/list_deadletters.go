package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/osAplet/webhook-proxy/internal/domain/deadletter"
)

type DeadLetterDTO struct {
	ID         string    `json:"id"`
	EventType  string    `json:"event_type"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
	DeadAt     time.Time `json:"dead_at"`
}

type ListDeadLetters struct {
	repo deadletter.Repository
}

func NewListDeadLetters(repo deadletter.Repository) *ListDeadLetters {
	return &ListDeadLetters{repo: repo}
}

func (uc *ListDeadLetters) Execute(ctx context.Context, limit int) ([]DeadLetterDTO, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	records, err := uc.repo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	dtos := make([]DeadLetterDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, DeadLetterDTO{
			ID:         rec.ID,
			EventType:  rec.EventType,
			Attempts:   rec.Attempts,
			LastError:  rec.LastError,
			Status:     rec.Status,
			ReceivedAt: rec.ReceivedAt,
			DeadAt:     rec.DeadAt,
		})
	}

	return dtos, nil
}
