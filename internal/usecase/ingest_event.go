package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/osAplet/webhook-proxy/internal/domain/event"
	"github.com/osAplet/webhook-proxy/internal/queue"
	"github.com/osAplet/webhook-proxy/internal/signature"
)

var (
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrMissingSignature = errors.New("missing signature header")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidPayload   = errors.New("invalid json payload")
)

type IngestEvent struct {
	secrets  map[string]string // provider name -> shared HMAC secret
	enqueuer queue.Enqueuer
}

func NewIngestEvent(secrets map[string]string, enqueuer queue.Enqueuer) *IngestEvent {
	return &IngestEvent{
		secrets:  secrets,
		enqueuer: enqueuer,
	}
}

type IngestEventParams struct {
	Provider   string
	EventType  string
	DeliveryID string
	Signature  string
	Body       []byte
}

// Execute authenticates an incoming webhook and enqueues it for delivery.
// The signature is checked before the body is parsed, so unauthenticated
// callers learn nothing about payload handling.
func (uc *IngestEvent) Execute(ctx context.Context, params IngestEventParams) (string, error) {
	secret, ok := uc.secrets[params.Provider]
	if !ok {
		return "", ErrUnknownProvider
	}

	if params.Signature == "" {
		return "", ErrMissingSignature
	}
	if !signature.Verify(params.Body, params.Signature, secret) {
		return "", ErrInvalidSignature
	}
	if !json.Valid(params.Body) {
		return "", ErrInvalidPayload
	}

	eventType := params.EventType
	if eventType == "" {
		eventType = "unknown"
	}

	id := params.DeliveryID
	if id == "" {
		id = uuid.New().String()
	}

	ev := event.Event{
		ID:         id,
		EventType:  eventType,
		ReceivedAt: time.Now().UTC(),
		Body:       params.Body,
		Signature:  params.Signature,
	}

	if err := uc.enqueuer.Enqueue(ctx, ev); err != nil {
		return "", fmt.Errorf("enqueue event: %w", err)
	}

	return ev.ID, nil
}
