package usecase

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/osAplet/webhook-proxy/internal/domain/event"
	"github.com/osAplet/webhook-proxy/internal/queue"
	"github.com/osAplet/webhook-proxy/internal/signature"
)

type mockEnqueuer struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (m *mockEnqueuer) Enqueue(_ context.Context, ev event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockEnqueuer) enqueued() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Event(nil), m.events...)
}

const testSecret = "ingest-secret"

func newIngest(enq queue.Enqueuer) *IngestEvent {
	return NewIngestEvent(map[string]string{"github": testSecret}, enq)
}

func TestIngestEnqueuesVerifiedEvent(t *testing.T) {
	enq := &mockEnqueuer{}
	uc := newIngest(enq)

	body := []byte(`{"action":"opened","number":7}`)
	id, err := uc.Execute(context.Background(), IngestEventParams{
		Provider:   "github",
		EventType:  "pull_request",
		DeliveryID: "delivery-123",
		Signature:  signature.Sign(body, testSecret),
		Body:       body,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if id != "delivery-123" {
		t.Errorf("expected provider delivery id, got %q", id)
	}

	events := enq.enqueued()
	if len(events) != 1 {
		t.Fatalf("expected 1 enqueued event, got %d", len(events))
	}
	ev := events[0]
	if ev.EventType != "pull_request" {
		t.Errorf("expected event type pull_request, got %q", ev.EventType)
	}
	if !bytes.Equal(ev.Body, body) {
		t.Errorf("body changed in transit: %q", ev.Body)
	}
	if ev.ReceivedAt.IsZero() {
		t.Error("expected received_at to be set")
	}
}

func TestIngestRejectsUnknownProvider(t *testing.T) {
	enq := &mockEnqueuer{}
	uc := newIngest(enq)

	body := []byte(`{}`)
	_, err := uc.Execute(context.Background(), IngestEventParams{
		Provider:  "gitlab",
		Signature: signature.Sign(body, testSecret),
		Body:      body,
	})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if len(enq.enqueued()) != 0 {
		t.Error("rejected request must not be enqueued")
	}
}

func TestIngestRejectsMissingSignature(t *testing.T) {
	enq := &mockEnqueuer{}
	uc := newIngest(enq)

	_, err := uc.Execute(context.Background(), IngestEventParams{
		Provider: "github",
		Body:     []byte(`{}`),
	})
	if !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
	if len(enq.enqueued()) != 0 {
		t.Error("rejected request must not be enqueued")
	}
}

func TestIngestRejectsInvalidSignature(t *testing.T) {
	enq := &mockEnqueuer{}
	uc := newIngest(enq)

	body := []byte(`{"action":"opened"}`)
	_, err := uc.Execute(context.Background(), IngestEventParams{
		Provider:  "github",
		Signature: signature.Sign(body, "other-secret"),
		Body:      body,
	})
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if len(enq.enqueued()) != 0 {
		t.Error("rejected request must not be enqueued")
	}
}

func TestIngestRejectsInvalidJSON(t *testing.T) {
	enq := &mockEnqueuer{}
	uc := newIngest(enq)

	body := []byte(`{"action":`) // signed, but not JSON
	_, err := uc.Execute(context.Background(), IngestEventParams{
		Provider:  "github",
		Signature: signature.Sign(body, testSecret),
		Body:      body,
	})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if len(enq.enqueued()) != 0 {
		t.Error("rejected request must not be enqueued")
	}
}

func TestIngestPropagatesQueueUnavailable(t *testing.T) {
	enq := &mockEnqueuer{err: queue.ErrUnavailable}
	uc := newIngest(enq)

	body := []byte(`{}`)
	_, err := uc.Execute(context.Background(), IngestEventParams{
		Provider:  "github",
		Signature: signature.Sign(body, testSecret),
		Body:      body,
	})
	if !errors.Is(err, queue.ErrUnavailable) {
		t.Fatalf("expected queue.ErrUnavailable, got %v", err)
	}
}

func TestIngestGeneratesIDAndDefaultsEventType(t *testing.T) {
	enq := &mockEnqueuer{}
	uc := newIngest(enq)

	body := []byte(`{}`)
	id, err := uc.Execute(context.Background(), IngestEventParams{
		Provider:  "github",
		Signature: signature.Sign(body, testSecret),
		Body:      body,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if id == "" {
		t.Error("expected a generated event id")
	}

	events := enq.enqueued()
	if len(events) != 1 {
		t.Fatalf("expected 1 enqueued event, got %d", len(events))
	}
	if events[0].EventType != "unknown" {
		t.Errorf("expected event type to default to unknown, got %q", events[0].EventType)
	}
}
