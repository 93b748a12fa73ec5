package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/osAplet/webhook-proxy/internal/domain/deadletter"
	"github.com/osAplet/webhook-proxy/internal/queue"
	"github.com/osAplet/webhook-proxy/internal/usecase"
)

var webhookSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "webhook_submissions_total",
	Help: "Webhook submissions received at the ingress, by outcome and event type",
}, []string{"status", "event_type"})

const (
	headerEvent      = "X-GitHub-Event"
	headerDelivery   = "X-GitHub-Delivery"
	headerSignature  = "X-Hub-Signature-256"
	defaultEventType = "unknown"
)

type Handlers struct {
	ingestUC  *usecase.IngestEvent
	listUC    *usecase.ListDeadLetters
	redriveUC *usecase.RedriveDeadLetter
}

// NewHandlers wires the ingress handlers. listUC and redriveUC may be nil
// when no dead letter store is configured; admin routes are skipped then.
func NewHandlers(ingestUC *usecase.IngestEvent, listUC *usecase.ListDeadLetters, redriveUC *usecase.RedriveDeadLetter) *Handlers {
	return &Handlers{
		ingestUC:  ingestUC,
		listUC:    listUC,
		redriveUC: redriveUC,
	}
}

func (h *Handlers) adminEnabled() bool {
	return h.listUC != nil && h.redriveUC != nil
}

func (h *Handlers) IngestWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	eventType := r.Header.Get(headerEvent)
	if eventType == "" {
		eventType = defaultEventType
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			webhookSubmissions.WithLabelValues("too_large", eventType).Inc()
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	id, err := h.ingestUC.Execute(r.Context(), usecase.IngestEventParams{
		Provider:   provider,
		EventType:  eventType,
		DeliveryID: r.Header.Get(headerDelivery),
		Signature:  r.Header.Get(headerSignature),
		Body:       body,
	})

	switch {
	case err == nil:
		webhookSubmissions.WithLabelValues("accepted", eventType).Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "queued", "id": id})

	case errors.Is(err, usecase.ErrUnknownProvider):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown provider"})

	case errors.Is(err, usecase.ErrMissingSignature):
		webhookSubmissions.WithLabelValues("missing_signature", eventType).Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing signature header"})

	case errors.Is(err, usecase.ErrInvalidSignature):
		webhookSubmissions.WithLabelValues("invalid_signature", eventType).Inc()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})

	case errors.Is(err, usecase.ErrInvalidPayload):
		webhookSubmissions.WithLabelValues("invalid_json", eventType).Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json payload"})

	case errors.Is(err, queue.ErrUnavailable):
		webhookSubmissions.WithLabelValues("queue_error", eventType).Inc()
		slog.Error("failed to enqueue webhook", "provider", provider, "event_type", eventType, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "delivery queue unavailable"})

	default:
		slog.Error("webhook ingestion failed", "provider", provider, "event_type", eventType, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handlers) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	records, err := h.listUC.Execute(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list dead letters", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"dead_letters": records})
}

func (h *Handlers) RedriveDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing dead letter id"})
		return
	}

	err := h.redriveUC.Execute(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "requeued", "id": id})

	case errors.Is(err, deadletter.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "dead letter not found"})

	case errors.Is(err, queue.ErrUnavailable):
		slog.Error("failed to requeue dead letter", "id", id, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "delivery queue unavailable"})

	default:
		slog.Error("redrive failed", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
