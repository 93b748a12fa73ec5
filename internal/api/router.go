package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osAplet/webhook-proxy/internal/api/middleware"
)

func NewRouter(h *Handlers, maxBodyBytes int64) http.Handler {
	r := chi.NewRouter()

	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)
	r.Use(ChiMiddleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.With(middleware.MaxBytes(maxBodyBytes)).Post("/webhook/{provider}", h.IngestWebhook)

	if h.adminEnabled() {
		r.Get("/admin/deadletters", h.ListDeadLetters)
		r.Post("/admin/deadletters/{id}/redrive", h.RedriveDeadLetter)
	}

	r.Handle("/metrics", promhttp.Handler())

	slog.Info("routes registered",
		"ingress", "POST /webhook/{provider}",
		"admin_enabled", h.adminEnabled(),
	)

	return r
}
