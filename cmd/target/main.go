package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osAplet/webhook-proxy/internal/config"
	"github.com/osAplet/webhook-proxy/internal/signature"
)

// Sample downstream service. It verifies the re-signed forwards the worker
// sends and logs them, which makes it a convenient end of a local pipeline.

var eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "target_events_received_total",
	Help: "Verified webhook forwards accepted by the sample target",
}, []string{"event_type"})

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	r := chi.NewRouter()
	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Post("/webhook", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, "unreadable body", http.StatusBadRequest)
			return
		}

		sig := req.Header.Get("X-Hub-Signature-256")
		if !signature.Verify(body, sig, cfg.Target.Secret) {
			logger.Warn("rejected forward with bad signature",
				"delivery", req.Header.Get("X-Webhook-Delivery"),
			)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		eventType := req.Header.Get("X-GitHub-Event")
		eventsReceived.WithLabelValues(eventType).Inc()
		logger.Info("webhook received",
			"event_type", eventType,
			"delivery", req.Header.Get("X-Webhook-Delivery"),
			"bytes", len(body),
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"received"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    ":" + cfg.Target.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Sample target starting", "port", cfg.Target.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down target...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("Target exiting")
}
