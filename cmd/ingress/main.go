package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/osAplet/webhook-proxy/internal/api"
	"github.com/osAplet/webhook-proxy/internal/application/factories/infrastructure"
	"github.com/osAplet/webhook-proxy/internal/config"
	"github.com/osAplet/webhook-proxy/internal/infrastructure/postgres"
	"github.com/osAplet/webhook-proxy/internal/usecase"
)

func main() {
	// Initialize structured JSON logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	secrets := cfg.Ingress.ProviderSecrets()
	configured := false
	for _, secret := range secrets {
		if secret != "" {
			configured = true
			break
		}
	}
	if !configured {
		logger.Error("no provider has a webhook secret configured, set WEBHOOK_SECRET")
		os.Exit(1)
	}

	infraFactory := infrastructure.NewFactory(cfg)
	defer infraFactory.Close()

	enqueuer, err := infraFactory.Enqueuer(ctx)
	if err != nil {
		logger.Error("failed to init queue producer", "error", err)
		os.Exit(1)
	}

	ingestUC := usecase.NewIngestEvent(secrets, enqueuer)

	// Dead letter admin routes appear only when postgres is configured.
	var listUC *usecase.ListDeadLetters
	var redriveUC *usecase.RedriveDeadLetter

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pgPool != nil {
		deadRepo := postgres.NewDeadLetterRepository(pgPool)
		if err := deadRepo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure dead letter schema", "error", err)
			os.Exit(1)
		}
		listUC = usecase.NewListDeadLetters(deadRepo)
		redriveUC = usecase.NewRedriveDeadLetter(deadRepo, enqueuer)
	}

	handlers := api.NewHandlers(ingestUC, listUC, redriveUC)
	apiHandler := api.NewRouter(handlers, cfg.Ingress.MaxBodyBytes)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: apiHandler,
	}

	go func() {
		logger.Info("Ingress starting", "port", cfg.HTTP.Port, "queue_driver", cfg.Queue.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("Server exiting")
}
