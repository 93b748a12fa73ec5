package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osAplet/webhook-proxy/internal/application/factories/infrastructure"
	"github.com/osAplet/webhook-proxy/internal/breaker"
	"github.com/osAplet/webhook-proxy/internal/config"
	"github.com/osAplet/webhook-proxy/internal/domain/deadletter"
	"github.com/osAplet/webhook-proxy/internal/forwarder"
	"github.com/osAplet/webhook-proxy/internal/infrastructure/postgres"
	redisinfra "github.com/osAplet/webhook-proxy/internal/infrastructure/redis"
	"github.com/osAplet/webhook-proxy/internal/retry"
	"github.com/osAplet/webhook-proxy/internal/worker"
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

	// Metrics Server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Worker metrics listening", "port", cfg.Worker.MetricsPort)
		http.ListenAndServe(":"+cfg.Worker.MetricsPort, mux)
	}()

	infraFactory := infrastructure.NewFactory(cfg)
	defer infraFactory.Close()

	// Optional delivery deduplication marks
	var marks worker.DeliveryMarks
	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		marks = redisinfra.NewDeliveryMarks(redisClient, cfg.Redis.MarkTTL)
	}

	// Optional dead letter store
	var deadRepo deadletter.Repository
	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pgPool != nil {
		repo := postgres.NewDeadLetterRepository(pgPool)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure dead letter schema", "error", err)
			os.Exit(1)
		}
		deadRepo = repo
	}

	// One breaker guards the single target for every worker goroutine.
	brk := breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		CoolDown:         cfg.Breaker.CoolDown,
	})

	backoff := &retry.Backoff{
		BaseDelay: cfg.Retry.BaseDelay,
		MaxDelay:  cfg.Retry.MaxDelay,
		Factor:    cfg.Retry.Factor,
		Jitter:    cfg.Retry.Jitter,
	}

	fwd := forwarder.New(cfg.Target.URL, cfg.Target.Secret, cfg.Target.Timeout)

	workerCfg := worker.Config{
		MaxDeliveries:  cfg.Retry.MaxDeliveries,
		OpenRetryDelay: cfg.Breaker.CoolDown,
	}

	logger.Info("Forwarding workers starting",
		"count", cfg.Worker.Count,
		"target", cfg.Target.URL,
		"queue_driver", cfg.Queue.Driver,
		"dedupe", marks != nil,
		"dead_letter_store", deadRepo != nil,
	)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Count; i++ {
		consumer, err := infraFactory.Consumer(ctx)
		if err != nil {
			logger.Error("failed to init queue consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		w := worker.New(consumer, fwd, brk, backoff, marks, deadRepo, workerCfg)

		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			logger.Info("worker started", "worker", id)
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("worker stopped with error", "worker", id, "error", err)
			}
		}(i)
	}

	wg.Wait()
	logger.Info("workers exited")
}
