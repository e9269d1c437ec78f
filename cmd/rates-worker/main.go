package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	amqpclient "moneta/internal/amqp"
	"moneta/internal/config"
	"moneta/internal/log"
	"moneta/internal/rates"
	"moneta/internal/storage"
	"moneta/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	log.SetDefault(logger)

	logger.Info("Starting rates-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// NewSQLiteRepository runs migrations on open.
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	fetcher := rates.NewClient(cfg.RateAPIBaseURL, "frankfurter")

	// The worker binary runs without an in-process resolver, so there is no
	// cache to invalidate after an upsert.
	w := worker.NewRatesWorker(repo, fetcher, nil, cfg.RateRefreshInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// AMQP consumption is optional; the periodic refresh alone keeps stored
	// pairs fresh.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqpclient.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, refresh requests will not be consumed", "error", err)
		} else {
			defer amqpClient.Close()
			go func() {
				handler := func(msg *amqpclient.RefreshRequest) error {
					return w.HandleRefreshRequest(ctx, msg)
				}
				if err := amqpClient.ConsumeRefreshRequests(ctx, handler); err != nil {
					if !errors.Is(err, context.Canceled) {
						logger.Error("Refresh request consumption failed", "error", err)
					}
					cancel()
				}
			}()
			logger.Info("Consuming rate refresh requests", "queue", cfg.AMQPQueue)
		}
	}

	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Rates worker stopped", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	// Give in-flight fetches a moment to settle before the process exits.
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
