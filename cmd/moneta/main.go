package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"moneta/internal/amqp"
	"moneta/internal/config"
	apphttp "moneta/internal/http"
	"moneta/internal/log"
	"moneta/internal/rates"
	"moneta/internal/services"
	"moneta/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

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

	// AMQP is optional: without it the resolver simply never queues
	// out-of-band refreshes.
	var requester rates.RefreshRequester
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, rate refresh requests disabled", "error", err)
		} else {
			defer amqpClient.Close()
			requester = amqpClient
		}
	}

	fetcher := rates.NewClient(cfg.RateAPIBaseURL, "frankfurter")
	resolver := rates.NewResolver(repo, fetcher, requester)

	registry := services.NewRegistry(repo)
	ledger := services.NewLedger(repo, registry, resolver)
	transfers := services.NewTransferCoordinator(repo, resolver)
	balances := services.NewBalanceAggregator(repo, resolver)
	budgets := services.NewBudgetEngine(repo)

	srv := apphttp.NewServer(":"+cfg.Port, registry, ledger, transfers, balances, budgets, repo, cfg.BaseCurrency)
	srv.Handler = log.Middleware(logger.WithComponent(log.ComponentHTTP))(srv.Handler)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting moneta server",
		"port", cfg.Port,
		"base_currency", cfg.BaseCurrency,
		"db_path", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
