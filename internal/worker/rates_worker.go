// Package worker runs the background exchange rate refresher. It keeps
// stored observations fresh on a schedule and serves out-of-band refresh
// requests queued by the resolver.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"moneta/internal/amqp"
	"moneta/internal/core"
	"moneta/internal/rates"
	"moneta/internal/storage"
)

// Store is the slice of the repository the worker needs.
type Store interface {
	ListRatePairs(ctx context.Context) ([]storage.CurrencyPair, error)
	UpsertExchangeRate(ctx context.Context, rate core.ExchangeRate) error
	MarkRatesStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Invalidator drops a resolver cache entry after an upsert. Optional: the
// standalone worker binary has no resolver in-process.
type Invalidator interface {
	Invalidate(from, to string, date core.Date)
}

type RatesWorker struct {
	store       Store
	fetcher     rates.Fetcher
	invalidator Invalidator
	interval    time.Duration
}

func NewRatesWorker(store Store, fetcher rates.Fetcher, invalidator Invalidator, interval time.Duration) *RatesWorker {
	return &RatesWorker{
		store:       store,
		fetcher:     fetcher,
		invalidator: invalidator,
		interval:    interval,
	}
}

// HandleRefreshRequest serves one queued request: fetch the pair for the
// requested day and persist it. Errors are returned so the delivery gets
// requeued.
func (w *RatesWorker) HandleRefreshRequest(ctx context.Context, msg *amqp.RefreshRequest) error {
	date, err := core.ParseDate(msg.Date)
	if err != nil {
		return fmt.Errorf("refresh request date: %w", err)
	}

	slog.InfoContext(ctx, "Processing rate refresh request",
		"from", msg.From,
		"to", msg.To,
		"date", msg.Date)

	return w.refreshPair(ctx, msg.From, msg.To, date)
}

// RefreshAll re-fetches today's observation for every pair the store has ever
// seen. Individual failures are logged and skipped so one dead pair cannot
// stall the rest.
func (w *RatesWorker) RefreshAll(ctx context.Context) error {
	pairs, err := w.store.ListRatePairs(ctx)
	if err != nil {
		return fmt.Errorf("list rate pairs: %w", err)
	}
	if len(pairs) == 0 {
		slog.InfoContext(ctx, "No rate pairs to refresh")
		return nil
	}

	day := core.DateOf(time.Now())
	refreshed := 0
	for _, p := range pairs {
		if err := w.refreshPair(ctx, p.From, p.To, day); err != nil {
			slog.ErrorContext(ctx, "Failed to refresh rate pair",
				"from", p.From,
				"to", p.To,
				"error", err)
			continue
		}
		refreshed++
	}

	slog.InfoContext(ctx, "Rate refresh cycle completed",
		"pairs", len(pairs),
		"refreshed", refreshed)
	return nil
}

// MarkStale flags observations older than the freshness window so resolvers
// surface them as stale until the next successful refresh.
func (w *RatesWorker) MarkStale(ctx context.Context) error {
	n, err := w.store.MarkRatesStale(ctx, time.Now().Add(-rates.MaxAge))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.InfoContext(ctx, "Marked rates stale", "count", n)
	}
	return nil
}

// Run refreshes on the configured interval until ctx is cancelled. One cycle
// runs immediately at startup.
func (w *RatesWorker) Run(ctx context.Context) error {
	w.cycle(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping rates worker", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *RatesWorker) cycle(ctx context.Context) {
	if err := w.RefreshAll(ctx); err != nil {
		slog.ErrorContext(ctx, "Rate refresh cycle failed", "error", err)
	}
	if err := w.MarkStale(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed to mark stale rates", "error", err)
	}
}

func (w *RatesWorker) refreshPair(ctx context.Context, from, to string, date core.Date) error {
	rec, err := w.fetcher.Fetch(ctx, from, to, date)
	if err != nil {
		return fmt.Errorf("fetch %s/%s: %w", from, to, err)
	}
	if err := w.store.UpsertExchangeRate(ctx, rec); err != nil {
		return fmt.Errorf("store %s/%s: %w", from, to, err)
	}
	if w.invalidator != nil {
		w.invalidator.Invalidate(from, to, rec.Date)
	}
	return nil
}
