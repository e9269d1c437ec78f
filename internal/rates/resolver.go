// Package rates resolves currency exchange rates with provenance and
// staleness tracking. Resolution is read-only with respect to accounting
// data: a lookup never mutates ledger rows.
package rates

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
)

// Source tells the caller where a resolved rate came from.
type Source string

const (
	SourceLive   Source = "live"
	SourceCached Source = "cached"
	SourceStale  Source = "stale"
)

// MaxAge is the freshness window: an observation older than this is served
// but flagged stale.
const MaxAge = 24 * time.Hour

// Resolution is the outcome of one rate lookup. Found=false means no rate is
// resolvable at all; callers must treat that as recoverable-but-blocking for
// writes and degrade gracefully on reads.
type Resolution struct {
	Rate      decimal.Decimal
	Found     bool
	Source    Source
	FetchedAt time.Time
	Stale     bool
}

// Store is the slice of the repository the resolver reads and refreshes.
type Store interface {
	GetExchangeRate(ctx context.Context, from, to string, date core.Date) (core.ExchangeRate, bool, error)
	UpsertExchangeRate(ctx context.Context, rate core.ExchangeRate) error
}

// Fetcher is a live upstream rate source. Optional: without one the resolver
// serves stored observations only.
type Fetcher interface {
	Fetch(ctx context.Context, from, to string, date core.Date) (core.ExchangeRate, error)
}

// RefreshRequester asks the background worker for an out-of-band refresh.
// Optional; failures to publish are logged and never surfaced.
type RefreshRequester interface {
	RequestRefresh(ctx context.Context, from, to string, date core.Date) error
}

type Resolver struct {
	store     Store
	fetcher   Fetcher
	requester RefreshRequester
	cache     *rateCache
}

func NewResolver(store Store, fetcher Fetcher, requester RefreshRequester) *Resolver {
	return &Resolver{
		store:     store,
		fetcher:   fetcher,
		requester: requester,
		cache:     newRateCache(512, 5*time.Minute),
	}
}

// Resolve returns the rate for converting from -> to on the given day.
// Identity conversions short-circuit without touching cache or store.
func (r *Resolver) Resolve(ctx context.Context, from, to string, date core.Date) (Resolution, error) {
	if from == to {
		return Resolution{Rate: decimal.NewFromInt(1), Found: true, Source: SourceLive}, nil
	}
	if !core.ValidCurrency(from) || !core.ValidCurrency(to) {
		return Resolution{}, core.Validationf("invalid currency pair %s/%s", from, to)
	}
	if date.IsZero() {
		date = core.DateOf(time.Now())
	}

	key := cacheKey(from, to, date)
	if rec, ok := r.cache.get(key); ok {
		return r.resolution(ctx, rec, from, to, date), nil
	}

	rec, ok, err := r.store.GetExchangeRate(ctx, from, to, date)
	if err != nil {
		return Resolution{}, fmt.Errorf("rate lookup %s/%s: %w", from, to, err)
	}
	if ok {
		r.cache.set(key, rec)
		return r.resolution(ctx, rec, from, to, date), nil
	}

	// Nothing stored: try the live source once, then give up gracefully.
	if r.fetcher != nil {
		rec, err := r.fetcher.Fetch(ctx, from, to, date)
		if err == nil {
			if err := r.store.UpsertExchangeRate(ctx, rec); err != nil {
				slog.WarnContext(ctx, "Failed to persist fetched rate", "from", from, "to", to, "error", err)
			}
			r.cache.set(key, rec)
			return Resolution{Rate: rec.Rate, Found: true, Source: SourceLive, FetchedAt: rec.FetchedAt}, nil
		}
		slog.WarnContext(ctx, "Live rate fetch failed", "from", from, "to", to, "date", date.String(), "error", err)
	}

	r.requestRefresh(ctx, from, to, date)
	return Resolution{}, nil
}

// resolution classifies a stored observation and nudges the worker when the
// observation has gone stale.
func (r *Resolver) resolution(ctx context.Context, rec core.ExchangeRate, from, to string, date core.Date) Resolution {
	stale := rec.Stale || time.Since(rec.FetchedAt) > MaxAge
	res := Resolution{
		Rate:      rec.Rate,
		Found:     true,
		Source:    SourceCached,
		FetchedAt: rec.FetchedAt,
		Stale:     stale,
	}
	if stale {
		res.Source = SourceStale
		r.requestRefresh(ctx, from, to, date)
	}
	return res
}

func (r *Resolver) requestRefresh(ctx context.Context, from, to string, date core.Date) {
	if r.requester == nil {
		return
	}
	if err := r.requester.RequestRefresh(ctx, from, to, date); err != nil {
		slog.WarnContext(ctx, "Failed to request rate refresh", "from", from, "to", to, "error", err)
	}
}

// Invalidate drops the in-process cache entry for one pair and day. The
// refresh worker calls it after upserting a fresh observation.
func (r *Resolver) Invalidate(from, to string, date core.Date) {
	r.cache.invalidate(cacheKey(from, to, date))
}
