package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"moneta/internal/core"
)

func (r *SQLiteRepository) UpsertExchangeRate(ctx context.Context, rate core.ExchangeRate) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO exchange_rates (from_currency, to_currency, date, rate, fetched_at, source, is_stale)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (from_currency, to_currency, date) DO UPDATE SET
		   rate = excluded.rate, fetched_at = excluded.fetched_at,
		   source = excluded.source, is_stale = excluded.is_stale`,
		rate.From, rate.To, rate.Date.String(), rate.Rate.String(),
		formatTime(rate.FetchedAt), rate.Source, boolInt(rate.Stale))
	if err != nil {
		return fmt.Errorf("upsert exchange rate: %w", err)
	}
	return nil
}

// GetExchangeRate returns the stored rate for the pair on the given day, or
// the most recent observation before it. The bool is false when no
// observation exists at all.
func (r *SQLiteRepository) GetExchangeRate(ctx context.Context, from, to string, date core.Date) (core.ExchangeRate, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT from_currency, to_currency, date, rate, fetched_at, source, is_stale
		 FROM exchange_rates
		 WHERE from_currency = ? AND to_currency = ? AND date <= ?
		 ORDER BY date DESC LIMIT 1`, from, to, date.String())

	var rate core.ExchangeRate
	var day, rateStr, fetchedAt string
	var stale int64
	err := row.Scan(&rate.From, &rate.To, &day, &rateStr, &fetchedAt, &rate.Source, &stale)
	if err == sql.ErrNoRows {
		return core.ExchangeRate{}, false, nil
	}
	if err != nil {
		return core.ExchangeRate{}, false, fmt.Errorf("get exchange rate: %w", err)
	}
	rate.Rate = parseDecimal(rateStr)
	rate.FetchedAt = parseTime(fetchedAt)
	rate.Stale = stale != 0
	if d, err := core.ParseDate(day); err == nil {
		rate.Date = d
	}
	return rate, true, nil
}

// CurrencyPair identifies one tracked conversion direction.
type CurrencyPair struct {
	From, To string
}

// ListRatePairs returns every distinct pair ever stored; the refresh worker
// re-fetches each of them for the current day.
func (r *SQLiteRepository) ListRatePairs(ctx context.Context) ([]CurrencyPair, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT from_currency, to_currency FROM exchange_rates ORDER BY from_currency, to_currency`)
	if err != nil {
		return nil, fmt.Errorf("list rate pairs: %w", err)
	}
	defer rows.Close()

	var out []CurrencyPair
	for rows.Next() {
		var p CurrencyPair
		if err := rows.Scan(&p.From, &p.To); err != nil {
			return nil, fmt.Errorf("scan rate pair: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkRatesStale flags every observation fetched before cutoff that is not
// already stale, and returns how many rows were flagged.
func (r *SQLiteRepository) MarkRatesStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE exchange_rates SET is_stale = 1 WHERE is_stale = 0 AND fetched_at < ?`,
		formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("mark rates stale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
