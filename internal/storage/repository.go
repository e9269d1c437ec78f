// Package storage is the SQLite persistence layer.
//
// It exposes single-row operations plus a small set of aggregate queries;
// multi-row write orchestration (transfer creation, tag replacement) lives in
// the service layer, which compensates explicitly on partial failure.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// EnsureOwner creates the owner row on first contact. The base currency is
// fixed at that moment; later transactions snapshot it per row.
func (r *SQLiteRepository) EnsureOwner(ctx context.Context, ownerID, baseCurrency string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO owners (id, base_currency, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		ownerID, baseCurrency, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("ensure owner: %w", err)
	}
	return nil
}

// OwnerBaseCurrency returns the owner's reporting currency.
func (r *SQLiteRepository) OwnerBaseCurrency(ctx context.Context, ownerID string) (string, error) {
	var cur string
	err := r.db.QueryRowContext(ctx,
		`SELECT base_currency FROM owners WHERE id = ?`, ownerID).Scan(&cur)
	if err == sql.ErrNoRows {
		return "", core.NotFoundf("owner %s", ownerID)
	}
	if err != nil {
		return "", fmt.Errorf("owner base currency: %w", err)
	}
	return cur, nil
}

// Amounts are persisted as integer cents so SQL aggregates stay exact; the
// domain works in decimals throughout.

func centsOf(d decimal.Decimal) int64 {
	return d.Round(core.CurrencyScale).Shift(core.CurrencyScale).IntPart()
}

func decimalOfCents(c int64) decimal.Decimal {
	return decimal.New(c, -core.CurrencyScale)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		slog.Warn("Unparseable timestamp in store", "value", s, "error", err)
		return time.Time{}
	}
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		slog.Warn("Unparseable decimal in store", "value", s, "error", err)
		return decimal.Zero
	}
	return d
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
