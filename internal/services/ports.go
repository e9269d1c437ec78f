// Package services implements the ledger engine: account registry,
// transaction ledger, transfer coordinator, balance aggregator and budget
// engine. Multi-row writes are orchestrated here with explicit compensating
// deletes; the store only guarantees single-row operations plus uniqueness
// and cascade backstops.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
	"moneta/internal/rates"
	"moneta/internal/storage"
)

// Store is the persistence contract the engine runs against, implemented by
// *storage.SQLiteRepository. Tests substitute an in-memory fake.
type Store interface {
	EnsureOwner(ctx context.Context, ownerID, baseCurrency string) error
	OwnerBaseCurrency(ctx context.Context, ownerID string) (string, error)

	CreatePaymentMethod(ctx context.Context, pm core.PaymentMethod) error
	GetPaymentMethod(ctx context.Context, ownerID, id string) (core.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, ownerID string) ([]core.PaymentMethod, error)
	UpdatePaymentMethod(ctx context.Context, pm core.PaymentMethod) error
	SetDefaultPaymentMethod(ctx context.Context, ownerID, id string) error
	DeletePaymentMethod(ctx context.Context, ownerID, id string) error
	CountTransactionsForPaymentMethod(ctx context.Context, ownerID, id string) (int64, error)

	CreateCategory(ctx context.Context, c core.Category) error
	GetCategory(ctx context.Context, ownerID, id string) (core.Category, error)
	ListCategories(ctx context.Context, ownerID string) ([]core.Category, error)

	CreateTag(ctx context.Context, t core.Tag) error
	GetTagByName(ctx context.Context, ownerID, name string) (core.Tag, error)
	ListTags(ctx context.Context, ownerID string) ([]core.Tag, error)
	TagsByIDs(ctx context.Context, ownerID string, ids []string) ([]core.Tag, error)

	InsertTransaction(ctx context.Context, tx core.Transaction) error
	GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, ownerID string, f storage.TransactionFilter) ([]core.Transaction, error)
	UpdateTransaction(ctx context.Context, tx core.Transaction) error
	DeleteTransaction(ctx context.Context, ownerID, id string) error
	SetLinkedTransaction(ctx context.Context, ownerID, id, linkedID string) error
	InsertTransactionTags(ctx context.Context, txID string, tagIDs []string) error
	DeleteTransactionTags(ctx context.Context, txID string) error
	ListOrphanedTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error)

	AccountBalance(ctx context.Context, ownerID, paymentMethodID string) (decimal.Decimal, error)
	OwnerBalanceByCurrency(ctx context.Context, ownerID string) ([]storage.CurrencyBalance, error)

	InsertBudget(ctx context.Context, b core.Budget) error
	GetBudget(ctx context.Context, ownerID, id string) (core.Budget, error)
	ListBudgets(ctx context.Context, ownerID string, period core.Date) ([]core.Budget, error)
	FindBudgetByTarget(ctx context.Context, ownerID string, period core.Date, categoryID, tagID string) (core.Budget, bool, error)
	UpdateBudgetAmount(ctx context.Context, ownerID, id string, amount decimal.Decimal) error
	DeleteBudget(ctx context.Context, ownerID, id string) error
	SumExpenses(ctx context.Context, ownerID, categoryID, tagID string, from, to core.Date) (decimal.Decimal, error)
	ExpenseBreakdownByPaymentMethod(ctx context.Context, ownerID, categoryID, tagID string, from, to core.Date) ([]storage.PaymentMethodSum, error)
}

// RateResolver is the slice of the rate resolver the engine needs.
type RateResolver interface {
	Resolve(ctx context.Context, from, to string, date core.Date) (rates.Resolution, error)
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return core.ErrUnauthorized
	}
	return nil
}

func today() core.Date {
	return core.DateOf(time.Now())
}
