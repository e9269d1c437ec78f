package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"moneta/internal/core"
)

const testOwner = "owner-1"

type env struct {
	store     *memStore
	rates     *staticResolver
	registry  *Registry
	ledger    *Ledger
	transfers *TransferCoordinator
	balances  *BalanceAggregator
	budgets   *BudgetEngine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := newMemStore()
	if err := store.EnsureOwner(context.Background(), testOwner, "USD"); err != nil {
		t.Fatalf("ensure owner: %v", err)
	}
	resolver := newStaticResolver()
	registry := NewRegistry(store)
	return &env{
		store:     store,
		rates:     resolver,
		registry:  registry,
		ledger:    NewLedger(store, registry, resolver),
		transfers: NewTransferCoordinator(store, resolver),
		balances:  NewBalanceAggregator(store, resolver),
		budgets:   NewBudgetEngine(store),
	}
}

func (e *env) paymentMethod(t *testing.T, name, currency string) core.PaymentMethod {
	t.Helper()
	pm, err := e.registry.Create(context.Background(), testOwner, PaymentMethodInput{Name: name, Currency: currency})
	if err != nil {
		t.Fatalf("create payment method %s: %v", name, err)
	}
	return pm
}

func (e *env) category(t *testing.T, name string, kind core.TransactionType) core.Category {
	t.Helper()
	c, err := e.ledger.CreateCategory(context.Background(), testOwner, name, kind)
	if err != nil {
		t.Fatalf("create category %s: %v", name, err)
	}
	return c
}

// seedTransaction writes a row directly, bypassing the ledger, for tests that
// need legacy or orphaned shapes the engine would refuse to create.
func (e *env) seedTransaction(t *testing.T, tx core.Transaction) core.Transaction {
	t.Helper()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.OwnerID = testOwner
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	if tx.Date.IsZero() {
		tx.Date = core.NewDate(2025, 3, 10)
	}
	if tx.BaseCurrency == "" {
		tx.BaseCurrency = "USD"
	}
	if err := e.store.InsertTransaction(context.Background(), tx); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return tx
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustEqual(t *testing.T, got, want decimal.Decimal, label string) {
	t.Helper()
	if !got.Equal(want) {
		t.Fatalf("%s = %s, want %s", label, got, want)
	}
}
