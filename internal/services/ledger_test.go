package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
)

func TestLedgerCreateExpenseConverts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pm := e.paymentMethod(t, "EUR Card", "EUR")
	cat := e.category(t, "Groceries", core.TypeExpense)
	e.rates.set("EUR", "USD", "1.10")

	tx, err := e.ledger.Create(ctx, testOwner, TransactionInput{
		Type:            core.TypeExpense,
		CategoryID:      cat.ID,
		PaymentMethodID: pm.ID,
		Date:            core.NewDate(2025, 3, 10),
		Description:     "weekly shop",
		Amount:          amt("50"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mustEqual(t, tx.NativeAmount, amt("50"), "native amount")
	mustEqual(t, tx.Amount, amt("55.00"), "base amount")
	mustEqual(t, tx.ExchangeRate, amt("1.10"), "exchange rate")
	if tx.BaseCurrency != "USD" {
		t.Fatalf("base currency = %q, want USD", tx.BaseCurrency)
	}
}

func TestLedgerCreateManualRateWins(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pm := e.paymentMethod(t, "EUR Card", "EUR")
	cat := e.category(t, "Travel", core.TypeExpense)
	e.rates.set("EUR", "USD", "1.10")

	tx, err := e.ledger.Create(ctx, testOwner, TransactionInput{
		Type:            core.TypeExpense,
		CategoryID:      cat.ID,
		PaymentMethodID: pm.ID,
		Amount:          amt("100"),
		ManualRate:      amt("1.25"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mustEqual(t, tx.Amount, amt("125.00"), "base amount")
	mustEqual(t, tx.ExchangeRate, amt("1.25"), "exchange rate")
}

func TestLedgerCreateRejectsBadInput(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pm := e.paymentMethod(t, "Cash", "USD")
	expense := e.category(t, "Food", core.TypeExpense)
	income := e.category(t, "Salary", core.TypeIncome)

	tests := []struct {
		name string
		in   TransactionInput
		want error
	}{
		{"transfer type", TransactionInput{Type: core.TypeTransfer, PaymentMethodID: pm.ID, Amount: amt("10")}, core.ErrValidation},
		{"zero amount", TransactionInput{Type: core.TypeExpense, CategoryID: expense.ID, PaymentMethodID: pm.ID, Amount: decimal.Zero}, core.ErrValidation},
		{"negative amount", TransactionInput{Type: core.TypeExpense, CategoryID: expense.ID, PaymentMethodID: pm.ID, Amount: amt("-5")}, core.ErrValidation},
		{"kind mismatch", TransactionInput{Type: core.TypeExpense, CategoryID: income.ID, PaymentMethodID: pm.ID, Amount: amt("10")}, core.ErrValidation},
		{"unknown category", TransactionInput{Type: core.TypeExpense, CategoryID: "nope", PaymentMethodID: pm.ID, Amount: amt("10")}, core.ErrNotFound},
		{"unknown tag", TransactionInput{Type: core.TypeExpense, CategoryID: expense.ID, PaymentMethodID: pm.ID, Amount: amt("10"), TagIDs: []string{"nope"}}, core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.ledger.Create(ctx, testOwner, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLedgerCreateRateUnavailable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pm := e.paymentMethod(t, "CHF Card", "CHF")
	cat := e.category(t, "Food", core.TypeExpense)

	_, err := e.ledger.Create(ctx, testOwner, TransactionInput{
		Type:            core.TypeExpense,
		CategoryID:      cat.ID,
		PaymentMethodID: pm.ID,
		Amount:          amt("10"),
	})
	if !errors.Is(err, core.ErrRateUnavailable) {
		t.Fatalf("err = %v, want ErrRateUnavailable", err)
	}

	// The write must not have gone through.
	txs, err := e.ledger.List(ctx, testOwner, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("got %d transactions, want 0", len(txs))
	}
}

func TestLedgerCreateAutoAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cat := e.category(t, "Food", core.TypeExpense)
	tx, err := e.ledger.Create(ctx, testOwner, TransactionInput{
		Type:       core.TypeExpense,
		CategoryID: cat.ID,
		Amount:     amt("12.50"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	pm, err := e.registry.Get(ctx, testOwner, tx.PaymentMethodID)
	if err != nil {
		t.Fatalf("get payment method: %v", err)
	}
	if pm.Name != core.FallbackAccountName {
		t.Fatalf("auto account = %q, want %q", pm.Name, core.FallbackAccountName)
	}
}

func TestLedgerCreateWithTags(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pm := e.paymentMethod(t, "Cash", "USD")
	cat := e.category(t, "Food", core.TypeExpense)
	tag, err := e.ledger.EnsureTag(ctx, testOwner, "restaurants")
	if err != nil {
		t.Fatalf("ensure tag: %v", err)
	}

	tx, err := e.ledger.Create(ctx, testOwner, TransactionInput{
		Type:            core.TypeExpense,
		CategoryID:      cat.ID,
		PaymentMethodID: pm.ID,
		Amount:          amt("30"),
		TagIDs:          []string{tag.ID, tag.ID}, // duplicate collapses
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := e.ledger.Get(ctx, testOwner, tx.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.TagIDs) != 1 || got.TagIDs[0] != tag.ID {
		t.Fatalf("tags = %v, want [%s]", got.TagIDs, tag.ID)
	}
}

func TestLedgerUpdateRecomputesOnlyOnAmountOrAccountChange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pm := e.paymentMethod(t, "EUR Card", "EUR")
	cat := e.category(t, "Food", core.TypeExpense)
	e.rates.set("EUR", "USD", "1.10")

	tx, err := e.ledger.Create(ctx, testOwner, TransactionInput{
		Type: core.TypeExpense, CategoryID: cat.ID, PaymentMethodID: pm.ID, Amount: amt("50"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Rate moves, but a description edit must not touch the snapshot.
	e.rates.set("EUR", "USD", "1.50")
	desc := "renamed"
	got, err := e.ledger.Update(ctx, testOwner, tx.ID, TransactionPatch{Description: &desc})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	mustEqual(t, got.Amount, amt("55.00"), "base amount after rename")
	mustEqual(t, got.ExchangeRate, amt("1.10"), "rate after rename")

	// An amount change recomputes at the current rate.
	newAmount := amt("60")
	got, err = e.ledger.Update(ctx, testOwner, tx.ID, TransactionPatch{Amount: &newAmount})
	if err != nil {
		t.Fatalf("update amount: %v", err)
	}
	mustEqual(t, got.Amount, amt("90.00"), "base amount after amount change")
	mustEqual(t, got.ExchangeRate, amt("1.50"), "rate after amount change")
}

func TestLedgerUpdateRejectsTransferLeg(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pm := e.paymentMethod(t, "Cash", "USD")
	leg := e.seedTransaction(t, core.Transaction{
		Type:            core.TypeTransfer,
		PaymentMethodID: pm.ID,
		NativeAmount:    amt("10"),
		Amount:          amt("10"),
		TransferRole:    core.RoleWithdrawal,
	})

	desc := "nope"
	if _, err := e.ledger.Update(ctx, testOwner, leg.ID, TransactionPatch{Description: &desc}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if err := e.ledger.Delete(ctx, testOwner, leg.ID); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("delete err = %v, want ErrValidation", err)
	}
}

func TestLedgerUpdateTags(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pm := e.paymentMethod(t, "Cash", "USD")
	cat := e.category(t, "Food", core.TypeExpense)
	tag, err := e.ledger.EnsureTag(ctx, testOwner, "lunch")
	if err != nil {
		t.Fatalf("ensure tag: %v", err)
	}

	tx, err := e.ledger.Create(ctx, testOwner, TransactionInput{
		Type: core.TypeExpense, CategoryID: cat.ID, PaymentMethodID: pm.ID,
		Amount: amt("10"), TagIDs: []string{tag.ID},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Empty (non-nil) slice clears the tags.
	got, err := e.ledger.Update(ctx, testOwner, tx.ID, TransactionPatch{TagIDs: []string{}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(got.TagIDs) != 0 {
		t.Fatalf("tags = %v, want none", got.TagIDs)
	}
}

func TestEnsureTagIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.ledger.EnsureTag(ctx, testOwner, "travel")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := e.ledger.EnsureTag(ctx, testOwner, "travel")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("got two ids %s / %s for one name", first.ID, second.ID)
	}
}

func TestLedgerListFilters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pm := e.paymentMethod(t, "Cash", "USD")
	other := e.paymentMethod(t, "Card", "USD")
	cat := e.category(t, "Food", core.TypeExpense)

	for _, d := range []struct {
		day int
		pm  string
	}{{1, pm.ID}, {15, pm.ID}, {20, other.ID}} {
		if _, err := e.ledger.Create(ctx, testOwner, TransactionInput{
			Type: core.TypeExpense, CategoryID: cat.ID, PaymentMethodID: d.pm,
			Date: core.NewDate(2025, 3, d.day), Amount: amt("10"),
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := e.ledger.List(ctx, testOwner, ListFilter{
		PaymentMethodID: pm.ID,
		From:            core.NewDate(2025, 3, 10),
		To:              core.NewDate(2025, 3, 31),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d transactions, want 1", len(got))
	}
	if !got[0].Date.Equal(core.NewDate(2025, 3, 15).Time) {
		t.Fatalf("wrong transaction: %s", got[0].Date)
	}
}
