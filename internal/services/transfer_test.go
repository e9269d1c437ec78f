package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"moneta/internal/core"
)

func (e *env) transferAccounts(t *testing.T) (src, dst core.PaymentMethod) {
	t.Helper()
	src = e.paymentMethod(t, "USD Checking", "USD")
	dst = e.paymentMethod(t, "EUR Savings", "EUR")
	e.rates.set("USD", "EUR", "0.90")
	e.rates.set("EUR", "USD", "1.10")
	return src, dst
}

func TestCreateTransferCrossCurrency(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	src, dst := e.transferAccounts(t)

	pair, err := e.transfers.CreateTransfer(ctx, testOwner, TransferInput{
		SourceID:      src.ID,
		DestinationID: dst.ID,
		Amount:        amt("100"),
		Date:          core.NewDate(2025, 3, 10),
	})
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	mustEqual(t, pair.SourceAmount, amt("100"), "source amount")
	mustEqual(t, pair.DestinationAmount, amt("90.00"), "destination amount")
	mustEqual(t, pair.ExchangeRate, amt("0.90"), "cross rate")

	if pair.Source.TransferRole != core.RoleWithdrawal {
		t.Fatalf("source role = %q, want withdrawal", pair.Source.TransferRole)
	}
	if pair.Destination.TransferRole != core.RoleDeposit {
		t.Fatalf("destination role = %q, want deposit", pair.Destination.TransferRole)
	}
	if pair.Source.LinkedID != pair.Destination.ID || pair.Destination.LinkedID != pair.Source.ID {
		t.Fatal("legs must link to each other")
	}

	// Base snapshots: owner base is USD, so the withdrawal converts at 1 and
	// the deposit at the EUR/USD rate.
	mustEqual(t, pair.Source.Amount, amt("100.00"), "withdrawal base amount")
	mustEqual(t, pair.Destination.Amount, amt("99.00"), "deposit base amount")
}

func TestCreateTransferRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	src, dst := e.transferAccounts(t)

	archived := e.paymentMethod(t, "Old Wallet", "USD")
	if _, err := e.registry.Archive(ctx, testOwner, archived.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	tests := []struct {
		name string
		in   TransferInput
		want error
	}{
		{"same account", TransferInput{SourceID: src.ID, DestinationID: src.ID, Amount: amt("10")}, core.ErrValidation},
		{"zero amount", TransferInput{SourceID: src.ID, DestinationID: dst.ID}, core.ErrValidation},
		{"archived source", TransferInput{SourceID: archived.ID, DestinationID: dst.ID, Amount: amt("10")}, core.ErrValidation},
		{"archived destination", TransferInput{SourceID: src.ID, DestinationID: archived.ID, Amount: amt("10")}, core.ErrValidation},
		{"unknown destination", TransferInput{SourceID: src.ID, DestinationID: "nope", Amount: amt("10")}, core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.transfers.CreateTransfer(ctx, testOwner, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateTransferRateUnavailableLeavesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	src := e.paymentMethod(t, "USD Checking", "USD")
	dst := e.paymentMethod(t, "CHF Vault", "CHF")
	// No USD/CHF rate anywhere.

	_, err := e.transfers.CreateTransfer(ctx, testOwner, TransferInput{
		SourceID: src.ID, DestinationID: dst.ID, Amount: amt("10"),
	})
	if !errors.Is(err, core.ErrRateUnavailable) {
		t.Fatalf("err = %v, want ErrRateUnavailable", err)
	}

	legs, err := e.ledger.List(ctx, testOwner, ListFilter{Type: core.TypeTransfer})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(legs) != 0 {
		t.Fatalf("got %d legs, want 0", len(legs))
	}
}

// failingStore makes the nth transaction insert fail so the compensation
// path is observable.
type failingStore struct {
	*memStore
	failOn  int
	inserts int
}

func (f *failingStore) InsertTransaction(ctx context.Context, tx core.Transaction) error {
	f.inserts++
	if f.inserts == f.failOn {
		return fmt.Errorf("disk full")
	}
	return f.memStore.InsertTransaction(ctx, tx)
}

func TestCreateTransferCompensatesOnDepositFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	src, dst := e.transferAccounts(t)

	store := &failingStore{memStore: e.store, failOn: 2}
	coordinator := NewTransferCoordinator(store, e.rates)

	_, err := coordinator.CreateTransfer(ctx, testOwner, TransferInput{
		SourceID: src.ID, DestinationID: dst.ID, Amount: amt("100"),
	})
	if err == nil {
		t.Fatal("expected deposit insert to fail")
	}

	legs, listErr := e.ledger.List(ctx, testOwner, ListFilter{Type: core.TypeTransfer})
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(legs) != 0 {
		t.Fatalf("withdrawal leg should have been compensated, got %d legs", len(legs))
	}
}

func TestGetTransferFromEitherLeg(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	src, dst := e.transferAccounts(t)

	pair, err := e.transfers.CreateTransfer(ctx, testOwner, TransferInput{
		SourceID: src.ID, DestinationID: dst.ID, Amount: amt("100"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, legID := range []string{pair.Source.ID, pair.Destination.ID} {
		got, err := e.transfers.GetTransfer(ctx, testOwner, legID)
		if err != nil {
			t.Fatalf("get from leg %s: %v", legID, err)
		}
		if got.ID != pair.Source.ID {
			t.Fatalf("pair id = %s, want withdrawal id %s", got.ID, pair.Source.ID)
		}
		if got.SourcePaymentMethod.ID != src.ID || got.DestPaymentMethod.ID != dst.ID {
			t.Fatal("accounts must keep their sides regardless of entry leg")
		}
	}
}

func TestGetTransferRejectsNonTransfer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pm := e.paymentMethod(t, "Cash", "USD")
	cat := e.category(t, "Food", core.TypeExpense)
	tx, err := e.ledger.Create(ctx, testOwner, TransactionInput{
		Type: core.TypeExpense, CategoryID: cat.ID, PaymentMethodID: pm.ID, Amount: amt("10"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := e.transfers.GetTransfer(ctx, testOwner, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListTransfersOneEntryPerPair(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	src, dst := e.transferAccounts(t)

	for i := 0; i < 3; i++ {
		if _, err := e.transfers.CreateTransfer(ctx, testOwner, TransferInput{
			SourceID: src.ID, DestinationID: dst.ID, Amount: amt("10"),
			Date: core.NewDate(2025, 3, 10+i),
		}); err != nil {
			t.Fatalf("create transfer %d: %v", i, err)
		}
	}

	pairs, err := e.transfers.ListTransfers(ctx, testOwner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pairs) != 3 {
		t.Fatalf("got %d pairs, want 3", len(pairs))
	}
	for _, p := range pairs {
		if p.Source.TransferRole != core.RoleWithdrawal {
			t.Fatalf("pair %s source is not the withdrawal leg", p.ID)
		}
	}
}

func TestListTransfersLegacyRoles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	src, dst := e.transferAccounts(t)

	// Legacy rows have no stored role; creation order decides.
	first := e.seedTransaction(t, core.Transaction{
		ID: "leg-a", Type: core.TypeTransfer, PaymentMethodID: src.ID,
		NativeAmount: amt("40"), Amount: amt("40"),
		CreatedAt: core.NewDate(2025, 1, 1).Time,
	})
	e.seedTransaction(t, core.Transaction{
		ID: "leg-b", Type: core.TypeTransfer, PaymentMethodID: dst.ID,
		NativeAmount: amt("36"), Amount: amt("39.60"), LinkedID: first.ID,
		CreatedAt: core.NewDate(2025, 1, 2).Time,
	})
	if err := e.store.SetLinkedTransaction(ctx, testOwner, first.ID, "leg-b"); err != nil {
		t.Fatalf("link: %v", err)
	}

	pairs, err := e.transfers.ListTransfers(ctx, testOwner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	if pairs[0].Source.ID != first.ID {
		t.Fatalf("withdrawal = %s, want earlier leg %s", pairs[0].Source.ID, first.ID)
	}
}

func TestDeleteTransferRemovesBothLegs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	src, dst := e.transferAccounts(t)

	pair, err := e.transfers.CreateTransfer(ctx, testOwner, TransferInput{
		SourceID: src.ID, DestinationID: dst.ID, Amount: amt("100"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := e.transfers.DeleteTransfer(ctx, testOwner, pair.Destination.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, legID := range []string{pair.Source.ID, pair.Destination.ID} {
		if _, err := e.ledger.Get(ctx, testOwner, legID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("leg %s err = %v, want ErrNotFound", legID, err)
		}
	}
}
