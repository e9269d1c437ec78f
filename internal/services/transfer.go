package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"moneta/internal/core"
	"moneta/internal/storage"
)

// TransferCoordinator moves money between two of the owner's accounts by
// writing a linked pair of transfer legs. The pair is built with individual
// inserts and compensated on failure, so a crash can leave at most one
// unlinked leg; the store's cascade keeps deletes atomic.
type TransferCoordinator struct {
	store    Store
	resolver RateResolver
}

func NewTransferCoordinator(store Store, resolver RateResolver) *TransferCoordinator {
	return &TransferCoordinator{store: store, resolver: resolver}
}

// TransferInput describes a transfer. Amount is in the source account's
// currency.
type TransferInput struct {
	SourceID      string
	DestinationID string
	Amount        decimal.Decimal
	Date          core.Date
	Description   string
}

func (t *TransferCoordinator) CreateTransfer(ctx context.Context, ownerID string, in TransferInput) (core.TransferPair, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.TransferPair{}, err
	}
	if in.SourceID == in.DestinationID {
		return core.TransferPair{}, core.Validationf("source and destination must differ")
	}
	if !in.Amount.IsPositive() {
		return core.TransferPair{}, core.Validationf("amount must be positive")
	}
	if in.Date.IsZero() {
		in.Date = today()
	}

	source, err := t.store.GetPaymentMethod(ctx, ownerID, in.SourceID)
	if err != nil {
		return core.TransferPair{}, err
	}
	dest, err := t.store.GetPaymentMethod(ctx, ownerID, in.DestinationID)
	if err != nil {
		return core.TransferPair{}, err
	}
	if !source.IsActive {
		return core.TransferPair{}, core.Validationf("source account %q is archived", source.Name)
	}
	if !dest.IsActive {
		return core.TransferPair{}, core.Validationf("destination account %q is archived", dest.Name)
	}

	// All rates are resolved before the first insert so a missing rate
	// never leaves partial state behind.
	crossRate := decimal.NewFromInt(1)
	if source.Currency != dest.Currency {
		crossRate, err = t.requiredRate(ctx, source.Currency, dest.Currency, in.Date)
		if err != nil {
			return core.TransferPair{}, err
		}
	}
	destAmount := core.Convert(in.Amount, crossRate)

	base, err := t.store.OwnerBaseCurrency(ctx, ownerID)
	if err != nil {
		return core.TransferPair{}, fmt.Errorf("resolve base currency: %w", err)
	}
	sourceRate, err := t.requiredRate(ctx, source.Currency, base, in.Date)
	if err != nil {
		return core.TransferPair{}, err
	}
	destRate, err := t.requiredRate(ctx, dest.Currency, base, in.Date)
	if err != nil {
		return core.TransferPair{}, err
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = fmt.Sprintf("Transfer %s -> %s", source.Name, dest.Name)
	}

	now := time.Now()
	withdrawal := core.Transaction{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Type:            core.TypeTransfer,
		PaymentMethodID: source.ID,
		Date:            in.Date,
		Description:     description,
		Amount:          core.Convert(in.Amount, sourceRate),
		NativeAmount:    in.Amount,
		ExchangeRate:    sourceRate,
		BaseCurrency:    base,
		TransferRole:    core.RoleWithdrawal,
		CreatedAt:       now,
	}
	deposit := core.Transaction{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Type:            core.TypeTransfer,
		PaymentMethodID: dest.ID,
		Date:            in.Date,
		Description:     description,
		Amount:          core.Convert(destAmount, destRate),
		NativeAmount:    destAmount,
		ExchangeRate:    destRate,
		BaseCurrency:    base,
		LinkedID:        withdrawal.ID,
		TransferRole:    core.RoleDeposit,
		CreatedAt:       now,
	}

	if err := t.store.InsertTransaction(ctx, withdrawal); err != nil {
		return core.TransferPair{}, fmt.Errorf("insert withdrawal leg: %w", err)
	}
	if err := t.store.InsertTransaction(ctx, deposit); err != nil {
		t.compensate(ctx, ownerID, withdrawal.ID)
		return core.TransferPair{}, fmt.Errorf("insert deposit leg: %w", err)
	}
	if err := t.store.SetLinkedTransaction(ctx, ownerID, withdrawal.ID, deposit.ID); err != nil {
		// Deleting the deposit cascades to the withdrawal through its
		// linked_transaction_id; compensate both to be safe.
		t.compensate(ctx, ownerID, deposit.ID)
		t.compensate(ctx, ownerID, withdrawal.ID)
		return core.TransferPair{}, fmt.Errorf("link transfer legs: %w", err)
	}
	withdrawal.LinkedID = deposit.ID

	slog.InfoContext(ctx, "Created transfer",
		"transfer_id", withdrawal.ID,
		"source", source.Name,
		"destination", dest.Name,
		"amount", in.Amount.String(),
		"currency", source.Currency)

	return core.TransferPair{
		ID:                  withdrawal.ID,
		Source:              withdrawal,
		Destination:         deposit,
		SourcePaymentMethod: source,
		DestPaymentMethod:   dest,
		SourceAmount:        in.Amount,
		DestinationAmount:   destAmount,
		ExchangeRate:        crossRate,
	}, nil
}

// GetTransfer returns the pair either of whose leg ids is given.
func (t *TransferCoordinator) GetTransfer(ctx context.Context, ownerID, legID string) (core.TransferPair, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.TransferPair{}, err
	}

	leg, err := t.store.GetTransaction(ctx, ownerID, legID)
	if err != nil {
		return core.TransferPair{}, err
	}
	if leg.Type != core.TypeTransfer {
		return core.TransferPair{}, core.NotFoundf("transaction %q is not a transfer", legID)
	}
	if leg.LinkedID == "" {
		return core.TransferPair{}, core.NotFoundf("transfer leg %q has no counterpart", legID)
	}
	counterpart, err := t.store.GetTransaction(ctx, ownerID, leg.LinkedID)
	if err != nil {
		return core.TransferPair{}, err
	}

	withdrawal, deposit := leg, counterpart
	if core.EffectiveRole(leg, counterpart) == core.RoleDeposit {
		withdrawal, deposit = counterpart, leg
	}
	return t.buildPair(ctx, ownerID, withdrawal, deposit)
}

// ListTransfers returns every intact transfer pair, one entry per pair,
// newest first. Legs whose counterpart row is gone are skipped and logged.
func (t *TransferCoordinator) ListTransfers(ctx context.Context, ownerID string) ([]core.TransferPair, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	legs, err := t.store.ListTransactions(ctx, ownerID, storage.TransactionFilter{Type: core.TypeTransfer})
	if err != nil {
		return nil, fmt.Errorf("list transfer legs: %w", err)
	}

	byID := make(map[string]core.Transaction, len(legs))
	for _, leg := range legs {
		byID[leg.ID] = leg
	}

	seen := make(map[string]struct{}, len(legs)/2)
	pairs := make([]core.TransferPair, 0, len(legs)/2)
	for _, leg := range legs {
		counterpart, ok := byID[leg.LinkedID]
		if !ok {
			slog.WarnContext(ctx, "Transfer leg without counterpart",
				"transaction_id", leg.ID,
				"linked_id", leg.LinkedID)
			continue
		}

		withdrawal, deposit := leg, counterpart
		if core.EffectiveRole(leg, counterpart) == core.RoleDeposit {
			withdrawal, deposit = counterpart, leg
		}
		if _, done := seen[withdrawal.ID]; done {
			continue
		}
		seen[withdrawal.ID] = struct{}{}

		pair, err := t.buildPair(ctx, ownerID, withdrawal, deposit)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// DeleteTransfer removes both legs of the pair containing legID. The store
// cascades the counterpart delete.
func (t *TransferCoordinator) DeleteTransfer(ctx context.Context, ownerID, legID string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	leg, err := t.store.GetTransaction(ctx, ownerID, legID)
	if err != nil {
		return err
	}
	if leg.Type != core.TypeTransfer {
		return core.Validationf("transaction %q is not a transfer leg", legID)
	}

	if err := t.store.DeleteTransaction(ctx, ownerID, legID); err != nil {
		return fmt.Errorf("delete transfer: %w", err)
	}

	slog.InfoContext(ctx, "Deleted transfer", "transaction_id", legID, "linked_id", leg.LinkedID)
	return nil
}

func (t *TransferCoordinator) requiredRate(ctx context.Context, from, to string, date core.Date) (decimal.Decimal, error) {
	res, err := t.resolver.Resolve(ctx, from, to, date)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !res.Found {
		return decimal.Decimal{}, fmt.Errorf("%w: no %s to %s rate for %s", core.ErrRateUnavailable, from, to, date)
	}
	return res.Rate, nil
}

func (t *TransferCoordinator) buildPair(ctx context.Context, ownerID string, withdrawal, deposit core.Transaction) (core.TransferPair, error) {
	sourcePM, err := t.paymentMethodOrPlaceholder(ctx, ownerID, withdrawal.PaymentMethodID)
	if err != nil {
		return core.TransferPair{}, err
	}
	destPM, err := t.paymentMethodOrPlaceholder(ctx, ownerID, deposit.PaymentMethodID)
	if err != nil {
		return core.TransferPair{}, err
	}

	return core.TransferPair{
		ID:                  withdrawal.ID,
		Source:              withdrawal,
		Destination:         deposit,
		SourcePaymentMethod: sourcePM,
		DestPaymentMethod:   destPM,
		SourceAmount:        withdrawal.NativeAmount,
		DestinationAmount:   deposit.NativeAmount,
		ExchangeRate:        core.DisplayRate(withdrawal.NativeAmount, deposit.NativeAmount),
	}, nil
}

// paymentMethodOrPlaceholder tolerates legacy rows whose account was removed
// out-of-band; the pair stays readable with a bare id.
func (t *TransferCoordinator) paymentMethodOrPlaceholder(ctx context.Context, ownerID, pmID string) (core.PaymentMethod, error) {
	pm, err := t.store.GetPaymentMethod(ctx, ownerID, pmID)
	if err == nil {
		return pm, nil
	}
	if errors.Is(err, core.ErrNotFound) {
		return core.PaymentMethod{ID: pmID, OwnerID: ownerID}, nil
	}
	return core.PaymentMethod{}, err
}

// compensate deletes one leg after a failed pair write. NotFound is fine:
// the cascade may have taken the row already.
func (t *TransferCoordinator) compensate(ctx context.Context, ownerID, id string) {
	err := t.store.DeleteTransaction(ctx, ownerID, id)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		slog.ErrorContext(ctx, "Failed to undo transfer leg",
			"transaction_id", id,
			"error", err)
	}
}
