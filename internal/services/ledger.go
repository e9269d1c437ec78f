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

// Ledger records and maintains income and expense transactions. Transfer
// pairs are created through the TransferCoordinator; the ledger refuses to
// touch individual transfer legs.
type Ledger struct {
	store    Store
	registry *Registry
	resolver RateResolver
}

func NewLedger(store Store, registry *Registry, resolver RateResolver) *Ledger {
	return &Ledger{store: store, registry: registry, resolver: resolver}
}

// TransactionInput carries the fields of a new income or expense entry.
// Amount is in the payment method's currency. ManualRate, when positive,
// overrides the resolved native-to-base rate.
type TransactionInput struct {
	Type            core.TransactionType
	CategoryID      string
	PaymentMethodID string
	Date            core.Date
	Description     string
	Amount          decimal.Decimal
	ManualRate      decimal.Decimal
	TagIDs          []string
}

// TransactionPatch updates a transaction; nil fields are left unchanged.
// Changing PaymentMethodID or Amount recomputes the currency snapshot at the
// rate in effect for the transaction's date.
type TransactionPatch struct {
	CategoryID      *string
	PaymentMethodID *string
	Date            *core.Date
	Description     *string
	Amount          *decimal.Decimal
	ManualRate      *decimal.Decimal
	TagIDs          []string // nil leaves tags alone; empty slice clears them
}

// ListFilter narrows List. Zero values mean no constraint.
type ListFilter struct {
	Type            core.TransactionType
	PaymentMethodID string
	From            core.Date
	To              core.Date
}

func (l *Ledger) Create(ctx context.Context, ownerID string, in TransactionInput) (core.Transaction, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Transaction{}, err
	}
	if in.Type != core.TypeIncome && in.Type != core.TypeExpense {
		return core.Transaction{}, core.Validationf("transaction type must be income or expense, got %q", string(in.Type))
	}
	if in.Date.IsZero() {
		in.Date = today()
	}
	if !in.Amount.IsPositive() {
		return core.Transaction{}, core.Validationf("amount must be positive")
	}

	category, err := l.store.GetCategory(ctx, ownerID, in.CategoryID)
	if err != nil {
		return core.Transaction{}, err
	}
	if category.Kind != in.Type {
		return core.Transaction{}, core.Validationf("category %q is a %s category, not %s", category.Name, category.Kind, in.Type)
	}

	tagIDs, err := l.verifyTags(ctx, ownerID, in.TagIDs)
	if err != nil {
		return core.Transaction{}, err
	}

	pm, err := l.resolvePaymentMethod(ctx, ownerID, in.PaymentMethodID)
	if err != nil {
		return core.Transaction{}, err
	}

	base, err := l.store.OwnerBaseCurrency(ctx, ownerID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("resolve base currency: %w", err)
	}

	rate, err := l.conversionRate(ctx, pm.Currency, base, in.Date, in.ManualRate)
	if err != nil {
		return core.Transaction{}, err
	}

	tx := core.Transaction{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Type:            in.Type,
		CategoryID:      in.CategoryID,
		PaymentMethodID: pm.ID,
		Date:            in.Date,
		Description:     strings.TrimSpace(in.Description),
		Amount:          core.Convert(in.Amount, rate),
		NativeAmount:    in.Amount,
		ExchangeRate:    rate,
		BaseCurrency:    base,
		TagIDs:          tagIDs,
		CreatedAt:       time.Now(),
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	if err := l.store.InsertTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	if len(tagIDs) > 0 {
		if err := l.store.InsertTransactionTags(ctx, tx.ID, tagIDs); err != nil {
			// Undo the orphaned row rather than leave a half-written entry.
			if undoErr := l.store.DeleteTransaction(ctx, ownerID, tx.ID); undoErr != nil {
				slog.ErrorContext(ctx, "Failed to undo transaction after tag attach failure",
					"transaction_id", tx.ID,
					"error", undoErr)
			}
			return core.Transaction{}, fmt.Errorf("attach tags: %w", err)
		}
	}

	slog.InfoContext(ctx, "Recorded transaction",
		"transaction_id", tx.ID,
		"type", string(tx.Type),
		"native_amount", tx.NativeAmount.String(),
		"currency", pm.Currency)

	return tx, nil
}

func (l *Ledger) Get(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Transaction{}, err
	}
	return l.store.GetTransaction(ctx, ownerID, id)
}

func (l *Ledger) List(ctx context.Context, ownerID string, f ListFilter) ([]core.Transaction, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return l.store.ListTransactions(ctx, ownerID, storage.TransactionFilter{
		Type:            f.Type,
		PaymentMethodID: f.PaymentMethodID,
		From:            f.From,
		To:              f.To,
	})
}

func (l *Ledger) Update(ctx context.Context, ownerID, id string, patch TransactionPatch) (core.Transaction, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Transaction{}, err
	}

	tx, err := l.store.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if tx.Type == core.TypeTransfer {
		return core.Transaction{}, core.Validationf("transfer legs are managed as a pair, not individually")
	}

	if patch.CategoryID != nil {
		category, err := l.store.GetCategory(ctx, ownerID, *patch.CategoryID)
		if err != nil {
			return core.Transaction{}, err
		}
		if category.Kind != tx.Type {
			return core.Transaction{}, core.Validationf("category %q is a %s category, not %s", category.Name, category.Kind, tx.Type)
		}
		tx.CategoryID = *patch.CategoryID
	}
	if patch.Date != nil {
		tx.Date = *patch.Date
	}
	if patch.Description != nil {
		tx.Description = strings.TrimSpace(*patch.Description)
	}

	// The currency snapshot is only recomputed when the account or the
	// amount changes; edits to description or category never shift
	// historical converted values.
	recompute := patch.PaymentMethodID != nil || patch.Amount != nil

	if patch.PaymentMethodID != nil {
		pm, err := l.store.GetPaymentMethod(ctx, ownerID, *patch.PaymentMethodID)
		if err != nil {
			return core.Transaction{}, err
		}
		tx.PaymentMethodID = pm.ID
	}
	if patch.Amount != nil {
		if !patch.Amount.IsPositive() {
			return core.Transaction{}, core.Validationf("amount must be positive")
		}
		tx.NativeAmount = *patch.Amount
	}

	if recompute {
		pm, err := l.store.GetPaymentMethod(ctx, ownerID, tx.PaymentMethodID)
		if err != nil {
			return core.Transaction{}, err
		}
		base, err := l.store.OwnerBaseCurrency(ctx, ownerID)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("resolve base currency: %w", err)
		}
		var manual decimal.Decimal
		if patch.ManualRate != nil {
			manual = *patch.ManualRate
		}
		rate, err := l.conversionRate(ctx, pm.Currency, base, tx.Date, manual)
		if err != nil {
			return core.Transaction{}, err
		}
		tx.ExchangeRate = rate
		tx.BaseCurrency = base
		tx.Amount = core.Convert(tx.NativeAmount, rate)
	}

	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := l.store.UpdateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	if patch.TagIDs != nil {
		tagIDs, err := l.verifyTags(ctx, ownerID, patch.TagIDs)
		if err != nil {
			return core.Transaction{}, err
		}
		if err := l.store.DeleteTransactionTags(ctx, tx.ID); err != nil {
			return core.Transaction{}, fmt.Errorf("clear tags: %w", err)
		}
		if len(tagIDs) > 0 {
			if err := l.store.InsertTransactionTags(ctx, tx.ID, tagIDs); err != nil {
				return core.Transaction{}, fmt.Errorf("attach tags: %w", err)
			}
		}
		tx.TagIDs = tagIDs
	}

	return tx, nil
}

// Delete removes a transaction. Deleting a transfer leg removes its
// counterpart through the store's cascade; DeleteTransfer is the verified
// path for that.
func (l *Ledger) Delete(ctx context.Context, ownerID, id string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	tx, err := l.store.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if tx.Type == core.TypeTransfer {
		return core.Validationf("transfer legs are deleted as a pair via the transfer API")
	}
	return l.store.DeleteTransaction(ctx, ownerID, id)
}

// CreateCategory adds a named category for one transaction kind.
func (l *Ledger) CreateCategory(ctx context.Context, ownerID, name string, kind core.TransactionType) (core.Category, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Category{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, core.Validationf("category name is required")
	}
	if kind != core.TypeIncome && kind != core.TypeExpense {
		return core.Category{}, core.Validationf("category kind must be income or expense")
	}

	c := core.Category{ID: uuid.NewString(), OwnerID: ownerID, Name: name, Kind: kind}
	if err := l.store.CreateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (l *Ledger) ListCategories(ctx context.Context, ownerID string) ([]core.Category, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return l.store.ListCategories(ctx, ownerID)
}

// EnsureTag returns the owner's tag with the given name, creating it when it
// does not exist yet. Tag creation is idempotent by name.
func (l *Ledger) EnsureTag(ctx context.Context, ownerID, name string) (core.Tag, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Tag{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Tag{}, core.Validationf("tag name is required")
	}

	if tag, err := l.store.GetTagByName(ctx, ownerID, name); err == nil {
		return tag, nil
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.Tag{}, err
	}

	tag := core.Tag{ID: uuid.NewString(), OwnerID: ownerID, Name: name}
	if err := l.store.CreateTag(ctx, tag); err != nil {
		// Lost a race with a concurrent create; the existing tag wins.
		if existing, getErr := l.store.GetTagByName(ctx, ownerID, name); getErr == nil {
			return existing, nil
		}
		return core.Tag{}, fmt.Errorf("create tag: %w", err)
	}
	return tag, nil
}

func (l *Ledger) ListTags(ctx context.Context, ownerID string) ([]core.Tag, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return l.store.ListTags(ctx, ownerID)
}

func (l *Ledger) resolvePaymentMethod(ctx context.Context, ownerID, id string) (core.PaymentMethod, error) {
	if id != "" {
		return l.store.GetPaymentMethod(ctx, ownerID, id)
	}
	return l.registry.ResolveForTransaction(ctx, ownerID)
}

// conversionRate returns the native-to-base rate for one transaction. A
// positive manual rate wins; identity pairs short-circuit inside the
// resolver.
func (l *Ledger) conversionRate(ctx context.Context, native, base string, date core.Date, manual decimal.Decimal) (decimal.Decimal, error) {
	if manual.IsPositive() {
		return manual, nil
	}
	res, err := l.resolver.Resolve(ctx, native, base, date)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !res.Found {
		return decimal.Decimal{}, fmt.Errorf("%w: no %s to %s rate for %s", core.ErrRateUnavailable, native, base, date)
	}
	return res.Rate, nil
}

// verifyTags checks that every id belongs to the owner, dropping duplicates.
func (l *Ledger) verifyTags(ctx context.Context, ownerID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	tags, err := l.store.TagsByIDs(ctx, ownerID, unique)
	if err != nil {
		return nil, fmt.Errorf("verify tags: %w", err)
	}
	if len(tags) != len(unique) {
		found := make(map[string]struct{}, len(tags))
		for _, t := range tags {
			found[t.ID] = struct{}{}
		}
		for _, id := range unique {
			if _, ok := found[id]; !ok {
				return nil, core.NotFoundf("tag %q", id)
			}
		}
	}
	return unique, nil
}
