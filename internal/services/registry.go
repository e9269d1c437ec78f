package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"moneta/internal/core"
)

// Registry manages payment methods: the accounts transactions draw on.
type Registry struct {
	store Store
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// PaymentMethodInput carries the caller-editable fields of a payment method.
type PaymentMethodInput struct {
	Name      string
	Currency  string
	Color     string
	IsDefault bool
}

func (r *Registry) Create(ctx context.Context, ownerID string, in PaymentMethodInput) (core.PaymentMethod, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.PaymentMethod{}, err
	}

	pm := core.PaymentMethod{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      strings.TrimSpace(in.Name),
		Currency:  strings.ToUpper(strings.TrimSpace(in.Currency)),
		Color:     in.Color,
		IsDefault: in.IsDefault,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if err := pm.Validate(); err != nil {
		return core.PaymentMethod{}, err
	}

	if err := r.store.CreatePaymentMethod(ctx, pm); err != nil {
		return core.PaymentMethod{}, fmt.Errorf("create payment method: %w", err)
	}

	slog.InfoContext(ctx, "Created payment method",
		"payment_method_id", pm.ID,
		"name", pm.Name,
		"currency", pm.Currency)

	return pm, nil
}

func (r *Registry) Get(ctx context.Context, ownerID, id string) (core.PaymentMethod, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.PaymentMethod{}, err
	}
	return r.store.GetPaymentMethod(ctx, ownerID, id)
}

func (r *Registry) List(ctx context.Context, ownerID string) ([]core.PaymentMethod, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return r.store.ListPaymentMethods(ctx, ownerID)
}

// Update renames or recolors a payment method. Currency is immutable once the
// method exists: historical snapshots reference it.
func (r *Registry) Update(ctx context.Context, ownerID, id, name, color string) (core.PaymentMethod, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.PaymentMethod{}, err
	}

	pm, err := r.store.GetPaymentMethod(ctx, ownerID, id)
	if err != nil {
		return core.PaymentMethod{}, err
	}

	pm.Name = strings.TrimSpace(name)
	pm.Color = color
	if err := pm.Validate(); err != nil {
		return core.PaymentMethod{}, err
	}

	if err := r.store.UpdatePaymentMethod(ctx, pm); err != nil {
		return core.PaymentMethod{}, fmt.Errorf("update payment method: %w", err)
	}
	return pm, nil
}

// SetDefault marks one method as the default; the store clears the previous
// default in the same statement.
func (r *Registry) SetDefault(ctx context.Context, ownerID, id string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	return r.store.SetDefaultPaymentMethod(ctx, ownerID, id)
}

// Archive hides a method from new activity while keeping its history and
// balance contribution intact.
func (r *Registry) Archive(ctx context.Context, ownerID, id string) (core.PaymentMethod, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.PaymentMethod{}, err
	}

	pm, err := r.store.GetPaymentMethod(ctx, ownerID, id)
	if err != nil {
		return core.PaymentMethod{}, err
	}

	pm.IsActive = false
	pm.IsDefault = false
	if err := r.store.UpdatePaymentMethod(ctx, pm); err != nil {
		return core.PaymentMethod{}, fmt.Errorf("archive payment method: %w", err)
	}

	slog.InfoContext(ctx, "Archived payment method", "payment_method_id", id)
	return pm, nil
}

// Delete removes a payment method that no transaction references. Methods
// with history must be archived instead.
func (r *Registry) Delete(ctx context.Context, ownerID, id string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	if _, err := r.store.GetPaymentMethod(ctx, ownerID, id); err != nil {
		return err
	}

	count, err := r.store.CountTransactionsForPaymentMethod(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("count transactions: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: payment method has %d transactions, archive it instead", core.ErrCannotDelete, count)
	}

	return r.store.DeletePaymentMethod(ctx, ownerID, id)
}

// ResolveForTransaction picks the account for a transaction that did not name
// one: the default active method, else the first active method, else a
// freshly created fallback wallet in the owner's base currency.
func (r *Registry) ResolveForTransaction(ctx context.Context, ownerID string) (core.PaymentMethod, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.PaymentMethod{}, err
	}

	methods, err := r.store.ListPaymentMethods(ctx, ownerID)
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("list payment methods: %w", err)
	}

	var firstActive *core.PaymentMethod
	for i := range methods {
		if !methods[i].IsActive {
			continue
		}
		if methods[i].IsDefault {
			return methods[i], nil
		}
		if firstActive == nil {
			firstActive = &methods[i]
		}
	}
	if firstActive != nil {
		return *firstActive, nil
	}

	base, err := r.store.OwnerBaseCurrency(ctx, ownerID)
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("resolve base currency: %w", err)
	}

	fallback := core.PaymentMethod{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      core.FallbackAccountName,
		Currency:  base,
		IsDefault: true,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if err := r.store.CreatePaymentMethod(ctx, fallback); err != nil {
		return core.PaymentMethod{}, fmt.Errorf("create fallback payment method: %w", err)
	}

	slog.InfoContext(ctx, "Created fallback payment method",
		"payment_method_id", fallback.ID,
		"currency", base)

	return fallback, nil
}
