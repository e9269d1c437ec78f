package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"moneta/internal/core"
)

// BalanceAggregator derives account and portfolio balances. Native balances
// come from the store's signed aggregate; conversion to the owner's base
// currency happens at today's rate, degrading to the native value when no
// rate is resolvable.
type BalanceAggregator struct {
	store    Store
	resolver RateResolver
}

func NewBalanceAggregator(store Store, resolver RateResolver) *BalanceAggregator {
	return &BalanceAggregator{store: store, resolver: resolver}
}

// AccountBalance is one account's position: the exact native balance plus its
// base-currency estimate. Converted is false when no rate was resolvable; the
// Base value then still holds the native number so totals never drop an
// account silently.
type AccountBalance struct {
	PaymentMethod core.PaymentMethod
	Native        decimal.Decimal
	Base          decimal.Decimal
	Converted     bool
	RateStale     bool
}

// OrphanReport summarizes transactions excluded from every account balance
// because their payment method no longer resolves.
type OrphanReport struct {
	Count int
	Net   decimal.Decimal // signed base-currency sum at creation-time rates
}

// TotalBalance is the owner's portfolio view.
type TotalBalance struct {
	BaseCurrency string
	Total        decimal.Decimal
	Accounts     []AccountBalance
	Orphans      OrphanReport
}

// ForAccount returns one account's balance. Archived accounts are included:
// their money did not stop existing.
func (b *BalanceAggregator) ForAccount(ctx context.Context, ownerID, paymentMethodID string) (AccountBalance, error) {
	if err := requireOwner(ownerID); err != nil {
		return AccountBalance{}, err
	}

	pm, err := b.store.GetPaymentMethod(ctx, ownerID, paymentMethodID)
	if err != nil {
		return AccountBalance{}, err
	}

	base, err := b.store.OwnerBaseCurrency(ctx, ownerID)
	if err != nil {
		return AccountBalance{}, fmt.Errorf("resolve base currency: %w", err)
	}
	return b.accountBalance(ctx, pm, base)
}

// Total aggregates every account, archived ones included, into the owner's
// base currency at today's rates, and reports orphaned rows on the side.
func (b *BalanceAggregator) Total(ctx context.Context, ownerID string) (TotalBalance, error) {
	if err := requireOwner(ownerID); err != nil {
		return TotalBalance{}, err
	}

	base, err := b.store.OwnerBaseCurrency(ctx, ownerID)
	if err != nil {
		return TotalBalance{}, fmt.Errorf("resolve base currency: %w", err)
	}
	methods, err := b.store.ListPaymentMethods(ctx, ownerID)
	if err != nil {
		return TotalBalance{}, fmt.Errorf("list payment methods: %w", err)
	}

	accounts := make([]AccountBalance, len(methods))
	g, gctx := errgroup.WithContext(ctx)
	for i, pm := range methods {
		g.Go(func() error {
			acct, err := b.accountBalance(gctx, pm, base)
			if err != nil {
				return err
			}
			accounts[i] = acct
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TotalBalance{}, err
	}

	total := decimal.Zero
	for _, acct := range accounts {
		total = total.Add(acct.Base)
	}

	orphans, err := b.orphanReport(ctx, ownerID)
	if err != nil {
		return TotalBalance{}, err
	}

	return TotalBalance{
		BaseCurrency: base,
		Total:        total,
		Accounts:     accounts,
		Orphans:      orphans,
	}, nil
}

func (b *BalanceAggregator) accountBalance(ctx context.Context, pm core.PaymentMethod, base string) (AccountBalance, error) {
	native, err := b.store.AccountBalance(ctx, pm.OwnerID, pm.ID)
	if err != nil {
		return AccountBalance{}, fmt.Errorf("account balance %s: %w", pm.ID, err)
	}

	acct := AccountBalance{PaymentMethod: pm, Native: native}

	res, err := b.resolver.Resolve(ctx, pm.Currency, base, today())
	if err != nil {
		return AccountBalance{}, fmt.Errorf("resolve %s/%s: %w", pm.Currency, base, err)
	}
	if !res.Found {
		// Keep the native figure in the total rather than zeroing the
		// account out of the portfolio.
		slog.WarnContext(ctx, "No rate for account conversion, using native value",
			"payment_method_id", pm.ID,
			"currency", pm.Currency,
			"base_currency", base)
		acct.Base = native
		return acct, nil
	}

	acct.Base = core.Convert(native, res.Rate)
	acct.Converted = true
	acct.RateStale = res.Stale
	return acct, nil
}

// orphanReport tallies rows that no account balance can claim, valued at
// their creation-time base amounts.
func (b *BalanceAggregator) orphanReport(ctx context.Context, ownerID string) (OrphanReport, error) {
	orphans, err := b.store.ListOrphanedTransactions(ctx, ownerID)
	if err != nil {
		return OrphanReport{}, fmt.Errorf("list orphaned transactions: %w", err)
	}

	byID := make(map[string]core.Transaction, len(orphans))
	for _, tx := range orphans {
		byID[tx.ID] = tx
	}

	report := OrphanReport{Count: len(orphans), Net: decimal.Zero}
	for _, tx := range orphans {
		// Legacy transfer legs carry no role; resolve it through the
		// counterpart so a role-less pair nets to zero instead of
		// counting both legs as withdrawals.
		if tx.Type == core.TypeTransfer && tx.TransferRole == "" && tx.LinkedID != "" {
			counterpart, ok := byID[tx.LinkedID]
			if !ok {
				counterpart, err = b.store.GetTransaction(ctx, ownerID, tx.LinkedID)
				if err != nil {
					if !errors.Is(err, core.ErrNotFound) {
						return OrphanReport{}, fmt.Errorf("resolve transfer counterpart %s: %w", tx.LinkedID, err)
					}
					counterpart = core.Transaction{}
				}
			}
			if counterpart.ID != "" {
				tx.TransferRole = core.EffectiveRole(tx, counterpart)
			}
		}
		report.Net = report.Net.Add(tx.BaseContribution())
	}
	if report.Count > 0 {
		slog.WarnContext(ctx, "Orphaned transactions excluded from balances",
			"count", report.Count,
			"net", report.Net.String())
	}
	return report, nil
}
