package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"moneta/internal/core"
)

// LegacyBucketName labels the breakdown group for expenses whose payment
// method no longer resolves.
const LegacyBucketName = "Legacy Transactions"

// BudgetEngine manages monthly spending caps per category or tag and reports
// spend against them. Spend is summed over expense transactions only, in the
// base-currency amounts captured at creation; transfers never count.
type BudgetEngine struct {
	store Store
}

func NewBudgetEngine(store Store) *BudgetEngine {
	return &BudgetEngine{store: store}
}

// BudgetInput describes a new budget. Period accepts YYYY-MM or YYYY-MM-DD
// and is normalized to the first of the month. Exactly one of
// CategoryID/TagID must be set.
type BudgetInput struct {
	Amount     decimal.Decimal
	Period     string
	CategoryID string
	TagID      string
}

// BudgetStatus is one budget with its spend for the period.
type BudgetStatus struct {
	Budget    core.Budget
	Spent     decimal.Decimal
	Remaining decimal.Decimal
	OverLimit bool
}

// BreakdownEntry is one account's share of a budget's spend. Percent is of
// the budget limit, so the entries can sum past 100 when over budget.
type BreakdownEntry struct {
	PaymentMethodID   string
	PaymentMethodName string
	Amount            decimal.Decimal
	Percent           decimal.Decimal
}

func (e *BudgetEngine) Create(ctx context.Context, ownerID string, in BudgetInput) (core.Budget, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Budget{}, err
	}

	period, err := core.NormalizePeriod(in.Period)
	if err != nil {
		return core.Budget{}, err
	}

	b := core.Budget{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Amount:     in.Amount,
		Period:     period,
		CategoryID: in.CategoryID,
		TagID:      in.TagID,
		CreatedAt:  time.Now(),
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	if err := e.verifyTarget(ctx, ownerID, b.CategoryID, b.TagID); err != nil {
		return core.Budget{}, err
	}

	if _, exists, err := e.store.FindBudgetByTarget(ctx, ownerID, period, b.CategoryID, b.TagID); err != nil {
		return core.Budget{}, err
	} else if exists {
		return core.Budget{}, core.Conflictf("a budget for this target already exists in %s", period.Format("2006-01"))
	}

	if err := e.store.InsertBudget(ctx, b); err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

func (e *BudgetEngine) Get(ctx context.Context, ownerID, id string) (core.Budget, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Budget{}, err
	}
	return e.store.GetBudget(ctx, ownerID, id)
}

// List returns the owner's budgets, optionally narrowed to one period
// ("YYYY-MM" or "YYYY-MM-DD"; empty means all).
func (e *BudgetEngine) List(ctx context.Context, ownerID, period string) ([]core.Budget, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	var p core.Date
	if period != "" {
		var err error
		p, err = core.NormalizePeriod(period)
		if err != nil {
			return nil, err
		}
	}
	return e.store.ListBudgets(ctx, ownerID, p)
}

// UpdateAmount changes the limit. The target and period are immutable;
// retargeting is delete-and-recreate.
func (e *BudgetEngine) UpdateAmount(ctx context.Context, ownerID, id string, amount decimal.Decimal) (core.Budget, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Budget{}, err
	}
	if !amount.IsPositive() {
		return core.Budget{}, core.Validationf("budget amount must be positive")
	}
	if err := e.store.UpdateBudgetAmount(ctx, ownerID, id, amount); err != nil {
		return core.Budget{}, err
	}
	return e.store.GetBudget(ctx, ownerID, id)
}

func (e *BudgetEngine) Delete(ctx context.Context, ownerID, id string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	return e.store.DeleteBudget(ctx, ownerID, id)
}

// Status computes spend against one budget over its calendar month.
func (e *BudgetEngine) Status(ctx context.Context, ownerID, id string) (BudgetStatus, error) {
	if err := requireOwner(ownerID); err != nil {
		return BudgetStatus{}, err
	}

	b, err := e.store.GetBudget(ctx, ownerID, id)
	if err != nil {
		return BudgetStatus{}, err
	}

	from, to := core.PeriodBounds(b.Period)
	spent, err := e.store.SumExpenses(ctx, ownerID, b.CategoryID, b.TagID, from, to)
	if err != nil {
		return BudgetStatus{}, err
	}

	return BudgetStatus{
		Budget:    b,
		Spent:     spent,
		Remaining: b.Amount.Sub(spent),
		OverLimit: spent.GreaterThan(b.Amount),
	}, nil
}

// StatusForPeriod returns the status of every budget in one period.
func (e *BudgetEngine) StatusForPeriod(ctx context.Context, ownerID, period string) ([]BudgetStatus, error) {
	budgets, err := e.List(ctx, ownerID, period)
	if err != nil {
		return nil, err
	}
	out := make([]BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		status, err := e.Status(ctx, ownerID, b.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	return out, nil
}

// Breakdown groups one budget's spend by payment method, largest first.
// Expenses whose account is gone land in a named legacy bucket instead of
// disappearing from the report.
func (e *BudgetEngine) Breakdown(ctx context.Context, ownerID, id string) ([]BreakdownEntry, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	b, err := e.store.GetBudget(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	from, to := core.PeriodBounds(b.Period)
	groups, err := e.store.ExpenseBreakdownByPaymentMethod(ctx, ownerID, b.CategoryID, b.TagID, from, to)
	if err != nil {
		return nil, err
	}

	methods, err := e.store.ListPaymentMethods(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	names := make(map[string]string, len(methods))
	for _, pm := range methods {
		names[pm.ID] = pm.Name
	}

	hundred := decimal.NewFromInt(100)
	out := make([]BreakdownEntry, 0, len(groups))
	for _, g := range groups {
		entry := BreakdownEntry{
			PaymentMethodID: g.PaymentMethodID,
			Amount:          g.Total,
			Percent:         g.Total.Mul(hundred).DivRound(b.Amount, 1),
		}
		switch {
		case g.PaymentMethodID == "":
			entry.PaymentMethodName = LegacyBucketName
		case names[g.PaymentMethodID] != "":
			entry.PaymentMethodName = names[g.PaymentMethodID]
		default:
			// Account row deleted out-of-band but the id survived.
			entry.PaymentMethodName = LegacyBucketName
		}
		out = append(out, entry)
	}
	return out, nil
}

func (e *BudgetEngine) verifyTarget(ctx context.Context, ownerID, categoryID, tagID string) error {
	if categoryID != "" {
		_, err := e.store.GetCategory(ctx, ownerID, categoryID)
		return err
	}
	tags, err := e.store.TagsByIDs(ctx, ownerID, []string{tagID})
	if err != nil {
		return fmt.Errorf("verify tag: %w", err)
	}
	if len(tags) == 0 {
		return core.NotFoundf("tag %q", tagID)
	}
	return nil
}
