package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
)

func (r *SQLiteRepository) InsertBudget(ctx context.Context, b core.Budget) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (id, owner_id, amount_cents, period, category_id, tag_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, centsOf(b.Amount), b.Period.String(),
		nullable(b.CategoryID), nullable(b.TagID), formatTime(b.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return core.Conflictf("budget for this target and period already exists")
		}
		return fmt.Errorf("insert budget: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, ownerID, id string) (core.Budget, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, amount_cents, period, category_id, tag_id, created_at
		 FROM budgets WHERE owner_id = ? AND id = ?`, ownerID, id)
	b, err := scanBudget(row)
	if err == sql.ErrNoRows {
		return core.Budget{}, core.NotFoundf("budget %s", id)
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, ownerID string, period core.Date) ([]core.Budget, error) {
	query := `SELECT id, owner_id, amount_cents, period, category_id, tag_id, created_at
		 FROM budgets WHERE owner_id = ?`
	args := []any{ownerID}
	if !period.IsZero() {
		query += ` AND period = ?`
		args = append(args, period.String())
	}
	rows, err := r.db.QueryContext(ctx, query+` ORDER BY period DESC, created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FindBudgetByTarget is the check half of the duplicate guard; the partial
// unique indexes remain the store-level backstop.
func (r *SQLiteRepository) FindBudgetByTarget(ctx context.Context, ownerID string, period core.Date, categoryID, tagID string) (core.Budget, bool, error) {
	query := `SELECT id, owner_id, amount_cents, period, category_id, tag_id, created_at
		 FROM budgets WHERE owner_id = ? AND period = ?`
	args := []any{ownerID, period.String()}
	if categoryID != "" {
		query += ` AND category_id = ?`
		args = append(args, categoryID)
	} else {
		query += ` AND tag_id = ?`
		args = append(args, tagID)
	}
	b, err := scanBudget(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return core.Budget{}, false, nil
	}
	if err != nil {
		return core.Budget{}, false, fmt.Errorf("find budget by target: %w", err)
	}
	return b, true, nil
}

// UpdateBudgetAmount changes the limit only; the target is immutable.
func (r *SQLiteRepository) UpdateBudgetAmount(ctx context.Context, ownerID, id string, amount decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE budgets SET amount_cents = ? WHERE owner_id = ? AND id = ?`,
		centsOf(amount), ownerID, id)
	if err != nil {
		return fmt.Errorf("update budget amount: %w", err)
	}
	return requireRow(res, "budget %s", id)
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM budgets WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	return requireRow(res, "budget %s", id)
}

// SumExpenses totals expense-type transactions matching a budget target in
// [from, to]. Exactly one of categoryID/tagID is set. Transfers are never
// counted as spend. Sums the base-currency amount captured at creation so
// spend from accounts in different currencies stays comparable to the limit.
func (r *SQLiteRepository) SumExpenses(ctx context.Context, ownerID, categoryID, tagID string, from, to core.Date) (decimal.Decimal, error) {
	var cents sql.NullInt64
	var err error
	if categoryID != "" {
		err = r.db.QueryRowContext(ctx,
			`SELECT SUM(amount_cents) FROM transactions
			 WHERE owner_id = ? AND type = 'expense' AND category_id = ? AND date >= ? AND date <= ?`,
			ownerID, categoryID, from.String(), to.String()).Scan(&cents)
	} else {
		err = r.db.QueryRowContext(ctx,
			`SELECT SUM(t.amount_cents) FROM transactions t
			 JOIN transaction_tags tt ON tt.transaction_id = t.id
			 WHERE t.owner_id = ? AND t.type = 'expense' AND tt.tag_id = ? AND t.date >= ? AND t.date <= ?`,
			ownerID, tagID, from.String(), to.String()).Scan(&cents)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses: %w", err)
	}
	return decimalOfCents(cents.Int64), nil
}

// PaymentMethodSum is one group of the budget spend breakdown. An empty
// PaymentMethodID marks rows with no account (the legacy bucket).
type PaymentMethodSum struct {
	PaymentMethodID string
	Total           decimal.Decimal
}

// ExpenseBreakdownByPaymentMethod groups the same transaction set as
// SumExpenses by account, in base currency, ordered by amount descending.
func (r *SQLiteRepository) ExpenseBreakdownByPaymentMethod(ctx context.Context, ownerID, categoryID, tagID string, from, to core.Date) ([]PaymentMethodSum, error) {
	var rows *sql.Rows
	var err error
	if categoryID != "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT COALESCE(payment_method_id, ''), SUM(amount_cents) AS total
			 FROM transactions
			 WHERE owner_id = ? AND type = 'expense' AND category_id = ? AND date >= ? AND date <= ?
			 GROUP BY payment_method_id ORDER BY total DESC`,
			ownerID, categoryID, from.String(), to.String())
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT COALESCE(t.payment_method_id, ''), SUM(t.amount_cents) AS total
			 FROM transactions t
			 JOIN transaction_tags tt ON tt.transaction_id = t.id
			 WHERE t.owner_id = ? AND t.type = 'expense' AND tt.tag_id = ? AND t.date >= ? AND t.date <= ?
			 GROUP BY t.payment_method_id ORDER BY total DESC`,
			ownerID, tagID, from.String(), to.String())
	}
	if err != nil {
		return nil, fmt.Errorf("expense breakdown: %w", err)
	}
	defer rows.Close()

	var out []PaymentMethodSum
	for rows.Next() {
		var g PaymentMethodSum
		var cents int64
		if err := rows.Scan(&g.PaymentMethodID, &cents); err != nil {
			return nil, fmt.Errorf("scan breakdown group: %w", err)
		}
		g.Total = decimalOfCents(cents)
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanBudget(s rowScanner) (core.Budget, error) {
	var b core.Budget
	var cents int64
	var period, createdAt string
	var categoryID, tagID sql.NullString
	err := s.Scan(&b.ID, &b.OwnerID, &cents, &period, &categoryID, &tagID, &createdAt)
	if err != nil {
		return core.Budget{}, err
	}
	b.Amount = decimalOfCents(cents)
	b.CategoryID = categoryID.String
	b.TagID = tagID.String
	b.CreatedAt = parseTime(createdAt)
	if d, err := core.ParseDate(period); err == nil {
		b.Period = d
	}
	return b, nil
}
