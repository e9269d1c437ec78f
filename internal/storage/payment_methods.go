package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"moneta/internal/core"
)

func (r *SQLiteRepository) CreatePaymentMethod(ctx context.Context, pm core.PaymentMethod) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_methods (id, owner_id, name, currency, is_default, is_active, color, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pm.ID, pm.OwnerID, pm.Name, pm.Currency, boolInt(pm.IsDefault), boolInt(pm.IsActive), pm.Color, formatTime(pm.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return core.Conflictf("payment method named %q already exists", pm.Name)
		}
		return fmt.Errorf("create payment method: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetPaymentMethod(ctx context.Context, ownerID, id string) (core.PaymentMethod, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, currency, is_default, is_active, color, created_at
		 FROM payment_methods WHERE owner_id = ? AND id = ?`, ownerID, id)
	pm, err := scanPaymentMethod(row)
	if err == sql.ErrNoRows {
		return core.PaymentMethod{}, core.NotFoundf("payment method %s", id)
	}
	if err != nil {
		return core.PaymentMethod{}, fmt.Errorf("get payment method: %w", err)
	}
	return pm, nil
}

// ListPaymentMethods returns all of the owner's accounts ordered by name,
// archived ones included.
func (r *SQLiteRepository) ListPaymentMethods(ctx context.Context, ownerID string) ([]core.PaymentMethod, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name, currency, is_default, is_active, color, created_at
		 FROM payment_methods WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	defer rows.Close()

	var out []core.PaymentMethod
	for rows.Next() {
		pm, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdatePaymentMethod(ctx context.Context, pm core.PaymentMethod) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_methods SET name = ?, currency = ?, is_active = ?, is_default = ?, color = ?
		 WHERE owner_id = ? AND id = ?`,
		pm.Name, pm.Currency, boolInt(pm.IsActive), boolInt(pm.IsDefault), pm.Color, pm.OwnerID, pm.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Conflictf("payment method named %q already exists", pm.Name)
		}
		return fmt.Errorf("update payment method: %w", err)
	}
	return requireRow(res, "payment method %s", pm.ID)
}

// SetDefaultPaymentMethod flips the default flag in a single statement; the
// store trigger unsets the previous default.
func (r *SQLiteRepository) SetDefaultPaymentMethod(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_methods SET is_default = 1 WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("set default payment method: %w", err)
	}
	return requireRow(res, "payment method %s", id)
}

func (r *SQLiteRepository) DeletePaymentMethod(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM payment_methods WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete payment method: %w", err)
	}
	return requireRow(res, "payment method %s", id)
}

// CountTransactionsForPaymentMethod backs the delete-vs-archive decision.
func (r *SQLiteRepository) CountTransactionsForPaymentMethod(ctx context.Context, ownerID, id string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE owner_id = ? AND payment_method_id = ?`,
		ownerID, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions for payment method: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaymentMethod(s rowScanner) (core.PaymentMethod, error) {
	var pm core.PaymentMethod
	var isDefault, isActive int64
	var createdAt string
	err := s.Scan(&pm.ID, &pm.OwnerID, &pm.Name, &pm.Currency, &isDefault, &isActive, &pm.Color, &createdAt)
	if err != nil {
		return core.PaymentMethod{}, err
	}
	pm.IsDefault = isDefault != 0
	pm.IsActive = isActive != 0
	pm.CreatedAt = parseTime(createdAt)
	return pm, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.NotFoundf(format, args...)
	}
	return nil
}

// isUniqueViolation matches the driver's constraint error text; modernc's
// sqlite driver does not export a typed constraint error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
