package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
)

const transactionColumns = `id, owner_id, type, category_id, payment_method_id, date, description,
	amount_cents, native_amount_cents, exchange_rate, base_currency,
	linked_transaction_id, transfer_role, created_at`

// signedNativeCents is the store-side rendition of the contribution rule in
// core. Legs written by this engine carry an explicit role; the nested CASE
// reproduces the creation-order fallback for legacy rows so the aggregate
// never disagrees with core.EffectiveRole.
const signedNativeCents = `
	CASE t.type
		WHEN 'income' THEN t.native_amount_cents
		WHEN 'expense' THEN -t.native_amount_cents
		ELSE CASE
			WHEN t.transfer_role = 'deposit' THEN t.native_amount_cents
			WHEN t.transfer_role = 'withdrawal' THEN -t.native_amount_cents
			WHEN EXISTS (
				SELECT 1 FROM transactions l
				WHERE l.id = t.linked_transaction_id
				  AND (l.created_at < t.created_at
				       OR (l.created_at = t.created_at AND l.id < t.id))
			) THEN t.native_amount_cents
			ELSE -t.native_amount_cents
		END
	END`

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.OwnerID, string(tx.Type), nullable(tx.CategoryID), nullable(tx.PaymentMethodID),
		tx.Date.String(), tx.Description,
		centsOf(tx.Amount), centsOf(tx.NativeAmount), tx.ExchangeRate.String(), tx.BaseCurrency,
		nullable(tx.LinkedID), nullable(string(tx.TransferRole)), formatTime(tx.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE owner_id = ? AND id = ?`, ownerID, id)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return core.Transaction{}, core.NotFoundf("transaction %s", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	tx.TagIDs, err = r.transactionTagIDs(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// TransactionFilter narrows ListTransactions. Zero fields are ignored.
type TransactionFilter struct {
	Type            core.TransactionType
	PaymentMethodID string
	From, To        core.Date
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, ownerID string, f TransactionFilter) ([]core.Transaction, error) {
	where := []string{"owner_id = ?"}
	args := []any{ownerID}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.PaymentMethodID != "" {
		where = append(where, "payment_method_id = ?")
		args = append(args, f.PaymentMethodID)
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.To.String())
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+strings.Join(where, " AND ")+
			` ORDER BY date DESC, created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// UpdateTransaction rewrites the mutable columns of a single row.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET category_id = ?, payment_method_id = ?, date = ?, description = ?,
		 amount_cents = ?, native_amount_cents = ?, exchange_rate = ?, base_currency = ?
		 WHERE owner_id = ? AND id = ?`,
		nullable(tx.CategoryID), nullable(tx.PaymentMethodID), tx.Date.String(), tx.Description,
		centsOf(tx.Amount), centsOf(tx.NativeAmount), tx.ExchangeRate.String(), tx.BaseCurrency,
		tx.OwnerID, tx.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return requireRow(res, "transaction %s", tx.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return requireRow(res, "transaction %s", id)
}

// SetLinkedTransaction writes the back-reference of a transfer pair.
func (r *SQLiteRepository) SetLinkedTransaction(ctx context.Context, ownerID, id, linkedID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET linked_transaction_id = ? WHERE owner_id = ? AND id = ?`,
		linkedID, ownerID, id)
	if err != nil {
		return fmt.Errorf("link transaction: %w", err)
	}
	return requireRow(res, "transaction %s", id)
}

func (r *SQLiteRepository) InsertTransactionTags(ctx context.Context, txID string, tagIDs []string) error {
	for _, tagID := range tagIDs {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO transaction_tags (transaction_id, tag_id) VALUES (?, ?)
			 ON CONFLICT (transaction_id, tag_id) DO NOTHING`, txID, tagID)
		if err != nil {
			return fmt.Errorf("insert transaction tag %s: %w", tagID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) DeleteTransactionTags(ctx context.Context, txID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM transaction_tags WHERE transaction_id = ?`, txID)
	if err != nil {
		return fmt.Errorf("delete transaction tags: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) transactionTagIDs(ctx context.Context, txID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tag_id FROM transaction_tags WHERE transaction_id = ? ORDER BY tag_id`, txID)
	if err != nil {
		return nil, fmt.Errorf("transaction tags: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tag id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AccountBalance is the stored-function equivalent of spec'd
// accountBalance(account_id): the exact signed native sum for one account.
func (r *SQLiteRepository) AccountBalance(ctx context.Context, ownerID, paymentMethodID string) (decimal.Decimal, error) {
	var cents sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT SUM(`+signedNativeCents+`) FROM transactions t
		 WHERE t.owner_id = ? AND t.payment_method_id = ?`,
		ownerID, paymentMethodID).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("account balance: %w", err)
	}
	return decimalOfCents(cents.Int64), nil
}

// CurrencyBalance is one row of the per-currency owner balance aggregate.
type CurrencyBalance struct {
	Currency string
	Balance  decimal.Decimal
}

// OwnerBalanceByCurrency sums native balances grouped by account currency,
// archived accounts included. Orphaned rows are not represented here.
func (r *SQLiteRepository) OwnerBalanceByCurrency(ctx context.Context, ownerID string) ([]CurrencyBalance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT pm.currency, SUM(`+signedNativeCents+`)
		 FROM transactions t
		 JOIN payment_methods pm ON pm.id = t.payment_method_id
		 WHERE t.owner_id = ?
		 GROUP BY pm.currency ORDER BY pm.currency`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("owner balance by currency: %w", err)
	}
	defer rows.Close()

	var out []CurrencyBalance
	for rows.Next() {
		var cur string
		var cents int64
		if err := rows.Scan(&cur, &cents); err != nil {
			return nil, fmt.Errorf("scan currency balance: %w", err)
		}
		out = append(out, CurrencyBalance{Currency: cur, Balance: decimalOfCents(cents)})
	}
	return out, rows.Err()
}

// ListOrphanedTransactions returns rows whose payment method is absent or no
// longer resolvable. They are excluded from balances and reported for
// reconciliation instead.
func (r *SQLiteRepository) ListOrphanedTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE owner_id = ?
		   AND (payment_method_id IS NULL
		        OR NOT EXISTS (SELECT 1 FROM payment_methods pm WHERE pm.id = payment_method_id))
		 ORDER BY date DESC, created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list orphaned transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var tx core.Transaction
	var typ, date, createdAt, rate string
	var categoryID, pmID, linkedID, role sql.NullString
	var amountCents, nativeCents int64
	err := s.Scan(&tx.ID, &tx.OwnerID, &typ, &categoryID, &pmID, &date, &tx.Description,
		&amountCents, &nativeCents, &rate, &tx.BaseCurrency, &linkedID, &role, &createdAt)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.TransactionType(typ)
	tx.CategoryID = categoryID.String
	tx.PaymentMethodID = pmID.String
	tx.LinkedID = linkedID.String
	tx.TransferRole = core.TransferRole(role.String)
	tx.Amount = decimalOfCents(amountCents)
	tx.NativeAmount = decimalOfCents(nativeCents)
	tx.ExchangeRate = parseDecimal(rate)
	tx.CreatedAt = parseTime(createdAt)
	if d, err := core.ParseDate(date); err == nil {
		tx.Date = d
	}
	return tx, nil
}
