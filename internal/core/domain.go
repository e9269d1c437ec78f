package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeIncome   TransactionType = "income"
	TypeExpense  TransactionType = "expense"
	TypeTransfer TransactionType = "transfer"
)

const (
	RoleWithdrawal TransferRole = "withdrawal"
	RoleDeposit    TransferRole = "deposit"
)

// FallbackAccountName is the payment method auto-created the first time an
// owner records a transaction without any account set up.
const FallbackAccountName = "Cash/Wallet"

type (
	// TransactionType is one of the fixed movement kinds. This is not a
	// general posting system: only income, expense and transfer exist.
	TransactionType string

	// TransferRole tags a transfer leg as the withdrawal (source) or
	// deposit (destination) side of its pair. It is written at creation
	// time so reads never have to infer direction from row ordering.
	TransferRole string

	// Date is a calendar day; the time-of-day part is always midnight UTC.
	Date struct {
		time.Time
	}

	// PaymentMethod is a user-owned account. Archived accounts
	// (IsActive=false) keep their currency and name so historical
	// transactions stay reportable.
	PaymentMethod struct {
		ID        string
		OwnerID   string
		Name      string
		Currency  string
		IsDefault bool
		IsActive  bool
		Color     string
		CreatedAt time.Time
	}

	// Category is a ledger dimension for income/expense transactions.
	Category struct {
		ID      string
		OwnerID string
		Name    string
		Kind    TransactionType
	}

	// Tag is a free-form ledger dimension, attachable to any
	// income/expense transaction.
	Tag struct {
		ID      string
		OwnerID string
		Name    string
	}

	// Transaction is a single ledger entry. Amount and NativeAmount are
	// always stored positive; the signed effect on a balance is derived
	// from Type and TransferRole, never from the stored value.
	Transaction struct {
		ID              string
		OwnerID         string
		Type            TransactionType
		CategoryID      string // required for income/expense, empty for transfers
		PaymentMethodID string // empty only on legacy rows
		Date            Date
		Description     string
		Amount          decimal.Decimal // base currency
		NativeAmount    decimal.Decimal // payment-method currency
		ExchangeRate    decimal.Decimal // native -> base, captured at creation
		BaseCurrency    string          // owner's currency at creation time
		LinkedID        string          // counterpart leg, transfers only
		TransferRole    TransferRole    // transfers only; empty on legacy rows
		TagIDs          []string
		CreatedAt       time.Time
	}

	// TransferPair is the derived, non-persisted view of two linked
	// transfer legs. ID is the withdrawal leg's id.
	TransferPair struct {
		ID                  string
		Source              Transaction
		Destination         Transaction
		SourcePaymentMethod PaymentMethod
		DestPaymentMethod   PaymentMethod
		SourceAmount        decimal.Decimal
		DestinationAmount   decimal.Decimal
		ExchangeRate        decimal.Decimal // destination native / source native
	}

	// Budget caps spending for one category or one tag in one calendar
	// month. Exactly one of CategoryID/TagID is set; the target is
	// immutable (delete and recreate to retarget).
	Budget struct {
		ID         string
		OwnerID    string
		Amount     decimal.Decimal
		Period     Date // always the first day of a month
		CategoryID string
		TagID      string
		CreatedAt  time.Time
	}

	// ExchangeRate is one stored (from, to, day) observation. Source is
	// the provider tag; Stale is set by the refresh worker when the rate
	// could not be renewed within its freshness window.
	ExchangeRate struct {
		From      string
		To        string
		Date      Date
		Rate      decimal.Decimal
		FetchedAt time.Time
		Source    string
		Stale     bool
	}
)

// NewDate builds a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, Validationf("date %q must be YYYY-MM-DD", s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

// ValidCurrency reports whether code looks like an ISO 4217 currency code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func (t TransactionType) Valid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeTransfer:
		return true
	}
	return false
}

func (p PaymentMethod) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return Validationf("payment method name is required")
	}
	if len(p.Name) > 100 {
		return Validationf("payment method name too long (max 100 characters)")
	}
	if !ValidCurrency(p.Currency) {
		return Validationf("currency %q is not a valid ISO 4217 code", p.Currency)
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return Validationf("unknown transaction type %q", string(t.Type))
	}
	if t.Date.IsZero() {
		return Validationf("transaction date is required")
	}
	if len(t.Description) > 200 {
		return Validationf("description too long (max 200 characters)")
	}
	if !t.NativeAmount.IsPositive() {
		return Validationf("amount must be positive")
	}
	switch t.Type {
	case TypeTransfer:
		if t.CategoryID != "" {
			return Validationf("transfers cannot carry a category")
		}
	default:
		if t.CategoryID == "" {
			return Validationf("%s transactions require a category", t.Type)
		}
	}
	return nil
}

func (b Budget) Validate() error {
	if !b.Amount.IsPositive() {
		return Validationf("budget amount must be positive")
	}
	if b.Period.IsZero() {
		return Validationf("budget period is required")
	}
	if (b.CategoryID == "") == (b.TagID == "") {
		return Validationf("budget must target exactly one of category or tag")
	}
	return nil
}
