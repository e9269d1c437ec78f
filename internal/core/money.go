// Package core holds the domain model of the ledger.
//
// This file contains amount parsing and currency conversion helpers. All
// monetary arithmetic goes through shopspring/decimal; float64 never touches
// an amount.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyScale is the number of fractional digits amounts are stored with.
const CurrencyScale = 2

// ParseAmount converts a user-supplied decimal string into a positive amount.
//
// Both dot (12.34) and comma (12,34) separators are accepted. The value is
// rounded half-up to two fractional digits. Zero, negative and malformed
// inputs are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, Validationf("amount is required")
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, Validationf("amount must be a plain positive number")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, Validationf("amount %q is not a number", s)
	}
	d = d.Round(CurrencyScale)
	if !d.IsPositive() {
		return decimal.Zero, Validationf("amount must be positive")
	}
	return d, nil
}

// Convert applies rate to a native amount and rounds to the currency scale.
func Convert(native, rate decimal.Decimal) decimal.Decimal {
	return native.Mul(rate).Round(CurrencyScale)
}

// DisplayRate recomputes a transfer's effective rate from its two native
// amounts. Returns zero when the source amount is zero.
func DisplayRate(sourceNative, destNative decimal.Decimal) decimal.Decimal {
	if sourceNative.IsZero() {
		return decimal.Zero
	}
	return destNative.DivRound(sourceNative, 6)
}
