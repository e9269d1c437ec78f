package core

import "github.com/shopspring/decimal"

// This file is the single authoritative definition of how a transaction
// moves a balance. Every aggregation path (per-account, total, reports) must
// go through it; there is deliberately no second formula anywhere else.

// EffectiveRole returns the transfer role of leg. Legs written by this
// engine carry an explicit role; legacy rows fall back to the original
// creation-order rule (the earlier leg is the withdrawal), with the id as a
// deterministic tie-break.
func EffectiveRole(leg, counterpart Transaction) TransferRole {
	if leg.TransferRole != "" {
		return leg.TransferRole
	}
	if leg.CreatedAt.Before(counterpart.CreatedAt) {
		return RoleWithdrawal
	}
	if counterpart.CreatedAt.Before(leg.CreatedAt) {
		return RoleDeposit
	}
	if leg.ID < counterpart.ID {
		return RoleWithdrawal
	}
	return RoleDeposit
}

// NativeContribution returns the signed effect of t on its own payment
// method's native-currency balance: income adds, expense subtracts, a
// transfer leg subtracts or adds depending on its role. The stored amount is
// always positive; the sign exists only here.
func (t Transaction) NativeContribution() decimal.Decimal {
	switch t.Type {
	case TypeIncome:
		return t.NativeAmount
	case TypeExpense:
		return t.NativeAmount.Neg()
	case TypeTransfer:
		if t.TransferRole == RoleDeposit {
			return t.NativeAmount
		}
		return t.NativeAmount.Neg()
	}
	return decimal.Zero
}

// BaseContribution is the same rule applied to the base-currency amount
// captured at creation time.
func (t Transaction) BaseContribution() decimal.Decimal {
	switch t.Type {
	case TypeIncome:
		return t.Amount
	case TypeExpense:
		return t.Amount.Neg()
	case TypeTransfer:
		if t.TransferRole == RoleDeposit {
			return t.Amount
		}
		return t.Amount.Neg()
	}
	return decimal.Zero
}
