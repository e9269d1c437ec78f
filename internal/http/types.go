package http

import (
	"time"

	"moneta/internal/core"
	"moneta/internal/services"
)

// Wire representations. Amounts and rates travel as decimal strings; dates as
// YYYY-MM-DD.

type accountDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	Color     string `json:"color,omitempty"`
	IsDefault bool   `json:"is_default"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

func toAccountDTO(pm core.PaymentMethod) accountDTO {
	return accountDTO{
		ID:        pm.ID,
		Name:      pm.Name,
		Currency:  pm.Currency,
		Color:     pm.Color,
		IsDefault: pm.IsDefault,
		IsActive:  pm.IsActive,
		CreatedAt: pm.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toAccountDTOs(pms []core.PaymentMethod) []accountDTO {
	out := make([]accountDTO, 0, len(pms))
	for _, pm := range pms {
		out = append(out, toAccountDTO(pm))
	}
	return out
}

type transactionDTO struct {
	ID              string   `json:"id"`
	Type            string   `json:"type"`
	CategoryID      string   `json:"category_id,omitempty"`
	PaymentMethodID string   `json:"payment_method_id,omitempty"`
	Date            string   `json:"date"`
	Description     string   `json:"description,omitempty"`
	Amount          string   `json:"amount"`
	NativeAmount    string   `json:"native_amount"`
	ExchangeRate    string   `json:"exchange_rate"`
	BaseCurrency    string   `json:"base_currency"`
	LinkedID        string   `json:"linked_transaction_id,omitempty"`
	TransferRole    string   `json:"transfer_role,omitempty"`
	TagIDs          []string `json:"tag_ids,omitempty"`
}

func toTransactionDTO(tx core.Transaction) transactionDTO {
	return transactionDTO{
		ID:              tx.ID,
		Type:            string(tx.Type),
		CategoryID:      tx.CategoryID,
		PaymentMethodID: tx.PaymentMethodID,
		Date:            tx.Date.String(),
		Description:     tx.Description,
		Amount:          tx.Amount.String(),
		NativeAmount:    tx.NativeAmount.String(),
		ExchangeRate:    tx.ExchangeRate.String(),
		BaseCurrency:    tx.BaseCurrency,
		LinkedID:        tx.LinkedID,
		TransferRole:    string(tx.TransferRole),
		TagIDs:          tx.TagIDs,
	}
}

func toTransactionDTOs(txs []core.Transaction) []transactionDTO {
	out := make([]transactionDTO, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionDTO(tx))
	}
	return out
}

type transferDTO struct {
	ID                 string     `json:"id"`
	SourceAccount      accountDTO `json:"source_account"`
	DestinationAccount accountDTO `json:"destination_account"`
	SourceAmount       string     `json:"source_amount"`
	DestinationAmount  string     `json:"destination_amount"`
	ExchangeRate       string     `json:"exchange_rate"`
	Date               string     `json:"date"`
	Description        string     `json:"description,omitempty"`
}

func toTransferDTO(p core.TransferPair) transferDTO {
	return transferDTO{
		ID:                 p.ID,
		SourceAccount:      toAccountDTO(p.SourcePaymentMethod),
		DestinationAccount: toAccountDTO(p.DestPaymentMethod),
		SourceAmount:       p.SourceAmount.String(),
		DestinationAmount:  p.DestinationAmount.String(),
		ExchangeRate:       p.ExchangeRate.String(),
		Date:               p.Source.Date.String(),
		Description:        p.Source.Description,
	}
}

type categoryDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func toCategoryDTO(c core.Category) categoryDTO {
	return categoryDTO{ID: c.ID, Name: c.Name, Kind: string(c.Kind)}
}

type tagDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toTagDTO(t core.Tag) tagDTO {
	return tagDTO{ID: t.ID, Name: t.Name}
}

type accountBalanceDTO struct {
	Account   accountDTO `json:"account"`
	Native    string     `json:"native_balance"`
	Base      string     `json:"base_balance"`
	Converted bool       `json:"converted"`
	RateStale bool       `json:"rate_stale,omitempty"`
}

func toAccountBalanceDTO(b services.AccountBalance) accountBalanceDTO {
	return accountBalanceDTO{
		Account:   toAccountDTO(b.PaymentMethod),
		Native:    b.Native.String(),
		Base:      b.Base.String(),
		Converted: b.Converted,
		RateStale: b.RateStale,
	}
}

type totalBalanceDTO struct {
	BaseCurrency string              `json:"base_currency"`
	Total        string              `json:"total"`
	Accounts     []accountBalanceDTO `json:"accounts"`
	OrphanCount  int                 `json:"orphan_count,omitempty"`
	OrphanNet    string              `json:"orphan_net,omitempty"`
}

func toTotalBalanceDTO(t services.TotalBalance) totalBalanceDTO {
	dto := totalBalanceDTO{
		BaseCurrency: t.BaseCurrency,
		Total:        t.Total.String(),
		Accounts:     make([]accountBalanceDTO, 0, len(t.Accounts)),
		OrphanCount:  t.Orphans.Count,
	}
	if t.Orphans.Count > 0 {
		dto.OrphanNet = t.Orphans.Net.String()
	}
	for _, acct := range t.Accounts {
		dto.Accounts = append(dto.Accounts, toAccountBalanceDTO(acct))
	}
	return dto
}

type budgetDTO struct {
	ID         string `json:"id"`
	Amount     string `json:"amount"`
	Period     string `json:"period"` // YYYY-MM
	CategoryID string `json:"category_id,omitempty"`
	TagID      string `json:"tag_id,omitempty"`
}

func toBudgetDTO(b core.Budget) budgetDTO {
	return budgetDTO{
		ID:         b.ID,
		Amount:     b.Amount.String(),
		Period:     b.Period.Format("2006-01"),
		CategoryID: b.CategoryID,
		TagID:      b.TagID,
	}
}

type budgetStatusDTO struct {
	Budget    budgetDTO `json:"budget"`
	Spent     string    `json:"spent"`
	Remaining string    `json:"remaining"`
	OverLimit bool      `json:"over_limit"`
}

func toBudgetStatusDTO(s services.BudgetStatus) budgetStatusDTO {
	return budgetStatusDTO{
		Budget:    toBudgetDTO(s.Budget),
		Spent:     s.Spent.String(),
		Remaining: s.Remaining.String(),
		OverLimit: s.OverLimit,
	}
}

type breakdownEntryDTO struct {
	PaymentMethodID   string `json:"payment_method_id,omitempty"`
	PaymentMethodName string `json:"payment_method_name"`
	Amount            string `json:"amount"`
	Percent           string `json:"percent"`
}

func toBreakdownDTOs(entries []services.BreakdownEntry) []breakdownEntryDTO {
	out := make([]breakdownEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, breakdownEntryDTO{
			PaymentMethodID:   e.PaymentMethodID,
			PaymentMethodName: e.PaymentMethodName,
			Amount:            e.Amount.String(),
			Percent:           e.Percent.String(),
		})
	}
	return out
}
