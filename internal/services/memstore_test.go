package services

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
	"moneta/internal/rates"
	"moneta/internal/storage"
)

// memStore is an in-memory Store mirroring the SQLite repository's semantics:
// owner scoping, uniqueness conflicts, the transfer delete cascade and the
// signed contribution aggregates.
type memStore struct {
	mu             sync.Mutex
	owners         map[string]string
	paymentMethods map[string]core.PaymentMethod
	categories     map[string]core.Category
	tags           map[string]core.Tag
	transactions   map[string]core.Transaction
	txTags         map[string][]string
	budgets        map[string]core.Budget
}

func newMemStore() *memStore {
	return &memStore{
		owners:         map[string]string{},
		paymentMethods: map[string]core.PaymentMethod{},
		categories:     map[string]core.Category{},
		tags:           map[string]core.Tag{},
		transactions:   map[string]core.Transaction{},
		txTags:         map[string][]string{},
		budgets:        map[string]core.Budget{},
	}
}

func (s *memStore) EnsureOwner(_ context.Context, ownerID, baseCurrency string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[ownerID]; !ok {
		s.owners[ownerID] = baseCurrency
	}
	return nil
}

func (s *memStore) OwnerBaseCurrency(_ context.Context, ownerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base, ok := s.owners[ownerID]
	if !ok {
		return "", core.NotFoundf("owner %s", ownerID)
	}
	return base, nil
}

func (s *memStore) CreatePaymentMethod(_ context.Context, pm core.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.paymentMethods {
		if existing.OwnerID == pm.OwnerID && existing.Name == pm.Name {
			return core.Conflictf("payment method %q already exists", pm.Name)
		}
	}
	if pm.IsDefault {
		s.unsetDefaultLocked(pm.OwnerID)
	}
	s.paymentMethods[pm.ID] = pm
	return nil
}

func (s *memStore) unsetDefaultLocked(ownerID string) {
	for id, pm := range s.paymentMethods {
		if pm.OwnerID == ownerID && pm.IsDefault {
			pm.IsDefault = false
			s.paymentMethods[id] = pm
		}
	}
}

func (s *memStore) GetPaymentMethod(_ context.Context, ownerID, id string) (core.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pm, ok := s.paymentMethods[id]
	if !ok || pm.OwnerID != ownerID {
		return core.PaymentMethod{}, core.NotFoundf("payment method %s", id)
	}
	return pm, nil
}

func (s *memStore) ListPaymentMethods(_ context.Context, ownerID string) ([]core.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.PaymentMethod
	for _, pm := range s.paymentMethods {
		if pm.OwnerID == ownerID {
			out = append(out, pm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) UpdatePaymentMethod(_ context.Context, pm core.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.paymentMethods[pm.ID]
	if !ok || existing.OwnerID != pm.OwnerID {
		return core.NotFoundf("payment method %s", pm.ID)
	}
	if pm.IsDefault && !existing.IsDefault {
		s.unsetDefaultLocked(pm.OwnerID)
	}
	s.paymentMethods[pm.ID] = pm
	return nil
}

func (s *memStore) SetDefaultPaymentMethod(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pm, ok := s.paymentMethods[id]
	if !ok || pm.OwnerID != ownerID {
		return core.NotFoundf("payment method %s", id)
	}
	s.unsetDefaultLocked(ownerID)
	pm.IsDefault = true
	s.paymentMethods[id] = pm
	return nil
}

func (s *memStore) DeletePaymentMethod(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pm, ok := s.paymentMethods[id]
	if !ok || pm.OwnerID != ownerID {
		return core.NotFoundf("payment method %s", id)
	}
	delete(s.paymentMethods, id)
	return nil
}

func (s *memStore) CountTransactionsForPaymentMethod(_ context.Context, ownerID, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, tx := range s.transactions {
		if tx.OwnerID == ownerID && tx.PaymentMethodID == id {
			n++
		}
	}
	return n, nil
}

func (s *memStore) CreateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.categories {
		if existing.OwnerID == c.OwnerID && existing.Name == c.Name && existing.Kind == c.Kind {
			return core.Conflictf("category %q already exists", c.Name)
		}
	}
	s.categories[c.ID] = c
	return nil
}

func (s *memStore) GetCategory(_ context.Context, ownerID, id string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.OwnerID != ownerID {
		return core.Category{}, core.NotFoundf("category %s", id)
	}
	return c, nil
}

func (s *memStore) ListCategories(_ context.Context, ownerID string) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.categories {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) CreateTag(_ context.Context, t core.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tags {
		if existing.OwnerID == t.OwnerID && existing.Name == t.Name {
			return core.Conflictf("tag %q already exists", t.Name)
		}
	}
	s.tags[t.ID] = t
	return nil
}

func (s *memStore) GetTagByName(_ context.Context, ownerID, name string) (core.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tags {
		if t.OwnerID == ownerID && t.Name == name {
			return t, nil
		}
	}
	return core.Tag{}, core.NotFoundf("tag %q", name)
}

func (s *memStore) ListTags(_ context.Context, ownerID string) ([]core.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Tag
	for _, t := range s.tags {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) TagsByIDs(_ context.Context, ownerID string, ids []string) ([]core.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Tag
	for _, id := range ids {
		if t, ok := s.tags[id]; ok && t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) InsertTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.TagIDs = nil
	s.transactions[tx.ID] = tx
	return nil
}

func (s *memStore) GetTransaction(_ context.Context, ownerID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok || tx.OwnerID != ownerID {
		return core.Transaction{}, core.NotFoundf("transaction %s", id)
	}
	tx.TagIDs = append([]string(nil), s.txTags[id]...)
	return tx, nil
}

func (s *memStore) ListTransactions(_ context.Context, ownerID string, f storage.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for id, tx := range s.transactions {
		if tx.OwnerID != ownerID {
			continue
		}
		if f.Type != "" && tx.Type != f.Type {
			continue
		}
		if f.PaymentMethodID != "" && tx.PaymentMethodID != f.PaymentMethodID {
			continue
		}
		if !f.From.IsZero() && tx.Date.Before(f.From.Time) {
			continue
		}
		if !f.To.IsZero() && tx.Date.After(f.To.Time) {
			continue
		}
		tx.TagIDs = append([]string(nil), s.txTags[id]...)
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memStore) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.transactions[tx.ID]
	if !ok || existing.OwnerID != tx.OwnerID {
		return core.NotFoundf("transaction %s", tx.ID)
	}
	tx.LinkedID = existing.LinkedID
	tx.TransferRole = existing.TransferRole
	tx.CreatedAt = existing.CreatedAt
	tx.TagIDs = nil
	s.transactions[tx.ID] = tx
	return nil
}

// DeleteTransaction reproduces the store trigger: deleting a transfer leg
// takes its counterpart with it.
func (s *memStore) DeleteTransaction(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok || tx.OwnerID != ownerID {
		return core.NotFoundf("transaction %s", id)
	}
	delete(s.transactions, id)
	delete(s.txTags, id)
	for otherID, other := range s.transactions {
		if other.LinkedID == id || (tx.LinkedID != "" && otherID == tx.LinkedID) {
			delete(s.transactions, otherID)
			delete(s.txTags, otherID)
		}
	}
	return nil
}

func (s *memStore) SetLinkedTransaction(_ context.Context, ownerID, id, linkedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok || tx.OwnerID != ownerID {
		return core.NotFoundf("transaction %s", id)
	}
	tx.LinkedID = linkedID
	s.transactions[id] = tx
	return nil
}

func (s *memStore) InsertTransactionTags(_ context.Context, txID string, tagIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := map[string]struct{}{}
	for _, id := range s.txTags[txID] {
		existing[id] = struct{}{}
	}
	for _, id := range tagIDs {
		if _, ok := existing[id]; !ok {
			s.txTags[txID] = append(s.txTags[txID], id)
			existing[id] = struct{}{}
		}
	}
	return nil
}

func (s *memStore) DeleteTransactionTags(_ context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.txTags, txID)
	return nil
}

func (s *memStore) ListOrphanedTransactions(_ context.Context, ownerID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.transactions {
		if tx.OwnerID != ownerID {
			continue
		}
		if _, ok := s.paymentMethods[tx.PaymentMethodID]; tx.PaymentMethodID == "" || !ok {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *memStore) AccountBalance(_ context.Context, ownerID, paymentMethodID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, tx := range s.transactions {
		if tx.OwnerID == ownerID && tx.PaymentMethodID == paymentMethodID {
			total = total.Add(s.signedNativeLocked(tx))
		}
	}
	return total, nil
}

// signedNativeLocked applies the contribution rule, resolving legacy transfer
// legs through their counterpart like the SQL aggregate does.
func (s *memStore) signedNativeLocked(tx core.Transaction) decimal.Decimal {
	if tx.Type == core.TypeTransfer && tx.TransferRole == "" {
		if counterpart, ok := s.transactions[tx.LinkedID]; ok {
			tx.TransferRole = core.EffectiveRole(tx, counterpart)
		}
	}
	return tx.NativeContribution()
}

func (s *memStore) OwnerBalanceByCurrency(_ context.Context, ownerID string) ([]storage.CurrencyBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byCurrency := map[string]decimal.Decimal{}
	for _, tx := range s.transactions {
		if tx.OwnerID != ownerID {
			continue
		}
		pm, ok := s.paymentMethods[tx.PaymentMethodID]
		if !ok {
			continue
		}
		byCurrency[pm.Currency] = byCurrency[pm.Currency].Add(s.signedNativeLocked(tx))
	}
	currencies := make([]string, 0, len(byCurrency))
	for cur := range byCurrency {
		currencies = append(currencies, cur)
	}
	sort.Strings(currencies)
	out := make([]storage.CurrencyBalance, 0, len(currencies))
	for _, cur := range currencies {
		out = append(out, storage.CurrencyBalance{Currency: cur, Balance: byCurrency[cur]})
	}
	return out, nil
}

func (s *memStore) InsertBudget(_ context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.budgets {
		if existing.OwnerID == b.OwnerID && existing.Period.Equal(b.Period.Time) &&
			existing.CategoryID == b.CategoryID && existing.TagID == b.TagID {
			return core.Conflictf("budget for this target and period already exists")
		}
	}
	s.budgets[b.ID] = b
	return nil
}

func (s *memStore) GetBudget(_ context.Context, ownerID, id string) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok || b.OwnerID != ownerID {
		return core.Budget{}, core.NotFoundf("budget %s", id)
	}
	return b, nil
}

func (s *memStore) ListBudgets(_ context.Context, ownerID string, period core.Date) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Budget
	for _, b := range s.budgets {
		if b.OwnerID != ownerID {
			continue
		}
		if !period.IsZero() && !b.Period.Equal(period.Time) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.After(out[j].Period.Time) })
	return out, nil
}

func (s *memStore) FindBudgetByTarget(_ context.Context, ownerID string, period core.Date, categoryID, tagID string) (core.Budget, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.budgets {
		if b.OwnerID == ownerID && b.Period.Equal(period.Time) &&
			b.CategoryID == categoryID && b.TagID == tagID {
			return b, true, nil
		}
	}
	return core.Budget{}, false, nil
}

func (s *memStore) UpdateBudgetAmount(_ context.Context, ownerID, id string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok || b.OwnerID != ownerID {
		return core.NotFoundf("budget %s", id)
	}
	b.Amount = amount
	s.budgets[id] = b
	return nil
}

func (s *memStore) DeleteBudget(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok || b.OwnerID != ownerID {
		return core.NotFoundf("budget %s", id)
	}
	delete(s.budgets, id)
	return nil
}

func (s *memStore) SumExpenses(_ context.Context, ownerID, categoryID, tagID string, from, to core.Date) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for id, tx := range s.transactions {
		if s.matchesSpendLocked(tx, id, ownerID, categoryID, tagID, from, to) {
			total = total.Add(tx.Amount)
		}
	}
	return total, nil
}

func (s *memStore) ExpenseBreakdownByPaymentMethod(_ context.Context, ownerID, categoryID, tagID string, from, to core.Date) ([]storage.PaymentMethodSum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPM := map[string]decimal.Decimal{}
	for id, tx := range s.transactions {
		if s.matchesSpendLocked(tx, id, ownerID, categoryID, tagID, from, to) {
			byPM[tx.PaymentMethodID] = byPM[tx.PaymentMethodID].Add(tx.Amount)
		}
	}
	out := make([]storage.PaymentMethodSum, 0, len(byPM))
	for pmID, total := range byPM {
		out = append(out, storage.PaymentMethodSum{PaymentMethodID: pmID, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total.GreaterThan(out[j].Total) })
	return out, nil
}

func (s *memStore) matchesSpendLocked(tx core.Transaction, txID, ownerID, categoryID, tagID string, from, to core.Date) bool {
	if tx.OwnerID != ownerID || tx.Type != core.TypeExpense {
		return false
	}
	if tx.Date.Before(from.Time) || tx.Date.After(to.Time) {
		return false
	}
	if categoryID != "" {
		return tx.CategoryID == categoryID
	}
	for _, id := range s.txTags[txID] {
		if id == tagID {
			return true
		}
	}
	return false
}

// staticResolver resolves rates from a fixed pair table. Identity pairs are
// always 1; anything absent is an unresolvable miss.
type staticResolver struct {
	rates map[string]decimal.Decimal
	stale map[string]bool
}

func newStaticResolver() *staticResolver {
	return &staticResolver{rates: map[string]decimal.Decimal{}, stale: map[string]bool{}}
}

func (r *staticResolver) set(from, to, rate string) {
	r.rates[from+"/"+to] = decimal.RequireFromString(rate)
}

func (r *staticResolver) markStale(from, to string) {
	r.stale[from+"/"+to] = true
}

func (r *staticResolver) Resolve(_ context.Context, from, to string, _ core.Date) (rates.Resolution, error) {
	if from == to {
		return rates.Resolution{Rate: decimal.NewFromInt(1), Found: true, Source: rates.SourceLive}, nil
	}
	rate, ok := r.rates[from+"/"+to]
	if !ok {
		return rates.Resolution{}, nil
	}
	res := rates.Resolution{Rate: rate, Found: true, Source: rates.SourceCached}
	if r.stale[from+"/"+to] {
		res.Stale = true
		res.Source = rates.SourceStale
	}
	return res, nil
}
