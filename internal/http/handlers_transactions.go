package http

import (
	"net/http"

	"moneta/internal/core"
	"moneta/internal/services"
)

type createTransactionRequest struct {
	Type            string   `json:"type"`
	CategoryID      string   `json:"category_id"`
	PaymentMethodID string   `json:"payment_method_id"`
	Date            string   `json:"date"`
	Description     string   `json:"description"`
	Amount          string   `json:"amount"`
	ManualRate      string   `json:"manual_rate"`
	TagIDs          []string `json:"tag_ids"`
}

type updateTransactionRequest struct {
	CategoryID      *string  `json:"category_id"`
	PaymentMethodID *string  `json:"payment_method_id"`
	Date            *string  `json:"date"`
	Description     *string  `json:"description"`
	Amount          *string  `json:"amount"`
	ManualRate      *string  `json:"manual_rate"`
	TagIDs          []string `json:"tag_ids"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	date, err := parseOptionalDate(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	manualRate, err := parseOptionalRate(req.ManualRate)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := s.ledger.Create(r.Context(), ownerID(r), services.TransactionInput{
		Type:            core.TransactionType(req.Type),
		CategoryID:      req.CategoryID,
		PaymentMethodID: req.PaymentMethodID,
		Date:            date,
		Description:     req.Description,
		Amount:          amount,
		ManualRate:      manualRate,
		TagIDs:          req.TagIDs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toTransactionDTO(tx))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := parseOptionalDate(q.Get("from"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := parseOptionalDate(q.Get("to"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	txs, err := s.ledger.List(r.Context(), ownerID(r), services.ListFilter{
		Type:            core.TransactionType(q.Get("type")),
		PaymentMethodID: q.Get("payment_method_id"),
		From:            from,
		To:              to,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toTransactionDTOs(txs))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.ledger.Get(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toTransactionDTO(tx))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req updateTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	patch := services.TransactionPatch{
		CategoryID:      req.CategoryID,
		PaymentMethodID: req.PaymentMethodID,
		Description:     req.Description,
		TagIDs:          req.TagIDs,
	}
	if req.Date != nil {
		date, err := core.ParseDate(*req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		patch.Date = &date
	}
	if req.Amount != nil {
		amount, err := core.ParseAmount(*req.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}
		patch.Amount = &amount
	}
	if req.ManualRate != nil {
		rate, err := parseOptionalRate(*req.ManualRate)
		if err != nil {
			writeError(w, r, err)
			return
		}
		patch.ManualRate = &rate
	}

	tx, err := s.ledger.Update(r.Context(), ownerID(r), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toTransactionDTO(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Delete(r.Context(), ownerID(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

type createCategoryRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.ledger.CreateCategory(r.Context(), ownerID(r), req.Name, core.TransactionType(req.Kind))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toCategoryDTO(c))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.ledger.ListCategories(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]categoryDTO, 0, len(categories))
	for _, c := range categories {
		out = append(out, toCategoryDTO(c))
	}
	writeData(w, http.StatusOK, out)
}

type createTagRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req createTagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	tag, err := s.ledger.EnsureTag(r.Context(), ownerID(r), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toTagDTO(tag))
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.ledger.ListTags(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]tagDTO, 0, len(tags))
	for _, t := range tags {
		out = append(out, toTagDTO(t))
	}
	writeData(w, http.StatusOK, out)
}
