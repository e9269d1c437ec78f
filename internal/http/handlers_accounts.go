package http

import (
	"net/http"

	"moneta/internal/services"
)

type createAccountRequest struct {
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	Color     string `json:"color"`
	IsDefault bool   `json:"is_default"`
}

type updateAccountRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	pm, err := s.accounts.Create(r.Context(), ownerID(r), services.PaymentMethodInput{
		Name:      req.Name,
		Currency:  req.Currency,
		Color:     req.Color,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toAccountDTO(pm))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	pms, err := s.accounts.List(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toAccountDTOs(pms))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	pm, err := s.accounts.Get(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toAccountDTO(pm))
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req updateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	pm, err := s.accounts.Update(r.Context(), ownerID(r), r.PathValue("id"), req.Name, req.Color)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toAccountDTO(pm))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.Delete(r.Context(), ownerID(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleSetDefaultAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.SetDefault(r.Context(), ownerID(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleArchiveAccount(w http.ResponseWriter, r *http.Request) {
	pm, err := s.accounts.Archive(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toAccountDTO(pm))
}

func (s *Server) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.balances.ForAccount(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toAccountBalanceDTO(balance))
}

func (s *Server) handleTotalBalance(w http.ResponseWriter, r *http.Request) {
	total, err := s.balances.Total(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toTotalBalanceDTO(total))
}
