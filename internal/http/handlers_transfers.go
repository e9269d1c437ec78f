package http

import (
	"net/http"

	"moneta/internal/core"
	"moneta/internal/services"
)

type createTransferRequest struct {
	SourceID      string `json:"source_account_id"`
	DestinationID string `json:"destination_account_id"`
	Amount        string `json:"amount"`
	Date          string `json:"date"`
	Description   string `json:"description"`
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
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

	pair, err := s.transfers.CreateTransfer(r.Context(), ownerID(r), services.TransferInput{
		SourceID:      req.SourceID,
		DestinationID: req.DestinationID,
		Amount:        amount,
		Date:          date,
		Description:   req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toTransferDTO(pair))
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.transfers.ListTransfers(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]transferDTO, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, toTransferDTO(p))
	}
	writeData(w, http.StatusOK, out)
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	pair, err := s.transfers.GetTransfer(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toTransferDTO(pair))
}

func (s *Server) handleDeleteTransfer(w http.ResponseWriter, r *http.Request) {
	if err := s.transfers.DeleteTransfer(r.Context(), ownerID(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}
