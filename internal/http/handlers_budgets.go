package http

import (
	"net/http"

	"moneta/internal/core"
	"moneta/internal/services"
)

type createBudgetRequest struct {
	Amount     string `json:"amount"`
	Period     string `json:"period"`
	CategoryID string `json:"category_id"`
	TagID      string `json:"tag_id"`
}

type updateBudgetRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req createBudgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	b, err := s.budgets.Create(r.Context(), ownerID(r), services.BudgetInput{
		Amount:     amount,
		Period:     req.Period,
		CategoryID: req.CategoryID,
		TagID:      req.TagID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toBudgetDTO(b))
}

// handleListBudgets lists budgets, optionally for one period. With
// status=true the response carries spend figures instead of bare budgets.
func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period := q.Get("period")

	if q.Get("status") == "true" {
		statuses, err := s.budgets.StatusForPeriod(r.Context(), ownerID(r), period)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]budgetStatusDTO, 0, len(statuses))
		for _, st := range statuses {
			out = append(out, toBudgetStatusDTO(st))
		}
		writeData(w, http.StatusOK, out)
		return
	}

	budgets, err := s.budgets.List(r.Context(), ownerID(r), period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]budgetDTO, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetDTO(b))
	}
	writeData(w, http.StatusOK, out)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	b, err := s.budgets.Get(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toBudgetDTO(b))
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req updateBudgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	b, err := s.budgets.UpdateAmount(r.Context(), ownerID(r), r.PathValue("id"), amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toBudgetDTO(b))
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.budgets.Delete(r.Context(), ownerID(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.budgets.Status(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toBudgetStatusDTO(status))
}

func (s *Server) handleBudgetBreakdown(w http.ResponseWriter, r *http.Request) {
	entries, err := s.budgets.Breakdown(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toBreakdownDTOs(entries))
}
