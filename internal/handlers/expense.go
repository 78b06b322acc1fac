package handlers

import (
	"net/http"

	"meetmap-backend/internal/middleware"
	"meetmap-backend/internal/services"
)

// ExpenseHandler handles the per-event expense ledger
type ExpenseHandler struct {
	expenseService *services.ExpenseService
}

// NewExpenseHandler creates a new expense handler
func NewExpenseHandler(expenseService *services.ExpenseService) *ExpenseHandler {
	return &ExpenseHandler{expenseService: expenseService}
}

// ParticipantStatusRequest is the body of a payment status change
type ParticipantStatusRequest struct {
	Status string `json:"status"`
}

// List handles GET /events/{id}/expenses
func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.expenseService.List(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, expenses)
}

// Create handles POST /events/{id}/expenses
func (h *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.ExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	expense, err := h.expenseService.Add(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, expense)
}

// Update handles PUT /events/{id}/expenses/{expenseId}
func (h *ExpenseHandler) Update(w http.ResponseWriter, r *http.Request) {
	var upd services.ExpenseUpdate
	if err := decodeJSON(r, &upd); err != nil {
		handleError(w, r, err)
		return
	}

	expense, err := h.expenseService.Update(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"), idParam(r, "expenseId"), upd)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, expense)
}

// SetParticipantStatus handles PUT /events/{id}/expenses/{expenseId}/participants/{participantId}
func (h *ExpenseHandler) SetParticipantStatus(w http.ResponseWriter, r *http.Request) {
	var req ParticipantStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	expense, err := h.expenseService.SetParticipantStatus(r.Context(),
		middleware.GetUserID(r.Context()),
		idParam(r, "id"),
		idParam(r, "expenseId"),
		idParam(r, "participantId"),
		req.Status,
	)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, expense)
}

// Delete handles DELETE /events/{id}/expenses/{expenseId}
func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.expenseService.Delete(r.Context(), middleware.GetUserID(r.Context()), idParam(r, "id"), idParam(r, "expenseId")); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, OKResponse{OK: true})
}
