package debt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aziz-dev/backend-kassa/internal/common"
	"github.com/aziz-dev/backend-kassa/internal/obs"
)

// Handler exposes the debt endpoints.
type Handler struct {
	Service  *Service
	Validate *validator.Validate
}

// Debts handles GET /api/v1/debts.
func (h *Handler) Debts(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "debt service not configured", nil)
		return
	}
	page, limit := common.ParsePagination(r, 50)
	result, err := h.Service.List(r.Context(), ListParams{
		CustomerID: strings.TrimSpace(r.URL.Query().Get("customerId")),
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.Pagination{Page: result.Page, PerPage: result.Limit, TotalItems: int(result.Total)},
	})
}

// CustomerDebts handles GET /api/v1/customers/{id}/debts.
func (h *Handler) CustomerDebts(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "debt service not configured", nil)
		return
	}
	page, limit := common.ParsePagination(r, 50)
	result, err := h.Service.List(r.Context(), ListParams{
		CustomerID: chi.URLParam(r, "id"),
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.Pagination{Page: result.Page, PerPage: result.Limit, TotalItems: int(result.Total)},
	})
}

// Debt handles GET /api/v1/debts/{id}.
func (h *Handler) Debt(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "debt service not configured", nil)
		return
	}
	view, ledger, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view, "payments": ledger})
}

// CreateDebt handles POST /api/v1/debts.
func (h *Handler) CreateDebt(w http.ResponseWriter, r *http.Request) {
	var input Input
	if !h.decodeInto(w, r, &input) {
		return
	}
	view, err := h.Service.CreateManual(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": view})
}

// PayDebt handles POST /api/v1/debts/{id}/payments.
func (h *Handler) PayDebt(w http.ResponseWriter, r *http.Request) {
	var input PayInput
	if !h.decodeInto(w, r, &input) {
		return
	}
	view, err := h.Service.Pay(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeError(w, err)
		return
	}
	if obs.DebtPaidTotal != nil {
		obs.DebtPaidTotal.Add(float64(input.Amount))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// PayCustomerDebts handles POST /api/v1/customers/{id}/debt-payments.
func (h *Handler) PayCustomerDebts(w http.ResponseWriter, r *http.Request) {
	var input PayInput
	if !h.decodeInto(w, r, &input) {
		return
	}
	result, err := h.Service.PayCustomer(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeError(w, err)
		return
	}
	if obs.DebtPaidTotal != nil {
		obs.DebtPaidTotal.Add(float64(result.Allocated))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// ApproveDebt handles POST /api/v1/debts/{id}/approve.
func (h *Handler) ApproveDebt(w http.ResponseWriter, r *http.Request) {
	h.reviewDebt(w, r, (*Service).Approve)
}

// RejectDebt handles POST /api/v1/debts/{id}/reject.
func (h *Handler) RejectDebt(w http.ResponseWriter, r *http.Request) {
	h.reviewDebt(w, r, (*Service).Reject)
}

func (h *Handler) reviewDebt(w http.ResponseWriter, r *http.Request, fn func(*Service, context.Context, string) (View, error)) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "debt service not configured", nil)
		return
	}
	view, err := fn(h.Service, r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

func (h *Handler) decodeInto(w http.ResponseWriter, r *http.Request, input any) bool {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "debt service not configured", nil)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(input); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(input); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid debt payload", map[string]any{"error": err.Error()})
			return false
		}
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.StatusOr(http.StatusInternalServerError)
		code := appErr.Code
		if code == "" {
			code = "INTERNAL"
		}
		common.JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
