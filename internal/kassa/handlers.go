package kassa

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/aziz-dev/backend-kassa/internal/common"
	"github.com/aziz-dev/backend-kassa/internal/obs"
	"github.com/aziz-dev/backend-kassa/internal/payment"
	"github.com/aziz-dev/backend-kassa/internal/receipt"
	"github.com/aziz-dev/backend-kassa/internal/settlement"
)

// Handler exposes the register endpoints.
type Handler struct {
	Service  *Service
	Validate *validator.Validate
}

// Preview handles POST /api/v1/kassa/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	view, err := h.Service.Preview(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// Checkout handles POST /api/v1/kassa/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	out, err := h.Service.Checkout(r.Context(), req)
	if err != nil {
		observeCheckout("", "error")
		writeCheckoutError(w, err)
		return
	}
	observeCheckout(out.Receipt.PaymentMethod, "ok")
	if obs.ReceiptTotalAmount != nil {
		obs.ReceiptTotalAmount.Observe(float64(out.Receipt.Total))
	}
	if out.Receipt.DebtAmount > 0 && obs.DebtCreatedTotal != nil {
		obs.DebtCreatedTotal.Inc()
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"data": receipt.NewView(out.Receipt, out.Items),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Request, bool) {
	var req Request
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "kassa service not configured", nil)
		return req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return req, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid cart payload", map[string]any{"error": err.Error()})
			return req, false
		}
	}
	return req, true
}

func observeCheckout(method, result string) {
	if obs.SettlementsTotal == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	obs.SettlementsTotal.WithLabelValues(method, result).Inc()
}

// writeCheckoutError maps settlement failures onto API errors. Stock shortage
// is a conflict with enough detail for the UI to point at the offending line.
func writeCheckoutError(w http.ResponseWriter, err error) {
	var stockErr *settlement.InsufficientStockError
	if errors.As(err, &stockErr) {
		if obs.StockRejectionsTotal != nil {
			obs.StockRejectionsTotal.Inc()
		}
		common.JSONError(w, http.StatusConflict, "INSUFFICIENT_STOCK", stockErr.Error(), map[string]any{
			"productId": stockErr.ProductID,
			"product":   stockErr.ProductName,
			"available": stockErr.Available,
			"requested": stockErr.Requested,
		})
		return
	}
	switch {
	case errors.Is(err, settlement.ErrEmptyCart),
		errors.Is(err, settlement.ErrInvalidLine),
		errors.Is(err, settlement.ErrZeroTotal),
		errors.Is(err, payment.ErrNothingTendered),
		errors.Is(err, payment.ErrDebtRequiresCustomer):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	case errors.Is(err, settlement.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
		return
	}
	writeError(w, err)
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
