package receipt

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aziz-dev/backend-kassa/internal/common"
	"github.com/aziz-dev/backend-kassa/internal/obs"
	"github.com/aziz-dev/backend-kassa/internal/settlement"
)

// Handler exposes the receipt history endpoints.
type Handler struct {
	Service *Service
}

// Receipts handles GET /api/v1/receipts.
func (h *Handler) Receipts(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "receipt service not configured", nil)
		return
	}
	page, limit := common.ParsePagination(r, 50)
	params := ListParams{
		CustomerID: strings.TrimSpace(r.URL.Query().Get("customerId")),
		Page:       page,
		Limit:      limit,
	}
	var ok bool
	if params.From, ok = parseDate(w, r.URL.Query().Get("from"), "from"); !ok {
		return
	}
	if params.To, ok = parseDate(w, r.URL.Query().Get("to"), "to"); !ok {
		return
	}
	result, err := h.Service.List(r.Context(), params)
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

// Receipt handles GET /api/v1/receipts/{id}.
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "receipt service not configured", nil)
		return
	}
	view, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// DeleteReceipt handles DELETE /api/v1/receipts/{id}.
func (h *Handler) DeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "receipt service not configured", nil)
		return
	}
	if err := h.Service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "receipt not found", nil)
			return
		}
		writeError(w, err)
		return
	}
	if obs.ReceiptsReversedTotal != nil {
		obs.ReceiptsReversedTotal.Inc()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
}

// parseDate accepts YYYY-MM-DD or RFC3339 values.
func parseDate(w http.ResponseWriter, raw, field string) (*time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, true
	}
	common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid "+field+" date", nil)
	return nil, false
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
