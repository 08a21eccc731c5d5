package budget

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/presupuesto/internal/cart"
	"github.com/noah-isme/presupuesto/internal/common"
	"github.com/noah-isme/presupuesto/internal/pricing"
)

// Handler exposes budget endpoints.
type Handler struct {
	Svc *Service
}

// View is the API representation of a budget.
type View struct {
	ID        string            `json:"id"`
	CartID    string            `json:"cartId"`
	CreatedAt string            `json:"createdAt"`
	Items     []cart.EntryView  `json:"items"`
	ItemCount int               `json:"itemCount"`
	Quote     pricing.QuoteView `json:"quote"`
}

// NewView renders b for API responses.
func NewView(b Budget) View {
	return View{
		ID:        b.ID,
		CartID:    b.CartID,
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
		Items:     cart.NewEntryViews(b.Entries),
		ItemCount: b.ItemCount,
		Quote:     pricing.ViewQuote(b.Quote),
	}
}

// Generate handles POST /api/v1/carts/{id}/budgets.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "budget service not configured", nil)
		return
	}
	var payload cart.QuoteRequest
	if err := common.DecodeJSON(r, &payload, true); err != nil {
		common.WriteError(w, err)
		return
	}
	b, err := h.Svc.Generate(r.Context(), chi.URLParam(r, "id"), Selection{MethodIDs: payload.MethodIDs, Manual: payload.Entries()})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/budgets/"+b.ID)
	common.Data(w, http.StatusCreated, NewView(b))
}

// Get handles GET /api/v1/budgets/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "budget service not configured", nil)
		return
	}
	b, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, NewView(b))
}

// Export handles GET /api/v1/budgets/{id}/export.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "budget service not configured", nil)
		return
	}
	id := chi.URLParam(r, "id")
	var buf bytes.Buffer
	if err := h.Svc.Export(r.Context(), id, &buf); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "presupuesto-"+id+".xlsx"))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidID):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "budget not found", nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "UNPROCESSABLE", "cart is empty", nil)
	default:
		cart.WriteError(w, err)
	}
}
