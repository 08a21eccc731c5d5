package cart

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/presupuesto/internal/common"
	"github.com/noah-isme/presupuesto/internal/pricing"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

// EntryView is the API representation of a cart entry.
type EntryView struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	UnitPrice string `json:"unitPrice"`
	Stock     int    `json:"stock"`
	Qty       int    `json:"qty"`
	LineTotal string `json:"lineTotal"`
}

// View is the API representation of a cart.
type View struct {
	ID        string      `json:"id"`
	Items     []EntryView `json:"items"`
	ItemCount int         `json:"itemCount"`
	Subtotal  string      `json:"subtotal"`
	UpdatedAt string      `json:"updatedAt"`
}

// NewEntryViews renders cart entries for API responses.
func NewEntryViews(entries []Entry) []EntryView {
	items := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		items = append(items, EntryView{
			Code:      e.Product.Code,
			Name:      e.Product.Name,
			UnitPrice: pricing.Format(e.Product.Price),
			Stock:     e.Product.Stock,
			Qty:       e.Qty,
			LineTotal: pricing.Format(e.LineTotal()),
		})
	}
	return items
}

// NewView renders c for API responses.
func NewView(c Cart) View {
	return View{
		ID:        c.ID,
		Items:     NewEntryViews(c.Entries),
		ItemCount: c.ItemCount,
		Subtotal:  pricing.Format(c.Subtotal),
		UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
	}
}

type addItemRequest struct {
	Code string `json:"code" validate:"required"`
}

type setQuantityRequest struct {
	Qty *int `json:"qty" validate:"required"`
}

// ManualRequest is a manual payment entry as received over HTTP.
type ManualRequest struct {
	Label                string          `json:"label" validate:"required"`
	Installments         int             `json:"installments" validate:"gte=1"`
	AmountPerInstallment decimal.Decimal `json:"amountPerInstallment"`
}

// QuoteRequest selects payment methods and manual entries for a quote.
type QuoteRequest struct {
	MethodIDs []string        `json:"methodIds" validate:"dive,required"`
	Manual    []ManualRequest `json:"manual" validate:"dive"`
}

// Entries converts the manual requests into pricing entries.
func (q QuoteRequest) Entries() []pricing.ManualEntry {
	out := make([]pricing.ManualEntry, 0, len(q.Manual))
	for _, m := range q.Manual {
		out = append(out, pricing.ManualEntry{Label: m.Label, Installments: m.Installments, AmountPerInstallment: m.AmountPerInstallment})
	}
	return out
}

// Create handles POST /api/v1/carts.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	c, err := h.Svc.Create(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, NewView(c))
}

// Get handles GET /api/v1/carts/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	c, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, NewView(c))
}

// AddItem handles POST /api/v1/carts/{id}/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload addItemRequest
	if err := common.DecodeJSON(r, &payload, false); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.Add(r.Context(), chi.URLParam(r, "id"), payload.Code)
	if err != nil {
		WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, NewView(c))
}

// UpdateItem handles PUT /api/v1/carts/{id}/items/{code}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload setQuantityRequest
	if err := common.DecodeJSON(r, &payload, false); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.SetQuantity(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "code"), *payload.Qty)
	if err != nil {
		WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, NewView(c))
}

// RemoveItem handles DELETE /api/v1/carts/{id}/items/{code}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	c, err := h.Svc.Remove(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "code"))
	if err != nil {
		WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, NewView(c))
}

// Clear handles DELETE /api/v1/carts/{id}/items.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	c, err := h.Svc.Clear(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, NewView(c))
}

// Quote handles POST /api/v1/carts/{id}/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload QuoteRequest
	if err := common.DecodeJSON(r, &payload, true); err != nil {
		common.WriteError(w, err)
		return
	}
	c, quote, err := h.Svc.Quote(r.Context(), chi.URLParam(r, "id"), payload.MethodIDs, payload.Entries())
	if err != nil {
		WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"cart":  NewView(c),
			"quote": pricing.ViewQuote(quote),
		},
	})
}

// WriteError maps cart and pricing errors onto HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
	case errors.Is(err, ErrUnknownProduct):
		common.JSONError(w, http.StatusNotFound, "UNKNOWN_PRODUCT", err.Error(), nil)
	case errors.Is(err, pricing.ErrInvalidManualEntry):
		common.JSONError(w, http.StatusBadRequest, "INVALID_MANUAL_ENTRY", err.Error(), nil)
	case errors.Is(err, pricing.ErrInvalidMethodConfiguration):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_METHOD", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
