package paymethod

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/presupuesto/internal/common"
	"github.com/noah-isme/presupuesto/internal/pricing"
)

// Handler exposes the payment method registry over HTTP.
type Handler struct {
	Svc *Service
}

// MethodView is the API representation of a payment method.
type MethodView struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Installments    int    `json:"installments"`
	InterestPercent string `json:"interestPercent"`
}

func newMethodView(m pricing.Method) MethodView {
	return MethodView{
		ID:              m.ID,
		Name:            m.Name,
		Installments:    m.Installments,
		InterestPercent: m.Surcharge.Shift(2).String(),
	}
}

// List handles GET /api/v1/payment-methods.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "payment methods not configured", nil)
		return
	}
	methods, err := h.Svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]MethodView, 0, len(methods))
	for _, m := range methods {
		out = append(out, newMethodView(m))
	}
	common.Data(w, http.StatusOK, out)
}

// Create handles POST /api/v1/payment-methods.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "payment methods not configured", nil)
		return
	}
	var in Input
	if err := common.DecodeJSON(r, &in, false); err != nil {
		common.WriteError(w, err)
		return
	}
	m, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, newMethodView(m))
}

// Update handles PUT /api/v1/payment-methods/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "payment methods not configured", nil)
		return
	}
	var in Input
	if err := common.DecodeJSON(r, &in, false); err != nil {
		common.WriteError(w, err)
		return
	}
	m, err := h.Svc.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, newMethodView(m))
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrReadOnly):
		common.JSONError(w, http.StatusConflict, "READ_ONLY", err.Error(), nil)
	case errors.Is(err, pricing.ErrInvalidMethodConfiguration):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_METHOD", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
