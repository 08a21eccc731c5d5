package cart_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presupuesto/internal/cart"
	"github.com/noah-isme/presupuesto/internal/catalog"
	"github.com/noah-isme/presupuesto/internal/lock"
	"github.com/noah-isme/presupuesto/internal/pricing"
)

type fakeMethods map[string]pricing.Method

func (f fakeMethods) Resolve(_ context.Context, ids []string) ([]pricing.Method, error) {
	out := make([]pricing.Method, 0, len(ids))
	for _, id := range ids {
		m, ok := f[id]
		if !ok {
			return nil, fmt.Errorf("method %q: %w", id, pricing.ErrInvalidMethodConfiguration)
		}
		out = append(out, m)
	}
	return out, nil
}

func newService(t *testing.T) *cart.Service {
	t.Helper()
	repo := catalog.NewMemoryRepository()
	require.NoError(t, repo.Save(context.Background(), []catalog.Product{
		{Code: "A1", Name: "Taladro", Price: decimal.RequireFromString("100"), Stock: 2},
		{Code: "B2", Name: "Mecha", Price: decimal.RequireFromString("12.5"), Stock: 20},
	}))
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{Repository: repo})
	require.NoError(t, err)
	return &cart.Service{
		Store:   cart.NewMemoryStore(0),
		Catalog: catalogSvc,
		Methods: fakeMethods{
			"efectivo": {ID: "efectivo", Name: "Efectivo", Installments: 1},
			"tc_6":     {ID: "tc_6", Name: "Tarjeta 6 cuotas", Installments: 6, Surcharge: decimal.RequireFromString("0.08")},
		},
		Locker: lock.NewLocal(),
	}
}

func TestServiceLifecycle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx)
	require.NoError(t, err)
	require.Empty(t, c.Entries)

	c, err = svc.Add(ctx, c.ID, "A1")
	require.NoError(t, err)
	c, err = svc.Add(ctx, c.ID, "A1")
	require.NoError(t, err)
	c, err = svc.Add(ctx, c.ID, "B2")
	require.NoError(t, err)
	require.Len(t, c.Entries, 2)
	require.Equal(t, 3, c.ItemCount)
	require.True(t, c.Subtotal.Equal(decimal.RequireFromString("212.5")))

	c, err = svc.SetQuantity(ctx, c.ID, "B2", 4)
	require.NoError(t, err)
	require.True(t, c.Subtotal.Equal(decimal.RequireFromString("250")))

	c, err = svc.SetQuantity(ctx, c.ID, "ZZ", 4)
	require.NoError(t, err)
	require.Len(t, c.Entries, 2)

	c, err = svc.Remove(ctx, c.ID, "A1")
	require.NoError(t, err)
	require.Equal(t, 4, c.ItemCount)

	c, err = svc.Clear(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, c.Subtotal.IsZero())
	require.Equal(t, 0, c.ItemCount)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Empty(t, got.Entries)
}

func TestServiceAddUnknownProductLeavesCartUnchanged(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	c, err := svc.Create(ctx)
	require.NoError(t, err)
	_, err = svc.Add(ctx, c.ID, "A1")
	require.NoError(t, err)

	_, err = svc.Add(ctx, c.ID, "nope")
	require.ErrorIs(t, err, cart.ErrUnknownProduct)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.ItemCount)
}

func TestServiceRejectsBadIDs(t *testing.T) {
	svc := newService(t)
	_, err := svc.Get(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, cart.ErrInvalidInput)
	_, err = svc.Get(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestServiceQuote(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	c, err := svc.Create(ctx)
	require.NoError(t, err)
	_, err = svc.Add(ctx, c.ID, "A1")
	require.NoError(t, err)

	_, q, err := svc.Quote(ctx, c.ID, []string{"tc_6", "efectivo"}, []pricing.ManualEntry{
		{Label: "Cheques", Installments: 3, AmountPerInstallment: decimal.RequireFromString("50")},
	})
	require.NoError(t, err)
	require.Len(t, q.Methods, 2)
	require.Equal(t, "tc_6", q.Methods[0].Method.ID)
	require.True(t, q.Methods[0].Total.Equal(decimal.RequireFromString("108")))
	require.True(t, q.Methods[0].PerInstallment.Equal(decimal.RequireFromString("18")))
	require.True(t, q.Manual[0].Total.Equal(decimal.RequireFromString("150")))

	_, _, err = svc.Quote(ctx, c.ID, nil, []pricing.ManualEntry{{Label: "x", Installments: 0, AmountPerInstallment: decimal.NewFromInt(1)}})
	require.ErrorIs(t, err, pricing.ErrInvalidManualEntry)
}

func TestServiceConcurrentAddsAreSerialized(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	c, err := svc.Create(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Add(ctx, c.ID, "B2")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 20, got.ItemCount)
}

func newRouter(svc *cart.Service) http.Handler {
	h := &cart.Handler{Svc: svc}
	r := chi.NewRouter()
	r.Post("/api/v1/carts", h.Create)
	r.Get("/api/v1/carts/{id}", h.Get)
	r.Post("/api/v1/carts/{id}/items", h.AddItem)
	r.Delete("/api/v1/carts/{id}/items", h.Clear)
	r.Put("/api/v1/carts/{id}/items/{code}", h.UpdateItem)
	r.Delete("/api/v1/carts/{id}/items/{code}", h.RemoveItem)
	r.Post("/api/v1/carts/{id}/quote", h.Quote)
	return r
}

type cartResponse struct {
	Data cart.View `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCartHandlers(t *testing.T) {
	router := newRouter(newService(t))

	rec := do(t, router, http.MethodPost, "/api/v1/carts", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Data.ID
	base := "/api/v1/carts/" + id

	rec = do(t, router, http.MethodPost, base+"/items", `{"code":"A1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, http.MethodPost, base+"/items", `{"code":"A1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Items, 1)
	require.Equal(t, 2, resp.Data.Items[0].Qty)
	require.Equal(t, "200.00", resp.Data.Subtotal)

	rec = do(t, router, http.MethodPost, base+"/items", `{"code":"missing"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	var errResp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, "UNKNOWN_PRODUCT", errResp.Error.Code)

	rec = do(t, router, http.MethodPost, base+"/items", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPut, base+"/items/A1", `{"qty":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 5, resp.Data.ItemCount)
	require.Equal(t, "500.00", resp.Data.Items[0].LineTotal)

	rec = do(t, router, http.MethodPut, base+"/items/A1", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, base+"/quote", `{"methodIds":["tc_6"],"manual":[{"label":"Plan","installments":3,"amountPerInstallment":"50"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var quote struct {
		Data struct {
			Quote pricing.QuoteView `json:"quote"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	require.Equal(t, "540.00", quote.Data.Quote.Methods[0].Total)
	require.Equal(t, "90.00", quote.Data.Quote.Methods[0].PerInstallment)
	require.Equal(t, "150.00", quote.Data.Quote.Manual[0].Total)
	require.Equal(t, 2, quote.Data.Quote.Options)

	rec = do(t, router, http.MethodPost, base+"/quote", `{"methodIds":["nope"]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, router, http.MethodDelete, base+"/items/A1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp.Data.Items)

	rec = do(t, router, http.MethodDelete, base+"/items", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/carts/"+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/carts/bad-id", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
