package catalog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presupuesto/internal/catalog"
	"github.com/noah-isme/presupuesto/internal/pricing"
)

type productsResponse struct {
	Data       []catalog.ProductView `json:"data"`
	Pagination struct {
		Page       int `json:"page"`
		Limit      int `json:"limit"`
		Total      int `json:"total"`
		TotalPages int `json:"totalPages"`
	} `json:"pagination"`
}

type installmentsResponse struct {
	Data struct {
		Product catalog.ProductView     `json:"product"`
		Options []pricing.BreakdownView `json:"options"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type fakeMethods struct{ methods []pricing.Method }

func (f fakeMethods) List(context.Context) ([]pricing.Method, error) { return f.methods, nil }

type fakeWorkbook struct {
	products []catalog.Product
	skipped  int
	err      error
}

func (f fakeWorkbook) ReadProducts(r io.Reader) ([]catalog.Product, int, error) {
	_, _ = io.Copy(io.Discard, r)
	return f.products, f.skipped, f.err
}

type fakeSync struct {
	calls int
	err   error
}

func (f *fakeSync) EnqueueSync(context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "task-1", nil
}

func seededService(t *testing.T) *catalog.Service {
	t.Helper()
	repo := catalog.NewMemoryRepository()
	require.NoError(t, repo.Save(context.Background(), []catalog.Product{
		{Code: "A1", Name: "Tornillo", Price: decimal.RequireFromString("100"), Stock: 3},
		{Code: "B2", Name: "arandela", Price: decimal.RequireFromString("2.5"), Stock: 10},
		{Code: "C3", Name: "Ábaco", Price: decimal.RequireFromString("40"), Stock: 1},
	}))
	svc, err := catalog.NewService(catalog.ServiceConfig{Repository: repo, DefaultLimit: 2, MaxLimit: 10})
	require.NoError(t, err)
	return svc
}

func withCode(req *http.Request, code string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("code", code)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func multipartUpload(t *testing.T, field string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "productos.xlsx")
	require.NoError(t, err)
	_, err = fw.Write([]byte("workbook"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestCatalogHandlers(t *testing.T) {
	svc := seededService(t)
	handler := catalog.NewHandler(catalog.HandlerConfig{
		Service: svc,
		Methods: fakeMethods{methods: []pricing.Method{
			{ID: "efectivo", Name: "Efectivo", Installments: 1},
			{ID: "tc_6", Name: "Tarjeta 6 cuotas", Installments: 6, Surcharge: decimal.RequireFromString("0.2")},
		}},
	})

	t.Run("products list sorted and paged", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "3", rec.Header().Get("X-Total-Count"))
		var resp productsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 2)
		require.Equal(t, "Ábaco", resp.Data[0].Name)
		require.Equal(t, "arandela", resp.Data[1].Name)
		require.Equal(t, 2, resp.Pagination.Limit)
		require.Equal(t, 3, resp.Pagination.Total)
		require.Equal(t, 2, resp.Pagination.TotalPages)
	})

	t.Run("products search", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?q=torn", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp productsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		require.Equal(t, "A1", resp.Data[0].Code)
		require.Equal(t, "100.00", resp.Data[0].Price)
	})

	t.Run("invalid page", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?page=0", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "BAD_REQUEST", resp.Error.Code)
		require.Equal(t, "page", resp.Error.Details["field"])
	})

	t.Run("product detail", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Product(rec, withCode(httptest.NewRequest(http.MethodGet, "/api/v1/products/B2", nil), "B2"))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data catalog.ProductView `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "2.50", resp.Data.Price)
	})

	t.Run("product not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Product(rec, withCode(httptest.NewRequest(http.MethodGet, "/api/v1/products/ZZ", nil), "ZZ"))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("installments", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Installments(rec, withCode(httptest.NewRequest(http.MethodGet, "/api/v1/products/A1/installments", nil), "A1"))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp installmentsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data.Options, 2)
		require.Equal(t, "efectivo", resp.Data.Options[0].MethodID)
		require.Equal(t, "100.00", resp.Data.Options[0].Total)
		require.Equal(t, "120.00", resp.Data.Options[1].Total)
		require.Equal(t, "20.00", resp.Data.Options[1].PerInstallment)
	})
}

func TestImportReplacesCatalog(t *testing.T) {
	svc := seededService(t)
	handler := catalog.NewHandler(catalog.HandlerConfig{
		Service: svc,
		Workbook: fakeWorkbook{
			products: []catalog.Product{
				{Code: "N1", Name: "Nuevo", Price: decimal.RequireFromString("9.99"), Stock: 1},
				{Code: "N2", Name: "Roto", Price: decimal.RequireFromString("-1"), Stock: 1},
			},
			skipped: 2,
		},
	})

	body, contentType := multipartUpload(t, "file")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/import", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.Import(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Imported int `json:"imported"`
			Skipped  int `json:"skipped"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Data.Imported)
	require.Equal(t, 3, resp.Data.Skipped)

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, snap.Len())
	_, ok := snap.Lookup("A1")
	require.False(t, ok)
}

func TestImportErrors(t *testing.T) {
	svc := seededService(t)

	t.Run("missing file field", func(t *testing.T) {
		handler := catalog.NewHandler(catalog.HandlerConfig{Service: svc, Workbook: fakeWorkbook{}})
		body, contentType := multipartUpload(t, "other")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/products/import", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		handler.Import(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unreadable workbook", func(t *testing.T) {
		handler := catalog.NewHandler(catalog.HandlerConfig{Service: svc, Workbook: fakeWorkbook{err: errors.New("no valid products")}})
		body, contentType := multipartUpload(t, "file")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/products/import", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		handler.Import(rec, req)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "UNPROCESSABLE", resp.Error.Code)
	})

	t.Run("too large", func(t *testing.T) {
		handler := catalog.NewHandler(catalog.HandlerConfig{Service: svc, Workbook: fakeWorkbook{}, ImportMaxBytes: 16})
		body, contentType := multipartUpload(t, "file")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/products/import", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		handler.Import(rec, req)
		require.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, rec.Code)
	})
}

func TestSyncEnqueues(t *testing.T) {
	sync := &fakeSync{}
	handler := catalog.NewHandler(catalog.HandlerConfig{Service: seededService(t), Sync: sync})
	rec := httptest.NewRecorder()
	handler.Sync(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products/sync", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, sync.calls)

	rec = httptest.NewRecorder()
	catalog.NewHandler(catalog.HandlerConfig{Service: seededService(t)}).Sync(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products/sync", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	sync.err = catalog.ErrSyncQueued
	rec = httptest.NewRecorder()
	handler.Sync(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products/sync", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}
