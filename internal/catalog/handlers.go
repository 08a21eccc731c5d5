package catalog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/presupuesto/internal/common"
	"github.com/noah-isme/presupuesto/internal/pricing"
)

// WorkbookReader converts an uploaded spreadsheet into products.
type WorkbookReader interface {
	ReadProducts(r io.Reader) (products []Product, skipped int, err error)
}

// MethodLister returns the configured payment methods.
type MethodLister interface {
	List(ctx context.Context) ([]pricing.Method, error)
}

// SyncEnqueuer schedules an upstream catalog refresh.
type SyncEnqueuer interface {
	EnqueueSync(ctx context.Context) (string, error)
}

// Handler exposes catalog endpoints.
type Handler struct {
	service  *Service
	methods  MethodLister
	workbook WorkbookReader
	sync     SyncEnqueuer
	maxBytes int64
	logger   zerolog.Logger
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service        *Service
	Methods        MethodLister
	Workbook       WorkbookReader
	Sync           SyncEnqueuer
	ImportMaxBytes int64
	Logger         *zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	maxBytes := cfg.ImportMaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Handler{
		service:  cfg.Service,
		methods:  cfg.Methods,
		workbook: cfg.Workbook,
		sync:     cfg.Sync,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// ProductView is the API representation of a product.
type ProductView struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Price string `json:"price"`
	Stock int    `json:"stock"`
}

// View renders p for API responses.
func (p Product) View() ProductView {
	return ProductView{Code: p.Code, Name: p.Name, Price: pricing.Format(p.Price), Stock: p.Stock}
}

// Products handles GET /api/v1/products with search and pagination.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	params, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	result, err := h.service.List(r.Context(), params)
	if err != nil {
		h.internal(w, err, "catalog_list_failed")
		return
	}
	items := make([]ProductView, 0, len(result.Items))
	for _, p := range result.Items {
		items = append(items, p.View())
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(result.Total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.NewPagination(result.Page, result.Limit, result.Total),
	})
}

// Product handles GET /api/v1/products/{code}.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	common.Data(w, http.StatusOK, p.View())
}

// Installments handles GET /api/v1/products/{code}/installments, pricing one unit under every method.
func (h *Handler) Installments(w http.ResponseWriter, r *http.Request) {
	if h.methods == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "payment methods not configured", nil)
		return
	}
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	methods, err := h.methods.List(r.Context())
	if err != nil {
		h.internal(w, err, "payment_methods_load_failed")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"product": p.View(),
			"options": pricing.ViewBreakdowns(pricing.ComputeBreakdown(p.Price, methods)),
		},
	})
}

// Import handles POST /api/v1/products/import with a multipart "file" field.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	if h.service == nil || h.workbook == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog import not configured", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "file exceeds upload limit", map[string]any{"limit": h.maxBytes})
			return
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "multipart form expected", nil)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "file is required", nil)
		return
	}
	defer file.Close()

	products, skipped, err := h.workbook.ReadProducts(file)
	if err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "UNPROCESSABLE", err.Error(), map[string]any{"skipped": skipped})
		return
	}
	result, err := h.service.Replace(r.Context(), products, "import")
	if err != nil {
		if errors.Is(err, ErrEmptyCatalog) {
			common.JSONError(w, http.StatusUnprocessableEntity, "UNPROCESSABLE", "no valid products in file", map[string]any{"skipped": skipped + result.Rejected})
			return
		}
		h.internal(w, err, "catalog_import_failed")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"imported": result.Accepted,
			"skipped":  skipped + result.Rejected,
		},
	})
}

// Sync handles POST /api/v1/products/sync by enqueuing an upstream refresh.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "upstream sync not configured", nil)
		return
	}
	taskID, err := h.sync.EnqueueSync(r.Context())
	if errors.Is(err, ErrSyncQueued) {
		common.JSONError(w, http.StatusConflict, "SYNC_QUEUED", err.Error(), nil)
		return
	}
	if err != nil {
		h.internal(w, err, "catalog_sync_enqueue_failed")
		return
	}
	common.Data(w, http.StatusAccepted, map[string]any{"taskId": taskID})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (Product, bool) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return Product{}, false
	}
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.logger.Error().Err(err).Msg("catalog_lookup_failed")
		}
		common.WriteError(w, err)
		return Product{}, false
	}
	return p, true
}

func (h *Handler) internal(w http.ResponseWriter, err error, msg string) {
	h.logger.Error().Err(err).Msg(msg)
	common.WriteError(w, err)
}
