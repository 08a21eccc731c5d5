package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/presupuesto/internal/common"
	"github.com/noah-isme/presupuesto/internal/obs"
)

// ErrNotFound indicates the requested product is not in the catalog.
var ErrNotFound = errors.New("product not found")

// ErrEmptyCatalog is returned when a replacement carries no valid product.
var ErrEmptyCatalog = errors.New("catalog: no valid products")

// ErrSyncQueued is returned when an upstream sync is already waiting to run.
var ErrSyncQueued = errors.New("catalog sync already queued")

const (
	defaultCacheTTL    = 30 * time.Second
	defaultLoadTimeout = 10 * time.Second
)

// Service loads snapshots and answers catalog queries. The built snapshot is
// cached for CacheTTL and swapped in place by Replace; other processes
// sharing the repository see a replacement once their cache expires.
type Service struct {
	repo         Repository
	defaultLimit int
	maxLimit     int
	cacheTTL     time.Duration
	loadTimeout  time.Duration
	now          func() time.Time
	logger       zerolog.Logger
	group        singleflight.Group

	mu         sync.RWMutex
	cached     *Snapshot
	cachedAt   time.Time
	generation uint64
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repository   Repository
	DefaultLimit int
	MaxLimit     int
	// CacheTTL defaults to 30s; a negative value disables the cache.
	CacheTTL time.Duration
	// LoadTimeout bounds one repository load. Defaults to 10s.
	LoadTimeout time.Duration
	Now         func() time.Time
	Logger      *zerolog.Logger
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query string
	Page  int
	Limit int
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []Product
	Total int
	Page  int
	Limit int
}

// ReplaceResult reports how many products a replacement kept.
type ReplaceResult struct {
	Accepted int
	Rejected int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, errors.New("catalog: repository is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 50
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 500
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = defaultCacheTTL
	}
	loadTimeout := cfg.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = defaultLoadTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Service{
		repo:         cfg.Repository,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		cacheTTL:     cacheTTL,
		loadTimeout:  loadTimeout,
		now:          now,
		logger:       logger,
	}, nil
}

// Snapshot returns the cached snapshot or loads a fresh one. Concurrent
// callers share one load, which runs detached from any single caller's
// cancellation; each caller still stops waiting when its own ctx ends.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap := s.fresh(); snap != nil {
		return snap, nil
	}
	ch := s.group.DoChan("snapshot", func() (any, error) {
		s.mu.RLock()
		gen := s.generation
		s.mu.RUnlock()

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		products, err := s.repo.Load(loadCtx)
		if err != nil {
			return nil, err
		}
		snap := NewSnapshot(products)
		s.store(snap, gen)
		return snap, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("catalog snapshot: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("catalog snapshot: %w", res.Err)
		}
		return res.Val.(*Snapshot), nil
	}
}

func (s *Service) fresh() *Snapshot {
	if s.cacheTTL < 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached == nil || s.now().Sub(s.cachedAt) >= s.cacheTTL {
		return nil
	}
	return s.cached
}

// store caches snap unless a Replace happened after gen was read.
func (s *Service) store(snap *Snapshot, gen uint64) {
	if s.cacheTTL < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.cached, s.cachedAt = snap, s.now()
}

// Replace swaps the whole catalog. Invalid products are dropped before saving.
func (s *Service) Replace(ctx context.Context, products []Product, source string) (ReplaceResult, error) {
	snap := NewSnapshot(products)
	result := ReplaceResult{Accepted: snap.Len(), Rejected: len(products) - snap.Len()}
	if snap.Len() == 0 {
		obs.CatalogReplaceTotal.WithLabelValues(source, "empty").Inc()
		return result, ErrEmptyCatalog
	}
	if err := s.repo.Save(ctx, snap.Products()); err != nil {
		obs.CatalogReplaceTotal.WithLabelValues(source, "error").Inc()
		return result, fmt.Errorf("catalog replace: %w", err)
	}
	s.mu.Lock()
	s.generation++
	if s.cacheTTL >= 0 {
		s.cached, s.cachedAt = snap, s.now()
	}
	s.mu.Unlock()
	s.group.Forget("snapshot")
	obs.CatalogReplaceTotal.WithLabelValues(source, "ok").Inc()
	s.logger.Info().
		Str("source", source).
		Int("accepted", result.Accepted).
		Int("rejected", result.Rejected).
		Msg("catalog_replaced")
	return result, nil
}

// ParseListParams normalises raw query values into list filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Page: 1, Limit: s.defaultLimit}
	params.Query = strings.TrimSpace(values.Get("q"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = limit
	}
	if params.Limit > s.maxLimit {
		params.Limit = s.maxLimit
	}
	return params, nil
}

// List returns the products matching params.Query, paged.
func (s *Service) List(ctx context.Context, params ListParams) (ListResult, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return ListResult{}, err
	}
	matches := snap.Search(params.Query)
	page, limit := params.Page, params.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.defaultLimit
	}
	start := (page - 1) * limit
	if start > len(matches) {
		start = len(matches)
	}
	end := start + limit
	if end > len(matches) {
		end = len(matches)
	}
	return ListResult{Items: matches[start:end], Total: len(matches), Page: page, Limit: limit}, nil
}

// Get returns a single product by code.
func (s *Service) Get(ctx context.Context, code string) (Product, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return Product{}, err
	}
	p, ok := snap.Lookup(code)
	if !ok {
		return Product{}, &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: ErrNotFound}
	}
	return p, nil
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
