// Package jobs defines the background tasks processed by cmd/worker.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/presupuesto/internal/catalog"
	"github.com/noah-isme/presupuesto/internal/obs"
	"github.com/noah-isme/presupuesto/internal/upstream"
)

// TypeCatalogSync replaces the catalog with the upstream product list.
const TypeCatalogSync = "catalog:sync"

// SyncPayload is the task payload of TypeCatalogSync. It must stay free of
// per-request values so Unique can collapse identical requests.
type SyncPayload struct {
	PageSize int `json:"pageSize,omitempty"`
}

// NewSyncTask builds a catalog sync task.
func NewSyncTask(p SyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCatalogSync, data, asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}

// Enqueuer submits sync tasks. It satisfies catalog.SyncEnqueuer.
type Enqueuer struct {
	Client   *asynq.Client
	Queue    string
	PageSize int
	// Unique collapses sync requests made within the window. Zero disables it.
	Unique time.Duration
}

// EnqueueSync queues a catalog sync and returns the task id.
func (e Enqueuer) EnqueueSync(ctx context.Context) (string, error) {
	if e.Client == nil {
		return "", errors.New("jobs: asynq client not configured")
	}
	task, err := NewSyncTask(SyncPayload{PageSize: e.PageSize})
	if err != nil {
		return "", err
	}
	var opts []asynq.Option
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if e.Unique > 0 {
		opts = append(opts, asynq.Unique(e.Unique))
	}
	info, err := e.Client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return "", catalog.ErrSyncQueued
		}
		return "", fmt.Errorf("jobs: enqueue %s: %w", TypeCatalogSync, err)
	}
	return info.ID, nil
}

// ProductSource fetches the full upstream catalog. upstream.Client satisfies it.
type ProductSource interface {
	FetchAll(ctx context.Context, pageSize int) ([]catalog.Product, error)
}

// CatalogReplacer swaps the catalog. catalog.Service satisfies it.
type CatalogReplacer interface {
	Replace(ctx context.Context, products []catalog.Product, source string) (catalog.ReplaceResult, error)
}

// SyncHandler processes TypeCatalogSync tasks.
type SyncHandler struct {
	Source   ProductSource
	Catalog  CatalogReplacer
	PageSize int
	Logger   zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h *SyncHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p SyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			obs.UpstreamSyncTotal.WithLabelValues("bad_payload").Inc()
			return fmt.Errorf("decode sync payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = h.PageSize
	}

	start := time.Now()
	products, err := h.Source.FetchAll(ctx, pageSize)
	if err != nil {
		obs.UpstreamSyncTotal.WithLabelValues("fetch_error").Inc()
		h.Logger.Error().Err(err).Msg("catalog_sync_fetch_failed")
		if errors.Is(err, upstream.ErrUnauthorized) || errors.Is(err, upstream.ErrPagination) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	res, err := h.Catalog.Replace(ctx, products, "upstream")
	obs.UpstreamSyncDuration.Observe(obs.DurationMillis(time.Since(start)))
	if err != nil {
		obs.UpstreamSyncTotal.WithLabelValues("replace_error").Inc()
		h.Logger.Error().Err(err).Int("fetched", len(products)).Msg("catalog_sync_replace_failed")
		if errors.Is(err, catalog.ErrEmptyCatalog) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	obs.UpstreamSyncTotal.WithLabelValues("ok").Inc()
	h.Logger.Info().Int("accepted", res.Accepted).Int("rejected", res.Rejected).Msg("catalog_sync_completed")
	return nil
}

// NewServeMux routes worker tasks to their handlers.
func NewServeMux(sync *SyncHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeCatalogSync, sync)
	return mux
}
