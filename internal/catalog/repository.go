package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/noah-isme/presupuesto/internal/cache"
)

// Repository persists the raw product list.
type Repository interface {
	Load(ctx context.Context) ([]Product, error)
	Save(ctx context.Context, products []Product) error
}

// MemoryRepository keeps the catalog in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	products []Product
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Load implements Repository.
func (r *MemoryRepository) Load(context.Context) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Product(nil), r.products...), nil
}

// Save implements Repository.
func (r *MemoryRepository) Save(_ context.Context, products []Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products = append([]Product(nil), products...)
	return nil
}

// RedisRepository stores the catalog as a single JSON document.
type RedisRepository struct {
	Store *cache.JSON
	Key   string
}

// Load implements Repository. A missing key is an empty catalog.
func (r RedisRepository) Load(ctx context.Context) ([]Product, error) {
	var products []Product
	if _, err := r.Store.Get(ctx, r.Key, &products); err != nil {
		return nil, fmt.Errorf("catalog: load: %w", err)
	}
	return products, nil
}

// Save implements Repository.
func (r RedisRepository) Save(ctx context.Context, products []Product) error {
	if products == nil {
		products = []Product{}
	}
	if err := r.Store.Set(ctx, r.Key, products); err != nil {
		return fmt.Errorf("catalog: save: %w", err)
	}
	return nil
}
