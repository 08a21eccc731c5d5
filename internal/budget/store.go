package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/noah-isme/presupuesto/internal/cache"
)

// ErrNotFound is returned when a budget does not exist or has expired.
var ErrNotFound = errors.New("budget not found")

// Repository persists generated budgets.
type Repository interface {
	Load(ctx context.Context, id string) (Budget, error)
	Save(ctx context.Context, b Budget) error
}

// MemoryRepository keeps budgets in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	ttl     time.Duration
	budgets map[string]memoryBudget
	now     func() time.Time
}

type memoryBudget struct {
	budget    Budget
	expiresAt time.Time
}

// NewMemoryRepository returns an empty repository. A zero ttl never expires.
func NewMemoryRepository(ttl time.Duration) *MemoryRepository {
	return &MemoryRepository{ttl: ttl, budgets: make(map[string]memoryBudget), now: time.Now}
}

// Load implements Repository.
func (r *MemoryRepository) Load(_ context.Context, id string) (Budget, error) {
	r.mu.RLock()
	item, ok := r.budgets[id]
	r.mu.RUnlock()
	if !ok {
		return Budget{}, ErrNotFound
	}
	if !item.expiresAt.IsZero() && !r.now().Before(item.expiresAt) {
		r.mu.Lock()
		delete(r.budgets, id)
		r.mu.Unlock()
		return Budget{}, ErrNotFound
	}
	return item.budget.clone(), nil
}

// Save implements Repository.
func (r *MemoryRepository) Save(_ context.Context, b Budget) error {
	item := memoryBudget{budget: b.clone()}
	if r.ttl > 0 {
		item.expiresAt = r.now().Add(r.ttl)
	}
	r.mu.Lock()
	r.budgets[b.ID] = item
	r.mu.Unlock()
	return nil
}

// RedisRepository stores budgets as JSON documents.
type RedisRepository struct {
	Store *cache.JSON
	Keys  cache.Keys
}

// Load implements Repository.
func (r RedisRepository) Load(ctx context.Context, id string) (Budget, error) {
	var b Budget
	ok, err := r.Store.Get(ctx, r.Keys.Budget(id), &b)
	if err != nil {
		return Budget{}, fmt.Errorf("budget: load %s: %w", id, err)
	}
	if !ok {
		return Budget{}, ErrNotFound
	}
	return b, nil
}

// Save implements Repository.
func (r RedisRepository) Save(ctx context.Context, b Budget) error {
	if err := r.Store.Set(ctx, r.Keys.Budget(b.ID), b); err != nil {
		return fmt.Errorf("budget: save %s: %w", b.ID, err)
	}
	return nil
}
