package paymethod

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/presupuesto/internal/cache"
	"github.com/noah-isme/presupuesto/internal/pricing"
)

var (
	// ErrUnknownMethod is returned when a selected id is not registered.
	ErrUnknownMethod = fmt.Errorf("unknown payment method: %w", pricing.ErrInvalidMethodConfiguration)
	// ErrNotFound is returned when updating a method that does not exist.
	ErrNotFound = errors.New("payment method not found")
	// ErrReadOnly is returned when updating one of the configured default methods.
	ErrReadOnly = errors.New("payment method is read only")
)

// Defaults returns the built-in payment methods.
func Defaults() []pricing.Method {
	return []pricing.Method{
		{ID: "efectivo", Name: "Efectivo", Installments: 1, Surcharge: decimal.Zero},
		{ID: "transfer", Name: "Transferencia", Installments: 1, Surcharge: decimal.Zero},
		{ID: "debito", Name: "Tarjeta de débito", Installments: 1, Surcharge: decimal.Zero},
		{ID: "tc_3", Name: "Tarjeta 3 cuotas", Installments: 3, Surcharge: decimal.RequireFromString("0.1")},
		{ID: "tc_6", Name: "Tarjeta 6 cuotas", Installments: 6, Surcharge: decimal.RequireFromString("0.2")},
	}
}

// Repository persists user created methods.
type Repository interface {
	Load(ctx context.Context) ([]pricing.Method, error)
	Save(ctx context.Context, methods []pricing.Method) error
}

// MemoryRepository keeps methods in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	methods []pricing.Method
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Load implements Repository.
func (r *MemoryRepository) Load(context.Context) ([]pricing.Method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]pricing.Method(nil), r.methods...), nil
}

// Save implements Repository.
func (r *MemoryRepository) Save(_ context.Context, methods []pricing.Method) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods = append([]pricing.Method(nil), methods...)
	return nil
}

// RedisRepository stores methods as one JSON list.
type RedisRepository struct {
	Store *cache.JSON
	Key   string
}

// Load implements Repository.
func (r RedisRepository) Load(ctx context.Context) ([]pricing.Method, error) {
	var methods []pricing.Method
	if _, err := r.Store.Get(ctx, r.Key, &methods); err != nil {
		return nil, fmt.Errorf("payment methods: load: %w", err)
	}
	return methods, nil
}

// Save implements Repository.
func (r RedisRepository) Save(ctx context.Context, methods []pricing.Method) error {
	if methods == nil {
		methods = []pricing.Method{}
	}
	if err := r.Store.Set(ctx, r.Key, methods); err != nil {
		return fmt.Errorf("payment methods: save: %w", err)
	}
	return nil
}
