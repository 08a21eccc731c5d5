package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/presupuesto/internal/catalog"
	"github.com/noah-isme/presupuesto/internal/lock"
	"github.com/noah-isme/presupuesto/internal/obs"
	"github.com/noah-isme/presupuesto/internal/pricing"
)

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// ErrUnknownProduct is returned when a code is not in the current catalog.
var ErrUnknownProduct = errors.New("unknown product")

// ProductLookup resolves catalog products by code.
type ProductLookup interface {
	Get(ctx context.Context, code string) (catalog.Product, error)
}

// MethodResolver resolves payment method ids in selection order.
type MethodResolver interface {
	Resolve(ctx context.Context, ids []string) ([]pricing.Method, error)
}

// Cart is a read model of a stored cart with its derived totals.
type Cart struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Entries   []Entry
	Subtotal  decimal.Decimal
	ItemCount int
}

// Service encapsulates cart domain operations. Each cart is loaded into an
// Aggregator, mutated and saved back while holding the cart lock.
type Service struct {
	Store   Store
	Catalog ProductLookup
	Methods MethodResolver
	Locker  lock.Locker
	LockTTL time.Duration
	Now     func() time.Time
	Logger  zerolog.Logger
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 5 * time.Second
	}
	return s.LockTTL
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil || s.Locker == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// Create stores an empty cart and returns it.
func (s *Service) Create(ctx context.Context) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	now := s.now()
	snap := Snapshot{ID: uuid.NewString(), Entries: []Entry{}, CreatedAt: now, UpdatedAt: now}
	if err := s.Store.Save(ctx, snap); err != nil {
		return Cart{}, err
	}
	obs.CartMutationsTotal.WithLabelValues("create").Inc()
	return view(snap, NewAggregator()), nil
}

// Get returns the cart with its current totals.
func (s *Service) Get(ctx context.Context, id string) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	if err := validateID(id); err != nil {
		return Cart{}, err
	}
	snap, err := s.Store.Load(ctx, id)
	if err != nil {
		return Cart{}, err
	}
	return view(snap, Restore(snap.Entries)), nil
}

// Add looks up code in the catalog and adds one unit of it to the cart.
func (s *Service) Add(ctx context.Context, id, code string) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	if s.Catalog == nil {
		return Cart{}, errors.New("cart service: catalog not configured")
	}
	if err := validateID(id); err != nil {
		return Cart{}, err
	}
	p, err := s.Catalog.Get(ctx, code)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Cart{}, fmt.Errorf("code %q: %w", code, ErrUnknownProduct)
		}
		return Cart{}, err
	}
	return s.mutate(ctx, id, "add", func(a *Aggregator) error {
		if !a.Add(p) {
			return fmt.Errorf("code %q: %w", code, ErrUnknownProduct)
		}
		return nil
	})
}

// SetQuantity sets the quantity for code. Zero or negative removes the entry;
// a code not in the cart leaves it unchanged.
func (s *Service) SetQuantity(ctx context.Context, id, code string, qty int) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	if err := validateID(id); err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, id, "set_quantity", func(a *Aggregator) error {
		a.SetQuantity(code, qty)
		return nil
	})
}

// Remove deletes code from the cart.
func (s *Service) Remove(ctx context.Context, id, code string) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	if err := validateID(id); err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, id, "remove", func(a *Aggregator) error {
		a.Remove(code)
		return nil
	})
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, id string) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	if err := validateID(id); err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, id, "clear", func(a *Aggregator) error {
		a.Clear()
		return nil
	})
}

// Quote prices the cart subtotal under the selected methods and manual entries.
func (s *Service) Quote(ctx context.Context, id string, methodIDs []string, manual []pricing.ManualEntry) (Cart, pricing.Quote, error) {
	if s.Methods == nil {
		return Cart{}, pricing.Quote{}, errors.New("cart service: payment methods not configured")
	}
	for _, e := range manual {
		if err := pricing.ValidateManual(e); err != nil {
			return Cart{}, pricing.Quote{}, err
		}
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return Cart{}, pricing.Quote{}, err
	}
	methods, err := s.Methods.Resolve(ctx, methodIDs)
	if err != nil {
		return Cart{}, pricing.Quote{}, err
	}
	return c, pricing.BuildQuote(c.Subtotal, methods, manual), nil
}

func (s *Service) mutate(ctx context.Context, id, op string, fn func(*Aggregator) error) (Cart, error) {
	var out Cart
	err := s.Locker.WithLock(ctx, "cart:"+id, s.lockTTL(), func(ctx context.Context) error {
		snap, err := s.Store.Load(ctx, id)
		if err != nil {
			return err
		}
		agg := Restore(snap.Entries)
		if err := fn(agg); err != nil {
			return err
		}
		snap.Entries = agg.Snapshot()
		snap.UpdatedAt = s.now()
		if err := s.Store.Save(ctx, snap); err != nil {
			return err
		}
		out = view(snap, agg)
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrUnknownProduct) {
			s.Logger.Error().Err(err).Str("cart_id", id).Str("op", op).Msg("cart_mutation_failed")
		}
		return Cart{}, err
	}
	obs.CartMutationsTotal.WithLabelValues(op).Inc()
	return out, nil
}

func view(snap Snapshot, agg *Aggregator) Cart {
	return Cart{
		ID:        snap.ID,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
		Entries:   agg.Entries(),
		Subtotal:  agg.Subtotal(),
		ItemCount: agg.TotalItemCount(),
	}
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("cart id %q: %w", id, ErrInvalidInput)
	}
	return nil
}
