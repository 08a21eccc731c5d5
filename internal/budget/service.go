// Package budget freezes a priced cart into a budget that can be retrieved
// and exported as a spreadsheet.
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/presupuesto/internal/cart"
	"github.com/noah-isme/presupuesto/internal/obs"
	"github.com/noah-isme/presupuesto/internal/pricing"
)

var (
	// ErrEmptyCart is returned when a budget is requested for a cart without entries.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidID is returned for ids that are not uuids.
	ErrInvalidID = errors.New("invalid budget id")
)

// Budget is an immutable snapshot of a cart and its quote.
type Budget struct {
	ID        string        `json:"id"`
	CartID    string        `json:"cartId"`
	CreatedAt time.Time     `json:"createdAt"`
	Entries   []cart.Entry  `json:"entries"`
	ItemCount int           `json:"itemCount"`
	Quote     pricing.Quote `json:"quote"`
}

func (b Budget) clone() Budget {
	b.Entries = append([]cart.Entry(nil), b.Entries...)
	b.Quote.Methods = append([]pricing.Breakdown(nil), b.Quote.Methods...)
	b.Quote.Manual = append([]pricing.ManualBreakdown(nil), b.Quote.Manual...)
	return b
}

// Quoter prices a cart. cart.Service satisfies it.
type Quoter interface {
	Quote(ctx context.Context, id string, methodIDs []string, manual []pricing.ManualEntry) (cart.Cart, pricing.Quote, error)
}

// Selection is the payment selection a budget is generated with.
type Selection struct {
	MethodIDs []string
	Manual    []pricing.ManualEntry
}

// Service generates and serves budgets.
type Service struct {
	Carts  Quoter
	Repo   Repository
	Now    func() time.Time
	Logger zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

// Generate prices the cart under sel and stores the result as a new budget.
func (s *Service) Generate(ctx context.Context, cartID string, sel Selection) (Budget, error) {
	if s.Carts == nil || s.Repo == nil {
		return Budget{}, errors.New("budget service not configured")
	}
	c, quote, err := s.Carts.Quote(ctx, cartID, sel.MethodIDs, sel.Manual)
	if err != nil {
		obs.BudgetsGeneratedTotal.WithLabelValues("rejected").Inc()
		return Budget{}, err
	}
	if len(c.Entries) == 0 {
		obs.BudgetsGeneratedTotal.WithLabelValues("empty").Inc()
		return Budget{}, ErrEmptyCart
	}
	b := Budget{
		ID:        uuid.NewString(),
		CartID:    c.ID,
		CreatedAt: s.now(),
		Entries:   c.Entries,
		ItemCount: c.ItemCount,
		Quote:     quote,
	}
	if err := s.Repo.Save(ctx, b); err != nil {
		obs.BudgetsGeneratedTotal.WithLabelValues("error").Inc()
		s.Logger.Error().Err(err).Str("cart_id", cartID).Msg("budget_save_failed")
		return Budget{}, err
	}
	obs.BudgetsGeneratedTotal.WithLabelValues("ok").Inc()
	s.Logger.Info().Str("budget_id", b.ID).Str("cart_id", c.ID).Int("options", quote.Options()).Msg("budget_generated")
	return b, nil
}

// Get returns the stored budget.
func (s *Service) Get(ctx context.Context, id string) (Budget, error) {
	if s.Repo == nil {
		return Budget{}, errors.New("budget service not configured")
	}
	if _, err := uuid.Parse(id); err != nil {
		return Budget{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return s.Repo.Load(ctx, id)
}
