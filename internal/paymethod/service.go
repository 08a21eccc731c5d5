package paymethod

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/presupuesto/internal/lock"
	"github.com/noah-isme/presupuesto/internal/pricing"
)

const registryLockKey = "payment-methods"

// Input describes a method as entered in the create and update forms. Interest
// is a percentage, so 8 means an 8% surcharge.
type Input struct {
	Name            string          `json:"name" validate:"required"`
	InterestPercent decimal.Decimal `json:"interestPercent"`
	Installments    int             `json:"installments" validate:"gte=1"`
}

// Method converts the input into a pricing method with the given id.
func (in Input) Method(id string) pricing.Method {
	return pricing.Method{
		ID:           id,
		Name:         strings.TrimSpace(in.Name),
		Installments: in.Installments,
		Surcharge:    pricing.Percent(in.InterestPercent),
	}
}

// Service is the payment method registry: configured defaults followed by
// user created methods.
type Service struct {
	defaults []pricing.Method
	repo     Repository
	locker   lock.Locker
	logger   zerolog.Logger
	newID    func() string
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Defaults   []pricing.Method
	Repository Repository
	Locker     lock.Locker
	Logger     *zerolog.Logger
}

// NewService validates the defaults and constructs the registry.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, errors.New("payment methods: repository is required")
	}
	if err := ValidateAll(cfg.Defaults); err != nil {
		return nil, err
	}
	locker := cfg.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Service{
		defaults: append([]pricing.Method(nil), cfg.Defaults...),
		repo:     cfg.Repository,
		locker:   locker,
		logger:   logger,
		newID:    uuid.NewString,
	}, nil
}

// ValidateAll checks every method and rejects repeated ids.
func ValidateAll(methods []pricing.Method) error {
	seen := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		if err := pricing.ValidateMethod(m); err != nil {
			return err
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("method %q declared twice: %w", m.ID, pricing.ErrInvalidMethodConfiguration)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

// List returns every method in presentation order.
func (s *Service) List(ctx context.Context) ([]pricing.Method, error) {
	custom, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]pricing.Method, 0, len(s.defaults)+len(custom))
	out = append(out, s.defaults...)
	for _, m := range custom {
		if err := pricing.ValidateMethod(m); err != nil {
			s.logger.Warn().Err(err).Str("method_id", m.ID).Msg("payment_method_skipped")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Resolve returns the methods for ids in the given order. Repeated ids are kept once.
func (s *Service) Resolve(ctx context.Context, ids []string) ([]pricing.Method, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]pricing.Method, len(all))
	for _, m := range all {
		byID[m.ID] = m
	}
	out := make([]pricing.Method, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		m, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%q: %w", id, ErrUnknownMethod)
		}
		seen[id] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}

// Create registers a new method.
func (s *Service) Create(ctx context.Context, in Input) (pricing.Method, error) {
	m := in.Method(s.newID())
	if err := validateInput(m); err != nil {
		return pricing.Method{}, err
	}
	err := s.locker.WithLock(ctx, registryLockKey, 5*time.Second, func(ctx context.Context) error {
		custom, err := s.repo.Load(ctx)
		if err != nil {
			return err
		}
		return s.repo.Save(ctx, append(custom, m))
	})
	if err != nil {
		return pricing.Method{}, err
	}
	s.logger.Info().Str("method_id", m.ID).Int("installments", m.Installments).Msg("payment_method_created")
	return m, nil
}

// Update replaces a user created method.
func (s *Service) Update(ctx context.Context, id string, in Input) (pricing.Method, error) {
	for _, d := range s.defaults {
		if d.ID == id {
			return pricing.Method{}, fmt.Errorf("%q: %w", id, ErrReadOnly)
		}
	}
	m := in.Method(id)
	if err := validateInput(m); err != nil {
		return pricing.Method{}, err
	}
	err := s.locker.WithLock(ctx, registryLockKey, 5*time.Second, func(ctx context.Context) error {
		custom, err := s.repo.Load(ctx)
		if err != nil {
			return err
		}
		for i := range custom {
			if custom[i].ID == id {
				custom[i] = m
				return s.repo.Save(ctx, custom)
			}
		}
		return fmt.Errorf("%q: %w", id, ErrNotFound)
	})
	if err != nil {
		return pricing.Method{}, err
	}
	return m, nil
}

func validateInput(m pricing.Method) error {
	if m.Name == "" {
		return fmt.Errorf("method name required: %w", pricing.ErrInvalidMethodConfiguration)
	}
	return pricing.ValidateMethod(m)
}
