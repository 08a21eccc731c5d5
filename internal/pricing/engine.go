package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidMethodConfiguration is returned for payment methods that must never reach the calculator.
	ErrInvalidMethodConfiguration = errors.New("invalid payment method configuration")
	// ErrInvalidManualEntry is returned for manual schedules that cannot be computed.
	ErrInvalidManualEntry = errors.New("invalid manual payment entry")
)

// Method is a named payment plan with a fixed installment count and a surcharge fraction.
type Method struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Installments int             `json:"installments"`
	Surcharge    decimal.Decimal `json:"surcharge"`
}

// ManualEntry is a user supplied flat installment schedule.
type ManualEntry struct {
	Label                string          `json:"label"`
	Installments         int             `json:"installments"`
	AmountPerInstallment decimal.Decimal `json:"amountPerInstallment"`
}

// Breakdown is the computed schedule for a single method.
type Breakdown struct {
	Method         Method          `json:"method"`
	PerInstallment decimal.Decimal `json:"perInstallment"`
	Total          decimal.Decimal `json:"total"`
}

// ManualBreakdown is the computed schedule for a manual entry.
type ManualBreakdown struct {
	Entry ManualEntry     `json:"entry"`
	Total decimal.Decimal `json:"total"`
}

// Quote groups every schedule computed for one subtotal.
type Quote struct {
	Subtotal decimal.Decimal   `json:"subtotal"`
	Methods  []Breakdown       `json:"methods"`
	Manual   []ManualBreakdown `json:"manual"`
}

// Options reports how many payment options the quote carries.
func (q Quote) Options() int {
	return len(q.Methods) + len(q.Manual)
}

// ValidateMethod rejects methods with no installments or a negative surcharge.
func ValidateMethod(m Method) error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("method id required: %w", ErrInvalidMethodConfiguration)
	}
	if m.Installments < 1 {
		return fmt.Errorf("method %q: installments must be at least 1: %w", m.ID, ErrInvalidMethodConfiguration)
	}
	if m.Surcharge.IsNegative() {
		return fmt.Errorf("method %q: surcharge cannot be negative: %w", m.ID, ErrInvalidMethodConfiguration)
	}
	return nil
}

// ValidateManual requires a label and strictly positive installments and amount.
func ValidateManual(e ManualEntry) error {
	if strings.TrimSpace(e.Label) == "" {
		return fmt.Errorf("label required: %w", ErrInvalidManualEntry)
	}
	if e.Installments <= 0 {
		return fmt.Errorf("installments must be positive: %w", ErrInvalidManualEntry)
	}
	if !e.AmountPerInstallment.IsPositive() {
		return fmt.Errorf("amount per installment must be positive: %w", ErrInvalidManualEntry)
	}
	return nil
}

// ComputeBreakdown prices subtotal under every method, keeping the input order.
// Methods are expected to have passed ValidateMethod.
func ComputeBreakdown(subtotal decimal.Decimal, methods []Method) []Breakdown {
	out := make([]Breakdown, 0, len(methods))
	for _, m := range methods {
		total := subtotal.Mul(decimal.NewFromInt(1).Add(m.Surcharge))
		installments := m.Installments
		if installments < 1 {
			installments = 1
		}
		out = append(out, Breakdown{
			Method:         m,
			PerInstallment: total.Div(decimal.NewFromInt(int64(installments))),
			Total:          total,
		})
	}
	return out
}

// ComputeManualBreakdown multiplies the flat schedule out. No surcharge applies.
func ComputeManualBreakdown(e ManualEntry) ManualBreakdown {
	return ManualBreakdown{
		Entry: e,
		Total: decimal.NewFromInt(int64(e.Installments)).Mul(e.AmountPerInstallment),
	}
}

// BuildQuote computes method and manual schedules for subtotal.
func BuildQuote(subtotal decimal.Decimal, methods []Method, manual []ManualEntry) Quote {
	q := Quote{
		Subtotal: subtotal,
		Methods:  ComputeBreakdown(subtotal, methods),
		Manual:   make([]ManualBreakdown, 0, len(manual)),
	}
	for _, e := range manual {
		q.Manual = append(q.Manual, ComputeManualBreakdown(e))
	}
	return q
}

// Format renders an amount with two decimals for presentation.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Percent converts a percentage such as 8 into the fraction 0.08.
func Percent(p decimal.Decimal) decimal.Decimal {
	return p.Div(decimal.NewFromInt(100))
}
