package cache

import "strings"

// Keys builds Redis keys under a shared prefix.
type Keys struct {
	Prefix string
}

func (k Keys) join(parts ...string) string {
	prefix := strings.TrimSuffix(strings.TrimSpace(k.Prefix), ":")
	if prefix == "" {
		prefix = "presupuesto"
	}
	return prefix + ":" + strings.Join(parts, ":")
}

// Catalog returns the key holding the product catalog.
func (k Keys) Catalog() string { return k.join("catalog", "products") }

// PaymentMethods returns the key holding the payment method list.
func (k Keys) PaymentMethods() string { return k.join("payment-methods") }

// Cart returns the key for a cart snapshot.
func (k Keys) Cart(id string) string { return k.join("cart", id) }

// Budget returns the key for a stored budget.
func (k Keys) Budget(id string) string { return k.join("budget", id) }

// Lock returns the key guarding name.
func (k Keys) Lock(name string) string { return k.join("lock", name) }

// Idempotency returns the prefix for stored idempotent responses.
func (k Keys) Idempotency() string { return k.join("idem") }

// RateLimit returns the prefix used by the rate limiter store.
func (k Keys) RateLimit() string { return k.join("ratelimit") }
