package cart

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/presupuesto/internal/catalog"
)

// Entry is a product tracked by the cart together with its quantity.
type Entry struct {
	Product catalog.Product `json:"product"`
	Qty     int             `json:"qty"`
}

// LineTotal returns price times quantity.
func (e Entry) LineTotal() decimal.Decimal {
	return e.Product.Price.Mul(decimal.NewFromInt(int64(e.Qty)))
}

// Aggregator keeps at most one entry per product code, in insertion order.
// The zero value is ready to use. It is not safe for concurrent use.
type Aggregator struct {
	entries []Entry
	index   map[string]int
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{index: make(map[string]int)}
}

// Add increments the quantity for p, inserting it with quantity 1 on first add.
// Products without a code or with a negative price are ignored and Add reports false.
func (a *Aggregator) Add(p catalog.Product) bool {
	if !addable(p) {
		return false
	}
	if a.index == nil {
		a.index = make(map[string]int)
	}
	if i, ok := a.index[p.Code]; ok {
		a.entries[i].Qty++
		return true
	}
	a.index[p.Code] = len(a.entries)
	a.entries = append(a.entries, Entry{Product: p, Qty: 1})
	return true
}

// SetQuantity replaces the quantity for code. A quantity of zero or less removes
// the entry. Setting a quantity on a code never added is a no-op and reports false.
func (a *Aggregator) SetQuantity(code string, qty int) bool {
	i, ok := a.index[code]
	if !ok {
		return false
	}
	if qty <= 0 {
		a.removeAt(i)
		return true
	}
	a.entries[i].Qty = qty
	return true
}

// Remove deletes the entry for code and reports whether it existed.
func (a *Aggregator) Remove(code string) bool {
	i, ok := a.index[code]
	if !ok {
		return false
	}
	a.removeAt(i)
	return true
}

// Clear empties the aggregator.
func (a *Aggregator) Clear() {
	a.entries = nil
	a.index = make(map[string]int)
}

// Subtotal sums price times quantity over the current entries.
func (a *Aggregator) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, e := range a.entries {
		total = total.Add(e.LineTotal())
	}
	return total
}

// TotalItemCount sums the quantities of every entry.
func (a *Aggregator) TotalItemCount() int {
	n := 0
	for _, e := range a.entries {
		n += e.Qty
	}
	return n
}

// Len returns the number of distinct products.
func (a *Aggregator) Len() int {
	return len(a.entries)
}

// Entries returns a copy of the entries in insertion order.
func (a *Aggregator) Entries() []Entry {
	return append([]Entry{}, a.entries...)
}

// Entry returns the entry for code.
func (a *Aggregator) Entry(code string) (Entry, bool) {
	i, ok := a.index[code]
	if !ok {
		return Entry{}, false
	}
	return a.entries[i], true
}

// Snapshot returns the aggregator state as a plain value.
func (a *Aggregator) Snapshot() []Entry {
	return a.Entries()
}

// Restore rebuilds an aggregator from a snapshot. Invalid entries and quantities
// below one are dropped, and repeated codes are merged.
func Restore(entries []Entry) *Aggregator {
	a := NewAggregator()
	for _, e := range entries {
		if !addable(e.Product) || e.Qty <= 0 {
			continue
		}
		if i, ok := a.index[e.Product.Code]; ok {
			a.entries[i].Qty += e.Qty
			continue
		}
		a.index[e.Product.Code] = len(a.entries)
		a.entries = append(a.entries, e)
	}
	return a
}

func (a *Aggregator) removeAt(i int) {
	code := a.entries[i].Product.Code
	a.entries = append(a.entries[:i], a.entries[i+1:]...)
	delete(a.index, code)
	for j := i; j < len(a.entries); j++ {
		a.index[a.entries[j].Product.Code] = j
	}
}

// addable reports whether p may enter a cart. Stock is not checked.
func addable(p catalog.Product) bool {
	return p.Code != "" && !p.Price.IsNegative()
}
