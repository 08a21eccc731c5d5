package catalog

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Product is a catalog row as loaded from a spreadsheet or the upstream API.
type Product struct {
	Code  string          `json:"code"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// Valid reports whether the product can enter a snapshot or a cart.
func (p Product) Valid() bool {
	return strings.TrimSpace(p.Code) != "" && !p.Price.IsNegative() && p.Stock >= 0
}

// Snapshot is an immutable, name ordered view of the catalog.
type Snapshot struct {
	products []Product
	byCode   map[string]int
}

// NewSnapshot filters invalid products, drops repeated codes and sorts by name
// using Spanish collation ignoring case and accents.
func NewSnapshot(products []Product) *Snapshot {
	kept := make([]Product, 0, len(products))
	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		p.Code = strings.TrimSpace(p.Code)
		p.Name = strings.TrimSpace(p.Name)
		if !p.Valid() {
			continue
		}
		if _, dup := seen[p.Code]; dup {
			continue
		}
		seen[p.Code] = struct{}{}
		kept = append(kept, p)
	}
	c := collate.New(language.Spanish, collate.IgnoreCase, collate.IgnoreDiacritics)
	sort.SliceStable(kept, func(i, j int) bool {
		return c.CompareString(kept[i].Name, kept[j].Name) < 0
	})
	idx := make(map[string]int, len(kept))
	for i, p := range kept {
		idx[p.Code] = i
	}
	return &Snapshot{products: kept, byCode: idx}
}

// Len returns the number of products in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.products)
}

// Products returns a copy of every product in display order.
func (s *Snapshot) Products() []Product {
	if s == nil {
		return []Product{}
	}
	return append([]Product(nil), s.products...)
}

// Lookup finds a product by code.
func (s *Snapshot) Lookup(code string) (Product, bool) {
	if s == nil {
		return Product{}, false
	}
	i, ok := s.byCode[strings.TrimSpace(code)]
	if !ok {
		return Product{}, false
	}
	return s.products[i], true
}

// Search returns products whose name contains q, ignoring case. An empty query matches everything.
func (s *Snapshot) Search(q string) []Product {
	q = strings.ToUpper(strings.TrimSpace(q))
	if q == "" {
		return s.Products()
	}
	out := make([]Product, 0)
	if s == nil {
		return out
	}
	for _, p := range s.products {
		if strings.Contains(strings.ToUpper(p.Name), q) {
			out = append(out, p)
		}
	}
	return out
}
