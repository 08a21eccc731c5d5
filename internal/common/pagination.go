package common

// Pagination describes one page of a list response.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination fills TotalPages from total and limit. A non-positive
// limit yields zero pages.
func NewPagination(page, limit, total int) Pagination {
	p := Pagination{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.TotalPages = (total + limit - 1) / limit
	}
	return p
}

// HasNext reports whether a page follows this one.
func (p Pagination) HasNext() bool {
	return p.Page < p.TotalPages
}
