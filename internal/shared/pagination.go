package shared

import (
	"math"
	"net/url"
	"strconv"
)

// DefaultPerPage is the page size used when none is requested.
const DefaultPerPage = 20

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// PaginationFromQuery reads the 1-based page and per_page parameters.
func PaginationFromQuery(q url.Values, total int) Pagination {
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage > 100 {
		perPage = 100
	}
	return NewPagination(page, perPage, total)
}

// HasPrev reports whether a previous page exists.
func (p Pagination) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }

// PrevPage returns the previous page number.
func (p Pagination) PrevPage() int { return p.Page - 1 }

// NextPage returns the next page number.
func (p Pagination) NextPage() int { return p.Page + 1 }

// Offset returns the zero-based index of the first item on the page.
func (p Pagination) Offset() int { return (p.Page - 1) * p.PerPage }

// PageSlice returns the items of items that fall on the page described by p.
func PageSlice[T any](items []T, p Pagination) []T {
	start := p.Offset()
	if start >= len(items) {
		return nil
	}
	end := min(start+p.PerPage, len(items))
	return items[start:end]
}
