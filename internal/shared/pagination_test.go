package shared

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginationFromQuery(t *testing.T) {
	p := PaginationFromQuery(url.Values{"page": {"2"}, "per_page": {"10"}}, 25)
	assert.Equal(t, Pagination{Page: 2, PerPage: 10, Total: 25, TotalPages: 3}, p)
	assert.True(t, p.HasPrev())
	assert.True(t, p.HasNext())
	assert.Equal(t, 10, p.Offset())

	d := PaginationFromQuery(url.Values{}, 0)
	assert.Equal(t, 1, d.Page)
	assert.Equal(t, DefaultPerPage, d.PerPage)
	assert.False(t, d.HasNext())
}

func TestPageSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{3, 4}, PageSlice(items, NewPagination(2, 2, len(items))))
	assert.Equal(t, []int{5}, PageSlice(items, NewPagination(3, 2, len(items))))
	assert.Nil(t, PageSlice(items, NewPagination(4, 2, len(items))))
}
