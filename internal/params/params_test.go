package params

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query      string
		limits     Limits
		page, lim  int
		wantOffset int
	}{
		{"", ProductListing, 1, 24, 0},
		{"", OrderHistory, 1, 10, 0},
		{"page=3&limit=10", ProductListing, 3, 10, 20},
		{"page=0&limit=-4", OrderHistory, 1, 10, 0},
		{"page=abc&limit=500", ProductListing, 1, 96, 0},
		{"page=abc&limit=500", OrderHistory, 1, 50, 0},
		{"Page=2", ProductListing, 1, 24, 0},
		{"page=99999999&limit=50", OrderHistory, 201, 50, 10000},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			assert.NoError(t, err)
			p := ParsePagination(q, tt.limits)
			assert.Equal(t, tt.page, p.Page)
			assert.Equal(t, tt.lim, p.Limit)
			assert.Equal(t, tt.wantOffset, p.Offset)
		})
	}
}

func TestComputeMeta(t *testing.T) {
	p := Pagination{Page: 2, Limit: 10, Offset: 10}
	p.ComputeMeta(25)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasPrev)
	assert.True(t, p.HasNext)

	p = Pagination{Page: 1, Limit: 10}
	p.ComputeMeta(0)
	assert.Equal(t, 0, p.TotalPages)
	assert.False(t, p.HasNext)
	assert.False(t, p.HasPrev)
}
