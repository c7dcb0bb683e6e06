package params

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Limits bounds the page size of one listing.
type Limits struct {
	Default int
	Max     int
}

var (
	// ProductListing is sized for a catalogue grid of four columns.
	ProductListing = Limits{Default: 24, Max: 96}
	OrderHistory   = Limits{Default: 10, Max: 50}
)

// maxOffset keeps deep pages from turning into full table scans.
const maxOffset = 10_000

// Pagination is parsed from ?page=&limit= and completed with ComputeMeta
// once the total row count is known.
type Pagination struct {
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	Page       int  `json:"page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// ParsePagination never fails: bad values fall back to page 1 and the
// listing's default limit, limit is capped at its max, and the page is capped
// so the offset never exceeds maxOffset.
func ParsePagination(q url.Values, l Limits) Pagination {
	p := Pagination{
		Limit: l.Default,
		Page:  1,
	}

	if limitStr := strings.TrimSpace(q.Get("limit")); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			switch {
			case limit <= 0:
				p.Limit = l.Default
			case limit > l.Max:
				p.Limit = l.Max
			default:
				p.Limit = limit
			}
		}
	}

	if pageStr := strings.TrimSpace(q.Get("page")); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil && page > 0 {
			p.Page = min(page, maxOffset/p.Limit+1)
		}
	}

	p.Offset = (p.Page - 1) * p.Limit
	return p
}

func (p *Pagination) ComputeMeta(total int) {
	p.Total = total
	if p.Limit > 0 {
		p.TotalPages = int(math.Ceil(float64(total) / float64(p.Limit)))
	}
	p.HasPrev = p.Page > 1
	p.HasNext = (p.Page * p.Limit) < total
}
