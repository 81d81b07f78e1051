package models

import "math"

const (
	DefaultPageLimit = 12
	MaxPageLimit     = 100
	// MaxPage keeps (page-1)*limit within int32 so skips stay valid on every platform.
	MaxPage = math.MaxInt32 / MaxPageLimit
)

// PageRequest is a 1-based page/limit pair.
type PageRequest struct {
	Page  int
	Limit int
}

// NewPageRequest clamps page to [1, MaxPage] and limit to [1, MaxPageLimit], defaulting to DefaultPageLimit.
func NewPageRequest(page, limit int) PageRequest {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return PageRequest{Page: page, Limit: limit}
}

// Skip is the number of documents preceding the requested page.
func (p PageRequest) Skip() int64 {
	return int64(p.Page-1) * int64(p.Limit)
}

// Pagination describes a page of results.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

// NewPagination computes pages = ceil(total/limit).
func NewPagination(req PageRequest, total int64) Pagination {
	var pages int64
	if req.Limit > 0 {
		pages = (total + int64(req.Limit) - 1) / int64(req.Limit)
	}
	return Pagination{Page: req.Page, Limit: req.Limit, Total: total, Pages: pages}
}

// Page is the response envelope for paginated listings.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// NewPage builds a Page, replacing a nil slice with an empty one so it serializes as [].
func NewPage[T any](items []T, req PageRequest, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Pagination: NewPagination(req, total)}
}
