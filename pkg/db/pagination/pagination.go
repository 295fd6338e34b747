package pagination

import (
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 250
)

// Pagination is bound from the page and page_size query parameters.
type Pagination struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

type PageInfo struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
	HasMore  bool  `json:"has_more"`
}

// Normalize clamps page to >= 1 and page size to [1, MaxPageSize].
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.PageSize <= 0:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

// Apply adds LIMIT/OFFSET for the normalized page.
func (p Pagination) Apply(db *gorm.DB) *gorm.DB {
	p = p.Normalize()
	return db.Limit(p.PageSize).Offset((p.Page - 1) * p.PageSize)
}

// Info builds the page metadata for a total row count.
func (p Pagination) Info(total int64) PageInfo {
	p = p.Normalize()
	return PageInfo{
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    total,
		HasMore:  int64(p.Page*p.PageSize) < total,
	}
}
