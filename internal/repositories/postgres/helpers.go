package postgres

import (
	"strings"

	"gorm.io/gorm"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

var sortableColumns = map[string]bool{
	"id":           true,
	"title":        true,
	"created_at":   true,
	"updated_at":   true,
	"submitted_at": true,
}

// SharedHelpers holds query helpers used by every repository
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// GetDB returns the transaction when one is supplied
func (h *SharedHelpers) GetDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return h.db
}

// ApplyPaginationAndSort applies pagination and sorting to a query.
// Unknown sort columns fall back to created_at.
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	return h.ApplyPagination(h.ApplySort(query, sortBy, sortOrder), limit, offset)
}

func (h *SharedHelpers) ApplySort(query *gorm.DB, sortBy, sortOrder string) *gorm.DB {
	if !sortableColumns[sortBy] {
		sortBy = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		direction = "ASC"
	}
	return query.Order(sortBy + " " + direction).Order("id " + direction)
}

func (h *SharedHelpers) ApplyPagination(query *gorm.DB, limit, offset int) *gorm.DB {
	limit, offset = normalizePage(limit, offset)
	return query.Limit(limit).Offset(offset)
}

// Window returns the slice bounds of one page over n already loaded rows
func (h *SharedHelpers) Window(n, limit, offset int) (int, int) {
	limit, offset = normalizePage(limit, offset)
	lo := min(offset, n)
	return lo, min(lo+limit, n)
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
