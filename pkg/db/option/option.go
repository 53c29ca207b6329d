// Package option provides composable gorm query modifiers used by the
// generic repository.
package option

import (
	"strings"

	"github.com/PresidentofMexico/openai-usage-metrics/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type optionFunc func(*gorm.DB) *gorm.DB

func (f optionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// ApplyPagination applies cursor pagination. One extra row is fetched so the
// caller can detect whether more pages exist.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		size := p.PageSize
		if size <= 0 {
			size = 50
		}
		if size > 500 {
			size = 500
		}

		if token := strings.TrimSpace(p.PageToken); token != "" {
			if cursor, err := pagination.DecodeCursor(token); err == nil && cursor.ID != "" {
				db = db.Where("id < ?", cursor.ID)
			}
		}
		return db.Limit(size + 1)
	})
}

// QuerySortBy whitelists sortable columns.
type QuerySortBy struct {
	Allow  map[string]bool
	Column string
	Desc   bool
}

// WithSortBy orders results by an allowed column, defaulting to id DESC.
func WithSortBy(sort QuerySortBy) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		column := strings.TrimSpace(sort.Column)
		if column == "" || !sort.Allow[column] {
			return db.Order("id DESC")
		}
		direction := "ASC"
		if sort.Desc {
			direction = "DESC"
		}
		return db.Order(column + " " + direction)
	})
}

// WithCondition adds a raw conditional clause with arguments.
func WithCondition(query string, args ...any) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
}
