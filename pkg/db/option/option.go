package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Operator is a comparison operator usable in ApplyOperator conditions.
type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "!="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

// QueryOption mutates a gorm query before execution. Repositories apply
// options in order after the struct-based filter.
type QueryOption func(tx *gorm.DB) *gorm.DB

// WithSortBy orders the result set. Columns must be whitelisted through
// Allow to keep caller-supplied sort fields out of raw SQL.
func WithSortBy(sort QuerySortBy) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		column := sort.SortBy
		if column == "" {
			column = "created_at"
		}
		if sort.Allow != nil && !sort.Allow[column] {
			column = "created_at"
		}

		order := strings.ToUpper(sort.OrderBy)
		if order != "ASC" && order != "DESC" {
			order = "DESC"
		}

		return tx.Order(fmt.Sprintf("%s %s", column, order))
	}
}

// WithLimit caps the number of returned rows.
func WithLimit(limit int) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return tx
		}
		return tx.Limit(limit)
	}
}

// ApplyOperator adds a non-equality condition the struct filter cannot express.
func ApplyOperator(cond Condition) QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), cond.Value)
	}
}
