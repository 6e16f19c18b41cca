package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrUnknownField        = errors.New("unknown_field")
	ErrUnsupportedOperator = errors.New("unsupported_operator")
	ErrEmptyUpdate         = errors.New("empty_update")
)

// Operator is a comparison understood by the data-query interface.
type Operator string

const (
	OpEq      Operator = "=="
	OpNotEq   Operator = "!="
	OpIn      Operator = "in"
	OpLt      Operator = "<"
	OpLte     Operator = "<="
	OpGt      Operator = ">"
	OpGte     Operator = ">="
	OpNotNull Operator = "not-null"
	OpIsNull  Operator = "null"
)

// Filter narrows a query to records whose Field satisfies Op against Value.
// Value is ignored for OpNotNull and OpIsNull.
type Filter struct {
	Field string
	Op    Operator
	Value any
}

func Where(field string, op Operator, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query describes a bounded read. Limit <= 0 means unbounded.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Normalizer is implemented by records that fill documented defaults for
// absent fields. It runs on every record read through a Repository.
type Normalizer interface {
	Normalize()
}

// Repository is the data-query interface over one table ("collection").
// Field names are validated against the model schema; unknown fields fail
// with ErrUnknownField instead of reaching the database.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]

	QueryByField(ctx context.Context, field string, op Operator, value any, limit int) ([]*T, error)
	Find(ctx context.Context, q Query) ([]*T, error)
	Count(ctx context.Context, filters ...Filter) (int64, error)
	CountBy(ctx context.Context, groupField string, filters ...Filter) (map[string]int64, error)

	GetByID(ctx context.Context, id snowflake.ID) (*T, error)
	GetByIDForUpdate(ctx context.Context, id snowflake.ID) (*T, error)

	Create(ctx context.Context, resource *T) error
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
}
