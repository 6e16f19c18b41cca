package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (r *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx}
}

func (r *store[T]) QueryByField(ctx context.Context, field string, op Operator, value any, limit int) ([]*T, error) {
	return r.Find(ctx, Query{Filters: []Filter{Where(field, op, value)}, Limit: limit})
}

func (r *store[T]) Find(ctx context.Context, q Query) ([]*T, error) {
	sch, err := r.schema()
	if err != nil {
		return nil, err
	}
	stmt, err := r.filtered(ctx, sch, q.Filters)
	if err != nil {
		return nil, err
	}
	if q.OrderBy != "" {
		column, err := columnOf(sch, q.OrderBy)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: q.Desc})
	}
	if q.Limit > 0 {
		stmt = stmt.Limit(q.Limit)
	}

	var result []*T
	if err := stmt.Find(&result).Error; err != nil {
		return nil, err
	}
	for _, item := range result {
		normalize(item)
	}
	return result, nil
}

func (r *store[T]) Count(ctx context.Context, filters ...Filter) (int64, error) {
	sch, err := r.schema()
	if err != nil {
		return 0, err
	}
	stmt, err := r.filtered(ctx, sch, filters)
	if err != nil {
		return 0, err
	}
	var count int64
	err = stmt.Count(&count).Error
	return count, err
}

func (r *store[T]) CountBy(ctx context.Context, groupField string, filters ...Filter) (map[string]int64, error) {
	sch, err := r.schema()
	if err != nil {
		return nil, err
	}
	column, err := columnOf(sch, groupField)
	if err != nil {
		return nil, err
	}
	stmt, err := r.filtered(ctx, sch, filters)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		GroupKey string `gorm:"column:group_key"`
		Total    int64  `gorm:"column:total"`
	}
	if err := stmt.
		Select(fmt.Sprintf("%s AS group_key, COUNT(*) AS total", column)).
		Group(column).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.GroupKey] += row.Total
	}
	return out, nil
}

func (r *store[T]) GetByID(ctx context.Context, id snowflake.ID) (*T, error) {
	var result T
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	normalize(&result)
	return &result, nil
}

// GetByIDForUpdate locks the row for the surrounding transaction. SQLite has
// no row locks; callers there rely on its single writer.
func (r *store[T]) GetByIDForUpdate(ctx context.Context, id snowflake.ID) (*T, error) {
	sch, err := r.schema()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE id = ? LIMIT 1", sch.Table)
	if r.db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var rows []*T
	if err := r.db.WithContext(ctx).Raw(query, id).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	normalize(rows[0])
	return rows[0], nil
}

func (r *store[T]) Create(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *store[T]) UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return ErrEmptyUpdate
	}
	sch, err := r.schema()
	if err != nil {
		return err
	}

	updates := make(map[string]any, len(fields))
	for field, value := range fields {
		column, err := columnOf(sch, field)
		if err != nil {
			return err
		}
		updates[column] = value
	}

	return r.db.WithContext(ctx).
		Table(sch.Table).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *store[T]) schema() (*schema.Schema, error) {
	stmt := &gorm.Statement{DB: r.db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, err
	}
	return stmt.Schema, nil
}

func (r *store[T]) filtered(ctx context.Context, sch *schema.Schema, filters []Filter) (*gorm.DB, error) {
	stmt := r.db.WithContext(ctx).Model(new(T))
	for _, f := range filters {
		column, err := columnOf(sch, f.Field)
		if err != nil {
			return nil, err
		}
		expr, err := f.expression(column)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where(expr)
	}
	return stmt, nil
}

func (f Filter) expression(column string) (clause.Expression, error) {
	col := clause.Column{Name: column}
	switch f.Op {
	case OpEq:
		return clause.Eq{Column: col, Value: f.Value}, nil
	case OpNotEq:
		return clause.Neq{Column: col, Value: f.Value}, nil
	case OpIn:
		return clause.IN{Column: col, Values: spread(f.Value)}, nil
	case OpLt:
		return clause.Lt{Column: col, Value: f.Value}, nil
	case OpLte:
		return clause.Lte{Column: col, Value: f.Value}, nil
	case OpGt:
		return clause.Gt{Column: col, Value: f.Value}, nil
	case OpGte:
		return clause.Gte{Column: col, Value: f.Value}, nil
	case OpNotNull:
		return clause.Expr{SQL: "? IS NOT NULL", Vars: []any{col}}, nil
	case OpIsNull:
		return clause.Expr{SQL: "? IS NULL", Vars: []any{col}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperator, f.Op)
	}
}

func columnOf(sch *schema.Schema, field string) (string, error) {
	field = strings.TrimSpace(field)
	if f := sch.LookUpField(field); f != nil && f.DBName != "" {
		return f.DBName, nil
	}
	return "", fmt.Errorf("%w: %s.%s", ErrUnknownField, sch.Table, field)
}

func spread(value any) []any {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{value}
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, rv.Index(i).Interface())
	}
	return out
}

func normalize[T any](item *T) {
	if n, ok := any(item).(Normalizer); ok {
		n.Normalize()
	}
}
