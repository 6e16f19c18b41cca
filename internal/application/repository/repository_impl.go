package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	appdomain "github.com/smallbiznis/directory/internal/application/domain"
	"github.com/smallbiznis/directory/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() appdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, app *appdomain.Application) error {
	return repository.ProvideStore[appdomain.Application](db).Create(ctx, app)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*appdomain.Application, error) {
	return repository.ProvideStore[appdomain.Application](db).GetByID(ctx, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*appdomain.Application, error) {
	return repository.ProvideStore[appdomain.Application](db).GetByIDForUpdate(ctx, id)
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return repository.ProvideStore[appdomain.Application](db).UpdateFields(ctx, id, fields)
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, statuses []appdomain.Status, limit int) ([]*appdomain.Application, error) {
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	return repository.ProvideStore[appdomain.Application](db).Find(ctx, repository.Query{
		Filters: []repository.Filter{repository.Where("status", repository.OpIn, values)},
		OrderBy: "created_at",
		Limit:   limit,
	})
}
