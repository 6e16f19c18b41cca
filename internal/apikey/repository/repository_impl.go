package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/directory/internal/apikey/domain"
	"github.com/smallbiznis/directory/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

func keys(db *gorm.DB) repository.Repository[apikeydomain.APIKey] {
	return repository.ProvideStore[apikeydomain.APIKey](db)
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return keys(db).Create(ctx, key)
}

// Update persists the mutable fields. The hash and key id never change.
func (r *repo) Update(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return keys(db).UpdateFields(ctx, key.ID, map[string]any{
		"name":       key.Name,
		"role":       key.Role,
		"scopes":     key.Scopes,
		"is_active":  key.IsActive,
		"expires_at": key.ExpiresAt,
		"updated_at": key.UpdatedAt,
	})
}

func (r *repo) FindByKeyID(ctx context.Context, db *gorm.DB, keyID string) (*apikeydomain.APIKey, error) {
	return first(keys(db).QueryByField(ctx, "key_id", repository.OpEq, keyID, 1))
}

func (r *repo) FindActiveByHash(ctx context.Context, db *gorm.DB, keyHash string, now time.Time) (*apikeydomain.APIKey, error) {
	key, err := first(keys(db).Find(ctx, repository.Query{
		Filters: []repository.Filter{
			repository.Where("key_hash", repository.OpEq, keyHash),
			repository.Where("is_active", repository.OpEq, true),
		},
		Limit: 1,
	}))
	if err != nil || key == nil {
		return nil, err
	}
	if key.ExpiresAt != nil && !key.ExpiresAt.After(now) {
		return nil, nil
	}
	return key, nil
}

func (r *repo) TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return keys(db).UpdateFields(ctx, id, map[string]any{"last_used_at": at})
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]*apikeydomain.APIKey, error) {
	return keys(db).Find(ctx, repository.Query{OrderBy: "created_at", Desc: true})
}

func first(rows []*apikeydomain.APIKey, err error) (*apikeydomain.APIKey, error) {
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}
