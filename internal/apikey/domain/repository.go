package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	Update(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindByKeyID(ctx context.Context, db *gorm.DB, keyID string) (*APIKey, error)
	FindActiveByHash(ctx context.Context, db *gorm.DB, keyHash string, now time.Time) (*APIKey, error)
	TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	List(ctx context.Context, db *gorm.DB) ([]*APIKey, error)
}
