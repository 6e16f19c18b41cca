package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Category string
	Plan     string
	Status   Status
	AfterID  snowflake.ID
	Limit    int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	CountWaiting(ctx context.Context, db *gorm.DB, key Key) (int64, error)
	NextWaiting(ctx context.Context, db *gorm.DB, key Key) (*Entry, error)
	MarkNotified(ctx context.Context, db *gorm.DB, id snowflake.ID, notifiedAt, expiresAt time.Time) error
	ExpireOffers(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Entry, error)
}
