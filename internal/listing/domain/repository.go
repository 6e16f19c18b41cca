package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// SlotFilter narrows the population counted against a capacity ceiling.
// Empty Zone or Specialty means no narrowing.
type SlotFilter struct {
	Category  string
	Plan      Plan
	Zone      string
	Specialty string
}

// LifecycleFilter pages through active paid listings whose plan expires
// before ExpiresBefore, in id order.
type LifecycleFilter struct {
	ExpiresBefore time.Time
	AfterID       snowflake.ID
	Limit         int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, listing *Listing) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Listing, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Listing, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error

	ListByStatus(ctx context.Context, db *gorm.DB, status BusinessStatus, limit int) ([]*Listing, error)
	ListLifecycle(ctx context.Context, db *gorm.DB, filter LifecycleFilter) ([]*Listing, error)
	ListPaidExpiringBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*Listing, error)

	CountInPlan(ctx context.Context, db *gorm.DB, filter SlotFilter) (int64, error)
	CountByPlan(ctx context.Context, db *gorm.DB, category string) (map[Plan]int64, error)
}
