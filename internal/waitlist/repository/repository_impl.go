package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	waitlistdomain "github.com/smallbiznis/directory/internal/waitlist/domain"
	"github.com/smallbiznis/directory/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() waitlistdomain.Repository {
	return &repo{}
}

func store(db *gorm.DB) repository.Repository[waitlistdomain.Entry] {
	return repository.ProvideStore[waitlistdomain.Entry](db)
}

func keyFilters(key waitlistdomain.Key, status waitlistdomain.Status) []repository.Filter {
	filters := []repository.Filter{
		repository.Where("category", repository.OpEq, key.Category),
		repository.Where("plan", repository.OpEq, key.Plan),
		repository.Where("status", repository.OpEq, string(status)),
	}
	if key.Zone != "" {
		filters = append(filters, repository.Where("zone", repository.OpEq, key.Zone))
	}
	if key.Specialty != "" {
		filters = append(filters, repository.Where("specialty", repository.OpEq, key.Specialty))
	}
	return filters
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *waitlistdomain.Entry) error {
	return store(db).Create(ctx, entry)
}

func (r *repo) CountWaiting(ctx context.Context, db *gorm.DB, key waitlistdomain.Key) (int64, error) {
	return store(db).Count(ctx, keyFilters(key, waitlistdomain.StatusWaiting)...)
}

func (r *repo) NextWaiting(ctx context.Context, db *gorm.DB, key waitlistdomain.Key) (*waitlistdomain.Entry, error) {
	items, err := store(db).Find(ctx, repository.Query{
		Filters: keyFilters(key, waitlistdomain.StatusWaiting),
		OrderBy: "id",
		Limit:   1,
	})
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

func (r *repo) MarkNotified(ctx context.Context, db *gorm.DB, id snowflake.ID, notifiedAt, expiresAt time.Time) error {
	return store(db).UpdateFields(ctx, id, map[string]any{
		"status":      string(waitlistdomain.StatusNotified),
		"notified_at": notifiedAt,
		"expires_at":  expiresAt,
	})
}

func (r *repo) ExpireOffers(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&waitlistdomain.Entry{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", waitlistdomain.StatusNotified, now).
		Update("status", waitlistdomain.StatusExpired)
	return result.RowsAffected, result.Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter waitlistdomain.ListFilter) ([]*waitlistdomain.Entry, error) {
	filters := []repository.Filter{}
	if filter.Category != "" {
		filters = append(filters, repository.Where("category", repository.OpEq, filter.Category))
	}
	if filter.Plan != "" {
		filters = append(filters, repository.Where("plan", repository.OpEq, filter.Plan))
	}
	if filter.Status != "" {
		filters = append(filters, repository.Where("status", repository.OpEq, string(filter.Status)))
	}
	if filter.AfterID != 0 {
		filters = append(filters, repository.Where("id", repository.OpGt, filter.AfterID))
	}
	return store(db).Find(ctx, repository.Query{
		Filters: filters,
		OrderBy: "id",
		Limit:   filter.Limit,
	})
}
