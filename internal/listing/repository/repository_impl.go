package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	listingdomain "github.com/smallbiznis/directory/internal/listing/domain"
	"github.com/smallbiznis/directory/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() listingdomain.Repository {
	return &repo{}
}

func store(db *gorm.DB) repository.Repository[listingdomain.Listing] {
	return repository.ProvideStore[listingdomain.Listing](db)
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, listing *listingdomain.Listing) error {
	return store(db).Create(ctx, listing)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*listingdomain.Listing, error) {
	return store(db).GetByID(ctx, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*listingdomain.Listing, error) {
	return store(db).GetByIDForUpdate(ctx, id)
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return store(db).UpdateFields(ctx, id, fields)
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status listingdomain.BusinessStatus, limit int) ([]*listingdomain.Listing, error) {
	return store(db).Find(ctx, repository.Query{
		Filters: []repository.Filter{
			repository.Where("business_status", repository.OpEq, string(status)),
		},
		OrderBy: "created_at",
		Limit:   limit,
	})
}

func (r *repo) ListLifecycle(ctx context.Context, db *gorm.DB, filter listingdomain.LifecycleFilter) ([]*listingdomain.Listing, error) {
	filters := []repository.Filter{
		repository.Where("plan", repository.OpIn, paidPlans()),
		repository.Where("is_active", repository.OpEq, true),
		repository.Where("plan_expires_at", repository.OpNotNull, nil),
		repository.Where("plan_expires_at", repository.OpLt, filter.ExpiresBefore),
	}
	if filter.AfterID > 0 {
		filters = append(filters, repository.Where("id", repository.OpGt, filter.AfterID))
	}
	return store(db).Find(ctx, repository.Query{
		Filters: filters,
		OrderBy: "id",
		Limit:   filter.Limit,
	})
}

func (r *repo) ListPaidExpiringBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*listingdomain.Listing, error) {
	return store(db).Find(ctx, repository.Query{
		Filters: []repository.Filter{
			repository.Where("plan", repository.OpIn, paidPlans()),
			repository.Where("plan_expires_at", repository.OpNotNull, nil),
			repository.Where("plan_expires_at", repository.OpLt, before),
		},
		OrderBy: "plan_expires_at",
		Limit:   limit,
	})
}

func (r *repo) CountInPlan(ctx context.Context, db *gorm.DB, filter listingdomain.SlotFilter) (int64, error) {
	filters := []repository.Filter{
		repository.Where("category", repository.OpEq, filter.Category),
		repository.Where("plan", repository.OpEq, string(filter.Plan)),
		repository.Where("business_status", repository.OpEq, string(listingdomain.StatusPublished)),
		repository.Where("is_active", repository.OpEq, true),
	}
	if filter.Zone != "" {
		filters = append(filters, repository.Where("zone", repository.OpEq, filter.Zone))
	}
	if filter.Specialty != "" {
		filters = append(filters, repository.Where("specialty", repository.OpEq, filter.Specialty))
	}
	return store(db).Count(ctx, filters...)
}

func (r *repo) CountByPlan(ctx context.Context, db *gorm.DB, category string) (map[listingdomain.Plan]int64, error) {
	counts, err := store(db).CountBy(ctx, "plan",
		repository.Where("category", repository.OpEq, category),
		repository.Where("business_status", repository.OpEq, string(listingdomain.StatusPublished)),
	)
	if err != nil {
		return nil, err
	}

	out := map[listingdomain.Plan]int64{
		listingdomain.PlanFree:     0,
		listingdomain.PlanFeatured: 0,
		listingdomain.PlanSponsor:  0,
	}
	for raw, n := range counts {
		plan, ok := listingdomain.ParsePlan(raw)
		if !ok {
			plan = listingdomain.PlanFree
		}
		out[plan] += n
	}
	return out, nil
}

func paidPlans() []string {
	return []string{string(listingdomain.PlanFeatured), string(listingdomain.PlanSponsor)}
}
