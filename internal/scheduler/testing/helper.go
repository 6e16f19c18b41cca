// Package testing moves plan expirations around so lifecycle jobs can be
// exercised without waiting for real days to pass.
package testing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	listingdomain "github.com/smallbiznis/directory/internal/listing/domain"
	"gorm.io/gorm"
)

// TimeAccelerator rewrites plan_expires_at relative to a reference clock.
type TimeAccelerator struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTimeAccelerator(db *gorm.DB, now func() time.Time) *TimeAccelerator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &TimeAccelerator{db: db, now: now}
}

// ExpireIn sets the listing's plan to expire d from now.
func (ta *TimeAccelerator) ExpireIn(ctx context.Context, id snowflake.ID, d time.Duration) error {
	now := ta.now()
	return ta.db.WithContext(ctx).Exec(
		`UPDATE listings
		 SET plan_expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		now.Add(d),
		now,
		id,
	).Error
}

// ExpireDaysAgo backdates the expiration by whole days, which is what the
// overdue and downgrade stages key on.
func (ta *TimeAccelerator) ExpireDaysAgo(ctx context.Context, id snowflake.ID, days int) error {
	return ta.ExpireIn(ctx, id, -time.Duration(days)*24*time.Hour)
}

// ExpireAllPaid moves every active paid plan to expire one minute ago.
func (ta *TimeAccelerator) ExpireAllPaid(ctx context.Context) (int64, error) {
	now := ta.now()
	result := ta.db.WithContext(ctx).Exec(
		`UPDATE listings
		 SET plan_expires_at = ?, updated_at = ?
		 WHERE plan IN (?, ?) AND is_active = ?`,
		now.Add(-time.Minute),
		now,
		listingdomain.PlanFeatured,
		listingdomain.PlanSponsor,
		true,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// PlanInfo shows where a listing sits in its plan lifecycle.
type PlanInfo struct {
	ID              snowflake.ID
	Plan            listingdomain.Plan
	PaymentStatus   string
	PlanExpiresAt   *time.Time
	TimeUntilExpiry time.Duration
	Expired         bool
}

func (ta *TimeAccelerator) GetPlanInfo(ctx context.Context, id snowflake.ID) (*PlanInfo, error) {
	var row struct {
		ID            snowflake.ID
		Plan          listingdomain.Plan
		PaymentStatus string
		PlanExpiresAt *time.Time
	}
	err := ta.db.WithContext(ctx).Raw(
		`SELECT id, plan, payment_status, plan_expires_at
		 FROM listings
		 WHERE id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}

	info := &PlanInfo{
		ID:            row.ID,
		Plan:          row.Plan,
		PaymentStatus: row.PaymentStatus,
		PlanExpiresAt: row.PlanExpiresAt,
	}
	if row.PlanExpiresAt != nil {
		info.TimeUntilExpiry = row.PlanExpiresAt.Sub(ta.now())
		info.Expired = info.TimeUntilExpiry <= 0
	}
	return info, nil
}
