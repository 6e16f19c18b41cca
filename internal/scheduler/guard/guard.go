package guard

import (
	"errors"
	"time"

	listingdomain "github.com/smallbiznis/directory/internal/listing/domain"
)

var (
	ErrNotPaid           = errors.New("listing_not_paid")
	ErrInactive          = errors.New("listing_inactive")
	ErrMissingExpiration = errors.New("listing_missing_expiration")
)

// Stage is where an expired paid plan sits in the overdue timeline.
type Stage string

const (
	StageNone         Stage = "none"
	StageExpiredToday Stage = "expired_today"
	StageGrace        Stage = "grace"
	StageDowngrade    Stage = "downgrade"
)

// EnsureLifecycleCandidate rejects listings the payment jobs must not touch.
// The jobs re-run it under the row lock since a listing may have been
// extended or downgraded after it was paged in.
func EnsureLifecycleCandidate(l *listingdomain.Listing) error {
	if l == nil || !l.Plan.IsPaid() {
		return ErrNotPaid
	}
	if !l.IsActive {
		return ErrInactive
	}
	if l.PlanExpiresAt == nil {
		return ErrMissingExpiration
	}
	return nil
}

// ReminderDue reports whether daysUntil is one of the configured reminder
// offsets.
func ReminderDue(daysUntil int, reminderDays []int) bool {
	if daysUntil <= 0 {
		return false
	}
	for _, d := range reminderDays {
		if d == daysUntil {
			return true
		}
	}
	return false
}

// ClassifyOverdue maps whole days past expiration to a stage. Day zero is
// the day the plan lapsed; the grace period counts from day one.
func ClassifyOverdue(daysOverdue, graceDays int) Stage {
	switch {
	case daysOverdue < 0:
		return StageNone
	case daysOverdue == 0:
		return StageExpiredToday
	case daysOverdue <= graceDays:
		return StageGrace
	default:
		return StageDowngrade
	}
}

// DaysOverdue returns whole days elapsed since expiresAt, negative before it.
func DaysOverdue(now, expiresAt time.Time) int {
	return listingdomain.DaysBetween(expiresAt, now)
}
