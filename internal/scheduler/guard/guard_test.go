package guard

import (
	"testing"
	"time"

	listingdomain "github.com/smallbiznis/directory/internal/listing/domain"
	"github.com/stretchr/testify/assert"
)

func TestClassifyOverdue(t *testing.T) {
	cases := []struct {
		days int
		want Stage
	}{
		{-1, StageNone},
		{0, StageExpiredToday},
		{1, StageGrace},
		{7, StageGrace},
		{8, StageDowngrade},
		{40, StageDowngrade},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyOverdue(tc.days, 7), "days=%d", tc.days)
	}
}

func TestReminderDue(t *testing.T) {
	days := []int{7, 3, 1}
	assert.True(t, ReminderDue(7, days))
	assert.True(t, ReminderDue(1, days))
	assert.False(t, ReminderDue(2, days))
	assert.False(t, ReminderDue(0, days))
	assert.False(t, ReminderDue(3, nil))
}

func TestDaysOverdueRoundsDown(t *testing.T) {
	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysOverdue(exp.Add(23*time.Hour), exp))
	assert.Equal(t, 1, DaysOverdue(exp.Add(24*time.Hour), exp))
	assert.Equal(t, -1, DaysOverdue(exp.Add(-time.Hour), exp))
}

func TestEnsureLifecycleCandidate(t *testing.T) {
	exp := time.Now()
	assert.ErrorIs(t, EnsureLifecycleCandidate(nil), ErrNotPaid)
	assert.ErrorIs(t, EnsureLifecycleCandidate(&listingdomain.Listing{Plan: listingdomain.PlanFree, IsActive: true, PlanExpiresAt: &exp}), ErrNotPaid)
	assert.ErrorIs(t, EnsureLifecycleCandidate(&listingdomain.Listing{Plan: listingdomain.PlanSponsor}), ErrInactive)
	assert.ErrorIs(t, EnsureLifecycleCandidate(&listingdomain.Listing{Plan: listingdomain.PlanSponsor, IsActive: true}), ErrMissingExpiration)
	assert.NoError(t, EnsureLifecycleCandidate(&listingdomain.Listing{Plan: listingdomain.PlanFeatured, IsActive: true, PlanExpiresAt: &exp}))
}
