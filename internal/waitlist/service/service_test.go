package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/directory/internal/clock"
	"github.com/smallbiznis/directory/internal/config"
	listingdomain "github.com/smallbiznis/directory/internal/listing/domain"
	listingrepo "github.com/smallbiznis/directory/internal/listing/repository"
	notificationdomain "github.com/smallbiznis/directory/internal/notification/domain"
	notificationmock "github.com/smallbiznis/directory/internal/notification/domain/mock"
	"github.com/smallbiznis/directory/internal/testutil"
	waitlistdomain "github.com/smallbiznis/directory/internal/waitlist/domain"
	"github.com/smallbiznis/directory/internal/waitlist/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, db *gorm.DB, clk clock.Clock, notifier notificationdomain.Notifier) *Service {
	t.Helper()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return New(Params{
		DB:          db,
		Log:         zaptest.NewLogger(t),
		GenID:       node,
		Clock:       clk,
		Cfg:         config.NewStaticDirectoryConfig(config.DefaultDirectoryConfig()),
		Repo:        repository.Provide(),
		ListingRepo: listingrepo.Provide(),
		Notifier:    notifier,
	}).(*Service)
}

func TestJoinAssignsPositionsAndRejectsDuplicates(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newTestService(t, db, clock.NewFakeClock(time.Now()), nil)
	ctx := context.Background()

	first, err := svc.Join(ctx, waitlistdomain.JoinRequest{BusinessID: "101", CategoryID: "Restaurantes", Plan: "sponsor", Zone: "Centro"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Position)
	assert.Equal(t, 30, first.EstimatedWaitDays)

	second, err := svc.Join(ctx, waitlistdomain.JoinRequest{BusinessID: "102", CategoryID: "restaurantes", Plan: "sponsor", Zone: "centro"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Position)
	assert.Equal(t, 60, second.EstimatedWaitDays)

	otherZone, err := svc.Join(ctx, waitlistdomain.JoinRequest{BusinessID: "103", CategoryID: "restaurantes", Plan: "sponsor", Zone: "norte"})
	require.NoError(t, err)
	assert.Equal(t, 1, otherZone.Position)

	_, err = svc.Join(ctx, waitlistdomain.JoinRequest{BusinessID: "101", CategoryID: "restaurantes", Plan: "sponsor", Zone: "centro"})
	assert.ErrorIs(t, err, waitlistdomain.ErrAlreadyWaitlisted)
}

func TestJoinValidation(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newTestService(t, db, clock.NewFakeClock(time.Now()), nil)
	ctx := context.Background()

	_, err := svc.Join(ctx, waitlistdomain.JoinRequest{BusinessID: "abc", CategoryID: "gimnasios", Plan: "sponsor"})
	assert.ErrorIs(t, err, waitlistdomain.ErrInvalidBusiness)

	_, err = svc.Join(ctx, waitlistdomain.JoinRequest{BusinessID: "1", CategoryID: " ", Plan: "sponsor"})
	assert.ErrorIs(t, err, waitlistdomain.ErrInvalidCategory)

	_, err = svc.Join(ctx, waitlistdomain.JoinRequest{BusinessID: "1", CategoryID: "gimnasios", Plan: "free"})
	assert.ErrorIs(t, err, waitlistdomain.ErrInvalidPlan)
}

func TestNotifyNextOffersOldestEntry(t *testing.T) {
	db := testutil.NewDB(t)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)

	ctrl := gomock.NewController(t)
	notifier := notificationmock.NewMockNotifier(ctrl)
	svc := newTestService(t, db, clk, notifier)
	ctx := context.Background()

	require.NoError(t, db.Create(&listingdomain.Listing{
		ID: 201, Name: "Gym Titán", Category: "gimnasios", Plan: listingdomain.PlanFree,
		BusinessStatus: listingdomain.StatusPublished, IsActive: true, OwnerEmail: "titan@example.com",
	}).Error)

	_, err := svc.Join(ctx, waitlistdomain.JoinRequest{BusinessID: "201", CategoryID: "gimnasios", Plan: "sponsor"})
	require.NoError(t, err)
	_, err = svc.Join(ctx, waitlistdomain.JoinRequest{BusinessID: "202", CategoryID: "gimnasios", Plan: "sponsor"})
	require.NoError(t, err)

	notifier.EXPECT().
		Notify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n notificationdomain.Notification) error {
			assert.Equal(t, notificationdomain.KindSlotAvailable, n.Kind)
			assert.Equal(t, snowflake.ID(201), n.BusinessID)
			assert.Equal(t, "titan@example.com", n.Recipient)
			assert.Equal(t, "Gym Titán", n.Payload["business_name"])
			return nil
		})

	entry, err := svc.NotifyNext(ctx, waitlistdomain.Key{Category: "gimnasios", Plan: "sponsor"})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, snowflake.ID(201), entry.BusinessID)
	assert.Equal(t, now.Add(48*time.Hour), *entry.ExpiresAt)

	clk.Advance(49 * time.Hour)
	expired, err := svc.ExpireOffers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	none, err := svc.NotifyNext(ctx, waitlistdomain.Key{Category: "veterinarias", Plan: "sponsor"})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestListPaginatesByCursor(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newTestService(t, db, clock.NewFakeClock(time.Now()), nil)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		_, err := svc.Join(ctx, waitlistdomain.JoinRequest{BusinessID: id, CategoryID: "escuelas", Plan: "featured"})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, waitlistdomain.ListRequest{CategoryID: "escuelas", PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.True(t, page.PageInfo.HasMore)
	require.NotEmpty(t, page.PageInfo.NextPageToken)

	next, err := svc.List(ctx, waitlistdomain.ListRequest{CategoryID: "escuelas", PageSize: 2, PageToken: page.PageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, next.Entries, 1)
	assert.False(t, next.PageInfo.HasMore)
	assert.Equal(t, 3, next.Entries[0].Position)

	_, err = svc.List(ctx, waitlistdomain.ListRequest{PageToken: "%%%"})
	assert.ErrorIs(t, err, waitlistdomain.ErrInvalidPageToken)
}
