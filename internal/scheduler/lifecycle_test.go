package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/directory/internal/clock"
	"github.com/smallbiznis/directory/internal/config"
	listingdomain "github.com/smallbiznis/directory/internal/listing/domain"
	listingrepo "github.com/smallbiznis/directory/internal/listing/repository"
	notificationdomain "github.com/smallbiznis/directory/internal/notification/domain"
	notificationrepo "github.com/smallbiznis/directory/internal/notification/repository"
	notificationservice "github.com/smallbiznis/directory/internal/notification/service"
	"github.com/smallbiznis/directory/internal/ratelimit"
	scarcityservice "github.com/smallbiznis/directory/internal/scarcity/service"
	schedtesting "github.com/smallbiznis/directory/internal/scheduler/testing"
	"github.com/smallbiznis/directory/internal/testutil"
	waitlistdomain "github.com/smallbiznis/directory/internal/waitlist/domain"
	waitlistrepo "github.com/smallbiznis/directory/internal/waitlist/repository"
	waitlistservice "github.com/smallbiznis/directory/internal/waitlist/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var lifecycleBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type countingDispatcher struct {
	mu    sync.Mutex
	calls int
}

func (d *countingDispatcher) DispatchPending(context.Context) (notificationdomain.DispatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return notificationdomain.DispatchResult{}, nil
}

func (d *countingDispatcher) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type lifecycleFixture struct {
	db         *gorm.DB
	clock      *clock.FakeClock
	sched      *Scheduler
	waitlist   waitlistdomain.Service
	dispatcher *countingDispatcher
	accel      *schedtesting.TimeAccelerator
}

func newLifecycleFixture(t *testing.T, locker *ratelimit.Locker) *lifecycleFixture {
	t.Helper()
	db := testutil.NewDB(t)
	clk := clock.NewFakeClock(lifecycleBase)
	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	directory := config.NewStaticDirectoryConfig(config.DefaultDirectoryConfig())

	notifier := notificationservice.NewNotifier(notificationservice.NotifierParams{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  notificationrepo.Provide(),
	})
	listings := listingrepo.Provide()
	waitlists := waitlistrepo.Provide()
	waitlist := waitlistservice.New(waitlistservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Cfg:         directory,
		Repo:        waitlists,
		ListingRepo: listings,
		Notifier:    notifier,
	})
	scarcity := scarcityservice.New(scarcityservice.Params{
		DB:           db,
		Log:          log,
		Cfg:          directory,
		ListingRepo:  listings,
		WaitlistRepo: waitlists,
	})
	dispatcher := &countingDispatcher{}

	sched, err := New(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Directory:   directory,
		ListingRepo: listings,
		Notifier:    notifier,
		Dispatcher:  dispatcher,
		WaitlistSvc: waitlist,
		ScarcitySvc: scarcity,
		Locker:      locker,
		Config:      Config{BatchSize: 2},
	})
	require.NoError(t, err)

	return &lifecycleFixture{
		db:         db,
		clock:      clk,
		sched:      sched,
		waitlist:   waitlist,
		dispatcher: dispatcher,
		accel:      schedtesting.NewTimeAccelerator(db, clk.Now),
	}
}

func (f *lifecycleFixture) paidListing(t *testing.T, id snowflake.ID, plan listingdomain.Plan, expiresIn time.Duration) {
	t.Helper()
	now := f.clock.Now()
	require.NoError(t, f.db.Create(&listingdomain.Listing{
		ID:             id,
		Name:           "Taquería El Güero",
		Category:       "restaurantes",
		Zone:           "centro",
		Plan:           plan,
		IsActive:       true,
		BusinessStatus: listingdomain.StatusPublished,
		PaymentStatus:  listingdomain.PaymentActive,
		OwnerEmail:     "owner@example.com",
		CreatedAt:      now,
		UpdatedAt:      now,
	}).Error)
	require.NoError(t, f.accel.ExpireIn(context.Background(), id, expiresIn))
}

func (f *lifecycleFixture) outboxCount(t *testing.T, kind notificationdomain.Kind) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&notificationdomain.Message{}).Where("kind = ?", kind).Count(&n).Error)
	return n
}

func (f *lifecycleFixture) listing(t *testing.T, id snowflake.ID) *listingdomain.Listing {
	t.Helper()
	var l listingdomain.Listing
	require.NoError(t, f.db.First(&l, "id = ?", id).Error)
	return &l
}

func TestPlanLifecycleOverTwentyDays(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	ctx := context.Background()

	// The extra hour keeps each daily tick strictly inside a day bucket.
	f.paidListing(t, 501, listingdomain.PlanSponsor, 7*24*time.Hour+time.Hour)
	// Free listing of the queued business, used for the slot offer recipient.
	require.NoError(t, f.db.Create(&listingdomain.Listing{
		ID: 777, Name: "Fonda Doña Mary", Category: "restaurantes", Zone: "centro",
		Plan: listingdomain.PlanFree, IsActive: true, BusinessStatus: listingdomain.StatusPublished,
		OwnerEmail: "mary@example.com", CreatedAt: lifecycleBase, UpdatedAt: lifecycleBase,
	}).Error)
	_, err := f.waitlist.Join(ctx, waitlistdomain.JoinRequest{
		BusinessID: "777", CategoryID: "restaurantes", Plan: "sponsor", Zone: "centro",
	})
	require.NoError(t, err)

	reminders := map[int]int64{}
	for day := 0; day <= 20; day++ {
		require.NoError(t, f.sched.RunOnce(ctx), "day %d", day)
		reminders[day] = f.outboxCount(t, notificationdomain.KindPaymentReminder)

		switch day {
		case 7:
			l := f.listing(t, 501)
			assert.Equal(t, listingdomain.PaymentActive, l.PaymentStatus, "not yet expired on day 7")
		case 8:
			l := f.listing(t, 501)
			assert.Equal(t, listingdomain.PaymentOverdue, l.PaymentStatus)
			assert.Equal(t, listingdomain.PlanSponsor, l.Plan)
		case 15:
			l := f.listing(t, 501)
			assert.Equal(t, listingdomain.PlanSponsor, l.Plan, "last day of grace keeps the plan")
		case 16:
			l := f.listing(t, 501)
			assert.Equal(t, listingdomain.PlanFree, l.Plan)
			var entry waitlistdomain.Entry
			require.NoError(t, f.db.First(&entry, "business_id = ?", 777).Error)
			assert.Equal(t, waitlistdomain.StatusNotified, entry.Status, "freed slot offered to the queue")
		}
		f.clock.AdvanceDays(1)
	}

	// 7, 3 and 1 days before expiration.
	assert.Equal(t, int64(1), reminders[0])
	assert.Equal(t, int64(1), reminders[3])
	assert.Equal(t, int64(2), reminders[4])
	assert.Equal(t, int64(3), reminders[6])
	assert.Equal(t, int64(3), reminders[20])

	// Expiration day plus seven grace days.
	assert.Equal(t, int64(8), f.outboxCount(t, notificationdomain.KindPaymentOverdue))
	assert.Equal(t, int64(1), f.outboxCount(t, notificationdomain.KindPlanDowngraded))
	assert.Equal(t, int64(1), f.outboxCount(t, notificationdomain.KindSlotAvailable))

	l := f.listing(t, 501)
	assert.Equal(t, listingdomain.PlanFree, l.Plan)
	assert.Equal(t, string(listingdomain.PlanSponsor), l.PreviousPlan)
	assert.Equal(t, listingdomain.PaymentCanceled, l.PaymentStatus)
	assert.Equal(t, listingdomain.DisabledPaymentGraceExpired, l.DisabledReason)
	require.NotNil(t, l.DowngradedAt)
	assert.Equal(t, lifecycleBase.AddDate(0, 0, 16), l.DowngradedAt.UTC())

	// The 48 hour hold lapsed without a conversion.
	var entry waitlistdomain.Entry
	require.NoError(t, f.db.First(&entry, "business_id = ?", 777).Error)
	assert.Equal(t, waitlistdomain.StatusExpired, entry.Status)

	assert.Equal(t, 21, f.dispatcher.Calls())
}

func TestExpiredPaymentsSkipsListingExtendedMeanwhile(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	ctx := context.Background()

	f.paidListing(t, 601, listingdomain.PlanFeatured, -10*24*time.Hour)
	page, err := listingrepo.Provide().ListLifecycle(ctx, f.db, listingdomain.LifecycleFilter{
		ExpiresBefore: f.clock.Now(), Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, page, 1)

	// An operator extends the plan after the job read its page.
	require.NoError(t, f.accel.ExpireIn(ctx, 601, 20*24*time.Hour))

	done, err := f.sched.handleDowngrade(ctx, nil, page[0], f.clock.Now())
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, listingdomain.PlanFeatured, f.listing(t, 601).Plan)
	assert.Zero(t, f.outboxCount(t, notificationdomain.KindPlanDowngraded))
}

func TestExpiredPaymentsPagesThroughBatches(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	ctx := context.Background()

	// Batch size is 2; five listings need three pages.
	for i := 0; i < 5; i++ {
		f.paidListing(t, snowflake.ID(700+i), listingdomain.PlanFeatured, -9*24*time.Hour)
	}
	require.NoError(t, f.sched.RunJob(ctx, JobExpiredPayments))

	var downgraded int64
	require.NoError(t, f.db.Model(&listingdomain.Listing{}).Where("plan = ?", listingdomain.PlanFree).Count(&downgraded).Error)
	assert.Equal(t, int64(5), downgraded)

	info, err := f.accel.GetPlanInfo(ctx, 702)
	require.NoError(t, err)
	assert.True(t, info.Expired)
	assert.Equal(t, listingdomain.PaymentCanceled, info.PaymentStatus)
}

func TestJobLockDefersWhenHeldElsewhere(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newLifecycleFixture(t, ratelimit.NewLocker(client))
	ctx := context.Background()
	f.paidListing(t, 801, listingdomain.PlanSponsor, 3*24*time.Hour+time.Hour)

	require.NoError(t, mr.Set(jobLockKey(JobPaymentReminders), "another-replica"))
	require.NoError(t, f.sched.RunJob(ctx, JobPaymentReminders))
	assert.Zero(t, f.outboxCount(t, notificationdomain.KindPaymentReminder))

	mr.Del(jobLockKey(JobPaymentReminders))
	require.NoError(t, f.sched.RunJob(ctx, JobPaymentReminders))
	assert.Equal(t, int64(1), f.outboxCount(t, notificationdomain.KindPaymentReminder))
	assert.False(t, mr.Exists(jobLockKey(JobPaymentReminders)), "lock released after the run")
}

func TestSaturationExportWithoutExporterIsNoop(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	assert.NoError(t, f.sched.RunJob(context.Background(), JobSaturationExport))
}

func TestRunJobRejectsUnknownJob(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	err := f.sched.RunJob(context.Background(), "rebuild_everything")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
