package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	applicationdomain "github.com/smallbiznis/directory/internal/application/domain"
	applicationrepo "github.com/smallbiznis/directory/internal/application/repository"
	"github.com/smallbiznis/directory/internal/clock"
	"github.com/smallbiznis/directory/internal/config"
	inboxdomain "github.com/smallbiznis/directory/internal/inbox/domain"
	listingdomain "github.com/smallbiznis/directory/internal/listing/domain"
	listingrepo "github.com/smallbiznis/directory/internal/listing/repository"
	notificationdomain "github.com/smallbiznis/directory/internal/notification/domain"
	notificationmock "github.com/smallbiznis/directory/internal/notification/domain/mock"
	"github.com/smallbiznis/directory/internal/observability/metrics"
	"github.com/smallbiznis/directory/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db    *gorm.DB
	clock *clock.FakeClock
	node  *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	return &fixture{db: testutil.NewDB(t), clock: clock.NewFakeClock(baseTime), node: node}
}

func (f *fixture) service(t *testing.T, notifier notificationdomain.Notifier, opts ...func(*Params)) *Service {
	t.Helper()
	p := Params{
		DB:              f.db,
		Log:             zaptest.NewLogger(t),
		Clock:           f.clock,
		Cfg:             config.NewStaticDirectoryConfig(config.DefaultDirectoryConfig()),
		ApplicationRepo: applicationrepo.Provide(),
		ListingRepo:     listingrepo.Provide(),
		Notifier:        notifier,
		Metrics:         metrics.NewNoop(),
	}
	for _, opt := range opts {
		opt(&p)
	}
	return New(p).(*Service)
}

func (f *fixture) application(t *testing.T, name string, status applicationdomain.Status, createdAt time.Time) *applicationdomain.Application {
	t.Helper()
	app := &applicationdomain.Application{
		ID:           f.node.Generate(),
		BusinessName: name,
		OwnerEmail:   "owner@example.com",
		Plan:         "featured",
		Status:       status,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	require.NoError(t, f.db.Create(app).Error)
	return app
}

func (f *fixture) listing(t *testing.T, mutate func(*listingdomain.Listing)) *listingdomain.Listing {
	t.Helper()
	l := &listingdomain.Listing{
		ID:             f.node.Generate(),
		Name:           "Tacos El Güero",
		Category:       "taquerias",
		Plan:           listingdomain.PlanFree,
		IsActive:       true,
		BusinessStatus: listingdomain.StatusPublished,
		OwnerEmail:     "guero@example.com",
		CreatedAt:      baseTime.Add(-72 * time.Hour),
		UpdatedAt:      baseTime.Add(-72 * time.Hour),
	}
	if mutate != nil {
		mutate(l)
	}
	require.NoError(t, f.db.Create(l).Error)
	return l
}

func expiresIn(d time.Duration) func(*listingdomain.Listing) {
	return func(l *listingdomain.Listing) {
		exp := baseTime.Add(d)
		l.PlanExpiresAt = &exp
	}
}

func withPlan(plan listingdomain.Plan, more ...func(*listingdomain.Listing)) func(*listingdomain.Listing) {
	return func(l *listingdomain.Listing) {
		l.Plan = plan
		for _, m := range more {
			m(l)
		}
	}
}

func reload(t *testing.T, db *gorm.DB, id snowflake.ID) *listingdomain.Listing {
	t.Helper()
	var l listingdomain.Listing
	require.NoError(t, db.First(&l, "id = ?", id).Error)
	return &l
}

func TestBuildInboxOrdersByScoreAndKeepsSourceOrder(t *testing.T) {
	f := newFixture(t)
	app1 := f.application(t, "Panadería Sol", applicationdomain.StatusPending, baseTime.Add(-2*time.Hour))
	app2 := f.application(t, "", applicationdomain.StatusSolicitud, baseTime.Add(-time.Hour))
	f.application(t, "Aprobada", applicationdomain.StatusApproved, baseTime.Add(-time.Hour))

	review := f.listing(t, func(l *listingdomain.Listing) {
		l.BusinessStatus = listingdomain.StatusInReview
		l.Category = "cafeterias"
	})
	overdue := f.listing(t, withPlan(listingdomain.PlanSponsor, expiresIn(-5*24*time.Hour)))
	expiring := f.listing(t, withPlan(listingdomain.PlanFeatured, expiresIn(3*24*time.Hour)))
	f.listing(t, withPlan(listingdomain.PlanFeatured, expiresIn(30*24*time.Hour)))
	f.listing(t, expiresIn(-24*time.Hour))

	inbox, err := f.service(t, nil).BuildInbox(context.Background())
	require.NoError(t, err)
	require.False(t, inbox.Degraded())
	require.Len(t, inbox.Items, 5)

	ids := make([]string, 0, len(inbox.Items))
	for _, item := range inbox.Items {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{
		"payment-" + overdue.ID.String(),
		review.ID.String(),
		"expiration-" + expiring.ID.String(),
		app1.ID.String(),
		app2.ID.String(),
	}, ids)

	for i := 1; i < len(inbox.Items); i++ {
		assert.LessOrEqual(t, inbox.Items[i-1].Score, inbox.Items[i].Score)
	}

	payment := inbox.Items[0]
	assert.Equal(t, inboxdomain.KindPayment, payment.Kind)
	assert.Equal(t, inboxdomain.PriorityCritical, payment.Priority)
	assert.Equal(t, 5, payment.Metadata["daysOverdue"])
	assert.Equal(t, 299, payment.Metadata["amount"])
	assert.Equal(t, []inboxdomain.Action{inboxdomain.ActionRemind, inboxdomain.ActionSuspend, inboxdomain.ActionExtend}, payment.Actions)

	exp := inbox.Items[2]
	assert.Equal(t, inboxdomain.KindExpiration, exp.Kind)
	assert.Equal(t, inboxdomain.PriorityWarning, exp.Priority)
	assert.Equal(t, 3, exp.Metadata["daysUntilExpiration"])

	assert.Equal(t, "Sin nombre", inbox.Items[4].BusinessName)
	assert.Equal(t, "cafeterias", inbox.Items[1].Metadata["category"])
	assert.Equal(t, "owner@example.com", inbox.Items[3].Metadata["email"])
}

func TestBuildInboxFeaturedOverdueAmount(t *testing.T) {
	f := newFixture(t)
	f.listing(t, withPlan(listingdomain.PlanFeatured, expiresIn(-36*time.Hour)))

	inbox, err := f.service(t, nil).BuildInbox(context.Background())
	require.NoError(t, err)
	require.Len(t, inbox.Items, 1)
	assert.Equal(t, 99, inbox.Items[0].Metadata["amount"])
	assert.Equal(t, 2, inbox.Items[0].Metadata["daysOverdue"])
}

func TestBuildInboxEmpty(t *testing.T) {
	f := newFixture(t)
	inbox, err := f.service(t, nil).BuildInbox(context.Background())
	require.NoError(t, err)
	assert.Empty(t, inbox.Items)
	assert.NotNil(t, inbox.Items)
	assert.Equal(t, baseTime, inbox.GeneratedAt)
}

type failingApplications struct {
	applicationdomain.Repository
}

func (failingApplications) ListByStatus(context.Context, *gorm.DB, []applicationdomain.Status, int) ([]*applicationdomain.Application, error) {
	return nil, errors.New("connection reset")
}

func TestBuildInboxPartialResult(t *testing.T) {
	f := newFixture(t)
	f.application(t, "Panadería Sol", applicationdomain.StatusPending, baseTime)
	review := f.listing(t, func(l *listingdomain.Listing) { l.BusinessStatus = listingdomain.StatusInReview })

	failing := func(p *Params) { p.ApplicationRepo = failingApplications{applicationrepo.Provide()} }

	inbox, err := f.service(t, nil, failing).BuildInbox(context.Background())
	require.NoError(t, err)
	assert.True(t, inbox.Degraded())
	assert.Equal(t, []inboxdomain.Source{inboxdomain.SourceApplications}, inbox.DegradedSources)
	require.Len(t, inbox.Items, 1)
	assert.Equal(t, review.ID.String(), inbox.Items[0].ID)

	failFast := func(p *Params) { p.Policy = inboxdomain.PolicyFailFast }
	_, err = f.service(t, nil, failing, failFast).BuildInbox(context.Background())
	assert.Error(t, err)
}

func TestApplyActionApplicationTransitions(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil)
	ctx := context.Background()

	app := f.application(t, "Panadería Sol", applicationdomain.StatusPending, baseTime)
	require.NoError(t, svc.ApplyAction(ctx, inboxdomain.ActionRequest{
		ItemID: app.ID.String(), Action: "request-info", Kind: "application",
	}))

	var got applicationdomain.Application
	require.NoError(t, f.db.First(&got, "id = ?", app.ID).Error)
	assert.Equal(t, applicationdomain.StatusNeedsInfo, got.Status)
	require.NotNil(t, got.InfoRequestedAt)

	err := svc.ApplyAction(ctx, inboxdomain.ActionRequest{ItemID: app.ID.String(), Action: "request-info", Kind: "application"})
	assert.ErrorIs(t, err, inboxdomain.ErrInvalidTransition)

	require.NoError(t, svc.ApplyAction(ctx, inboxdomain.ActionRequest{
		ItemID: app.ID.String(), Action: "approve", Kind: "application",
	}))
	require.NoError(t, f.db.First(&got, "id = ?", app.ID).Error)
	assert.Equal(t, applicationdomain.StatusApproved, got.Status)
	require.NotNil(t, got.ApprovedAt)

	err = svc.ApplyAction(ctx, inboxdomain.ActionRequest{ItemID: app.ID.String(), Action: "reject", Kind: "application"})
	assert.ErrorIs(t, err, inboxdomain.ErrInvalidTransition)
}

func TestApplyActionRejectsInvalidCommandsWithoutMutation(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil)
	ctx := context.Background()
	l := f.listing(t, withPlan(listingdomain.PlanSponsor, expiresIn(-24*time.Hour)))

	cases := []struct {
		name string
		req  inboxdomain.ActionRequest
		want error
	}{
		{"unknown action", inboxdomain.ActionRequest{BusinessID: l.ID.String(), Action: "delete", Kind: "payment"}, inboxdomain.ErrInvalidAction},
		{"unknown kind", inboxdomain.ActionRequest{BusinessID: l.ID.String(), Action: "extend", Kind: "invoice"}, inboxdomain.ErrInvalidKind},
		{"approve on listing", inboxdomain.ActionRequest{BusinessID: l.ID.String(), Action: "approve", Kind: "payment"}, inboxdomain.ErrInvalidKind},
		{"extend on application", inboxdomain.ActionRequest{ItemID: l.ID.String(), Action: "extend", Kind: "application"}, inboxdomain.ErrInvalidKind},
		{"bad id", inboxdomain.ActionRequest{BusinessID: "payment-x", Action: "extend", Kind: "payment"}, inboxdomain.ErrInvalidID},
		{"missing listing", inboxdomain.ActionRequest{BusinessID: "42", Action: "extend", Kind: "payment"}, inboxdomain.ErrNotFound},
		{"publish published", inboxdomain.ActionRequest{BusinessID: l.ID.String(), Action: "publish", Kind: "review"}, inboxdomain.ErrInvalidTransition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.ApplyAction(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	after := reload(t, f.db, l.ID)
	assert.Equal(t, listingdomain.StatusPublished, after.BusinessStatus)
	assert.True(t, after.IsActive)
	require.NotNil(t, after.PlanExpiresAt)
	assert.True(t, after.PlanExpiresAt.Equal(baseTime.Add(-24*time.Hour)))
	assert.Nil(t, after.ExtendedAt)
}

func TestApplyActionSuspendThenExtendRevives(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil)
	ctx := context.Background()
	l := f.listing(t, withPlan(listingdomain.PlanFeatured, expiresIn(-3*24*time.Hour)))

	require.NoError(t, svc.ApplyAction(ctx, inboxdomain.ActionRequest{BusinessID: l.ID.String(), Action: "suspend", Kind: "payment"}))
	got := reload(t, f.db, l.ID)
	assert.Equal(t, listingdomain.StatusSuspended, got.BusinessStatus)
	assert.False(t, got.IsActive)
	assert.Equal(t, listingdomain.DisabledPaymentOverdue, got.DisabledReason)
	require.NotNil(t, got.SuspendedAt)

	require.NoError(t, svc.ApplyAction(ctx, inboxdomain.ActionRequest{BusinessID: l.ID.String(), Action: "extend", Kind: "payment"}))
	got = reload(t, f.db, l.ID)
	assert.Equal(t, listingdomain.StatusPublished, got.BusinessStatus)
	assert.True(t, got.IsActive)
	assert.Empty(t, got.DisabledReason)
	assert.Equal(t, listingdomain.PaymentActive, got.PaymentStatus)
	require.NotNil(t, got.PlanExpiresAt)
	assert.True(t, got.PlanExpiresAt.Equal(baseTime.Add(27*24*time.Hour)))
}

func TestApplyActionFreePlanCannotBeExtended(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, nil)
	err := f.service(t, nil).ApplyAction(context.Background(), inboxdomain.ActionRequest{
		BusinessID: l.ID.String(), Action: "extend", Kind: "expiration",
	})
	assert.ErrorIs(t, err, inboxdomain.ErrInvalidTransition)
}

func TestApplyActionPublishAndRejectReviews(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil)
	ctx := context.Background()
	inReview := func(l *listingdomain.Listing) { l.BusinessStatus = listingdomain.StatusInReview }
	toPublish := f.listing(t, inReview)
	toReject := f.listing(t, inReview)

	require.NoError(t, svc.ApplyAction(ctx, inboxdomain.ActionRequest{BusinessID: toPublish.ID.String(), Action: "publish", Kind: "review"}))
	require.NoError(t, svc.ApplyAction(ctx, inboxdomain.ActionRequest{BusinessID: toReject.ID.String(), Action: "reject", Kind: "review"}))

	published := reload(t, f.db, toPublish.ID)
	assert.Equal(t, listingdomain.StatusPublished, published.BusinessStatus)
	require.NotNil(t, published.PublishedAt)

	rejected := reload(t, f.db, toReject.ID)
	assert.Equal(t, listingdomain.StatusRejected, rejected.BusinessStatus)
	assert.Equal(t, "rejected", rejected.ApplicationStatus)

	inbox, err := svc.BuildInbox(ctx)
	require.NoError(t, err)
	assert.Empty(t, inbox.Items)
}

func TestApplyActionConcurrentExtendsAccumulate(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil)
	l := f.listing(t, withPlan(listingdomain.PlanSponsor, expiresIn(2*24*time.Hour)))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.ApplyAction(context.Background(), inboxdomain.ActionRequest{
				BusinessID: l.ID.String(), Action: "extend", Kind: "expiration",
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	got := reload(t, f.db, l.ID)
	require.NotNil(t, got.PlanExpiresAt)
	want := baseTime.Add(2 * 24 * time.Hour).AddDate(0, 0, 60)
	assert.True(t, got.PlanExpiresAt.Equal(want), "got %s want %s", got.PlanExpiresAt, want)
}

func TestApplyActionRemindQueuesNotification(t *testing.T) {
	f := newFixture(t)
	ctrl := gomock.NewController(t)
	notifier := notificationmock.NewMockNotifier(ctrl)
	l := f.listing(t, withPlan(listingdomain.PlanSponsor, expiresIn(3*24*time.Hour)))

	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, n notificationdomain.Notification) error {
			assert.Equal(t, notificationdomain.KindPaymentReminder, n.Kind)
			assert.Equal(t, l.ID, n.BusinessID)
			assert.Equal(t, "guero@example.com", n.Recipient)
			assert.Equal(t, 3, n.Payload["days_until_expiration"])
			return errors.New("outbox unavailable")
		})

	err := f.service(t, notifier).ApplyAction(context.Background(), inboxdomain.ActionRequest{
		BusinessID: l.ID.String(), Action: "remind", Kind: "expiration", Actor: "admin",
	})
	require.NoError(t, err)

	got := reload(t, f.db, l.ID)
	assert.Nil(t, got.ExtendedAt)
	assert.Equal(t, listingdomain.StatusPublished, got.BusinessStatus)
}
