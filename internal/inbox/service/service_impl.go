package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/smallbiznis/directory/internal/clock"
	"github.com/smallbiznis/directory/internal/config"
	applicationdomain "github.com/smallbiznis/directory/internal/application/domain"
	inboxdomain "github.com/smallbiznis/directory/internal/inbox/domain"
	listingdomain "github.com/smallbiznis/directory/internal/listing/domain"
	notificationdomain "github.com/smallbiznis/directory/internal/notification/domain"
	"github.com/smallbiznis/directory/internal/observability/metrics"
	"github.com/smallbiznis/directory/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("directory/inbox")

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	Cfg             *config.DirectoryConfigHolder
	ApplicationRepo applicationdomain.Repository
	ListingRepo     listingdomain.Repository
	Notifier        notificationdomain.Notifier
	Metrics         *metrics.Metrics          `optional:"true"`
	Policy          inboxdomain.FailurePolicy `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	clock           clock.Clock
	cfg             *config.DirectoryConfigHolder
	applicationRepo applicationdomain.Repository
	listingRepo     listingdomain.Repository
	notifier        notificationdomain.Notifier
	metrics         *metrics.Metrics
	policy          inboxdomain.FailurePolicy
}

func New(p Params) inboxdomain.Service {
	policy := p.Policy
	if policy == "" {
		policy = inboxdomain.PolicyPartialResult
	}
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("inbox.service"),
		clock:           p.Clock,
		cfg:             p.Cfg,
		applicationRepo: p.ApplicationRepo,
		listingRepo:     p.ListingRepo,
		notifier:        p.Notifier,
		metrics:         p.Metrics,
		policy:          policy,
	}
}

type source struct {
	name  inboxdomain.Source
	fetch func(ctx context.Context) ([]inboxdomain.Item, error)
}

// BuildInbox merges the three sources and orders the result by score. The
// sources are queried concurrently; items of equal score keep source order.
func (s *Service) BuildInbox(ctx context.Context) (*inboxdomain.Inbox, error) {
	ctx, span := tracer.Start(ctx, "inbox.build")
	defer span.End()

	now := s.clock.Now()
	plans := s.cfg.Plans()
	limit := plans.InboxSourceLimit
	if limit <= 0 {
		limit = 20
	}

	sources := []source{
		{name: inboxdomain.SourceApplications, fetch: func(ctx context.Context) ([]inboxdomain.Item, error) {
			return s.applicationItems(ctx, limit)
		}},
		{name: inboxdomain.SourceReviews, fetch: func(ctx context.Context) ([]inboxdomain.Item, error) {
			return s.reviewItems(ctx, limit)
		}},
		{name: inboxdomain.SourcePlans, fetch: func(ctx context.Context) ([]inboxdomain.Item, error) {
			return s.planItems(ctx, now, plans, limit)
		}},
	}

	results := make([][]inboxdomain.Item, len(sources))
	failures := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			items, err := src.fetch(gctx)
			if err != nil {
				failures[i] = err
				if s.policy == inboxdomain.PolicyFailFast {
					return fmt.Errorf("inbox source %s: %w", src.name, err)
				}
				return nil
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(tracing.SafeError(err))
		return nil, err
	}

	inbox := &inboxdomain.Inbox{
		Items:           []inboxdomain.Item{},
		DegradedSources: []inboxdomain.Source{},
		GeneratedAt:     now,
	}
	for i, src := range sources {
		if failures[i] != nil {
			s.log.Error("inbox source failed",
				zap.String("source", string(src.name)),
				zap.Error(failures[i]),
			)
			s.metrics.RecordInboxSourceFailure(ctx, string(src.name))
			inbox.DegradedSources = append(inbox.DegradedSources, src.name)
			continue
		}
		inbox.Items = append(inbox.Items, results[i]...)
	}

	sort.SliceStable(inbox.Items, func(a, b int) bool {
		return inbox.Items[a].Score < inbox.Items[b].Score
	})

	span.SetAttributes(
		attribute.Int("inbox.items", len(inbox.Items)),
		attribute.Int("inbox.degraded_sources", len(inbox.DegradedSources)),
	)
	s.metrics.RecordInboxBuild(ctx, inbox.Degraded())
	return inbox, nil
}

func (s *Service) applicationItems(ctx context.Context, limit int) ([]inboxdomain.Item, error) {
	apps, err := s.applicationRepo.ListByStatus(ctx, s.db, applicationdomain.OpenStatuses, limit)
	if err != nil {
		return nil, err
	}
	items := make([]inboxdomain.Item, 0, len(apps))
	for _, app := range apps {
		items = append(items, inboxdomain.Item{
			ID:           app.ID.String(),
			Kind:         inboxdomain.KindApplication,
			Priority:     inboxdomain.PriorityInfo,
			Score:        inboxdomain.PriorityInfo.Score(),
			BusinessID:   app.ID.String(),
			BusinessName: app.DisplayName(),
			Metadata: map[string]any{
				"plan":      app.Plan,
				"email":     app.OwnerEmail,
				"createdAt": app.CreatedAt,
			},
			Actions: []inboxdomain.Action{inboxdomain.ActionApprove, inboxdomain.ActionReject, inboxdomain.ActionRequestInfo},
		})
	}
	return items, nil
}

func (s *Service) reviewItems(ctx context.Context, limit int) ([]inboxdomain.Item, error) {
	listings, err := s.listingRepo.ListByStatus(ctx, s.db, listingdomain.StatusInReview, limit)
	if err != nil {
		return nil, err
	}
	items := make([]inboxdomain.Item, 0, len(listings))
	for _, l := range listings {
		items = append(items, inboxdomain.Item{
			ID:           l.ID.String(),
			Kind:         inboxdomain.KindReview,
			Priority:     inboxdomain.PriorityWarning,
			Score:        inboxdomain.PriorityWarning.Score(),
			BusinessID:   l.ID.String(),
			BusinessName: l.DisplayName(),
			Metadata: map[string]any{
				"plan":      string(l.Plan),
				"category":  l.Category,
				"createdAt": l.CreatedAt,
			},
			Actions: []inboxdomain.Action{inboxdomain.ActionPublish, inboxdomain.ActionReject},
		})
	}
	return items, nil
}

func (s *Service) planItems(ctx context.Context, now time.Time, plans config.PlanConfig, limit int) ([]inboxdomain.Item, error) {
	window := plans.ExpirationWindowDays
	horizon := now.Add(time.Duration(window+1) * 24 * time.Hour)
	listings, err := s.listingRepo.ListPaidExpiringBefore(ctx, s.db, horizon, limit)
	if err != nil {
		return nil, err
	}

	items := make([]inboxdomain.Item, 0, len(listings))
	for _, l := range listings {
		if l.PlanExpiresAt == nil {
			continue
		}
		days := listingdomain.DaysBetween(now, *l.PlanExpiresAt)
		switch {
		case days < 0:
			items = append(items, inboxdomain.Item{
				ID:           "payment-" + l.ID.String(),
				Kind:         inboxdomain.KindPayment,
				Priority:     inboxdomain.PriorityCritical,
				Score:        inboxdomain.PriorityCritical.Score(),
				BusinessID:   l.ID.String(),
				BusinessName: l.DisplayName(),
				Metadata: map[string]any{
					"plan":        string(l.Plan),
					"daysOverdue": -days,
					"amount":      overdueAmount(plans, l.Plan),
				},
				Actions: []inboxdomain.Action{inboxdomain.ActionRemind, inboxdomain.ActionSuspend, inboxdomain.ActionExtend},
			})
		case days <= window:
			items = append(items, inboxdomain.Item{
				ID:           "expiration-" + l.ID.String(),
				Kind:         inboxdomain.KindExpiration,
				Priority:     inboxdomain.PriorityWarning,
				Score:        inboxdomain.PriorityWarning.Score(),
				BusinessID:   l.ID.String(),
				BusinessName: l.DisplayName(),
				Metadata: map[string]any{
					"plan":                string(l.Plan),
					"daysUntilExpiration": days,
				},
				Actions: []inboxdomain.Action{inboxdomain.ActionRemind, inboxdomain.ActionExtend},
			})
		}
	}
	return items, nil
}

func overdueAmount(plans config.PlanConfig, plan listingdomain.Plan) int {
	if amount, ok := plans.OverdueAmounts[string(plan)]; ok {
		return amount
	}
	if plan == listingdomain.PlanSponsor {
		return 299
	}
	return 99
}
