package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	applicationdomain "github.com/smallbiznis/directory/internal/application/domain"
	inboxdomain "github.com/smallbiznis/directory/internal/inbox/domain"
	listingdomain "github.com/smallbiznis/directory/internal/listing/domain"
	notificationdomain "github.com/smallbiznis/directory/internal/notification/domain"
	"github.com/smallbiznis/directory/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ApplyAction validates an operator command and applies it atomically. The
// target row is locked for the duration of the transition so concurrent
// commands on one record are serialized.
func (s *Service) ApplyAction(ctx context.Context, req inboxdomain.ActionRequest) (err error) {
	ctx, span := tracer.Start(ctx, "inbox.apply_action")
	defer span.End()

	action, ok := inboxdomain.ParseAction(strings.TrimSpace(req.Action))
	if !ok {
		s.metrics.RecordInboxAction(ctx, "unknown", req.Kind, "invalid")
		return inboxdomain.ErrInvalidAction
	}
	kind := inboxdomain.Kind(strings.TrimSpace(req.Kind))
	span.SetAttributes(
		attribute.String("inbox.action", string(action)),
		attribute.String("inbox.kind", string(kind)),
	)

	defer func() {
		outcome := "applied"
		if err != nil {
			outcome = "rejected"
			span.RecordError(tracing.SafeError(err))
		}
		s.metrics.RecordInboxAction(ctx, string(action), string(kind), outcome)
	}()

	switch kind {
	case inboxdomain.KindApplication, inboxdomain.KindReview, inboxdomain.KindPayment, inboxdomain.KindExpiration:
	default:
		return inboxdomain.ErrInvalidKind
	}

	switch action {
	case inboxdomain.ActionApprove, inboxdomain.ActionRequestInfo:
		if kind != inboxdomain.KindApplication {
			return inboxdomain.ErrInvalidKind
		}
		return s.applyApplication(ctx, action, req)
	case inboxdomain.ActionReject:
		if kind == inboxdomain.KindApplication {
			return s.applyApplication(ctx, action, req)
		}
		return s.applyListing(ctx, action, req)
	default:
		if kind == inboxdomain.KindApplication {
			return inboxdomain.ErrInvalidKind
		}
		return s.applyListing(ctx, action, req)
	}
}

func (s *Service) applyApplication(ctx context.Context, action inboxdomain.Action, req inboxdomain.ActionRequest) error {
	id, err := parseID(req.ItemID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	var from, to applicationdomain.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		app, err := s.applicationRepo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if app == nil {
			return inboxdomain.ErrNotFound
		}
		from = app.Status
		to, err = inboxdomain.NextApplicationStatus(action, app.Status)
		if err != nil {
			return err
		}

		fields := map[string]any{
			"status":     to,
			"updated_at": now,
		}
		switch to {
		case applicationdomain.StatusApproved:
			fields["approved_at"] = now
		case applicationdomain.StatusRejected:
			fields["rejected_at"] = now
		case applicationdomain.StatusNeedsInfo:
			fields["info_requested_at"] = now
		}
		return s.applicationRepo.UpdateFields(ctx, tx, id, fields)
	})
	if err != nil {
		return err
	}

	s.log.Info("inbox action applied",
		zap.String("action", string(action)),
		zap.String("application_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", req.Actor),
	)
	return nil
}

func (s *Service) applyListing(ctx context.Context, action inboxdomain.Action, req inboxdomain.ActionRequest) error {
	id, err := parseID(req.BusinessID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	var (
		from    listingdomain.BusinessStatus
		to      listingdomain.BusinessStatus
		updated listingdomain.Listing
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := s.listingRepo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if l == nil {
			return inboxdomain.ErrNotFound
		}
		from = l.BusinessStatus
		to, err = inboxdomain.NextListingStatus(action, l)
		if err != nil {
			return err
		}
		updated = *l

		fields := s.listingFields(action, l, to, now)
		if len(fields) == 0 {
			return nil
		}
		if expires, ok := fields["plan_expires_at"].(time.Time); ok {
			updated.PlanExpiresAt = &expires
		}
		return s.listingRepo.UpdateFields(ctx, tx, id, fields)
	})
	if err != nil {
		return err
	}

	s.log.Info("inbox action applied",
		zap.String("action", string(action)),
		zap.String("business_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", req.Actor),
	)

	if action == inboxdomain.ActionRemind {
		s.sendReminder(ctx, &updated, now)
	}
	return nil
}

func (s *Service) listingFields(action inboxdomain.Action, l *listingdomain.Listing, to listingdomain.BusinessStatus, now time.Time) map[string]any {
	switch action {
	case inboxdomain.ActionPublish:
		return map[string]any{
			"business_status": to,
			"is_active":       true,
			"disabled_reason": "",
			"published_at":    now,
			"updated_at":      now,
		}
	case inboxdomain.ActionReject:
		return map[string]any{
			"business_status":    to,
			"application_status": string(applicationdomain.StatusRejected),
			"rejected_at":        now,
			"updated_at":         now,
		}
	case inboxdomain.ActionSuspend:
		return map[string]any{
			"business_status": to,
			"is_active":       false,
			"disabled_reason": listingdomain.DisabledPaymentOverdue,
			"suspended_at":    now,
			"updated_at":      now,
		}
	case inboxdomain.ActionExtend:
		base := now
		if l.PlanExpiresAt != nil {
			base = *l.PlanExpiresAt
		}
		extendDays := s.cfg.Plans().ExtendDays
		if extendDays <= 0 {
			extendDays = 30
		}
		fields := map[string]any{
			"plan_expires_at": base.AddDate(0, 0, extendDays),
			"payment_status":  listingdomain.PaymentActive,
			"extended_at":     now,
			"updated_at":      now,
		}
		if to != l.BusinessStatus {
			fields["business_status"] = to
			fields["is_active"] = true
			fields["disabled_reason"] = ""
		}
		return fields
	default:
		return nil
	}
}

// sendReminder queues a payment reminder. Delivery problems are logged and
// never fail the command.
func (s *Service) sendReminder(ctx context.Context, l *listingdomain.Listing, now time.Time) {
	payload := map[string]any{
		"business_name": l.DisplayName(),
		"plan":          string(l.Plan),
	}
	if l.PlanExpiresAt != nil {
		payload["days_until_expiration"] = listingdomain.DaysBetween(now, *l.PlanExpiresAt)
		payload["expires_at"] = l.PlanExpiresAt.Format("2006-01-02")
	}
	err := s.notifier.Notify(ctx, notificationdomain.Notification{
		Kind:       notificationdomain.KindPaymentReminder,
		BusinessID: l.ID,
		Recipient:  l.OwnerEmail,
		Payload:    payload,
	})
	if err != nil {
		s.log.Warn("failed to queue payment reminder",
			zap.String("business_id", l.ID.String()),
			zap.Error(err),
		)
	}
}

func parseID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, inboxdomain.ErrInvalidID
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, inboxdomain.ErrInvalidID
	}
	return id, nil
}
