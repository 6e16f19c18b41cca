package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directory/internal/clock"
	notificationdomain "github.com/smallbiznis/directory/internal/notification/domain"
	"github.com/smallbiznis/directory/internal/observability/metrics"
	"github.com/smallbiznis/directory/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotifierParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    notificationdomain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

// Notifier records notifications in the outbox. Delivery happens later in
// the dispatch job.
type Notifier struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    notificationdomain.Repository
	metrics *metrics.Metrics
}

func NewNotifier(p NotifierParams) notificationdomain.Notifier {
	return &Notifier{
		db:      p.DB,
		log:     p.Log.Named("notification.notifier"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (n *Notifier) Notify(ctx context.Context, req notificationdomain.Notification) error {
	switch req.Kind {
	case notificationdomain.KindPaymentReminder, notificationdomain.KindPaymentOverdue,
		notificationdomain.KindPlanDowngraded, notificationdomain.KindSlotAvailable:
	default:
		return notificationdomain.ErrInvalidKind
	}

	channel := req.Channel
	recipient := strings.TrimSpace(req.Recipient)
	if channel == "" {
		channel = notificationdomain.ChannelEmail
	}
	switch channel {
	case notificationdomain.ChannelEmail, notificationdomain.ChannelSMS:
		if recipient == "" {
			channel = notificationdomain.ChannelLog
		}
	case notificationdomain.ChannelLog:
	default:
		return notificationdomain.ErrInvalidChannel
	}

	payload := datatypes.JSONMap{}
	for k, v := range req.Payload {
		payload[k] = v
	}
	cid := correlation.InjectTrace(ctx, payload)

	msg := &notificationdomain.Message{
		ID:            n.genID.Generate(),
		CorrelationID: cid,
		Kind:          req.Kind,
		BusinessID:    req.BusinessID,
		Channel:       channel,
		Recipient:     recipient,
		Payload:       payload,
		Status:        notificationdomain.StatusPending,
		CreatedAt:     n.clock.Now(),
	}
	if key := strings.TrimSpace(req.DedupeKey); key != "" {
		msg.DedupeKey = &key
	}

	inserted, err := n.repo.Insert(ctx, n.db, msg)
	if err != nil {
		return fmt.Errorf("queue notification: %w", err)
	}
	if !inserted {
		n.log.Debug("duplicate notification skipped",
			zap.String("kind", string(req.Kind)),
			zap.String("dedupe_key", req.DedupeKey),
		)
		return nil
	}

	n.metrics.RecordNotificationQueued(ctx, string(req.Kind))
	n.log.Info("notification queued",
		zap.String("kind", string(req.Kind)),
		zap.String("business_id", req.BusinessID.String()),
		zap.String("channel", string(channel)),
		zap.String("correlation_id", cid),
	)
	return nil
}
