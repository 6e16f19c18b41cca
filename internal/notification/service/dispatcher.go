package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/directory/internal/clock"
	"github.com/smallbiznis/directory/internal/config"
	notificationdomain "github.com/smallbiznis/directory/internal/notification/domain"
	"github.com/smallbiznis/directory/internal/observability/metrics"
	"github.com/smallbiznis/directory/internal/observability/tracing"
	"github.com/smallbiznis/directory/internal/providers/email"
	"github.com/smallbiznis/directory/internal/providers/sms"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultBatchSize   = 50
	defaultMaxAttempts = 5
)

type DispatcherParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	Clock   clock.Clock
	Repo    notificationdomain.Repository
	Email   email.Provider
	SMS     sms.Provider
	Metrics *metrics.Metrics `optional:"true"`
}

// Dispatcher drains the outbox through the configured providers.
type Dispatcher struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        notificationdomain.Repository
	email       email.Provider
	sms         sms.Provider
	metrics     *metrics.Metrics
	batchSize   int
	maxAttempts int
	emailName   string
	smsName     string
}

func NewDispatcher(p DispatcherParams) notificationdomain.Dispatcher {
	batch := p.Cfg.Notify.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	attempts := p.Cfg.Notify.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	return &Dispatcher{
		db:          p.DB,
		log:         p.Log.Named("notification.dispatcher"),
		clock:       p.Clock,
		repo:        p.Repo,
		email:       p.Email,
		sms:         p.SMS,
		metrics:     p.Metrics,
		batchSize:   batch,
		maxAttempts: attempts,
		emailName:   providerName(p.Cfg.Notify.Provider),
		smsName:     providerName(p.Cfg.Notify.SMSProvider),
	}
}

func providerName(name string) string {
	if name == "" {
		return config.ProviderLog
	}
	return name
}

// DispatchPending delivers one batch of pending messages. A failed message is
// retried on later runs until it has used maxAttempts.
func (d *Dispatcher) DispatchPending(ctx context.Context) (notificationdomain.DispatchResult, error) {
	ctx, span := otel.Tracer("directory/notification").Start(ctx, "notification.dispatch")
	defer span.End()

	var result notificationdomain.DispatchResult
	pending, err := d.repo.ListPending(ctx, d.db, d.batchSize)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		return result, fmt.Errorf("list pending notifications: %w", err)
	}

	var errs []error
	for _, msg := range pending {
		provider, sendErr := d.deliver(ctx, msg)
		if sendErr == nil {
			if err := d.repo.MarkSent(ctx, d.db, msg.ID, d.clock.Now()); err != nil {
				errs = append(errs, err)
				continue
			}
			result.Sent++
			d.metrics.RecordNotificationDelivered(ctx, provider, "sent")
			continue
		}

		attempts := msg.Attempts + 1
		status := notificationdomain.StatusPending
		outcome := "retry"
		if attempts >= d.maxAttempts || errors.Is(sendErr, notificationdomain.ErrMissingProvider) {
			status = notificationdomain.StatusFailed
			outcome = "failed"
			result.Failed++
		} else {
			result.Retried++
		}
		d.metrics.RecordNotificationDelivered(ctx, provider, outcome)
		d.log.Warn("notification delivery failed",
			zap.String("id", msg.ID.String()),
			zap.String("kind", string(msg.Kind)),
			zap.Int("attempts", attempts),
			zap.String("outcome", outcome),
			zap.Error(sendErr),
		)
		if err := d.repo.MarkAttempt(ctx, d.db, msg.ID, attempts, truncate(sendErr.Error(), 512), status); err != nil {
			errs = append(errs, err)
		}
	}

	if len(pending) > 0 {
		d.log.Info("notification batch dispatched",
			zap.Int("sent", result.Sent),
			zap.Int("retried", result.Retried),
			zap.Int("failed", result.Failed),
		)
	}
	return result, errors.Join(errs...)
}

func (d *Dispatcher) deliver(ctx context.Context, msg *notificationdomain.Message) (string, error) {
	data := map[string]any(msg.Payload)
	switch msg.Channel {
	case notificationdomain.ChannelEmail:
		if d.email == nil {
			return d.emailName, notificationdomain.ErrMissingProvider
		}
		return d.emailName, d.email.SendTemplate(ctx, []string{msg.Recipient}, string(msg.Kind), data)
	case notificationdomain.ChannelSMS:
		if d.sms == nil {
			return d.smsName, notificationdomain.ErrMissingProvider
		}
		subject, _, err := email.Render(string(msg.Kind), data)
		if err != nil {
			return d.smsName, err
		}
		return d.smsName, d.sms.Send(ctx, msg.Recipient, subject)
	default:
		d.log.Info("notification",
			zap.String("kind", string(msg.Kind)),
			zap.String("business_id", msg.BusinessID.String()),
			zap.String("correlation_id", msg.CorrelationID),
		)
		return config.ProviderLog, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
