package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	listingdomain "github.com/smallbiznis/directory/internal/listing/domain"
	notificationdomain "github.com/smallbiznis/directory/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/directory/internal/observability/metrics"
	"github.com/smallbiznis/directory/internal/scheduler/guard"
	waitlistdomain "github.com/smallbiznis/directory/internal/waitlist/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dayBucketLayout = "2006-01-02"

// scanLifecycle pages through active paid listings expiring before the
// cutoff. A visit error is logged and counted but does not stop the scan.
func (s *Scheduler) scanLifecycle(
	ctx context.Context,
	job string,
	run *jobRun,
	before time.Time,
	visit func(ctx context.Context, l *listingdomain.Listing) (bool, error),
) error {
	var (
		afterID snowflake.ID
		jobErr  error
	)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}
		page, err := s.listingRepo.ListLifecycle(ctx, s.db, listingdomain.LifecycleFilter{
			ExpiresBefore: before,
			AfterID:       afterID,
			Limit:         s.cfg.BatchSize,
		})
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.listing.fetch_failed", job, 0, err)
			return errors.Join(jobErr, err)
		}

		processed := 0
		for _, listing := range page {
			afterID = listing.ID
			done, err := visit(ctx, listing)
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logSchedulerError(ctx, run, "scheduler.listing.process_failed", job, listing.ID, err)
				continue
			}
			if done {
				processed++
			}
		}
		run.AddProcessed(processed)
		schedMetrics.AddBatchProcessed(job, "listings", processed)

		if len(page) < s.cfg.BatchSize {
			return jobErr
		}
	}
}

// PaymentRemindersJob queues a reminder for listings whose paid plan expires
// in one of the configured day offsets. Reminders are deduplicated per
// listing per day, so extra ticks on the same day are harmless.
func (s *Scheduler) PaymentRemindersJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobPaymentReminders, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	plans := s.directory.Plans()
	horizon := 0
	for _, d := range plans.ReminderDays {
		if d > horizon {
			horizon = d
		}
	}
	if horizon == 0 {
		return nil
	}
	now := s.clock.Now()
	bucket := now.Format(dayBucketLayout)

	return s.scanLifecycle(ctx, JobPaymentReminders, run, now.AddDate(0, 0, horizon+1),
		func(ctx context.Context, l *listingdomain.Listing) (bool, error) {
			if l.PaymentStatus != listingdomain.PaymentActive {
				return false, nil
			}
			days := listingdomain.DaysBetween(now, *l.PlanExpiresAt)
			if !guard.ReminderDue(days, plans.ReminderDays) {
				return false, nil
			}
			err := s.notifier.Notify(ctx, notificationdomain.Notification{
				Kind:       notificationdomain.KindPaymentReminder,
				BusinessID: l.ID,
				Recipient:  l.OwnerEmail,
				Payload: map[string]any{
					"businessName":        l.DisplayName(),
					"plan":                string(l.Plan),
					"daysUntilExpiration": days,
					"expiresAt":           l.PlanExpiresAt.UTC().Format(time.RFC3339),
				},
				DedupeKey: fmt.Sprintf("%s:%s:%s", notificationdomain.KindPaymentReminder, l.ID, bucket),
			})
			if err != nil {
				return false, err
			}
			return true, nil
		})
}

// ExpiredPaymentsJob walks paid plans past their expiration. During the
// grace period the listing is flagged overdue and the owner is reminded
// daily; once grace runs out the listing drops to the free plan and the
// freed slot is offered to the waitlist.
func (s *Scheduler) ExpiredPaymentsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobExpiredPayments, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	now := s.clock.Now()
	grace := s.directory.Plans().GracePeriodDays

	return s.scanLifecycle(ctx, JobExpiredPayments, run, now,
		func(ctx context.Context, l *listingdomain.Listing) (bool, error) {
			days := guard.DaysOverdue(now, *l.PlanExpiresAt)
			switch guard.ClassifyOverdue(days, grace) {
			case guard.StageExpiredToday, guard.StageGrace:
				return true, s.handleOverdue(ctx, l, now, days, grace)
			case guard.StageDowngrade:
				return s.handleDowngrade(ctx, run, l, now)
			default:
				return false, nil
			}
		})
}

func (s *Scheduler) handleOverdue(ctx context.Context, l *listingdomain.Listing, now time.Time, daysOverdue, grace int) error {
	if l.PaymentStatus != listingdomain.PaymentOverdue {
		changed := false
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			locked, err := s.listingRepo.FindByIDForUpdate(ctx, tx, l.ID)
			if err != nil {
				return err
			}
			if guard.EnsureLifecycleCandidate(locked) != nil || !locked.PlanExpiresAt.Equal(*l.PlanExpiresAt) {
				return nil
			}
			if locked.PaymentStatus == listingdomain.PaymentOverdue {
				return nil
			}
			changed = true
			return s.listingRepo.UpdateFields(ctx, tx, l.ID, map[string]any{
				"payment_status": listingdomain.PaymentOverdue,
				"updated_at":     now,
			})
		})
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		s.logListingTransition(ctx, JobExpiredPayments, l.ID, l.PaymentStatus, listingdomain.PaymentOverdue,
			zap.Int("days_overdue", daysOverdue))
	}

	graceLeft := grace - daysOverdue
	if graceLeft < 0 {
		graceLeft = 0
	}
	return s.notifier.Notify(ctx, notificationdomain.Notification{
		Kind:       notificationdomain.KindPaymentOverdue,
		BusinessID: l.ID,
		Recipient:  l.OwnerEmail,
		Payload: map[string]any{
			"businessName":  l.DisplayName(),
			"plan":          string(l.Plan),
			"daysOverdue":   daysOverdue,
			"graceDaysLeft": graceLeft,
		},
		DedupeKey: fmt.Sprintf("%s:%s:%s", notificationdomain.KindPaymentOverdue, l.ID, now.Format(dayBucketLayout)),
	})
}

func (s *Scheduler) handleDowngrade(ctx context.Context, run *jobRun, l *listingdomain.Listing, now time.Time) (bool, error) {
	var previous listingdomain.Plan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.listingRepo.FindByIDForUpdate(ctx, tx, l.ID)
		if err != nil {
			return err
		}
		// Extended or already downgraded by someone else since the page was read.
		if guard.EnsureLifecycleCandidate(locked) != nil || !locked.PlanExpiresAt.Equal(*l.PlanExpiresAt) {
			return nil
		}
		previous = locked.Plan
		return s.listingRepo.UpdateFields(ctx, tx, l.ID, map[string]any{
			"plan":            listingdomain.PlanFree,
			"previous_plan":   string(previous),
			"payment_status":  listingdomain.PaymentCanceled,
			"disabled_reason": listingdomain.DisabledPaymentGraceExpired,
			"downgraded_at":   now,
			"updated_at":      now,
		})
	})
	if err != nil {
		return false, err
	}
	if previous == "" {
		return false, nil
	}
	s.logListingTransition(ctx, JobExpiredPayments, l.ID, string(previous), string(listingdomain.PlanFree),
		zap.String("reason", listingdomain.DisabledPaymentGraceExpired))

	var jobErr error
	if err := s.notifier.Notify(ctx, notificationdomain.Notification{
		Kind:       notificationdomain.KindPlanDowngraded,
		BusinessID: l.ID,
		Recipient:  l.OwnerEmail,
		Payload: map[string]any{
			"businessName": l.DisplayName(),
			"previousPlan": string(previous),
		},
		DedupeKey: fmt.Sprintf("%s:%s:%s", notificationdomain.KindPlanDowngraded, l.ID, l.PlanExpiresAt.UTC().Format(dayBucketLayout)),
	}); err != nil {
		jobErr = errors.Join(jobErr, err)
	}

	entry, err := s.waitlistSvc.NotifyNext(ctx, waitlistdomain.Key{
		Category:  l.Category,
		Plan:      string(previous),
		Zone:      l.Zone,
		Specialty: l.Specialty,
	})
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.waitlist.notify_failed", JobExpiredPayments, l.ID, err)
	} else if entry != nil {
		s.logger(ctx).Info("scheduler.waitlist.offered",
			zap.String("business_id", l.ID.String()),
			zap.String("waitlist_entry_id", entry.ID.String()),
			zap.String("plan", string(previous)),
		)
	}
	return true, jobErr
}
