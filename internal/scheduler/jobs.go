package scheduler

import (
	"context"
	"errors"
	"sort"

	obsmetrics "github.com/smallbiznis/directory/internal/observability/metrics"
	scarcitydomain "github.com/smallbiznis/directory/internal/scarcity/domain"
	"go.uber.org/zap"
)

// WaitlistOfferExpiryJob returns lapsed slot offers to the expired state.
func (s *Scheduler) WaitlistOfferExpiryJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobWaitlistOfferExpiry, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	n, err := s.waitlistSvc.ExpireOffers(ctx)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.waitlist.expire_failed", JobWaitlistOfferExpiry, 0, err)
		return err
	}
	run.AddProcessed(int(n))
	obsmetrics.Scheduler().AddBatchProcessed(JobWaitlistOfferExpiry, "waitlist_entries", int(n))
	return nil
}

func (s *Scheduler) NotificationDispatchJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobNotificationDispatch, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	res, err := s.dispatcher.DispatchPending(ctx)
	run.AddProcessed(res.Sent + res.Failed)
	obsmetrics.Scheduler().AddBatchProcessed(JobNotificationDispatch, "notifications", res.Sent)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.notification.dispatch_failed", JobNotificationDispatch, 0, err)
		return err
	}
	if res.Failed > 0 || res.Retried > 0 {
		s.logger(ctx).Warn("scheduler.notification.undelivered",
			zap.Int("failed", res.Failed),
			zap.Int("retried", res.Retried),
		)
	}
	return nil
}

// SaturationExportJob publishes per-category slot snapshots to the external
// Prometheus. It runs at most once per ExportEvery and is a no-op when no
// exporter is configured.
func (s *Scheduler) SaturationExportJob(ctx context.Context) error {
	if s.exporter == nil {
		return nil
	}
	now := s.clock.Now()
	s.exportMu.Lock()
	due := s.lastExport.IsZero() || now.Sub(s.lastExport) >= s.cfg.ExportEvery
	s.exportMu.Unlock()
	if !due {
		return nil
	}

	ctx, run, owner := s.ensureJobRun(ctx, JobSaturationExport, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	categories := make([]string, 0)
	for category := range s.directory.Scarcity().Categories {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var jobErr error
	snapshots := make([]scarcitydomain.SlotSnapshot, 0, len(categories))
	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}
		snap, err := s.scarcitySvc.GetScarcityMetrics(ctx, category)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.saturation.snapshot_failed", JobSaturationExport, 0, err,
				zap.String("category", category))
			continue
		}
		if snap != nil {
			snapshots = append(snapshots, *snap)
		}
	}

	exported, err := s.exporter.Export(ctx, snapshots)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.saturation.export_failed", JobSaturationExport, 0, err)
		return errors.Join(jobErr, err)
	}
	run.AddProcessed(exported)
	obsmetrics.Scheduler().AddBatchProcessed(JobSaturationExport, "categories", exported)

	s.exportMu.Lock()
	s.lastExport = now
	s.exportMu.Unlock()
	return jobErr
}
