package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	obsmetrics "github.com/smallbiznis/directory/internal/observability/metrics"
	"go.uber.org/zap"
)

const jobLockPrefix = "directory:scheduler:lock:"

func jobLockKey(job string) string {
	return jobLockPrefix + job
}

// withJobLock runs fn while holding the job's Redis lease so only one
// replica sweeps at a time. The lease is renewed every half TTL; if it is
// lost fn's context is cancelled and the error wraps ErrJobLeaseLost.
// Without a locker the job runs unguarded, which is what a single-node
// deployment wants.
func (s *Scheduler) withJobLock(ctx context.Context, job string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}

	key := jobLockKey(job)
	token, acquired, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire job lock: %w", err)
	}
	if !acquired {
		obsmetrics.Scheduler().IncBatchDeferred(job, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.logger(ctx).Debug("scheduler.job.deferred",
			zap.String("job", job),
			zap.String("reason", obsmetrics.SchedulerBatchDeferredReasonLockHeld),
		)
		return nil
	}

	jobCtx, cancel := context.WithCancelCause(ctx)
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		s.renewJobLock(jobCtx, cancel, job, key, token)
	}()

	defer func() {
		cancel(nil)
		<-renewed
		// The job context is done by now; release on one that is not.
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger(ctx).Warn("scheduler.lock.release_failed", zap.String("job", job), zap.Error(err))
		}
	}()
	err = fn(jobCtx)
	if errors.Is(context.Cause(jobCtx), obsmetrics.ErrJobLeaseLost) {
		return fmt.Errorf("%w: %w", obsmetrics.ErrJobLeaseLost, err)
	}
	return err
}

func (s *Scheduler) renewJobLock(ctx context.Context, cancel context.CancelCauseFunc, job, key, token string) {
	ticker := time.NewTicker(s.cfg.LockTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		held, err := s.locker.Extend(ctx, key, token, s.cfg.LockTTL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Keep going; the lease is still valid until its TTL runs out.
			s.logger(ctx).Warn("scheduler.lock.extend_failed", zap.String("job", job), zap.Error(err))
			continue
		}
		if !held {
			s.logger(ctx).Warn("scheduler.lock.lost", zap.String("job", job))
			cancel(obsmetrics.ErrJobLeaseLost)
			return
		}
	}
}
