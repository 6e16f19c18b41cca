package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/smallbiznis/directory/internal/observability/context"
	obslogger "github.com/smallbiznis/directory/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/directory/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tracks one pass of a job. Jobs invoked from inside another job's
// run (RunOnce wrapping a job) share the outer run.
type jobRun struct {
	job         string
	runID       string
	batchSize   int
	startedAt   time.Time
	processed   int
	errors      int
	transitions int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r != nil && count > 0 {
		r.processed += count
	}
}

func (r *jobRun) IncError() {
	if r != nil {
		r.errors++
	}
}

// ensureJobRun returns the run already on ctx, or starts a new one. The
// bool reports whether the caller owns the run and must log its finish.
func (s *Scheduler) ensureJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if run := jobRunFromContext(ctx); run != nil {
		return ctx, run, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithActor(ctx, obscontext.ActorSystem, "scheduler")
	return ctx, run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	log := obslogger.WithContext(ctx, s.log)
	if run := jobRunFromContext(ctx); run != nil {
		log = log.With(zap.String("run_id", run.runID))
	}
	return log
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Debug("scheduler.job.start",
		zap.String("job", run.job),
		zap.Int("batch_size", run.batchSize),
	)
}

// logJobFinish stays at debug for idle passes so a quiet directory does not
// log every tick.
func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processed),
		zap.Int("transition_count", run.transitions),
		zap.Int("error_count", run.errors),
	}
	log := s.logger(ctx)
	switch {
	case run.errors > 0:
		log.Warn("scheduler.job.finish", fields...)
	case run.processed > 0 || run.transitions > 0:
		log.Info("scheduler.job.finish", fields...)
	default:
		log.Debug("scheduler.job.finish", fields...)
	}
}

func (s *Scheduler) logSchedulerError(ctx context.Context, run *jobRun, msg string, job string, businessID snowflake.ID, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	run.IncError()
	s.logger(ctx).Error(msg, append([]zap.Field{
		zap.String("job", job),
		zap.String("business_id", idString(businessID)),
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Error(err),
	}, fields...)...)
}

// logListingTransition records a plan or payment status change made by a
// lifecycle job.
func (s *Scheduler) logListingTransition(ctx context.Context, job string, businessID snowflake.ID, from, to string, fields ...zap.Field) {
	if run := jobRunFromContext(ctx); run != nil {
		run.transitions++
	}
	s.logger(ctx).Info("scheduler.listing.transition", append([]zap.Field{
		zap.String("job", job),
		zap.String("business_id", idString(businessID)),
		zap.String("from", from),
		zap.String("to", to),
	}, fields...)...)
}

func idString(id snowflake.ID) string {
	if id == 0 {
		return ""
	}
	return id.String()
}
