package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/directory/pkg/db"
)

const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonLeaseLost            = "lease_lost"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonUnknown              = "unknown"

	SchedulerBatchDeferredReasonLockHeld = "lock_held"
)

// ErrJobLeaseLost marks a job cut short because another replica took over
// its lock.
var ErrJobLeaseLost = errors.New("job_lease_lost")

// SchedulerMetrics are the Prometheus series for the listing lifecycle,
// waitlist and export jobs.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	batchDeferred  *prometheus.CounterVec
	runLoopLag     prometheus.Histogram
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the process-wide scheduler metrics.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig builds the process-wide scheduler metrics on first
// use. Later calls return the same instance whatever cfg says.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	labels := serviceLabels(cfg)
	counter := func(name, help string, vars ...string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_scheduler_" + name, Help: help, ConstLabels: labels,
		}, vars)
		return registerOrExisting(registerer, c).(*prometheus.CounterVec)
	}

	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "directory_scheduler_job_duration_seconds",
		Help:        "Scheduler job duration in seconds.",
		ConstLabels: labels,
		Buckets:     []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"job"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "directory_scheduler_run_loop_lag_seconds",
		Help:        "Delay between a scheduled tick and the pass starting.",
		ConstLabels: labels,
		Buckets:     []float64{0.01, 0.1, 0.5, 1, 5, 10, 30},
	})

	return &SchedulerMetrics{
		jobRuns:        counter("job_runs_total", "Scheduler job runs by name.", "job"),
		jobTimeouts:    counter("job_timeouts_total", "Scheduler jobs stopped by their deadline.", "job"),
		jobErrors:      counter("job_errors_total", "Scheduler job errors by reason.", "job", "reason"),
		batchProcessed: counter("batch_processed_total", "Listings, waitlist entries, notifications and categories handled by jobs.", "job", "resource"),
		batchDeferred:  counter("batch_deferred_total", "Scheduler runs skipped by reason.", "job", "reason"),
		jobDuration:    registerOrExisting(registerer, jobDuration).(*prometheus.HistogramVec),
		runLoopLag:     registerOrExisting(registerer, runLoopLag).(prometheus.Histogram),
	}
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.jobRuns.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m != nil {
		m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
}

// IncJobError counts err under its ClassifySchedulerJobReason bucket.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m != nil && err != nil {
		m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
	}
}

func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m != nil && count > 0 {
		m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
	}
}

func (m *SchedulerMetrics) IncBatchDeferred(job, reason string) {
	if m != nil {
		m.batchDeferred.WithLabelValues(job, reason).Inc()
	}
}

func (m *SchedulerMetrics) ObserveRunLoopLag(d time.Duration) {
	if m != nil {
		m.runLoopLag.Observe(max(d, 0).Seconds())
	}
}

// pgReasons maps postgres SQLSTATEs seen under row-lock contention.
var pgReasons = map[string]string{
	"55P03": SchedulerJobReasonDBLockTimeout,
	"40001": SchedulerJobReasonSerializationFailure,
	"40P01": SchedulerJobReasonSerializationFailure,
}

// ClassifySchedulerJobReason maps job errors to a small fixed label set.
func ClassifySchedulerJobReason(err error) string {
	if err == nil {
		return SchedulerJobReasonUnknown
	}
	// Checked before context errors: a lost lease also cancels the job.
	if errors.Is(err, ErrJobLeaseLost) {
		return SchedulerJobReasonLeaseLost
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SchedulerJobReasonDeadlineExceeded
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if reason, ok := pgReasons[pgErr.Code]; ok {
			return reason
		}
	}
	if db.IsDuplicateKeyErr(err) {
		return SchedulerJobReasonUniqueViolation
	}
	return SchedulerJobReasonUnknown
}
