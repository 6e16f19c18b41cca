package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "lease_lost",
			err:  fmt.Errorf("saturation_export: %w: %w", ErrJobLeaseLost, context.Canceled),
			want: SchedulerJobReasonLeaseLost,
		},
		{
			name: "deadlock",
			err:  fmt.Errorf("downgrade: %w", &pgconn.PgError{Code: "40P01"}),
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "sqlite_unique_violation",
			err:  errors.New("UNIQUE constraint failed: waitlist_entries.business_id"),
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "directory",
		Environment: "test",
	})

	metrics.AddBatchProcessed("expired_payments", "listings", 3)
	metrics.AddBatchProcessed("expired_payments", "listings", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("expired_payments", "listings"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestSchedulerMetricsReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newSchedulerMetrics(registry, Config{ServiceName: "directory", Environment: "test"})
	second := newSchedulerMetrics(registry, Config{ServiceName: "directory", Environment: "test"})

	first.IncJobRun("payment_reminders")
	second.IncJobRun("payment_reminders")

	got := testutil.ToFloat64(first.jobRuns.WithLabelValues("payment_reminders"))
	if got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}
