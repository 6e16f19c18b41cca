package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/directory/internal/clock"
	"github.com/smallbiznis/directory/internal/config"
	obsmetrics "github.com/smallbiznis/directory/internal/observability/metrics"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "directory",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}
	err = s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "directory",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "directory_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "directory",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "directory_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunJobWrapsHardErrors(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}

	boom := errors.New("boom")
	err := s.runJob(context.Background(), "failing_job", 1, time.Second, func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if err.Error() != "failing_job: boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestIsJobEnabled(t *testing.T) {
	s := &Scheduler{}
	if !s.isJobEnabled(JobSaturationExport) {
		t.Fatal("empty list should enable every job")
	}
	s.cfg.EnabledJobs = []string{"Payment_Reminders"}
	if !s.isJobEnabled(JobPaymentReminders) {
		t.Fatal("job names match case-insensitively")
	}
	if s.isJobEnabled(JobExpiredPayments) {
		t.Fatal("unlisted job must be disabled")
	}
}

func TestProvideConfigParsesJobList(t *testing.T) {
	got := ProvideConfig(config.Config{Scheduler: config.SchedulerConfig{
		Enabled: true,
		Jobs:    " payment_reminders, ,expired_payments ",
	}})
	if len(got.EnabledJobs) != 2 || got.EnabledJobs[0] != JobPaymentReminders || got.EnabledJobs[1] != JobExpiredPayments {
		t.Fatalf("unexpected job list %v", got.EnabledJobs)
	}
	defaults := DefaultConfig()
	if got.RunInterval != defaults.RunInterval || got.BatchSize != defaults.BatchSize || got.LockTTL != defaults.LockTTL {
		t.Fatalf("defaults not applied: %+v", got)
	}
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	dispatcher := &countingDispatcher{}
	s := &Scheduler{
		log:        zap.NewNop(),
		genID:      node,
		clock:      clock.NewFakeClock(time.Now()),
		dispatcher: dispatcher,
		cfg: Config{
			RunInterval: 5 * time.Millisecond,
			BatchSize:   10,
			JobTimeout:  time.Second,
			EnabledJobs: []string{JobNotificationDispatch},
		},
	}
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunForever(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for dispatcher.Calls() < 2 {
		select {
		case <-deadline:
			t.Fatal("scheduler never ticked")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunForever did not return after cancel")
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
