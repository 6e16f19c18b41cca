package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/directory/internal/config"
)

const (
	JobPaymentReminders     = "payment_reminders"
	JobExpiredPayments      = "expired_payments"
	JobWaitlistOfferExpiry  = "waitlist_offer_expiry"
	JobNotificationDispatch = "notification_dispatch"
	JobSaturationExport     = "saturation_export"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	LockTTL     time.Duration
	JobTimeout  time.Duration
	// ExportEvery throttles the saturation export, which is heavier than the
	// lifecycle sweeps.
	ExportEvery time.Duration
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		BatchSize:   100,
		LockTTL:     5 * time.Minute,
		JobTimeout:  30 * time.Second,
		ExportEvery: 5 * time.Minute,
	}
}

// ProvideConfig derives the scheduler config from the process config.
// SCHEDULER_JOBS narrows the set of jobs this replica runs.
func ProvideConfig(cfg config.Config) Config {
	out := Config{
		RunInterval: cfg.Scheduler.TickInterval,
		LockTTL:     cfg.Scheduler.LockTTL,
		ExportEvery: cfg.Export.Interval,
	}
	for _, job := range strings.Split(cfg.Scheduler.Jobs, ",") {
		if job = strings.TrimSpace(job); job != "" {
			out.EnabledJobs = append(out.EnabledJobs, job)
		}
	}
	return out.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.ExportEvery <= 0 {
		c.ExportEvery = defaults.ExportEvery
	}
	return c
}
