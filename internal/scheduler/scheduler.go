package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directory/internal/clock"
	"github.com/smallbiznis/directory/internal/cloudmetrics"
	"github.com/smallbiznis/directory/internal/config"
	listingdomain "github.com/smallbiznis/directory/internal/listing/domain"
	notificationdomain "github.com/smallbiznis/directory/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/directory/internal/observability/metrics"
	"github.com/smallbiznis/directory/internal/ratelimit"
	scarcitydomain "github.com/smallbiznis/directory/internal/scarcity/domain"
	waitlistdomain "github.com/smallbiznis/directory/internal/waitlist/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Directory   *config.DirectoryConfigHolder
	ListingRepo listingdomain.Repository
	Notifier    notificationdomain.Notifier
	Dispatcher  notificationdomain.Dispatcher
	WaitlistSvc waitlistdomain.Service
	ScarcitySvc scarcitydomain.Service

	Exporter *cloudmetrics.Exporter `optional:"true"`
	Locker   *ratelimit.Locker      `optional:"true"`
	Config   Config                 `optional:"true"`
}

type jobLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	directory   *config.DirectoryConfigHolder
	listingRepo listingdomain.Repository
	notifier    notificationdomain.Notifier
	dispatcher  notificationdomain.Dispatcher
	waitlistSvc waitlistdomain.Service
	scarcitySvc scarcitydomain.Service
	exporter    *cloudmetrics.Exporter
	locker      jobLocker

	exportMu   sync.Mutex
	lastExport time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Directory == nil ||
		p.ListingRepo == nil || p.Notifier == nil || p.Dispatcher == nil || p.WaitlistSvc == nil || p.ScarcitySvc == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		clock:       p.Clock,
		directory:   p.Directory,
		listingRepo: p.ListingRepo,
		notifier:    p.Notifier,
		dispatcher:  p.Dispatcher,
		waitlistSvc: p.WaitlistSvc,
		scarcitySvc: p.ScarcitySvc,
		exporter:    p.Exporter,
	}
	if p.Locker != nil {
		s.locker = p.Locker
	}
	return s, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(zap.String("job", name))
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run != nil && run.errors == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// A deadline is a soft failure: the next tick resumes from the same state.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

type job struct {
	Name string
	Run  func(context.Context) error
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobPaymentReminders, s.PaymentRemindersJob},
		{JobExpiredPayments, s.ExpiredPaymentsJob},
		{JobWaitlistOfferExpiry, s.WaitlistOfferExpiryJob},
		{JobNotificationDispatch, s.NotificationDispatchJob},
		{JobSaturationExport, s.SaturationExportJob},
	}
}

// RunOnce runs every enabled job once, in order. Notifications queued by the
// lifecycle jobs are dispatched in the same pass.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.Name) {
			continue
		}
		run := j.Run
		name := j.Name
		err = errors.Join(err, s.runJob(parent, name, s.cfg.BatchSize, s.cfg.JobTimeout, func(ctx context.Context) error {
			return s.withJobLock(ctx, name, run)
		}))
	}
	return err
}

// RunJob runs a single job by name, ignoring the enabled list.
func (s *Scheduler) RunJob(parent context.Context, name string) error {
	for _, j := range s.jobs() {
		if !strings.EqualFold(j.Name, name) {
			continue
		}
		run := j.Run
		return s.runJob(parent, j.Name, s.cfg.BatchSize, s.cfg.JobTimeout, func(ctx context.Context) error {
			return s.withJobLock(ctx, j.Name, run)
		})
	}
	return fmt.Errorf("%w: unknown job %q", ErrInvalidConfig, name)
}

// JobNames lists the jobs in run order.
func (s *Scheduler) JobNames() []string {
	jobs := s.jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name)
	}
	return names
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
