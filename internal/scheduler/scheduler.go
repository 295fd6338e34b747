// Package scheduler runs the periodic background jobs: outbound notification
// delivery and subscription expiry.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/internal/clock"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/caseline/internal/observability/metrics"
	"github.com/smallbiznis/caseline/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/caseline/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

const lockPrefix = "caseline:scheduler:"

type Params struct {
	fx.In

	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	NotificationSvc notificationdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Locker          *ratelimit.Locker            `optional:"true"`
	Metrics         *obsmetrics.SchedulerMetrics `optional:"true"`
	Config          Config                       `optional:"true"`
}

type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	genID           *snowflake.Node
	clock           clock.Clock
	notificationSvc notificationdomain.Service
	subscriptionSvc subscriptiondomain.Service
	locker          *ratelimit.Locker
	metrics         *obsmetrics.SchedulerMetrics
}

type job struct {
	name string
	run  func(context.Context) error
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.NotificationSvc == nil || p.SubscriptionSvc == nil {
		return nil, ErrInvalidConfig
	}
	m := p.Metrics
	if m == nil {
		m = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		genID:           p.GenID,
		clock:           p.Clock,
		notificationSvc: p.NotificationSvc,
		subscriptionSvc: p.SubscriptionSvc,
		locker:          p.Locker,
		metrics:         m,
	}, nil
}

// runJob executes fn under a soft timeout. Deadline errors are logged and
// counted but not returned; a job whose lock is held elsewhere is skipped.
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
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	s.metrics.IncJobRun(name)

	err := s.locker.WithLock(ctx, lockPrefix+name, timeout, fn)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if errors.Is(err, ratelimit.ErrLockHeld) {
		s.metrics.IncJobSkipped(name, obsmetrics.SchedulerSkipReasonLockHeld)
		log.Debug("job skipped, lock held elsewhere")
		return nil
	}
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobDeliverNotifications, s.DeliverNotificationsJob},
		{JobExpireSubscriptions, s.ExpireSubscriptionsJob},
	}
}

// RunOnce runs every enabled job once. Failures do not stop later jobs.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j.name, s.cfg.BatchSize, s.cfg.JobTimeout, j.run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
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
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}
