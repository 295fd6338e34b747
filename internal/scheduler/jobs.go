package scheduler

import (
	"context"

	"go.uber.org/zap"
)

// DeliverNotificationsJob drains one batch of the notification outbox.
func (s *Scheduler) DeliverNotificationsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobDeliverNotifications, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	// Deliver reports partial progress alongside result write errors.
	result, err := s.notificationSvc.Deliver(ctx, s.cfg.BatchSize)
	run.AddProcessed(result.Sent)
	s.metrics.AddBatchProcessed(JobDeliverNotifications, "notifications", result.Claimed)
	if result.Claimed > 0 || result.Abandoned > 0 {
		s.logger(ctx).Info("scheduler.notifications.delivered",
			zap.Int("claimed", result.Claimed),
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
			zap.Int("retried", result.Retried),
			zap.Int("abandoned", result.Abandoned),
		)
	}
	if err != nil {
		s.logJobError(ctx, run, "scheduler.notifications.deliver_failed", err)
		return err
	}
	return nil
}

// ExpireSubscriptionsJob deactivates subscriptions whose end date has passed.
func (s *Scheduler) ExpireSubscriptionsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobExpireSubscriptions, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	count, err := s.subscriptionSvc.ExpireDue(ctx, s.clock.Now(), s.cfg.BatchSize)
	run.AddProcessed(count)
	s.metrics.AddBatchProcessed(JobExpireSubscriptions, "subscriptions", count)
	if err != nil {
		s.logJobError(ctx, run, "scheduler.subscriptions.expire_failed", err, zap.Int("expired", count))
		return err
	}
	return nil
}
