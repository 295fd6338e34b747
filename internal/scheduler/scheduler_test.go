package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/caseline/internal/clock"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/caseline/internal/observability/metrics"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/caseline/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type notificationStub struct {
	notificationdomain.Service
	calls   int
	batch   int
	result  notificationdomain.DeliverResult
	err     error
	isAdmin bool
}

func (n *notificationStub) Deliver(ctx context.Context, batch int) (notificationdomain.DeliverResult, error) {
	n.calls++
	n.batch = batch
	if p, ok := principal.FromContext(ctx); ok {
		n.isAdmin = p.IsSuperuser
	}
	return n.result, n.err
}

type subscriptionStub struct {
	subscriptiondomain.Service
	calls int
	now   time.Time
	limit int
	count int
	err   error
}

func (s *subscriptionStub) ExpireDue(_ context.Context, now time.Time, limit int) (int, error) {
	s.calls++
	s.now = now
	s.limit = limit
	return s.count, s.err
}

type fixture struct {
	sched    *Scheduler
	clock    *clock.FakeClock
	notify   *notificationStub
	subs     *subscriptionStub
	registry *prometheus.Registry
}

func newFixture(t *testing.T, cfg Config, locker *ratelimit.Locker) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	f := &fixture{
		clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)),
		notify:   &notificationStub{result: notificationdomain.DeliverResult{Claimed: 3, Sent: 2, Retried: 1}},
		subs:     &subscriptionStub{count: 4},
		registry: registry,
	}
	f.sched, err = New(Params{
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           f.clock,
		NotificationSvc: f.notify,
		SubscriptionSvc: f.subs,
		Locker:          locker,
		Metrics: obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{
			ServiceName: "caseline",
			Environment: "test",
		}),
		Config: cfg,
	})
	require.NoError(t, err)
	return f
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceRunsAllJobsByDefault(t *testing.T) {
	f := newFixture(t, Config{BatchSize: 25}, nil)

	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Equal(t, 1, f.notify.calls)
	assert.Equal(t, 25, f.notify.batch)
	assert.True(t, f.notify.isAdmin)
	assert.Equal(t, 1, f.subs.calls)
	assert.Equal(t, 25, f.subs.limit)
	assert.Equal(t, f.clock.Now(), f.subs.now)

	labels := map[string]string{"service": "caseline", "env": "test", "job": JobDeliverNotifications, "resource": "notifications"}
	assert.Equal(t, float64(3), getCounterValue(t, f.registry, "caseline_scheduler_batch_processed_total", labels))
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{" Expire_Subscriptions "}}, nil)

	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Zero(t, f.notify.calls)
	assert.Equal(t, 1, f.subs.calls)
	assert.Equal(t, DefaultConfig().BatchSize, f.subs.limit)
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	boom := errors.New("smtp down")
	f.notify.err = boom

	err := f.sched.RunOnce(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), JobDeliverNotifications+": smtp down")
	assert.Equal(t, 1, f.subs.calls)

	labels := map[string]string{"service": "caseline", "env": "test", "job": JobDeliverNotifications, "reason": obsmetrics.SchedulerJobReasonUnknown}
	assert.Equal(t, float64(1), getCounterValue(t, f.registry, "caseline_scheduler_job_errors_total", labels))

	// Rows delivered before the error still count.
	batch := map[string]string{"service": "caseline", "env": "test", "job": JobDeliverNotifications, "resource": "notifications"}
	assert.Equal(t, float64(3), getCounterValue(t, f.registry, "caseline_scheduler_batch_processed_total", batch))
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	err := f.sched.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{"service": "caseline", "env": "test", "job": "timeout_job"}
	assert.Equal(t, float64(1), getCounterValue(t, f.registry, "caseline_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "caseline",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, f.registry, "caseline_scheduler_job_errors_total", errorLabels))
}

func TestRunJobSkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, Config{EnabledJobs: []string{JobDeliverNotifications}}, ratelimit.NewLocker(client))
	require.NoError(t, mr.Set(lockPrefix+JobDeliverNotifications, "other-worker"))

	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Zero(t, f.notify.calls)

	labels := map[string]string{"service": "caseline", "env": "test", "job": JobDeliverNotifications, "reason": obsmetrics.SchedulerSkipReasonLockHeld}
	assert.Equal(t, float64(1), getCounterValue(t, f.registry, "caseline_scheduler_job_skipped_total", labels))

	mr.Del(lockPrefix + JobDeliverNotifications)
	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, 1, f.notify.calls)
	assert.False(t, mr.Exists(lockPrefix+JobDeliverNotifications))
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
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
