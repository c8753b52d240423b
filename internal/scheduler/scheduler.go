package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	bookingdomain "github.com/smallbiznis/frostclub/internal/booking/domain"
	"github.com/smallbiznis/frostclub/internal/clock"
	eventdomain "github.com/smallbiznis/frostclub/internal/event/domain"
	obsmetrics "github.com/smallbiznis/frostclub/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/frostclub/internal/order/domain"
	paymentdomain "github.com/smallbiznis/frostclub/internal/payment/domain"
	"github.com/smallbiznis/frostclub/internal/payment/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobSweepAbandoned   = "sweep_abandoned"
	JobReconcilePending = "reconcile_pending"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Reconciler re-runs reconciliation for a checkout session.
type Reconciler interface {
	Verify(ctx context.Context, sessionID string, source string) (*paymentdomain.ReconcileResult, error)
}

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Config    Config `optional:"true"`
	Orders    orderdomain.Service
	Bookings  bookingdomain.Service
	Events    eventdomain.Service
	Reconcile *reconcile.Service
	Metrics   *obsmetrics.SchedulerMetrics `optional:"true"`
	Clock     clock.Clock                  `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	orders    orderdomain.Service
	bookings  bookingdomain.Service
	events    eventdomain.Service
	reconcile Reconciler
	metrics   *obsmetrics.SchedulerMetrics
	cron      *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Orders == nil || p.Bookings == nil || p.Events == nil || p.Reconcile == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	s := &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     clk,
		orders:    p.Orders,
		bookings:  p.Bookings,
		events:    p.Events,
		reconcile: p.Reconcile,
		metrics:   p.Metrics,
	}
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger{log: s.log})))
	return s, nil
}

// Start registers both jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{JobSweepAbandoned, s.cfg.SweepSpec, s.SweepAbandonedJob},
		{JobReconcilePending, s.cfg.ReconcileSpec, s.ReconcilePendingJob},
	}
	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() {
			if err := s.runJob(context.Background(), job.name, job.run); err != nil {
				s.log.Error("scheduler job failed", zap.String("job", job.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", job.name, err)
		}
		s.log.Info("scheduled job", zap.String("job", job.name), zap.String("spec", job.spec))
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce executes every job immediately.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return errors.Join(
		s.runJob(parent, JobSweepAbandoned, s.SweepAbandonedJob),
		s.runJob(parent, JobReconcilePending, s.ReconcilePendingJob),
	)
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) (err error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run := s.ensureJobRun(ctx, name, s.cfg.BatchSize)
	s.logJobStart(ctx, run)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.metrics.ObserveRun(name, time.Since(start), run.processedCount, err)
		s.logJobFinish(ctx, run)

		// deadline is a soft timeout; the next tick picks up the remainder
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			s.logger(ctx).Warn("job timed out",
				zap.String("job", name),
				zap.Duration("timeout", s.cfg.JobTimeout),
				zap.Error(err),
			)
			err = nil
		}
	}()

	if err = fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// SweepAbandonedJob marks stale pending purchases as abandoned.
func (s *Scheduler) SweepAbandonedJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	cutoff := s.clock.Now().Add(-s.cfg.AbandonAfter)

	var jobErr error
	sweeps := []struct {
		target string
		expire func(context.Context, time.Time) (int64, error)
	}{
		{"order", s.orders.ExpirePending},
		{"booking", s.bookings.ExpirePending},
		{"registration", s.events.ExpirePending},
	}
	for _, sweep := range sweeps {
		n, err := sweep.expire(ctx, cutoff)
		if err != nil {
			s.logJobError(ctx, run, "sweep failed", err, zap.String("target", sweep.target))
			jobErr = errors.Join(jobErr, err)
			continue
		}
		run.AddProcessed(int(n))
		if n > 0 {
			s.logger(ctx).Info("abandoned pending purchases",
				zap.String("target", sweep.target),
				zap.Int64("count", n),
				zap.Time("cutoff", cutoff),
			)
		}
	}
	return jobErr
}

// ReconcilePendingJob re-verifies pending purchases whose webhook may have been missed.
func (s *Scheduler) ReconcilePendingJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	sessionIDs, err := s.pendingSessionIDs(ctx)
	if err != nil {
		return err
	}

	var jobErr error
	for _, sessionID := range sessionIDs {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}
		result, err := s.reconcile.Verify(ctx, sessionID, paymentdomain.SourceScheduler)
		switch {
		case err == nil:
			run.AddProcessed(1)
			s.logger(ctx).Info("reconciled pending checkout",
				zap.String("session_id", sessionID),
				zap.String("purchase_type", string(result.PurchaseType)),
				zap.String("outcome", result.Outcome),
			)
		case errors.Is(err, paymentdomain.ErrPaymentNotCompleted),
			errors.Is(err, paymentdomain.ErrReconcileInProgress),
			errors.Is(err, paymentdomain.ErrSessionNotFound):
			s.logger(ctx).Debug("pending checkout skipped",
				zap.String("session_id", sessionID),
				zap.String("reason", err.Error()),
			)
		default:
			s.logJobError(ctx, run, "reconcile pending checkout failed", err, zap.String("session_id", sessionID))
			jobErr = errors.Join(jobErr, err)
		}
	}
	return jobErr
}

func (s *Scheduler) pendingSessionIDs(ctx context.Context) ([]string, error) {
	cutoff := s.clock.Now().Add(-s.cfg.ReconcileAfter)
	limit := s.cfg.BatchSize

	var ids []string
	orders, err := s.orders.ListPendingWithSession(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		ids = appendSession(ids, o.StripeSessionID)
	}
	bookings, err := s.bookings.ListPendingWithSession(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}
	for _, b := range bookings {
		ids = appendSession(ids, b.StripeSessionID)
	}
	registrations, err := s.events.ListPendingWithSession(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}
	for _, r := range registrations {
		ids = appendSession(ids, r.StripeSessionID)
	}
	return ids, nil
}

func appendSession(ids []string, sessionID *string) []string {
	if sessionID == nil || *sessionID == "" {
		return ids
	}
	return append(ids, *sessionID)
}
