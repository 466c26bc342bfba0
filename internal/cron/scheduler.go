package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"eventpay/internal/config"
)

// jobTimeout bounds a single run so overlapping schedules cannot pile up.
const jobTimeout = 50 * time.Second

// PaymentMaintainer is the part of the payment service the jobs drive.
type PaymentMaintainer interface {
	ReconcileStale(ctx context.Context, olderThan time.Duration) (int, error)
	ExpireAbandoned(ctx context.Context, olderThan time.Duration) (int, error)
}

// Scheduler manages all cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	cfg    config.CronConfig
	svc    PaymentMaintainer
	logger *zap.Logger
}

// New creates a new cron scheduler.
func New(cfg config.CronConfig, svc PaymentMaintainer, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cfg:    cfg,
		svc:    svc,
		logger: logger,
	}
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() error {
	s.logger.Info("Starting cron scheduler...")

	// Re-check payments the gateway has not settled yet
	if _, err := s.cron.AddFunc(s.cfg.ReconcileSpec, func() {
		s.logger.Debug("Running: reconcile stale payments")
		s.reconcileStale()
	}); err != nil {
		return fmt.Errorf("schedule reconcile job: %w", err)
	}

	// Fail payments the customer never completed
	if _, err := s.cron.AddFunc(s.cfg.ExpireSpec, func() {
		s.logger.Debug("Running: expire abandoned payments")
		s.expireAbandoned()
	}); err != nil {
		return fmt.Errorf("schedule expire job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Cron scheduler started")
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) reconcileStale() {
	defer s.recoverFromPanic("reconcileStale")

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.svc.ReconcileStale(ctx, s.cfg.ReconcileAfter)
	if err != nil {
		s.logger.Error("Reconcile job failed", zap.Error(err))
		return
	}
	s.logger.Debug("Reconcile completed", zap.Int("processed", n))
}

func (s *Scheduler) expireAbandoned() {
	defer s.recoverFromPanic("expireAbandoned")

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.svc.ExpireAbandoned(ctx, s.cfg.ExpireAfter)
	if err != nil {
		s.logger.Error("Expire job failed", zap.Error(err))
		return
	}
	s.logger.Debug("Payment expire completed", zap.Int("processed", n))
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}
