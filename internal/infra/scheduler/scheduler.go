package scheduler

import (
	"context"
	"fmt"
	"time"

	"property_lifecycle_engine/internal/app"
	"property_lifecycle_engine/internal/domain/lifecycle"
	"property_lifecycle_engine/internal/domain/notification"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// PromotionRunner is the part of the promoter the scheduler drives.
type PromotionRunner interface {
	PromoteAll(ctx context.Context, asOf time.Time) (app.PromotionSummary, error)
	ReconcileMilestones(ctx context.Context, asOf time.Time, lookback time.Duration) (int, error)
}

// DispatchRunner is the part of the dispatcher the scheduler drives.
type DispatchRunner interface {
	RunCycle(ctx context.Context, now time.Time, batchSize int) (notification.CycleReport, error)
}

// Config holds the cron specs and per-run parameters.
type Config struct {
	PromoteSpec       string // e.g. "0 6 * * *" (06:00 daily)
	DispatchSpec      string // e.g. "*/2 * * * *" (every 2 minutes)
	DispatchBatchSize int
	MilestoneLookback time.Duration
	Location          *time.Location
	PromoteTimeout    time.Duration
	DispatchTimeout   time.Duration
}

type LifecycleScheduler struct {
	cronEngine *cron.Cron
	promoter   PromotionRunner
	dispatcher DispatchRunner
	clock      lifecycle.Clock
	cfg        Config
	logger     *logrus.Entry
}

func NewLifecycleScheduler(
	promoter PromotionRunner,
	dispatcher DispatchRunner,
	clock lifecycle.Clock,
	cfg Config,
	baseLogger *logrus.Entry,
) *LifecycleScheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.PromoteTimeout <= 0 {
		cfg.PromoteTimeout = 30 * time.Minute
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 5 * time.Minute
	}
	logger := baseLogger.WithField("component", "scheduler")
	cronLogger := cron.PrintfLogger(logger)
	return &LifecycleScheduler{
		// A cycle still running when its next tick fires is skipped, so each job has one slot per process.
		cronEngine: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		promoter:   promoter,
		dispatcher: dispatcher,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start registers the promotion and dispatch jobs and starts the cron engine.
func (s *LifecycleScheduler) Start() error {
	s.logger.Info("Starting lifecycle scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cfg.PromoteSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PromoteTimeout)
		defer cancel()
		s.RunPromotionCycle(ctx)
	}); err != nil {
		return fmt.Errorf("could not add promotion cron job %q: %w", s.cfg.PromoteSpec, err)
	}

	if _, err := s.cronEngine.AddFunc(s.cfg.DispatchSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DispatchTimeout)
		defer cancel()
		s.RunDispatchCycle(ctx)
	}); err != nil {
		return fmt.Errorf("could not add dispatch cron job %q: %w", s.cfg.DispatchSpec, err)
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"promote_spec":  s.cfg.PromoteSpec,
		"dispatch_spec": s.cfg.DispatchSpec,
		"location":      s.cfg.Location.String(),
	}).Info("Lifecycle scheduler started with jobs.")
	return nil
}

// RunPromotionCycle promotes every rule as of today and then backfills tasks for milestones
// whose enqueue failed in earlier runs.
func (s *LifecycleScheduler) RunPromotionCycle(ctx context.Context) (app.PromotionSummary, error) {
	asOf := s.clock.Now().In(s.cfg.Location)
	log := s.logger.WithField("as_of", asOf.Format("2006-01-02"))

	summary, err := s.promoter.PromoteAll(ctx, asOf)
	if err != nil {
		log.WithError(err).Error("Promotion cycle aborted")
		return summary, err
	}
	for ruleID, ruleErr := range summary.Failed {
		log.WithError(ruleErr).WithField("rule", ruleID).Error("Rule failed during promotion cycle")
	}

	if s.cfg.MilestoneLookback > 0 {
		created, err := s.promoter.ReconcileMilestones(ctx, asOf, s.cfg.MilestoneLookback)
		if err != nil {
			log.WithError(err).Error("Milestone reconciliation incomplete")
		} else if created > 0 {
			log.WithField("created", created).Info("Milestone reconciliation queued missing tasks")
		}
	}
	return summary, nil
}

// RunDispatchCycle delivers one batch of due notification tasks.
func (s *LifecycleScheduler) RunDispatchCycle(ctx context.Context) (notification.CycleReport, error) {
	report, err := s.dispatcher.RunCycle(ctx, s.clock.Now(), s.cfg.DispatchBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Dispatch cycle failed")
	}
	return report, err
}

func (s *LifecycleScheduler) Stop() {
	s.logger.Info("Stopping lifecycle scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Lifecycle scheduler gracefully stopped.")
}
