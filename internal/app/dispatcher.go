// internal/app/dispatcher.go
package app

import (
	"context"
	"fmt"
	"time"

	"property_lifecycle_engine/internal/domain/notification"
	"property_lifecycle_engine/internal/infra/telemetry"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DispatcherConfig tunes a Dispatcher.
type DispatcherConfig struct {
	Concurrency     int           // Parallel deliveries within one batch
	DeliveryTimeout time.Duration // Upper bound of one channel send
	StaleClaimAfter time.Duration // SENDING claims older than this are reclaimed
	Backoff         BackoffPolicy
}

type outcome int

const (
	outcomeSent outcome = iota + 1
	outcomeRetried
	outcomeTerminal
	outcomeError
)

func (o outcome) String() string {
	switch o {
	case outcomeSent:
		return "sent"
	case outcomeRetried:
		return "retried"
	case outcomeTerminal:
		return "failed_terminal"
	default:
		return "error"
	}
}

// Dispatcher claims due notification tasks and delivers them through a channel.
// Delivery outcomes only ever change task state, never subject state.
type Dispatcher struct {
	tasks   notification.Repository
	channel notification.Channel
	cfg     DispatcherConfig
	claimer string
	metrics *telemetry.Metrics
	logger  *logrus.Entry
}

func NewDispatcher(
	tasks notification.Repository,
	channel notification.Channel,
	cfg DispatcherConfig,
	metrics *telemetry.Metrics,
	logger *logrus.Entry,
) *Dispatcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 30 * time.Second
	}
	if cfg.Backoff == (BackoffPolicy{}) {
		cfg.Backoff = DefaultBackoff
	}
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	claimer := uuid.NewString()
	return &Dispatcher{
		tasks:   tasks,
		channel: channel,
		cfg:     cfg,
		claimer: claimer,
		metrics: metrics,
		logger:  logger.WithFields(logrus.Fields{"component": "dispatcher", "claimer": claimer}),
	}
}

// Claimer returns the id this dispatcher stamps on its claims.
func (d *Dispatcher) Claimer() string { return d.claimer }

// RunCycle reclaims stale claims, claims up to batchSize due tasks and delivers them.
// Per-task problems are counted, not returned; an error means the cycle could not start.
func (d *Dispatcher) RunCycle(ctx context.Context, now time.Time, batchSize int) (notification.CycleReport, error) {
	report := notification.CycleReport{StartedAt: now}

	if d.cfg.StaleClaimAfter > 0 {
		n, err := d.tasks.ReclaimStale(ctx, now.Add(-d.cfg.StaleClaimAfter), now)
		if err != nil {
			return report, fmt.Errorf("reclaim stale claims: %w", err)
		}
		report.Reclaimed = n
		d.metrics.Reclaimed(ctx, n)
		if n > 0 {
			d.logger.WithField("reclaimed", n).Warn("Reclaimed tasks stuck in SENDING")
		}
	}

	batch, err := d.tasks.ClaimDue(ctx, now, batchSize, d.claimer)
	if err != nil {
		return report, fmt.Errorf("claim due tasks: %w", err)
	}
	report.Claimed = len(batch)
	if len(batch) == 0 {
		d.logger.Debug("No due notification tasks")
		return report, nil
	}

	outcomes := make([]outcome, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for i, task := range batch {
		g.Go(func() error {
			outcomes[i] = d.deliver(gctx, task, now)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch o {
		case outcomeSent:
			report.Sent++
		case outcomeRetried:
			report.Retried++
		case outcomeTerminal:
			report.FailedTerminal++
		default:
			report.Errors++
		}
	}

	d.logger.WithFields(logrus.Fields{
		"claimed":         report.Claimed,
		"sent":            report.Sent,
		"retried":         report.Retried,
		"failed_terminal": report.FailedTerminal,
		"errors":          report.Errors,
	}).Info("Dispatch cycle finished")
	return report, nil
}

// deliver performs one send and records its outcome on the task.
func (d *Dispatcher) deliver(ctx context.Context, task *notification.Task, now time.Time) outcome {
	log := d.logger.WithFields(logrus.Fields{
		"task_id":      task.ID,
		"subject_type": task.SubjectType,
		"subject_id":   task.SubjectID,
		"milestone":    task.MilestoneKey,
	})
	if err := ctx.Err(); err != nil {
		// Left SENDING; the stale-claim reclaim returns it to the queue.
		log.WithError(err).Warn("Cycle cancelled before delivery")
		return outcomeError
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	started := time.Now()
	sendErr := d.channel.Send(sendCtx, notification.Notification{
		TaskID:       task.ID,
		SubjectType:  task.SubjectType,
		SubjectID:    task.SubjectID,
		MilestoneKey: task.MilestoneKey,
		Attempt:      task.RetryCount + 1,
	})
	cancel()
	took := time.Since(started)

	var result outcome
	if sendErr == nil {
		if err := d.tasks.MarkSent(ctx, task.ID, d.claimer, now); err != nil {
			log.WithError(err).Error("Delivered but could not mark task SENT")
			result = outcomeError
		} else {
			log.Info("Notification sent")
			result = outcomeSent
		}
		d.metrics.Delivery(ctx, result.String(), took)
		return result
	}

	failure := notification.Failure{
		RetryCount: task.RetryCount + 1,
		Error:      sendErr.Error(),
	}
	if failure.RetryCount >= task.MaxRetries {
		failure.Status = notification.StatusFailedTerminal
		failure.NextAttemptAt = task.NextAttemptAt
		result = outcomeTerminal
	} else {
		failure.Status = notification.StatusFailedRetryable
		failure.NextAttemptAt = d.cfg.Backoff.NextAttempt(now, failure.RetryCount)
		result = outcomeRetried
	}

	if err := d.tasks.MarkFailed(ctx, task.ID, d.claimer, failure, now); err != nil {
		log.WithError(err).Error("Delivery failed and the failure could not be recorded")
		result = outcomeError
	} else if result == outcomeTerminal {
		log.WithError(sendErr).WithField("retry_count", failure.RetryCount).Error("Notification failed permanently; operator follow-up required")
	} else {
		log.WithError(sendErr).WithFields(logrus.Fields{
			"retry_count":     failure.RetryCount,
			"next_attempt_at": failure.NextAttemptAt.Format(time.RFC3339),
		}).Warn("Notification failed; retry scheduled")
	}
	d.metrics.Delivery(ctx, result.String(), took)
	return result
}
