// internal/app/promoter.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"property_lifecycle_engine/internal/domain/lifecycle"
	"property_lifecycle_engine/internal/domain/notification"
	"property_lifecycle_engine/internal/infra/telemetry"

	"github.com/sirupsen/logrus"
)

// PromotionResult reports one rule application.
type PromotionResult struct {
	SubjectType   lifecycle.SubjectType
	RuleID        string
	Promoted      int
	Enqueued      int
	EnqueueFailed int
}

// PromotionSummary aggregates a full run over the rule table.
type PromotionSummary struct {
	AsOf    time.Time
	Results []PromotionResult
	// Failed maps rule ids to the error that aborted them.
	Failed map[string]error
}

// Promoted returns the total number of subjects moved.
func (s PromotionSummary) Promoted() int {
	n := 0
	for _, r := range s.Results {
		n += r.Promoted
	}
	return n
}

// Promoter advances subject statuses by date according to the transition rule table and
// queues the notifications the promoted records are owed.
type Promoter struct {
	table      *lifecycle.Table
	repos      map[lifecycle.SubjectType]lifecycle.SubjectRepository
	tasks      notification.Repository
	clock      lifecycle.Clock
	maxRetries int
	metrics    *telemetry.Metrics
	logger     *logrus.Entry
}

func NewPromoter(
	table *lifecycle.Table,
	tasks notification.Repository,
	clock lifecycle.Clock,
	maxRetries int,
	metrics *telemetry.Metrics,
	logger *logrus.Entry,
) *Promoter {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &Promoter{
		table:      table,
		repos:      make(map[lifecycle.SubjectType]lifecycle.SubjectRepository),
		tasks:      tasks,
		clock:      clock,
		maxRetries: maxRetries,
		metrics:    metrics,
		logger:     logger.WithField("component", "promoter"),
	}
}

// Register binds the storage adapter of a subject type.
func (p *Promoter) Register(st lifecycle.SubjectType, repo lifecycle.SubjectRepository) {
	p.repos[st] = repo
}

// Promote applies one rule as of the given date and returns how many subjects it moved.
// Running it again with the same asOf moves nothing.
func (p *Promoter) Promote(ctx context.Context, st lifecycle.SubjectType, ruleID string, asOf time.Time) (PromotionResult, error) {
	res := PromotionResult{SubjectType: st, RuleID: ruleID}

	rule, err := p.table.Rule(st, ruleID)
	if err != nil {
		return res, err
	}
	repo, ok := p.repos[st]
	if !ok {
		return res, fmt.Errorf("%w: no repository registered for %s", lifecycle.ErrRuleMisconfigured, st)
	}

	log := p.logger.WithFields(logrus.Fields{
		"subject_type": st,
		"rule":         ruleID,
		"as_of":        asOf.Format("2006-01-02"),
	})

	stampedAt := p.clock.Now()
	ids, err := repo.Advance(ctx, rule, asOf, stampedAt)
	if err != nil {
		log.WithError(err).Error("Rule application failed")
		return res, fmt.Errorf("advance %s: %w", ruleID, err)
	}
	res.Promoted = len(ids)
	p.metrics.Promoted(ctx, string(st), ruleID, len(ids))

	if key := rule.NotificationKey(); key != "" {
		for _, id := range ids {
			created, err := p.enqueue(ctx, notification.TaskKey{SubjectType: st, SubjectID: id, MilestoneKey: key}, stampedAt)
			if err != nil {
				res.EnqueueFailed++
				log.WithError(err).WithField("subject_id", id).Error("Failed to enqueue notification task")
				continue
			}
			if created {
				res.Enqueued++
			}
		}
	}

	if res.Promoted > 0 || res.EnqueueFailed > 0 {
		log.WithFields(logrus.Fields{
			"promoted":       res.Promoted,
			"enqueued":       res.Enqueued,
			"enqueue_failed": res.EnqueueFailed,
		}).Info("Rule applied")
	} else {
		log.Debug("Rule matched no subjects")
	}
	return res, nil
}

// enqueue inserts the task unless it already exists. created is false for an existing task.
func (p *Promoter) enqueue(ctx context.Context, key notification.TaskKey, now time.Time) (bool, error) {
	_, err := p.tasks.EnqueueIfAbsent(ctx, key, p.maxRetries, now)
	if errors.Is(err, notification.ErrTaskAlreadyExists) {
		return false, nil
	}
	if err != nil {
		p.metrics.EnqueueFailed(ctx, string(key.SubjectType))
		return false, err
	}
	p.metrics.Enqueued(ctx, string(key.SubjectType), key.MilestoneKey)
	return true, nil
}

// PromoteAll validates the table and then applies every rule in table order. A failing rule is
// reported in the summary and does not stop the others; an invalid table stops the cycle.
func (p *Promoter) PromoteAll(ctx context.Context, asOf time.Time) (PromotionSummary, error) {
	summary := PromotionSummary{AsOf: asOf, Failed: make(map[string]error)}
	if err := p.table.Validate(); err != nil {
		p.logger.WithError(err).Error("Rule table is invalid; promotion cycle skipped")
		return summary, err
	}
	for _, rule := range p.table.Rules {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res, err := p.Promote(ctx, rule.SubjectType, rule.ID, asOf)
		if err != nil {
			summary.Failed[rule.ID] = err
			continue
		}
		summary.Results = append(summary.Results, res)
	}
	p.logger.WithFields(logrus.Fields{
		"as_of":    asOf.Format("2006-01-02"),
		"promoted": summary.Promoted(),
		"failed":   len(summary.Failed),
	}).Info("Promotion cycle finished")
	return summary, nil
}

// ReconcileMilestones re-enqueues tasks for subjects whose milestone was stamped since
// asOf-lookback. Enqueueing is idempotent, so this only fills gaps left by failed inserts.
func (p *Promoter) ReconcileMilestones(ctx context.Context, asOf time.Time, lookback time.Duration) (int, error) {
	since := asOf.Add(-lookback)
	created := 0
	var errs []error
	for _, rule := range p.table.Rules {
		if rule.Milestone == "" {
			continue
		}
		repo, ok := p.repos[rule.SubjectType]
		if !ok {
			continue
		}
		ids, err := repo.ListMilestoneSince(ctx, rule.Milestone, since)
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s/%s: %w", rule.SubjectType, rule.Milestone, err))
			continue
		}
		for _, id := range ids {
			ok, err := p.enqueue(ctx, notification.TaskKey{SubjectType: rule.SubjectType, SubjectID: id, MilestoneKey: string(rule.Milestone)}, p.clock.Now())
			if err != nil {
				errs = append(errs, fmt.Errorf("enqueue %s/%d: %w", rule.SubjectType, id, err))
				continue
			}
			if ok {
				created++
			}
		}
	}
	if created > 0 {
		p.logger.WithField("created", created).Warn("Reconciled notification tasks missing for stamped milestones")
	}
	return created, errors.Join(errs...)
}
