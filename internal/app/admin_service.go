package app

import (
	"context"
	"fmt"

	"property_lifecycle_engine/internal/domain/cheque"
	"property_lifecycle_engine/internal/domain/lifecycle"
	"property_lifecycle_engine/internal/domain/notification"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")

const failedTaskListLimit = 50

// AdminService exposes operator actions: inspecting and requeueing failed notifications and
// handling bounced cheques.
type AdminService struct {
	tasks           notification.Repository
	replacements    *ReplacementService
	clock           lifecycle.Clock
	adminTelegramID int64
}

func NewAdminService(tr notification.Repository, rs *ReplacementService, clock lifecycle.Clock, adminID int64) *AdminService {
	return &AdminService{
		tasks:           tr,
		replacements:    rs,
		clock:           clock,
		adminTelegramID: adminID,
	}
}

func (s *AdminService) authorize(performingAdminID int64) error {
	if performingAdminID != s.adminTelegramID {
		return ErrAdminNotAuthorized
	}
	return nil
}

// ListFailedTasks returns tasks that exhausted their retries.
func (s *AdminService) ListFailedTasks(ctx context.Context, performingAdminID int64) ([]*notification.Task, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListByStatus(ctx, notification.StatusFailedTerminal, failedTaskListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed tasks: %w", err)
	}
	return tasks, nil
}

// RequeueTask gives a FAILED_TERMINAL task a fresh retry budget. Only operators do this;
// the dispatcher never requeues terminal tasks on its own.
func (s *AdminService) RequeueTask(ctx context.Context, performingAdminID int64, taskID int64) (*notification.Task, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	if err := s.tasks.Requeue(ctx, taskID, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("failed to requeue task %d: %w", taskID, err)
	}
	return s.tasks.Get(ctx, taskID)
}

// QueueStats counts tasks by status.
func (s *AdminService) QueueStats(ctx context.Context, performingAdminID int64) (map[notification.TaskStatus]int, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.tasks.CountByStatus(ctx)
}

// TraceCheque returns the replacement chain of a cheque.
func (s *AdminService) TraceCheque(ctx context.Context, performingAdminID int64, chequeID int64) ([]*cheque.Cheque, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.replacements.TraceChain(ctx, chequeID)
}

// BounceCheque records a bounce dated today.
func (s *AdminService) BounceCheque(ctx context.Context, performingAdminID int64, chequeID int64, reason string) (*cheque.Cheque, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	return s.replacements.RecordBounce(ctx, chequeID, reason, s.clock.Now())
}

// ReplaceCheque records the replacement of a bounced cheque.
func (s *AdminService) ReplaceCheque(ctx context.Context, performingAdminID int64, originalID int64, draft cheque.Draft) (*cheque.Cheque, error) {
	if err := s.authorize(performingAdminID); err != nil {
		return nil, err
	}
	if draft.ChequeDate.IsZero() {
		draft.ChequeDate = lifecycle.DateOnly(s.clock.Now())
	}
	return s.replacements.RecordReplacement(ctx, originalID, draft)
}
