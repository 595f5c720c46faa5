// internal/domain/notification/repository.go
package notification

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTaskNotFound      = errors.New("notification task not found")
	ErrTaskAlreadyExists = errors.New("notification task already exists for subject and milestone")
	// ErrClaimLost means the task is no longer SENDING under the caller's claim.
	ErrClaimLost = errors.New("notification task claim lost")
	// ErrTaskNotTerminal is returned when requeueing a task that has not failed terminally.
	ErrTaskNotTerminal = errors.New("notification task is not FAILED_TERMINAL")
)

// Repository is the durable notification task queue. The dispatcher owns every state
// transition; other callers only insert through EnqueueIfAbsent.
type Repository interface {
	// EnqueueIfAbsent inserts a PENDING task unless one exists for key in any status,
	// in which case it returns ErrTaskAlreadyExists.
	EnqueueIfAbsent(ctx context.Context, key TaskKey, maxRetries int, now time.Time) (int64, error)

	// ClaimDue atomically moves up to limit due tasks to SENDING under claimer,
	// oldest-due first, and returns them.
	ClaimDue(ctx context.Context, now time.Time, limit int, claimer string) ([]*Task, error)
	// ReclaimStale treats SENDING tasks claimed before staleBefore as a failed attempt.
	ReclaimStale(ctx context.Context, staleBefore time.Time, now time.Time) (int, error)
	// MarkSent records a delivery. Fails with ErrClaimLost if the claim is not held.
	MarkSent(ctx context.Context, id int64, claimer string, now time.Time) error
	// MarkFailed records a failed attempt with the task's new retry count, status and next attempt.
	MarkFailed(ctx context.Context, id int64, claimer string, f Failure, now time.Time) error

	Get(ctx context.Context, id int64) (*Task, error)
	ListByStatus(ctx context.Context, status TaskStatus, limit int) ([]*Task, error)
	CountByStatus(ctx context.Context) (map[TaskStatus]int, error)
	// Requeue is an operator action: FAILED_TERMINAL -> PENDING with a fresh retry budget.
	Requeue(ctx context.Context, id int64, now time.Time) error
}

// Failure is the outcome of a failed delivery attempt.
type Failure struct {
	RetryCount    int
	Status        TaskStatus // FAILED_RETRYABLE or FAILED_TERMINAL
	NextAttemptAt time.Time
	Error         string
}
