// internal/domain/notification/shared_types.go
package notification

import (
	"database/sql"
	"fmt"
	"time"

	"property_lifecycle_engine/internal/domain/lifecycle"
)

// TaskKey identifies the single task allowed per subject and milestone.
type TaskKey struct {
	SubjectType  lifecycle.SubjectType
	SubjectID    int64
	MilestoneKey string
}

func (k TaskKey) String() string {
	return fmt.Sprintf("%s/%d/%s", k.SubjectType, k.SubjectID, k.MilestoneKey)
}

// Task is one row of the notification task queue.
// Corresponds to the 'notification_tasks' table.
type Task struct {
	ID            int64
	SubjectType   lifecycle.SubjectType
	SubjectID     int64
	MilestoneKey  string
	Status        TaskStatus
	RetryCount    int
	MaxRetries    int
	NextAttemptAt time.Time
	ClaimedAt     sql.NullTime   // Set while SENDING
	ClaimedBy     sql.NullString // Dispatcher instance holding the claim
	LastError     sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Key returns the uniqueness key of the task.
func (t *Task) Key() TaskKey {
	return TaskKey{SubjectType: t.SubjectType, SubjectID: t.SubjectID, MilestoneKey: t.MilestoneKey}
}

// Due reports whether the task is eligible for a claim at now.
func (t *Task) Due(now time.Time) bool {
	switch t.Status {
	case StatusPending:
		return true
	case StatusFailedRetryable:
		return !t.NextAttemptAt.After(now)
	}
	return false
}

// Notification is what a channel needs to deliver one task.
type Notification struct {
	TaskID       int64
	SubjectType  lifecycle.SubjectType
	SubjectID    int64
	MilestoneKey string
	Attempt      int // 1-based
}
