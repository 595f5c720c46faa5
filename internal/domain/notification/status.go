// internal/domain/notification/status.go
package notification

// TaskStatus is the delivery state of a notification task.
type TaskStatus string

const (
	StatusPending         TaskStatus = "PENDING"
	StatusSending         TaskStatus = "SENDING"
	StatusSent            TaskStatus = "SENT"
	StatusFailedRetryable TaskStatus = "FAILED_RETRYABLE"
	StatusFailedTerminal  TaskStatus = "FAILED_TERMINAL"
)

// Terminal reports whether the dispatcher will never revisit a task in this status.
func (s TaskStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailedTerminal
}

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSending, StatusSent, StatusFailedRetryable, StatusFailedTerminal:
		return true
	}
	return false
}
