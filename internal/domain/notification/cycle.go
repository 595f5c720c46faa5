// internal/domain/notification/cycle.go
package notification

import "time"

// CycleReport summarises one dispatch run.
type CycleReport struct {
	StartedAt      time.Time
	Claimed        int
	Sent           int
	Retried        int
	FailedTerminal int
	Reclaimed      int
	// Errors counts tasks whose outcome could not be recorded; they stay SENDING until reclaimed.
	Errors int
}
