// internal/domain/lifecycle/repository.go
package lifecycle

import (
	"context"
	"time"
)

// SubjectRepository is the storage adapter one subject type supplies to the promoter.
type SubjectRepository interface {
	// Advance applies rule as a single conditional bulk update. The per-record condition
	// always includes the current source status, so a record already moved is never touched
	// again. stampedAt is written into the rule's milestone, if any. It returns the ids moved.
	Advance(ctx context.Context, rule TransitionRule, asOf time.Time, stampedAt time.Time) ([]int64, error)
	// ListMilestoneSince returns ids whose milestone was stamped at or after since.
	ListMilestoneSince(ctx context.Context, m Milestone, since time.Time) ([]int64, error)
}
