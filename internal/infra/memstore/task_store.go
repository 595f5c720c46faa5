package memstore

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"property_lifecycle_engine/internal/domain/notification"
)

// TaskStore is an in-memory notification.Repository. Every method holds one lock, which gives
// ClaimDue the same exclusivity as the Postgres SKIP LOCKED claim.
type TaskStore struct {
	mu     sync.Mutex
	tasks  map[int64]*notification.Task
	byKey  map[notification.TaskKey]int64
	nextID int64
	// FailEnqueue, when set, is returned by every EnqueueIfAbsent call.
	FailEnqueue error
	// FailMark, when set, is returned by MarkSent and MarkFailed.
	FailMark error
}

func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[int64]*notification.Task),
		byKey: make(map[notification.TaskKey]int64),
	}
}

func (s *TaskStore) EnqueueIfAbsent(ctx context.Context, key notification.TaskKey, maxRetries int, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailEnqueue != nil {
		return 0, s.FailEnqueue
	}
	if _, exists := s.byKey[key]; exists {
		return 0, notification.ErrTaskAlreadyExists
	}
	s.nextID++
	t := &notification.Task{
		ID:            s.nextID,
		SubjectType:   key.SubjectType,
		SubjectID:     key.SubjectID,
		MilestoneKey:  key.MilestoneKey,
		Status:        notification.StatusPending,
		MaxRetries:    maxRetries,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.tasks[t.ID] = t
	s.byKey[key] = t.ID
	return t.ID, nil
}

func (s *TaskStore) ClaimDue(ctx context.Context, now time.Time, limit int, claimer string) ([]*notification.Task, error) {
	if limit <= 0 {
		return []*notification.Task{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*notification.Task
	for _, t := range s.tasks {
		if t.Due(now) {
			due = append(due, t)
		}
	}
	sortOldestDue(due)
	if len(due) > limit {
		due = due[:limit]
	}
	claimed := make([]*notification.Task, 0, len(due))
	for _, t := range due {
		t.Status = notification.StatusSending
		t.ClaimedAt = sql.NullTime{Time: now, Valid: true}
		t.ClaimedBy = sql.NullString{String: claimer, Valid: true}
		t.UpdatedAt = now
		cp := *t
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (s *TaskStore) ReclaimStale(ctx context.Context, staleBefore time.Time, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.Status != notification.StatusSending || !t.ClaimedAt.Valid || !t.ClaimedAt.Time.Before(staleBefore) {
			continue
		}
		// Whether the crashed attempt was delivered is unknown, so the task
		// stays retryable; only a recorded failed send can make it terminal.
		t.RetryCount++
		t.Status = notification.StatusFailedRetryable
		t.NextAttemptAt = now
		t.LastError = sql.NullString{String: "claim expired before outcome was recorded", Valid: true}
		t.ClaimedAt = sql.NullTime{}
		t.ClaimedBy = sql.NullString{}
		t.UpdatedAt = now
		n++
	}
	return n, nil
}

func (s *TaskStore) claimedLocked(id int64, claimer string) (*notification.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, notification.ErrTaskNotFound
	}
	if t.Status != notification.StatusSending || t.ClaimedBy.String != claimer {
		return nil, notification.ErrClaimLost
	}
	return t, nil
}

func (s *TaskStore) MarkSent(ctx context.Context, id int64, claimer string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailMark != nil {
		return s.FailMark
	}
	t, err := s.claimedLocked(id, claimer)
	if err != nil {
		return err
	}
	t.Status = notification.StatusSent
	t.LastError = sql.NullString{}
	t.UpdatedAt = now
	return nil
}

func (s *TaskStore) MarkFailed(ctx context.Context, id int64, claimer string, f notification.Failure, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailMark != nil {
		return s.FailMark
	}
	t, err := s.claimedLocked(id, claimer)
	if err != nil {
		return err
	}
	t.Status = f.Status
	t.RetryCount = f.RetryCount
	t.NextAttemptAt = f.NextAttemptAt
	t.LastError = sql.NullString{String: f.Error, Valid: f.Error != ""}
	t.ClaimedAt = sql.NullTime{}
	t.ClaimedBy = sql.NullString{}
	t.UpdatedAt = now
	return nil
}

func (s *TaskStore) Get(ctx context.Context, id int64) (*notification.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, notification.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *TaskStore) ListByStatus(ctx context.Context, status notification.TaskStatus, limit int) ([]*notification.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*notification.Task
	for _, t := range s.tasks {
		if t.Status == status {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *TaskStore) CountByStatus(ctx context.Context) (map[notification.TaskStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[notification.TaskStatus]int)
	for _, t := range s.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

func (s *TaskStore) Requeue(ctx context.Context, id int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return notification.ErrTaskNotFound
	}
	if t.Status != notification.StatusFailedTerminal {
		return notification.ErrTaskNotTerminal
	}
	t.Status = notification.StatusPending
	t.RetryCount = 0
	t.NextAttemptAt = now
	t.UpdatedAt = now
	return nil
}

// All returns copies of every task ordered by id.
func (s *TaskStore) All() []*notification.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*notification.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortOldestDue(tasks []*notification.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].NextAttemptAt.Equal(tasks[j].NextAttemptAt) {
			return tasks[i].NextAttemptAt.Before(tasks[j].NextAttemptAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}
