// Package memstore keeps subjects, cheques and notification tasks in memory with the same
// conditional-write semantics as the Postgres repositories. It backs tests and dry runs.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"property_lifecycle_engine/internal/domain/lifecycle"
)

// SubjectStore holds subjects of one type.
type SubjectStore[T lifecycle.Subject] struct {
	mu       sync.Mutex
	subjects map[int64]T
	// FailNext, when set, is returned by the next Advance call and then cleared.
	FailNext error
}

func NewSubjectStore[T lifecycle.Subject]() *SubjectStore[T] {
	return &SubjectStore[T]{subjects: make(map[int64]T)}
}

// Put inserts or replaces a subject.
func (s *SubjectStore[T]) Put(subject T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[subject.SubjectID()] = subject
}

// Get returns the stored subject.
func (s *SubjectStore[T]) Get(id int64) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.subjects[id]
	return v, ok
}

// Update runs fn on a stored subject under the store lock.
func (s *SubjectStore[T]) Update(id int64, fn func(T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.subjects[id]
	if !ok {
		return errNotFound
	}
	return fn(v)
}

// Advance evaluates and applies the rule record by record under the lock, so the check and
// the write are one step per record.
func (s *SubjectStore[T]) Advance(ctx context.Context, rule lifecycle.TransitionRule, asOf time.Time, stampedAt time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailNext; err != nil {
		s.FailNext = nil
		return nil, err
	}
	// All or nothing, like the single UPDATE it stands in for.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var moved []int64
	for id, subj := range s.subjects {
		if !rule.Matches(subj, asOf) {
			continue
		}
		rule.Apply(subj, stampedAt)
		moved = append(moved, id)
	}
	sort.Slice(moved, func(i, j int) bool { return moved[i] < moved[j] })
	return moved, nil
}

func (s *SubjectStore[T]) ListMilestoneSince(ctx context.Context, m lifecycle.Milestone, since time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, subj := range s.subjects {
		if at, ok := subj.MilestoneAt(m); ok && !at.Before(since) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
