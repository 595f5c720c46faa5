package memstore

import (
	"context"
	"testing"
	"time"

	"property_lifecycle_engine/internal/domain/lifecycle"
	"property_lifecycle_engine/internal/domain/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(id int64, milestone string) notification.TaskKey {
	return notification.TaskKey{SubjectType: lifecycle.SubjectDocument, SubjectID: id, MilestoneKey: milestone}
}

func TestTaskStoreEnqueueIsUniquePerKey(t *testing.T) {
	s := NewTaskStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	id, err := s.EnqueueIfAbsent(ctx, key(1, "notice_30"), 3, now)
	require.NoError(t, err)
	_, err = s.EnqueueIfAbsent(ctx, key(1, "notice_30"), 3, now)
	assert.ErrorIs(t, err, notification.ErrTaskAlreadyExists)
	_, err = s.EnqueueIfAbsent(ctx, key(1, "notice_7"), 3, now)
	assert.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, now, got.NextAttemptAt)
}

func TestTaskStoreClaimOrderAndExclusivity(t *testing.T) {
	s := NewTaskStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	late, _ := s.EnqueueIfAbsent(ctx, key(1, "a"), 3, t0.Add(time.Minute))
	early, _ := s.EnqueueIfAbsent(ctx, key(2, "a"), 3, t0)

	claimed, err := s.ClaimDue(ctx, t0.Add(time.Hour), 1, "x")
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, early, claimed[0].ID)
	assert.Equal(t, "x", claimed[0].ClaimedBy.String)

	claimed, err = s.ClaimDue(ctx, t0.Add(time.Hour), 10, "y")
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, late, claimed[0].ID)

	assert.ErrorIs(t, s.MarkSent(ctx, early, "y", t0), notification.ErrClaimLost)
	require.NoError(t, s.MarkSent(ctx, early, "x", t0))
	assert.ErrorIs(t, s.MarkSent(ctx, early, "x", t0), notification.ErrClaimLost, "SENT is reached once")
	assert.ErrorIs(t, s.MarkSent(ctx, 99, "x", t0), notification.ErrTaskNotFound)
}

func TestTaskStoreRetryableWaitsForNextAttempt(t *testing.T) {
	s := NewTaskStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	id, _ := s.EnqueueIfAbsent(ctx, key(1, "a"), 3, t0)
	_, _ = s.ClaimDue(ctx, t0, 10, "x")
	require.NoError(t, s.MarkFailed(ctx, id, "x", notification.Failure{
		RetryCount: 1, Status: notification.StatusFailedRetryable, NextAttemptAt: t0.Add(time.Minute), Error: "timeout",
	}, t0))

	claimed, _ := s.ClaimDue(ctx, t0.Add(30*time.Second), 10, "x")
	assert.Empty(t, claimed)
	claimed, _ = s.ClaimDue(ctx, t0.Add(time.Minute), 10, "x")
	assert.Len(t, claimed, 1)
}

func TestTaskStoreReclaimStale(t *testing.T) {
	s := NewTaskStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	retry, _ := s.EnqueueIfAbsent(ctx, key(1, "a"), 3, t0)
	last, _ := s.EnqueueIfAbsent(ctx, key(2, "a"), 1, t0)
	_, _ = s.ClaimDue(ctx, t0, 10, "crashed")

	n, err := s.ReclaimStale(ctx, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "claims at staleBefore are not stale yet")

	n, err = s.ReclaimStale(ctx, t0.Add(time.Second), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, _ := s.Get(ctx, retry)
	assert.Equal(t, notification.StatusFailedRetryable, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.False(t, got.ClaimedBy.Valid)

	got, _ = s.Get(ctx, last)
	assert.Equal(t, notification.StatusFailedRetryable, got.Status, "reclaim leaves the terminal decision to a real failed send")
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, t0.Add(time.Hour), got.NextAttemptAt)
	assert.Equal(t, "claim expired before outcome was recorded", got.LastError.String)

	claimed, err := s.ClaimDue(ctx, t0.Add(time.Hour), 10, "next")
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
}

func TestTaskStoreClaimDueWithoutCapacity(t *testing.T) {
	s := NewTaskStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	id, _ := s.EnqueueIfAbsent(ctx, key(1, "a"), 3, t0)

	for _, limit := range []int{0, -1} {
		claimed, err := s.ClaimDue(ctx, t0, limit, "x")
		require.NoError(t, err)
		assert.Empty(t, claimed, "limit %d", limit)
	}

	got, _ := s.Get(ctx, id)
	assert.Equal(t, notification.StatusPending, got.Status)
	assert.False(t, got.ClaimedBy.Valid)
}

func TestTaskStoreRequeue(t *testing.T) {
	s := NewTaskStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	id, _ := s.EnqueueIfAbsent(ctx, key(1, "a"), 1, t0)
	assert.ErrorIs(t, s.Requeue(ctx, id, t0), notification.ErrTaskNotTerminal)

	_, _ = s.ClaimDue(ctx, t0, 10, "x")
	require.NoError(t, s.MarkFailed(ctx, id, "x", notification.Failure{RetryCount: 1, Status: notification.StatusFailedTerminal, NextAttemptAt: t0}, t0))
	require.NoError(t, s.Requeue(ctx, id, t0.Add(time.Hour)))

	got, _ := s.Get(ctx, id)
	assert.Equal(t, notification.StatusPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)

	counts, _ := s.CountByStatus(ctx)
	assert.Equal(t, map[notification.TaskStatus]int{notification.StatusPending: 1}, counts)
}
