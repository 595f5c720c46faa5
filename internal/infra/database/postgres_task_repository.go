// internal/infra/database/postgres_task_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"property_lifecycle_engine/internal/domain/notification"
)

const staleClaimError = "claim expired before outcome was recorded"

const taskColumns = `id, subject_type, subject_id, milestone_key, status, retry_count, max_retries,
               next_attempt_at, claimed_at, claimed_by, last_error, created_at, updated_at`

type PostgresTaskRepository struct {
	db *sql.DB
}

func NewPostgresTaskRepository(db *sql.DB) *PostgresTaskRepository {
	return &PostgresTaskRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*notification.Task, error) {
	t := notification.Task{}
	err := row.Scan(
		&t.ID, &t.SubjectType, &t.SubjectID, &t.MilestoneKey, &t.Status, &t.RetryCount, &t.MaxRetries,
		&t.NextAttemptAt, &t.ClaimedAt, &t.ClaimedBy, &t.LastError, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*notification.Task, error) {
	tasks := make([]*notification.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning notification task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification task rows: %w", err)
	}
	return tasks, nil
}

func (r *PostgresTaskRepository) EnqueueIfAbsent(ctx context.Context, key notification.TaskKey, maxRetries int, now time.Time) (int64, error) {
	query := `INSERT INTO notification_tasks (subject_type, subject_id, milestone_key, status, retry_count, max_retries, next_attempt_at, created_at, updated_at)
               VALUES ($1, $2, $3, $4, 0, $5, $6, $6, $6)
               ON CONFLICT (subject_type, subject_id, milestone_key) DO NOTHING
               RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, query, key.SubjectType, key.SubjectID, key.MilestoneKey, notification.StatusPending, maxRetries, now).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, notification.ErrTaskAlreadyExists
		}
		return 0, fmt.Errorf("error enqueueing notification task %s: %w", key, err)
	}
	return id, nil
}

func (r *PostgresTaskRepository) ClaimDue(ctx context.Context, now time.Time, limit int, claimer string) ([]*notification.Task, error) {
	if limit <= 0 {
		return []*notification.Task{}, nil
	}
	// SKIP LOCKED lets concurrent dispatchers claim disjoint batches.
	query := `UPDATE notification_tasks
               SET status = $3, claimed_at = $1, claimed_by = $2, updated_at = $1
               WHERE id IN (
                   SELECT id FROM notification_tasks
                   WHERE status = $4 OR (status = $5 AND next_attempt_at <= $1)
                   ORDER BY next_attempt_at, id
                   LIMIT $6
                   FOR UPDATE SKIP LOCKED
               )
               RETURNING ` + taskColumns
	rows, err := r.db.QueryContext(ctx, query, now, claimer,
		notification.StatusSending, notification.StatusPending, notification.StatusFailedRetryable, limit)
	if err != nil {
		return nil, fmt.Errorf("error claiming due notification tasks: %w", err)
	}
	defer rows.Close()
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery order.
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].NextAttemptAt.Equal(tasks[j].NextAttemptAt) {
			return tasks[i].NextAttemptAt.Before(tasks[j].NextAttemptAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

func (r *PostgresTaskRepository) ReclaimStale(ctx context.Context, staleBefore time.Time, now time.Time) (int, error) {
	query := `UPDATE notification_tasks
               SET retry_count = retry_count + 1,
                   status = $3,
                   next_attempt_at = $2,
                   last_error = $4,
                   claimed_at = NULL,
                   claimed_by = NULL,
                   updated_at = $2
               WHERE status = $5 AND claimed_at < $1`
	res, err := r.db.ExecContext(ctx, query, staleBefore, now,
		notification.StatusFailedRetryable, staleClaimError, notification.StatusSending)
	if err != nil {
		return 0, fmt.Errorf("error reclaiming stale notification tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading reclaimed row count: %w", err)
	}
	return int(n), nil
}

// claimLostOrMissing tells apart a vanished task from a lost claim after a conditional update matched nothing.
func (r *PostgresTaskRepository) claimLostOrMissing(ctx context.Context, id int64) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return notification.ErrClaimLost
}

func (r *PostgresTaskRepository) MarkSent(ctx context.Context, id int64, claimer string, now time.Time) error {
	query := `UPDATE notification_tasks
               SET status = $1, last_error = NULL, updated_at = $2
               WHERE id = $3 AND status = $4 AND claimed_by = $5`
	res, err := r.db.ExecContext(ctx, query, notification.StatusSent, now, id, notification.StatusSending, claimer)
	if err != nil {
		return fmt.Errorf("error marking notification task %d sent: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("error reading affected rows for task %d: %w", id, err)
	} else if n == 0 {
		return r.claimLostOrMissing(ctx, id)
	}
	return nil
}

func (r *PostgresTaskRepository) MarkFailed(ctx context.Context, id int64, claimer string, f notification.Failure, now time.Time) error {
	query := `UPDATE notification_tasks
               SET status = $1, retry_count = $2, next_attempt_at = $3, last_error = $4,
                   claimed_at = NULL, claimed_by = NULL, updated_at = $5
               WHERE id = $6 AND status = $7 AND claimed_by = $8`
	lastErr := sql.NullString{String: f.Error, Valid: f.Error != ""}
	res, err := r.db.ExecContext(ctx, query, f.Status, f.RetryCount, f.NextAttemptAt, lastErr, now, id, notification.StatusSending, claimer)
	if err != nil {
		return fmt.Errorf("error marking notification task %d failed: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("error reading affected rows for task %d: %w", id, err)
	} else if n == 0 {
		return r.claimLostOrMissing(ctx, id)
	}
	return nil
}

func (r *PostgresTaskRepository) Get(ctx context.Context, id int64) (*notification.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM notification_tasks WHERE id = $1`
	t, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notification.ErrTaskNotFound
		}
		return nil, fmt.Errorf("error getting notification task by ID: %w", err)
	}
	return t, nil
}

func (r *PostgresTaskRepository) ListByStatus(ctx context.Context, status notification.TaskStatus, limit int) ([]*notification.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM notification_tasks WHERE status = $1 ORDER BY id LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, status, sql.NullInt64{Int64: int64(limit), Valid: limit > 0})
	if err != nil {
		return nil, fmt.Errorf("error listing notification tasks by status: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (r *PostgresTaskRepository) CountByStatus(ctx context.Context) (map[notification.TaskStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM notification_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("error counting notification tasks: %w", err)
	}
	defer rows.Close()
	counts := make(map[notification.TaskStatus]int)
	for rows.Next() {
		var status notification.TaskStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("error scanning task count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task counts: %w", err)
	}
	return counts, nil
}

func (r *PostgresTaskRepository) Requeue(ctx context.Context, id int64, now time.Time) error {
	query := `UPDATE notification_tasks
               SET status = $1, retry_count = 0, next_attempt_at = $2, updated_at = $2
               WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, notification.StatusPending, now, id, notification.StatusFailedTerminal)
	if err != nil {
		return fmt.Errorf("error requeueing notification task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows for task %d: %w", id, err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return notification.ErrTaskNotTerminal
	}
	return nil
}
