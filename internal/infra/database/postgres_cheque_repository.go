// internal/infra/database/postgres_cheque_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"property_lifecycle_engine/internal/domain/cheque"
	"property_lifecycle_engine/internal/domain/lifecycle"

	"github.com/lib/pq"
)

const chequeReplacementKey = "post_dated_cheques_replacement_key"

const chequeColumns = `id, lease_id, cheque_number, bank_name, amount, cheque_date, status, bounced_on, bounce_reason,
               deposit_reminder_sent_at, due_notice_sent_at, replacement_chase_sent_at, original_id, replacement_id, created_at, updated_at`

type PostgresChequeRepository struct {
	db    *sql.DB
	clock lifecycle.Clock
}

func NewPostgresChequeRepository(db *sql.DB, clock lifecycle.Clock) *PostgresChequeRepository {
	return &PostgresChequeRepository{db: db, clock: clock}
}

func scanCheque(row rowScanner) (*cheque.Cheque, error) {
	c := &cheque.Cheque{}
	err := row.Scan(
		&c.ID, &c.LeaseID, &c.ChequeNumber, &c.BankName, &c.Amount, &c.ChequeDate, &c.Status, &c.BouncedOn, &c.BounceReason,
		&c.DepositReminderSentAt, &c.DueNoticeSentAt, &c.ReplacementChaseSentAt, &c.OriginalID, &c.ReplacementID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertCheque(ctx context.Context, q queryRower, c *cheque.Cheque, now time.Time) error {
	query := `INSERT INTO post_dated_cheques (lease_id, cheque_number, bank_name, amount, cheque_date, status, original_id, created_at, updated_at)
               VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $8)
               RETURNING id, created_at, updated_at`
	return q.QueryRowContext(ctx, query,
		c.LeaseID, c.ChequeNumber, c.BankName, c.Amount, c.ChequeDate.Format(thresholdLayout), c.Status, c.OriginalID, now,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *PostgresChequeRepository) Create(ctx context.Context, c *cheque.Cheque) error {
	if c.Status == "" {
		c.Status = cheque.StatusReceived
	}
	if err := insertCheque(ctx, r.db, c, r.clock.Now()); err != nil {
		return fmt.Errorf("error creating cheque: %w", err)
	}
	return nil
}

func (r *PostgresChequeRepository) GetByID(ctx context.Context, id int64) (*cheque.Cheque, error) {
	query := `SELECT ` + chequeColumns + ` FROM post_dated_cheques WHERE id = $1`
	c, err := scanCheque(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cheque.ErrChequeNotFound
		}
		return nil, fmt.Errorf("error getting cheque by ID: %w", err)
	}
	return c, nil
}

func (r *PostgresChequeRepository) MarkBounced(ctx context.Context, id int64, reason string, on time.Time) (*cheque.Cheque, error) {
	query := `UPDATE post_dated_cheques
               SET status = $1, bounced_on = $2::date, bounce_reason = $3, updated_at = $4
               WHERE id = $5 AND status = ANY($6::varchar[])
               RETURNING ` + chequeColumns
	bounceable := []string{string(cheque.StatusReceived), string(cheque.StatusDue), string(cheque.StatusDeposited)}
	c, err := scanCheque(r.db.QueryRowContext(ctx, query,
		cheque.StatusBounced, on.Format(thresholdLayout), sql.NullString{String: reason, Valid: reason != ""},
		r.clock.Now(), id, pq.Array(bounceable),
	))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("error marking cheque %d bounced: %w", id, err)
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, cheque.ErrNotBounceable
}

func (r *PostgresChequeRepository) LinkReplacement(ctx context.Context, originalID int64, draft cheque.Draft) (*cheque.Cheque, error) {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for replacement: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	orig, err := scanCheque(txn.QueryRowContext(ctx,
		`SELECT `+chequeColumns+` FROM post_dated_cheques WHERE id = $1 FOR UPDATE`, originalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cheque.ErrChequeNotFound
		}
		return nil, fmt.Errorf("error locking cheque %d: %w", originalID, err)
	}
	if orig.Status != cheque.StatusBounced {
		return nil, cheque.ErrNotBounced
	}
	if orig.ReplacementID.Valid {
		return nil, cheque.ErrAlreadyReplaced
	}

	now := r.clock.Now()
	repl := &cheque.Cheque{
		LeaseID:      orig.LeaseID,
		ChequeNumber: draft.ChequeNumber,
		BankName:     draft.BankName,
		Amount:       draft.Amount,
		ChequeDate:   lifecycle.DateOnly(draft.ChequeDate),
		Status:       cheque.StatusReceived,
		OriginalID:   sql.NullInt64{Int64: originalID, Valid: true},
	}
	if err := insertCheque(ctx, txn, repl, now); err != nil {
		if isUniqueViolation(err, "post_dated_cheques_original_key") {
			return nil, cheque.ErrAlreadyReplaced
		}
		return nil, fmt.Errorf("error inserting replacement for cheque %d: %w", originalID, err)
	}

	res, err := txn.ExecContext(ctx,
		`UPDATE post_dated_cheques SET replacement_id = $1, updated_at = $2 WHERE id = $3 AND replacement_id IS NULL`,
		repl.ID, now, originalID)
	if err != nil {
		if isUniqueViolation(err, chequeReplacementKey) {
			return nil, cheque.ErrAlreadyReplaced
		}
		return nil, fmt.Errorf("error linking replacement for cheque %d: %w", originalID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("error reading affected rows for cheque %d: %w", originalID, err)
	} else if n == 0 {
		return nil, cheque.ErrAlreadyReplaced
	}

	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit replacement for cheque %d: %w", originalID, err)
	}
	return repl, nil
}
