// internal/infra/database/postgres_subject_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"property_lifecycle_engine/internal/domain/lifecycle"

	"github.com/lib/pq"
)

// thresholdLayout is how the comparison date is passed; the ::date cast keeps it a civil date.
const thresholdLayout = "2006-01-02"

// PostgresSubjectRepository advances the subjects stored in one table.
type PostgresSubjectRepository struct {
	db    *sql.DB
	table SubjectTable
}

func NewPostgresSubjectRepository(db *sql.DB, table SubjectTable, spec lifecycle.SubjectSpec) (*PostgresSubjectRepository, error) {
	if err := table.Covers(spec); err != nil {
		return nil, err
	}
	return &PostgresSubjectRepository{db: db, table: table}, nil
}

// advanceQuery builds the single conditional UPDATE that applies rule.
// Parameters: $1 target status, $2 stamp time, $3 source status, $4 threshold date and,
// when the rule has AndWhen, $5 its threshold date.
func advanceQuery(t SubjectTable, rule lifecycle.TransitionRule) (string, error) {
	when, err := dateClause(t, rule.ID, rule.When, 4)
	if err != nil {
		return "", err
	}
	set := []string{`status = $1`, `updated_at = $2`}
	where := []string{`status = $3`, when}

	if !rule.AndWhen.IsZero() {
		andWhen, err := dateClause(t, rule.ID, rule.AndWhen, 5)
		if err != nil {
			return "", err
		}
		where = append(where, andWhen)
	}

	if rule.Milestone != "" {
		msCol, ok := t.MilestoneColumns[rule.Milestone]
		if !ok {
			return "", fmt.Errorf("%w: %s has no column for %s", lifecycle.ErrRuleMisconfigured, t.Name, rule.Milestone)
		}
		ms := pq.QuoteIdentifier(msCol)
		// An existing stamp is never overwritten.
		set = append(set, fmt.Sprintf(`%s = COALESCE(%s, $2)`, ms, ms))
		if rule.MilestoneOnly() {
			where = append(where, ms+` IS NULL`)
		}
	}
	if rule.RequireOpenChain {
		if t.ReplacementColumn == "" {
			return "", fmt.Errorf("%w: %s is not chained", lifecycle.ErrRuleMisconfigured, t.Name)
		}
		where = append(where, pq.QuoteIdentifier(t.ReplacementColumn)+` IS NULL`)
	}

	return fmt.Sprintf(`UPDATE %s SET %s WHERE %s RETURNING id`,
		pq.QuoteIdentifier(t.Name), strings.Join(set, ", "), strings.Join(where, " AND ")), nil
}

func dateClause(t SubjectTable, ruleID string, p lifecycle.DatePredicate, param int) (string, error) {
	col, ok := t.DateColumns[p.Field]
	if !ok {
		return "", fmt.Errorf("%w: %s has no column for %s", lifecycle.ErrRuleMisconfigured, t.Name, p.Field)
	}
	switch p.Op {
	case lifecycle.OnOrBefore, lifecycle.Before, lifecycle.OnOrAfter:
	default:
		return "", fmt.Errorf("%w: rule %s: unsupported comparison %q", lifecycle.ErrRuleMisconfigured, ruleID, p.Op)
	}
	return fmt.Sprintf(`%s %s $%d::date`, pq.QuoteIdentifier(col), p.Op, param), nil
}

func (r *PostgresSubjectRepository) Advance(ctx context.Context, rule lifecycle.TransitionRule, asOf time.Time, stampedAt time.Time) ([]int64, error) {
	query, err := advanceQuery(r.table, rule)
	if err != nil {
		return nil, err
	}
	args := []any{rule.Target, stampedAt, rule.Source, rule.When.Threshold(asOf).Format(thresholdLayout)}
	if !rule.AndWhen.IsZero() {
		args = append(args, rule.AndWhen.Threshold(asOf).Format(thresholdLayout))
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error applying rule %s to %s: %w", rule.ID, r.table.Name, err)
	}
	defer rows.Close()
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("error applying rule %s to %s: %w", rule.ID, r.table.Name, err)
	}
	return ids, nil
}

func (r *PostgresSubjectRepository) ListMilestoneSince(ctx context.Context, m lifecycle.Milestone, since time.Time) ([]int64, error) {
	col, ok := r.table.MilestoneColumns[m]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no column for %s", lifecycle.ErrRuleMisconfigured, r.table.Name, m)
	}
	query := fmt.Sprintf(`SELECT id FROM %s WHERE %s >= $1 ORDER BY id`, pq.QuoteIdentifier(r.table.Name), pq.QuoteIdentifier(col))
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("error listing %s stamped since %s: %w", m, since.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ids: %w", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
