package cheque

import (
	"database/sql"
	"time"

	"property_lifecycle_engine/internal/domain/lifecycle"

	"github.com/shopspring/decimal"
)

// Status aliases for readability at call sites.
const (
	StatusReceived  = lifecycle.ChequeReceived
	StatusDue       = lifecycle.ChequeDue
	StatusDeposited = lifecycle.ChequeDeposited
	StatusCleared   = lifecycle.ChequeCleared
	StatusBounced   = lifecycle.ChequeBounced
)

// Cheque is a post-dated cheque received against a lease.
// OriginalID and ReplacementID link it into a replacement chain.
type Cheque struct {
	ID                     int64
	LeaseID                int64
	ChequeNumber           string
	BankName               string
	Amount                 decimal.Decimal
	ChequeDate             time.Time
	Status                 lifecycle.Status
	BouncedOn              sql.NullTime
	BounceReason           sql.NullString
	DepositReminderSentAt  sql.NullTime
	DueNoticeSentAt        sql.NullTime
	ReplacementChaseSentAt sql.NullTime
	OriginalID             sql.NullInt64 // The instrument this one replaces
	ReplacementID          sql.NullInt64 // The instrument that replaced this one
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Draft carries the business data of a replacement cheque.
type Draft struct {
	ChequeNumber string
	BankName     string
	Amount       decimal.Decimal
	ChequeDate   time.Time
}

// Bounceable reports whether a bounce may be recorded against a cheque in status s.
func Bounceable(s lifecycle.Status) bool {
	return s == StatusReceived || s == StatusDue || s == StatusDeposited
}

func (c *Cheque) SubjectID() int64 { return c.ID }
func (c *Cheque) CurrentStatus() lifecycle.Status { return c.Status }
func (c *Cheque) SetStatus(s lifecycle.Status) { c.Status = s }
func (c *Cheque) ChainOpen() bool { return !c.ReplacementID.Valid }

func (c *Cheque) Date(f lifecycle.DateField) (time.Time, bool) {
	switch f {
	case lifecycle.FieldChequeDate:
		return c.ChequeDate, !c.ChequeDate.IsZero()
	case lifecycle.FieldBouncedOn:
		return c.BouncedOn.Time, c.BouncedOn.Valid
	}
	return time.Time{}, false
}

func (c *Cheque) milestone(m lifecycle.Milestone) *sql.NullTime {
	switch m {
	case lifecycle.MilestoneDepositReminder:
		return &c.DepositReminderSentAt
	case lifecycle.MilestoneChequeDue:
		return &c.DueNoticeSentAt
	case lifecycle.MilestoneReplacementChase:
		return &c.ReplacementChaseSentAt
	}
	return nil
}

func (c *Cheque) MilestoneAt(m lifecycle.Milestone) (time.Time, bool) {
	if f := c.milestone(m); f != nil && f.Valid {
		return f.Time, true
	}
	return time.Time{}, false
}

func (c *Cheque) StampMilestone(m lifecycle.Milestone, at time.Time) {
	if f := c.milestone(m); f != nil && !f.Valid {
		*f = sql.NullTime{Time: at, Valid: true}
	}
}
