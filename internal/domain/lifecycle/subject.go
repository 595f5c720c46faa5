// internal/domain/lifecycle/subject.go
package lifecycle

import "time"

// SubjectType names an entity whose status is advanced by date comparison.
type SubjectType string

const (
	SubjectInvoice        SubjectType = "invoice"
	SubjectCheque         SubjectType = "cheque"
	SubjectCompliance     SubjectType = "compliance"
	SubjectDocument       SubjectType = "document"
	SubjectVendorDocument SubjectType = "vendor_document"
)

// Status is a subject status. Valid values are declared per subject type in the Table.
type Status string

// DateField names a date column that gates transitions (due date, cheque date, expiry date...).
type DateField string

const (
	FieldDueDate     DateField = "due_date"
	FieldChequeDate  DateField = "cheque_date"
	FieldBouncedOn   DateField = "bounced_on"
	FieldNextDueDate DateField = "next_due_date"
	FieldExpiryDate  DateField = "expiry_date"
)

// Milestone names a one-way flag recording that a notification was queued for a subject.
type Milestone string

const (
	MilestoneInvoiceDue       Milestone = "invoice_due"
	MilestoneChequeDue        Milestone = "cheque_due"
	MilestoneOverdueNotice    Milestone = "overdue_notice"
	MilestoneDepositReminder  Milestone = "deposit_reminder"
	MilestoneReplacementChase Milestone = "replacement_chase"
	MilestoneReminder14       Milestone = "reminder_14"
	MilestoneNotice30         Milestone = "notice_30"
	MilestoneNotice7          Milestone = "notice_7"
	MilestoneExpiredNotice    Milestone = "expired_notice"
)

// Subject is the capability a record must offer so that rules can be evaluated and applied
// against it without knowing its concrete type.
type Subject interface {
	SubjectID() int64
	CurrentStatus() Status
	SetStatus(Status)
	// Date returns the value of a gating date field; ok is false when the field is unset or unknown.
	Date(DateField) (t time.Time, ok bool)
	// MilestoneAt returns when the milestone was stamped; ok is false while it is unset.
	MilestoneAt(Milestone) (t time.Time, ok bool)
	// StampMilestone sets the milestone if it is still unset. Existing stamps are kept.
	StampMilestone(m Milestone, at time.Time)
	// ChainOpen reports whether the subject has no replacement linked to it.
	ChainOpen() bool
}

// Record is a generic Subject used for subject types that need no dedicated model in this
// service (invoices, compliance schedules, documents, vendor documents).
type Record struct {
	ID            int64
	Status        Status
	Dates         map[DateField]time.Time
	Milestones    map[Milestone]time.Time
	ReplacementID int64
	UpdatedAt     time.Time
}

func (r *Record) SubjectID() int64 { return r.ID }
func (r *Record) CurrentStatus() Status { return r.Status }
func (r *Record) SetStatus(s Status) { r.Status = s }
func (r *Record) ChainOpen() bool { return r.ReplacementID == 0 }

func (r *Record) Date(f DateField) (time.Time, bool) {
	t, ok := r.Dates[f]
	return t, ok
}

func (r *Record) MilestoneAt(m Milestone) (time.Time, bool) {
	t, ok := r.Milestones[m]
	return t, ok
}

func (r *Record) StampMilestone(m Milestone, at time.Time) {
	if r.Milestones == nil {
		r.Milestones = make(map[Milestone]time.Time)
	}
	if _, ok := r.Milestones[m]; ok {
		return
	}
	r.Milestones[m] = at
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
