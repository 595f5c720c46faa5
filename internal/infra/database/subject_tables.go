package database

import (
	"fmt"

	"property_lifecycle_engine/internal/domain/lifecycle"
)

// SubjectTable maps a subject type onto its table: which columns hold the status,
// the gating dates, the milestone stamps and the replacement link.
type SubjectTable struct {
	Name             string
	DateColumns      map[lifecycle.DateField]string
	MilestoneColumns map[lifecycle.Milestone]string
	// ReplacementColumn is empty for subjects that are never replaced.
	ReplacementColumn string
}

// DefaultSubjectTables returns the table mapping matching migrations/000001_init.up.sql.
func DefaultSubjectTables() map[lifecycle.SubjectType]SubjectTable {
	return map[lifecycle.SubjectType]SubjectTable{
		lifecycle.SubjectInvoice: {
			Name:        "rent_invoices",
			DateColumns: map[lifecycle.DateField]string{lifecycle.FieldDueDate: "due_date"},
			MilestoneColumns: map[lifecycle.Milestone]string{
				lifecycle.MilestoneInvoiceDue:    "due_notice_sent_at",
				lifecycle.MilestoneOverdueNotice: "overdue_notice_sent_at",
			},
		},
		lifecycle.SubjectCheque: {
			Name: "post_dated_cheques",
			DateColumns: map[lifecycle.DateField]string{
				lifecycle.FieldChequeDate: "cheque_date",
				lifecycle.FieldBouncedOn:  "bounced_on",
			},
			MilestoneColumns: map[lifecycle.Milestone]string{
				lifecycle.MilestoneDepositReminder:  "deposit_reminder_sent_at",
				lifecycle.MilestoneChequeDue:        "due_notice_sent_at",
				lifecycle.MilestoneReplacementChase: "replacement_chase_sent_at",
			},
			ReplacementColumn: "replacement_id",
		},
		lifecycle.SubjectCompliance: {
			Name:        "compliance_schedules",
			DateColumns: map[lifecycle.DateField]string{lifecycle.FieldNextDueDate: "next_due_date"},
			MilestoneColumns: map[lifecycle.Milestone]string{
				lifecycle.MilestoneReminder14:    "reminder_14_sent_at",
				lifecycle.MilestoneOverdueNotice: "overdue_notice_sent_at",
			},
		},
		lifecycle.SubjectDocument: {
			Name:        "documents",
			DateColumns: map[lifecycle.DateField]string{lifecycle.FieldExpiryDate: "expiry_date"},
			MilestoneColumns: map[lifecycle.Milestone]string{
				lifecycle.MilestoneNotice30:      "notice_30_sent_at",
				lifecycle.MilestoneNotice7:       "notice_7_sent_at",
				lifecycle.MilestoneExpiredNotice: "expired_notice_sent_at",
			},
		},
		lifecycle.SubjectVendorDocument: {
			Name:        "vendor_documents",
			DateColumns: map[lifecycle.DateField]string{lifecycle.FieldExpiryDate: "expiry_date"},
			MilestoneColumns: map[lifecycle.Milestone]string{
				lifecycle.MilestoneNotice30:      "notice_30_sent_at",
				lifecycle.MilestoneExpiredNotice: "expired_notice_sent_at",
			},
		},
	}
}

// Covers checks that the table maps every date field and milestone the subject spec declares.
func (t SubjectTable) Covers(spec lifecycle.SubjectSpec) error {
	if t.Name == "" {
		return fmt.Errorf("%w: no table for %s", lifecycle.ErrRuleMisconfigured, spec.Type)
	}
	for _, f := range spec.DateFields {
		if t.DateColumns[f] == "" {
			return fmt.Errorf("%w: %s has no column for date field %s", lifecycle.ErrRuleMisconfigured, t.Name, f)
		}
	}
	for _, m := range spec.Milestones {
		if t.MilestoneColumns[m] == "" {
			return fmt.Errorf("%w: %s has no column for milestone %s", lifecycle.ErrRuleMisconfigured, t.Name, m)
		}
	}
	if spec.Chained && t.ReplacementColumn == "" {
		return fmt.Errorf("%w: %s has no replacement column", lifecycle.ErrRuleMisconfigured, t.Name)
	}
	return nil
}
