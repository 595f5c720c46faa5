package lifecycle

// Rent invoice statuses.
const (
	InvoiceIssued    Status = "ISSUED"
	InvoiceDue       Status = "DUE"
	InvoiceOverdue   Status = "OVERDUE"
	InvoicePaid      Status = "PAID"
	InvoiceCancelled Status = "CANCELLED"
)

// Post-dated cheque statuses.
const (
	ChequeReceived  Status = "RECEIVED"
	ChequeDue       Status = "DUE"
	ChequeDeposited Status = "DEPOSITED"
	ChequeCleared   Status = "CLEARED"
	ChequeBounced   Status = "BOUNCED"
)

// Compliance schedule statuses.
const (
	ComplianceScheduled Status = "SCHEDULED"
	ComplianceDueSoon   Status = "DUE_SOON"
	ComplianceOverdue   Status = "OVERDUE"
	ComplianceCompleted Status = "COMPLETED"
)

// Document statuses. Vendor documents start at VALID instead of ACTIVE.
const (
	DocumentActive       Status = "ACTIVE"
	DocumentValid        Status = "VALID"
	DocumentExpiringSoon Status = "EXPIRING_SOON"
	DocumentExpired      Status = "EXPIRED"
	DocumentArchived     Status = "ARCHIVED"
)

// DefaultTable returns the rule table shipped with the service.
func DefaultTable() *Table {
	return &Table{
		Subjects: []SubjectSpec{
			{
				Type: SubjectInvoice,
				Statuses: []StatusDef{
					{Status: InvoiceIssued},
					{Status: InvoiceDue},
					{Status: InvoiceOverdue},
					{Status: InvoicePaid, Terminal: true},
					{Status: InvoiceCancelled, Terminal: true},
				},
				DateFields: []DateField{FieldDueDate},
				Milestones: []Milestone{MilestoneInvoiceDue, MilestoneOverdueNotice},
			},
			{
				Type: SubjectCheque,
				Statuses: []StatusDef{
					{Status: ChequeReceived},
					{Status: ChequeDue},
					{Status: ChequeDeposited},
					{Status: ChequeCleared, Terminal: true},
					{Status: ChequeBounced, Terminal: true},
				},
				DateFields: []DateField{FieldChequeDate, FieldBouncedOn},
				Milestones: []Milestone{MilestoneDepositReminder, MilestoneChequeDue, MilestoneReplacementChase},
				Chained:    true,
			},
			{
				Type: SubjectCompliance,
				Statuses: []StatusDef{
					{Status: ComplianceScheduled},
					{Status: ComplianceDueSoon},
					{Status: ComplianceOverdue},
					{Status: ComplianceCompleted, Terminal: true},
				},
				DateFields: []DateField{FieldNextDueDate},
				Milestones: []Milestone{MilestoneReminder14, MilestoneOverdueNotice},
			},
			{
				Type: SubjectDocument,
				Statuses: []StatusDef{
					{Status: DocumentActive},
					{Status: DocumentExpiringSoon},
					{Status: DocumentExpired, Terminal: true},
					{Status: DocumentArchived, Terminal: true},
				},
				DateFields: []DateField{FieldExpiryDate},
				Milestones: []Milestone{MilestoneNotice30, MilestoneNotice7, MilestoneExpiredNotice},
			},
			{
				Type: SubjectVendorDocument,
				Statuses: []StatusDef{
					{Status: DocumentValid},
					{Status: DocumentExpiringSoon},
					{Status: DocumentExpired, Terminal: true},
				},
				DateFields: []DateField{FieldExpiryDate},
				Milestones: []Milestone{MilestoneNotice30, MilestoneExpiredNotice},
			},
		},
		Rules: []TransitionRule{
			{
				ID: "invoice.due-window", SubjectType: SubjectInvoice,
				Source: InvoiceIssued, Target: InvoiceDue,
				When:      DatePredicate{Field: FieldDueDate, Op: OnOrBefore, OffsetDays: 7},
				Milestone: MilestoneInvoiceDue,
			},
			{
				ID: "invoice.overdue", SubjectType: SubjectInvoice,
				Source: InvoiceDue, Target: InvoiceOverdue,
				When:      DatePredicate{Field: FieldDueDate, Op: Before},
				Milestone: MilestoneOverdueNotice,
			},
			{
				ID: "cheque.deposit-reminder", SubjectType: SubjectCheque,
				Source: ChequeReceived, Target: ChequeReceived,
				When:      DatePredicate{Field: FieldChequeDate, Op: OnOrBefore, OffsetDays: 3},
				Milestone: MilestoneDepositReminder,
			},
			{
				ID: "cheque.due-window", SubjectType: SubjectCheque,
				Source: ChequeReceived, Target: ChequeDue,
				When:      DatePredicate{Field: FieldChequeDate, Op: OnOrBefore},
				Milestone: MilestoneChequeDue,
			},
			{
				ID: "cheque.replacement-chase", SubjectType: SubjectCheque,
				Source: ChequeBounced, Target: ChequeBounced,
				When:             DatePredicate{Field: FieldBouncedOn, Op: OnOrBefore, OffsetDays: -3},
				Milestone:        MilestoneReplacementChase,
				RequireOpenChain: true,
			},
			{
				ID: "compliance.due-soon", SubjectType: SubjectCompliance,
				Source: ComplianceScheduled, Target: ComplianceDueSoon,
				When:      DatePredicate{Field: FieldNextDueDate, Op: OnOrBefore, OffsetDays: 14},
				Milestone: MilestoneReminder14,
			},
			{
				ID: "compliance.overdue", SubjectType: SubjectCompliance,
				Source: ComplianceDueSoon, Target: ComplianceOverdue,
				When:      DatePredicate{Field: FieldNextDueDate, Op: Before},
				Milestone: MilestoneOverdueNotice,
			},
			{
				ID: "document.expiring", SubjectType: SubjectDocument,
				Source: DocumentActive, Target: DocumentExpiringSoon,
				When: DatePredicate{Field: FieldExpiryDate, Op: OnOrBefore, OffsetDays: 30},
			},
			// Notices stop once the expiry date has passed; an expired document only gets
			// the expired notice.
			{
				ID: "document.notice-30", SubjectType: SubjectDocument,
				Source: DocumentExpiringSoon, Target: DocumentExpiringSoon,
				When:      DatePredicate{Field: FieldExpiryDate, Op: OnOrBefore, OffsetDays: 30},
				AndWhen:   DatePredicate{Field: FieldExpiryDate, Op: OnOrAfter},
				Milestone: MilestoneNotice30,
			},
			{
				ID: "document.notice-7", SubjectType: SubjectDocument,
				Source: DocumentExpiringSoon, Target: DocumentExpiringSoon,
				When:      DatePredicate{Field: FieldExpiryDate, Op: OnOrBefore, OffsetDays: 7},
				AndWhen:   DatePredicate{Field: FieldExpiryDate, Op: OnOrAfter},
				Milestone: MilestoneNotice7,
			},
			{
				ID: "document.expired", SubjectType: SubjectDocument,
				Source: DocumentExpiringSoon, Target: DocumentExpired,
				When:      DatePredicate{Field: FieldExpiryDate, Op: Before},
				Milestone: MilestoneExpiredNotice,
			},
			{
				ID: "vendor_document.expiring", SubjectType: SubjectVendorDocument,
				Source: DocumentValid, Target: DocumentExpiringSoon,
				When: DatePredicate{Field: FieldExpiryDate, Op: OnOrBefore, OffsetDays: 30},
			},
			{
				ID: "vendor_document.notice-30", SubjectType: SubjectVendorDocument,
				Source: DocumentExpiringSoon, Target: DocumentExpiringSoon,
				When:      DatePredicate{Field: FieldExpiryDate, Op: OnOrBefore, OffsetDays: 30},
				AndWhen:   DatePredicate{Field: FieldExpiryDate, Op: OnOrAfter},
				Milestone: MilestoneNotice30,
			},
			{
				ID: "vendor_document.expired", SubjectType: SubjectVendorDocument,
				Source: DocumentExpiringSoon, Target: DocumentExpired,
				When:      DatePredicate{Field: FieldExpiryDate, Op: Before},
				Milestone: MilestoneExpiredNotice,
			},
		},
	}
}
