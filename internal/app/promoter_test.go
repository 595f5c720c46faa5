package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"property_lifecycle_engine/internal/domain/cheque"
	"property_lifecycle_engine/internal/domain/lifecycle"
	"property_lifecycle_engine/internal/domain/notification"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func document(id int64, expiry time.Time) *lifecycle.Record {
	return &lifecycle.Record{
		ID:     id,
		Status: lifecycle.DocumentActive,
		Dates:  map[lifecycle.DateField]time.Time{lifecycle.FieldExpiryDate: expiry},
	}
}

func TestPromoteAllIsIdempotent(t *testing.T) {
	asOf := date(2026, 3, 1)
	f := newPromoterFixture(t, asOf)
	ctx := context.Background()
	f.documents.Put(document(1, asOf.AddDate(0, 0, 10)))
	f.invoices.Put(&lifecycle.Record{ID: 1, Status: lifecycle.InvoiceIssued, Dates: map[lifecycle.DateField]time.Time{lifecycle.FieldDueDate: asOf.AddDate(0, 0, 3)}})
	f.compliance.Put(&lifecycle.Record{ID: 1, Status: lifecycle.ComplianceScheduled, Dates: map[lifecycle.DateField]time.Time{lifecycle.FieldNextDueDate: asOf.AddDate(0, 0, 14)}})

	first, err := f.promoter.PromoteAll(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Promoted(), "document expiring plus its notice, invoice, compliance")
	assert.Empty(t, first.Failed)
	tasksAfterFirst := f.taskKeys()
	assert.Len(t, tasksAfterFirst, 3)

	second, err := f.promoter.PromoteAll(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Promoted())
	assert.Equal(t, tasksAfterFirst, f.taskKeys())
}

func TestDocumentNoticesFireOnce(t *testing.T) {
	asOf := date(2026, 3, 1)
	f := newPromoterFixture(t, asOf)
	ctx := context.Background()
	f.documents.Put(document(7, asOf.AddDate(0, 0, 25)))

	res, err := f.promoter.Promote(ctx, lifecycle.SubjectDocument, "document.notice-30", asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Promoted, "notices follow the move to EXPIRING_SOON")

	res, err = f.promoter.Promote(ctx, lifecycle.SubjectDocument, "document.expiring", asOf)
	require.NoError(t, err)
	assert.Equal(t, PromotionResult{SubjectType: lifecycle.SubjectDocument, RuleID: "document.expiring", Promoted: 1}, res)

	res, err = f.promoter.Promote(ctx, lifecycle.SubjectDocument, "document.notice-30", asOf)
	require.NoError(t, err)
	assert.Equal(t, PromotionResult{SubjectType: lifecycle.SubjectDocument, RuleID: "document.notice-30", Promoted: 1, Enqueued: 1}, res)

	doc, _ := f.documents.Get(7)
	assert.Equal(t, lifecycle.DocumentExpiringSoon, doc.Status)
	_, stamped := doc.MilestoneAt(lifecycle.MilestoneNotice30)
	assert.True(t, stamped)

	// Next day: nothing new, no second task.
	summary, err := f.promoter.PromoteAll(ctx, asOf.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Promoted())
	assert.Equal(t, []notification.TaskKey{{SubjectType: lifecycle.SubjectDocument, SubjectID: 7, MilestoneKey: "notice_30"}}, f.taskKeys())

	// Seven days before expiry the milestone-only rule fires, once.
	_, err = f.promoter.PromoteAll(ctx, asOf.AddDate(0, 0, 18))
	require.NoError(t, err)
	_, err = f.promoter.PromoteAll(ctx, asOf.AddDate(0, 0, 19))
	require.NoError(t, err)
	doc, _ = f.documents.Get(7)
	assert.Equal(t, lifecycle.DocumentExpiringSoon, doc.Status)

	// The day after expiry it expires.
	_, err = f.promoter.PromoteAll(ctx, asOf.AddDate(0, 0, 26))
	require.NoError(t, err)
	doc, _ = f.documents.Get(7)
	assert.Equal(t, lifecycle.DocumentExpired, doc.Status)

	assert.Equal(t, []notification.TaskKey{
		{SubjectType: lifecycle.SubjectDocument, SubjectID: 7, MilestoneKey: "notice_30"},
		{SubjectType: lifecycle.SubjectDocument, SubjectID: 7, MilestoneKey: "notice_7"},
		{SubjectType: lifecycle.SubjectDocument, SubjectID: 7, MilestoneKey: "expired_notice"},
	}, f.taskKeys())
}

func TestChequeDueOnItsDate(t *testing.T) {
	today := date(2026, 4, 10)
	f := newPromoterFixture(t, today)
	ctx := context.Background()
	c := &cheque.Cheque{LeaseID: 1, ChequeNumber: "100", Amount: decimal.NewFromInt(9000), ChequeDate: today.AddDate(0, 0, 2), Status: cheque.StatusReceived}
	require.NoError(t, f.cheques.Create(ctx, c))

	asOf := today.AddDate(0, 0, 2)
	summary, err := f.promoter.PromoteAll(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Promoted(), "deposit reminder stamp and move to DUE")

	got, err := f.cheques.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, cheque.StatusDue, got.Status)
	assert.True(t, got.DepositReminderSentAt.Valid)
	assert.True(t, got.DueNoticeSentAt.Valid)

	res, err := f.promoter.Promote(ctx, lifecycle.SubjectCheque, "cheque.due-window", asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Promoted)

	assert.ElementsMatch(t, []notification.TaskKey{
		{SubjectType: lifecycle.SubjectCheque, SubjectID: c.ID, MilestoneKey: "deposit_reminder"},
		{SubjectType: lifecycle.SubjectCheque, SubjectID: c.ID, MilestoneKey: "cheque_due"},
	}, f.taskKeys())
}

func TestReplacementChaseStopsOnceReplaced(t *testing.T) {
	today := date(2026, 4, 10)
	f := newPromoterFixture(t, today)
	ctx := context.Background()

	replaced := &cheque.Cheque{LeaseID: 1, ChequeNumber: "1", Amount: decimal.NewFromInt(10), ChequeDate: today, Status: cheque.StatusReceived}
	open := &cheque.Cheque{LeaseID: 1, ChequeNumber: "2", Amount: decimal.NewFromInt(10), ChequeDate: today, Status: cheque.StatusReceived}
	require.NoError(t, f.cheques.Create(ctx, replaced))
	require.NoError(t, f.cheques.Create(ctx, open))
	for _, id := range []int64{replaced.ID, open.ID} {
		_, err := f.cheques.MarkBounced(ctx, id, "", today)
		require.NoError(t, err)
	}
	_, err := f.cheques.LinkReplacement(ctx, replaced.ID, cheque.Draft{ChequeNumber: "3", Amount: decimal.NewFromInt(10), ChequeDate: today})
	require.NoError(t, err)

	res, err := f.promoter.Promote(ctx, lifecycle.SubjectCheque, "cheque.replacement-chase", today.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Promoted, "bounced less than 3 days ago")

	res, err = f.promoter.Promote(ctx, lifecycle.SubjectCheque, "cheque.replacement-chase", today.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Promoted)
	assert.Equal(t, []notification.TaskKey{{SubjectType: lifecycle.SubjectCheque, SubjectID: open.ID, MilestoneKey: "replacement_chase"}}, f.taskKeys())
}

func TestInvoiceRulesChainWithinOneCycle(t *testing.T) {
	asOf := date(2026, 1, 31)
	f := newPromoterFixture(t, asOf)
	f.invoices.Put(&lifecycle.Record{ID: 5, Status: lifecycle.InvoiceIssued, Dates: map[lifecycle.DateField]time.Time{lifecycle.FieldDueDate: date(2026, 1, 1)}})

	_, err := f.promoter.PromoteAll(context.Background(), asOf)
	require.NoError(t, err)

	inv, _ := f.invoices.Get(5)
	assert.Equal(t, lifecycle.InvoiceOverdue, inv.Status)
	assert.Equal(t, []notification.TaskKey{
		{SubjectType: lifecycle.SubjectInvoice, SubjectID: 5, MilestoneKey: "invoice_due"},
		{SubjectType: lifecycle.SubjectInvoice, SubjectID: 5, MilestoneKey: "overdue_notice"},
	}, f.taskKeys())
}

func TestPromoteRejectsMisconfiguration(t *testing.T) {
	f := newPromoterFixture(t, date(2026, 1, 1))
	ctx := context.Background()

	_, err := f.promoter.Promote(ctx, lifecycle.SubjectDocument, "document.unknown", date(2026, 1, 1))
	assert.ErrorIs(t, err, lifecycle.ErrRuleMisconfigured)

	_, err = f.promoter.Promote(ctx, lifecycle.SubjectInvoice, "document.notice-30", date(2026, 1, 1))
	assert.ErrorIs(t, err, lifecycle.ErrRuleMisconfigured)

	bare := NewPromoter(lifecycle.DefaultTable(), f.tasks, f.clock, 3, nil, testLogger())
	_, err = bare.Promote(ctx, lifecycle.SubjectDocument, "document.notice-30", date(2026, 1, 1))
	assert.ErrorIs(t, err, lifecycle.ErrRuleMisconfigured)
}

func TestPromoteAllStopsOnInvalidTable(t *testing.T) {
	f := newPromoterFixture(t, date(2026, 1, 1))
	table := lifecycle.DefaultTable()
	table.Rules[0].Target = lifecycle.InvoiceIssued
	table.Rules[0].Source = lifecycle.InvoiceDue
	p := NewPromoter(table, f.tasks, f.clock, 3, nil, testLogger())
	p.Register(lifecycle.SubjectInvoice, f.invoices)
	f.invoices.Put(&lifecycle.Record{ID: 1, Status: lifecycle.InvoiceDue, Dates: map[lifecycle.DateField]time.Time{lifecycle.FieldDueDate: date(2025, 1, 1)}})

	_, err := p.PromoteAll(context.Background(), date(2026, 1, 1))
	assert.ErrorIs(t, err, lifecycle.ErrRuleMisconfigured)
	inv, _ := f.invoices.Get(1)
	assert.Equal(t, lifecycle.InvoiceDue, inv.Status, "no record is touched")
}

func TestPromoteAllIsolatesRuleFailures(t *testing.T) {
	asOf := date(2026, 3, 1)
	f := newPromoterFixture(t, asOf)
	f.invoices.FailNext = errors.New("connection reset")
	f.invoices.Put(&lifecycle.Record{ID: 1, Status: lifecycle.InvoiceIssued, Dates: map[lifecycle.DateField]time.Time{lifecycle.FieldDueDate: asOf}})
	f.documents.Put(document(1, asOf))

	summary, err := f.promoter.PromoteAll(context.Background(), asOf)
	require.NoError(t, err)
	require.Contains(t, summary.Failed, "invoice.due-window")
	assert.Len(t, summary.Failed, 1)
	doc, _ := f.documents.Get(1)
	assert.Equal(t, lifecycle.DocumentExpiringSoon, doc.Status)
}

func TestEnqueueFailureIsCountedAndReconciled(t *testing.T) {
	asOf := date(2026, 3, 1)
	f := newPromoterFixture(t, asOf)
	ctx := context.Background()
	f.documents.Put(document(1, asOf.AddDate(0, 0, 20)))
	f.documents.Put(document(2, asOf.AddDate(0, 0, 21)))

	_, err := f.promoter.Promote(ctx, lifecycle.SubjectDocument, "document.expiring", asOf)
	require.NoError(t, err)

	f.tasks.FailEnqueue = errors.New("insert failed")
	res, err := f.promoter.Promote(ctx, lifecycle.SubjectDocument, "document.notice-30", asOf)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Promoted)
	assert.Equal(t, 2, res.EnqueueFailed)
	assert.Equal(t, 0, res.Enqueued)
	assert.Empty(t, f.taskKeys())

	f.tasks.FailEnqueue = nil
	created, err := f.promoter.ReconcileMilestones(ctx, asOf, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = f.promoter.ReconcileMilestones(ctx, asOf, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, f.taskKeys(), 2)
}

func TestDueNoticeSurvivesEnqueueFailure(t *testing.T) {
	asOf := date(2026, 3, 1)
	f := newPromoterFixture(t, asOf)
	ctx := context.Background()
	f.invoices.Put(&lifecycle.Record{ID: 4, Status: lifecycle.InvoiceIssued, Dates: map[lifecycle.DateField]time.Time{lifecycle.FieldDueDate: asOf.AddDate(0, 0, 3)}})

	f.tasks.FailEnqueue = errors.New("insert failed")
	res, err := f.promoter.Promote(ctx, lifecycle.SubjectInvoice, "invoice.due-window", asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Promoted)
	assert.Equal(t, 1, res.EnqueueFailed)
	f.tasks.FailEnqueue = nil

	inv, _ := f.invoices.Get(4)
	assert.Equal(t, lifecycle.InvoiceDue, inv.Status)
	_, stamped := inv.MilestoneAt(lifecycle.MilestoneInvoiceDue)
	require.True(t, stamped, "the stamp is what lets the notice be recovered")

	summary, err := f.promoter.PromoteAll(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Promoted(), "the invoice has already moved")
	assert.Empty(t, f.taskKeys())

	created, err := f.promoter.ReconcileMilestones(ctx, asOf, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, []notification.TaskKey{{SubjectType: lifecycle.SubjectInvoice, SubjectID: 4, MilestoneKey: "invoice_due"}}, f.taskKeys())
}

func TestLapsedDocumentOnlyGetsExpiredNotice(t *testing.T) {
	asOf := date(2026, 3, 1)
	f := newPromoterFixture(t, asOf)
	ctx := context.Background()
	f.documents.Put(document(9, asOf.AddDate(0, 0, -5)))
	f.vendorDocs.Put(&lifecycle.Record{ID: 9, Status: lifecycle.DocumentValid, Dates: map[lifecycle.DateField]time.Time{lifecycle.FieldExpiryDate: asOf.AddDate(0, 0, -1)}})

	_, err := f.promoter.PromoteAll(ctx, asOf)
	require.NoError(t, err)

	doc, _ := f.documents.Get(9)
	assert.Equal(t, lifecycle.DocumentExpired, doc.Status)
	vdoc, _ := f.vendorDocs.Get(9)
	assert.Equal(t, lifecycle.DocumentExpired, vdoc.Status)
	assert.ElementsMatch(t, []notification.TaskKey{
		{SubjectType: lifecycle.SubjectDocument, SubjectID: 9, MilestoneKey: "expired_notice"},
		{SubjectType: lifecycle.SubjectVendorDocument, SubjectID: 9, MilestoneKey: "expired_notice"},
	}, f.taskKeys())
}

func TestDocumentExpiringTodayStillGetsNotices(t *testing.T) {
	asOf := date(2026, 3, 1)
	f := newPromoterFixture(t, asOf)
	ctx := context.Background()
	f.documents.Put(document(3, asOf))

	_, err := f.promoter.PromoteAll(ctx, asOf)
	require.NoError(t, err)
	doc, _ := f.documents.Get(3)
	assert.Equal(t, lifecycle.DocumentExpiringSoon, doc.Status)

	_, err = f.promoter.PromoteAll(ctx, asOf.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, []notification.TaskKey{
		{SubjectType: lifecycle.SubjectDocument, SubjectID: 3, MilestoneKey: "notice_30"},
		{SubjectType: lifecycle.SubjectDocument, SubjectID: 3, MilestoneKey: "notice_7"},
		{SubjectType: lifecycle.SubjectDocument, SubjectID: 3, MilestoneKey: "expired_notice"},
	}, f.taskKeys())
}

var documentRank = map[lifecycle.Status]int{
	lifecycle.DocumentActive:       0,
	lifecycle.DocumentExpiringSoon: 1,
	lifecycle.DocumentExpired:      2,
}

func TestPromotionProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		start := date(2026, 1, 1)
		f := newPromoterFixture(t, start)
		ctx := context.Background()

		n := rapid.IntRange(1, 8).Draw(rt, "documents")
		for i := 1; i <= n; i++ {
			offset := rapid.IntRange(-40, 60).Draw(rt, "expiry")
			f.documents.Put(document(int64(i), start.AddDate(0, 0, offset)))
		}

		asOf := start
		prev := make(map[int64]lifecycle.Status)
		steps := rapid.IntRange(1, 10).Draw(rt, "steps")
		for s := 0; s < steps; s++ {
			asOf = asOf.AddDate(0, 0, rapid.IntRange(0, 20).Draw(rt, "advance"))
			f.clock.Set(asOf)

			if _, err := f.promoter.PromoteAll(ctx, asOf); err != nil {
				rt.Fatalf("promote: %v", err)
			}
			again, err := f.promoter.PromoteAll(ctx, asOf)
			if err != nil {
				rt.Fatalf("promote again: %v", err)
			}
			if again.Promoted() != 0 {
				rt.Fatalf("second run on %s promoted %d", asOf.Format("2006-01-02"), again.Promoted())
			}

			for i := 1; i <= n; i++ {
				doc, _ := f.documents.Get(int64(i))
				if before, ok := prev[doc.ID]; ok && documentRank[doc.Status] < documentRank[before] {
					rt.Fatalf("document %d moved back from %s to %s", doc.ID, before, doc.Status)
				}
				prev[doc.ID] = doc.Status
			}
		}

		// One task per stamped milestone, never more.
		stamped := 0
		for i := 1; i <= n; i++ {
			doc, _ := f.documents.Get(int64(i))
			stamped += len(doc.Milestones)
		}
		if got := len(f.taskKeys()); got != stamped {
			rt.Fatalf("%d tasks for %d stamped milestones", got, stamped)
		}
	})
}
