package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDatePredicateHolds(t *testing.T) {
	asOf := time.Date(2026, 1, 10, 15, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		pred DatePredicate
		date time.Time
		want bool
	}{
		{"on or before, same day", DatePredicate{FieldDueDate, OnOrBefore, 0}, day(2026, 1, 10), true},
		{"on or before, next day", DatePredicate{FieldDueDate, OnOrBefore, 0}, day(2026, 1, 11), false},
		{"before, same day", DatePredicate{FieldDueDate, Before, 0}, day(2026, 1, 10), false},
		{"before, previous day", DatePredicate{FieldDueDate, Before, 0}, day(2026, 1, 9), true},
		{"window of 7 days, edge", DatePredicate{FieldDueDate, OnOrBefore, 7}, day(2026, 1, 17), true},
		{"window of 7 days, outside", DatePredicate{FieldDueDate, OnOrBefore, 7}, day(2026, 1, 18), false},
		{"negative offset", DatePredicate{FieldBouncedOn, OnOrBefore, -3}, day(2026, 1, 7), true},
		{"negative offset, too recent", DatePredicate{FieldBouncedOn, OnOrBefore, -3}, day(2026, 1, 8), false},
		{"on or after, same day", DatePredicate{FieldExpiryDate, OnOrAfter, 0}, day(2026, 1, 10), true},
		{"on or after, previous day", DatePredicate{FieldExpiryDate, OnOrAfter, 0}, day(2026, 1, 9), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Record{Dates: map[DateField]time.Time{tt.pred.Field: tt.date}}
			assert.Equal(t, tt.want, tt.pred.Holds(r, asOf))
		})
	}
}

func TestDatePredicateUnsetDateNeverHolds(t *testing.T) {
	p := DatePredicate{Field: FieldExpiryDate, Op: OnOrBefore, OffsetDays: 30}
	assert.False(t, p.Holds(&Record{}, time.Now()))
}

func TestDatePredicateIgnoresTimeOfDay(t *testing.T) {
	p := DatePredicate{Field: FieldDueDate, Op: OnOrBefore}
	// A DATE column scanned by the driver arrives as midnight UTC; asOf is a local instant.
	dubai := time.FixedZone("GST", 4*60*60)
	r := &Record{Dates: map[DateField]time.Time{FieldDueDate: day(2026, 1, 10)}}
	assert.True(t, p.Holds(r, time.Date(2026, 1, 10, 0, 5, 0, 0, dubai)))
	assert.False(t, p.Holds(r, time.Date(2026, 1, 9, 23, 55, 0, 0, dubai)))
}

func TestDatePredicateMonotoneInAsOf(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		offset := rapid.IntRange(-60, 60).Draw(rt, "offset")
		op := rapid.SampledFrom([]Comparison{OnOrBefore, Before}).Draw(rt, "op")
		date := day(2026, 1, 1).AddDate(0, 0, rapid.IntRange(0, 365).Draw(rt, "date"))
		asOf := day(2026, 1, 1).AddDate(0, 0, rapid.IntRange(0, 365).Draw(rt, "asOf"))
		later := asOf.AddDate(0, 0, rapid.IntRange(0, 30).Draw(rt, "later"))

		p := DatePredicate{Field: FieldExpiryDate, Op: op, OffsetDays: offset}
		r := &Record{Dates: map[DateField]time.Time{FieldExpiryDate: date}}
		if p.Holds(r, asOf) && !p.Holds(r, later) {
			rt.Fatalf("%s held at %s but not at %s for %s", p, asOf, later, date)
		}
	})
}

func TestRuleMatchesAndApply(t *testing.T) {
	asOf := day(2026, 1, 10)
	stamp := time.Date(2026, 1, 10, 6, 0, 0, 0, time.UTC)
	notice7 := TransitionRule{
		ID: "document.notice-7", SubjectType: SubjectDocument,
		Source: DocumentExpiringSoon, Target: DocumentExpiringSoon,
		When:      DatePredicate{Field: FieldExpiryDate, Op: OnOrBefore, OffsetDays: 7},
		Milestone: MilestoneNotice7,
	}
	doc := &Record{ID: 1, Status: DocumentExpiringSoon, Dates: map[DateField]time.Time{FieldExpiryDate: day(2026, 1, 15)}}

	assert.True(t, notice7.MilestoneOnly())
	assert.Equal(t, "notice_7", notice7.NotificationKey())
	assert.True(t, notice7.Matches(doc, asOf))

	notice7.Apply(doc, stamp)
	assert.Equal(t, DocumentExpiringSoon, doc.Status)
	at, ok := doc.MilestoneAt(MilestoneNotice7)
	assert.True(t, ok)
	assert.Equal(t, stamp, at)
	assert.False(t, notice7.Matches(doc, asOf), "milestone-only rule must not match once stamped")

	doc.StampMilestone(MilestoneNotice7, stamp.Add(time.Hour))
	at, _ = doc.MilestoneAt(MilestoneNotice7)
	assert.Equal(t, stamp, at, "existing stamp is kept")
}

func TestRuleRequiresOpenChain(t *testing.T) {
	chase := TransitionRule{
		ID: "chase", SubjectType: SubjectCheque, Source: ChequeBounced, Target: ChequeBounced,
		When:      DatePredicate{Field: FieldBouncedOn, Op: OnOrBefore, OffsetDays: -3},
		Milestone: MilestoneReplacementChase, RequireOpenChain: true,
	}
	r := &Record{ID: 1, Status: ChequeBounced, Dates: map[DateField]time.Time{FieldBouncedOn: day(2026, 1, 1)}}
	assert.True(t, chase.Matches(r, day(2026, 1, 10)))
	r.ReplacementID = 2
	assert.False(t, chase.Matches(r, day(2026, 1, 10)))
}

func TestRuleNotificationKey(t *testing.T) {
	assert.Equal(t, "invoice_due", TransitionRule{Milestone: MilestoneInvoiceDue}.NotificationKey())
	assert.Empty(t, TransitionRule{Source: DocumentActive, Target: DocumentExpiringSoon}.NotificationKey())
}

func TestDueWindowRulesStampMilestones(t *testing.T) {
	// Reconciliation replays only stamped milestones, so a notice without one is lost on a failed enqueue.
	want := map[string]Milestone{
		"invoice.due-window": MilestoneInvoiceDue,
		"cheque.due-window":  MilestoneChequeDue,
	}
	for _, r := range DefaultTable().Rules {
		if m, ok := want[r.ID]; ok {
			assert.Equal(t, m, r.Milestone, r.ID)
			assert.Equal(t, string(m), r.NotificationKey(), r.ID)
			delete(want, r.ID)
		}
	}
	assert.Empty(t, want)
}

func TestRuleAndWhenBoundsTheWindow(t *testing.T) {
	notice30 := TransitionRule{
		ID: "document.notice-30", SubjectType: SubjectDocument,
		Source: DocumentExpiringSoon, Target: DocumentExpiringSoon,
		When:      DatePredicate{Field: FieldExpiryDate, Op: OnOrBefore, OffsetDays: 30},
		AndWhen:   DatePredicate{Field: FieldExpiryDate, Op: OnOrAfter},
		Milestone: MilestoneNotice30,
	}
	asOf := day(2026, 3, 1)
	doc := func(exp time.Time) *Record {
		return &Record{ID: 1, Status: DocumentExpiringSoon, Dates: map[DateField]time.Time{FieldExpiryDate: exp}}
	}
	assert.True(t, notice30.Matches(doc(day(2026, 3, 31)), asOf))
	assert.True(t, notice30.Matches(doc(asOf), asOf), "expiring today still gets the notice")
	assert.False(t, notice30.Matches(doc(day(2026, 2, 28)), asOf), "already expired")
	assert.False(t, notice30.Matches(doc(day(2026, 4, 1)), asOf), "outside the window")
	assert.Contains(t, notice30.String(), "and expiry_date >=")
}
