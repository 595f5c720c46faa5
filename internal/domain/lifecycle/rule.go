// internal/domain/lifecycle/rule.go
package lifecycle

import (
	"fmt"
	"time"
)

// Comparison is the operator a DatePredicate applies between the subject's date and the threshold.
type Comparison string

const (
	OnOrBefore Comparison = "<="
	Before     Comparison = "<"
	OnOrAfter  Comparison = ">="
)

func (c Comparison) supported() bool {
	return c == OnOrBefore || c == Before || c == OnOrAfter
}

// DatePredicate holds when `Field <Op> asOf + OffsetDays`, compared at date granularity.
// A subject whose field is unset never matches.
type DatePredicate struct {
	Field      DateField
	Op         Comparison
	OffsetDays int
}

// Threshold returns the date the subject's field is compared against.
func (p DatePredicate) Threshold(asOf time.Time) time.Time {
	return DateOnly(asOf).AddDate(0, 0, p.OffsetDays)
}

// Holds evaluates the predicate against a subject.
func (p DatePredicate) Holds(s Subject, asOf time.Time) bool {
	d, ok := s.Date(p.Field)
	if !ok {
		return false
	}
	// Subject dates are calendar dates; read them in their own zone.
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, asOf.Location())
	threshold := p.Threshold(asOf)
	switch p.Op {
	case OnOrBefore:
		return !day.After(threshold)
	case Before:
		return day.Before(threshold)
	case OnOrAfter:
		return !day.Before(threshold)
	default:
		return false
	}
}

// IsZero reports whether the predicate is unset.
func (p DatePredicate) IsZero() bool { return p.Field == "" }

func (p DatePredicate) String() string {
	if p.OffsetDays == 0 {
		return fmt.Sprintf("%s %s asOf", p.Field, p.Op)
	}
	return fmt.Sprintf("%s %s asOf%+dd", p.Field, p.Op, p.OffsetDays)
}

// TransitionRule moves subjects of one type from Source to Target when When (and AndWhen,
// if set) holds. A rule with Source == Target only stamps its Milestone and matches subjects
// whose milestone is still unset. Every rule that notifies stamps a milestone, so a notification
// owed is recorded on the subject in the same write that promotes it.
type TransitionRule struct {
	ID          string
	SubjectType SubjectType
	Source      Status
	Target      Status
	When        DatePredicate
	// AndWhen optionally bounds When, e.g. to stop a notice once its date has passed.
	AndWhen   DatePredicate
	Milestone Milestone
	// RequireOpenChain restricts the rule to subjects that have not been replaced.
	RequireOpenChain bool
}

// MilestoneOnly reports whether the rule stamps a milestone without changing status.
func (r TransitionRule) MilestoneOnly() bool {
	return r.Source == r.Target
}

// NotificationKey is the milestone key under which promoted subjects get a notification task.
// Empty means the rule queues nothing.
func (r TransitionRule) NotificationKey() string {
	return string(r.Milestone)
}

// Matches evaluates the rule's full condition against a subject as of a date.
func (r TransitionRule) Matches(s Subject, asOf time.Time) bool {
	if s.CurrentStatus() != r.Source {
		return false
	}
	if r.MilestoneOnly() {
		if _, stamped := s.MilestoneAt(r.Milestone); stamped {
			return false
		}
	}
	if r.RequireOpenChain && !s.ChainOpen() {
		return false
	}
	if !r.AndWhen.IsZero() && !r.AndWhen.Holds(s, asOf) {
		return false
	}
	return r.When.Holds(s, asOf)
}

// Apply performs the rule's write on a subject that Matches.
func (r TransitionRule) Apply(s Subject, stampedAt time.Time) {
	s.SetStatus(r.Target)
	if r.Milestone != "" {
		s.StampMilestone(r.Milestone, stampedAt)
	}
}

func (r TransitionRule) String() string {
	if r.AndWhen.IsZero() {
		return fmt.Sprintf("%s[%s %s->%s when %s]", r.ID, r.SubjectType, r.Source, r.Target, r.When)
	}
	return fmt.Sprintf("%s[%s %s->%s when %s and %s]", r.ID, r.SubjectType, r.Source, r.Target, r.When, r.AndWhen)
}
