// internal/domain/lifecycle/table.go
package lifecycle

import (
	"errors"
	"fmt"
)

// ErrRuleMisconfigured marks a rule table or rule lookup problem detected before any record is touched.
var ErrRuleMisconfigured = errors.New("transition rule misconfigured")

// StatusDef declares one status of a subject type. Statuses are listed in forward order.
type StatusDef struct {
	Status   Status
	Terminal bool
}

// SubjectSpec declares what a subject type exposes to the rule table.
type SubjectSpec struct {
	Type       SubjectType
	Statuses   []StatusDef
	DateFields []DateField
	Milestones []Milestone
	// Chained subjects can be replaced by a newer instance of the same type.
	Chained bool
}

func (s SubjectSpec) rank(st Status) (int, bool) {
	for i, d := range s.Statuses {
		if d.Status == st {
			return i, true
		}
	}
	return 0, false
}

func (s SubjectSpec) terminal(st Status) bool {
	for _, d := range s.Statuses {
		if d.Status == st {
			return d.Terminal
		}
	}
	return false
}

// HasDateField reports whether the subject type exposes f.
func (s SubjectSpec) HasDateField(f DateField) bool {
	for _, d := range s.DateFields {
		if d == f {
			return true
		}
	}
	return false
}

// HasMilestone reports whether the subject type exposes m.
func (s SubjectSpec) HasMilestone(m Milestone) bool {
	for _, d := range s.Milestones {
		if d == m {
			return true
		}
	}
	return false
}

// Table is the static transition rule table. Rules run in slice order within a subject type.
type Table struct {
	Subjects []SubjectSpec
	Rules    []TransitionRule
}

// Spec returns the declaration of a subject type.
func (t *Table) Spec(st SubjectType) (SubjectSpec, bool) {
	for _, s := range t.Subjects {
		if s.Type == st {
			return s, true
		}
	}
	return SubjectSpec{}, false
}

// Rule looks a rule up by subject type and id.
func (t *Table) Rule(st SubjectType, id string) (TransitionRule, error) {
	for _, r := range t.Rules {
		if r.ID != id {
			continue
		}
		if r.SubjectType != st {
			return TransitionRule{}, fmt.Errorf("%w: rule %s belongs to %s, not %s", ErrRuleMisconfigured, id, r.SubjectType, st)
		}
		return r, nil
	}
	return TransitionRule{}, fmt.Errorf("%w: no rule %s for %s", ErrRuleMisconfigured, id, st)
}

// RulesFor returns the rules of one subject type in execution order.
func (t *Table) RulesFor(st SubjectType) []TransitionRule {
	var out []TransitionRule
	for _, r := range t.Rules {
		if r.SubjectType == st {
			out = append(out, r)
		}
	}
	return out
}

// Validate checks the table's static invariants: rules only move forward, reference declared
// fields, and no two status-changing rules of a subject type compete for the same source status.
func (t *Table) Validate() error {
	var errs []error
	seenSubject := make(map[SubjectType]bool)
	for _, s := range t.Subjects {
		if seenSubject[s.Type] {
			errs = append(errs, fmt.Errorf("subject %s declared twice", s.Type))
		}
		seenSubject[s.Type] = true
		if len(s.Statuses) == 0 {
			errs = append(errs, fmt.Errorf("subject %s declares no statuses", s.Type))
		}
	}

	seenID := make(map[string]bool)
	sources := make(map[SubjectType]map[Status]string)
	for _, r := range t.Rules {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("rule for %s has no id", r.SubjectType))
			continue
		}
		if seenID[r.ID] {
			errs = append(errs, fmt.Errorf("rule %s: duplicate id", r.ID))
		}
		seenID[r.ID] = true

		spec, ok := t.Spec(r.SubjectType)
		if !ok {
			errs = append(errs, fmt.Errorf("rule %s: unknown subject type %s", r.ID, r.SubjectType))
			continue
		}
		srcRank, srcOK := spec.rank(r.Source)
		dstRank, dstOK := spec.rank(r.Target)
		if !srcOK {
			errs = append(errs, fmt.Errorf("rule %s: unknown source status %s", r.ID, r.Source))
		}
		if !dstOK {
			errs = append(errs, fmt.Errorf("rule %s: unknown target status %s", r.ID, r.Target))
		}
		if srcOK && dstOK && dstRank < srcRank {
			errs = append(errs, fmt.Errorf("rule %s: %s->%s moves backward", r.ID, r.Source, r.Target))
		}
		preds := []DatePredicate{r.When}
		if !r.AndWhen.IsZero() {
			preds = append(preds, r.AndWhen)
		}
		for _, p := range preds {
			if !spec.HasDateField(p.Field) {
				errs = append(errs, fmt.Errorf("rule %s: unknown date field %s", r.ID, p.Field))
			}
			if !p.Op.supported() {
				errs = append(errs, fmt.Errorf("rule %s: unsupported comparison %q", r.ID, p.Op))
			}
		}
		if r.Milestone != "" && !spec.HasMilestone(r.Milestone) {
			errs = append(errs, fmt.Errorf("rule %s: unknown milestone %s", r.ID, r.Milestone))
		}
		if r.RequireOpenChain && !spec.Chained {
			errs = append(errs, fmt.Errorf("rule %s: %s is not chained", r.ID, r.SubjectType))
		}

		if r.MilestoneOnly() {
			if r.Milestone == "" {
				errs = append(errs, fmt.Errorf("rule %s: %s->%s changes nothing", r.ID, r.Source, r.Target))
			}
			continue
		}
		if spec.terminal(r.Source) {
			errs = append(errs, fmt.Errorf("rule %s: promotes out of terminal status %s", r.ID, r.Source))
		}
		if sources[r.SubjectType] == nil {
			sources[r.SubjectType] = make(map[Status]string)
		}
		if other, dup := sources[r.SubjectType][r.Source]; dup {
			errs = append(errs, fmt.Errorf("rule %s: source %s already promoted by %s", r.ID, r.Source, other))
		}
		sources[r.SubjectType][r.Source] = r.ID
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrRuleMisconfigured, errors.Join(errs...))
	}
	return nil
}
