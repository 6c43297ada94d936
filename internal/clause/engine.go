// Package clause tracks clause activation and completion against the active
// policy and renders clause text from the policy templates.
package clause

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/gokkuu100/wakiliweb-sub002/internal/policy"
	"github.com/gokkuu100/wakiliweb-sub002/internal/workflow"
)

// Sentinel rendered in place of a placeholder whose field is still empty.
// Rendering never drops a placeholder silently.
const UnfilledSentinel = "[TO BE FILLED]"

var (
	// ErrMandatoryClauseLocked is returned on any attempt to toggle a
	// mandatory clause. This indicates the caller bypassed the UI guard,
	// so it fails loudly rather than no-op.
	ErrMandatoryClauseLocked = errors.New("mandatory clause cannot be toggled")

	// ErrUnknownClause is returned for keys absent from the policy table.
	ErrUnknownClause = errors.New("unknown clause key")
)

var placeholderPattern = regexp.MustCompile(`\{\{([a-z_][a-z0-9_.]*)\}\}`)

// Engine applies the clause policy to a draft's clause map. It mutates only
// the Clauses and Compliance portions of the state.
type Engine struct {
	policy *policy.Policy
}

// NewEngine creates an engine bound to one jurisdiction policy.
func NewEngine(p *policy.Policy) *Engine {
	return &Engine{policy: p}
}

// InitClauses seeds the draft's clause map from the policy: mandatory
// clauses active and incomplete, optional clauses inactive.
func (e *Engine) InitClauses(s *workflow.State) {
	for _, c := range e.policy.Clauses {
		if _, exists := s.Clauses[c.Key]; exists {
			continue
		}
		s.Clauses[c.Key] = &workflow.ClauseStatus{
			Mandatory: c.Mandatory,
			Active:    c.Mandatory,
			Completed: false,
			RiskLevel: c.RiskLevel,
		}
	}
	e.RecomputeCompliance(s)
}

// ToggleOptional flips activation of an optional clause. Mandatory clauses
// are locked active; attempting to toggle one is an invariant violation.
func (e *Engine) ToggleOptional(s *workflow.State, key string) error {
	status, ok := s.Clauses[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClause, key)
	}
	if status.Mandatory {
		return fmt.Errorf("%w: %s", ErrMandatoryClauseLocked, key)
	}
	status.Active = !status.Active
	return nil
}

// Activate ensures an optional clause is active without flipping an already
// active one. Used by the suggestion merge, which must never deactivate.
func (e *Engine) Activate(s *workflow.State, key string) error {
	status, ok := s.Clauses[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClause, key)
	}
	status.Active = true
	return nil
}

// MarkComplete records explicit completion of a clause. This is the only
// completion path for clauses whose policy entry lists no required fields
// (e.g. obligations_and_duties, whose text needs no per-draft input).
func (e *Engine) MarkComplete(s *workflow.State, key string) error {
	status, ok := s.Clauses[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClause, key)
	}
	status.Completed = true
	e.RecomputeCompliance(s)
	return nil
}

// RecomputeCompletion re-evaluates completion for every clause whose
// required-field set includes changedField. Completion is monotonic within a
// session: once a clause is complete, later edits never un-complete it.
func (e *Engine) RecomputeCompletion(s *workflow.State, changedField string) {
	for _, c := range e.policy.Clauses {
		if !fieldInSet(changedField, c.RequiredFields) {
			continue
		}
		status, ok := s.Clauses[c.Key]
		if !ok || status.Completed {
			continue
		}
		if e.requiredFieldsFilled(s, c) {
			status.Completed = true
		}
	}
	e.RecomputeCompliance(s)
}

// RecomputeCompliance refreshes the derived compliance block: the mandatory
// completion percentage and whether the draft may leave the mandatory step.
func (e *Engine) RecomputeCompliance(s *workflow.State) {
	mandatory := e.policy.MandatoryClauses()
	if len(mandatory) == 0 {
		s.Compliance = workflow.ComplianceState{MandatoryCompletionPercent: 100, CanAdvance: true}
		return
	}

	done := 0
	for _, c := range mandatory {
		if status, ok := s.Clauses[c.Key]; ok && status.Completed {
			done++
		}
	}
	s.Compliance = workflow.ComplianceState{
		MandatoryCompletionPercent: done * 100 / len(mandatory),
		CanAdvance:                 done == len(mandatory),
	}
}

// RenderClauseText substitutes the clause template's placeholders with the
// draft's current field values. Unresolved placeholders render as the
// UnfilledSentinel so incomplete output is visibly incomplete.
func (e *Engine) RenderClauseText(s *workflow.State, key string) (string, error) {
	c, ok := e.policy.Clause(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownClause, key)
	}

	rendered := placeholderPattern.ReplaceAllStringFunc(c.Template, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		if value, known := s.FieldValue(path); known && value != "" {
			return value
		}
		return UnfilledSentinel
	})
	return rendered, nil
}

func (e *Engine) requiredFieldsFilled(s *workflow.State, c policy.Clause) bool {
	if len(c.RequiredFields) == 0 {
		// Manual-completion clause: never auto-completed.
		return false
	}
	for _, field := range c.RequiredFields {
		value, known := s.FieldValue(field)
		if !known || value == "" {
			return false
		}
	}
	return true
}

func fieldInSet(field string, set []string) bool {
	for _, f := range set {
		if f == field {
			return true
		}
	}
	return false
}
