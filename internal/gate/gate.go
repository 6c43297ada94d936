// Package gate decides whether a draft may move between wizard steps. Checks
// are pure functions over the draft state and the active policy: they mutate
// nothing and perform no I/O, so callers decide what to do with the result.
package gate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gokkuu100/wakiliweb-sub002/internal/policy"
	"github.com/gokkuu100/wakiliweb-sub002/internal/workflow"
)

// Code identifies why a transition was refused.
type Code string

const (
	CodeIncompletePartyInfo        Code = "IncompletePartyInfo"
	CodeMandatoryClausesIncomplete Code = "MandatoryClausesIncomplete"
	CodeComplianceCheckFailed      Code = "ComplianceCheckFailed"
	CodeBackwardTransitionDenied   Code = "BackwardTransitionDenied"
	CodeWorkflowComplete           Code = "WorkflowComplete"
)

// Result is the outcome of a gate check. When Allowed is false, Code names
// the failure and Fields/Clauses carry every blocking item, not just the
// first.
type Result struct {
	Allowed bool                       `json:"allowed"`
	Code    Code                       `json:"code,omitempty"`
	Fields  []workflow.ValidationError `json:"fields,omitempty"`
	Clauses []string                   `json:"clauses,omitempty"`
}

func (r Result) Error() string {
	if r.Allowed {
		return ""
	}
	parts := make([]string, 0, len(r.Fields)+len(r.Clauses))
	for _, f := range r.Fields {
		parts = append(parts, f.Field)
	}
	parts = append(parts, r.Clauses...)
	if len(parts) == 0 {
		return string(r.Code)
	}
	return fmt.Sprintf("%s: %s", r.Code, strings.Join(parts, ", "))
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// CheckAdvance validates leaving the draft's current step for the next one.
func CheckAdvance(s *workflow.State, pol *policy.Policy) Result {
	switch s.CurrentStep {
	case workflow.StepPartyDetails:
		return checkPartyDetails(s)
	case workflow.StepMandatoryClauses:
		return checkMandatoryClauses(s)
	case workflow.StepOptionalClauses:
		// Clauses can only be toggled here, never un-completed, so the
		// mandatory gate from the previous step must still hold.
		return checkMandatoryClauses(s)
	case workflow.StepReview:
		return checkReview(s, pol)
	case workflow.StepComplete:
		return Result{Allowed: false, Code: CodeWorkflowComplete}
	}
	return Result{Allowed: false, Code: CodeWorkflowComplete}
}

// CheckRetreat validates moving back one step. Once review begins the door
// is one-way: confirmed-compliant clauses must not be silently invalidated.
func CheckRetreat(s *workflow.State) Result {
	if s.CurrentStep >= workflow.StepReview {
		return Result{Allowed: false, Code: CodeBackwardTransitionDenied}
	}
	if s.CurrentStep == workflow.StepPartyDetails {
		return Result{
			Allowed: false,
			Code:    CodeBackwardTransitionDenied,
			Fields: []workflow.ValidationError{
				{Field: "current_step", Message: "already at the first step"},
			},
		}
	}
	return Result{Allowed: true}
}

func checkPartyDetails(s *workflow.State) Result {
	var errs []workflow.ValidationError

	errs = append(errs, partyErrors("disclosing", &s.Disclosing, true)...)
	errs = append(errs, partyErrors("receiving", &s.Receiving, false)...)

	if len(errs) > 0 {
		return Result{Allowed: false, Code: CodeIncompletePartyInfo, Fields: errs}
	}
	return Result{Allowed: true}
}

// partyErrors collects every missing or malformed field for one party. The
// first (disclosing) party additionally needs a verified identity reference.
func partyErrors(prefix string, p *workflow.Party, first bool) []workflow.ValidationError {
	var errs []workflow.ValidationError
	add := func(field, msg string) {
		errs = append(errs, workflow.ValidationError{Field: prefix + "." + field, Message: msg})
	}

	if strings.TrimSpace(p.LegalName) == "" {
		add("legal_name", "legal name is required")
	}
	if strings.TrimSpace(p.Address) == "" {
		add("address", "address is required")
	}
	if p.Email == "" {
		add("email", "email is required")
	} else if !emailPattern.MatchString(p.Email) {
		add("email", "email is not a valid address")
	}
	if !workflow.ValidPartyType(p.Type) {
		add("party_type", "party type is required")
	} else if p.Type != workflow.PartyIndividual && strings.TrimSpace(p.BusinessRegistrationNumber) == "" {
		add("business_registration_number", "business registration number is required for "+string(p.Type))
	}
	if first {
		if strings.TrimSpace(p.IDNumber) == "" {
			add("id_number", "identification number is required")
		}
		if strings.TrimSpace(p.AppID) == "" {
			add("app_id", "verified identity reference is required")
		}
	}
	return errs
}

func checkMandatoryClauses(s *workflow.State) Result {
	if s.Compliance.CanAdvance {
		return Result{Allowed: true}
	}
	return Result{
		Allowed: false,
		Code:    CodeMandatoryClausesIncomplete,
		Clauses: s.PendingMandatory(),
	}
}

// checkReview is the defensive re-check before completion: the full
// mandatory set must hold and the agreement duration must sit inside the
// jurisdiction ceiling.
func checkReview(s *workflow.State, pol *policy.Policy) Result {
	var errs []workflow.ValidationError
	pending := s.PendingMandatory()

	if s.Terms.DurationMonths <= 0 {
		errs = append(errs, workflow.ValidationError{
			Field:   "terms.duration_months",
			Message: "duration must be a positive number of months",
		})
	} else if s.Terms.DurationMonths > pol.DurationCeilingMonths {
		errs = append(errs, workflow.ValidationError{
			Field: "terms.duration_months",
			Message: fmt.Sprintf("duration of %d months exceeds the %d-month ceiling for jurisdiction %s",
				s.Terms.DurationMonths, pol.DurationCeilingMonths, pol.Jurisdiction),
		})
	}

	if len(pending) > 0 || len(errs) > 0 {
		return Result{Allowed: false, Code: CodeComplianceCheckFailed, Fields: errs, Clauses: pending}
	}
	return Result{Allowed: true}
}

// Warnings returns advisory validation messages that never block editing or
// draft saving: the duration ceiling (hard-enforced only at review) and the
// return-timeline window.
func Warnings(s *workflow.State, pol *policy.Policy) map[string]string {
	warnings := make(map[string]string)

	if s.Terms.DurationMonths > pol.DurationCeilingMonths {
		warnings["terms.duration_months"] = fmt.Sprintf(
			"duration exceeds the %d-month ceiling and will block completion", pol.DurationCeilingMonths)
	}
	if d := s.Terms.ReturnTimelineDays; d != 0 && (d < pol.ReturnTimelineMinDays || d > pol.ReturnTimelineMaxDays) {
		warnings["terms.return_timeline_days"] = fmt.Sprintf(
			"return timeline should be between %d and %d days", pol.ReturnTimelineMinDays, pol.ReturnTimelineMaxDays)
	}
	return warnings
}
