package assist

import (
	"log"

	"github.com/gokkuu100/wakiliweb-sub002/internal/clause"
	"github.com/gokkuu100/wakiliweb-sub002/internal/workflow"
)

// MergeReport summarizes what a merge actually applied, for display and for
// the audit trail.
type MergeReport struct {
	AppliedFields    []string `json:"applied_fields"`
	SkippedFields    []string `json:"skipped_fields"`
	ActivatedClauses []string `json:"activated_clauses"`
	AssessedClauses  []string `json:"assessed_clauses"`
}

// Merge applies suggestions to the draft through the same mutation path as
// user edits, so the usual invariants hold regardless of who produced the
// value. Suggestions fill gaps: a field the user already set, or that holds
// any non-empty value, is never overwritten. Clause activations go through
// the engine, which keeps mandatory clauses locked.
func Merge(s *workflow.State, eng *clause.Engine, suggestions *Suggestions) MergeReport {
	report := MergeReport{}
	if suggestions == nil {
		return report
	}

	for field, value := range suggestions.FormFields {
		if value == "" || !s.KnownField(field) {
			report.SkippedFields = append(report.SkippedFields, field)
			continue
		}
		if current, _ := s.FieldValue(field); current != "" || s.UserSet(field) {
			report.SkippedFields = append(report.SkippedFields, field)
			continue
		}
		if err := s.ApplyField(field, value, workflow.SourceAssistant); err != nil {
			log.Printf("warning: skipping suggested value for %s: %v", field, err)
			report.SkippedFields = append(report.SkippedFields, field)
			continue
		}
		eng.RecomputeCompletion(s, field)
		report.AppliedFields = append(report.AppliedFields, field)
	}

	for _, key := range suggestions.RecommendedClauses {
		status, ok := s.Clauses[key]
		if !ok {
			continue
		}
		status.AIRecommended = true
		if !status.Mandatory && !status.Active {
			if err := eng.Activate(s, key); err == nil {
				report.ActivatedClauses = append(report.ActivatedClauses, key)
			}
		}
	}

	for key, level := range suggestions.RiskAssessment {
		status, ok := s.Clauses[key]
		if !ok || !workflow.ValidRiskLevel(workflow.RiskLevel(level)) {
			continue
		}
		status.RiskLevel = workflow.RiskLevel(level)
		status.AIRecommended = true
		report.AssessedClauses = append(report.AssessedClauses, key)
	}

	return report
}
