// Package workflow defines the data model for a contract draft moving through
// the creation wizard: the step enum, both parties, the negotiated terms, the
// clause status map and the append-only edit history.
//
// The package is pure data plus constructors. All mutation is expected to go
// through the controller package so that the edit history and derived
// compliance state stay consistent.
package workflow

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Step identifies a wizard step. Steps advance one at a time and never skip.
type Step int

const (
	StepPartyDetails Step = iota
	StepMandatoryClauses
	StepOptionalClauses
	StepReview
	StepComplete
)

var stepNames = map[Step]string{
	StepPartyDetails:     "party_details",
	StepMandatoryClauses: "mandatory_clauses",
	StepOptionalClauses:  "optional_clauses",
	StepReview:           "review",
	StepComplete:         "complete",
}

// String returns the wire name of the step.
func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStep resolves a wire name back to a Step.
func ParseStep(name string) (Step, bool) {
	for step, n := range stepNames {
		if n == name {
			return step, true
		}
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler so steps serialize by name.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Step) UnmarshalText(text []byte) error {
	step, ok := ParseStep(string(text))
	if !ok {
		return &MalformedStateError{Missing: []string{"current_step"}}
	}
	*s = step
	return nil
}

// PartyType discriminates the required-field set for a party.
type PartyType string

const (
	PartyIndividual         PartyType = "individual"
	PartyCompany            PartyType = "company"
	PartyPartnership        PartyType = "partnership"
	PartySoleProprietorship PartyType = "sole_proprietorship"
)

// ValidPartyType reports whether t is one of the defined party types.
func ValidPartyType(t PartyType) bool {
	switch t {
	case PartyIndividual, PartyCompany, PartyPartnership, PartySoleProprietorship:
		return true
	}
	return false
}

// Party is one side of the contract. BusinessRegistrationNumber is only
// meaningful (and only required) when Type is not individual.
type Party struct {
	LegalName                  string    `json:"legal_name"`
	Type                       PartyType `json:"party_type"`
	IDType                     string    `json:"id_type"`
	IDNumber                   string    `json:"id_number"`
	Address                    string    `json:"address"`
	Email                      string    `json:"email"`
	Phone                      string    `json:"phone"`
	AppID                      string    `json:"app_id"`
	BusinessRegistrationNumber string    `json:"business_registration_number,omitempty"`
}

// Terms holds the negotiated scalar and free-text terms of the agreement.
type Terms struct {
	Purpose                 string `json:"purpose"`
	PermittedUse            string `json:"permitted_use"`
	ConfidentialInfoScope   string `json:"confidential_info_scope"`
	DurationMonths          int    `json:"duration_months"`
	EffectiveDate           string `json:"effective_date"`
	ReturnTimelineDays      int    `json:"return_timeline_days"`
	SurvivalYears           int    `json:"survival_years"`
	GoverningLaw            string `json:"governing_law"`
	Jurisdiction            string `json:"jurisdiction"`
	DisputeResolutionMethod string `json:"dispute_resolution_method"`
	ArbitrationLocation     string `json:"arbitration_location"`
	PenaltyAmount           string `json:"penalty_amount"`
	PenaltyCurrency         string `json:"penalty_currency"`
}

// RiskLevel classifies a clause's legal risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ValidRiskLevel reports whether r is one of the defined risk levels.
func ValidRiskLevel(r RiskLevel) bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// ClauseStatus tracks one clause's activation and completion state.
// Mandatory clauses are always active; that invariant is enforced by the
// clause engine, not here.
type ClauseStatus struct {
	Mandatory     bool      `json:"is_mandatory"`
	Active        bool      `json:"is_active"`
	Completed     bool      `json:"is_completed"`
	RiskLevel     RiskLevel `json:"risk_level"`
	AIRecommended bool      `json:"ai_recommended"`
}

// EditSource records who produced a field value.
const (
	SourceUser      = "user"
	SourceAssistant = "assistant"
)

// EditRecord is one entry of the append-only audit trail.
type EditRecord struct {
	Field     string    `json:"field"`
	Value     string    `json:"value"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// ComplianceState is derived from the clause map; it is recomputed by the
// clause engine and never set directly.
type ComplianceState struct {
	MandatoryCompletionPercent int  `json:"mandatory_completion_percent"`
	CanAdvance                 bool `json:"can_advance"`
}

// ValidationError describes one field-level problem blocking a transition.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// State is one contract-in-creation. One instance per editing session.
type State struct {
	DraftID     string                   `json:"draft_id"`
	CurrentStep Step                     `json:"current_step"`
	Disclosing  Party                    `json:"disclosing_party"`
	Receiving   Party                    `json:"receiving_party"`
	Terms       Terms                    `json:"terms"`
	Clauses     map[string]*ClauseStatus `json:"clauses"`
	EditHistory []EditRecord             `json:"edit_history"`
	Compliance  ComplianceState          `json:"compliance_state"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`

	// ValidationErrors is transient: recomputed on every change, never
	// serialized and never persisted.
	ValidationErrors map[string]string `json:"-"`
}

// CreateInitial returns the zero-value state at the party-details step.
// Clause statuses are populated by the clause engine from the active policy.
func CreateInitial() *State {
	now := time.Now().UTC()
	return &State{
		DraftID:          uuid.New().String(),
		CurrentStep:      StepPartyDetails,
		Disclosing:       Party{Type: PartyIndividual},
		Receiving:        Party{Type: PartyIndividual},
		Clauses:          make(map[string]*ClauseStatus),
		EditHistory:      make([]EditRecord, 0),
		ValidationErrors: make(map[string]string),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// AppendEdit records a field mutation in the audit trail. Entries are
// immutable once appended; order matches wall-clock mutation order.
func (s *State) AppendEdit(field, value, source string) {
	s.EditHistory = append(s.EditHistory, EditRecord{
		Field:     field,
		Value:     value,
		Source:    source,
		Timestamp: time.Now().UTC(),
	})
	s.UpdatedAt = time.Now().UTC()
}

// UserSet reports whether field was ever set to a non-empty value by the
// user (as opposed to the assistant). Used by the suggestion merge to avoid
// clobbering explicit user input.
func (s *State) UserSet(field string) bool {
	for _, rec := range s.EditHistory {
		if rec.Field == field && rec.Source == SourceUser && rec.Value != "" {
			return true
		}
	}
	return false
}

// PendingMandatory returns the keys of mandatory clauses not yet completed,
// sorted for stable output.
func (s *State) PendingMandatory() []string {
	keys := make([]string, 0)
	for key, cs := range s.Clauses {
		if cs.Mandatory && !cs.Completed {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
