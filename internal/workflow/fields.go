package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// Field paths are dotted names shared by the UI, the clause templates and the
// assistant: "disclosing.legal_name", "terms.duration_months", and so on.
// All field edits flow through ApplyField so the audit trail sees every one.

const (
	prefixDisclosing = "disclosing"
	prefixReceiving  = "receiving"
	prefixTerms      = "terms"
)

// ApplyField sets a single field by path and appends the edit to the audit
// trail. Integer-valued terms are parsed; a value that does not parse leaves
// the state untouched and returns an error naming the field.
func (s *State) ApplyField(path, value, source string) error {
	prefix, name, ok := splitPath(path)
	if !ok {
		return fmt.Errorf("unknown field: %s", path)
	}

	switch prefix {
	case prefixDisclosing:
		if err := setPartyField(&s.Disclosing, name, value); err != nil {
			return err
		}
	case prefixReceiving:
		if err := setPartyField(&s.Receiving, name, value); err != nil {
			return err
		}
	case prefixTerms:
		if err := setTermsField(&s.Terms, name, value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown field: %s", path)
	}

	s.AppendEdit(path, value, source)
	return nil
}

// FieldValue returns the current value of a field by path, rendered as a
// string. The second return is false for unknown paths.
func (s *State) FieldValue(path string) (string, bool) {
	prefix, name, ok := splitPath(path)
	if !ok {
		return "", false
	}

	switch prefix {
	case prefixDisclosing:
		return partyField(&s.Disclosing, name)
	case prefixReceiving:
		return partyField(&s.Receiving, name)
	case prefixTerms:
		return termsField(&s.Terms, name)
	}
	return "", false
}

// KnownField reports whether path names a defined field.
func (s *State) KnownField(path string) bool {
	_, ok := s.FieldValue(path)
	return ok
}

func splitPath(path string) (prefix, name string, ok bool) {
	idx := strings.IndexByte(path, '.')
	if idx <= 0 || idx == len(path)-1 {
		return "", "", false
	}
	return path[:idx], path[idx+1:], true
}

func setPartyField(p *Party, name, value string) error {
	switch name {
	case "legal_name":
		p.LegalName = value
	case "party_type":
		t := PartyType(value)
		if !ValidPartyType(t) {
			return fmt.Errorf("invalid party type: %q", value)
		}
		p.Type = t
	case "id_type":
		p.IDType = value
	case "id_number":
		p.IDNumber = value
	case "address":
		p.Address = value
	case "email":
		p.Email = value
	case "phone":
		p.Phone = value
	case "app_id":
		p.AppID = value
	case "business_registration_number":
		p.BusinessRegistrationNumber = value
	default:
		return fmt.Errorf("unknown party field: %s", name)
	}
	return nil
}

func partyField(p *Party, name string) (string, bool) {
	switch name {
	case "legal_name":
		return p.LegalName, true
	case "party_type":
		return string(p.Type), true
	case "id_type":
		return p.IDType, true
	case "id_number":
		return p.IDNumber, true
	case "address":
		return p.Address, true
	case "email":
		return p.Email, true
	case "phone":
		return p.Phone, true
	case "app_id":
		return p.AppID, true
	case "business_registration_number":
		return p.BusinessRegistrationNumber, true
	}
	return "", false
}

func setTermsField(t *Terms, name, value string) error {
	switch name {
	case "purpose":
		t.Purpose = value
	case "permitted_use":
		t.PermittedUse = value
	case "confidential_info_scope":
		t.ConfidentialInfoScope = value
	case "duration_months":
		n, err := parseIntField("terms.duration_months", value)
		if err != nil {
			return err
		}
		t.DurationMonths = n
	case "effective_date":
		t.EffectiveDate = value
	case "return_timeline_days":
		n, err := parseIntField("terms.return_timeline_days", value)
		if err != nil {
			return err
		}
		t.ReturnTimelineDays = n
	case "survival_years":
		n, err := parseIntField("terms.survival_years", value)
		if err != nil {
			return err
		}
		t.SurvivalYears = n
	case "governing_law":
		t.GoverningLaw = value
	case "jurisdiction":
		t.Jurisdiction = value
	case "dispute_resolution_method":
		t.DisputeResolutionMethod = value
	case "arbitration_location":
		t.ArbitrationLocation = value
	case "penalty_amount":
		t.PenaltyAmount = value
	case "penalty_currency":
		t.PenaltyCurrency = value
	default:
		return fmt.Errorf("unknown terms field: %s", name)
	}
	return nil
}

func termsField(t *Terms, name string) (string, bool) {
	switch name {
	case "purpose":
		return t.Purpose, true
	case "permitted_use":
		return t.PermittedUse, true
	case "confidential_info_scope":
		return t.ConfidentialInfoScope, true
	case "duration_months":
		return intFieldValue(t.DurationMonths), true
	case "effective_date":
		return t.EffectiveDate, true
	case "return_timeline_days":
		return intFieldValue(t.ReturnTimelineDays), true
	case "survival_years":
		return intFieldValue(t.SurvivalYears), true
	case "governing_law":
		return t.GoverningLaw, true
	case "jurisdiction":
		return t.Jurisdiction, true
	case "dispute_resolution_method":
		return t.DisputeResolutionMethod, true
	case "arbitration_location":
		return t.ArbitrationLocation, true
	case "penalty_amount":
		return t.PenaltyAmount, true
	case "penalty_currency":
		return t.PenaltyCurrency, true
	}
	return "", false
}

func parseIntField(path, value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", path, value)
	}
	return n, nil
}

// intFieldValue renders an int field; zero means "not set" and renders empty
// so completion tracking treats it as missing.
func intFieldValue(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
