package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// MalformedStateError is returned when a serialized draft cannot be hydrated.
// Hydration is all-or-nothing: a payload missing any required key produces
// this error and no partial state.
type MalformedStateError struct {
	Missing []string
}

func (e *MalformedStateError) Error() string {
	if len(e.Missing) == 0 {
		return "malformed draft state"
	}
	return fmt.Sprintf("malformed draft state: missing %s", strings.Join(e.Missing, ", "))
}

// requiredKeys are the top-level keys every serialized draft must carry.
var requiredKeys = []string{
	"draft_id",
	"current_step",
	"disclosing_party",
	"receiving_party",
	"terms",
	"clauses",
	"edit_history",
	"compliance_state",
}

// Serialize renders the state as JSON. Validation errors are transient and
// deliberately excluded, so serialize/hydrate round-trips everything else.
func (s *State) Serialize() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize draft %s: %w", s.DraftID, err)
	}
	return data, nil
}

// Hydrate rebuilds a State from a previously serialized draft. It fails with
// MalformedStateError listing every absent required key.
func Hydrate(data []byte) (*State, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode draft payload: %w", err)
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := probe[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MalformedStateError{Missing: missing}
	}

	state := &State{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to decode draft payload: %w", err)
	}

	if state.Clauses == nil {
		state.Clauses = make(map[string]*ClauseStatus)
	}
	if state.EditHistory == nil {
		state.EditHistory = make([]EditRecord, 0)
	}
	state.ValidationErrors = make(map[string]string)
	return state, nil
}
