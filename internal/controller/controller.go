// Package controller orchestrates the contract-creation workflow. A Session
// is the single mutation path for one draft: field edits, clause toggles,
// step transitions and suggestion merges all pass through it, which is what
// keeps the audit trail ordered and the step-gating invariants enforceable.
package controller

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gokkuu100/wakiliweb-sub002/internal/assist"
	"github.com/gokkuu100/wakiliweb-sub002/internal/clause"
	"github.com/gokkuu100/wakiliweb-sub002/internal/datastore"
	"github.com/gokkuu100/wakiliweb-sub002/internal/gate"
	"github.com/gokkuu100/wakiliweb-sub002/internal/policy"
	"github.com/gokkuu100/wakiliweb-sub002/internal/workflow"
)

var (
	// ErrRequestInFlight is returned synchronously, before any network
	// call, when an assist request for the same context is outstanding.
	ErrRequestInFlight = errors.New("assist request already in flight for this context")

	// ErrSessionClosed is returned for any operation on a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrSaveFailed wraps persistence failures. The in-memory draft is
	// left exactly as it was before the save attempt.
	ErrSaveFailed = errors.New("draft save failed")
)

// Session owns one draft for the lifetime of an editing session. It is safe
// for concurrent use; the draft state is only touched under the mutex.
type Session struct {
	DraftID   string
	CreatedAt time.Time

	mu            sync.Mutex
	state         *workflow.State
	engine        *clause.Engine
	pol           *policy.Policy
	assistant     assist.Assistant
	store         datastore.DraftStore
	inflight      map[string]context.CancelFunc
	lastSavedHash string
	lastUsed      time.Time
	closed        bool
}

func newSession(state *workflow.State, pol *policy.Policy, eng *clause.Engine, assistant assist.Assistant, store datastore.DraftStore) *Session {
	now := time.Now()
	s := &Session{
		DraftID:   state.DraftID,
		CreatedAt: now,
		state:     state,
		engine:    eng,
		pol:       pol,
		assistant: assistant,
		store:     store,
		inflight:  make(map[string]context.CancelFunc),
		lastUsed:  now,
	}
	s.refreshValidationLocked()
	return s
}

// SetField applies one field edit, recomputes clause completion for any
// clause that depends on the field, and refreshes the validation map.
func (s *Session) SetField(field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	if err := s.state.ApplyField(field, value, workflow.SourceUser); err != nil {
		return err
	}
	s.engine.RecomputeCompletion(s.state, field)
	s.refreshValidationLocked()
	s.lastUsed = time.Now()
	return nil
}

// ToggleClause flips an optional clause's activation. Toggling a mandatory
// clause fails with clause.ErrMandatoryClauseLocked and changes nothing.
func (s *Session) ToggleClause(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	if err := s.engine.ToggleOptional(s.state, key); err != nil {
		return err
	}
	s.lastUsed = time.Now()
	return nil
}

// MarkClauseComplete records explicit completion of a clause (the only path
// for clauses whose policy entry lists no required fields).
func (s *Session) MarkClauseComplete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	if err := s.engine.MarkComplete(s.state, key); err != nil {
		return err
	}
	s.refreshValidationLocked()
	s.lastUsed = time.Now()
	return nil
}

// RenderClause renders one clause's text from the current field values.
func (s *Session) RenderClause(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.RenderClauseText(s.state, key)
}

// Advance moves to the next step if the gate for the current step passes,
// then persists the draft. A gate refusal returns the gate.Result as the
// error and leaves the step unchanged. A persistence failure after a
// successful transition is reported wrapped in ErrSaveFailed; the in-memory
// step stays advanced and the caller may retry Save.
func (s *Session) Advance(ctx context.Context) (workflow.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.state.CurrentStep, ErrSessionClosed
	}

	result := gate.CheckAdvance(s.state, s.pol)
	if !result.Allowed {
		return s.state.CurrentStep, result
	}

	s.state.CurrentStep++
	s.refreshValidationLocked()
	s.lastUsed = time.Now()

	if err := s.saveLocked(ctx); err != nil {
		return s.state.CurrentStep, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return s.state.CurrentStep, nil
}

// Retreat moves back one step, subject to the one-way door: once the draft
// reaches review, backward transitions are denied.
func (s *Session) Retreat() (workflow.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.state.CurrentStep, ErrSessionClosed
	}

	result := gate.CheckRetreat(s.state)
	if !result.Allowed {
		return s.state.CurrentStep, result
	}

	s.state.CurrentStep--
	s.refreshValidationLocked()
	s.lastUsed = time.Now()
	return s.state.CurrentStep, nil
}

// Save persists the draft. Saving identical state twice is a no-op: the
// content hash gates both this method and the store's upsert.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.saveLocked(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

func (s *Session) saveLocked(ctx context.Context) error {
	payload, err := s.state.Serialize()
	if err != nil {
		return err
	}

	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])
	if hash == s.lastSavedHash {
		return nil
	}

	if err := s.store.SaveDraft(ctx, s.state.DraftID, payload, hash, s.state.CurrentStep.String()); err != nil {
		return err
	}
	s.lastSavedHash = hash
	return nil
}

// RequestAssist asks the AI collaborator for suggestions and merges them in.
// At most one request per context tag may be outstanding; a duplicate is
// rejected synchronously with ErrRequestInFlight, before any network call.
// Requests for different contexts may run concurrently. A result arriving
// after Close is discarded without touching state.
func (s *Session) RequestAssist(ctx context.Context, contextTag string) (*assist.MergeReport, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.assistant == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: no assistant configured", assist.ErrAssistanceUnavailable)
	}
	if _, busy := s.inflight[contextTag]; busy {
		s.mu.Unlock()
		return nil, ErrRequestInFlight
	}

	snapshot, err := s.state.Serialize()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	reqCtx, cancel := context.WithCancel(ctx)
	s.inflight[contextTag] = cancel
	assistant := s.assistant
	s.mu.Unlock()

	// The mutex is released for the duration of the call so edits and
	// other assist contexts stay responsive.
	suggestions, err := assistant.Suggest(reqCtx, contextTag, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, contextTag)
	cancel()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if err != nil {
		if errors.Is(err, assist.ErrAssistanceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", assist.ErrAssistanceUnavailable, err)
	}

	report := assist.Merge(s.state, s.engine, suggestions)
	s.refreshValidationLocked()
	s.lastUsed = time.Now()
	return &report, nil
}

// Close marks the session finished and cancels every outstanding assist
// request. Late results become no-ops. The durable copy of the draft lives
// in the store; the in-memory state is discarded with the session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for tag, cancel := range s.inflight {
		cancel()
		delete(s.inflight, tag)
	}
}

// CurrentStep returns the draft's current step.
func (s *Session) CurrentStep() workflow.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentStep
}

// Compliance returns the derived compliance block.
func (s *Session) Compliance() workflow.ComplianceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Compliance
}

// ValidationErrors returns a copy of the transient validation map.
func (s *Session) ValidationErrors() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.state.ValidationErrors))
	for k, v := range s.state.ValidationErrors {
		out[k] = v
	}
	return out
}

// Snapshot serializes the draft for transport to clients.
func (s *Session) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Serialize()
}

// GateStatus reports whether the draft could advance right now, without
// mutating anything.
func (s *Session) GateStatus() gate.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gate.CheckAdvance(s.state, s.pol)
}

// refreshValidationLocked rebuilds the transient validation map: per-field
// gate errors for the current step plus advisory warnings that never block
// editing or saving.
func (s *Session) refreshValidationLocked() {
	errs := make(map[string]string)
	result := gate.CheckAdvance(s.state, s.pol)
	for _, fe := range result.Fields {
		errs[fe.Field] = fe.Message
	}
	for field, msg := range gate.Warnings(s.state, s.pol) {
		if _, exists := errs[field]; !exists {
			errs[field] = msg
		}
	}
	s.state.ValidationErrors = errs
}
