package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokkuu100/wakiliweb-sub002/internal/assist"
	"github.com/gokkuu100/wakiliweb-sub002/internal/datastore"
	"github.com/gokkuu100/wakiliweb-sub002/internal/gate"
	"github.com/gokkuu100/wakiliweb-sub002/internal/policy"
	"github.com/gokkuu100/wakiliweb-sub002/internal/workflow"
)

// fakeAssistant is a scriptable Assistant. When block is non-nil, Suggest
// parks until the channel is closed or the context is cancelled, which lets
// tests hold a request in flight deterministically.
type fakeAssistant struct {
	mu          sync.Mutex
	calls       int
	block       chan struct{}
	suggestions *assist.Suggestions
	err         error
}

var _ assist.Assistant = (*fakeAssistant)(nil)

func (f *fakeAssistant) Suggest(ctx context.Context, contextTag string, snapshot []byte) (*assist.Suggestions, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.suggestions, nil
}

func (f *fakeAssistant) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// failingStore wraps the in-memory store and fails every save on demand.
type failingStore struct {
	*datastore.InMemoryStore
	failSaves bool
}

func (s *failingStore) SaveDraft(ctx context.Context, draftID string, payload []byte, contentHash, currentStep string) error {
	if s.failSaves {
		return errors.New("connection refused")
	}
	return s.InMemoryStore.SaveDraft(ctx, draftID, payload, contentHash, currentStep)
}

func newTestManager(t *testing.T, assistant assist.Assistant, store datastore.DraftStore) *Manager {
	t.Helper()
	pol, err := policy.Default()
	require.NoError(t, err)
	if store == nil {
		store = datastore.NewInMemoryStore()
	}
	return NewManager(pol, assistant, store)
}

func fillPartyDetails(t *testing.T, s *Session) {
	t.Helper()
	for field, value := range map[string]string{
		"disclosing.legal_name": "Wanjiku Holdings Ltd",
		"disclosing.address":    "P.O. Box 12345, Nairobi",
		"disclosing.email":      "legal@wanjiku.co.ke",
		"disclosing.party_type": "company",
		"disclosing.business_registration_number": "CPR/2019/12345",
		"disclosing.id_number":                    "12345678",
		"disclosing.app_id":                       "APP-0001",
		"receiving.legal_name":                    "Amina Otieno",
		"receiving.address":                       "Mombasa Road, Nairobi",
		"receiving.email":                         "amina@example.co.ke",
		"receiving.party_type":                    "individual",
	} {
		require.NoError(t, s.SetField(field, value), "set %s", field)
	}
}

func completeAllMandatory(t *testing.T, s *Session, pol *policy.Policy) {
	t.Helper()
	for _, c := range pol.MandatoryClauses() {
		require.NoError(t, s.MarkClauseComplete(c.Key))
	}
}

// =============================================================================
// Draft Lifecycle Tests
// =============================================================================

func TestCreateDraft(t *testing.T) {
	store := datastore.NewInMemoryStore()
	m := newTestManager(t, nil, store)

	session, err := m.CreateDraft(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, session.DraftID)
	assert.Equal(t, workflow.StepPartyDetails, session.CurrentStep())
	assert.Equal(t, 1, store.WriteCount, "initial state should persist once")
	assert.Equal(t, 1, m.Count())

	// A fresh draft reports what blocks it but allows editing.
	errs := session.ValidationErrors()
	assert.Contains(t, errs, "disclosing.legal_name")
}

func TestFullWizardWalkthrough(t *testing.T) {
	pol, err := policy.Default()
	require.NoError(t, err)
	m := newTestManager(t, nil, datastore.NewInMemoryStore())
	ctx := context.Background()

	session, err := m.CreateDraft(ctx)
	require.NoError(t, err)

	fillPartyDetails(t, session)
	require.NoError(t, session.SetField("terms.duration_months", "24"))

	step, err := session.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepMandatoryClauses, step)

	completeAllMandatory(t, session, pol)
	step, err = session.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepOptionalClauses, step)

	require.NoError(t, session.ToggleClause("non_compete"))
	step, err = session.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepReview, step)

	step, err = session.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepComplete, step)

	// The workflow is terminal: neither direction moves.
	_, err = session.Advance(ctx)
	var result gate.Result
	require.ErrorAs(t, err, &result)
	assert.Equal(t, gate.CodeWorkflowComplete, result.Code)

	_, err = session.Retreat()
	require.ErrorAs(t, err, &result)
	assert.Equal(t, gate.CodeBackwardTransitionDenied, result.Code)
}

func TestAdvance_BlockedWithGateDetail(t *testing.T) {
	pol, err := policy.Default()
	require.NoError(t, err)
	m := newTestManager(t, nil, datastore.NewInMemoryStore())
	ctx := context.Background()

	session, err := m.CreateDraft(ctx)
	require.NoError(t, err)
	fillPartyDetails(t, session)
	_, err = session.Advance(ctx)
	require.NoError(t, err)

	// Complete every mandatory clause but one.
	mandatory := pol.MandatoryClauses()
	for _, c := range mandatory[:len(mandatory)-1] {
		require.NoError(t, session.MarkClauseComplete(c.Key))
	}
	left := mandatory[len(mandatory)-1].Key

	_, err = session.Advance(ctx)
	var result gate.Result
	require.ErrorAs(t, err, &result)
	assert.Equal(t, gate.CodeMandatoryClausesIncomplete, result.Code)
	assert.Equal(t, []string{left}, result.Clauses, "the gate must name exactly the pending clause")
	assert.Equal(t, workflow.StepMandatoryClauses, session.CurrentStep(), "a refused advance leaves the step unchanged")
}

func TestDurationCeiling_SavesButBlocksCompletion(t *testing.T) {
	pol, err := policy.Default()
	require.NoError(t, err)
	m := newTestManager(t, nil, datastore.NewInMemoryStore())
	ctx := context.Background()

	session, err := m.CreateDraft(ctx)
	require.NoError(t, err)
	fillPartyDetails(t, session)

	// Over the ceiling: a warning, not a hard error, while drafting.
	require.NoError(t, session.SetField("terms.duration_months", "72"))
	require.NoError(t, session.Save(ctx))
	assert.Contains(t, session.ValidationErrors(), "terms.duration_months")

	_, err = session.Advance(ctx)
	require.NoError(t, err)
	completeAllMandatory(t, session, pol)
	_, err = session.Advance(ctx)
	require.NoError(t, err)
	_, err = session.Advance(ctx)
	require.NoError(t, err)
	require.Equal(t, workflow.StepReview, session.CurrentStep())

	// At review the ceiling is enforced.
	_, err = session.Advance(ctx)
	var result gate.Result
	require.ErrorAs(t, err, &result)
	assert.Equal(t, gate.CodeComplianceCheckFailed, result.Code)
	require.Len(t, result.Fields, 1)
	assert.Equal(t, "terms.duration_months", result.Fields[0].Field)

	// Bringing the duration back inside the ceiling unblocks completion.
	require.NoError(t, session.SetField("terms.duration_months", "36"))
	step, err := session.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepComplete, step)
}

func TestRetreat_OneWayDoorAtReview(t *testing.T) {
	pol, err := policy.Default()
	require.NoError(t, err)
	m := newTestManager(t, nil, datastore.NewInMemoryStore())
	ctx := context.Background()

	session, err := m.CreateDraft(ctx)
	require.NoError(t, err)
	fillPartyDetails(t, session)
	require.NoError(t, session.SetField("terms.duration_months", "12"))
	_, err = session.Advance(ctx)
	require.NoError(t, err)
	completeAllMandatory(t, session, pol)
	_, err = session.Advance(ctx)
	require.NoError(t, err)

	// Optional step can still step back.
	step, err := session.Retreat()
	require.NoError(t, err)
	assert.Equal(t, workflow.StepMandatoryClauses, step)
	_, err = session.Advance(ctx)
	require.NoError(t, err)
	_, err = session.Advance(ctx)
	require.NoError(t, err)
	require.Equal(t, workflow.StepReview, session.CurrentStep())

	before, err := session.Snapshot()
	require.NoError(t, err)

	_, err = session.Retreat()
	var result gate.Result
	require.ErrorAs(t, err, &result)
	assert.Equal(t, gate.CodeBackwardTransitionDenied, result.Code)
	assert.Equal(t, workflow.StepReview, session.CurrentStep())

	after, err := session.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, before, after, "a denied retreat must not touch state")
}

// =============================================================================
// Persistence Tests
// =============================================================================

func TestSave_Idempotent(t *testing.T) {
	store := datastore.NewInMemoryStore()
	m := newTestManager(t, nil, store)
	ctx := context.Background()

	session, err := m.CreateDraft(ctx)
	require.NoError(t, err)
	require.NoError(t, session.SetField("terms.purpose", "evaluation of a joint venture"))

	require.NoError(t, session.Save(ctx))
	writes := store.WriteCount

	// No changes since the last save: both saves must be no-ops.
	require.NoError(t, session.Save(ctx))
	require.NoError(t, session.Save(ctx))
	assert.Equal(t, writes, store.WriteCount, "identical state must not write again")

	require.NoError(t, session.SetField("terms.governing_law", "the Republic of Kenya"))
	require.NoError(t, session.Save(ctx))
	assert.Equal(t, writes+1, store.WriteCount)
}

func TestAdvance_SaveFailureKeepsStep(t *testing.T) {
	store := &failingStore{InMemoryStore: datastore.NewInMemoryStore()}
	m := newTestManager(t, nil, store)
	ctx := context.Background()

	session, err := m.CreateDraft(ctx)
	require.NoError(t, err)
	fillPartyDetails(t, session)

	store.failSaves = true
	_, err = session.Advance(ctx)
	require.ErrorIs(t, err, ErrSaveFailed)
	assert.Equal(t, workflow.StepMandatoryClauses, session.CurrentStep(),
		"the transition itself succeeded; only persistence failed")

	// The caller can retry once the store recovers.
	store.failSaves = false
	require.NoError(t, session.Save(ctx))
}

func TestOpenDraft_HydratesFromStore(t *testing.T) {
	store := datastore.NewInMemoryStore()
	m := newTestManager(t, nil, store)
	ctx := context.Background()

	session, err := m.CreateDraft(ctx)
	require.NoError(t, err)
	draftID := session.DraftID
	require.NoError(t, session.SetField("disclosing.legal_name", "Wanjiku Holdings Ltd"))
	require.NoError(t, session.Save(ctx))
	m.CloseDraft(draftID)
	require.Equal(t, 0, m.Count())

	reopened, err := m.OpenDraft(ctx, draftID)
	require.NoError(t, err)
	assert.Equal(t, draftID, reopened.DraftID)

	snapshot, err := reopened.Snapshot()
	require.NoError(t, err)
	assert.Contains(t, string(snapshot), "Wanjiku Holdings Ltd")
}

func TestOpenDraft_UnknownID(t *testing.T) {
	m := newTestManager(t, nil, datastore.NewInMemoryStore())

	_, err := m.OpenDraft(context.Background(), "no-such-draft")
	assert.ErrorIs(t, err, datastore.ErrDraftNotFound)
}

func TestOpenDraft_MalformedPayload(t *testing.T) {
	store := datastore.NewInMemoryStore()
	m := newTestManager(t, nil, store)
	ctx := context.Background()

	require.NoError(t, store.SaveDraft(ctx, "bad", []byte(`{"draft_id":"bad"}`), "h1", "party_details"))

	_, err := m.OpenDraft(ctx, "bad")
	var malformed *workflow.MalformedStateError
	require.ErrorAs(t, err, &malformed, "hydration is all-or-nothing")
	assert.Equal(t, 0, m.Count(), "a malformed payload must open no session")
}

// =============================================================================
// Assist Request Tests
// =============================================================================

func TestRequestAssist_MergesSuggestions(t *testing.T) {
	fake := &fakeAssistant{suggestions: &assist.Suggestions{
		FormFields:         map[string]string{"terms.governing_law": "the Republic of Kenya"},
		RecommendedClauses: []string{"non_compete"},
	}}
	m := newTestManager(t, fake, datastore.NewInMemoryStore())
	ctx := context.Background()

	session, err := m.CreateDraft(ctx)
	require.NoError(t, err)

	report, err := session.RequestAssist(ctx, assist.ContextMandatoryClauses)
	require.NoError(t, err)
	assert.Equal(t, []string{"terms.governing_law"}, report.AppliedFields)
	assert.Equal(t, []string{"non_compete"}, report.ActivatedClauses)
	assert.Equal(t, 1, fake.callCount())
}

func TestRequestAssist_DuplicateContextRejectedSynchronously(t *testing.T) {
	fake := &fakeAssistant{block: make(chan struct{})}
	m := newTestManager(t, fake, datastore.NewInMemoryStore())
	ctx := context.Background()

	session, err := m.CreateDraft(ctx)
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := session.RequestAssist(ctx, assist.ContextOptionalClauses)
		firstDone <- err
	}()

	// Wait until the first request is actually in flight.
	require.Eventually(t, func() bool { return fake.callCount() == 1 },
		time.Second, 5*time.Millisecond)

	_, err = session.RequestAssist(ctx, assist.ContextOptionalClauses)
	assert.ErrorIs(t, err, ErrRequestInFlight)
	assert.Equal(t, 1, fake.callCount(), "the duplicate must be rejected before any network call")

	close(fake.block)
	require.NoError(t, <-firstDone)

	// Once the first request settles the context is free again.
	_, err = session.RequestAssist(ctx, assist.ContextOptionalClauses)
	require.NoError(t, err)
	assert.Equal(t, 3, fake.callCount())
}

func TestRequestAssist_LateResultAfterCloseIsNoOp(t *testing.T) {
	fake := &fakeAssistant{
		block:       make(chan struct{}),
		suggestions: &assist.Suggestions{FormFields: map[string]string{"terms.purpose": "late"}},
	}
	m := newTestManager(t, fake, datastore.NewInMemoryStore())
	ctx := context.Background()

	session, err := m.CreateDraft(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := session.RequestAssist(ctx, assist.ContextFinalReview)
		done <- err
	}()
	require.Eventually(t, func() bool { return fake.callCount() == 1 },
		time.Second, 5*time.Millisecond)

	session.Close()
	close(fake.block)

	require.ErrorIs(t, <-done, ErrSessionClosed)
	// The suggestion arrived after close and was discarded, not merged.
	assert.Equal(t, workflow.StepPartyDetails, session.state.CurrentStep)
	assert.Empty(t, session.state.Terms.Purpose)
	assert.Empty(t, session.state.EditHistory)
}

func TestRequestAssist_NoAssistantConfigured(t *testing.T) {
	m := newTestManager(t, nil, datastore.NewInMemoryStore())

	session, err := m.CreateDraft(context.Background())
	require.NoError(t, err)

	_, err = session.RequestAssist(context.Background(), assist.ContextPartyVerification)
	assert.ErrorIs(t, err, assist.ErrAssistanceUnavailable)
}

func TestRequestAssist_FailureWrapped(t *testing.T) {
	fake := &fakeAssistant{err: errors.New("deadline exceeded")}
	m := newTestManager(t, fake, datastore.NewInMemoryStore())

	session, err := m.CreateDraft(context.Background())
	require.NoError(t, err)

	_, err = session.RequestAssist(context.Background(), assist.ContextFinalReview)
	assert.ErrorIs(t, err, assist.ErrAssistanceUnavailable)
	assert.Empty(t, session.state.EditHistory, "a failed request must leave no partial merge")
}

// =============================================================================
// Session Manager Tests
// =============================================================================

func TestCleanupExpired(t *testing.T) {
	m := newTestManager(t, nil, datastore.NewInMemoryStore())
	ctx := context.Background()

	fresh, err := m.CreateDraft(ctx)
	require.NoError(t, err)
	stale, err := m.CreateDraft(ctx)
	require.NoError(t, err)

	stale.mu.Lock()
	stale.lastUsed = time.Now().Add(-3 * time.Hour)
	stale.mu.Unlock()

	removed := m.CleanupExpired(2 * time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, m.Count())

	_, err = m.Get(fresh.DraftID)
	assert.NoError(t, err)
	_, err = m.Get(stale.DraftID)
	assert.Error(t, err)

	// The expired session is closed; operations on it fail.
	assert.ErrorIs(t, stale.SetField("terms.purpose", "x"), ErrSessionClosed)
}

func TestClosedSessionRejectsOperations(t *testing.T) {
	m := newTestManager(t, nil, datastore.NewInMemoryStore())
	ctx := context.Background()

	session, err := m.CreateDraft(ctx)
	require.NoError(t, err)
	m.CloseDraft(session.DraftID)

	assert.ErrorIs(t, session.SetField("terms.purpose", "x"), ErrSessionClosed)
	assert.ErrorIs(t, session.ToggleClause("non_compete"), ErrSessionClosed)
	assert.ErrorIs(t, session.Save(ctx), ErrSessionClosed)
	_, err = session.Advance(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
}
