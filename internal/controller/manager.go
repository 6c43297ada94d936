package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gokkuu100/wakiliweb-sub002/internal/assist"
	"github.com/gokkuu100/wakiliweb-sub002/internal/clause"
	"github.com/gokkuu100/wakiliweb-sub002/internal/datastore"
	"github.com/gokkuu100/wakiliweb-sub002/internal/policy"
	"github.com/gokkuu100/wakiliweb-sub002/internal/workflow"
)

// Manager tracks the live editing sessions, one per draft being edited.
// Each session owns its own state; there is no shared mutable draft state
// across sessions.
type Manager struct {
	pol       *policy.Policy
	engine    *clause.Engine
	assistant assist.Assistant
	store     datastore.DraftStore

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager bound to one policy, one assistant
// (which may be nil when no API key is configured) and one draft store.
func NewManager(pol *policy.Policy, assistant assist.Assistant, store datastore.DraftStore) *Manager {
	return &Manager{
		pol:       pol,
		engine:    clause.NewEngine(pol),
		assistant: assistant,
		store:     store,
		sessions:  make(map[string]*Session),
	}
}

// CreateDraft starts a fresh draft at the party-details step, seeds its
// clause map from the policy and persists the initial state.
func (m *Manager) CreateDraft(ctx context.Context) (*Session, error) {
	state := workflow.CreateInitial()
	m.engine.InitClauses(state)

	session := newSession(state, m.pol, m.engine, m.assistant, m.store)
	if err := session.Save(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[session.DraftID] = session
	m.mu.Unlock()
	return session, nil
}

// OpenDraft returns the live session for a draft, hydrating it from the
// store when no session exists yet. Hydration is all-or-nothing; a
// malformed payload opens nothing.
func (m *Manager) OpenDraft(ctx context.Context, draftID string) (*Session, error) {
	m.mu.RLock()
	if session, ok := m.sessions[draftID]; ok {
		m.mu.RUnlock()
		session.mu.Lock()
		session.lastUsed = time.Now()
		session.mu.Unlock()
		return session, nil
	}
	m.mu.RUnlock()

	payload, err := m.store.LoadDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}

	state, err := workflow.Hydrate(payload)
	if err != nil {
		return nil, err
	}
	// Pick up clauses added to the policy since the draft was saved.
	m.engine.InitClauses(state)

	session := newSession(state, m.pol, m.engine, m.assistant, m.store)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[draftID]; ok {
		// Another caller opened it first; use theirs.
		return existing, nil
	}
	m.sessions[draftID] = session
	return session, nil
}

// Get returns an already-open session.
func (m *Manager) Get(draftID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[draftID]
	if !ok {
		return nil, fmt.Errorf("no open session for draft %s", draftID)
	}
	return session, nil
}

// CloseDraft closes and removes a session. The durable copy stays in the
// store; any outstanding assist requests are cancelled.
func (m *Manager) CloseDraft(draftID string) {
	m.mu.Lock()
	session, ok := m.sessions[draftID]
	delete(m.sessions, draftID)
	m.mu.Unlock()

	if ok {
		session.Close()
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ListDrafts delegates to the store's dashboard listing.
func (m *Manager) ListDrafts(ctx context.Context) ([]datastore.DraftInfo, error) {
	return m.store.ListDrafts(ctx)
}

// CleanupExpired closes sessions idle longer than maxAge and returns how
// many were removed.
func (m *Manager) CleanupExpired(maxAge time.Duration) int {
	m.mu.Lock()
	var stale []*Session
	now := time.Now()
	for id, session := range m.sessions {
		session.mu.Lock()
		idle := now.Sub(session.lastUsed)
		session.mu.Unlock()
		if idle > maxAge {
			stale = append(stale, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range stale {
		session.Close()
	}
	return len(stale)
}
