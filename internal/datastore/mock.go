package datastore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is the mock DraftStore and IdentityResolver used by tests
// and by CONTRACT_STORE_TYPE=mock. WriteCount exposes how many logical
// writes occurred so tests can assert idempotent-save behaviour.
type InMemoryStore struct {
	mu         sync.RWMutex
	drafts     map[string]*draftRecord
	parties    map[string]VerifiedParty
	WriteCount int
}

type draftRecord struct {
	payload     []byte
	contentHash string
	currentStep string
	updatedAt   time.Time
}

// NewInMemoryStore creates an empty mock store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		drafts:  make(map[string]*draftRecord),
		parties: make(map[string]VerifiedParty),
	}
}

// SaveDraft upserts a draft. A payload whose content hash matches the stored
// one is a no-op, mirroring the Postgres store's idempotent upsert.
func (s *InMemoryStore) SaveDraft(ctx context.Context, draftID string, payload []byte, contentHash, currentStep string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.drafts[draftID]; ok && existing.contentHash == contentHash {
		return nil
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.drafts[draftID] = &draftRecord{
		payload:     buf,
		contentHash: contentHash,
		currentStep: currentStep,
		updatedAt:   time.Now().UTC(),
	}
	s.WriteCount++
	return nil
}

// LoadDraft returns the stored payload for a draft.
func (s *InMemoryStore) LoadDraft(ctx context.Context, draftID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.drafts[draftID]
	if !ok {
		return nil, ErrDraftNotFound
	}
	buf := make([]byte, len(rec.payload))
	copy(buf, rec.payload)
	return buf, nil
}

// ListDrafts returns listing rows ordered by draft ID.
func (s *InMemoryStore) ListDrafts(ctx context.Context) ([]DraftInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]DraftInfo, 0, len(s.drafts))
	for id, rec := range s.drafts {
		infos = append(infos, DraftInfo{DraftID: id, CurrentStep: rec.currentStep, UpdatedAt: rec.updatedAt})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].DraftID < infos[j].DraftID })
	return infos, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// AddVerifiedParty seeds the identity registry for tests.
func (s *InMemoryStore) AddVerifiedParty(p VerifiedParty) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parties[p.AppID] = p
}

// ResolveParty implements IdentityResolver.
func (s *InMemoryStore) ResolveParty(ctx context.Context, appID string) (*VerifiedParty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.parties[appID]
	if !ok {
		return nil, ErrPartyNotFound
	}
	return &p, nil
}
