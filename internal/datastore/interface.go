// Package datastore defines the persistence boundary for contract drafts
// and verified-party identity lookups, plus the configuration switch
// between the Postgres and in-memory implementations.
package datastore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDraftNotFound is returned when a draft ID has no stored payload.
	ErrDraftNotFound = errors.New("draft not found")

	// ErrPartyNotFound is returned when an identity reference does not
	// resolve to a verified party.
	ErrPartyNotFound = errors.New("party not found")
)

// DraftInfo is a listing row for dashboards.
type DraftInfo struct {
	DraftID     string    `json:"draft_id"`
	CurrentStep string    `json:"current_step"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DraftStore persists serialized drafts. SaveDraft must be an idempotent
// upsert: repeated saves of an identical payload produce no duplicate
// records and no spurious writes.
type DraftStore interface {
	SaveDraft(ctx context.Context, draftID string, payload []byte, contentHash, currentStep string) error
	LoadDraft(ctx context.Context, draftID string) ([]byte, error)
	ListDrafts(ctx context.Context) ([]DraftInfo, error)
	Close() error
}

// VerifiedParty is the result of resolving an external identity reference.
type VerifiedParty struct {
	AppID     string `json:"app_id"`
	LegalName string `json:"legal_name"`
	Email     string `json:"email"`
}

// IdentityResolver resolves user-entered identity references against the
// external identity registry. The workflow treats resolution as an opaque
// validity check on the app_id field, not something it validates itself.
type IdentityResolver interface {
	ResolveParty(ctx context.Context, appID string) (*VerifiedParty, error)
}

// Type selects a DraftStore implementation.
type Type string

const (
	// PostgreSQLStore uses the real PostgreSQL database.
	PostgreSQLStore Type = "postgresql"
	// MockStore keeps drafts in memory (tests and local development).
	MockStore Type = "mock"
)

// Config holds configuration for data store creation.
type Config struct {
	Type             Type
	ConnectionString string
}

// UnsupportedStoreTypeError is returned for an unrecognized store type.
type UnsupportedStoreTypeError struct {
	Type string
}

func (e *UnsupportedStoreTypeError) Error() string {
	return "unsupported store type: " + e.Type
}
