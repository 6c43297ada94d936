// Package store is the PostgreSQL implementation of the draft store and
// identity resolver. Draft saves are idempotent upserts keyed by draft ID:
// an unchanged content hash produces no new write, so repeated saves of
// identical state leave a single record behind.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/gokkuu100/wakiliweb-sub002/internal/datastore"
)

// Store wraps the database connection for draft and identity operations.
type Store struct {
	db *sqlx.DB
}

// draftRow mirrors the contract_drafts table.
type draftRow struct {
	DraftID     string    `db:"draft_id"`
	Payload     []byte    `db:"payload"`
	ContentHash string    `db:"content_hash"`
	CurrentStep string    `db:"current_step"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// partyRow mirrors the verified_parties table.
type partyRow struct {
	AppID     string `db:"app_id"`
	LegalName string `db:"legal_name"`
	Email     string `db:"email"`
}

// NewStore opens a connection and verifies it with a ping.
func NewStore(connString string) (*Store, error) {
	db, err := sqlx.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if pingErr := db.Ping(); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection (used by tests with sqlmock).
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables the store needs if they are absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS contract_drafts (
			draft_id     TEXT PRIMARY KEY,
			payload      JSONB NOT NULL,
			content_hash TEXT NOT NULL,
			current_step TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS verified_parties (
			app_id     TEXT PRIMARY KEY,
			legal_name TEXT NOT NULL,
			email      TEXT NOT NULL
		);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// SaveDraft upserts a serialized draft. The WHERE clause on the conflict
// branch skips the write entirely when the content hash is unchanged.
func (s *Store) SaveDraft(ctx context.Context, draftID string, payload []byte, contentHash, currentStep string) error {
	query := `
		INSERT INTO contract_drafts (draft_id, payload, content_hash, current_step)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (draft_id) DO UPDATE
		SET payload = EXCLUDED.payload,
		    content_hash = EXCLUDED.content_hash,
		    current_step = EXCLUDED.current_step,
		    updated_at = now()
		WHERE contract_drafts.content_hash <> EXCLUDED.content_hash`

	if _, err := s.db.ExecContext(ctx, query, draftID, payload, contentHash, currentStep); err != nil {
		return fmt.Errorf("failed to save draft %s: %w", draftID, err)
	}
	return nil
}

// LoadDraft fetches the serialized payload of one draft.
func (s *Store) LoadDraft(ctx context.Context, draftID string) ([]byte, error) {
	var row draftRow
	err := s.db.GetContext(ctx, &row,
		`SELECT draft_id, payload, content_hash, current_step, created_at, updated_at
		 FROM contract_drafts WHERE draft_id = $1`, draftID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, datastore.ErrDraftNotFound
		}
		return nil, fmt.Errorf("failed to load draft %s: %w", draftID, err)
	}
	return row.Payload, nil
}

// ListDrafts returns listing rows for dashboards, most recently updated
// first.
func (s *Store) ListDrafts(ctx context.Context) ([]datastore.DraftInfo, error) {
	var rows []draftRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT draft_id, payload, content_hash, current_step, created_at, updated_at
		 FROM contract_drafts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}

	infos := make([]datastore.DraftInfo, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, datastore.DraftInfo{
			DraftID:     row.DraftID,
			CurrentStep: row.CurrentStep,
			UpdatedAt:   row.UpdatedAt,
		})
	}
	return infos, nil
}

// ResolveParty looks up a verified party by external identity reference.
func (s *Store) ResolveParty(ctx context.Context, appID string) (*datastore.VerifiedParty, error) {
	var row partyRow
	err := s.db.GetContext(ctx, &row,
		`SELECT app_id, legal_name, email FROM verified_parties WHERE app_id = $1`, appID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, datastore.ErrPartyNotFound
		}
		return nil, fmt.Errorf("failed to resolve party %s: %w", appID, err)
	}
	return &datastore.VerifiedParty{AppID: row.AppID, LegalName: row.LegalName, Email: row.Email}, nil
}
