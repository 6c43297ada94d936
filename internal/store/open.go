package store

import (
	"context"

	"github.com/gokkuu100/wakiliweb-sub002/internal/datastore"
)

// Backend bundles the two persistence interfaces a wizard deployment needs.
type Backend interface {
	datastore.DraftStore
	datastore.IdentityResolver
}

// Open builds a Backend from configuration: the Postgres store (with schema
// ensured) or the in-memory mock.
func Open(ctx context.Context, cfg datastore.Config) (Backend, error) {
	switch cfg.Type {
	case datastore.MockStore:
		return datastore.NewInMemoryStore(), nil
	case datastore.PostgreSQLStore:
		st, err := NewStore(cfg.ConnectionString)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, &datastore.UnsupportedStoreTypeError{Type: string(cfg.Type)}
	}
}
