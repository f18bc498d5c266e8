package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cremosos/core/internal/infrastructure/config"
)

// Backend names accepted in configuration.
const (
	BackendJSON     = "json"
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Backend persists the serialized form of whole collections. It knows nothing
// about records; the Store owns encoding, locking and merge semantics.
type Backend interface {
	// Prepare makes the storage root usable (directory, table). Idempotent.
	Prepare(ctx context.Context) error

	// Init creates an empty collection if none exists and reports whether it
	// did. Existing data is never touched.
	Init(ctx context.Context, collection string) (bool, error)

	// Load returns the stored document, or nil and no error when the
	// collection has never been written.
	Load(ctx context.Context, collection string) ([]byte, error)

	// Save replaces the stored document. Readers observe either the old or the
	// new document, never a partial one.
	Save(ctx context.Context, collection string, data []byte) error

	// Close releases backend resources.
	Close() error
}

// NewBackend builds the backend selected by cfg. SQL backends need db, which
// the caller opens (and migrates) through the database package.
func NewBackend(cfg config.StorageConfig, db *sqlx.DB) (Backend, error) {
	switch cfg.Backend {
	case BackendJSON, "":
		return NewFileBackend(cfg.DataDir), nil
	case BackendMemory:
		return NewMemoryBackend(), nil
	case BackendSQLite, BackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("storage backend %q requires a database connection", cfg.Backend)
		}
		return NewSQLBackend(db), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q (supported: json, memory, sqlite, postgres)", cfg.Backend)
	}
}
