package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLBackend stores each collection document as one row of the collections
// table created by the database migrations:
//
//	collections(name TEXT PRIMARY KEY, data TEXT NOT NULL, updated_at TIMESTAMP)
//
// Queries are written with ? placeholders and rebound for the driver, so the
// same backend serves sqlite3 and postgres.
type SQLBackend struct {
	db *sqlx.DB
}

func NewSQLBackend(db *sqlx.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

// Prepare checks that the connection is alive and the schema is migrated.
func (b *SQLBackend) Prepare(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	var n int
	if err := b.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM collections"); err != nil {
		return fmt.Errorf("collections table unavailable (run migrations): %w", err)
	}
	return nil
}

func (b *SQLBackend) Init(ctx context.Context, collection string) (bool, error) {
	res, err := b.db.ExecContext(ctx, b.db.Rebind(
		`INSERT INTO collections (name, data) VALUES (?, '[]') ON CONFLICT (name) DO NOTHING`),
		collection,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *SQLBackend) Load(ctx context.Context, collection string) ([]byte, error) {
	var data string
	err := b.db.GetContext(ctx, &data, b.db.Rebind(`SELECT data FROM collections WHERE name = ?`), collection)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

func (b *SQLBackend) Save(ctx context.Context, collection string, data []byte) error {
	_, err := b.db.ExecContext(ctx, b.db.Rebind(
		`INSERT INTO collections (name, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`),
		collection, string(data),
	)
	return err
}

// Close is a no-op: the connection belongs to the database package.
func (b *SQLBackend) Close() error { return nil }
