// Package sqlite implements store.Store on a local SQLite file.
//
// The whole tree is one JSON document in the documents table. Each write
// loads the document, applies the change with store.Tree and saves it inside
// one transaction, so concurrent requests never lose each other's updates.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/roomgate/internal/infrastructure/database"
	"github.com/nerrad567/roomgate/internal/store"
	_ "github.com/nerrad567/roomgate/migrations" // registers embedded migrations
)

// documentID is the primary key of the single relay document.
const documentID = "root"

// Store persists the relay tree in SQLite.
type Store struct {
	db *database.DB
}

// New wraps an open database. Migrations must already have run.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// Open opens the database at cfg.Path, applies migrations and returns a Store.
// Callers own the returned Store and must Close it.
func Open(ctx context.Context, cfg database.Config) (*Store, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("sqlite store: %w", err)
	}
	return New(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, path string, value json.RawMessage) error {
	return s.update(ctx, func(t *store.Tree) error {
		return t.Put(path, value)
	})
}

// Patch implements store.Store.
func (s *Store) Patch(ctx context.Context, path string, fields map[string]json.RawMessage) error {
	return s.update(ctx, func(t *store.Tree) error {
		return t.Patch(path, fields)
	})
}

// GetAll implements store.Store.
func (s *Store) GetAll(ctx context.Context) (json.RawMessage, error) {
	body, err := loadDocument(ctx, s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE id = ?", documentID))
	if err != nil {
		return nil, err
	}
	if store.IsNull(body) {
		return json.RawMessage("null"), nil
	}
	return body, nil
}

// update runs apply against the stored tree inside a transaction.
func (s *Store) update(ctx context.Context, apply func(*store.Tree) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: starting transaction: %w", store.ErrRequestFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	body, err := loadDocument(ctx, tx.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE id = ?", documentID))
	if err != nil {
		return err
	}

	tree, err := store.DecodeTree(body)
	if err != nil {
		return fmt.Errorf("%w: stored document: %w", store.ErrRequestFailed, err)
	}
	if err := apply(tree); err != nil {
		return err
	}

	encoded, err := tree.Encode()
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, documentID, string(encoded), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("%w: saving document: %w", store.ErrRequestFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing document: %w", store.ErrRequestFailed, err)
	}
	return nil
}

// loadDocument scans the document body. A missing row reads as null.
func loadDocument(ctx context.Context, row *sql.Row) (json.RawMessage, error) {
	var body string
	err := row.Scan(&body)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return json.RawMessage("null"), nil
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", store.ErrRequestFailed, ctxErr)
		}
		return nil, fmt.Errorf("%w: loading document: %w", store.ErrRequestFailed, err)
	}
	return json.RawMessage(body), nil
}
