// Package memory provides an in-process implementation of store.Store.
//
// It applies the same replace/merge semantics as the hosted tree and is used
// for local development (store.driver: memory) and as the store double in
// tests. Nothing survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nerrad567/roomgate/internal/store"
)

// Store is a thread-safe in-memory key-value tree.
type Store struct {
	mu   sync.RWMutex
	tree *store.Tree
}

// New returns an empty Store.
func New() *Store {
	tree, _ := store.DecodeTree(nil) //nolint:errcheck // empty input cannot fail
	return &Store{tree: tree}
}

// NewWithDocument returns a Store seeded with doc.
func NewWithDocument(doc json.RawMessage) (*Store, error) {
	tree, err := store.DecodeTree(doc)
	if err != nil {
		return nil, err
	}
	return &Store{tree: tree}, nil
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, path string, value json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Put(path, value)
}

// Patch implements store.Store.
func (s *Store) Patch(ctx context.Context, path string, fields map[string]json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Patch(path, fields)
}

// GetAll implements store.Store.
func (s *Store) GetAll(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Encode()
}
