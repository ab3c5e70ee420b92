package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/roomgate/internal/store"
)

// emptyTree is relayed when the store holds nothing.
var emptyTree = json.RawMessage("{}")

// SnapshotReader relays the whole remote tree.
type SnapshotReader struct {
	store   store.Store
	timeout time.Duration
}

// NewSnapshotReader returns a reader bounding the root read by timeout.
func NewSnapshotReader(st store.Store, timeout time.Duration) *SnapshotReader {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &SnapshotReader{store: st, timeout: timeout}
}

// ReadAll returns the tree verbatim, or {} when the store yields null or nothing.
func (r *SnapshotReader) ReadAll(ctx context.Context) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tree, err := r.store.GetAll(callCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
	}
	if store.IsNull(tree) {
		return emptyTree, nil
	}
	return tree, nil
}
