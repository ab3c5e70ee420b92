package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/roomgate/internal/store"
)

// defaultStoreTimeout applies when no per-call timeout is configured.
const defaultStoreTimeout = 10 * time.Second

// Result lists which fields reached the store.
type Result struct {
	Written []Field
	Failed  []Field
}

// StoreForwarder issues planned writes against a store in order.
type StoreForwarder struct {
	store   store.Store
	timeout time.Duration
}

// NewStoreForwarder returns a forwarder bounding each call by timeout.
func NewStoreForwarder(st store.Store, timeout time.Duration) *StoreForwarder {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &StoreForwarder{store: st, timeout: timeout}
}

// Forward issues writes in order, one store call each, no retries.
//
// A failed mandatory write stops the sequence and returns
// ErrUpstreamFailure. Failed optional writes are collected while the rest
// are still attempted; if any failed the error is ErrUpstreamPartial and
// Result.Failed names them.
func (f *StoreForwarder) Forward(ctx context.Context, writes []Write) (Result, error) {
	var (
		res      Result
		failures []error
	)

	for _, w := range writes {
		if err := f.apply(ctx, w); err != nil {
			if w.Mandatory {
				return res, fmt.Errorf("%w: %s: %w", ErrUpstreamFailure, w.Field, err)
			}
			res.Failed = append(res.Failed, w.Field)
			failures = append(failures, fmt.Errorf("%s: %w", w.Field, err))
			continue
		}
		res.Written = append(res.Written, w.Field)
	}

	if len(failures) > 0 {
		return res, fmt.Errorf("%w: %w", ErrUpstreamPartial, errors.Join(failures...))
	}
	return res, nil
}

func (f *StoreForwarder) apply(ctx context.Context, w Write) error {
	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	switch w.Verb {
	case VerbPut:
		return f.store.Put(callCtx, w.Path, w.Value)
	case VerbPatch:
		return f.store.Patch(callCtx, w.Path, w.Fields)
	default:
		return fmt.Errorf("unknown verb %q", w.Verb)
	}
}
