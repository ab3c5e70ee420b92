// Package store defines the narrow interface roomgate uses to reach the
// backing key-value tree, plus the path and tree helpers shared by the
// drivers in its sub-packages.
//
// The tree is a single JSON document. Paths are slash-separated segments
// relative to the root ("roomStatus", "admin/heartbeat", "rooms/101").
// Put replaces the value at a path wholesale; Patch overlays the given keys
// onto the object at a path and leaves every other key untouched.
//
// Drivers:
//   - firebase: Firebase Realtime Database REST API (production)
//   - memory:   in-process tree for development and tests
//   - sqlite:   the tree persisted as one JSON document in a local SQLite file
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Store is the backing key-value tree.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Put replaces the value at path. A JSON null removes the path.
	Put(ctx context.Context, path string, value json.RawMessage) error

	// Patch merges fields into the object at path without touching siblings.
	Patch(ctx context.Context, path string, fields map[string]json.RawMessage) error

	// GetAll returns the whole tree. An empty tree is returned as null.
	GetAll(ctx context.Context) (json.RawMessage, error)
}

// maxKeyLength bounds a single path segment, matching the hosted store's limit.
const maxKeyLength = 768

// ValidateKey reports whether s is usable as a single path segment.
//
// The hosted store forbids '.', '$', '#', '[', ']', '/' and ASCII control
// characters in keys.
func ValidateKey(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidPath)
	}
	if len(s) > maxKeyLength {
		return fmt.Errorf("%w: key longer than %d bytes", ErrInvalidPath, maxKeyLength)
	}
	for _, r := range s {
		if strings.ContainsRune(".$#[]/", r) || r == unicode.ReplacementChar || (r < 0x20 || r == 0x7f) {
			return fmt.Errorf("%w: key %q contains a forbidden character", ErrInvalidPath, s)
		}
	}
	return nil
}

// SplitPath validates path and returns its segments.
// The root path ("" or "/") is rejected: drivers never write the root.
func SplitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: writes to the root are not allowed", ErrInvalidPath)
	}
	segments := strings.Split(trimmed, "/")
	for _, seg := range segments {
		if err := ValidateKey(seg); err != nil {
			return nil, err
		}
	}
	return segments, nil
}

// IsNull reports whether raw is empty or the JSON literal null.
func IsNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
