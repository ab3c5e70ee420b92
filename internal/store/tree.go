package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Tree is a decoded JSON document with the write semantics of the hosted
// store. It is used by the drivers that keep the document themselves
// (memory, sqlite).
//
// Semantics follow the hosted store:
//   - writing null (or an empty object) removes the key
//   - parents left empty by a removal disappear as well
//   - writing beneath a scalar replaces the scalar with an object
//
// Tree is not safe for concurrent use; drivers serialise access.
type Tree struct {
	root map[string]any
}

// DecodeTree parses raw into a Tree. Empty input and null yield an empty tree.
func DecodeTree(raw json.RawMessage) (*Tree, error) {
	t := &Tree{root: map[string]any{}}
	if IsNull(raw) {
		return t, nil
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: document root must be an object", ErrInvalidValue)
	}
	t.root = m
	return t, nil
}

// Encode returns the document as JSON. An empty tree encodes as null.
func (t *Tree) Encode() (json.RawMessage, error) {
	if len(t.root) == 0 {
		return json.RawMessage("null"), nil
	}
	data, err := json.Marshal(t.root)
	if err != nil {
		return nil, fmt.Errorf("encoding tree: %w", err)
	}
	return data, nil
}

// Put replaces the value at path.
func (t *Tree) Put(path string, value json.RawMessage) error {
	segments, err := SplitPath(path)
	if err != nil {
		return err
	}
	v, err := decodeValue(value)
	if err != nil {
		return err
	}
	setAt(t.root, segments, v)
	return nil
}

// Patch overlays fields onto the object at path.
func (t *Tree) Patch(path string, fields map[string]json.RawMessage) error {
	segments, err := SplitPath(path)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return ErrInvalidFields
	}

	decoded := make(map[string]any, len(fields))
	for k, raw := range fields {
		if err := ValidateKey(k); err != nil {
			return err
		}
		v, err := decodeValue(raw)
		if err != nil {
			return err
		}
		decoded[k] = v
	}

	patchAt(t.root, segments, decoded)
	return nil
}

// decodeValue parses raw JSON keeping numbers exact.
func decodeValue(raw json.RawMessage) (any, error) {
	if IsNull(raw) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrInvalidValue)
	}
	return v, nil
}

// isEmpty reports whether v removes a key when written.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	m, ok := v.(map[string]any)
	return ok && len(m) == 0
}

func setAt(node map[string]any, segments []string, v any) {
	key := segments[0]
	if len(segments) == 1 {
		if isEmpty(v) {
			delete(node, key)
		} else {
			node[key] = v
		}
		return
	}

	child, ok := node[key].(map[string]any)
	if !ok {
		if isEmpty(v) {
			return
		}
		child = map[string]any{}
		node[key] = child
	}
	setAt(child, segments[1:], v)
	if len(child) == 0 {
		delete(node, key)
	}
}

func patchAt(node map[string]any, segments []string, fields map[string]any) {
	if len(segments) == 0 {
		for k, v := range fields {
			if isEmpty(v) {
				delete(node, k)
			} else {
				node[k] = v
			}
		}
		return
	}

	key := segments[0]
	child, ok := node[key].(map[string]any)
	if !ok {
		child = map[string]any{}
		node[key] = child
	}
	patchAt(child, segments[1:], fields)
	if len(child) == 0 {
		delete(node, key)
	}
}
