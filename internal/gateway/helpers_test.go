package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/roomgate/internal/store"
	"github.com/nerrad567/roomgate/internal/store/memory"
)

// Test secrets.
const (
	writeSecret   = "esp-write-token"
	readSecret    = "esp-read-token"
	adminSecret   = "console-admin-secret"
	sessionSecret = "session-signing-secret-0123456789abcdef"
)

var errStoreDown = errors.New("store down")

// call is one store operation seen by recordingStore.
type call struct {
	Verb   Verb
	Path   string
	Value  string
	Fields map[string]string
}

// recordingStore wraps memory.Store, records every call and can fail
// chosen paths.
type recordingStore struct {
	inner *memory.Store

	mu      sync.Mutex
	calls   []call
	failOn  map[string]bool
	failGet bool
}

func newRecordingStore(t *testing.T, seed string) *recordingStore {
	t.Helper()
	inner := memory.New()
	if seed != "" {
		var err error
		inner, err = memory.NewWithDocument(json.RawMessage(seed))
		if err != nil {
			t.Fatalf("seeding store: %v", err)
		}
	}
	return &recordingStore{inner: inner, failOn: map[string]bool{}}
}

func (s *recordingStore) fail(path string) {
	s.mu.Lock()
	s.failOn[path] = true
	s.mu.Unlock()
}

func (s *recordingStore) Put(ctx context.Context, path string, value json.RawMessage) error {
	s.mu.Lock()
	s.calls = append(s.calls, call{Verb: VerbPut, Path: path, Value: string(value)})
	failing := s.failOn[path]
	s.mu.Unlock()
	if failing {
		return errStoreDown
	}
	return s.inner.Put(ctx, path, value)
}

func (s *recordingStore) Patch(ctx context.Context, path string, fields map[string]json.RawMessage) error {
	recorded := make(map[string]string, len(fields))
	for k, v := range fields {
		recorded[k] = string(v)
	}
	s.mu.Lock()
	s.calls = append(s.calls, call{Verb: VerbPatch, Path: path, Fields: recorded})
	failing := s.failOn[path]
	s.mu.Unlock()
	if failing {
		return errStoreDown
	}
	return s.inner.Patch(ctx, path, fields)
}

func (s *recordingStore) GetAll(ctx context.Context) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{Verb: "GET", Path: "/"})
	failing := s.failGet
	s.mu.Unlock()
	if failing {
		return nil, errStoreDown
	}
	return s.inner.GetAll(ctx)
}

func (s *recordingStore) Calls() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

// document decodes the inner store state for assertions.
func (s *recordingStore) document(t *testing.T) map[string]any {
	t.Helper()
	raw, err := s.inner.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	doc := map[string]any{}
	if store.IsNull(raw) {
		return doc
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decoding document: %v", err)
	}
	return doc
}

// recordingNotifier collects events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

func testConfig() Config {
	return Config{
		Secrets: Secrets{
			Write: writeSecret,
			Read:  readSecret,
			Admin: adminSecret,
		},
		SessionSecret: sessionSecret,
		StoreTimeout:  time.Second,
	}
}

func bearer(token string) string {
	return "Bearer " + token
}
