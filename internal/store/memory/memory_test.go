package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/nerrad567/roomgate/internal/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

func TestStore_EmptyGetAllIsNull(t *testing.T) {
	s := New()

	got, err := s.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if string(got) != "null" {
		t.Errorf("GetAll() = %s, want null", got)
	}
}

func TestStore_PatchMergesIntoSeededDocument(t *testing.T) {
	s, err := NewWithDocument(json.RawMessage(`{"admin":{"heartbeat":"X"}}`))
	if err != nil {
		t.Fatalf("NewWithDocument() error = %v", err)
	}
	ctx := context.Background()

	if err := s.Patch(ctx, "admin", map[string]json.RawMessage{"cmd": json.RawMessage(`"Y"`)}); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	got, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if string(got) != `{"admin":{"cmd":"Y","heartbeat":"X"}}` {
		t.Errorf("GetAll() = %s", got)
	}
}

func TestStore_PutIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	value := json.RawMessage(`{"101":"free"}`)

	if err := s.Put(ctx, "roomStatus", value); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	first, _ := s.GetAll(ctx)

	if err := s.Put(ctx, "roomStatus", value); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	second, _ := s.GetAll(ctx)

	if string(first) != string(second) {
		t.Errorf("state after repeat = %s, want %s", second, first)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Put(ctx, "roomStatus", json.RawMessage(`1`)); err == nil {
		t.Error("Put() with cancelled context expected error")
	}
	if _, err := s.GetAll(ctx); err == nil {
		t.Error("GetAll() with cancelled context expected error")
	}
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("rooms/%d", i)
			if err := s.Put(ctx, path, json.RawMessage(`{"headcount":1}`)); err != nil {
				t.Errorf("Put(%s) error = %v", path, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	var doc struct {
		Rooms map[string]any `json:"rooms"`
	}
	if err := json.Unmarshal(got, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Rooms) != 50 {
		t.Errorf("rooms = %d, want 50", len(doc.Rooms))
	}
}
