// Copyright 2024-2026 Aiku AI

package slack

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// TestUserRegistryConcurrentFindOrCreate checks that concurrent lookups for
// one identifier converge on a single store create.
func TestUserRegistryConcurrentFindOrCreate(t *testing.T) {
	t.Parallel()
	st := newTestStore()
	reg := NewUserRegistry(st, nil, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.FindOrCreate(context.Background(), "U1"); err != nil {
				t.Errorf("find-or-create failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := st.Creates(); got != 1 {
		t.Errorf("expected a single create, got %d", got)
	}
}

// TestUserRegistryFetchFailure checks that a failed profile fetch still
// yields a bare record: identity enrichment must not abort dispatch.
func TestUserRegistryFetchFailure(t *testing.T) {
	t.Parallel()
	f := newFakeSlack()
	defer f.Close()
	api, _ := newTestAPI(f)
	f.Respond("users.info", map[string]any{"ok": false, "error": "user_not_found"})

	st := newTestStore()
	reg := NewUserRegistry(st, api, zerolog.Nop())

	user, err := reg.FindOrFetch(context.Background(), "U404")
	if err != nil {
		t.Fatalf("expected a bare record, got error %v", err)
	}
	if user.ID != "U404" || user.Name != "" {
		t.Errorf("unexpected record: %+v", user)
	}
	if got := st.Creates(); got != 1 {
		t.Errorf("expected the bare record to be stored, got %d creates", got)
	}
}

// TestUserRegistrySave checks the upsert path used by change events.
func TestUserRegistrySave(t *testing.T) {
	t.Parallel()
	st := newTestStore()
	reg := NewUserRegistry(st, nil, zerolog.Nop())

	if _, err := reg.Save(context.Background(), &User{ID: "U1", Name: "Alice"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := reg.Save(context.Background(), &User{ID: "U1", Name: "Alice Renamed"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	user, err := reg.Find(context.Background(), "U1")
	if err != nil || user == nil || user.Name != "Alice Renamed" {
		t.Errorf("expected the latest record, got %+v (%v)", user, err)
	}
}

// TestChannelRegistry checks get-or-create and name lookups.
func TestChannelRegistry(t *testing.T) {
	t.Parallel()
	reg := NewChannelRegistry()

	if _, ok := reg.Get("C1"); ok {
		t.Error("expected an empty registry")
	}
	if _, ok := reg.Name("C1"); ok {
		t.Error("expected no name for an unknown channel")
	}

	ch := reg.GetOrCreate("C1")
	if ch.ID != "C1" {
		t.Errorf("unexpected bare record: %+v", ch)
	}
	if _, ok := reg.Name("C1"); ok {
		t.Error("expected no name for a bare record")
	}

	reg.Upsert(&Channel{ID: "C1", Name: "general"})
	if name, ok := reg.Name("C1"); !ok || name != "general" {
		t.Errorf("expected general, got %q (%v)", name, ok)
	}
}
