package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
)

func TestSetPreferencePreservesOrder(t *testing.T) {
	p := Profile{
		Preferences: []Preference{
			{Key: "layout", Value: "dense"},
			{Key: "notifications", Value: "all"},
		},
	}

	p.SetPreference("layout", "minimal")
	p.SetPreference("theme", "dark")

	if len(p.Preferences) != 3 {
		t.Fatalf("expected 3 preferences, got %d", len(p.Preferences))
	}
	if p.Preferences[0].Key != "layout" || p.Preferences[0].Value != "minimal" {
		t.Fatalf("in-place rewrite failed: %+v", p.Preferences[0])
	}
	if p.Preferences[2].Key != "theme" {
		t.Fatalf("new key must append, got %+v", p.Preferences)
	}

	v, ok := p.Preference("notifications")
	if !ok || v != "all" {
		t.Fatalf("untouched key changed: %q %v", v, ok)
	}
}

func TestMemStoreGetOrCreateSeeds(t *testing.T) {
	seed := func(m policy.Mode) ([]Preference, []policy.Constraint) {
		return []Preference{{Key: "mode", Value: string(m)}}, nil
	}
	store := NewMemStore(seed)
	ctx := context.Background()

	_, err := store.Get(ctx, "alice", policy.ModeWork)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before creation, got %v", err)
	}

	p, err := store.GetOrCreate(ctx, "alice", policy.ModeWork)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if v, _ := p.Preference("mode"); v != "work" {
		t.Fatalf("seed not applied: %+v", p.Preferences)
	}

	p.SetPreference("layout", "dense")
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "alice", policy.ModeWork)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v, _ := got.Preference("layout"); v != "dense" {
		t.Fatalf("save not persisted: %+v", got.Preferences)
	}
}

func TestMemStoreProfilesAreModeScoped(t *testing.T) {
	store := NewMemStore(EmptySeed)
	ctx := context.Background()

	work, err := store.GetOrCreate(ctx, "alice", policy.ModeWork)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	work.SetPreference("layout", "dense")
	if err := store.Save(ctx, work); err != nil {
		t.Fatalf("save: %v", err)
	}

	home, err := store.GetOrCreate(ctx, "alice", policy.ModeHome)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if _, ok := home.Preference("layout"); ok {
		t.Fatal("home profile must not inherit work preferences")
	}
}

func TestMemStoreReturnsCopies(t *testing.T) {
	store := NewMemStore(EmptySeed)
	ctx := context.Background()

	p, err := store.GetOrCreate(ctx, "alice", policy.ModeDefault)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	p.SetPreference("layout", "dense")

	again, err := store.Get(ctx, "alice", policy.ModeDefault)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := again.Preference("layout"); ok {
		t.Fatal("mutating a returned profile must not affect the store")
	}
}
