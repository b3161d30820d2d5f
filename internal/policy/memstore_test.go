package policy

import (
	"context"
	"errors"
	"testing"
)

func TestMemStoreConstraintLookup(t *testing.T) {
	store := seededStore(t, blockDeleteSet())

	c, err := store.Constraint(context.Background(), "no-delete")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if c.Kind() != KindBlockTool {
		t.Fatalf("expected block-tool, got %s", c.Kind())
	}

	_, err = store.Constraint(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreUpdateConstraint(t *testing.T) {
	store := seededStore(t, blockDeleteSet())

	updated := Constraint{
		ID:       "no-delete",
		Severity: SeveritySoft,
		Active:   false,
		Params:   BlockTool{ToolID: "delete-file"},
	}
	if err := store.UpdateConstraint(context.Background(), updated); err != nil {
		t.Fatalf("update: %v", err)
	}

	c, err := store.Constraint(context.Background(), "no-delete")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if c.Active || c.Severity != SeveritySoft {
		t.Fatalf("update not persisted: %+v", c)
	}

	missing := Constraint{ID: "nope", Params: Other{}}
	if err := store.UpdateConstraint(context.Background(), missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreDeleteConstraintSet(t *testing.T) {
	store := seededStore(t, blockDeleteSet())

	if err := store.DeleteConstraintSet(context.Background(), "safety"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	sets, err := store.ConstraintSets(context.Background(), "", ModeDefault, "")
	if err != nil {
		t.Fatalf("constraint sets: %v", err)
	}
	if len(sets) != 0 {
		t.Fatalf("expected empty store, got %d sets", len(sets))
	}

	if err := store.DeleteConstraintSet(context.Background(), "safety"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreReturnsCopies(t *testing.T) {
	store := seededStore(t, blockDeleteSet())

	sets, err := store.ConstraintSets(context.Background(), "", ModeDefault, "")
	if err != nil {
		t.Fatalf("constraint sets: %v", err)
	}
	sets[0].Constraints[0].Active = false

	c, err := store.Constraint(context.Background(), "no-delete")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !c.Active {
		t.Fatal("mutating a returned set must not affect the store")
	}
}
