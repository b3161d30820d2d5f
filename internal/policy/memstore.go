package policy

import (
	"context"
	"fmt"
	"sync"
)

// #region memstore-struct
// MemStore is the in-memory Store backend. It applies the same ownership
// scoping and applicability filtering as the relational backends.
type MemStore struct {
	mu   sync.RWMutex
	sets map[string]ConstraintSet
}

// NewMemStore returns an empty in-memory constraint store.
func NewMemStore() *MemStore {
	return &MemStore{sets: make(map[string]ConstraintSet)}
}

// #endregion memstore-struct

// #region constraint-sets

// ConstraintSets returns applicable sets sorted by priority descending.
func (s *MemStore) ConstraintSets(ctx context.Context, userID string, mode Mode, persona Persona) ([]ConstraintSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ConstraintSet
	for _, set := range s.sets {
		if set.OwnerID != "" && set.OwnerID != userID {
			continue
		}
		if !set.AppliesTo.Matches(mode, persona) {
			continue
		}
		out = append(out, cloneSet(set))
	}
	SortSets(out)
	return out, nil
}

// #endregion constraint-sets

// #region save

// SaveConstraintSet inserts or replaces a set.
func (s *MemStore) SaveConstraintSet(ctx context.Context, set ConstraintSet) error {
	if set.ID == "" {
		return fmt.Errorf("save constraint set: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[set.ID] = cloneSet(set)
	return nil
}

// #endregion save

// #region lookup

// Constraint looks up a constraint by id across all sets.
func (s *MemStore) Constraint(ctx context.Context, id string) (Constraint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, set := range s.sets {
		for _, c := range set.Constraints {
			if c.ID == id {
				return c, nil
			}
		}
	}
	return Constraint{}, fmt.Errorf("constraint %s: %w", id, ErrNotFound)
}

// UpdateConstraint replaces a constraint in place within its owning set.
func (s *MemStore) UpdateConstraint(ctx context.Context, c Constraint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for setID, set := range s.sets {
		for i, existing := range set.Constraints {
			if existing.ID == c.ID {
				set.Constraints[i] = c
				s.sets[setID] = set
				return nil
			}
		}
	}
	return fmt.Errorf("constraint %s: %w", c.ID, ErrNotFound)
}

// #endregion lookup

// #region delete

// DeleteConstraintSet removes a set and its constraints.
func (s *MemStore) DeleteConstraintSet(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sets[id]; !ok {
		return fmt.Errorf("constraint set %s: %w", id, ErrNotFound)
	}
	delete(s.sets, id)
	return nil
}

// #endregion delete

// #region clone
func cloneSet(set ConstraintSet) ConstraintSet {
	out := set
	out.Constraints = append([]Constraint(nil), set.Constraints...)
	out.AppliesTo.Modes = append([]Mode(nil), set.AppliesTo.Modes...)
	out.AppliesTo.Personas = append([]Persona(nil), set.AppliesTo.Personas...)
	return out
}

// #endregion clone
