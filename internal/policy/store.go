package policy

import (
	"context"
	"errors"
	"sort"
)

// #region errors
// ErrNotFound is returned by stores when a constraint or set does not exist.
var ErrNotFound = errors.New("not found")

// #endregion errors

// #region store-interface
// Store persists constraint sets. All backends must produce identical
// ordering (priority descending) and applicability filtering; relational
// backends additionally merge system defaults (owner unset) with the rows
// owned by the requested user.
type Store interface {
	// ConstraintSets returns the sets applicable to (userID, mode, persona),
	// sorted by priority descending. userID "" returns system defaults only.
	// persona "" skips persona filtering.
	ConstraintSets(ctx context.Context, userID string, mode Mode, persona Persona) ([]ConstraintSet, error)

	// SaveConstraintSet inserts or replaces a set and its constraints.
	SaveConstraintSet(ctx context.Context, set ConstraintSet) error

	// Constraint looks up a single constraint by id across all sets.
	Constraint(ctx context.Context, id string) (Constraint, error)

	// UpdateConstraint replaces a constraint in place within its owning set.
	UpdateConstraint(ctx context.Context, c Constraint) error

	// DeleteConstraintSet removes a set and all constraints it owns.
	DeleteConstraintSet(ctx context.Context, id string) error
}

// #endregion store-interface

// #region ordering
// SortSets orders sets by priority descending; ties break on name then id so
// every backend flattens constraints in the same order.
func SortSets(sets []ConstraintSet) {
	sort.SliceStable(sets, func(i, j int) bool {
		if sets[i].Priority != sets[j].Priority {
			return sets[i].Priority > sets[j].Priority
		}
		if sets[i].Name != sets[j].Name {
			return sets[i].Name < sets[j].Name
		}
		return sets[i].ID < sets[j].ID
	})
}

// #endregion ordering
