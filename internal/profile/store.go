package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
)

// ErrNotFound is returned by Get when no profile exists for the pair.
var ErrNotFound = errors.New("profile not found")

// #region store-interface
// Store persists profiles keyed by (user, mode). GetOrCreate must be at
// least read-committed; two concurrent first accesses may both seed defaults
// and the backend resolves the race last-writer-wins.
type Store interface {
	// Get returns the profile for (userID, mode) or ErrNotFound.
	Get(ctx context.Context, userID string, mode policy.Mode) (Profile, error)

	// GetOrCreate returns the profile, seeding mode defaults on first access.
	GetOrCreate(ctx context.Context, userID string, mode policy.Mode) (Profile, error)

	// Save overwrites the profile in place.
	Save(ctx context.Context, p Profile) error
}

// #endregion store-interface

// #region memstore
// MemStore is the in-memory Store backend.
type MemStore struct {
	mu       sync.Mutex
	seed     SeedFunc
	profiles map[string]Profile
	now      func() time.Time
}

// NewMemStore returns an in-memory profile store seeding defaults from seed.
func NewMemStore(seed SeedFunc) *MemStore {
	if seed == nil {
		seed = EmptySeed
	}
	return &MemStore{
		seed:     seed,
		profiles: make(map[string]Profile),
		now:      time.Now,
	}
}

func key(userID string, mode policy.Mode) string {
	return userID + "/" + string(mode)
}

// Get returns the profile for (userID, mode) or ErrNotFound.
func (s *MemStore) Get(ctx context.Context, userID string, mode policy.Mode) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[key(userID, mode)]
	if !ok {
		return Profile{}, fmt.Errorf("profile %s/%s: %w", userID, mode, ErrNotFound)
	}
	return cloneProfile(p), nil
}

// GetOrCreate returns the profile, creating it from mode defaults when the
// pair is first accessed.
func (s *MemStore) GetOrCreate(ctx context.Context, userID string, mode policy.Mode) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(userID, mode)
	if p, ok := s.profiles[k]; ok {
		return cloneProfile(p), nil
	}
	prefs, constraints := s.seed(mode)
	p := Profile{
		UserID:      userID,
		Mode:        mode,
		Preferences: prefs,
		Constraints: constraints,
		UpdatedAt:   s.now().UTC(),
	}
	s.profiles[k] = cloneProfile(p)
	return p, nil
}

// Save overwrites the profile in place.
func (s *MemStore) Save(ctx context.Context, p Profile) error {
	if p.UserID == "" || !p.Mode.Valid() {
		return fmt.Errorf("save profile: missing user id or invalid mode %q", p.Mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[key(p.UserID, p.Mode)] = cloneProfile(p)
	return nil
}

func cloneProfile(p Profile) Profile {
	out := p
	out.Preferences = append([]Preference(nil), p.Preferences...)
	out.Constraints = append([]policy.Constraint(nil), p.Constraints...)
	return out
}

// #endregion memstore
