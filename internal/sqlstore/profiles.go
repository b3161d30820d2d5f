package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/profile"
)

// #region get

// Get returns the profile for (userID, mode) or profile.ErrNotFound.
func (s *Store) Get(ctx context.Context, userID string, mode policy.Mode) (profile.Profile, error) {
	var (
		prefsJSON       string
		constraintsJSON string
		updatedStr      string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT preferences, constraints, updated_at FROM profiles
		 WHERE user_id = ? AND mode = ?`, userID, string(mode),
	).Scan(&prefsJSON, &constraintsJSON, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Profile{}, fmt.Errorf("profile %s/%s: %w", userID, mode, profile.ErrNotFound)
	}
	if err != nil {
		return profile.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return decodeProfile(userID, mode, prefsJSON, constraintsJSON, updatedStr)
}

// #endregion get

// #region get-or-create

// GetOrCreate returns the profile, seeding mode defaults on first access.
// Two concurrent first accesses may both seed; the upsert resolves the race
// last-writer-wins.
func (s *Store) GetOrCreate(ctx context.Context, userID string, mode policy.Mode) (profile.Profile, error) {
	p, err := s.Get(ctx, userID, mode)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, profile.ErrNotFound) {
		return profile.Profile{}, err
	}

	prefs, constraints := s.seed(mode)
	p = profile.Profile{
		UserID:      userID,
		Mode:        mode,
		Preferences: prefs,
		Constraints: constraints,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.Save(ctx, p); err != nil {
		return profile.Profile{}, err
	}
	return p, nil
}

// #endregion get-or-create

// #region save

// Save overwrites the profile in place.
func (s *Store) Save(ctx context.Context, p profile.Profile) error {
	if p.UserID == "" || !p.Mode.Valid() {
		return fmt.Errorf("save profile: missing user id or invalid mode %q", p.Mode)
	}
	prefsJSON, err := json.Marshal(p.Preferences)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	constraintsJSON, err := json.Marshal(p.Constraints)
	if err != nil {
		return fmt.Errorf("encode constraints: %w", err)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, mode, preferences, constraints, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, mode) DO UPDATE SET
			preferences = excluded.preferences,
			constraints = excluded.constraints,
			updated_at = excluded.updated_at`,
		p.UserID, string(p.Mode), string(prefsJSON), string(constraintsJSON),
		p.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// #endregion save

// #region decode
func decodeProfile(userID string, mode policy.Mode, prefsJSON, constraintsJSON, updatedStr string) (profile.Profile, error) {
	p := profile.Profile{UserID: userID, Mode: mode}
	if prefsJSON != "" && prefsJSON != "null" {
		if err := json.Unmarshal([]byte(prefsJSON), &p.Preferences); err != nil {
			return profile.Profile{}, fmt.Errorf("unmarshal preferences: %w", err)
		}
	}
	if constraintsJSON != "" && constraintsJSON != "null" {
		if err := json.Unmarshal([]byte(constraintsJSON), &p.Constraints); err != nil {
			return profile.Profile{}, fmt.Errorf("unmarshal constraints: %w", err)
		}
	}
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return p, nil
}

// #endregion decode
