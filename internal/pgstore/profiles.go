package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/audit"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/profile"
)

// #region profiles

// Get returns the profile for (userID, mode) or profile.ErrNotFound.
func (s *Store) Get(ctx context.Context, userID string, mode policy.Mode) (profile.Profile, error) {
	var (
		prefsJSON       string
		constraintsJSON string
		updatedAt       time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT preferences, constraints, updated_at FROM profiles
		 WHERE user_id = $1 AND mode = $2`, userID, string(mode),
	).Scan(&prefsJSON, &constraintsJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Profile{}, fmt.Errorf("profile %s/%s: %w", userID, mode, profile.ErrNotFound)
	}
	if err != nil {
		return profile.Profile{}, fmt.Errorf("get profile: %w", err)
	}

	p := profile.Profile{UserID: userID, Mode: mode, UpdatedAt: updatedAt}
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
	return p, nil
}

// GetOrCreate returns the profile, seeding mode defaults on first access.
// Concurrent first accesses resolve last-writer-wins through the upsert.
func (s *Store) GetOrCreate(ctx context.Context, userID string, mode policy.Mode) (profile.Profile, error) {
	p, err := s.Get(ctx, userID, mode)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, profile.ErrNotFound) {
		return profile.Profile{}, err
	}

	prefs, constraints := s.seed(mode)
	s.logger.Debug("seeding profile", "user", userID, "mode", mode)
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
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, mode) DO UPDATE SET
			preferences = excluded.preferences,
			constraints = excluded.constraints,
			updated_at = excluded.updated_at`,
		p.UserID, string(p.Mode), string(prefsJSON), string(constraintsJSON), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// #endregion profiles

// #region decisions

// Record writes a decision entry to the decision_log table.
func (s *Store) Record(ctx context.Context, e audit.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	reasonsJSON, err := json.Marshal(e.Reasons)
	if err != nil {
		return fmt.Errorf("encode reasons: %w", err)
	}
	triggeredJSON, err := json.Marshal(e.Triggered)
	if err != nil {
		return fmt.Errorf("encode triggered: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decision_log (kind, user_id, subject, decision, reasons_json, triggered_json, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.Kind),
		nullIfEmpty(e.UserID),
		nullIfEmpty(e.Subject),
		e.Decision,
		string(reasonsJSON),
		string(triggeredJSON),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// RecentDecisions returns the newest decision rows, most recent first.
func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, user_id, subject, decision, reasons_json, triggered_json, created_at
		 FROM decision_log ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e             audit.Entry
			kind          string
			userID        sql.NullString
			subject       sql.NullString
			reasonsJSON   string
			triggeredJSON string
		)
		if err := rows.Scan(&kind, &userID, &subject, &e.Decision, &reasonsJSON, &triggeredJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.Kind = audit.Kind(kind)
		if userID.Valid {
			e.UserID = userID.String
		}
		if subject.Valid {
			e.Subject = subject.String
		}
		if err := json.Unmarshal([]byte(reasonsJSON), &e.Reasons); err != nil {
			return nil, fmt.Errorf("unmarshal reasons: %w", err)
		}
		if err := json.Unmarshal([]byte(triggeredJSON), &e.Triggered); err != nil {
			return nil, fmt.Errorf("unmarshal triggered: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion decisions
