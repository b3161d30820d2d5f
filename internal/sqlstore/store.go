package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/profile"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS constraint_sets (
	set_id           TEXT PRIMARY KEY,
	owner_id         TEXT,
	name             TEXT NOT NULL,
	priority         INTEGER NOT NULL,
	applies_modes    TEXT,
	applies_personas TEXT,
	updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS constraints (
	constraint_id TEXT PRIMARY KEY,
	set_id        TEXT NOT NULL,
	position      INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	severity      TEXT NOT NULL,
	active        INTEGER NOT NULL,
	description   TEXT,
	roles         TEXT,
	params        TEXT NOT NULL,
	FOREIGN KEY (set_id) REFERENCES constraint_sets(set_id)
);

CREATE TABLE IF NOT EXISTS profiles (
	user_id     TEXT NOT NULL,
	mode        TEXT NOT NULL,
	preferences TEXT NOT NULL,
	constraints TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (user_id, mode)
);

CREATE TABLE IF NOT EXISTS decision_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	kind           TEXT NOT NULL,
	user_id        TEXT,
	subject        TEXT,
	decision       TEXT NOT NULL,
	reasons_json   TEXT,
	triggered_json TEXT,
	created_at     TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store is the SQLite backend for constraint sets, profiles, and the
// decision log. It implements policy.Store, profile.Store, and
// audit.Recorder.
type Store struct {
	db   *sql.DB
	seed profile.SeedFunc
}

// #endregion store-struct

// #region constructor
// Open opens a SQLite database, runs migrations, and returns a store that
// seeds new profiles from seed.
func Open(dbPath string, seed profile.SeedFunc) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if seed == nil {
		seed = profile.EmptySeed
	}
	return &Store{db: db, seed: seed}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region constraint-sets

// ConstraintSets returns applicable sets sorted by priority descending.
// Rows are scoped by owner_id IS NULL OR owner_id = ? so system defaults
// merge with user overrides; mode/persona filtering runs on the decoded
// appliesTo fields to keep semantics identical to the other backends.
func (s *Store) ConstraintSets(ctx context.Context, userID string, mode policy.Mode, persona policy.Persona) ([]policy.ConstraintSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT set_id, owner_id, name, priority, applies_modes, applies_personas
		 FROM constraint_sets
		 WHERE owner_id IS NULL OR owner_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query constraint sets: %w", err)
	}
	defer rows.Close()

	var sets []policy.ConstraintSet
	for rows.Next() {
		set, err := scanSet(rows)
		if err != nil {
			return nil, err
		}
		if !set.AppliesTo.Matches(mode, persona) {
			continue
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan constraint sets: %w", err)
	}

	for i := range sets {
		constraints, err := s.setConstraints(ctx, sets[i].ID)
		if err != nil {
			return nil, err
		}
		sets[i].Constraints = constraints
	}

	policy.SortSets(sets)
	return sets, nil
}

func (s *Store) setConstraints(ctx context.Context, setID string) ([]policy.Constraint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT constraint_id, kind, severity, active, description, roles, params
		 FROM constraints WHERE set_id = ? ORDER BY position`, setID)
	if err != nil {
		return nil, fmt.Errorf("query constraints for %s: %w", setID, err)
	}
	defer rows.Close()

	var out []policy.Constraint
	for rows.Next() {
		c, err := scanConstraint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// #endregion constraint-sets

// #region save-set

// SaveConstraintSet replaces a set and its constraints in one transaction.
func (s *Store) SaveConstraintSet(ctx context.Context, set policy.ConstraintSet) error {
	if set.ID == "" {
		return fmt.Errorf("save constraint set: missing id")
	}
	modesJSON, personasJSON, err := encodeAppliesTo(set.AppliesTo)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM constraints WHERE set_id = ?`, set.ID); err != nil {
		return fmt.Errorf("clear constraints: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO constraint_sets (set_id, owner_id, name, priority, applies_modes, applies_personas, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(set_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			priority = excluded.priority,
			applies_modes = excluded.applies_modes,
			applies_personas = excluded.applies_personas,
			updated_at = excluded.updated_at`,
		set.ID, nullIfEmpty(set.OwnerID), set.Name, set.Priority,
		modesJSON, personasJSON, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("upsert set: %w", err)
	}

	for i, c := range set.Constraints {
		params, err := policy.EncodeParams(c.Params)
		if err != nil {
			return fmt.Errorf("encode params for %s: %w", c.ID, err)
		}
		roles, err := json.Marshal(c.AppliesToRoles)
		if err != nil {
			return fmt.Errorf("encode roles for %s: %w", c.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO constraints (constraint_id, set_id, position, kind, severity, active, description, roles, params)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, set.ID, i, string(c.Kind()), string(c.Severity), boolToInt(c.Active),
			c.Description, string(roles), string(params),
		); err != nil {
			return fmt.Errorf("insert constraint %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// #endregion save-set

// #region constraint-lookup

// Constraint looks up a single constraint by id.
func (s *Store) Constraint(ctx context.Context, id string) (policy.Constraint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT constraint_id, kind, severity, active, description, roles, params
		 FROM constraints WHERE constraint_id = ?`, id)
	c, err := scanConstraint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.Constraint{}, fmt.Errorf("constraint %s: %w", id, policy.ErrNotFound)
	}
	return c, err
}

// UpdateConstraint rewrites a constraint row in place.
func (s *Store) UpdateConstraint(ctx context.Context, c policy.Constraint) error {
	params, err := policy.EncodeParams(c.Params)
	if err != nil {
		return fmt.Errorf("encode params for %s: %w", c.ID, err)
	}
	roles, err := json.Marshal(c.AppliesToRoles)
	if err != nil {
		return fmt.Errorf("encode roles for %s: %w", c.ID, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE constraints
		 SET kind = ?, severity = ?, active = ?, description = ?, roles = ?, params = ?
		 WHERE constraint_id = ?`,
		string(c.Kind()), string(c.Severity), boolToInt(c.Active),
		c.Description, string(roles), string(params), c.ID,
	)
	if err != nil {
		return fmt.Errorf("update constraint %s: %w", c.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("constraint %s: %w", c.ID, policy.ErrNotFound)
	}
	return nil
}

// DeleteConstraintSet removes a set; constraints are deleted before their
// owning set.
func (s *Store) DeleteConstraintSet(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM constraints WHERE set_id = ?`, id); err != nil {
		return fmt.Errorf("delete constraints: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM constraint_sets WHERE set_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete set: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("constraint set %s: %w", id, policy.ErrNotFound)
	}
	return tx.Commit()
}

// #endregion constraint-lookup

// #region scan-helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSet(r rowScanner) (policy.ConstraintSet, error) {
	var (
		set          policy.ConstraintSet
		owner        sql.NullString
		modesJSON    sql.NullString
		personasJSON sql.NullString
	)
	if err := r.Scan(&set.ID, &owner, &set.Name, &set.Priority, &modesJSON, &personasJSON); err != nil {
		return policy.ConstraintSet{}, fmt.Errorf("scan set: %w", err)
	}
	if owner.Valid {
		set.OwnerID = owner.String
	}
	if modesJSON.Valid && modesJSON.String != "" {
		if err := json.Unmarshal([]byte(modesJSON.String), &set.AppliesTo.Modes); err != nil {
			return policy.ConstraintSet{}, fmt.Errorf("unmarshal appliesTo modes: %w", err)
		}
	}
	if personasJSON.Valid && personasJSON.String != "" {
		if err := json.Unmarshal([]byte(personasJSON.String), &set.AppliesTo.Personas); err != nil {
			return policy.ConstraintSet{}, fmt.Errorf("unmarshal appliesTo personas: %w", err)
		}
	}
	return set, nil
}

func scanConstraint(r rowScanner) (policy.Constraint, error) {
	var (
		c        policy.Constraint
		kind     string
		severity string
		active   int
		desc     sql.NullString
		roles    sql.NullString
		params   string
	)
	if err := r.Scan(&c.ID, &kind, &severity, &active, &desc, &roles, &params); err != nil {
		return policy.Constraint{}, err
	}
	decoded, err := policy.DecodeParams(policy.Kind(kind), []byte(params))
	if err != nil {
		return policy.Constraint{}, err
	}
	c.Params = decoded
	c.Severity = policy.Severity(severity)
	c.Active = active != 0
	if desc.Valid {
		c.Description = desc.String
	}
	if roles.Valid && roles.String != "" && roles.String != "null" {
		if err := json.Unmarshal([]byte(roles.String), &c.AppliesToRoles); err != nil {
			return policy.Constraint{}, fmt.Errorf("unmarshal roles: %w", err)
		}
	}
	return c, nil
}

func encodeAppliesTo(a policy.AppliesTo) (string, string, error) {
	modesJSON, err := json.Marshal(a.Modes)
	if err != nil {
		return "", "", fmt.Errorf("encode appliesTo modes: %w", err)
	}
	personasJSON, err := json.Marshal(a.Personas)
	if err != nil {
		return "", "", fmt.Errorf("encode appliesTo personas: %w", err)
	}
	return string(modesJSON), string(personasJSON), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion scan-helpers
