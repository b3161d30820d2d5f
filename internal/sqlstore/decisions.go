package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/audit"
)

// #region record

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
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.Kind),
		nullIfEmpty(e.UserID),
		nullIfEmpty(e.Subject),
		e.Decision,
		string(reasonsJSON),
		string(triggeredJSON),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// #endregion record

// #region recent

// RecentDecisions returns the newest decision rows, most recent first.
func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, user_id, subject, decision, reasons_json, triggered_json, created_at
		 FROM decision_log ORDER BY id DESC LIMIT ?`, limit)
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
			createdStr    string
		)
		if err := rows.Scan(&kind, &userID, &subject, &e.Decision, &reasonsJSON, &triggeredJSON, &createdStr); err != nil {
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
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion recent
