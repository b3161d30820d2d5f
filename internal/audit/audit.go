package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
)

// #region entry
// Kind classifies what produced a decision row.
type Kind string

const (
	KindAction     Kind = "action"
	KindTransition Kind = "transition"
	KindLearning   Kind = "learning"
)

// Entry is one row of the decision log. Every triggered constraint stays
// traceable back to its id.
type Entry struct {
	Kind      Kind
	UserID    string
	Subject   string // tool id, target mode, or learning target
	Decision  string
	Reasons   []string
	Triggered []policy.Triggered
	CreatedAt time.Time
}

// #endregion entry

// #region recorder
// Recorder persists decision entries. Backends implement this next to their
// profile and constraint stores.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// #endregion recorder

// #region log-recorder
// LogRecorder writes entries to structured logs only. Used with the memory
// backend and as a fallback when no relational store is configured.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder creates a log-only recorder.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger.With("system", "audit")}
}

// Record logs the entry.
func (r *LogRecorder) Record(ctx context.Context, e Entry) error {
	r.logger.Info("decision",
		"kind", e.Kind,
		"user", e.UserID,
		"subject", e.Subject,
		"decision", e.Decision,
		"reasons", e.Reasons,
		"triggered", len(e.Triggered),
	)
	return nil
}

// #endregion log-recorder

// #region mem-recorder
// MemRecorder accumulates entries in memory. Test helper.
type MemRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemRecorder creates an empty in-memory recorder.
func NewMemRecorder() *MemRecorder {
	return &MemRecorder{}
}

// Record appends the entry.
func (r *MemRecorder) Record(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, e)
	return nil
}

// Entries returns a copy of everything recorded so far.
func (r *MemRecorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// RecentDecisions returns the newest entries, most recent first.
func (r *MemRecorder) RecentDecisions(ctx context.Context, limit int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(r.entries) - 1; i >= len(r.entries)-limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

// #endregion mem-recorder
