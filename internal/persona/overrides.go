package persona

import (
	"sync"
	"time"
)

// #region overrides-struct
// Overrides holds per-user persona overrides. Session-scoped and
// triple-scoped overrides are kept in separate slots so they can be set and
// cleared independently.
type Overrides struct {
	mu     sync.RWMutex
	byUser map[string][]Override
	now    func() time.Time
}

// NewOverrides returns an empty override registry.
func NewOverrides() *Overrides {
	return &Overrides{
		byUser: make(map[string][]Override),
		now:    time.Now,
	}
}

// #endregion overrides-struct

// #region set-get-clear

// Set registers an override for a user. An override with the same scope
// (session id and triple) is replaced.
func (o *Overrides) Set(userID string, ov Override) {
	o.mu.Lock()
	defer o.mu.Unlock()
	list := o.byUser[userID]
	for i, existing := range list {
		if sameScope(existing, ov) {
			list[i] = ov
			o.byUser[userID] = list
			return
		}
	}
	o.byUser[userID] = append(list, ov)
}

// Get returns the first override matching the context, checking
// session-scoped overrides before triple-scoped ones.
func (o *Overrides) Get(userID string, c Context) (Override, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	now := c.Timestamp
	if now.IsZero() {
		now = o.now()
	}
	list := o.byUser[userID]
	for _, ov := range list {
		if ov.SessionID != "" && ov.matches(c, now) {
			return ov, true
		}
	}
	for _, ov := range list {
		if ov.SessionID == "" && ov.matches(c, now) {
			return ov, true
		}
	}
	return Override{}, false
}

// Clear removes every override for the user whose scope matches the given
// session and triple; zero values clear the unscoped override.
func (o *Overrides) Clear(userID string, scope Override) {
	o.mu.Lock()
	defer o.mu.Unlock()
	list := o.byUser[userID]
	kept := list[:0]
	for _, existing := range list {
		if !sameScope(existing, scope) {
			kept = append(kept, existing)
		}
	}
	if len(kept) == 0 {
		delete(o.byUser, userID)
		return
	}
	o.byUser[userID] = kept
}

func sameScope(a, b Override) bool {
	return a.SessionID == b.SessionID &&
		a.DeviceID == b.DeviceID &&
		a.Mode == b.Mode &&
		a.Feature == b.Feature
}

// #endregion set-get-clear

// #region validity
// Valid reports whether the override carries a known persona.
func (o Override) Valid() bool {
	return o.Persona.Valid()
}

// #endregion validity
