package profile

import (
	"time"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
)

// #region preference
// Preference is a single ordered key/value entry in a profile.
type Preference struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// #endregion preference

// #region profile
// Profile holds per-(user, mode) preferences and learned constraints.
// Profiles are created lazily on first access and overwritten in place,
// never hard-deleted.
type Profile struct {
	UserID      string
	Mode        policy.Mode
	Preferences []Preference
	Constraints []policy.Constraint
	UpdatedAt   time.Time
}

// Preference returns the value for key and whether it is present.
func (p *Profile) Preference(key string) (string, bool) {
	for _, kv := range p.Preferences {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// SetPreference rewrites the value for key in place, preserving order, or
// appends when the key is new.
func (p *Profile) SetPreference(key, value string) {
	for i, kv := range p.Preferences {
		if kv.Key == key {
			p.Preferences[i].Value = value
			return
		}
	}
	p.Preferences = append(p.Preferences, Preference{Key: key, Value: value})
}

// AppendConstraint adds a learned constraint to the profile.
func (p *Profile) AppendConstraint(c policy.Constraint) {
	p.Constraints = append(p.Constraints, c)
}

// #endregion profile

// #region seed
// SeedFunc supplies the mode-specific defaults used when a (user, mode)
// profile is first accessed.
type SeedFunc func(mode policy.Mode) ([]Preference, []policy.Constraint)

// EmptySeed seeds nothing.
func EmptySeed(policy.Mode) ([]Preference, []policy.Constraint) {
	return nil, nil
}

// #endregion seed
