package persona

import (
	"time"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
)

// #region source
// Source records how a classification was produced.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceInferred Source = "inferred"
	SourceDefault  Source = "default"
)

// #endregion source

// #region context
// HistoryEntry is one element of the recent persona history, newest first.
type HistoryEntry struct {
	Persona policy.Persona
	At      time.Time
}

// Context carries the ambient signals a classification runs against.
type Context struct {
	UserID        string
	SessionID     string
	DeviceID      string
	Mode          policy.Mode
	ActiveFeature string
	Explicit      policy.Persona // explicit persona on the context, wins outright
	Timestamp     time.Time      // zero = now
	History       []HistoryEntry // newest first
}

// #endregion context

// #region result
// Classification is the outcome of classifying a context.
type Classification struct {
	Persona      policy.Persona
	Confidence   float64
	Source       Source
	Overridden   bool
	Reasons      []string
	Distribution map[policy.Persona]float64 // sums to 1.0
}

// #endregion result

// #region override
// Override pins a persona for a user. Scope fields narrow where it applies:
// a session id, or a (device, mode, feature) triple; zero-value fields match
// anything. ExpiresAt zero means no expiry.
type Override struct {
	Persona   policy.Persona
	SessionID string
	DeviceID  string
	Mode      policy.Mode
	Feature   string
	ExpiresAt time.Time
}

func (o Override) matches(c Context, now time.Time) bool {
	if !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt) {
		return false
	}
	if o.SessionID != "" && o.SessionID != c.SessionID {
		return false
	}
	if o.DeviceID != "" && o.DeviceID != c.DeviceID {
		return false
	}
	if o.Mode != "" && o.Mode != c.Mode {
		return false
	}
	if o.Feature != "" && o.Feature != c.ActiveFeature {
		return false
	}
	return true
}

// #endregion override

// #region weights
// Weights are the fixed rule-family weights. Mode outweighs device; time of
// day contributes but is rarely decisive alone.
type Weights struct {
	Device  float64
	Mode    float64
	Feature float64
	Time    float64
}

// DefaultWeights returns the built-in rule weights.
func DefaultWeights() Weights {
	return Weights{
		Device:  2.0,
		Mode:    3.0,
		Feature: 1.5,
		Time:    0.75,
	}
}

// #endregion weights
