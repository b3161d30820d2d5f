package persona

import (
	"fmt"
	"strings"
	"time"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
)

// StickyWindow is how long the most recent persona stays sticky.
const StickyWindow = 300 * time.Second

// stickyConfidence is the confidence assigned to a sticky-recency hit.
const stickyConfidence = 0.9

// defaultConfidence is used when no rule fires at all.
const defaultConfidence = 0.25

// #region rule-tables

// deviceHints maps device-id substrings to the persona they bias toward.
var deviceHints = []struct {
	substr  string
	persona policy.Persona
}{
	{"ops", policy.PersonaOperations},
	{"work", policy.PersonaOperations},
	{"workstation", policy.PersonaOperations},
	{"phone", policy.PersonaPersonal},
	{"tablet", policy.PersonaPersonal},
	{"personal", policy.PersonaPersonal},
}

// featureHints maps active-feature keywords to personas. Matching is
// case-insensitive substring.
var featureHints = []struct {
	substr  string
	persona policy.Persona
}{
	{"inbox", policy.PersonaSocial},
	{"mail", policy.PersonaSocial},
	{"contact", policy.PersonaSocial},
	{"crm", policy.PersonaSocial},
	{"budget", policy.PersonaOperations},
	{"ledger", policy.PersonaOperations},
	{"invoice", policy.PersonaOperations},
	{"finance", policy.PersonaOperations},
	{"task", policy.PersonaOperations},
	{"journal", policy.PersonaReflective},
	{"review", policy.PersonaReflective},
	{"notes", policy.PersonaReflective},
	{"appearance", policy.PersonaPersonal},
	{"layout", policy.PersonaPersonal},
	{"settings", policy.PersonaPersonal},
	{"theme", policy.PersonaPersonal},
}

// #endregion rule-tables

// #region classifier-struct
// Classifier infers the active persona from ambient context signals.
type Classifier struct {
	overrides *Overrides
	weights   Weights
	now       func() time.Time
}

// NewClassifier creates a classifier with the given override registry.
func NewClassifier(overrides *Overrides, weights Weights) *Classifier {
	if overrides == nil {
		overrides = NewOverrides()
	}
	return &Classifier{
		overrides: overrides,
		weights:   weights,
		now:       time.Now,
	}
}

// Overrides exposes the override registry for set/get/clear calls.
func (c *Classifier) Overrides() *Overrides {
	return c.overrides
}

// WithClock overrides the classifier clock. Used by time-of-day tests.
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	c.now = now
	return c
}

// #endregion classifier-struct

// #region classify

// Classify resolves the active persona for a context. Precedence: explicit
// persona, stored override, sticky recency, then weighted rule scoring.
// The call is pure given fixed override and history state.
func (c *Classifier) Classify(ctx Context) Classification {
	now := ctx.Timestamp
	if now.IsZero() {
		now = c.now()
	}

	// 1. Explicit persona on the context wins outright.
	if ctx.Explicit != "" && ctx.Explicit.Valid() {
		return Classification{
			Persona:      ctx.Explicit,
			Confidence:   1.0,
			Source:       SourceExplicit,
			Reasons:      []string{"explicit persona on context"},
			Distribution: pointMass(ctx.Explicit),
		}
	}

	// 2. Stored override matching the context.
	if ov, ok := c.overrides.Get(ctx.UserID, ctx); ok {
		return Classification{
			Persona:      ov.Persona,
			Confidence:   1.0,
			Source:       SourceExplicit,
			Overridden:   true,
			Reasons:      []string{"persona override in effect"},
			Distribution: pointMass(ov.Persona),
		}
	}

	// 3. Sticky recency: reuse the most recent persona inside the window.
	if len(ctx.History) > 0 {
		latest := ctx.History[0]
		if latest.Persona.Valid() && now.Sub(latest.At) >= 0 && now.Sub(latest.At) < StickyWindow {
			return Classification{
				Persona:      latest.Persona,
				Confidence:   stickyConfidence,
				Source:       SourceInferred,
				Reasons:      []string{"Recently active persona"},
				Distribution: pointMass(latest.Persona),
			}
		}
	}

	// 4. Weighted rule scoring.
	return c.score(ctx, now)
}

// #endregion classify

// #region scoring

func (c *Classifier) score(ctx Context, now time.Time) Classification {
	scores := make(map[policy.Persona]float64, len(policy.AllPersonas))
	var reasons []string

	// Device family.
	if ctx.DeviceID != "" {
		lower := strings.ToLower(ctx.DeviceID)
		for _, hint := range deviceHints {
			if strings.Contains(lower, hint.substr) {
				scores[hint.persona] += c.weights.Device
				reasons = append(reasons, fmt.Sprintf("device %q suggests %s", ctx.DeviceID, hint.persona))
				break
			}
		}
	}

	// Mode family: each mode has one dominant persona, weighted above device.
	if ctx.Mode != "" && ctx.Mode.Valid() {
		home := policy.HomePersona(ctx.Mode)
		scores[home] += c.weights.Mode
		reasons = append(reasons, fmt.Sprintf("mode %s belongs to %s", ctx.Mode, home))
	}

	// Feature family: case-insensitive keyword match.
	if ctx.ActiveFeature != "" {
		lower := strings.ToLower(ctx.ActiveFeature)
		for _, hint := range featureHints {
			if strings.Contains(lower, hint.substr) {
				scores[hint.persona] += c.weights.Feature
				reasons = append(reasons, fmt.Sprintf("feature %q suggests %s", ctx.ActiveFeature, hint.persona))
				break
			}
		}
	}

	// Time-of-day bias: contributing, rarely decisive alone.
	hour := now.Hour()
	switch {
	case hour >= 22 || hour < 5:
		scores[policy.PersonaReflective] += c.weights.Time
		reasons = append(reasons, "night hours suggest reflective")
	case hour >= 9 && hour < 17:
		scores[policy.PersonaOperations] += c.weights.Time
		reasons = append(reasons, "business hours suggest operations")
	}

	var total float64
	for _, v := range scores {
		total += v
	}

	if total == 0 {
		return Classification{
			Persona:      policy.PersonaPersonal,
			Confidence:   defaultConfidence,
			Source:       SourceDefault,
			Reasons:      []string{"no signals, defaulting"},
			Distribution: uniform(),
		}
	}

	dist := make(map[policy.Persona]float64, len(policy.AllPersonas))
	top, runnerUp := 0.0, 0.0
	winner := policy.AllPersonas[0]
	for _, p := range policy.AllPersonas {
		dist[p] = scores[p] / total
		switch {
		case scores[p] > top:
			runnerUp = top
			top = scores[p]
			winner = p
		case scores[p] > runnerUp:
			runnerUp = scores[p]
		}
	}

	confidence := (top-runnerUp)/total + 0.5
	if confidence > 1 {
		confidence = 1
	}

	return Classification{
		Persona:      winner,
		Confidence:   confidence,
		Source:       SourceInferred,
		Reasons:      reasons,
		Distribution: dist,
	}
}

func pointMass(p policy.Persona) map[policy.Persona]float64 {
	dist := make(map[policy.Persona]float64, len(policy.AllPersonas))
	for _, x := range policy.AllPersonas {
		dist[x] = 0
	}
	dist[p] = 1
	return dist
}

func uniform() map[policy.Persona]float64 {
	dist := make(map[policy.Persona]float64, len(policy.AllPersonas))
	for _, x := range policy.AllPersonas {
		dist[x] = 1.0 / float64(len(policy.AllPersonas))
	}
	return dist
}

// #endregion scoring
