// Package rulepack loads YAML preset documents carrying system-default
// constraint sets and optional classifier weight overrides.
package rulepack

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/persona"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
)

// #region document

// Pack is one parsed preset document.
type Pack struct {
	Version int         `yaml:"version"`
	Sets    []SetDoc    `yaml:"sets"`
	Weights *WeightsDoc `yaml:"classifier_weights"`
}

// SetDoc is the YAML shape of a constraint set.
type SetDoc struct {
	ID       string          `yaml:"id"`
	Name     string          `yaml:"name"`
	Priority int             `yaml:"priority"`
	Modes    []string        `yaml:"modes"`
	Personas []string        `yaml:"personas"`
	Rules    []ConstraintDoc `yaml:"rules"`
}

// ConstraintDoc is the YAML shape of a constraint. Kind-specific fields are
// flattened; only the fields for the declared kind are read.
type ConstraintDoc struct {
	ID          string   `yaml:"id"`
	Kind        string   `yaml:"kind"`
	Severity    string   `yaml:"severity"`
	Active      *bool    `yaml:"active"` // nil = true
	Description string   `yaml:"description"`
	Roles       []string `yaml:"roles"`

	ToolID          string   `yaml:"tool_id"`
	MaxRisk         string   `yaml:"max_risk"`
	Note            string   `yaml:"note"`
	BlockedModes    []string `yaml:"blocked_modes"`
	BlockedPersonas []string `yaml:"blocked_personas"`
	RequiredPersona string   `yaml:"required_persona"`
	AllowedDevices  []string `yaml:"allowed_devices"`
	WindowStart     string   `yaml:"window_start"`
	WindowEnd       string   `yaml:"window_end"`
}

// WeightsDoc overrides the classifier rule-family weights.
type WeightsDoc struct {
	Device  float64 `yaml:"device"`
	Mode    float64 `yaml:"mode"`
	Feature float64 `yaml:"feature"`
	Time    float64 `yaml:"time"`
}

// #endregion document

// #region load

// Load parses a preset document from disk.
func Load(path string) (Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pack{}, fmt.Errorf("read rule pack: %w", err)
	}
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Pack{}, fmt.Errorf("parse rule pack: %w", err)
	}
	return p, nil
}

// #endregion load

// #region conversion

// ConstraintSets converts the document into system-owned constraint sets.
func (p Pack) ConstraintSets() ([]policy.ConstraintSet, error) {
	var sets []policy.ConstraintSet
	for _, doc := range p.Sets {
		if doc.ID == "" {
			return nil, fmt.Errorf("rule pack set %q: missing id", doc.Name)
		}
		set := policy.ConstraintSet{
			ID:       doc.ID,
			Name:     doc.Name,
			Priority: doc.Priority,
		}
		for _, m := range doc.Modes {
			mode := policy.Mode(m)
			if !mode.Valid() {
				return nil, fmt.Errorf("rule pack set %s: unknown mode %q", doc.ID, m)
			}
			set.AppliesTo.Modes = append(set.AppliesTo.Modes, mode)
		}
		for _, pe := range doc.Personas {
			per := policy.Persona(pe)
			if !per.Valid() {
				return nil, fmt.Errorf("rule pack set %s: unknown persona %q", doc.ID, pe)
			}
			set.AppliesTo.Personas = append(set.AppliesTo.Personas, per)
		}
		for _, rule := range doc.Rules {
			c, err := rule.constraint()
			if err != nil {
				return nil, fmt.Errorf("rule pack set %s: %w", doc.ID, err)
			}
			set.Constraints = append(set.Constraints, c)
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func (d ConstraintDoc) constraint() (policy.Constraint, error) {
	if d.ID == "" {
		return policy.Constraint{}, fmt.Errorf("rule missing id")
	}
	kind := policy.Kind(d.Kind)
	if !kind.Valid() {
		return policy.Constraint{}, fmt.Errorf("rule %s: unknown kind %q", d.ID, d.Kind)
	}
	severity := policy.Severity(d.Severity)
	if d.Severity == "" {
		severity = policy.SeveritySoft
	}
	if !severity.Valid() {
		return policy.Constraint{}, fmt.Errorf("rule %s: unknown severity %q", d.ID, d.Severity)
	}

	var params policy.Params
	switch kind {
	case policy.KindBlockTool:
		if d.ToolID == "" {
			return policy.Constraint{}, fmt.Errorf("rule %s: block-tool needs tool_id", d.ID)
		}
		params = policy.BlockTool{ToolID: d.ToolID}
	case policy.KindMaxRisk:
		risk := policy.Risk(d.MaxRisk)
		if !risk.Valid() {
			return policy.Constraint{}, fmt.Errorf("rule %s: max-risk needs a valid max_risk", d.ID)
		}
		params = policy.MaxRisk{Max: risk}
	case policy.KindRequireConfirmation:
		params = policy.RequireConfirmation{Note: d.Note}
	case policy.KindBlockMode:
		var bm policy.BlockMode
		for _, m := range d.BlockedModes {
			mode := policy.Mode(m)
			if !mode.Valid() {
				return policy.Constraint{}, fmt.Errorf("rule %s: unknown blocked mode %q", d.ID, m)
			}
			bm.BlockedModes = append(bm.BlockedModes, mode)
		}
		for _, pe := range d.BlockedPersonas {
			per := policy.Persona(pe)
			if !per.Valid() {
				return policy.Constraint{}, fmt.Errorf("rule %s: unknown blocked persona %q", d.ID, pe)
			}
			bm.BlockedPersonas = append(bm.BlockedPersonas, per)
		}
		if d.RequiredPersona != "" {
			per := policy.Persona(d.RequiredPersona)
			if !per.Valid() {
				return policy.Constraint{}, fmt.Errorf("rule %s: unknown required persona %q", d.ID, d.RequiredPersona)
			}
			bm.RequiredPersona = per
		}
		params = bm
	case policy.KindDeviceRestriction:
		if len(d.AllowedDevices) == 0 {
			return policy.Constraint{}, fmt.Errorf("rule %s: device-restriction needs allowed_devices", d.ID)
		}
		params = policy.DeviceRestriction{AllowedDevices: d.AllowedDevices}
	case policy.KindTimeWindow:
		if d.WindowStart == "" || d.WindowEnd == "" {
			return policy.Constraint{}, fmt.Errorf("rule %s: time-window needs window_start and window_end", d.ID)
		}
		w := policy.TimeWindow{Start: d.WindowStart, End: d.WindowEnd}
		if err := w.Validate(); err != nil {
			return policy.Constraint{}, fmt.Errorf("rule %s: %w", d.ID, err)
		}
		params = w
	case policy.KindOther:
		params = policy.Other{Note: d.Note}
	}

	active := true
	if d.Active != nil {
		active = *d.Active
	}
	return policy.Constraint{
		ID:             d.ID,
		Severity:       severity,
		Active:         active,
		Description:    d.Description,
		AppliesToRoles: d.Roles,
		Params:         params,
	}, nil
}

// ClassifierWeights returns the weight overrides, or the defaults when the
// document carries none.
func (p Pack) ClassifierWeights() persona.Weights {
	if p.Weights == nil {
		return persona.DefaultWeights()
	}
	w := persona.DefaultWeights()
	if p.Weights.Device > 0 {
		w.Device = p.Weights.Device
	}
	if p.Weights.Mode > 0 {
		w.Mode = p.Weights.Mode
	}
	if p.Weights.Feature > 0 {
		w.Feature = p.Weights.Feature
	}
	if p.Weights.Time > 0 {
		w.Time = p.Weights.Time
	}
	return w
}

// #endregion conversion
