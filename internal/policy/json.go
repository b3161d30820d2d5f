package policy

import (
	"encoding/json"
	"fmt"
)

// #region envelope
type constraintEnvelope struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Severity    Severity        `json:"severity"`
	Active      bool            `json:"active"`
	Description string          `json:"description,omitempty"`
	Roles       []string        `json:"appliesToRoles,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
}

// #endregion envelope

// #region params-codec

// EncodeParams serializes a params variant to JSON.
func EncodeParams(p Params) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// DecodeParams deserializes a params payload for the given kind.
func DecodeParams(kind Kind, raw []byte) (Params, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var (
		p   Params
		err error
	)
	switch kind {
	case KindBlockTool:
		var v BlockTool
		err = json.Unmarshal(raw, &v)
		p = v
	case KindMaxRisk:
		var v MaxRisk
		err = json.Unmarshal(raw, &v)
		p = v
	case KindRequireConfirmation:
		var v RequireConfirmation
		err = json.Unmarshal(raw, &v)
		p = v
	case KindBlockMode:
		var v BlockMode
		err = json.Unmarshal(raw, &v)
		p = v
	case KindDeviceRestriction:
		var v DeviceRestriction
		err = json.Unmarshal(raw, &v)
		p = v
	case KindTimeWindow:
		var v TimeWindow
		if err = json.Unmarshal(raw, &v); err == nil {
			err = v.Validate()
		}
		p = v
	case KindOther:
		var v Other
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("decode params: unknown kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s params: %w", kind, err)
	}
	return p, nil
}

// #endregion params-codec

// #region constraint-json

// MarshalJSON serializes the constraint as a kind-tagged envelope.
func (c Constraint) MarshalJSON() ([]byte, error) {
	raw, err := EncodeParams(c.Params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(constraintEnvelope{
		ID:          c.ID,
		Kind:        c.Kind(),
		Severity:    c.Severity,
		Active:      c.Active,
		Description: c.Description,
		Roles:       c.AppliesToRoles,
		Params:      raw,
	})
}

// UnmarshalJSON restores a constraint from its kind-tagged envelope.
func (c *Constraint) UnmarshalJSON(data []byte) error {
	var env constraintEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal constraint: %w", err)
	}
	params, err := DecodeParams(env.Kind, env.Params)
	if err != nil {
		return err
	}
	c.ID = env.ID
	c.Severity = env.Severity
	c.Active = env.Active
	c.Description = env.Description
	c.AppliesToRoles = env.Roles
	c.Params = params
	return nil
}

// #endregion constraint-json
