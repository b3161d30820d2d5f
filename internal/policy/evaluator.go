package policy

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Synthetic blocking ids for the unconditional system checks on transitions.
const (
	SystemPersonaModeMismatch = "system:persona-mode-mismatch"
	SystemDeviceModeMismatch  = "system:device-mode-mismatch"
)

// NoConstraintsReason is the primary reason when nothing triggers.
const NoConstraintsReason = "No constraints triggered"

// ErrInvalidContext marks an ill-formed action or transition context. It is
// returned before any store access.
var ErrInvalidContext = errors.New("invalid context")

// #region config
// Config controls evaluator policy.
type Config struct {
	// DenyOnSoftTrigger makes any triggered constraint, hard or soft, deny
	// the action. When false, soft and warning triggers only annotate the
	// result and set RequiresConfirmation.
	DenyOnSoftTrigger bool
}

// DefaultConfig preserves the fail-closed behavior: every trigger denies.
func DefaultConfig() Config {
	return Config{DenyOnSoftTrigger: true}
}

// #endregion config

// #region evaluator-struct
// Evaluator decides whether actions and mode transitions are permitted under
// the constraint sets that apply to the caller's context.
type Evaluator struct {
	store  Store
	config Config
	now    func() time.Time
}

// NewEvaluator creates an evaluator over the given constraint store.
func NewEvaluator(store Store, config Config) *Evaluator {
	return &Evaluator{store: store, config: config, now: time.Now}
}

// WithClock overrides the evaluator's clock. Used by time-window tests.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// #endregion evaluator-struct

// #region predicates

// predicate reports whether a constraint triggers against an action, and why.
type predicate func(c Constraint, action ActionContext, now time.Time) (bool, string)

// predicates is the dispatch table keyed by variant tag. Evaluation is a pure
// table lookup, no virtual dispatch.
var predicates = map[Kind]predicate{
	KindBlockTool: func(c Constraint, action ActionContext, _ time.Time) (bool, string) {
		p := c.Params.(BlockTool)
		if action.ToolID != "" && action.ToolID == p.ToolID {
			return true, fmt.Sprintf("tool %q is blocked", p.ToolID)
		}
		return false, ""
	},
	KindMaxRisk: func(c Constraint, action ActionContext, _ time.Time) (bool, string) {
		p := c.Params.(MaxRisk)
		if action.EstimatedRisk.Exceeds(p.Max) {
			return true, fmt.Sprintf("estimated risk %s exceeds maximum %s", action.EstimatedRisk, p.Max)
		}
		return false, ""
	},
	KindDeviceRestriction: func(c Constraint, action ActionContext, _ time.Time) (bool, string) {
		p := c.Params.(DeviceRestriction)
		if action.DeviceID == "" {
			return false, ""
		}
		for _, d := range p.AllowedDevices {
			if d == action.DeviceID {
				return false, ""
			}
		}
		return true, fmt.Sprintf("device %q is not in the allowed device list", action.DeviceID)
	},
	KindTimeWindow: func(c Constraint, _ ActionContext, now time.Time) (bool, string) {
		p := c.Params.(TimeWindow)
		if outsideWindow(p, now) {
			return true, fmt.Sprintf("current time is outside the %s-%s window", p.Start, p.End)
		}
		return false, ""
	},
	// require-confirmation and other trigger whenever their set applies;
	// they act as soft nudges.
	KindRequireConfirmation: func(c Constraint, _ ActionContext, _ time.Time) (bool, string) {
		return true, confirmationReason(c)
	},
	KindOther: func(c Constraint, _ ActionContext, _ time.Time) (bool, string) {
		// Nil params classify as other; they carry no note.
		if p, ok := c.Params.(Other); ok && p.Note != "" {
			return true, p.Note
		}
		return true, "flagged by constraint"
	},
	// block-mode never triggers for plain actions; it only participates in
	// transition validation.
	KindBlockMode: func(_ Constraint, _ ActionContext, _ time.Time) (bool, string) {
		return false, ""
	},
}

func confirmationReason(c Constraint) string {
	if p, ok := c.Params.(RequireConfirmation); ok && p.Note != "" {
		return p.Note
	}
	return "action requires confirmation"
}

// #endregion predicates

// #region evaluate-action

// EvaluateAction fetches the applicable constraint sets and evaluates the
// action against them. Store errors propagate; evaluation never falls back
// to allow.
func (e *Evaluator) EvaluateAction(ctx context.Context, action ActionContext) (EvaluationResult, error) {
	if err := validateAction(action); err != nil {
		return EvaluationResult{}, err
	}
	sets, err := e.store.ConstraintSets(ctx, action.UserID, action.Mode, action.Persona)
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("fetch constraint sets: %w", err)
	}
	return e.EvaluateAgainst(sets, action)
}

// EvaluateAgainst evaluates an action against caller-supplied sets. Sets are
// assumed already filtered for applicability and ordered by priority.
func (e *Evaluator) EvaluateAgainst(sets []ConstraintSet, action ActionContext) (EvaluationResult, error) {
	now := e.now()
	var (
		triggered    []Triggered
		reasons      []string
		hard         bool
		needsConfirm bool
	)

	for _, c := range flattenActive(sets) {
		if !roleApplies(c, action.Role) {
			continue
		}
		pred, ok := predicates[c.Kind()]
		if !ok {
			return EvaluationResult{}, fmt.Errorf("constraint %s: unknown kind %q", c.ID, c.Kind())
		}
		fired, reason := pred(c, action, now)
		if !fired {
			continue
		}
		triggered = append(triggered, Triggered{ConstraintID: c.ID, Severity: c.Severity, Reason: reason})
		reasons = append(reasons, reason)
		if c.Severity == SeverityHard {
			hard = true
		} else {
			needsConfirm = true
		}
	}

	if len(triggered) == 0 {
		return EvaluationResult{
			Allowed:  true,
			Decision: DecisionAllow,
			Reasons:  []string{NoConstraintsReason},
		}, nil
	}

	deny := hard || e.config.DenyOnSoftTrigger
	result := EvaluationResult{
		Allowed:              !deny,
		Decision:             DecisionDeny,
		RequiresConfirmation: needsConfirm,
		Triggered:            triggered,
		Reasons:              reasons,
	}
	if !deny {
		result.Decision = DecisionAllow
	}
	return result, nil
}

// #endregion evaluate-action

// #region validate-transition

// ValidateModeTransition checks constraints applicable to the current mode,
// then runs the two unconditional system checks for the target mode.
func (e *Evaluator) ValidateModeTransition(ctx context.Context, tc TransitionContext) (TransitionResult, error) {
	if err := validateTransition(tc); err != nil {
		return TransitionResult{}, err
	}
	sets, err := e.store.ConstraintSets(ctx, tc.UserID, tc.From, tc.Persona)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("fetch constraint sets: %w", err)
	}

	result := TransitionResult{From: tc.From, To: tc.To}

	for _, c := range flattenActive(sets) {
		switch c.Kind() {
		case KindBlockMode:
			p := c.Params.(BlockMode)
			if fired, reason := blockModeFires(p, tc); fired {
				result.BlockedBy = append(result.BlockedBy, Triggered{
					ConstraintID: c.ID, Severity: c.Severity, Reason: reason,
				})
			}
		case KindRequireConfirmation:
			if c.Severity != SeverityHard {
				result.RequiresConfirmation = true
			}
		}
	}

	// System checks run even with zero user constraints.
	if tc.Persona != "" && tc.Persona != HomePersona(tc.To) {
		result.BlockedBy = append(result.BlockedBy, Triggered{
			ConstraintID: SystemPersonaModeMismatch,
			Severity:     SeverityHard,
			Reason:       fmt.Sprintf("persona %s is incompatible with mode %s (home persona %s)", tc.Persona, tc.To, HomePersona(tc.To)),
		})
	}
	if home := HomeDevice(tc.To); home != "" && tc.DeviceID != "" && tc.DeviceID != home {
		result.BlockedBy = append(result.BlockedBy, Triggered{
			ConstraintID: SystemDeviceModeMismatch,
			Severity:     SeverityHard,
			Reason:       fmt.Sprintf("device %q is incompatible with mode %s (home device %q)", tc.DeviceID, tc.To, home),
		})
	}

	result.Success = len(result.BlockedBy) == 0
	return result, nil
}

func blockModeFires(p BlockMode, tc TransitionContext) (bool, string) {
	if containsMode(p.BlockedModes, tc.To) {
		return true, fmt.Sprintf("transition to mode %s is blocked", tc.To)
	}
	if tc.Persona != "" && containsPersona(p.BlockedPersonas, tc.Persona) {
		return true, fmt.Sprintf("persona %s is blocked for this transition", tc.Persona)
	}
	if p.RequiredPersona != "" && tc.Persona != "" && tc.Persona != p.RequiredPersona {
		return true, fmt.Sprintf("transition requires persona %s", p.RequiredPersona)
	}
	return false, ""
}

// #endregion validate-transition

// #region active-constraints

// ActiveConstraints flattens the active constraints from every applicable
// set, preserving (priority desc, declaration order).
func (e *Evaluator) ActiveConstraints(ctx context.Context, userID string, mode Mode, persona Persona) ([]Constraint, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: invalid mode %q", ErrInvalidContext, mode)
	}
	sets, err := e.store.ConstraintSets(ctx, userID, mode, persona)
	if err != nil {
		return nil, fmt.Errorf("fetch constraint sets: %w", err)
	}
	return flattenActive(sets), nil
}

// #endregion active-constraints

// #region helpers

func flattenActive(sets []ConstraintSet) []Constraint {
	var out []Constraint
	for _, set := range sets {
		for _, c := range set.Constraints {
			if c.Active {
				out = append(out, c)
			}
		}
	}
	return out
}

func roleApplies(c Constraint, role string) bool {
	if len(c.AppliesToRoles) == 0 {
		return true
	}
	for _, r := range c.AppliesToRoles {
		if r == role {
			return true
		}
	}
	return false
}

func validateAction(action ActionContext) error {
	if action.Mode != "" && !action.Mode.Valid() {
		return fmt.Errorf("%w: invalid mode %q", ErrInvalidContext, action.Mode)
	}
	if action.Persona != "" && !action.Persona.Valid() {
		return fmt.Errorf("%w: invalid persona %q", ErrInvalidContext, action.Persona)
	}
	if action.EstimatedRisk != "" && !action.EstimatedRisk.Valid() {
		return fmt.Errorf("%w: invalid risk %q", ErrInvalidContext, action.EstimatedRisk)
	}
	if action.Action == "" && action.ToolID == "" {
		return fmt.Errorf("%w: action kind or tool id required", ErrInvalidContext)
	}
	return nil
}

func validateTransition(tc TransitionContext) error {
	if !tc.From.Valid() {
		return fmt.Errorf("%w: invalid source mode %q", ErrInvalidContext, tc.From)
	}
	if !tc.To.Valid() {
		return fmt.Errorf("%w: invalid target mode %q", ErrInvalidContext, tc.To)
	}
	if tc.Persona != "" && !tc.Persona.Valid() {
		return fmt.Errorf("%w: invalid persona %q", ErrInvalidContext, tc.Persona)
	}
	return nil
}

// #endregion helpers
