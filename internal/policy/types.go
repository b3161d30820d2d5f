package policy

import (
	"fmt"
	"time"
)

// #region persona
// Persona is the inferred behavioral context bucket the user is acting as.
type Persona string

const (
	PersonaOperations Persona = "operations"
	PersonaPersonal   Persona = "personal"
	PersonaSocial     Persona = "social"
	PersonaReflective Persona = "reflective"
)

// AllPersonas lists every persona in canonical order.
var AllPersonas = []Persona{PersonaOperations, PersonaPersonal, PersonaSocial, PersonaReflective}

// Valid reports whether p is a known persona.
func (p Persona) Valid() bool {
	switch p {
	case PersonaOperations, PersonaPersonal, PersonaSocial, PersonaReflective:
		return true
	default:
		return false
	}
}

// #endregion persona

// #region mode
// Mode is the explicit operating context describing what kind of work is
// happening. Each mode has a home persona and, for some modes, a home device.
type Mode string

const (
	ModeDefault Mode = "default"
	ModeWork    Mode = "work"
	ModeHome    Mode = "home"
	ModeFinance Mode = "finance"
	ModeSocial  Mode = "social"
	ModeJournal Mode = "journal"
)

// AllModes lists every mode in canonical order.
var AllModes = []Mode{ModeDefault, ModeWork, ModeHome, ModeFinance, ModeSocial, ModeJournal}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeDefault, ModeWork, ModeHome, ModeFinance, ModeSocial, ModeJournal:
		return true
	default:
		return false
	}
}

// HomePersona returns the single persona a mode belongs to.
func HomePersona(m Mode) Persona {
	switch m {
	case ModeWork, ModeFinance:
		return PersonaOperations
	case ModeSocial:
		return PersonaSocial
	case ModeJournal:
		return PersonaReflective
	case ModeDefault, ModeHome:
		return PersonaPersonal
	default:
		return PersonaPersonal
	}
}

// Recognized home devices.
const (
	DeviceWorkstation = "workstation"
	DevicePhone       = "phone"
)

// HomeDevice returns the device a mode is bound to, or "" when the mode is
// device-neutral.
func HomeDevice(m Mode) string {
	switch m {
	case ModeWork, ModeFinance:
		return DeviceWorkstation
	case ModeSocial:
		return DevicePhone
	case ModeDefault, ModeHome, ModeJournal:
		return ""
	default:
		return ""
	}
}

// #endregion mode

// #region risk
// Risk is the ordinal action risk scale: low < medium < high.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

var riskRank = map[Risk]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}

// Valid reports whether r is a known risk level.
func (r Risk) Valid() bool {
	_, ok := riskRank[r]
	return ok
}

// Exceeds reports whether r is strictly above max on the ordinal scale.
func (r Risk) Exceeds(max Risk) bool {
	return riskRank[r] > riskRank[max]
}

// #endregion risk

// #region severity
// Severity grades how binding a constraint is.
type Severity string

const (
	SeverityHard    Severity = "hard"
	SeveritySoft    Severity = "soft"
	SeverityWarning Severity = "warning"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityHard, SeveritySoft, SeverityWarning:
		return true
	default:
		return false
	}
}

// #endregion severity

// #region kind
// Kind tags the constraint variant.
type Kind string

const (
	KindBlockTool           Kind = "block-tool"
	KindMaxRisk             Kind = "max-risk"
	KindRequireConfirmation Kind = "require-confirmation"
	KindBlockMode           Kind = "block-mode"
	KindDeviceRestriction   Kind = "device-restriction"
	KindTimeWindow          Kind = "time-window"
	KindOther               Kind = "other"
)

// Valid reports whether k is a known constraint kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBlockTool, KindMaxRisk, KindRequireConfirmation, KindBlockMode,
		KindDeviceRestriction, KindTimeWindow, KindOther:
		return true
	default:
		return false
	}
}

// #endregion kind

// #region params
// Params is the kind-specific payload of a constraint. Exactly one concrete
// type exists per kind, so a max-risk constraint cannot carry a tool id.
type Params interface {
	Kind() Kind
}

// BlockTool blocks a single tool id outright.
type BlockTool struct {
	ToolID string `json:"toolId"`
}

func (BlockTool) Kind() Kind { return KindBlockTool }

// MaxRisk caps the estimated risk of an action.
type MaxRisk struct {
	Max Risk `json:"maxRisk"`
}

func (MaxRisk) Kind() Kind { return KindMaxRisk }

// RequireConfirmation flags an action for explicit confirmation. It triggers
// whenever its owning set applies.
type RequireConfirmation struct {
	Note string `json:"note,omitempty"`
}

func (RequireConfirmation) Kind() Kind { return KindRequireConfirmation }

// BlockMode blocks transitions into the listed modes, and optionally pins or
// excludes personas for the transition.
type BlockMode struct {
	BlockedModes    []Mode    `json:"blockedModes,omitempty"`
	BlockedPersonas []Persona `json:"blockedPersonas,omitempty"`
	RequiredPersona Persona   `json:"requiredPersona,omitempty"`
}

func (BlockMode) Kind() Kind { return KindBlockMode }

// DeviceRestriction allows an action only on the listed devices.
type DeviceRestriction struct {
	AllowedDevices []string `json:"allowedDevices"`
}

func (DeviceRestriction) Kind() Kind { return KindDeviceRestriction }

// TimeWindow triggers when the current time falls outside [Start, End).
// Times are "HH:MM" local; a window may wrap midnight (e.g. 22:00-06:00).
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (TimeWindow) Kind() Kind { return KindTimeWindow }

// Validate rejects clock strings that do not parse as "15:04". Windows are
// checked at decode and load time so a bad clock is a configuration error,
// never a rule that silently disables itself.
func (w TimeWindow) Validate() error {
	if _, err := parseClock(w.Start); err != nil {
		return fmt.Errorf("time window start %q: %w", w.Start, err)
	}
	if _, err := parseClock(w.End); err != nil {
		return fmt.Errorf("time window end %q: %w", w.End, err)
	}
	return nil
}

// Other is a free-form soft nudge. Like require-confirmation it triggers
// whenever its owning set applies.
type Other struct {
	Note string `json:"note,omitempty"`
}

func (Other) Kind() Kind { return KindOther }

// #endregion params

// #region constraint
// Constraint is a single rule that can block or flag an action or transition.
type Constraint struct {
	ID             string
	Severity       Severity
	Active         bool
	Description    string
	AppliesToRoles []string // empty = all roles
	Params         Params
}

// Kind returns the variant tag of the constraint's params.
func (c Constraint) Kind() Kind {
	if c.Params == nil {
		return KindOther
	}
	return c.Params.Kind()
}

// AppliesTo filters a constraint set by mode and persona. A nil slice means
// "applies to all".
type AppliesTo struct {
	Modes    []Mode    `json:"modes,omitempty"`
	Personas []Persona `json:"personas,omitempty"`
}

// Matches reports whether the filter admits the given mode/persona pair.
// An unset persona ("") never disqualifies a set.
func (a AppliesTo) Matches(mode Mode, persona Persona) bool {
	if len(a.Modes) > 0 && !containsMode(a.Modes, mode) {
		return false
	}
	if len(a.Personas) > 0 && persona != "" && !containsPersona(a.Personas, persona) {
		return false
	}
	return true
}

// ConstraintSet is a named, prioritized bag of constraints. OwnerID "" marks
// a system-wide default set.
type ConstraintSet struct {
	ID          string
	Name        string
	OwnerID     string
	Priority    int // higher = evaluated first
	AppliesTo   AppliesTo
	Constraints []Constraint
}

func containsMode(ms []Mode, m Mode) bool {
	for _, x := range ms {
		if x == m {
			return true
		}
	}
	return false
}

func containsPersona(ps []Persona, p Persona) bool {
	for _, x := range ps {
		if x == p {
			return true
		}
	}
	return false
}

// #endregion constraint

// #region contexts
// ActionContext describes one proposed action. Ephemeral, never persisted.
type ActionContext struct {
	UserID        string
	SessionID     string
	DeviceID      string
	Role          string
	Action        string
	ToolID        string
	EstimatedRisk Risk
	Description   string
	Mode          Mode
	Persona       Persona
}

// TransitionContext describes one proposed mode transition.
type TransitionContext struct {
	UserID      string
	From        Mode
	To          Mode
	Persona     Persona // explicit persona for the transition, or ""
	DeviceID    string
	Reason      string
	TriggeredBy string
}

// #endregion contexts

// #region results
// Decision is the machine-checkable outcome of an evaluation.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// Triggered records one constraint that fired, traceable by id.
type Triggered struct {
	ConstraintID string   `json:"constraintId"`
	Severity     Severity `json:"severity"`
	Reason       string   `json:"reason"`
}

// EvaluationResult is the outcome of evaluating an action.
// Allowed is always equivalent to Decision == DecisionAllow.
type EvaluationResult struct {
	Allowed              bool
	Decision             Decision
	RequiresConfirmation bool
	Triggered            []Triggered
	Reasons              []string
}

// TransitionResult is the outcome of validating a mode transition.
type TransitionResult struct {
	Success              bool
	From                 Mode
	To                   Mode
	BlockedBy            []Triggered
	RequiresConfirmation bool
}

// #endregion results

// #region time-window-check
// outsideWindow reports whether t falls outside the [start, end) window,
// handling windows that wrap midnight. A window that slipped past load-time
// validation with an unparseable clock fails closed and always triggers.
func outsideWindow(w TimeWindow, t time.Time) bool {
	start, err1 := parseClock(w.Start)
	end, err2 := parseClock(w.End)
	if err1 != nil || err2 != nil {
		return true
	}
	minutes := t.Hour()*60 + t.Minute()
	if start <= end {
		return minutes < start || minutes >= end
	}
	// wraps midnight
	return minutes < start && minutes >= end
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// #endregion time-window-check
