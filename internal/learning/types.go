package learning

import (
	"time"
)

// #region pattern
// PatternType enumerates the usage regularities the external detector emits.
type PatternType string

const (
	PatternFrequentAction   PatternType = "frequent-action"
	PatternModePreference   PatternType = "mode-preference"
	PatternRiskThreshold    PatternType = "risk-threshold"
	PatternTimeBasedRoutine PatternType = "time-based-routine"
	PatternErrorPattern     PatternType = "error-pattern"
	PatternEfficiencyGain   PatternType = "efficiency-gain"
)

// Pattern is an externally detected usage regularity. Data is opaque to the
// engine except for the keys each generator reads.
type Pattern struct {
	ID          string
	Type        PatternType
	Confidence  float64
	Data        map[string]string
	EventIDs    []string
	Occurrences int
}

// #endregion pattern

// #region action
// ActionType enumerates candidate mutations derived from patterns.
type ActionType string

const (
	ActionUpdatePreference    ActionType = "update-preference"
	ActionAdjustConstraint    ActionType = "adjust-constraint"
	ActionAdjustRiskThreshold ActionType = "adjust-risk-threshold"
	ActionSuggestAutomation   ActionType = "suggest-automation"
	ActionRecommendMode       ActionType = "recommend-mode"
	ActionCreateShortcut      ActionType = "create-shortcut"
)

// Advisory reports whether the action type requires external handling and
// never mutates a profile.
func (t ActionType) Advisory() bool {
	switch t {
	case ActionSuggestAutomation, ActionRecommendMode, ActionCreateShortcut:
		return true
	default:
		return false
	}
}

// Status tracks the lifecycle of a learning action. An action transitions
// out of pending exactly once and never reverts.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApplied  Status = "applied"
	StatusRejected Status = "rejected"
)

// Action is a candidate preference or constraint mutation.
type Action struct {
	ID             string
	Type           ActionType
	Confidence     float64
	Target         string
	CurrentValue   string
	SuggestedValue string
	Reason         string
	Status         Status
	AppliedAt      time.Time
}

// #endregion action

// #region thresholds
// Thresholds gate automatic application and rejection.
type Thresholds struct {
	// AutoApply is the confidence at or above which actions apply without
	// confirmation.
	AutoApply float64
	// Suggest is the floor below which batch application rejects outright;
	// the band in between stays pending for user confirmation.
	Suggest float64
}

// DefaultThresholds returns the production gating values.
func DefaultThresholds() Thresholds {
	return Thresholds{AutoApply: 0.85, Suggest: 0.60}
}

// generatorCutoffs is the per-pattern-type minimum confidence below which a
// generator emits nothing.
var generatorCutoffs = map[PatternType]float64{
	PatternFrequentAction:   0.80,
	PatternModePreference:   0.75,
	PatternRiskThreshold:    0.90,
	PatternTimeBasedRoutine: 0.70,
	PatternErrorPattern:     0.85,
	PatternEfficiencyGain:   0.75,
}

// #endregion thresholds
