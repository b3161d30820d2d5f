package learning

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/profile"
)

// #region learner-struct
// Learner converts detected patterns into candidate actions and applies them
// back into profile storage under confidence gating.
type Learner struct {
	profiles   profile.Store
	thresholds Thresholds
	logger     *slog.Logger
	now        func() time.Time
}

// NewLearner creates a learner over the given profile store.
func NewLearner(profiles profile.Store, thresholds Thresholds, logger *slog.Logger) *Learner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Learner{
		profiles:   profiles,
		thresholds: thresholds,
		logger:     logger.With("system", "learning"),
		now:        time.Now,
	}
}

// Thresholds returns the gating values in effect.
func (l *Learner) Thresholds() Thresholds {
	return l.thresholds
}

// #endregion learner-struct

// #region generate

// GenerateActions dispatches on the pattern type into its generator. A
// pattern below its type's confidence cutoff emits nothing.
func (l *Learner) GenerateActions(p Pattern) []Action {
	cutoff, ok := generatorCutoffs[p.Type]
	if !ok {
		l.logger.Warn("unknown pattern type", "type", p.Type)
		return nil
	}
	if p.Confidence < cutoff {
		return nil
	}

	switch p.Type {
	case PatternFrequentAction:
		return l.fromFrequentAction(p)
	case PatternModePreference:
		return l.fromModePreference(p)
	case PatternRiskThreshold:
		return l.fromRiskThreshold(p)
	case PatternTimeBasedRoutine:
		return l.fromTimeBasedRoutine(p)
	case PatternErrorPattern:
		return l.fromErrorPattern(p)
	case PatternEfficiencyGain:
		return l.fromEfficiencyGain(p)
	default:
		return nil
	}
}

// #endregion generate

// #region generators

func (l *Learner) fromFrequentAction(p Pattern) []Action {
	target := p.Data["action"]
	if target == "" {
		target = p.Data["tool"]
	}
	if target == "" {
		return nil
	}
	actions := []Action{newAction(p, ActionSuggestAutomation, target, "", "automate",
		fmt.Sprintf("action %q repeated %d times", target, p.Occurrences))}
	if p.Occurrences >= 10 {
		actions = append(actions, newAction(p, ActionCreateShortcut, target, "", "shortcut:"+target,
			fmt.Sprintf("action %q frequent enough for a shortcut", target)))
	}
	return actions
}

func (l *Learner) fromModePreference(p Pattern) []Action {
	mode := p.Data["mode"]
	if mode == "" {
		return nil
	}
	return []Action{
		newAction(p, ActionRecommendMode, "mode", p.Data["current"], mode,
			fmt.Sprintf("user keeps switching into %s", mode)),
		newAction(p, ActionUpdatePreference, "preferred-mode", p.Data["current"], mode,
			fmt.Sprintf("record %s as the preferred mode", mode)),
	}
}

func (l *Learner) fromRiskThreshold(p Pattern) []Action {
	suggested := p.Data["risk"]
	if suggested == "" {
		return nil
	}
	return []Action{newAction(p, ActionAdjustRiskThreshold, "risk-threshold", p.Data["current"], suggested,
		"observed tolerance differs from the configured risk threshold")}
}

func (l *Learner) fromTimeBasedRoutine(p Pattern) []Action {
	slot := p.Data["slot"]
	if slot == "" {
		return nil
	}
	return []Action{newAction(p, ActionUpdatePreference, "routine:"+slot, "", p.Data["activity"],
		fmt.Sprintf("recurring %s routine detected", slot))}
}

func (l *Learner) fromErrorPattern(p Pattern) []Action {
	tool := p.Data["tool"]
	reason := fmt.Sprintf("repeated failures (%d occurrences)", p.Occurrences)
	if tool != "" {
		reason = fmt.Sprintf("tool %q failed repeatedly (%d occurrences)", tool, p.Occurrences)
	}
	return []Action{newAction(p, ActionAdjustConstraint, tool, "", "require-confirmation", reason)}
}

func (l *Learner) fromEfficiencyGain(p Pattern) []Action {
	target := p.Data["workflow"]
	if target == "" {
		return nil
	}
	return []Action{newAction(p, ActionCreateShortcut, target, "", "shortcut:"+target,
		fmt.Sprintf("workflow %q completes faster via a shortcut", target))}
}

func newAction(p Pattern, t ActionType, target, current, suggested, reason string) Action {
	return Action{
		ID:             uuid.New().String(),
		Type:           t,
		Confidence:     p.Confidence,
		Target:         target,
		CurrentValue:   current,
		SuggestedValue: suggested,
		Reason:         reason,
		Status:         StatusPending,
	}
}

// #endregion generators
