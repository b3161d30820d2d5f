package learning

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
)

// #region auto-apply

// AutoApplyIfHighConfidence applies the action immediately iff its
// confidence meets the auto-apply threshold. Below the threshold it returns
// false without side effects.
func (l *Learner) AutoApplyIfHighConfidence(ctx context.Context, a *Action, userID string, mode policy.Mode) (bool, error) {
	if a.Confidence < l.thresholds.AutoApply {
		return false, nil
	}
	return l.apply(ctx, a, userID, mode)
}

// #endregion auto-apply

// #region apply-with-confirmation

// ApplyWithConfirmation applies the action regardless of confidence when
// confirmed, and marks it rejected otherwise.
func (l *Learner) ApplyWithConfirmation(ctx context.Context, a *Action, userID string, mode policy.Mode, confirmed bool) (bool, error) {
	if a.Status != StatusPending {
		return false, fmt.Errorf("action %s already %s", a.ID, a.Status)
	}
	if !confirmed {
		a.Status = StatusRejected
		return false, nil
	}
	return l.apply(ctx, a, userID, mode)
}

// #endregion apply-with-confirmation

// #region batch-apply

// BatchResult summarizes one batch application pass.
type BatchResult struct {
	Applied  int
	Rejected int
}

// BatchApply applies every action at or above the auto-apply threshold and
// rejects every action below the suggest floor. Actions in the middle band
// stay pending, awaiting user confirmation.
func (l *Learner) BatchApply(ctx context.Context, actions []*Action, userID string, mode policy.Mode) (BatchResult, error) {
	var result BatchResult
	for _, a := range actions {
		if a.Status != StatusPending {
			continue
		}
		switch {
		case a.Confidence >= l.thresholds.AutoApply:
			applied, err := l.apply(ctx, a, userID, mode)
			if err != nil {
				return result, err
			}
			if applied {
				result.Applied++
			}
		case a.Confidence < l.thresholds.Suggest:
			a.Status = StatusRejected
			result.Rejected++
		}
	}
	return result, nil
}

// #endregion batch-apply

// #region apply

// apply mutates the target profile per the action type. Advisory types mark
// applied without touching storage; they are handled by outer systems.
func (l *Learner) apply(ctx context.Context, a *Action, userID string, mode policy.Mode) (bool, error) {
	if a.Status != StatusPending {
		return false, fmt.Errorf("action %s already %s", a.ID, a.Status)
	}

	if a.Type.Advisory() {
		a.Status = StatusApplied
		a.AppliedAt = l.now().UTC()
		l.logger.Info("learning action recorded for external handling",
			"action", a.ID, "type", a.Type, "target", a.Target)
		return true, nil
	}

	prof, err := l.profiles.GetOrCreate(ctx, userID, mode)
	if err != nil {
		// Profile application is a safe no-op when storage is unavailable;
		// the action stays pending.
		l.logger.Warn("no profile available, skipping application",
			"action", a.ID, "user", userID, "mode", mode, "error", err)
		return false, nil
	}

	switch a.Type {
	case ActionUpdatePreference:
		prof.SetPreference(a.Target, a.SuggestedValue)
	case ActionAdjustRiskThreshold:
		prof.SetPreference("risk-threshold", a.SuggestedValue)
	case ActionAdjustConstraint:
		prof.AppendConstraint(l.learnedConstraint(a))
	default:
		return false, fmt.Errorf("action %s: unknown type %q", a.ID, a.Type)
	}

	prof.UpdatedAt = l.now().UTC()
	if err := l.profiles.Save(ctx, prof); err != nil {
		return false, fmt.Errorf("save profile: %w", err)
	}

	a.Status = StatusApplied
	a.AppliedAt = l.now().UTC()
	l.logger.Info("learning action applied",
		"action", a.ID, "type", a.Type, "target", a.Target, "user", userID, "mode", mode)
	return true, nil
}

// learnedConstraint builds the soft constraint appended by adjust-constraint
// actions: block the failing tool behind a confirmation nudge.
func (l *Learner) learnedConstraint(a *Action) policy.Constraint {
	var params policy.Params = policy.RequireConfirmation{Note: a.Reason}
	if a.Target != "" && a.SuggestedValue == "block" {
		params = policy.BlockTool{ToolID: a.Target}
	}
	return policy.Constraint{
		ID:          "learned-" + uuid.New().String(),
		Severity:    policy.SeveritySoft,
		Active:      true,
		Description: a.Reason,
		Params:      params,
	}
}

// #endregion apply
