// Package engine wires the constraint store, evaluator, mode service,
// persona classifier, and learner into one programmatic surface. Callers
// embed the engine; there is no network listener.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/audit"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/learning"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/modes"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/persona"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/profile"
)

// #region engine-struct

// Engine is the top-level coordinator. Construct one per process with New
// and share it; every component behind it is safe for concurrent use.
type Engine struct {
	constraints policy.Store
	profiles    profile.Store
	eval        *policy.Evaluator
	modes       *modes.Service
	classifier  *persona.Classifier
	learner     *learning.Learner
	recorder    audit.Recorder
	logger      *slog.Logger
	closer      func() error
}

// Deps are the wired components. Build them with engine.Build (config
// driven) or assemble by hand in tests.
type Deps struct {
	Constraints policy.Store
	Profiles    profile.Store
	Evaluator   *policy.Evaluator
	Modes       *modes.Service
	Classifier  *persona.Classifier
	Learner     *learning.Learner
	Recorder    audit.Recorder
	Logger      *slog.Logger
	Closer      func() error
}

// New assembles an engine from pre-built components. Nil Recorder falls
// back to log-only recording; nil Logger falls back to slog.Default.
func New(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := d.Recorder
	if recorder == nil {
		recorder = audit.NewLogRecorder(logger)
	}
	return &Engine{
		constraints: d.Constraints,
		profiles:    d.Profiles,
		eval:        d.Evaluator,
		modes:       d.Modes,
		classifier:  d.Classifier,
		learner:     d.Learner,
		recorder:    recorder,
		logger:      logger.With("system", "engine"),
		closer:      d.Closer,
	}
}

// Close releases the backing store, if any.
func (e *Engine) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

// #endregion engine-struct

// #region actions

// EvaluateAction evaluates a proposed action against the active constraints
// and records the decision.
func (e *Engine) EvaluateAction(ctx context.Context, action policy.ActionContext) (policy.EvaluationResult, error) {
	result, err := e.eval.EvaluateAction(ctx, action)
	if err != nil {
		return policy.EvaluationResult{}, err
	}
	subject := action.ToolID
	if subject == "" {
		subject = action.Action
	}
	e.record(ctx, audit.Entry{
		Kind:      audit.KindAction,
		UserID:    action.UserID,
		Subject:   subject,
		Decision:  string(result.Decision),
		Reasons:   result.Reasons,
		Triggered: result.Triggered,
	})
	return result, nil
}

// ActiveConstraints returns the flattened active constraints for a scope.
func (e *Engine) ActiveConstraints(ctx context.Context, userID string, mode policy.Mode, p policy.Persona) ([]policy.Constraint, error) {
	return e.eval.ActiveConstraints(ctx, userID, mode, p)
}

// #endregion actions

// #region modes

// CurrentMode returns the mode the engine is in.
func (e *Engine) CurrentMode() policy.Mode {
	return e.modes.Current()
}

// ModeDescriptor returns the static descriptor of the current mode.
func (e *Engine) ModeDescriptor() modes.Descriptor {
	return e.modes.Descriptor()
}

// ValidateModeTransition checks a transition without committing it.
func (e *Engine) ValidateModeTransition(ctx context.Context, tc policy.TransitionContext) (policy.TransitionResult, error) {
	return e.eval.ValidateModeTransition(ctx, tc)
}

// SetMode validates and commits a mode transition, recording the outcome.
// A blocked or unconfirmed transition returns the mode service's sentinel
// errors and records a deny.
func (e *Engine) SetMode(ctx context.Context, userID string, to policy.Mode, p policy.Persona, deviceID string, opts modes.Options) error {
	from := e.modes.Current()
	err := e.modes.SetMode(ctx, userID, to, p, deviceID, opts)

	entry := audit.Entry{
		Kind:    audit.KindTransition,
		UserID:  userID,
		Subject: fmt.Sprintf("%s->%s", from, to),
	}
	if err != nil {
		entry.Decision = string(policy.DecisionDeny)
		entry.Reasons = []string{err.Error()}
	} else {
		entry.Decision = string(policy.DecisionAllow)
	}
	e.record(ctx, entry)
	return err
}

// #endregion modes

// #region persona

// ClassifyPersona classifies the active persona for a context.
func (e *Engine) ClassifyPersona(ctx persona.Context) persona.Classification {
	return e.classifier.Classify(ctx)
}

// SetPersonaOverride pins a persona for the override's scope.
func (e *Engine) SetPersonaOverride(userID string, ov persona.Override) error {
	if !ov.Valid() {
		return fmt.Errorf("%w: invalid persona override", policy.ErrInvalidContext)
	}
	e.classifier.Overrides().Set(userID, ov)
	return nil
}

// GetPersonaOverride returns the override matching a context, if any.
func (e *Engine) GetPersonaOverride(userID string, ctx persona.Context) (persona.Override, bool) {
	return e.classifier.Overrides().Get(userID, ctx)
}

// ClearPersonaOverride removes the override matching the given scope.
func (e *Engine) ClearPersonaOverride(userID string, scope persona.Override) {
	e.classifier.Overrides().Clear(userID, scope)
}

// #endregion persona

// #region learning

// GenerateLearningActions derives candidate actions from a detected pattern.
func (e *Engine) GenerateLearningActions(p learning.Pattern) []learning.Action {
	return e.learner.GenerateActions(p)
}

// AutoApplyIfHighConfidence applies the action iff its confidence clears the
// auto-apply threshold, recording any application.
func (e *Engine) AutoApplyIfHighConfidence(ctx context.Context, a *learning.Action, userID string, mode policy.Mode) (bool, error) {
	applied, err := e.learner.AutoApplyIfHighConfidence(ctx, a, userID, mode)
	if applied {
		e.recordLearning(ctx, a, userID, "auto-applied")
	}
	return applied, err
}

// ApplyWithConfirmation applies or rejects a pending action on the caller's
// explicit decision.
func (e *Engine) ApplyWithConfirmation(ctx context.Context, a *learning.Action, userID string, mode policy.Mode, confirmed bool) (bool, error) {
	applied, err := e.learner.ApplyWithConfirmation(ctx, a, userID, mode, confirmed)
	if applied {
		e.recordLearning(ctx, a, userID, "confirmed")
	}
	return applied, err
}

// BatchApply routes a batch of actions through the confidence gates.
// Only actions this call transitions to applied are recorded; actions
// already settled by an earlier pass are skipped.
func (e *Engine) BatchApply(ctx context.Context, actions []*learning.Action, userID string, mode policy.Mode) (learning.BatchResult, error) {
	wasPending := make(map[*learning.Action]bool, len(actions))
	for _, a := range actions {
		wasPending[a] = a.Status == learning.StatusPending
	}
	result, err := e.learner.BatchApply(ctx, actions, userID, mode)
	for _, a := range actions {
		if wasPending[a] && a.Status == learning.StatusApplied {
			e.recordLearning(ctx, a, userID, "auto-applied")
		}
	}
	return result, err
}

func (e *Engine) recordLearning(ctx context.Context, a *learning.Action, userID, how string) {
	e.record(ctx, audit.Entry{
		Kind:     audit.KindLearning,
		UserID:   userID,
		Subject:  a.Target,
		Decision: how,
		Reasons:  []string{a.Reason},
	})
}

// #endregion learning

// #region constraint-admin

// SaveConstraintSet stores or replaces a constraint set.
func (e *Engine) SaveConstraintSet(ctx context.Context, set policy.ConstraintSet) error {
	return e.constraints.SaveConstraintSet(ctx, set)
}

// Constraint looks up a single constraint by id.
func (e *Engine) Constraint(ctx context.Context, id string) (policy.Constraint, error) {
	return e.constraints.Constraint(ctx, id)
}

// UpdateConstraint rewrites a stored constraint in place.
func (e *Engine) UpdateConstraint(ctx context.Context, c policy.Constraint) error {
	return e.constraints.UpdateConstraint(ctx, c)
}

// DeleteConstraintSet removes a constraint set and its constraints.
func (e *Engine) DeleteConstraintSet(ctx context.Context, id string) error {
	return e.constraints.DeleteConstraintSet(ctx, id)
}

// Profile returns the stored profile for a user and mode, creating it from
// the seed defaults when absent.
func (e *Engine) Profile(ctx context.Context, userID string, mode policy.Mode) (profile.Profile, error) {
	return e.profiles.GetOrCreate(ctx, userID, mode)
}

// #endregion constraint-admin

// #region record

// record writes a decision entry. Recording failures never fail the
// decision itself; they are logged and dropped.
func (e *Engine) record(ctx context.Context, entry audit.Entry) {
	if err := e.recorder.Record(ctx, entry); err != nil {
		e.logger.Warn("decision record failed", "kind", entry.Kind, "error", err)
	}
}

// ErrNoDecisionLog is returned when the configured recorder only logs
// decisions and cannot read them back.
var ErrNoDecisionLog = errors.New("configured recorder does not persist decisions")

// decisionLister is implemented by recorders that persist entries.
type decisionLister interface {
	RecentDecisions(ctx context.Context, limit int) ([]audit.Entry, error)
}

// RecentDecisions returns the newest decision entries, most recent first.
func (e *Engine) RecentDecisions(ctx context.Context, limit int) ([]audit.Entry, error) {
	lister, ok := e.recorder.(decisionLister)
	if !ok {
		return nil, ErrNoDecisionLog
	}
	return lister.RecentDecisions(ctx, limit)
}

// #endregion record
