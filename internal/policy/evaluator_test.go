package policy

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seededStore(t *testing.T, sets ...ConstraintSet) *MemStore {
	t.Helper()
	store := NewMemStore()
	for _, set := range sets {
		if err := store.SaveConstraintSet(context.Background(), set); err != nil {
			t.Fatalf("seed set %s: %v", set.ID, err)
		}
	}
	return store
}

func blockDeleteSet() ConstraintSet {
	return ConstraintSet{
		ID:   "safety",
		Name: "Safety defaults",
		Constraints: []Constraint{
			{
				ID:       "no-delete",
				Severity: SeverityHard,
				Active:   true,
				Params:   BlockTool{ToolID: "delete-file"},
			},
		},
	}
}

func TestEvaluateActionBlockedToolDenies(t *testing.T) {
	eval := NewEvaluator(seededStore(t, blockDeleteSet()), DefaultConfig())

	result, err := eval.EvaluateAction(context.Background(), ActionContext{
		ToolID: "delete-file",
		Mode:   ModeDefault,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected deny")
	}
	if result.Decision != DecisionDeny {
		t.Fatalf("expected deny decision, got %s", result.Decision)
	}
	if len(result.Triggered) != 1 || result.Triggered[0].ConstraintID != "no-delete" {
		t.Fatalf("expected no-delete to trigger, got %+v", result.Triggered)
	}
}

func TestEvaluateActionOtherToolAllowed(t *testing.T) {
	eval := NewEvaluator(seededStore(t, blockDeleteSet()), DefaultConfig())

	result, err := eval.EvaluateAction(context.Background(), ActionContext{
		ToolID: "read-file",
		Mode:   ModeDefault,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("expected allow, got %+v", result)
	}
	if len(result.Reasons) != 1 || result.Reasons[0] != NoConstraintsReason {
		t.Fatalf("expected %q, got %v", NoConstraintsReason, result.Reasons)
	}
}

func TestInactiveConstraintNeverTriggers(t *testing.T) {
	set := blockDeleteSet()
	set.Constraints[0].Active = false
	eval := NewEvaluator(seededStore(t, set), DefaultConfig())

	result, err := eval.EvaluateAction(context.Background(), ActionContext{
		ToolID: "delete-file",
		Mode:   ModeDefault,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.Allowed {
		t.Fatal("inactive constraint must not trigger")
	}
}

func TestSetApplicabilityExcludesOtherModes(t *testing.T) {
	set := blockDeleteSet()
	set.AppliesTo.Modes = []Mode{ModeWork}
	eval := NewEvaluator(seededStore(t, set), DefaultConfig())

	result, err := eval.EvaluateAction(context.Background(), ActionContext{
		ToolID: "delete-file",
		Mode:   ModeJournal,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.Allowed {
		t.Fatal("set scoped to work must not apply in journal")
	}
}

func TestUnsetPersonaDoesNotDisqualifySet(t *testing.T) {
	set := blockDeleteSet()
	set.AppliesTo.Personas = []Persona{PersonaOperations}
	eval := NewEvaluator(seededStore(t, set), DefaultConfig())

	result, err := eval.EvaluateAction(context.Background(), ActionContext{
		ToolID: "delete-file",
		Mode:   ModeDefault,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatal("unclassified persona must still be filtered by persona-scoped sets")
	}
}

func TestSoftTriggerDeniesUnderFailClosed(t *testing.T) {
	set := ConstraintSet{
		ID: "nudges",
		Constraints: []Constraint{
			{ID: "confirm-all", Severity: SeveritySoft, Active: true, Params: RequireConfirmation{}},
		},
	}
	eval := NewEvaluator(seededStore(t, set), DefaultConfig())

	result, err := eval.EvaluateAction(context.Background(), ActionContext{
		Action: "send-message",
		Mode:   ModeDefault,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatal("fail-closed config must deny on a soft trigger")
	}
	if !result.RequiresConfirmation {
		t.Fatal("soft trigger must request confirmation")
	}
}

func TestSoftTriggerAllowsWhenFailClosedOff(t *testing.T) {
	set := ConstraintSet{
		ID: "nudges",
		Constraints: []Constraint{
			{ID: "confirm-all", Severity: SeveritySoft, Active: true, Params: RequireConfirmation{}},
		},
	}
	eval := NewEvaluator(seededStore(t, set), Config{DenyOnSoftTrigger: false})

	result, err := eval.EvaluateAction(context.Background(), ActionContext{
		Action: "send-message",
		Mode:   ModeDefault,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.Allowed {
		t.Fatal("soft trigger must allow when fail-closed is off")
	}
	if result.Decision != DecisionAllow {
		t.Fatalf("expected allow decision, got %s", result.Decision)
	}
	if !result.RequiresConfirmation {
		t.Fatal("confirmation request must survive the allow")
	}
	if len(result.Triggered) != 1 {
		t.Fatalf("trigger must still be reported, got %+v", result.Triggered)
	}
}

func TestHardTriggerDeniesRegardlessOfConfig(t *testing.T) {
	eval := NewEvaluator(seededStore(t, blockDeleteSet()), Config{DenyOnSoftTrigger: false})

	result, err := eval.EvaluateAction(context.Background(), ActionContext{
		ToolID: "delete-file",
		Mode:   ModeDefault,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatal("hard trigger must deny even with fail-closed off")
	}
}

func TestMaxRiskOrdinal(t *testing.T) {
	set := ConstraintSet{
		ID: "risk",
		Constraints: []Constraint{
			{ID: "cap-medium", Severity: SeverityHard, Active: true, Params: MaxRisk{Max: RiskMedium}},
		},
	}
	eval := NewEvaluator(seededStore(t, set), DefaultConfig())

	for _, tc := range []struct {
		risk Risk
		deny bool
	}{
		{RiskLow, false},
		{RiskMedium, false},
		{RiskHigh, true},
	} {
		result, err := eval.EvaluateAction(context.Background(), ActionContext{
			Action:        "deploy",
			EstimatedRisk: tc.risk,
			Mode:          ModeWork,
		})
		if err != nil {
			t.Fatalf("risk %s: %v", tc.risk, err)
		}
		if result.Allowed == tc.deny {
			t.Fatalf("risk %s: expected deny=%v, got %+v", tc.risk, tc.deny, result)
		}
	}
}

func TestDeviceRestriction(t *testing.T) {
	set := ConstraintSet{
		ID: "devices",
		Constraints: []Constraint{
			{ID: "workstation-only", Severity: SeverityHard, Active: true,
				Params: DeviceRestriction{AllowedDevices: []string{DeviceWorkstation}}},
		},
	}
	eval := NewEvaluator(seededStore(t, set), DefaultConfig())

	result, err := eval.EvaluateAction(context.Background(), ActionContext{
		Action:   "export-ledger",
		DeviceID: "phone",
		Mode:     ModeFinance,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatal("unlisted device must be denied")
	}

	result, err = eval.EvaluateAction(context.Background(), ActionContext{
		Action: "export-ledger",
		Mode:   ModeFinance,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.Allowed {
		t.Fatal("empty device id must not trigger device restrictions")
	}
}

func TestTimeWindow(t *testing.T) {
	set := ConstraintSet{
		ID: "hours",
		Constraints: []Constraint{
			{ID: "night-window", Severity: SeveritySoft, Active: true,
				Params: TimeWindow{Start: "22:00", End: "06:00"}},
		},
	}
	eval := NewEvaluator(seededStore(t, set), DefaultConfig())

	at := func(hour int) func() time.Time {
		return func() time.Time {
			return time.Date(2026, 3, 10, hour, 30, 0, 0, time.UTC)
		}
	}

	result, err := eval.WithClock(at(23)).EvaluateAction(context.Background(), ActionContext{
		Action: "journal-entry",
		Mode:   ModeJournal,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.Allowed {
		t.Fatal("23:30 is inside the 22:00-06:00 window")
	}

	result, err = eval.WithClock(at(12)).EvaluateAction(context.Background(), ActionContext{
		Action: "journal-entry",
		Mode:   ModeJournal,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatal("12:30 is outside the window and must trigger")
	}
}

func TestRoleScopedConstraint(t *testing.T) {
	set := blockDeleteSet()
	set.Constraints[0].AppliesToRoles = []string{"assistant"}
	eval := NewEvaluator(seededStore(t, set), DefaultConfig())

	result, err := eval.EvaluateAction(context.Background(), ActionContext{
		ToolID: "delete-file",
		Role:   "owner",
		Mode:   ModeDefault,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.Allowed {
		t.Fatal("constraint scoped to assistant must not bind the owner role")
	}

	result, err = eval.EvaluateAction(context.Background(), ActionContext{
		ToolID: "delete-file",
		Role:   "assistant",
		Mode:   ModeDefault,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatal("constraint must bind its listed role")
	}
}

func TestEvaluateActionRejectsEmptyAction(t *testing.T) {
	eval := NewEvaluator(NewMemStore(), DefaultConfig())

	_, err := eval.EvaluateAction(context.Background(), ActionContext{Mode: ModeDefault})
	if !errors.Is(err, ErrInvalidContext) {
		t.Fatalf("expected ErrInvalidContext, got %v", err)
	}
}

func TestValidateTransitionBlockMode(t *testing.T) {
	set := ConstraintSet{
		ID:        "focus",
		AppliesTo: AppliesTo{Modes: []Mode{ModeWork}},
		Constraints: []Constraint{
			{ID: "no-social-from-work", Severity: SeverityHard, Active: true,
				Params: BlockMode{BlockedModes: []Mode{ModeSocial}}},
		},
	}
	eval := NewEvaluator(seededStore(t, set), DefaultConfig())

	result, err := eval.ValidateModeTransition(context.Background(), TransitionContext{
		From: ModeWork,
		To:   ModeSocial,
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Success {
		t.Fatal("blocked transition must not succeed")
	}
	if len(result.BlockedBy) != 1 || result.BlockedBy[0].ConstraintID != "no-social-from-work" {
		t.Fatalf("expected block-mode trigger, got %+v", result.BlockedBy)
	}

	result, err = eval.ValidateModeTransition(context.Background(), TransitionContext{
		From: ModeWork,
		To:   ModeJournal,
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Success {
		t.Fatalf("unlisted target mode must pass, got %+v", result.BlockedBy)
	}
}

func TestValidateTransitionPersonaMismatch(t *testing.T) {
	eval := NewEvaluator(NewMemStore(), DefaultConfig())

	result, err := eval.ValidateModeTransition(context.Background(), TransitionContext{
		From:    ModeDefault,
		To:      ModeWork,
		Persona: PersonaSocial,
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Success {
		t.Fatal("persona/mode mismatch must block")
	}
	if result.BlockedBy[0].ConstraintID != SystemPersonaModeMismatch {
		t.Fatalf("expected %s, got %s", SystemPersonaModeMismatch, result.BlockedBy[0].ConstraintID)
	}
}

func TestValidateTransitionDeviceMismatch(t *testing.T) {
	eval := NewEvaluator(NewMemStore(), DefaultConfig())

	result, err := eval.ValidateModeTransition(context.Background(), TransitionContext{
		From:     ModeDefault,
		To:       ModeFinance,
		DeviceID: "phone",
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Success {
		t.Fatal("finance mode on a phone must block")
	}
	if result.BlockedBy[0].ConstraintID != SystemDeviceModeMismatch {
		t.Fatalf("expected %s, got %s", SystemDeviceModeMismatch, result.BlockedBy[0].ConstraintID)
	}

	// Device-neutral target modes never device-block.
	result, err = eval.ValidateModeTransition(context.Background(), TransitionContext{
		From:     ModeDefault,
		To:       ModeJournal,
		DeviceID: "phone",
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Success {
		t.Fatalf("journal is device-neutral, got %+v", result.BlockedBy)
	}
}

func TestValidateTransitionSoftConfirmation(t *testing.T) {
	set := ConstraintSet{
		ID: "careful",
		Constraints: []Constraint{
			{ID: "confirm-transitions", Severity: SeveritySoft, Active: true,
				Params: RequireConfirmation{}},
		},
	}
	eval := NewEvaluator(seededStore(t, set), DefaultConfig())

	result, err := eval.ValidateModeTransition(context.Background(), TransitionContext{
		From: ModeDefault,
		To:   ModeHome,
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Success {
		t.Fatalf("soft confirmation must not block, got %+v", result.BlockedBy)
	}
	if !result.RequiresConfirmation {
		t.Fatal("expected confirmation request")
	}
}

func TestActiveConstraintsPriorityOrder(t *testing.T) {
	low := ConstraintSet{
		ID:       "low",
		Priority: 1,
		Constraints: []Constraint{
			{ID: "c-low", Severity: SeveritySoft, Active: true, Params: Other{Note: "low"}},
		},
	}
	high := ConstraintSet{
		ID:       "high",
		Priority: 10,
		Constraints: []Constraint{
			{ID: "c-high", Severity: SeveritySoft, Active: true, Params: Other{Note: "high"}},
			{ID: "c-off", Severity: SeveritySoft, Active: false, Params: Other{}},
		},
	}
	eval := NewEvaluator(seededStore(t, low, high), DefaultConfig())

	active, err := eval.ActiveConstraints(context.Background(), "", ModeDefault, "")
	if err != nil {
		t.Fatalf("active constraints: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active constraints, got %d", len(active))
	}
	if active[0].ID != "c-high" || active[1].ID != "c-low" {
		t.Fatalf("expected priority order high,low; got %s,%s", active[0].ID, active[1].ID)
	}
}

func TestUserOwnedSetsScopedToOwner(t *testing.T) {
	system := blockDeleteSet()
	owned := ConstraintSet{
		ID:      "alice-rules",
		OwnerID: "alice",
		Constraints: []Constraint{
			{ID: "alice-confirm", Severity: SeveritySoft, Active: true, Params: RequireConfirmation{}},
		},
	}
	store := seededStore(t, system, owned)

	sets, err := store.ConstraintSets(context.Background(), "bob", ModeDefault, "")
	if err != nil {
		t.Fatalf("constraint sets: %v", err)
	}
	for _, set := range sets {
		if set.ID == "alice-rules" {
			t.Fatal("bob must not see alice's sets")
		}
	}

	sets, err = store.ConstraintSets(context.Background(), "alice", ModeDefault, "")
	if err != nil {
		t.Fatalf("constraint sets: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("alice must see system and own sets, got %d", len(sets))
	}
}

func TestNilParamsConstraintTriggersAsOther(t *testing.T) {
	set := ConstraintSet{
		ID: "legacy",
		Constraints: []Constraint{
			{ID: "c1", Severity: SeveritySoft, Active: true},
		},
	}
	eval := NewEvaluator(seededStore(t, set), DefaultConfig())

	result, err := eval.EvaluateAction(context.Background(), ActionContext{
		ToolID: "read-file",
		Mode:   ModeDefault,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected deny")
	}
	if len(result.Triggered) != 1 || result.Triggered[0].Reason != "flagged by constraint" {
		t.Fatalf("expected generic other trigger, got %+v", result.Triggered)
	}
}

func TestUnparseableTimeWindowFailsClosed(t *testing.T) {
	set := ConstraintSet{
		ID: "hours",
		Constraints: []Constraint{
			{ID: "w1", Severity: SeverityHard, Active: true,
				Params: TimeWindow{Start: "25:99", End: "06:00"}},
		},
	}
	eval := NewEvaluator(seededStore(t, set), DefaultConfig())

	result, err := eval.EvaluateAction(context.Background(), ActionContext{
		ToolID: "read-file",
		Mode:   ModeDefault,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatal("window with an unparseable clock must deny, not disable itself")
	}
}
