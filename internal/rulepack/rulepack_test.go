package rulepack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenPeopleStudio/lifeos/decision-engine/internal/policy"
)

const samplePack = `
version: 1
classifier_weights:
  mode: 4.0
sets:
  - id: system-safety
    name: System safety defaults
    priority: 100
    rules:
      - id: no-delete
        kind: block-tool
        severity: hard
        tool_id: delete-file
        description: never delete files automatically
      - id: cap-risk
        kind: max-risk
        max_risk: medium
        roles: [assistant]
  - id: work-focus
    name: Work focus
    priority: 50
    modes: [work]
    personas: [operations]
    rules:
      - id: no-social-from-work
        kind: block-mode
        severity: hard
        blocked_modes: [social]
      - id: off-hours
        kind: time-window
        window_start: "08:00"
        window_end: "19:00"
      - id: muted
        kind: require-confirmation
        active: false
        note: confirm noisy actions
`

func writePack(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pack.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	return path
}

func TestLoadAndConvert(t *testing.T) {
	pack, err := Load(writePack(t, samplePack))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	sets, err := pack.ConstraintSets()
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("expected 2 sets, got %d", len(sets))
	}

	safety := sets[0]
	if safety.ID != "system-safety" || safety.Priority != 100 {
		t.Fatalf("set fields lost: %+v", safety)
	}
	if safety.OwnerID != "" {
		t.Fatalf("pack sets must be system-owned, got owner %q", safety.OwnerID)
	}
	if len(safety.Constraints) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(safety.Constraints))
	}
	block, ok := safety.Constraints[0].Params.(policy.BlockTool)
	if !ok || block.ToolID != "delete-file" {
		t.Fatalf("block-tool params lost: %+v", safety.Constraints[0].Params)
	}
	if !safety.Constraints[0].Active {
		t.Fatal("active must default to true")
	}
	// Omitted severity defaults to soft.
	if safety.Constraints[1].Severity != policy.SeveritySoft {
		t.Fatalf("expected soft default severity, got %s", safety.Constraints[1].Severity)
	}
	if safety.Constraints[1].AppliesToRoles[0] != "assistant" {
		t.Fatalf("roles lost: %+v", safety.Constraints[1])
	}

	focus := sets[1]
	if len(focus.AppliesTo.Modes) != 1 || focus.AppliesTo.Modes[0] != policy.ModeWork {
		t.Fatalf("mode scope lost: %+v", focus.AppliesTo)
	}
	if focus.Constraints[2].Active {
		t.Fatal("active: false must be honored")
	}
	window, ok := focus.Constraints[1].Params.(policy.TimeWindow)
	if !ok || window.Start != "08:00" || window.End != "19:00" {
		t.Fatalf("time-window params lost: %+v", focus.Constraints[1].Params)
	}
}

func TestClassifierWeightOverrides(t *testing.T) {
	pack, err := Load(writePack(t, samplePack))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	w := pack.ClassifierWeights()
	if w.Mode != 4.0 {
		t.Fatalf("expected mode weight override 4.0, got %f", w.Mode)
	}
	// Unlisted families keep their defaults.
	if w.Device != 2.0 || w.Feature != 1.5 || w.Time != 0.75 {
		t.Fatalf("unexpected defaults: %+v", w)
	}
}

func TestConvertRejectsUnknownKind(t *testing.T) {
	doc := `
sets:
  - id: bad
    rules:
      - id: r1
        kind: teleport
`
	pack, err := Load(writePack(t, doc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := pack.ConstraintSets(); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestConvertRejectsMissingKindFields(t *testing.T) {
	doc := `
sets:
  - id: bad
    rules:
      - id: r1
        kind: block-tool
`
	pack, err := Load(writePack(t, doc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := pack.ConstraintSets(); err == nil {
		t.Fatal("expected error for block-tool without tool_id")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	if _, err := Load(writePack(t, "sets: [unclosed")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestConvertRejectsUnparseableWindow(t *testing.T) {
	doc := `
sets:
  - id: bad
    rules:
      - id: r1
        kind: time-window
        window_start: "25:99"
        window_end: "06:00"
`
	pack, err := Load(writePack(t, doc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := pack.ConstraintSets(); err == nil {
		t.Fatal("expected error for unparseable window clock")
	}
}
