package policy

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestConstraintEnvelopeRoundTrip(t *testing.T) {
	in := Constraint{
		ID:             "cap",
		Severity:       SeverityHard,
		Active:         true,
		Description:    "cap risk at medium",
		AppliesToRoles: []string{"assistant"},
		Params:         MaxRisk{Max: RiskMedium},
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"max-risk"`) {
		t.Fatalf("envelope missing kind tag: %s", data)
	}

	var out Constraint
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Kind() != KindMaxRisk {
		t.Fatalf("expected max-risk, got %s", out.Kind())
	}
	p, ok := out.Params.(MaxRisk)
	if !ok || p.Max != RiskMedium {
		t.Fatalf("params lost in round trip: %+v", out.Params)
	}
	if out.ID != in.ID || out.Severity != in.Severity || !out.Active {
		t.Fatalf("envelope fields lost: %+v", out)
	}
}

func TestDecodeParamsUnknownKind(t *testing.T) {
	if _, err := DecodeParams(Kind("bogus"), []byte(`{}`)); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestDecodeParamsEmptyPayload(t *testing.T) {
	p, err := DecodeParams(KindRequireConfirmation, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := p.(RequireConfirmation); !ok {
		t.Fatalf("expected RequireConfirmation, got %T", p)
	}
}

func TestDecodeParamsRejectsUnparseableWindow(t *testing.T) {
	if _, err := DecodeParams(KindTimeWindow, []byte(`{"start":"25:99","end":"06:00"}`)); err == nil {
		t.Fatal("expected error for unparseable window start")
	}
	if _, err := DecodeParams(KindTimeWindow, []byte(`{"start":"22:00","end":"6pm"}`)); err == nil {
		t.Fatal("expected error for unparseable window end")
	}
}
