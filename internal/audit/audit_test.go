package audit

import (
	"context"
	"testing"
)

func TestMemRecorderStampsAndCopies(t *testing.T) {
	r := NewMemRecorder()

	if err := r.Record(context.Background(), Entry{Kind: KindAction, Decision: "allow"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	got := r.Entries()
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatal("created_at must be stamped")
	}

	got[0].Decision = "deny"
	if r.Entries()[0].Decision != "allow" {
		t.Fatal("mutating the returned slice must not affect the recorder")
	}
}

func TestMemRecorderRecentDecisions(t *testing.T) {
	r := NewMemRecorder()
	for _, subject := range []string{"first", "second", "third"} {
		if err := r.Record(context.Background(), Entry{Kind: KindAction, Subject: subject, Decision: "allow"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := r.RecentDecisions(context.Background(), 2)
	if err != nil {
		t.Fatalf("recent decisions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Subject != "third" || got[1].Subject != "second" {
		t.Fatalf("expected newest first, got %+v", got)
	}
}
