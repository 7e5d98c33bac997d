package storage

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "clawbot.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionState_Roundtrip(t *testing.T) {
	s := openTestStore(t)

	if _, _, ok, err := s.GetState("group:42", "guess"); err != nil || ok {
		t.Fatalf("empty slot: ok=%v err=%v", ok, err)
	}

	if err := s.SetState("group:42", "guess", []byte(`{"answer":17}`)); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	payload, startedAt, ok, err := s.GetState("group:42", "guess")
	if err != nil || !ok {
		t.Fatalf("GetState: ok=%v err=%v", ok, err)
	}
	if string(payload) != `{"answer":17}` || startedAt.IsZero() {
		t.Fatalf("payload=%s startedAt=%v", payload, startedAt)
	}

	// Upsert replaces, never merges.
	if err := s.SetState("group:42", "guess", []byte(`{"answer":99}`)); err != nil {
		t.Fatalf("SetState overwrite: %v", err)
	}
	payload, _, _, _ = s.GetState("group:42", "guess")
	if string(payload) != `{"answer":99}` {
		t.Fatalf("payload after overwrite = %s", payload)
	}

	if err := s.DeleteState("group:42", "guess"); err != nil {
		t.Fatalf("DeleteState: %v", err)
	}
	if _, _, ok, _ := s.GetState("group:42", "guess"); ok {
		t.Fatal("slot survived delete")
	}
}

func TestSessionState_KindsAreIndependent(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetState("group:42", "guess", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := s.SetState("group:42", "stats_lock", []byte("b")); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteState("group:42", "guess"); err != nil {
		t.Fatal(err)
	}

	payload, _, ok, _ := s.GetState("group:42", "stats_lock")
	if !ok || string(payload) != "b" {
		t.Fatalf("sibling kind affected: ok=%v payload=%s", ok, payload)
	}
}

func TestFeatureFlags(t *testing.T) {
	s := openTestStore(t)

	on, err := s.IsEnabled("42", "dice", true)
	if err != nil || !on {
		t.Fatalf("default not honored: on=%v err=%v", on, err)
	}
	off, err := s.IsEnabled("42", "dice", false)
	if err != nil || off {
		t.Fatalf("default not honored: off=%v err=%v", off, err)
	}

	if err := s.SetEnabled("42", "dice", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	on, _ = s.IsEnabled("42", "dice", true)
	if on {
		t.Fatal("explicit off ignored in favor of default")
	}

	if err := s.SetEnabled("42", "welcome", true); err != nil {
		t.Fatal(err)
	}
	flags, err := s.Flags("42")
	if err != nil {
		t.Fatalf("Flags: %v", err)
	}
	if len(flags) != 2 || flags["dice"] || !flags["welcome"] {
		t.Fatalf("flags = %v", flags)
	}
}

func TestCounters(t *testing.T) {
	s := openTestStore(t)

	for i := 1; i <= 3; i++ {
		v, err := s.IncrCounter("group:42", "messages", "2026-08-31")
		if err != nil {
			t.Fatalf("IncrCounter: %v", err)
		}
		if v != int64(i) {
			t.Fatalf("counter = %d, want %d", v, i)
		}
	}
	if _, err := s.IncrCounter("group:42", "messages", "2026-09-01"); err != nil {
		t.Fatal(err)
	}

	total, err := s.CounterTotals("group:42", "messages")
	if err != nil || total != 4 {
		t.Fatalf("total = %d err=%v, want 4", total, err)
	}

	v, err := s.Counter("group:42", "messages", "2026-01-01")
	if err != nil || v != 0 {
		t.Fatalf("missing day counter = %d err=%v", v, err)
	}
}
