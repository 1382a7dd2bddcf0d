package plan

import "testing"

func TestHashOfIsDeterministic(t *testing.T) {
	type payload struct {
		A int
		B string
	}
	a, err := hashOf(payload{A: 1, B: "x"})
	if err != nil {
		t.Fatalf("hashOf: %v", err)
	}
	b, err := hashOf(payload{A: 1, B: "x"})
	if err != nil {
		t.Fatalf("hashOf: %v", err)
	}
	if a != b {
		t.Error("expected identical payloads to hash identically")
	}

	c, err := hashOf(payload{A: 2, B: "x"})
	if err != nil {
		t.Fatalf("hashOf: %v", err)
	}
	if a == c {
		t.Error("expected differing payloads to hash differently")
	}
}

func TestForceFlags(t *testing.T) {
	if got := forceFlags(false); got != nil {
		t.Errorf("expected nil flags when not forced, got %v", got)
	}
	if got := forceFlags(true); len(got) != 1 || got[0] != "freeze_window_override" {
		t.Errorf("expected freeze_window_override flag, got %v", got)
	}
}
