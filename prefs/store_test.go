package prefs

import (
	"context"
	"testing"
)

// In-memory behavior (no Redis configured).

func TestRulesRoundTrip(t *testing.T) {
	st := NewStore(context.Background(), "", "")
	defer st.Close()

	if got := st.Rules(); got != "" {
		t.Fatalf("fresh store has rules: %q", got)
	}

	if err := st.SetRules(context.Background(), "Emphasize Qalqalah on ق"); err != nil {
		t.Fatalf("SetRules failed: %v", err)
	}
	if got := st.Rules(); got != "Emphasize Qalqalah on ق" {
		t.Errorf("Rules: got %q", got)
	}
}

func TestEmptyRulesClearsEntirely(t *testing.T) {
	st := NewStore(context.Background(), "", "")
	defer st.Close()

	if err := st.SetRules(context.Background(), "some rules"); err != nil {
		t.Fatalf("SetRules failed: %v", err)
	}
	if err := st.SetRules(context.Background(), ""); err != nil {
		t.Fatalf("SetRules(\"\") failed: %v", err)
	}
	if got := st.Rules(); got != "" {
		t.Errorf("rules not cleared: %q", got)
	}
}

func TestClear(t *testing.T) {
	st := NewStore(context.Background(), "", "")
	defer st.Close()

	st.SetRules(context.Background(), "rules")
	if err := st.Clear(context.Background()); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if got := st.Rules(); got != "" {
		t.Errorf("rules after Clear: %q", got)
	}
}
