package guardrails

import (
	"testing"
)

func TestGetDefaultGuardrails(t *testing.T) {
	guardrails := GetDefaultGuardrails()
	if len(guardrails) == 0 {
		t.Fatal("Expected default guardrails")
	}

	names := make(map[string]bool)
	for _, g := range guardrails {
		if names[g.Name] {
			t.Errorf("Duplicate guardrail name %s", g.Name)
		}
		names[g.Name] = true

		if !g.Global() {
			t.Errorf("Default guardrail %s should be global", g.Name)
		}
		if !g.Operator.Valid() {
			t.Errorf("Guardrail %s has invalid operator %s", g.Name, g.Operator)
		}
		if !g.Action.Valid() {
			t.Errorf("Guardrail %s has invalid action %s", g.Name, g.Action)
		}
		if !g.IsActive {
			t.Errorf("Default guardrail %s should be active", g.Name)
		}
	}
}
