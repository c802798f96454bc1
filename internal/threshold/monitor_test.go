package threshold

import (
	"testing"

	"github.com/firestige/tickwatch/pkg/models"
)

func TestCooldownSuppression(t *testing.T) {
	// S5 — Threshold cooldown.
	rs := RuleSet{
		RulesByPPA: map[int][]models.ThresholdRule{
			9999: {{Op: models.OpGT, Value: 0, RuleID: "R"}},
		},
		CooldownSec: 10,
	}
	m := NewMonitor(rs)

	var emitted []float64
	for _, at := range []float64{100, 105, 111} {
		vs := m.Check(at, 9999, 1)
		if len(vs) > 0 {
			emitted = append(emitted, at)
		}
	}

	if len(emitted) != 2 || emitted[0] != 100 || emitted[1] != 111 {
		t.Fatalf("expected emissions at [100 111], got %v", emitted)
	}
}

func TestNoCooldownAlwaysEmits(t *testing.T) {
	rs := RuleSet{
		RulesByPPA: map[int][]models.ThresholdRule{
			1: {{Op: models.OpGT, Value: 0, RuleID: "R"}},
		},
		CooldownSec: 0,
	}
	m := NewMonitor(rs)

	for _, at := range []float64{1, 2, 3} {
		vs := m.Check(at, 1, 5)
		if len(vs) != 1 {
			t.Fatalf("at t=%v expected 1 violation, got %d", at, len(vs))
		}
	}
}

func TestEmitOrderMatchesRuleOrder(t *testing.T) {
	rs := RuleSet{
		RulesByPPA: map[int][]models.ThresholdRule{
			1: {
				{Op: models.OpGT, Value: 0, RuleID: "A"},
				{Op: models.OpLT, Value: 100, RuleID: "B"},
			},
		},
	}
	m := NewMonitor(rs)

	vs := m.Check(1, 1, 5)
	if len(vs) != 2 || vs[0].RuleID != "A" || vs[1].RuleID != "B" {
		t.Fatalf("unexpected order: %+v", vs)
	}
}

func TestAbsoluteToleranceEquality(t *testing.T) {
	rule := models.ThresholdRule{Op: models.OpEQ, Value: 10, Atol: 0.5}
	if !rule.Violated(10.4) {
		t.Fatal("expected 10.4 to be within tolerance of 10")
	}
	if rule.Violated(10.6) {
		t.Fatal("expected 10.6 to be outside tolerance of 10")
	}
}

func TestUnroutedPPAProducesNoViolations(t *testing.T) {
	m := NewMonitor(RuleSet{RulesByPPA: map[int][]models.ThresholdRule{}})
	if vs := m.Check(1, 42, 100); vs != nil {
		t.Fatalf("expected nil, got %v", vs)
	}
}
