// Package threshold evaluates per-PPA comparison rules against raw
// measurement values and suppresses repeat emissions inside a cooldown
// window. The cooldown map follows the same guarded-map shape as the
// sharded window processor's stats map: a single mutex protects lookups
// that are cheap enough (one comparison, one map write) to never be a
// contention source in practice.
package threshold

import (
	"sync"

	"github.com/firestige/tickwatch/pkg/models"
)

// RuleSet is the per-PPA list of threshold rules plus the cooldown that
// applies uniformly across all of them.
type RuleSet struct {
	RulesByPPA  map[int][]models.ThresholdRule
	CooldownSec float64
}

type cooldownKey struct {
	ppa    int
	ruleID string
}

// Monitor evaluates RuleSet rules against incoming measurement values,
// emitting at most one ViolationEvent per (ppa, rule_id) per cooldown
// window.
//
// The rule set can be swapped live via UpdateRules (daemon reload, or a
// config.WatchRulesOverlay callback); mu guards both the rule set and
// the cooldown bookkeeping so a reload never races a concurrent Check.
type Monitor struct {
	mu          sync.Mutex
	rules       map[int][]models.ThresholdRule
	cooldownSec float64
	lastEmit    map[cooldownKey]float64
}

// NewMonitor builds a Monitor from a RuleSet.
func NewMonitor(rs RuleSet) *Monitor {
	return &Monitor{
		rules:       rs.RulesByPPA,
		cooldownSec: rs.CooldownSec,
		lastEmit:    make(map[cooldownKey]float64),
	}
}

// UpdateRules replaces the active rule set in place, so a Monitor
// already wired into a running dispatcher picks up new rules without
// requiring callers to rebuild and re-wire a new Monitor. Cooldown
// bookkeeping for rule IDs that still exist in the new set is kept;
// it is irrelevant for ones that don't.
func (m *Monitor) UpdateRules(rs RuleSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = rs.RulesByPPA
	m.cooldownSec = rs.CooldownSec
}

// Check evaluates every rule configured for ppa against value, in rule
// list order, and returns the violations that should be emitted now.
// A rule that fires inside its cooldown window is suppressed but never
// causes Check itself to fail or skip the remaining rules.
func (m *Monitor) Check(nowEpoch float64, ppa int, value float64) []models.ViolationEvent {
	m.mu.Lock()
	rules, ok := m.rules[ppa]
	cooldownSec := m.cooldownSec
	m.mu.Unlock()
	if !ok || len(rules) == 0 {
		return nil
	}

	var out []models.ViolationEvent
	for _, rule := range rules {
		if !rule.Violated(value) {
			continue
		}

		if cooldownSec > 0 {
			key := cooldownKey{ppa: ppa, ruleID: rule.RuleID}
			m.mu.Lock()
			last, seen := m.lastEmit[key]
			if seen && nowEpoch-last < cooldownSec {
				m.mu.Unlock()
				continue
			}
			m.lastEmit[key] = nowEpoch
			m.mu.Unlock()
		}

		out = append(out, models.ViolationEvent{
			TEpoch:    nowEpoch,
			PPA:       ppa,
			Value:     value,
			RuleID:    rule.RuleID,
			RuleLabel: ruleLabel(rule),
		})
	}
	return out
}

func ruleLabel(r models.ThresholdRule) string {
	return string(r.Op) + " " + formatValue(r.Value)
}

func formatValue(v float64) string {
	// Trim to a compact decimal representation without trailing zeros,
	// e.g. "> 0" rather than "> 0.000000".
	s := trimFloat(v)
	return s
}
