// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routing

import (
	"context"
	"testing"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/config"
	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
)

func makeTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	yaml := `
domains:
  - domain: career
    keywords: [job, promotion, "my boss"]
    patterns: ["quit(ting)? my job"]
  - domain: relationship
    keywords: [partner, marriage]
  - domain: finance
    keywords: [money, budget, debt, savings]
  - domain: wellness
    keywords: [sleep, stress, exercise]
`
	lex, err := config.LoadDomainLexicon(context.Background(), []byte(yaml))
	if err != nil {
		t.Fatalf("test lexicon failed to load: %v", err)
	}
	c, err := NewClassifier(lex, nil)
	if err != nil {
		t.Fatalf("classifier failed to compile: %v", err)
	}
	return c
}

func makeTestSignalDetector(t *testing.T) *SignalDetector {
	t.Helper()
	yaml := `
deep_analysis: [analyze, "in depth", "detailed plan"]
cross_domain_links: [affects, "because of", "depends on"]
conflict_markers: ["can't do both", "torn between", either]
uncertainty_markers: ["not sure", unsure, "can't decide"]
`
	p, err := config.LoadSignalPhrases(context.Background(), []byte(yaml))
	if err != nil {
		t.Fatalf("test phrases failed to load: %v", err)
	}
	return NewSignalDetector(p)
}

// =============================================================================
// Classifier
// =============================================================================

func TestClassifier_SingleDomain(t *testing.T) {
	c := makeTestClassifier(t)
	got := c.Classify(context.Background(), "should I ask for a promotion this year?")
	if len(got) != 1 || got[0] != datatypes.DomainCareer {
		t.Errorf("expected [career], got %v", got)
	}
}

func TestClassifier_MultiDomain_EnumerationOrder(t *testing.T) {
	c := makeTestClassifier(t)
	// Mention wellness first in the text; output must still be enum order.
	got := c.Classify(context.Background(), "my sleep is wrecked and my job eats my savings")
	want := []datatypes.Domain{datatypes.DomainCareer, datatypes.DomainFinance, datatypes.DomainWellness}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestClassifier_NoMatch(t *testing.T) {
	c := makeTestClassifier(t)
	if got := c.Classify(context.Background(), "what's the weather like?"); len(got) != 0 {
		t.Errorf("expected no domains, got %v", got)
	}
}

func TestClassifier_EmptyText(t *testing.T) {
	c := makeTestClassifier(t)
	if got := c.Classify(context.Background(), ""); len(got) != 0 {
		t.Errorf("expected no domains for empty text, got %v", got)
	}
}

func TestClassifier_RegexPattern(t *testing.T) {
	c := makeTestClassifier(t)
	got := c.Classify(context.Background(), "I'm thinking about quitting my JOB")
	if len(got) != 1 || got[0] != datatypes.DomainCareer {
		t.Errorf("regex pattern should match case-insensitively, got %v", got)
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	c := makeTestClassifier(t)
	text := "job stress and money problems with my partner"
	first := c.Classify(context.Background(), text)
	for i := 0; i < 10; i++ {
		again := c.Classify(context.Background(), text)
		if len(again) != len(first) {
			t.Fatal("classification not deterministic")
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatal("classification order not deterministic")
			}
		}
	}
}

// =============================================================================
// Signals
// =============================================================================

func TestSignals_CrossDomainNeedsTwoDomains(t *testing.T) {
	d := makeTestSignalDetector(t)
	one := []datatypes.Domain{datatypes.DomainCareer}
	two := []datatypes.Domain{datatypes.DomainCareer, datatypes.DomainFinance}

	text := "my job affects my budget"
	if d.Detect(context.Background(), text, one).CrossDomainDependency {
		t.Error("single-domain request must not set cross_domain_dependency")
	}
	if !d.Detect(context.Background(), text, two).CrossDomainDependency {
		t.Error("linking phrase plus two domains must set cross_domain_dependency")
	}
}

func TestSignals_AllFour(t *testing.T) {
	d := makeTestSignalDetector(t)
	domains := []datatypes.Domain{datatypes.DomainCareer, datatypes.DomainFinance}
	sig := d.Detect(context.Background(),
		"analyze this: my job affects my savings, I'm torn between options and not sure what to do",
		domains)
	if !sig.DeepAnalysisRequested || !sig.CrossDomainDependency || !sig.ConflictPossible || !sig.UserUncertain {
		t.Errorf("expected all signals set, got %+v", sig)
	}
}

func TestSignals_NoneSet(t *testing.T) {
	d := makeTestSignalDetector(t)
	sig := d.Detect(context.Background(), "how do I write a resume?", nil)
	if sig != (datatypes.Signals{}) {
		t.Errorf("expected zero signals, got %+v", sig)
	}
}

// =============================================================================
// Complexity Scorer
// =============================================================================

func TestComplexityScore_Bounded(t *testing.T) {
	// Exhaustive sweep over domain counts 0..6 and all 16 signal combos.
	for n := 0; n <= 6; n++ {
		domains := make([]datatypes.Domain, n)
		for mask := 0; mask < 16; mask++ {
			sig := datatypes.Signals{
				DeepAnalysisRequested: mask&1 != 0,
				CrossDomainDependency: mask&2 != 0,
				ConflictPossible:      mask&4 != 0,
				UserUncertain:         mask&8 != 0,
			}
			score := ComplexityScore(domains, sig)
			if score < MinComplexityScore || score > MaxComplexityScore {
				t.Fatalf("score %d out of bounds for n=%d mask=%d", score, n, mask)
			}
		}
	}
}

func TestComplexityScore_ScenarioA(t *testing.T) {
	// Single domain, no signals → 0.
	score := ComplexityScore([]datatypes.Domain{datatypes.DomainCareer}, datatypes.Signals{})
	if score != 0 {
		t.Errorf("expected 0, got %d", score)
	}
}

func TestComplexityScore_ScenarioB(t *testing.T) {
	// Two domains + deep analysis + cross-domain → 1+2+3 = 6.
	score := ComplexityScore(
		[]datatypes.Domain{datatypes.DomainCareer, datatypes.DomainFinance},
		datatypes.Signals{DeepAnalysisRequested: true, CrossDomainDependency: true},
	)
	if score != 6 {
		t.Errorf("expected 6, got %d", score)
	}
}

func TestComplexityScore_DomainClamp(t *testing.T) {
	// Six domains still contribute only 3 points.
	domains := make([]datatypes.Domain, 6)
	if score := ComplexityScore(domains, datatypes.Signals{}); score != 3 {
		t.Errorf("expected clamp to 3, got %d", score)
	}
}

// =============================================================================
// Strategy Selector
// =============================================================================

func TestSelect_Thresholds(t *testing.T) {
	cases := []struct {
		score int
		want  datatypes.Strategy
	}{
		{0, datatypes.StrategyDirect},
		{1, datatypes.StrategyDirect},
		{2, datatypes.StrategyDirect},
		{3, datatypes.StrategySingleSpecialist},
		{5, datatypes.StrategySingleSpecialist},
		{6, datatypes.StrategyParallel},
		{8, datatypes.StrategyParallel},
		{9, datatypes.StrategySequential},
		{11, datatypes.StrategySequential},
	}
	for _, tc := range cases {
		if got := Select(tc.score, nil); got != tc.want {
			t.Errorf("score %d: expected %s, got %s", tc.score, tc.want, got)
		}
	}
}

func TestSelect_ProbeUpgradesToFullOrchestration(t *testing.T) {
	probe := &ConflictProbe{HighSeverityConflicts: 1}
	if got := Select(9, probe); got != datatypes.StrategyFullOrchestration {
		t.Errorf("high-severity conflict at score 9 must upgrade, got %s", got)
	}

	probe = &ConflictProbe{RequiresLinkedDomains: 3}
	if got := Select(10, probe); got != datatypes.StrategyFullOrchestration {
		t.Errorf("3 requires-linked domains must upgrade, got %s", got)
	}
}

func TestSelect_ProbeIgnoredBelowNine(t *testing.T) {
	probe := &ConflictProbe{HighSeverityConflicts: 5, RequiresLinkedDomains: 4}
	if got := Select(8, probe); got != datatypes.StrategyParallel {
		t.Errorf("probe must not affect scores below 9, got %s", got)
	}
}

func TestDecide_SingleSpecialistKeepsFirstDomain(t *testing.T) {
	domains := []datatypes.Domain{datatypes.DomainFinance, datatypes.DomainWellness}
	decision := Decide(4, domains, nil)
	if decision.Strategy != datatypes.StrategySingleSpecialist {
		t.Fatalf("expected single_specialist, got %s", decision.Strategy)
	}
	if len(decision.Domains) != 1 || decision.Domains[0] != datatypes.DomainFinance {
		t.Errorf("expected [finance], got %v", decision.Domains)
	}
}

func TestDecide_DirectHasNoDomains(t *testing.T) {
	decision := Decide(1, []datatypes.Domain{datatypes.DomainCareer}, nil)
	if decision.Strategy != datatypes.StrategyDirect {
		t.Fatalf("expected direct, got %s", decision.Strategy)
	}
	if len(decision.Domains) != 0 {
		t.Errorf("direct decision must not list invocation domains, got %v", decision.Domains)
	}
}

func TestDecide_DoesNotMutateInput(t *testing.T) {
	domains := []datatypes.Domain{datatypes.DomainCareer, datatypes.DomainFinance}
	_ = Decide(7, domains, nil)
	if domains[0] != datatypes.DomainCareer || domains[1] != datatypes.DomainFinance {
		t.Error("Decide must not mutate the caller's domain slice")
	}
}
