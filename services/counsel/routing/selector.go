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
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
)

var selectorStrategyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "counsel",
	Subsystem: "selector",
	Name:      "strategy_total",
	Help:      "Strategy selections by strategy",
}, []string{"strategy"})

// Strategy thresholds over the complexity score.
const (
	directMax           = 2
	singleSpecialistMax = 5
	parallelMax         = 8
)

// ConflictProbe summarizes a provisional conflict-detector pass over
// preliminary goal extraction. The selector reads it for high scores but
// never calls the detector: the engine runs the detector first and hands
// the summary in, which keeps the two components from ever calling each
// other recursively. A second, final detector pass happens inside full
// orchestration after the domain set is locked.
type ConflictProbe struct {
	// HighSeverityConflicts counts near-tie conflicts found provisionally.
	HighSeverityConflicts int

	// RequiresLinkedDomains is the number of distinct domains connected by
	// requires edges in the provisional goal graph.
	RequiresLinkedDomains int
}

// escalates reports whether the probe justifies full orchestration over a
// plain sequential chain.
func (p *ConflictProbe) escalates() bool {
	if p == nil {
		return false
	}
	return p.HighSeverityConflicts > 0 || p.RequiresLinkedDomains >= 3
}

// Select maps a complexity score to a response strategy.
//
// Thresholds: 0–2 direct, 3–5 single_specialist, 6–8 parallel, 9+
// sequential — upgraded to full_orchestration when the provisional conflict
// probe reports at least one high-severity conflict or three or more
// domains linked by requires edges. probe may be nil (treated as empty);
// it is only consulted for scores of 9 and above.
func Select(score int, probe *ConflictProbe) datatypes.Strategy {
	var s datatypes.Strategy
	switch {
	case score <= directMax:
		s = datatypes.StrategyDirect
	case score <= singleSpecialistMax:
		s = datatypes.StrategySingleSpecialist
	case score <= parallelMax:
		s = datatypes.StrategyParallel
	case probe.escalates():
		s = datatypes.StrategyFullOrchestration
	default:
		s = datatypes.StrategySequential
	}
	selectorStrategyTotal.WithLabelValues(s.String()).Inc()
	return s
}

// Decide builds the full strategy decision for a request: the strategy plus
// the ordered domain invocation list.
//
// Description:
//
//	Domains arrive in classifier (enumeration) order. For single_specialist
//	only the first candidate is kept; the engine may re-order candidates by
//	goal rank before calling Decide, which is the one sanctioned way rank
//	influences invocation order. The decision is immutable once produced.
func Decide(score int, domains []datatypes.Domain, probe *ConflictProbe) datatypes.StrategyDecision {
	strategy := Select(score, probe)

	ordered := make([]datatypes.Domain, len(domains))
	copy(ordered, domains)

	switch strategy {
	case datatypes.StrategyDirect:
		ordered = nil
	case datatypes.StrategySingleSpecialist:
		if len(ordered) > 1 {
			ordered = ordered[:1]
		}
	}

	reason := fmt.Sprintf("complexity %d with %d candidate domain(s)", score, len(domains))
	if strategy == datatypes.StrategyFullOrchestration {
		reason = fmt.Sprintf("complexity %d with provisional conflicts requiring orchestration", score)
	}

	return datatypes.StrategyDecision{
		Strategy:        strategy,
		Domains:         ordered,
		ComplexityScore: score,
		Reason:          reason,
	}
}
