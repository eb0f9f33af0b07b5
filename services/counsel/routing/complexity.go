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

import "github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"

// Complexity score bounds. The formula below cannot leave [0, 11] for any
// legal input, and ComplexityScore clamps anyway so a future weight change
// cannot silently widen the range the selector depends on.
const (
	MinComplexityScore = 0
	MaxComplexityScore = 11
)

// ComplexityScore computes the bounded integer complexity of a request.
//
// Formula:
//
//	points = clamp(len(domains)-1, 0, 3)
//	       + 2*deep_analysis_requested
//	       + 3*cross_domain_dependency
//	       + 2*conflict_possible
//	       + 1*user_uncertain
//
// Pure function, no side effects; output always in [0, 11].
func ComplexityScore(domains []datatypes.Domain, signals datatypes.Signals) int {
	points := len(domains) - 1
	if points < 0 {
		points = 0
	}
	if points > 3 {
		points = 3
	}

	if signals.DeepAnalysisRequested {
		points += 2
	}
	if signals.CrossDomainDependency {
		points += 3
	}
	if signals.ConflictPossible {
		points += 2
	}
	if signals.UserUncertain {
		points += 1
	}

	if points < MinComplexityScore {
		points = MinComplexityScore
	}
	if points > MaxComplexityScore {
		points = MaxComplexityScore
	}
	return points
}
