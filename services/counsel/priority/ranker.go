// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package priority computes weighted priority scores for goals and orders
// them deterministically. Scores are derived values: they are recomputed
// from the goal's factors on every call and never cached across factor
// changes, so there is no stale-derived-state failure mode.
package priority

import (
	"sort"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
	"github.com/WaypointAI/WaypointFOSS/services/counsel/goalgraph"
)

// Factor weights. urgency and impact dominate; resource availability is the
// weakest signal because it changes the fastest.
const (
	weightUrgency    = 3.0
	weightImpact     = 3.0
	weightPreference = 2.0
	weightDependency = 1.5
	weightResource   = 1.0
)

// Category band cutoffs over the weighted score.
const (
	criticalCutoff = 60.0
	highCutoff     = 40.0
	mediumCutoff   = 20.0
)

// maxFactor caps a boosted factor at the top of the legal [1,10] range.
const maxFactor = 10

// Compute derives the priority score for one goal.
//
//	score = urgency*3 + impact*3 + preference*2
//	      + dependency_weight*1.5 + resource_availability*1
//
// Pure function; never cached.
func Compute(g datatypes.Goal) datatypes.PriorityScore {
	value := float64(g.Urgency)*weightUrgency +
		float64(g.Impact)*weightImpact +
		float64(g.Preference)*weightPreference +
		float64(g.DependencyWeight)*weightDependency +
		float64(g.ResourceAvailability)*weightResource
	return datatypes.PriorityScore{Value: value, Category: CategoryFor(value)}
}

// CategoryFor maps a score to its band: critical >=60, high >=40,
// medium >=20, low below. Exactly 60 is critical; the bands are contiguous
// with no gap between high and critical.
func CategoryFor(score float64) datatypes.PriorityCategory {
	switch {
	case score >= criticalCutoff:
		return datatypes.PriorityCritical
	case score >= highCutoff:
		return datatypes.PriorityHigh
	case score >= mediumCutoff:
		return datatypes.PriorityMedium
	default:
		return datatypes.PriorityLow
	}
}

// Entry pairs a goal with its computed score.
type Entry struct {
	Goal  datatypes.Goal
	Score datatypes.PriorityScore
}

// Rank orders goals by descending priority score.
//
// Description:
//
//	Ties are broken by impact, then urgency, then input position, so the
//	output is a pure, fully deterministic function of its inputs: re-running
//	with identical inputs always yields the identical ordered list. Rank
//	never mutates factor values — apply ApplyDependencyBoost first if the
//	graph-aware boost is wanted.
//
// Inputs:
//   - goals: the goals to rank, in extraction order.
//
// Outputs:
//   - []Entry: descending by score. Never nil for non-empty input.
func Rank(goals []datatypes.Goal) []Entry {
	entries := make([]Entry, len(goals))
	for i, g := range goals {
		entries[i] = Entry{Goal: g, Score: Compute(g)}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score.Value != b.Score.Value {
			return a.Score.Value > b.Score.Value
		}
		if a.Goal.Impact != b.Goal.Impact {
			return a.Goal.Impact > b.Goal.Impact
		}
		if a.Goal.Urgency != b.Goal.Urgency {
			return a.Goal.Urgency > b.Goal.Urgency
		}
		// Stable sort preserves input position for full ties.
		return false
	})

	return entries
}

// ApplyDependencyBoost is the policy hook for graph-aware dependency
// weighting: a goal that unblocks other pending goals (incoming enables
// edges) gets its dependency_weight raised by that in-degree, capped at the
// factor ceiling.
//
// The boost is applied to copies; neither the input slice nor the graph is
// mutated, keeping Rank itself a pure consumer of factors.
func ApplyDependencyBoost(goals []datatypes.Goal, graph *goalgraph.Graph) []datatypes.Goal {
	if graph == nil {
		out := make([]datatypes.Goal, len(goals))
		copy(out, goals)
		return out
	}

	out := make([]datatypes.Goal, len(goals))
	for i, g := range goals {
		boosted := g
		if deg := graph.EnablesInDegree(g.ID); deg > 0 {
			boosted.DependencyWeight += deg
			if boosted.DependencyWeight > maxFactor {
				boosted.DependencyWeight = maxFactor
			}
		}
		out[i] = boosted
	}
	return out
}
