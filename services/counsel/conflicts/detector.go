// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conflicts detects resource contention between goals and proposes
// resolutions. Severity is inverse to the score gap: a big gap means one
// goal clearly dominates (low severity, easy call), a near tie is the hard
// case (high severity) and is returned to the caller as an open choice
// rather than auto-resolved.
package conflicts

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
	"github.com/WaypointAI/WaypointFOSS/services/counsel/goalgraph"
	"github.com/WaypointAI/WaypointFOSS/services/counsel/priority"
)

var (
	conflictDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "counsel",
		Subsystem: "conflicts",
		Name:      "detected_total",
		Help:      "Conflicts detected by kind and severity",
	}, []string{"kind", "severity"})
)

var conflictsTracer = otel.Tracer("waypoint.counsel.conflicts")

// Severity gap bands: |scoreA - scoreB| > 50 means one goal clearly wins
// (low); 20–50 is a phased-plan case (medium); under 20 is a true tie
// (high).
const (
	lowSeverityGap    = 50.0
	mediumSeverityGap = 20.0
)

// SeverityForGap classifies a score gap. Exported so the resolver and tests
// share one definition of the bands.
func SeverityForGap(gap float64) datatypes.ConflictSeverity {
	if gap < 0 {
		gap = -gap
	}
	switch {
	case gap > lowSeverityGap:
		return datatypes.SeverityLow
	case gap >= mediumSeverityGap:
		return datatypes.SeverityMedium
	default:
		return datatypes.SeverityHigh
	}
}

// Detect scans the goal graph and priority ranking for conflicts.
//
// Description:
//
//	Two sources, in deterministic order:
//	  1. Explicit — every unordered pair joined by a conflicts edge.
//	  2. Implicit — every unordered pair where both goals score in the
//	     high or critical band AND share at least one resource tag, and
//	     that is not already an explicit conflict.
//	Pairs are emitted with the lexicographically smaller goal id first;
//	implicit pairs follow ranking order. Conflicts are ephemeral: they are
//	recomputed from the current graph and scores every cycle.
//
// Inputs:
//   - ctx: context for tracing.
//   - graph: the validated goal graph. May be nil (no explicit conflicts).
//   - entries: the priority ranking for the same goal set.
//
// Outputs:
//   - []datatypes.Conflict: detected conflicts; empty slice when none.
func Detect(ctx context.Context, graph *goalgraph.Graph, entries []priority.Entry) []datatypes.Conflict {
	_, span := conflictsTracer.Start(ctx, "conflicts.Detect")
	defer span.End()

	scores := make(map[string]float64, len(entries))
	categories := make(map[string]datatypes.PriorityCategory, len(entries))
	for _, e := range entries {
		scores[e.Goal.ID] = e.Score.Value
		categories[e.Goal.ID] = e.Score.Category
	}

	var out []datatypes.Conflict
	seen := make(map[[2]string]bool)

	if graph != nil {
		for _, pair := range graph.ConflictPairs() {
			gap := scoreGap(scores, pair[0], pair[1])
			c := datatypes.Conflict{
				GoalA:    pair[0],
				GoalB:    pair[1],
				Kind:     datatypes.ConflictExplicit,
				Severity: SeverityForGap(gap),
				ScoreGap: gap,
			}
			seen[pair] = true
			out = append(out, c)
			conflictDetectedTotal.WithLabelValues(c.Kind.String(), c.Severity.String()).Inc()
		}
	}

	// Implicit: contention for the same limited resource among goals that
	// both matter. Pair order follows the ranking so output is deterministic.
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i].Goal, entries[j].Goal
			if !contended(categories[a.ID]) || !contended(categories[b.ID]) {
				continue
			}
			resource := sharedResource(a.ResourceTags, b.ResourceTags)
			if resource == "" {
				continue
			}
			pair := normalizePair(a.ID, b.ID)
			if seen[pair] {
				continue
			}
			seen[pair] = true
			gap := scoreGap(scores, pair[0], pair[1])
			c := datatypes.Conflict{
				GoalA:    pair[0],
				GoalB:    pair[1],
				Kind:     datatypes.ConflictImplicit,
				Severity: SeverityForGap(gap),
				ScoreGap: gap,
				Resource: resource,
			}
			out = append(out, c)
			conflictDetectedTotal.WithLabelValues(c.Kind.String(), c.Severity.String()).Inc()
		}
	}

	span.SetAttributes(attribute.Int("conflicts", len(out)))
	return out
}

// contended reports whether a priority band participates in implicit
// conflict detection.
func contended(cat datatypes.PriorityCategory) bool {
	return cat == datatypes.PriorityHigh || cat == datatypes.PriorityCritical
}

// sharedResource returns the first resource tag (in a's order) present in
// both tag lists, or "".
func sharedResource(a, b []string) string {
	for _, ta := range a {
		for _, tb := range b {
			if ta == tb {
				return ta
			}
		}
	}
	return ""
}

func normalizePair(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func scoreGap(scores map[string]float64, a, b string) float64 {
	gap := scores[a] - scores[b]
	if gap < 0 {
		gap = -gap
	}
	return gap
}

// HighSeverityCount counts high-severity conflicts; feeds the strategy
// selector's provisional probe.
func HighSeverityCount(cs []datatypes.Conflict) int {
	n := 0
	for _, c := range cs {
		if c.Severity == datatypes.SeverityHigh {
			n++
		}
	}
	return n
}

// describeGoal is a short caller-facing label for resolution notes.
func describeGoal(entries []priority.Entry, id string) string {
	for _, e := range entries {
		if e.Goal.ID == id {
			return fmt.Sprintf("%s (score %.1f)", e.Goal.Title, e.Score.Value)
		}
	}
	return id
}
