// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package goalgraph builds and validates the directed multigraph of
// extracted goals. Edges are typed (enables, requires, conflicts, supports);
// a requires cycle makes the plan unexecutable, so Build reports it as a
// CycleError listing the cycle members instead of guessing which edge to
// drop.
//
// The graph is an explicit adjacency structure with hand-rolled three-color
// DFS rather than a graph library: the cycle-reporting contract (every
// member, deterministic order, never auto-resolve) is the whole point of
// this package, and no library exposes it directly.
package goalgraph

import (
	"sort"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
)

// Graph is a validated, immutable goal multigraph.
//
// Thread Safety: read-only after Build; safe for concurrent use.
type Graph struct {
	// order preserves goal insertion order for deterministic iteration.
	order []string
	goals map[string]datatypes.Goal

	// adjacency per edge type: from id -> to ids, in edge insertion order.
	out map[datatypes.EdgeType]map[string][]string
	in  map[datatypes.EdgeType]map[string][]string

	edges []datatypes.Edge
}

// dfs colors for requires-cycle detection.
type color int

const (
	white color = iota // unvisited
	gray               // on the current DFS stack
	black              // fully explored
)

// Build validates goals and edges and assembles the graph.
//
// Description:
//
//	Validation order: every goal must pass the structural contract; every
//	edge must reference existing goal ids; the requires sub-graph must be
//	acyclic. On a requires cycle Build returns *datatypes.CycleError with
//	every goal id on the cycle — never a partial graph.
//
// Inputs:
//   - goals: the extracted goals. Duplicate ids are a ValidationError.
//   - edges: typed relations between goal ids.
//
// Outputs:
//   - *Graph: the validated graph. Nil on any error.
//   - error: *ValidationError or *CycleError.
func Build(goals []datatypes.Goal, edges []datatypes.Edge) (*Graph, error) {
	g := &Graph{
		goals: make(map[string]datatypes.Goal, len(goals)),
		out:   make(map[datatypes.EdgeType]map[string][]string),
		in:    make(map[datatypes.EdgeType]map[string][]string),
	}

	known := make(map[string]bool, len(goals))
	for _, goal := range goals {
		if err := datatypes.ValidateGoal(goal); err != nil {
			return nil, err
		}
		if known[goal.ID] {
			return nil, &datatypes.ValidationError{
				GoalID: goal.ID, Field: "ID", Reason: "duplicate goal id",
			}
		}
		known[goal.ID] = true
		g.order = append(g.order, goal.ID)
		g.goals[goal.ID] = goal
	}

	for _, e := range edges {
		if err := datatypes.ValidateEdge(e, known); err != nil {
			return nil, err
		}
		if g.out[e.Type] == nil {
			g.out[e.Type] = make(map[string][]string)
			g.in[e.Type] = make(map[string][]string)
		}
		g.out[e.Type][e.From] = append(g.out[e.Type][e.From], e.To)
		g.in[e.Type][e.To] = append(g.in[e.Type][e.To], e.From)
		g.edges = append(g.edges, e)
	}

	if cycle := g.findRequiresCycle(); len(cycle) > 0 {
		return nil, &datatypes.CycleError{Members: cycle}
	}

	return g, nil
}

// findRequiresCycle runs three-color DFS over the requires sub-graph and
// returns the members of the first cycle found, in walk order. Roots are
// visited in insertion order so the result is deterministic.
func (g *Graph) findRequiresCycle() []string {
	adj := g.out[datatypes.EdgeRequires]
	if len(adj) == 0 {
		return nil
	}

	colors := make(map[string]color, len(g.order))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		colors[id] = gray
		stack = append(stack, id)

		for _, next := range adj[id] {
			switch colors[next] {
			case gray:
				// Back edge: the cycle is the stack suffix from next onward.
				for i, member := range stack {
					if member == next {
						cycle := make([]string, len(stack)-i)
						copy(cycle, stack[i:])
						return cycle
					}
				}
			case white:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = black
		return nil
	}

	for _, id := range g.order {
		if colors[id] == white {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// Goals returns the goals in insertion order.
func (g *Graph) Goals() []datatypes.Goal {
	out := make([]datatypes.Goal, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.goals[id])
	}
	return out
}

// Goal looks up a goal by id.
func (g *Graph) Goal(id string) (datatypes.Goal, bool) {
	goal, ok := g.goals[id]
	return goal, ok
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []datatypes.Edge {
	out := make([]datatypes.Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// EdgesOfType returns the edges of one type, in insertion order.
func (g *Graph) EdgesOfType(t datatypes.EdgeType) []datatypes.Edge {
	var out []datatypes.Edge
	for _, e := range g.edges {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// EnablesInDegree counts incoming enables edges for a goal: how many other
// pending goals this one unblocks. Input to the dependency-boost policy hook.
func (g *Graph) EnablesInDegree(id string) int {
	return len(g.in[datatypes.EdgeEnables][id])
}

// ConflictPairs returns each conflicts edge as an unordered pair, with the
// pair normalized (lexicographically smaller id first) and de-duplicated —
// conflicts edges are symmetric in effect even though stored directed.
func (g *Graph) ConflictPairs() [][2]string {
	seen := make(map[[2]string]bool)
	var out [][2]string
	for _, e := range g.EdgesOfType(datatypes.EdgeConflicts) {
		pair := [2]string{e.From, e.To}
		if pair[0] > pair[1] {
			pair[0], pair[1] = pair[1], pair[0]
		}
		if !seen[pair] {
			seen[pair] = true
			out = append(out, pair)
		}
	}
	return out
}

// RequiresLinkedDomains counts the distinct domains connected by at least
// one requires edge. Feeds the strategy selector's conflict probe.
func (g *Graph) RequiresLinkedDomains() int {
	domains := make(map[datatypes.Domain]bool)
	for _, e := range g.EdgesOfType(datatypes.EdgeRequires) {
		if from, ok := g.goals[e.From]; ok {
			domains[from.Domain] = true
		}
		if to, ok := g.goals[e.To]; ok {
			domains[to.Domain] = true
		}
	}
	return len(domains)
}

// TopologicalRequires returns goal ids in an order that satisfies every
// requires edge (prerequisites first). Within the same depth, insertion
// order is preserved for determinism. Build has already rejected cycles, so
// this cannot fail.
func (g *Graph) TopologicalRequires() []string {
	// Kahn's algorithm over the requires sub-graph; prerequisite = target of
	// a requires edge, so we walk edges reversed.
	indeg := make(map[string]int, len(g.order))
	for _, id := range g.order {
		indeg[id] = 0
	}
	for _, e := range g.EdgesOfType(datatypes.EdgeRequires) {
		// e.From requires e.To: e.To must come first.
		indeg[e.From]++
	}

	ready := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}

	var out []string
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		out = append(out, id)
		for _, dependent := range g.in[datatypes.EdgeRequires][id] {
			indeg[dependent]--
			if indeg[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.SliceStable(ready, func(i, j int) bool {
			return indexOf(g.order, ready[i]) < indexOf(g.order, ready[j])
		})
	}
	return out
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}
