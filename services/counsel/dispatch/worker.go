// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch executes a strategy decision against registered domain
// workers: one worker, several in parallel, a dependency-ordered sequence,
// or a phased plan. Failed workers are isolated and reported, never papered
// over with fabricated output.
package dispatch

import (
	"context"
	"fmt"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
)

// WorkContext carries everything a worker may consult beyond the raw
// request: the goals assigned to its domain and, in sequential and phased
// modes, the results of workers that already completed.
type WorkContext struct {
	Goals []datatypes.Goal
	Prior []datatypes.WorkerResult
}

// Worker handles one advice domain. Implementations must honor ctx
// cancellation and return either a result or an error, never both.
type Worker interface {
	Domain() datatypes.Domain
	Invoke(ctx context.Context, req datatypes.Request, wc WorkContext) (*datatypes.WorkerResult, error)
}

// Registry maps domains to their workers. Populated once at startup,
// read-only afterward.
type Registry struct {
	workers map[datatypes.Domain]Worker
}

// NewRegistry builds a registry from the given workers.
//
// Outputs:
//   - *Registry: the populated registry.
//   - error: a duplicate or invalid domain registration.
func NewRegistry(workers ...Worker) (*Registry, error) {
	r := &Registry{workers: make(map[datatypes.Domain]Worker, len(workers))}
	for _, w := range workers {
		d := w.Domain()
		if !d.Valid() {
			return nil, fmt.Errorf("worker registry: invalid domain %d", int(d))
		}
		if _, dup := r.workers[d]; dup {
			return nil, fmt.Errorf("worker registry: duplicate worker for domain %s", d)
		}
		r.workers[d] = w
	}
	return r, nil
}

// Lookup returns the worker for a domain, or false when none is registered.
func (r *Registry) Lookup(d datatypes.Domain) (Worker, bool) {
	w, ok := r.workers[d]
	return w, ok
}

// Domains returns the registered domains in enumeration order.
func (r *Registry) Domains() []datatypes.Domain {
	var out []datatypes.Domain
	for _, d := range datatypes.AllDomains() {
		if _, ok := r.workers[d]; ok {
			out = append(out, d)
		}
	}
	return out
}
