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
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/config"
	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
)

// SignalDetector derives the four boolean complexity signals from request
// text. Like the classifier it is data-driven: the phrase tables live in
// signals.yaml, and detection is case-insensitive substring matching.
//
// The scorer itself stays a pure function of (domains, signals) — this
// detector only exists so the engine has a deterministic way to produce
// the signals from raw text.
//
// Thread Safety: safe for concurrent use (read-only after construction).
type SignalDetector struct {
	deepAnalysis []string
	crossLinks   []string
	conflict     []string
	uncertainty  []string
}

// NewSignalDetector lowercases the phrase tables once at construction.
func NewSignalDetector(phrases *config.SignalPhrases) *SignalDetector {
	lower := func(in []string) []string {
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = strings.ToLower(s)
		}
		return out
	}
	return &SignalDetector{
		deepAnalysis: lower(phrases.DeepAnalysis),
		crossLinks:   lower(phrases.CrossDomainLinks),
		conflict:     lower(phrases.ConflictMarkers),
		uncertainty:  lower(phrases.UncertaintyMarkers),
	}
}

// Detect derives the complexity signals for a request.
//
// Description:
//
//	cross_domain_dependency requires both a linking phrase AND at least two
//	matched domains — a linking phrase inside a single-domain request does
//	not indicate a cross-domain dependency.
//
// Thread Safety: safe for concurrent use.
func (d *SignalDetector) Detect(ctx context.Context, text string, domains []datatypes.Domain) datatypes.Signals {
	_, span := routingTracer.Start(ctx, "routing.SignalDetector.Detect")
	defer span.End()

	lowered := strings.ToLower(text)
	sig := datatypes.Signals{
		DeepAnalysisRequested: containsAny(lowered, d.deepAnalysis),
		CrossDomainDependency: len(domains) >= 2 && containsAny(lowered, d.crossLinks),
		ConflictPossible:      containsAny(lowered, d.conflict),
		UserUncertain:         containsAny(lowered, d.uncertainty),
	}

	span.SetAttributes(
		attribute.Bool("deep_analysis", sig.DeepAnalysisRequested),
		attribute.Bool("cross_domain", sig.CrossDomainDependency),
		attribute.Bool("conflict_possible", sig.ConflictPossible),
		attribute.Bool("user_uncertain", sig.UserUncertain),
	)

	return sig
}

func containsAny(lowered string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}
