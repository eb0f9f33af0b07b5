// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package safety implements the escalation guard: a fixed-priority override
// that scans raw request text for crisis signals before any other component
// runs. A match short-circuits the whole pipeline and forces a fixed
// referral response built from the static resource directory.
//
// The guard is deliberately biased: false positives (an unnecessary
// referral) are strongly preferred over false negatives (a missed crisis).
package safety

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/config"
	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	guardMatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "counsel",
		Subsystem: "safety",
		Name:      "crisis_match_total",
		Help:      "Crisis lexicon matches by category and tier",
	}, []string{"category", "tier"})

	guardScanTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "counsel",
		Subsystem: "safety",
		Name:      "scan_total",
		Help:      "Total escalation guard scans",
	})
)

var guardTracer = otel.Tracer("waypoint.counsel.safety")

// =============================================================================
// Guard
// =============================================================================

// crisisEntry is one compiled lexicon phrase with its classification.
type crisisEntry struct {
	category datatypes.CrisisCategory
	tier     datatypes.CrisisTier
	phrase   string // lowercased
}

// Guard scans request text against the crisis lexicon.
//
// Description:
//
//	Phrases are compiled once at construction into a single list sorted by
//	tier (critical first) and then by lexicon file order, so the first match
//	found is always the highest-severity one. Evaluate is a pure function
//	over that immutable list: it never errors, never blocks, and yields
//	CrisisNone for empty or unmatched input.
//
// Thread Safety: safe for concurrent use (all state is read-only after
// construction).
type Guard struct {
	entries []crisisEntry
	lexicon *config.CrisisLexicon
	logger  *slog.Logger
}

// NewGuard compiles the crisis lexicon into a guard.
//
// Inputs:
//   - lexicon: the loaded crisis lexicon. Must not be nil.
//   - logger: logger instance. Nil uses slog.Default().
func NewGuard(lexicon *config.CrisisLexicon, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}

	var entries []crisisEntry
	for _, cat := range lexicon.Categories {
		parsed, _ := datatypes.ParseCrisisCategory(cat.Category)
		for tierName, phrases := range cat.Tiers {
			tier, _ := datatypes.ParseCrisisTier(tierName)
			for _, p := range phrases {
				entries = append(entries, crisisEntry{
					category: parsed,
					tier:     tier,
					phrase:   strings.ToLower(p),
				})
			}
		}
	}

	// Highest tier first; ties keep lexicon category order via stable sort.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].tier > entries[j].tier
	})

	return &Guard{entries: entries, lexicon: lexicon, logger: logger}
}

// Evaluate scans text for crisis signals and returns the highest-severity
// match, or a flag with CrisisNone when nothing matches.
//
// Description:
//
//	Pure substring scan over the compiled lexicon. Monotonic in severity:
//	if the text matches both a moderate and a critical phrase, the result
//	is the critical one. Malformed or empty input yields CrisisNone rather
//	than an error — the guard must never throw.
//
// Thread Safety: safe for concurrent use.
func (g *Guard) Evaluate(ctx context.Context, text string) datatypes.CrisisFlag {
	_, span := guardTracer.Start(ctx, "safety.Guard.Evaluate")
	defer span.End()

	guardScanTotal.Inc()

	if text == "" {
		span.SetAttributes(attribute.Bool("triggered", false))
		return datatypes.CrisisFlag{Category: datatypes.CrisisNone}
	}

	lowered := strings.ToLower(text)
	for _, e := range g.entries {
		if strings.Contains(lowered, e.phrase) {
			guardMatchTotal.WithLabelValues(e.category.String(), e.tier.String()).Inc()
			span.SetAttributes(
				attribute.Bool("triggered", true),
				attribute.String("category", e.category.String()),
				attribute.String("tier", e.tier.String()),
			)
			// The matched phrase is logged for audit, never echoed to users.
			g.logger.Warn("crisis lexicon match",
				slog.String("category", e.category.String()),
				slog.String("tier", e.tier.String()),
			)
			return datatypes.CrisisFlag{
				Category:      e.category,
				Tier:          e.tier,
				MatchedPhrase: e.phrase,
			}
		}
	}

	span.SetAttributes(attribute.Bool("triggered", false))
	return datatypes.CrisisFlag{Category: datatypes.CrisisNone}
}

// Referral builds the fixed referral response for a triggered flag.
//
// Description:
//
//	Looks up the flag's category in the static resource directory and
//	returns the preamble plus the category's contacts. Contact identifiers
//	are hard configuration — the engine returns them verbatim and no model
//	output is involved. Returns nil for an untriggered flag.
func (g *Guard) Referral(flag datatypes.CrisisFlag) *datatypes.Referral {
	if !flag.Triggered() {
		return nil
	}

	for _, cat := range g.lexicon.Categories {
		parsed, _ := datatypes.ParseCrisisCategory(cat.Category)
		if parsed != flag.Category {
			continue
		}
		contacts := make([]datatypes.CrisisContact, 0, len(cat.Contacts))
		for _, c := range cat.Contacts {
			contacts = append(contacts, datatypes.CrisisContact{
				Name:         c.Name,
				Contact:      c.Contact,
				Availability: c.Availability,
			})
		}
		return &datatypes.Referral{
			Category: flag.Category,
			Message:  g.lexicon.ReferralPreamble,
			Contacts: contacts,
		}
	}

	// Category missing from the directory: still escalate with the preamble
	// alone rather than dropping the referral.
	return &datatypes.Referral{
		Category: flag.Category,
		Message:  g.lexicon.ReferralPreamble,
	}
}
