// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routing implements the deterministic front half of the counsel
// pipeline: the domain classifier, the complexity signal detector, the
// complexity scorer, and the strategy selector. All four are synchronous,
// pure computations over immutable lexicons — no I/O, no suspension points.
package routing

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

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
	classifierMatchedCount = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "counsel",
		Subsystem: "classifier",
		Name:      "matched_domains",
		Help:      "Number of domains matched per request",
		Buckets:   []float64{0, 1, 2, 3, 4},
	})

	classifierDomainTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "counsel",
		Subsystem: "classifier",
		Name:      "domain_match_total",
		Help:      "Domain matches by domain",
	}, []string{"domain"})

	classifierLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "counsel",
		Subsystem: "classifier",
		Name:      "latency_seconds",
		Help:      "Classifier execution latency",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01},
	})
)

var routingTracer = otel.Tracer("waypoint.counsel.routing")

// =============================================================================
// Classifier
// =============================================================================

// compiledPattern holds a pattern string alongside its pre-compiled regex
// (nil for substring-only keywords).
type compiledPattern struct {
	raw   string
	regex *regexp.Regexp
}

// domainMatcher is the compiled pattern set for one domain.
type domainMatcher struct {
	domain   datatypes.Domain
	keywords []string // lowercased substrings
	patterns []compiledPattern
}

// Classifier maps request text to the set of candidate domains.
//
// Description:
//
//	Data-driven: the per-domain keyword and regex sets come from the domain
//	lexicon, so new domains are added without touching control flow. Every
//	domain with at least one match is returned, in enumeration order. Ties
//	are not broken here — multiplicity is intentional input to the
//	complexity scorer.
//
// Thread Safety: safe for concurrent use (all state is read-only after
// construction).
type Classifier struct {
	matchers []domainMatcher
	logger   *slog.Logger
}

// NewClassifier compiles the domain lexicon into a classifier.
//
// Inputs:
//   - lexicon: the loaded domain lexicon. Must not be nil.
//   - logger: logger instance. Nil uses slog.Default().
//
// Outputs:
//   - *Classifier: the compiled classifier.
//   - error: non-nil if a lexicon regex fails to compile.
func NewClassifier(lexicon *config.DomainLexicon, logger *slog.Logger) (*Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	matchers := make([]domainMatcher, 0, len(lexicon.Domains))
	for _, set := range lexicon.Domains {
		domain, _ := datatypes.ParseDomain(set.Domain)
		m := domainMatcher{domain: domain}
		for _, kw := range set.Keywords {
			m.keywords = append(m.keywords, strings.ToLower(kw))
		}
		for _, p := range set.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, &datatypes.ValidationError{
					Field:  "pattern",
					Reason: "domain " + set.Domain + ": invalid regex " + p + ": " + err.Error(),
				}
			}
			m.patterns = append(m.patterns, compiledPattern{raw: p, regex: re})
		}
		matchers = append(matchers, m)
	}

	// Enumeration order fixes classifier output order regardless of lexicon
	// file order.
	ordered := make([]domainMatcher, 0, len(matchers))
	for _, d := range datatypes.AllDomains() {
		for _, m := range matchers {
			if m.domain == d {
				ordered = append(ordered, m)
			}
		}
	}

	return &Classifier{matchers: ordered, logger: logger}, nil
}

// Classify returns every domain with at least one lexicon match, in
// enumeration order. Can be empty, one, or many. Deterministic given the
// same lexicon.
//
// Thread Safety: safe for concurrent use.
func (c *Classifier) Classify(ctx context.Context, text string) []datatypes.Domain {
	_, span := routingTracer.Start(ctx, "routing.Classifier.Classify")
	defer span.End()

	start := time.Now()
	defer func() { classifierLatency.Observe(time.Since(start).Seconds()) }()

	if text == "" {
		classifierMatchedCount.Observe(0)
		return nil
	}

	lowered := strings.ToLower(text)

	var matched []datatypes.Domain
	for _, m := range c.matchers {
		if m.matches(lowered, text) {
			matched = append(matched, m.domain)
			classifierDomainTotal.WithLabelValues(m.domain.String()).Inc()
		}
	}

	classifierMatchedCount.Observe(float64(len(matched)))
	span.SetAttributes(attribute.Int("matched", len(matched)))

	if len(matched) > 0 {
		names := make([]string, len(matched))
		for i, d := range matched {
			names[i] = d.String()
		}
		c.logger.Debug("request classified",
			slog.String("domains", strings.Join(names, ",")),
		)
	}

	return matched
}

// matches reports whether any keyword or pattern of this domain fires.
// lowered is the pre-lowercased text for keyword checks; raw is the original
// text for the case-insensitive regexes.
func (m *domainMatcher) matches(lowered, raw string) bool {
	for _, kw := range m.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	for _, p := range m.patterns {
		if p.regex.MatchString(raw) {
			return true
		}
	}
	return false
}
