// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
)

//go:embed domains.yaml
var defaultDomainLexiconYAML []byte

// DomainPatternSet is the classification lexicon for one domain.
type DomainPatternSet struct {
	// Domain is the canonical domain name; must parse via datatypes.ParseDomain.
	Domain string `yaml:"domain"`

	// Keywords are matched case-insensitively as substrings.
	Keywords []string `yaml:"keywords"`

	// Patterns are compiled as case-insensitive regular expressions.
	Patterns []string `yaml:"patterns"`
}

// DomainLexicon is the full domain classification table.
//
// Thread Safety: immutable after loading; safe for concurrent use.
type DomainLexicon struct {
	Domains []DomainPatternSet `yaml:"domains"`
}

var (
	domainLexiconMu      sync.RWMutex
	domainLexiconOnce    sync.Once
	cachedDomainLexicon  *DomainLexicon
	domainLexiconLoadErr error
)

// GetDomainLexicon returns the cached domain lexicon, loading the embedded
// default on first call.
//
// Thread Safety: safe for concurrent use via sync.Once.
func GetDomainLexicon(ctx context.Context) (*DomainLexicon, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetDomainLexicon: ctx must not be nil")
	}

	domainLexiconMu.RLock()
	if cachedDomainLexicon != nil || domainLexiconLoadErr != nil {
		lex, err := cachedDomainLexicon, domainLexiconLoadErr
		domainLexiconMu.RUnlock()
		return lex, err
	}
	domainLexiconMu.RUnlock()

	domainLexiconMu.Lock()
	defer domainLexiconMu.Unlock()

	if cachedDomainLexicon != nil || domainLexiconLoadErr != nil {
		return cachedDomainLexicon, domainLexiconLoadErr
	}

	domainLexiconOnce.Do(func() {
		cachedDomainLexicon, domainLexiconLoadErr = LoadDomainLexicon(ctx, defaultDomainLexiconYAML)
	})

	return cachedDomainLexicon, domainLexiconLoadErr
}

// ResetDomainLexicon clears the cached lexicon so tests can reload with
// different data.
func ResetDomainLexicon() {
	domainLexiconMu.Lock()
	defer domainLexiconMu.Unlock()
	cachedDomainLexicon = nil
	domainLexiconLoadErr = nil
	domainLexiconOnce = sync.Once{}
}

// LoadDomainLexicon parses and validates a domain lexicon from YAML bytes.
//
// Validation: every entry must name a domain in the closed enumeration, have
// at least one keyword or pattern, and no domain may appear twice.
//
// Outputs:
//   - *DomainLexicon: the validated lexicon. Never nil on success.
//   - error: non-nil if parsing or validation fails.
func LoadDomainLexicon(ctx context.Context, data []byte) (*DomainLexicon, error) {
	_, span := configTracer.Start(ctx, "config.LoadDomainLexicon")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadDomainLexicon: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadDomainLexicon: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var lex DomainLexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("LoadDomainLexicon: parsing YAML: %w", err)
	}

	if err := validateDomainLexicon(&lex); err != nil {
		return nil, fmt.Errorf("LoadDomainLexicon: validation: %w", err)
	}

	span.SetAttributes(attribute.Int("domains", len(lex.Domains)))
	slog.Info("domain lexicon loaded", slog.Int("domains", len(lex.Domains)))

	return &lex, nil
}

func validateDomainLexicon(lex *DomainLexicon) error {
	if len(lex.Domains) == 0 {
		return fmt.Errorf("lexicon has no domain entries")
	}
	seen := make(map[string]bool, len(lex.Domains))
	for i, set := range lex.Domains {
		if _, ok := datatypes.ParseDomain(set.Domain); !ok {
			return fmt.Errorf("domains[%d]: unknown domain %q", i, set.Domain)
		}
		if seen[set.Domain] {
			return fmt.Errorf("domains[%d]: duplicate domain %q", i, set.Domain)
		}
		seen[set.Domain] = true
		if len(set.Keywords) == 0 && len(set.Patterns) == 0 {
			return fmt.Errorf("domains[%d] (%s): needs at least one keyword or pattern", i, set.Domain)
		}
	}
	return nil
}
