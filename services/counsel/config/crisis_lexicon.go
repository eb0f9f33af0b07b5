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

//go:embed crisis.yaml
var defaultCrisisLexiconYAML []byte

// CrisisContactEntry is one fixed referral contact. These identifiers are
// configuration, not model output, and are returned verbatim.
type CrisisContactEntry struct {
	Name         string `yaml:"name"`
	Contact      string `yaml:"contact"`
	Availability string `yaml:"availability"`
}

// CrisisCategoryEntry groups the phrases and referral contacts for one
// crisis category. Tiers maps tier name ("critical", "high", "moderate")
// to its phrase list.
type CrisisCategoryEntry struct {
	Category string               `yaml:"category"`
	Contacts []CrisisContactEntry `yaml:"contacts"`
	Tiers    map[string][]string  `yaml:"tiers"`
}

// CrisisLexicon is the full escalation lexicon plus referral directory.
//
// Thread Safety: immutable after loading; safe for concurrent use. Updates
// require a new configuration load, never in-place mutation.
type CrisisLexicon struct {
	ReferralPreamble string                `yaml:"referral_preamble"`
	Categories       []CrisisCategoryEntry `yaml:"categories"`
}

var (
	crisisLexiconMu      sync.RWMutex
	crisisLexiconOnce    sync.Once
	cachedCrisisLexicon  *CrisisLexicon
	crisisLexiconLoadErr error
)

// GetCrisisLexicon returns the cached crisis lexicon, loading the embedded
// default on first call.
//
// Thread Safety: safe for concurrent use via sync.Once.
func GetCrisisLexicon(ctx context.Context) (*CrisisLexicon, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetCrisisLexicon: ctx must not be nil")
	}

	crisisLexiconMu.RLock()
	if cachedCrisisLexicon != nil || crisisLexiconLoadErr != nil {
		lex, err := cachedCrisisLexicon, crisisLexiconLoadErr
		crisisLexiconMu.RUnlock()
		return lex, err
	}
	crisisLexiconMu.RUnlock()

	crisisLexiconMu.Lock()
	defer crisisLexiconMu.Unlock()

	if cachedCrisisLexicon != nil || crisisLexiconLoadErr != nil {
		return cachedCrisisLexicon, crisisLexiconLoadErr
	}

	crisisLexiconOnce.Do(func() {
		cachedCrisisLexicon, crisisLexiconLoadErr = LoadCrisisLexicon(ctx, defaultCrisisLexiconYAML)
	})

	return cachedCrisisLexicon, crisisLexiconLoadErr
}

// ResetCrisisLexicon clears the cached lexicon so tests can reload with
// different data.
func ResetCrisisLexicon() {
	crisisLexiconMu.Lock()
	defer crisisLexiconMu.Unlock()
	cachedCrisisLexicon = nil
	crisisLexiconLoadErr = nil
	crisisLexiconOnce = sync.Once{}
}

// LoadCrisisLexicon parses and validates a crisis lexicon from YAML bytes.
//
// Validation: every category must be a member of the crisis enumeration
// (other than "none"), carry at least one referral contact, and use only
// known tier names with non-empty phrase lists.
func LoadCrisisLexicon(ctx context.Context, data []byte) (*CrisisLexicon, error) {
	_, span := configTracer.Start(ctx, "config.LoadCrisisLexicon")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadCrisisLexicon: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadCrisisLexicon: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var lex CrisisLexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("LoadCrisisLexicon: parsing YAML: %w", err)
	}

	if err := validateCrisisLexicon(&lex); err != nil {
		return nil, fmt.Errorf("LoadCrisisLexicon: validation: %w", err)
	}

	phrases := 0
	for _, cat := range lex.Categories {
		for _, list := range cat.Tiers {
			phrases += len(list)
		}
	}
	span.SetAttributes(
		attribute.Int("categories", len(lex.Categories)),
		attribute.Int("phrases", phrases),
	)
	slog.Info("crisis lexicon loaded",
		slog.Int("categories", len(lex.Categories)),
		slog.Int("phrases", phrases),
	)

	return &lex, nil
}

func validateCrisisLexicon(lex *CrisisLexicon) error {
	if len(lex.Categories) == 0 {
		return fmt.Errorf("lexicon has no categories")
	}
	for i, cat := range lex.Categories {
		parsed, ok := datatypes.ParseCrisisCategory(cat.Category)
		if !ok || parsed == datatypes.CrisisNone {
			return fmt.Errorf("categories[%d]: unknown category %q", i, cat.Category)
		}
		if len(cat.Contacts) == 0 {
			return fmt.Errorf("categories[%d] (%s): needs at least one referral contact", i, cat.Category)
		}
		for j, c := range cat.Contacts {
			if c.Name == "" || c.Contact == "" {
				return fmt.Errorf("categories[%d] (%s) contacts[%d]: name and contact must not be empty", i, cat.Category, j)
			}
		}
		if len(cat.Tiers) == 0 {
			return fmt.Errorf("categories[%d] (%s): needs at least one tier", i, cat.Category)
		}
		for tier, list := range cat.Tiers {
			if _, ok := datatypes.ParseCrisisTier(tier); !ok {
				return fmt.Errorf("categories[%d] (%s): unknown tier %q", i, cat.Category, tier)
			}
			if len(list) == 0 {
				return fmt.Errorf("categories[%d] (%s) tier %s: phrase list must not be empty", i, cat.Category, tier)
			}
		}
	}
	return nil
}
