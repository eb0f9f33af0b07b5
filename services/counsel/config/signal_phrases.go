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
)

//go:embed signals.yaml
var defaultSignalPhrasesYAML []byte

// SignalPhrases holds the phrase tables behind the four complexity signals.
//
// Thread Safety: immutable after loading; safe for concurrent use.
type SignalPhrases struct {
	// DeepAnalysis phrases set deep_analysis_requested.
	DeepAnalysis []string `yaml:"deep_analysis"`

	// CrossDomainLinks phrases set cross_domain_dependency, but only when at
	// least two domains matched the request.
	CrossDomainLinks []string `yaml:"cross_domain_links"`

	// ConflictMarkers phrases set conflict_possible.
	ConflictMarkers []string `yaml:"conflict_markers"`

	// UncertaintyMarkers phrases set user_uncertain.
	UncertaintyMarkers []string `yaml:"uncertainty_markers"`
}

var (
	signalPhrasesMu      sync.RWMutex
	signalPhrasesOnce    sync.Once
	cachedSignalPhrases  *SignalPhrases
	signalPhrasesLoadErr error
)

// GetSignalPhrases returns the cached signal phrase tables, loading the
// embedded default on first call.
//
// Thread Safety: safe for concurrent use via sync.Once.
func GetSignalPhrases(ctx context.Context) (*SignalPhrases, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetSignalPhrases: ctx must not be nil")
	}

	signalPhrasesMu.RLock()
	if cachedSignalPhrases != nil || signalPhrasesLoadErr != nil {
		p, err := cachedSignalPhrases, signalPhrasesLoadErr
		signalPhrasesMu.RUnlock()
		return p, err
	}
	signalPhrasesMu.RUnlock()

	signalPhrasesMu.Lock()
	defer signalPhrasesMu.Unlock()

	if cachedSignalPhrases != nil || signalPhrasesLoadErr != nil {
		return cachedSignalPhrases, signalPhrasesLoadErr
	}

	signalPhrasesOnce.Do(func() {
		cachedSignalPhrases, signalPhrasesLoadErr = LoadSignalPhrases(ctx, defaultSignalPhrasesYAML)
	})

	return cachedSignalPhrases, signalPhrasesLoadErr
}

// ResetSignalPhrases clears the cached tables so tests can reload with
// different data.
func ResetSignalPhrases() {
	signalPhrasesMu.Lock()
	defer signalPhrasesMu.Unlock()
	cachedSignalPhrases = nil
	signalPhrasesLoadErr = nil
	signalPhrasesOnce = sync.Once{}
}

// LoadSignalPhrases parses and validates signal phrase tables from YAML bytes.
func LoadSignalPhrases(ctx context.Context, data []byte) (*SignalPhrases, error) {
	_, span := configTracer.Start(ctx, "config.LoadSignalPhrases")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadSignalPhrases: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadSignalPhrases: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var p SignalPhrases
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("LoadSignalPhrases: parsing YAML: %w", err)
	}

	if len(p.DeepAnalysis) == 0 || len(p.CrossDomainLinks) == 0 ||
		len(p.ConflictMarkers) == 0 || len(p.UncertaintyMarkers) == 0 {
		return nil, fmt.Errorf("LoadSignalPhrases: every phrase table must be non-empty")
	}

	span.SetAttributes(
		attribute.Int("deep_analysis", len(p.DeepAnalysis)),
		attribute.Int("cross_domain_links", len(p.CrossDomainLinks)),
		attribute.Int("conflict_markers", len(p.ConflictMarkers)),
		attribute.Int("uncertainty_markers", len(p.UncertaintyMarkers)),
	)
	slog.Info("signal phrase tables loaded",
		slog.Int("deep_analysis", len(p.DeepAnalysis)),
		slog.Int("conflict_markers", len(p.ConflictMarkers)),
	)

	return &p, nil
}
