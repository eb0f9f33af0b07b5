// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workers provides the model-backed domain workers the dispatcher
// invokes. One AdvisorWorker per domain, all sharing a Client but each with
// a domain-specific system prompt.
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
	"github.com/WaypointAI/WaypointFOSS/services/counsel/dispatch"
	"github.com/WaypointAI/WaypointFOSS/services/llm"
)

// domainCharters describe each worker's remit inside its system prompt.
var domainCharters = map[datatypes.Domain]string{
	datatypes.DomainCareer:       "career strategy: work, promotions, job changes, professional growth",
	datatypes.DomainRelationship: "relationships: partners, family, friendships, community",
	datatypes.DomainFinance:      "personal finance: budgeting, savings, debt, major purchases",
	datatypes.DomainWellness:     "wellbeing: physical health, exercise, sleep, stress, habits",
}

// advisorResultWire is the JSON shape the model is asked to emit.
type advisorResultWire struct {
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
	References      []string `json:"references"`
}

// AdvisorWorker is a dispatch.Worker backed by a chat model.
//
// Thread Safety: safe for concurrent use.
type AdvisorWorker struct {
	domain datatypes.Domain
	client llm.Client
	logger *slog.Logger
}

// NewAdvisorWorker builds a worker for one domain.
func NewAdvisorWorker(domain datatypes.Domain, client llm.Client, logger *slog.Logger) (*AdvisorWorker, error) {
	if !domain.Valid() {
		return nil, fmt.Errorf("advisor worker: invalid domain %d", int(domain))
	}
	if client == nil {
		return nil, fmt.Errorf("advisor worker: nil client")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdvisorWorker{domain: domain, client: client, logger: logger}, nil
}

// NewAdvisorRegistry builds one AdvisorWorker per domain over a shared
// client and registers them.
func NewAdvisorRegistry(client llm.Client, logger *slog.Logger) (*dispatch.Registry, error) {
	workers := make([]dispatch.Worker, 0, len(datatypes.AllDomains()))
	for _, d := range datatypes.AllDomains() {
		w, err := NewAdvisorWorker(d, client, logger)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return dispatch.NewRegistry(workers...)
}

// Domain implements dispatch.Worker.
func (w *AdvisorWorker) Domain() datatypes.Domain { return w.domain }

// Invoke implements dispatch.Worker.
//
// Description:
//
//	Sends the request text, the goals assigned to this domain, and any
//	prior worker results to the model, asking for JSON. A model that
//	answers in prose anyway still yields a usable result: the whole reply
//	becomes the summary.
func (w *AdvisorWorker) Invoke(ctx context.Context, req datatypes.Request, wc dispatch.WorkContext) (*datatypes.WorkerResult, error) {
	reply, err := w.client.Chat(ctx, []llm.Message{
		{Role: "system", Content: w.systemPrompt()},
		{Role: "user", Content: w.userPrompt(req, wc)},
	}, llm.GenerationParams{})
	if err != nil {
		return nil, fmt.Errorf("%s advisor: %w", w.domain, err)
	}

	result := &datatypes.WorkerResult{Domain: w.domain}
	var wire advisorResultWire
	if jsonErr := json.Unmarshal([]byte(strings.TrimSpace(reply)), &wire); jsonErr == nil && wire.Summary != "" {
		result.Summary = wire.Summary
		result.Recommendations = wire.Recommendations
		result.SavedReferences = wire.References
	} else {
		result.Summary = strings.TrimSpace(reply)
	}

	if result.Summary == "" {
		return nil, fmt.Errorf("%s advisor: empty reply", w.domain)
	}
	w.logger.DebugContext(ctx, "advisor reply",
		"domain", w.domain.String(), "recommendations", len(result.Recommendations))
	return result, nil
}

func (w *AdvisorWorker) systemPrompt() string {
	return fmt.Sprintf(`You are a specialist advisor for %s.

Respond with ONLY a JSON object:
{"summary": "2-3 sentence assessment", "recommendations": ["concrete next step", ...], "references": ["named resource or tool worth saving", ...]}

Omit references when nothing is worth saving. Ground every recommendation in the user's stated goals. Stay inside your domain; if another domain's results are provided, build on them rather than repeating them.`,
		domainCharters[w.domain])
}

func (w *AdvisorWorker) userPrompt(req datatypes.Request, wc dispatch.WorkContext) string {
	var b strings.Builder
	b.WriteString("User message:\n")
	b.WriteString(llm.RedactIdentifiers(req.Text))

	if len(wc.Goals) > 0 {
		b.WriteString("\n\nGoals assigned to you:\n")
		for _, g := range wc.Goals {
			fmt.Fprintf(&b, "- %s (urgency %d, impact %d)\n", g.Title, g.Urgency, g.Impact)
		}
	}
	if len(wc.Prior) > 0 {
		b.WriteString("\nResults from earlier advisors:\n")
		for _, r := range wc.Prior {
			fmt.Fprintf(&b, "- [%s] %s\n", r.Domain, r.Summary)
		}
	}
	return b.String()
}
