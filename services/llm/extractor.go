// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
)

var extractorTracer = otel.Tracer("waypoint.counsel.extractor")

// extractionSystemPrompt instructs the model to emit strict JSON. Model
// output is treated as untrusted input: every goal is re-validated before it
// enters the graph, so a malformed or hallucinated record is dropped, not
// trusted.
const extractionSystemPrompt = `You are a goal-extraction component. From the user's message, extract their concrete goals and the relationships between them.

Respond with ONLY a JSON object, no prose, matching:
{
  "goals": [
    {
      "id": "short-kebab-case-slug",
      "title": "one-line goal statement",
      "domain": "career|relationship|finance|wellness",
      "urgency": 1-10,
      "impact": 1-10,
      "preference": 1-10,
      "dependency_weight": 1-10,
      "resource_availability": 1-10,
      "resource_tags": ["evenings", "savings", ...]
    }
  ],
  "edges": [
    {"from": "goal-id", "to": "goal-id", "type": "enables|requires|conflicts|supports"}
  ]
}

Rules:
- Every factor is an integer from 1 to 10.
- "from requires to" means the "to" goal must be achieved first.
- resource_tags name limited resources the goal consumes (time blocks, money pools). Omit when none apply.
- Emit an empty goals array if the message contains no actionable goal.`

// goalWire is the JSON shape the model emits for one goal.
type goalWire struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	Domain               string   `json:"domain"`
	Urgency              int      `json:"urgency"`
	Impact               int      `json:"impact"`
	Preference           int      `json:"preference"`
	DependencyWeight     int      `json:"dependency_weight"`
	ResourceAvailability int      `json:"resource_availability"`
	ResourceTags         []string `json:"resource_tags"`
}

type edgeWire struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

type extractionWire struct {
	Goals []goalWire `json:"goals"`
	Edges []edgeWire `json:"edges"`
}

// ExtractionResult is the validated output of one extraction call. Dropped
// records what the model emitted but validation rejected.
type ExtractionResult struct {
	Goals   []datatypes.Goal
	Edges   []datatypes.Edge
	Dropped []datatypes.DroppedGoal
}

// GoalExtractor turns free-form request text into validated goals and edges
// via a model call.
//
// Thread Safety: safe for concurrent use.
type GoalExtractor struct {
	client Client
	logger *slog.Logger
}

// NewGoalExtractor constructs an extractor over the given client. A nil
// logger falls back to the default.
func NewGoalExtractor(client Client, logger *slog.Logger) *GoalExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoalExtractor{client: client, logger: logger}
}

// Extract runs one extraction call and validates everything the model
// returned.
//
// Description:
//
//	Invalid goals (out-of-range factor, unknown domain, missing title) are
//	dropped with a logged reason and recorded in Dropped, never silently
//	discarded and never passed through. Edges referencing a dropped or
//	unknown goal id are dropped the same way. A goal with no id gets a
//	generated one.
//
// Inputs:
//   - ctx: context for the model call.
//   - req: the originating request; req.Text is sent to the model.
//
// Outputs:
//   - ExtractionResult: validated goals and edges plus the drop log.
//   - error: model failure or unparseable output. Validation failures are
//     data, not errors.
func (e *GoalExtractor) Extract(ctx context.Context, req datatypes.Request) (ExtractionResult, error) {
	ctx, span := extractorTracer.Start(ctx, "extractor.Extract")
	defer span.End()

	raw, err := e.client.Chat(ctx, []Message{
		{Role: "system", Content: extractionSystemPrompt},
		{Role: "user", Content: RedactIdentifiers(req.Text)},
	}, GenerationParams{})
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("goal extraction: %w", err)
	}

	var wire extractionWire
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &wire); err != nil {
		return ExtractionResult{}, fmt.Errorf("goal extraction: parsing model output: %w", err)
	}

	var out ExtractionResult
	known := make(map[string]bool, len(wire.Goals))

	for _, gw := range wire.Goals {
		if gw.ID == "" {
			gw.ID = uuid.NewString()
		}
		if known[gw.ID] {
			out.Dropped = append(out.Dropped, datatypes.DroppedGoal{
				GoalID: gw.ID, Reason: "duplicate goal id",
			})
			continue
		}

		domain, ok := datatypes.ParseDomain(gw.Domain)
		if !ok {
			out.Dropped = append(out.Dropped, datatypes.DroppedGoal{
				GoalID: gw.ID, Reason: fmt.Sprintf("unknown domain %q", gw.Domain),
			})
			e.logger.WarnContext(ctx, "dropped extracted goal",
				"goal_id", gw.ID, "reason", "unknown domain", "domain", gw.Domain)
			continue
		}

		goal := datatypes.Goal{
			ID:                   gw.ID,
			Title:                gw.Title,
			Domain:               domain,
			Urgency:              gw.Urgency,
			Impact:               gw.Impact,
			Preference:           gw.Preference,
			DependencyWeight:     gw.DependencyWeight,
			ResourceAvailability: gw.ResourceAvailability,
			ResourceTags:         gw.ResourceTags,
		}
		if err := datatypes.ValidateGoal(goal); err != nil {
			out.Dropped = append(out.Dropped, datatypes.DroppedGoal{
				GoalID: gw.ID, Reason: err.Error(),
			})
			e.logger.WarnContext(ctx, "dropped extracted goal",
				"goal_id", gw.ID, "reason", err.Error())
			continue
		}

		known[gw.ID] = true
		out.Goals = append(out.Goals, goal)
	}

	for _, ew := range wire.Edges {
		edgeType, ok := datatypes.ParseEdgeType(ew.Type)
		if !ok {
			e.logger.WarnContext(ctx, "dropped extracted edge",
				"from", ew.From, "to", ew.To, "reason", "unknown edge type", "type", ew.Type)
			continue
		}
		if !known[ew.From] || !known[ew.To] || ew.From == ew.To {
			e.logger.WarnContext(ctx, "dropped extracted edge",
				"from", ew.From, "to", ew.To, "reason", "endpoint not a valid goal")
			continue
		}
		out.Edges = append(out.Edges, datatypes.Edge{From: ew.From, To: ew.To, Type: edgeType})
	}

	span.SetAttributes(
		attribute.Int("goals", len(out.Goals)),
		attribute.Int("edges", len(out.Edges)),
		attribute.Int("dropped", len(out.Dropped)),
	)
	e.logger.InfoContext(ctx, "goal extraction complete",
		"request_id", req.ID,
		"goals", len(out.Goals), "edges", len(out.Edges), "dropped", len(out.Dropped))
	return out, nil
}

// stripCodeFence tolerates models that wrap JSON in a markdown fence despite
// the prompt.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
