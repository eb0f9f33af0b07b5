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
	"errors"
	"strings"
	"testing"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
)

// stubClient returns a canned reply without touching the network.
type stubClient struct {
	reply    string
	err      error
	lastUser string
}

func (s *stubClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	for _, m := range messages {
		if m.Role == "user" {
			s.lastUser = m.Content
		}
	}
	return s.reply, s.err
}

const validExtraction = `{
  "goals": [
    {"id": "promotion", "title": "ask for a promotion", "domain": "career",
     "urgency": 7, "impact": 9, "preference": 8, "dependency_weight": 6, "resource_availability": 8,
     "resource_tags": ["evenings"]},
    {"id": "exercise", "title": "exercise regularly", "domain": "wellness",
     "urgency": 4, "impact": 6, "preference": 7, "dependency_weight": 2, "resource_availability": 9}
  ],
  "edges": [
    {"from": "promotion", "to": "exercise", "type": "conflicts"}
  ]
}`

func TestExtract_Valid(t *testing.T) {
	e := NewGoalExtractor(&stubClient{reply: validExtraction}, nil)
	res, err := e.Extract(context.Background(), datatypes.Request{ID: "r1", Text: "help me"})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(res.Goals) != 2 {
		t.Fatalf("expected 2 goals, got %d", len(res.Goals))
	}
	if res.Goals[0].Domain != datatypes.DomainCareer || res.Goals[1].Domain != datatypes.DomainWellness {
		t.Errorf("domains not parsed: %v %v", res.Goals[0].Domain, res.Goals[1].Domain)
	}
	if len(res.Edges) != 1 || res.Edges[0].Type != datatypes.EdgeConflicts {
		t.Errorf("edges not parsed: %+v", res.Edges)
	}
	if len(res.Dropped) != 0 {
		t.Errorf("nothing should be dropped: %+v", res.Dropped)
	}
}

func TestExtract_CodeFenceTolerated(t *testing.T) {
	e := NewGoalExtractor(&stubClient{reply: "```json\n" + validExtraction + "\n```"}, nil)
	res, err := e.Extract(context.Background(), datatypes.Request{ID: "r1", Text: "help"})
	if err != nil {
		t.Fatalf("fenced JSON must parse: %v", err)
	}
	if len(res.Goals) != 2 {
		t.Errorf("expected 2 goals, got %d", len(res.Goals))
	}
}

func TestExtract_DropsInvalidGoal(t *testing.T) {
	reply := `{
	  "goals": [
	    {"id": "ok", "title": "fine goal", "domain": "career",
	     "urgency": 5, "impact": 5, "preference": 5, "dependency_weight": 5, "resource_availability": 5},
	    {"id": "bad-factor", "title": "factor out of range", "domain": "career",
	     "urgency": 11, "impact": 5, "preference": 5, "dependency_weight": 5, "resource_availability": 5},
	    {"id": "bad-domain", "title": "hallucinated domain", "domain": "astrology",
	     "urgency": 5, "impact": 5, "preference": 5, "dependency_weight": 5, "resource_availability": 5}
	  ],
	  "edges": []
	}`
	e := NewGoalExtractor(&stubClient{reply: reply}, nil)
	res, err := e.Extract(context.Background(), datatypes.Request{ID: "r1", Text: "help"})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(res.Goals) != 1 || res.Goals[0].ID != "ok" {
		t.Fatalf("only the valid goal survives: %+v", res.Goals)
	}
	if len(res.Dropped) != 2 {
		t.Fatalf("both invalid goals must be recorded: %+v", res.Dropped)
	}
	for _, d := range res.Dropped {
		if d.Reason == "" {
			t.Errorf("dropped goal %s has no reason", d.GoalID)
		}
	}
}

func TestExtract_DropsEdgesToDroppedGoals(t *testing.T) {
	reply := `{
	  "goals": [
	    {"id": "ok", "title": "fine goal", "domain": "career",
	     "urgency": 5, "impact": 5, "preference": 5, "dependency_weight": 5, "resource_availability": 5},
	    {"id": "bad", "title": "broken", "domain": "career",
	     "urgency": 0, "impact": 5, "preference": 5, "dependency_weight": 5, "resource_availability": 5}
	  ],
	  "edges": [
	    {"from": "ok", "to": "bad", "type": "requires"},
	    {"from": "ok", "to": "ok", "type": "supports"},
	    {"from": "ok", "to": "ghost", "type": "enables"}
	  ]
	}`
	e := NewGoalExtractor(&stubClient{reply: reply}, nil)
	res, err := e.Extract(context.Background(), datatypes.Request{ID: "r1", Text: "help"})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(res.Edges) != 0 {
		t.Errorf("edges to dropped, self, or unknown goals must be discarded: %+v", res.Edges)
	}
}

func TestExtract_GeneratesMissingIDs(t *testing.T) {
	reply := `{
	  "goals": [
	    {"title": "no id supplied", "domain": "finance",
	     "urgency": 5, "impact": 5, "preference": 5, "dependency_weight": 5, "resource_availability": 5}
	  ],
	  "edges": []
	}`
	e := NewGoalExtractor(&stubClient{reply: reply}, nil)
	res, err := e.Extract(context.Background(), datatypes.Request{ID: "r1", Text: "help"})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(res.Goals) != 1 || res.Goals[0].ID == "" {
		t.Errorf("missing id must be generated: %+v", res.Goals)
	}
}

func TestExtract_EmptyGoalsIsLegal(t *testing.T) {
	e := NewGoalExtractor(&stubClient{reply: `{"goals": [], "edges": []}`}, nil)
	res, err := e.Extract(context.Background(), datatypes.Request{ID: "r1", Text: "hi"})
	if err != nil {
		t.Fatalf("empty extraction must not error: %v", err)
	}
	if len(res.Goals) != 0 {
		t.Errorf("expected no goals, got %+v", res.Goals)
	}
}

func TestExtract_RedactsOutboundText(t *testing.T) {
	client := &stubClient{reply: `{"goals": [], "edges": []}`}
	e := NewGoalExtractor(client, nil)
	req := datatypes.Request{ID: "r1", Text: "call me at 555-867-5309 or jane@example.com"}
	if _, err := e.Extract(context.Background(), req); err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if strings.Contains(client.lastUser, "555-867-5309") || strings.Contains(client.lastUser, "jane@example.com") {
		t.Errorf("identifiers must not leave the process: %q", client.lastUser)
	}
	if !strings.Contains(client.lastUser, "[REDACTED:") {
		t.Errorf("redaction placeholder missing: %q", client.lastUser)
	}
}

func TestExtract_ClientErrorPropagates(t *testing.T) {
	e := NewGoalExtractor(&stubClient{err: errors.New("model down")}, nil)
	if _, err := e.Extract(context.Background(), datatypes.Request{ID: "r1", Text: "hi"}); err == nil {
		t.Fatal("client failure must propagate")
	}
}

func TestExtract_GarbageOutputFails(t *testing.T) {
	e := NewGoalExtractor(&stubClient{reply: "I think your goals are great!"}, nil)
	if _, err := e.Extract(context.Background(), datatypes.Request{ID: "r1", Text: "hi"}); err == nil {
		t.Fatal("non-JSON output must fail")
	}
}
