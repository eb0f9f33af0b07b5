// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conflicts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
	"github.com/WaypointAI/WaypointFOSS/services/counsel/priority"
)

var (
	resolutionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "counsel",
		Subsystem: "conflicts",
		Name:      "resolution_total",
		Help:      "Resolutions produced by kind",
	}, []string{"kind"})
)

// Resolver turns detected conflicts into resolutions. The one hard rule:
// a high-severity conflict is never auto-resolved — it always comes back to
// the caller as an open choice with both options spelled out.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver constructs a Resolver. A nil logger falls back to the default.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Resolve maps one conflict to a resolution based on its severity.
//
// Description:
//
//	low    — auto-resolve: the higher-scored goal proceeds first, the other
//	         is deferred, and the deferral is recorded in the note.
//	medium — propose a phased plan (higher-scored goal first) that the
//	         caller must confirm before dispatch acts on it.
//	high   — a true tie. Both options are returned with their scores and
//	         trade-offs; the system never picks for the user.
//
// Inputs:
//   - ctx: context for logging.
//   - c: the detected conflict.
//   - entries: the priority ranking that produced c's score gap.
//
// Outputs:
//   - datatypes.Resolution: always populated; inspect Kind and
//     NeedsConfirmation before acting on First/Deferred.
func (r *Resolver) Resolve(ctx context.Context, c datatypes.Conflict, entries []priority.Entry) datatypes.Resolution {
	winner, loser := orderByScore(c, entries)

	var res datatypes.Resolution
	switch c.Severity {
	case datatypes.SeverityLow:
		res = datatypes.Resolution{
			Conflict: c,
			Kind:     datatypes.ResolutionDefer,
			First:    winner,
			Deferred: loser,
			Note: fmt.Sprintf("deferred %s in favor of %s (gap %.1f)",
				describeGoal(entries, loser), describeGoal(entries, winner), c.ScoreGap),
		}
	case datatypes.SeverityMedium:
		res = datatypes.Resolution{
			Conflict:          c,
			Kind:              datatypes.ResolutionPhased,
			First:             winner,
			Deferred:          loser,
			NeedsConfirmation: true,
			Note: fmt.Sprintf("phased plan: %s first, then %s; confirm before proceeding",
				describeGoal(entries, winner), describeGoal(entries, loser)),
		}
	default:
		res = datatypes.Resolution{
			Conflict:          c,
			Kind:              datatypes.ResolutionUserChoice,
			NeedsConfirmation: true,
			Options:           r.buildOptions(c, entries),
			Note:              "scores are too close to call; this choice is yours",
		}
	}

	resolutionTotal.WithLabelValues(res.Kind.String()).Inc()
	r.logger.InfoContext(ctx, "conflict resolved",
		"goal_a", c.GoalA, "goal_b", c.GoalB,
		"severity", c.Severity.String(), "resolution", res.Kind.String())
	return res
}

// ResolveAll resolves every conflict in detection order and splits out the
// open choices the caller must answer.
func (r *Resolver) ResolveAll(ctx context.Context, cs []datatypes.Conflict, entries []priority.Entry) ([]datatypes.Resolution, []datatypes.UnresolvedConflict) {
	var resolutions []datatypes.Resolution
	var open []datatypes.UnresolvedConflict
	for _, c := range cs {
		res := r.Resolve(ctx, c, entries)
		resolutions = append(resolutions, res)
		if res.Kind == datatypes.ResolutionUserChoice {
			open = append(open, datatypes.UnresolvedConflict{Conflict: c, Options: res.Options})
		}
	}
	return resolutions, open
}

// buildOptions describes both sides of a tie so the caller can decide.
func (r *Resolver) buildOptions(c datatypes.Conflict, entries []priority.Entry) []datatypes.ResolutionOption {
	title := func(id string) string {
		for _, e := range entries {
			if e.Goal.ID == id {
				return e.Goal.Title
			}
		}
		return id
	}
	score := func(id string) float64 {
		for _, e := range entries {
			if e.Goal.ID == id {
				return e.Score.Value
			}
		}
		return 0
	}

	opts := make([]datatypes.ResolutionOption, 0, 2)
	for _, pair := range [][2]string{{c.GoalA, c.GoalB}, {c.GoalB, c.GoalA}} {
		opts = append(opts, datatypes.ResolutionOption{
			GoalID:   pair[0],
			Score:    score(pair[0]),
			TradeOff: fmt.Sprintf("pursuing %s delays %s", title(pair[0]), title(pair[1])),
		})
	}
	return opts
}

// orderByScore returns (higher, lower) scored goal ids for the pair. A dead
// tie keeps the normalized pair order so the output stays deterministic.
func orderByScore(c datatypes.Conflict, entries []priority.Entry) (string, string) {
	scoreOf := func(id string) float64 {
		for _, e := range entries {
			if e.Goal.ID == id {
				return e.Score.Value
			}
		}
		return 0
	}
	if scoreOf(c.GoalB) > scoreOf(c.GoalA) {
		return c.GoalB, c.GoalA
	}
	return c.GoalA, c.GoalB
}
