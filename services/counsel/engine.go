// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package counsel is the orchestration engine: it takes one user request
// through safety screening, domain classification, complexity scoring, goal
// extraction, priority ranking, conflict resolution, and dispatch, and
// always returns a structured Response.
//
// The crisis check runs before everything else and short-circuits the whole
// pipeline: when it fires, the referral directory is the entire response and
// no model worker is ever invoked.
package counsel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/conflicts"
	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
	"github.com/WaypointAI/WaypointFOSS/services/counsel/dispatch"
	"github.com/WaypointAI/WaypointFOSS/services/counsel/goalgraph"
	"github.com/WaypointAI/WaypointFOSS/services/counsel/priority"
	"github.com/WaypointAI/WaypointFOSS/services/counsel/profile"
	"github.com/WaypointAI/WaypointFOSS/services/counsel/routing"
	"github.com/WaypointAI/WaypointFOSS/services/counsel/safety"
	"github.com/WaypointAI/WaypointFOSS/services/llm"
)

var (
	engineRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "counsel",
		Subsystem: "engine",
		Name:      "request_total",
		Help:      "Requests handled, by selected strategy",
	}, []string{"strategy"})
	engineCrisisTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "counsel",
		Subsystem: "engine",
		Name:      "crisis_override_total",
		Help:      "Requests short-circuited by the escalation guard",
	})
	engineLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "counsel",
		Subsystem: "engine",
		Name:      "latency_seconds",
		Help:      "End-to-end request handling latency",
		Buckets:   prometheus.DefBuckets,
	})
)

var engineTracer = otel.Tracer("waypoint.counsel.engine")

// Extractor turns request text into validated goals and edges. Satisfied by
// *llm.GoalExtractor; tests substitute stubs.
type Extractor interface {
	Extract(ctx context.Context, req datatypes.Request) (llm.ExtractionResult, error)
}

// Deps are the engine's collaborators. Guard, Classifier, Signals and
// Dispatcher are required; the rest degrade gracefully when nil.
type Deps struct {
	Guard      *safety.Guard
	Classifier *routing.Classifier
	Signals    *routing.SignalDetector
	Dispatcher *dispatch.Dispatcher

	// Extractor may be nil: requests then flow on classifier output alone,
	// with no goal graph, ranking, or conflict handling.
	Extractor Extractor

	// Responder answers the direct path. Nil leaves Answer empty.
	Responder llm.Client

	// Profiles persists cross-turn state. Nil disables persistence.
	Profiles profile.Store

	Logger *slog.Logger
}

// Engine runs the orchestration pipeline.
//
// Thread Safety: safe for concurrent use; per-request state stays on the
// stack.
type Engine struct {
	guard      *safety.Guard
	classifier *routing.Classifier
	signals    *routing.SignalDetector
	dispatcher *dispatch.Dispatcher
	extractor  Extractor
	responder  llm.Client
	resolver   *conflicts.Resolver
	profiles   profile.Store
	logger     *slog.Logger
}

// NewEngine validates the dependency set and builds an Engine.
func NewEngine(deps Deps) (*Engine, error) {
	if deps.Guard == nil || deps.Classifier == nil || deps.Signals == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("engine: guard, classifier, signals and dispatcher are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		guard:      deps.Guard,
		classifier: deps.Classifier,
		signals:    deps.Signals,
		dispatcher: deps.Dispatcher,
		extractor:  deps.Extractor,
		responder:  deps.Responder,
		resolver:   conflicts.NewResolver(logger),
		profiles:   deps.Profiles,
		logger:     logger,
	}, nil
}

// Handle runs one request through the full pipeline.
//
// Description:
//
//	Order of operations: crisis screen, domain classification, signal
//	detection, complexity scoring, goal extraction, graph build, dependency
//	boost, ranking, conflict detection and resolution, strategy decision,
//	dispatch, response assembly. Every outcome except an unexecutable
//	request (requires cycle, cancelled context) is a structured Response;
//	worker failures are data inside it, not errors.
//
// Inputs:
//   - ctx: request context; cancellation propagates into dispatch.
//   - req: the user request. A missing ID is generated.
//
// Outputs:
//   - *datatypes.Response: the structured outcome. Nil only when err is
//     non-nil.
//   - error: *datatypes.CycleError, a context error, or a dispatch wiring
//     error.
func (e *Engine) Handle(ctx context.Context, req datatypes.Request) (*datatypes.Response, error) {
	ctx, span := engineTracer.Start(ctx, "engine.Handle")
	defer span.End()
	start := time.Now()
	defer func() { engineLatencySeconds.Observe(time.Since(start).Seconds()) }()

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("request_id", req.ID))

	// Crisis screen first. Nothing else runs when it fires.
	if flag := e.guard.Evaluate(ctx, req.Text); flag.Triggered() {
		engineCrisisTotal.Inc()
		span.SetAttributes(attribute.String("crisis_tier", flag.Tier.String()))
		e.logger.WarnContext(ctx, "crisis override",
			"request_id", req.ID, "category", flag.Category.String(), "tier", flag.Tier.String())
		return &datatypes.Response{
			RequestID: req.ID,
			Crisis:    &flag,
			Referral:  e.guard.Referral(flag),
		}, nil
	}

	domains := e.classifier.Classify(ctx, req.Text)
	signals := e.signals.Detect(ctx, req.Text, domains)
	score := routing.ComplexityScore(domains, signals)

	extraction := e.extractGoals(ctx, req)

	graph, err := goalgraph.Build(extraction.Goals, extraction.Edges)
	if err != nil {
		// A requires cycle makes the plan unexecutable; it is surfaced, not
		// silently repaired.
		return nil, err
	}

	boosted := priority.ApplyDependencyBoost(extraction.Goals, graph)
	entries := priority.Rank(boosted)

	detected := conflicts.Detect(ctx, graph, entries)
	probe := &routing.ConflictProbe{
		HighSeverityConflicts: conflicts.HighSeverityCount(detected),
		RequiresLinkedDomains: graph.RequiresLinkedDomains(),
	}

	decision := routing.Decide(score, orderDomainsByRank(domains, entries), probe)
	engineRequestTotal.WithLabelValues(decision.Strategy.String()).Inc()
	span.SetAttributes(
		attribute.String("strategy", decision.Strategy.String()),
		attribute.Int("complexity", score),
		attribute.Int("goals", len(extraction.Goals)),
	)

	resolutions, _ := e.resolver.ResolveAll(ctx, detected, entries)
	resolutions = e.applyRecordedChoices(ctx, req.UserID, resolutions)

	plan := buildPlan(decision, graph, entries, resolutions)

	// An unconfirmed phased plan holds its goals back; a domain whose goals
	// were all held sits this cycle out entirely.
	pending := pendingPlans(resolutions)
	dispatchDecision := decision
	dispatchDecision.Domains = dispatchableDomains(decision.Domains, graph, plan, pending)

	outcome, err := e.dispatcher.Run(ctx, req, dispatchDecision, plan)
	if err != nil {
		return nil, err
	}

	resp := &datatypes.Response{
		RequestID:    req.ID,
		Strategy:     decision.Strategy,
		Results:      outcome.Results,
		Failures:     outcome.Failures,
		Partial:      outcome.Partial,
		Conflicts:    detected,
		Resolutions:  resolutions,
		OpenChoices:  openResolutions(resolutions),
		PendingPlans: pending,
		Phases:       plan.Phases,
		DroppedGoals: extraction.Dropped,
	}

	if decision.Strategy == datatypes.StrategyDirect {
		resp.Answer = e.directAnswer(ctx, req)
	}

	e.persistProfile(ctx, req.UserID, extraction.Goals)

	e.logger.InfoContext(ctx, "request handled",
		"request_id", req.ID,
		"strategy", decision.Strategy.String(),
		"complexity", score,
		"results", len(resp.Results),
		"failures", len(resp.Failures),
		"open_choices", len(resp.OpenChoices))
	return resp, nil
}

// ConfirmPlan records the user's confirmation of a phased plan for the
// given conflict pair. The next Handle cycle for the same pair proceeds
// with the phased resolution instead of holding its goals back.
func (e *Engine) ConfirmPlan(ctx context.Context, userID, goalA, goalB string) error {
	if e.profiles == nil {
		return nil
	}
	p, err := e.profiles.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("confirm plan: %w", err)
	}
	if p == nil {
		p = &profile.Profile{UserID: userID}
	}
	if p.ConfirmedPlans == nil {
		p.ConfirmedPlans = make(map[string]bool)
	}
	p.ConfirmedPlans[profile.ChoiceKey(goalA, goalB)] = true
	return e.profiles.SaveProfile(ctx, p)
}

// RecordChoice stores the user's answer to an open conflict choice so
// follow-up turns resolve the same tie without asking again.
func (e *Engine) RecordChoice(ctx context.Context, userID, goalA, goalB, chosen string) error {
	if e.profiles == nil {
		return nil
	}
	if chosen != goalA && chosen != goalB {
		return fmt.Errorf("record choice: %q is not part of the conflict", chosen)
	}
	p, err := e.profiles.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("record choice: %w", err)
	}
	if p == nil {
		p = &profile.Profile{UserID: userID}
	}
	if p.ResolvedChoices == nil {
		p.ResolvedChoices = make(map[string]string)
	}
	p.ResolvedChoices[profile.ChoiceKey(goalA, goalB)] = chosen
	return e.profiles.SaveProfile(ctx, p)
}

// extractGoals runs the extractor, degrading to an empty extraction on
// failure: a broken model call must not take down the classifier-only flow.
func (e *Engine) extractGoals(ctx context.Context, req datatypes.Request) llm.ExtractionResult {
	if e.extractor == nil || req.Text == "" {
		return llm.ExtractionResult{}
	}
	extraction, err := e.extractor.Extract(ctx, req)
	if err != nil {
		e.logger.WarnContext(ctx, "goal extraction failed, continuing without goals",
			"request_id", req.ID, "error", err)
		return llm.ExtractionResult{}
	}
	return extraction
}

// directAnswer produces the no-worker reply for trivial requests.
func (e *Engine) directAnswer(ctx context.Context, req datatypes.Request) string {
	if e.responder == nil || req.Text == "" {
		return ""
	}
	answer, err := e.responder.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You are a concise personal advisor. Answer the user's question directly in a short paragraph."},
		{Role: "user", Content: llm.RedactIdentifiers(req.Text)},
	}, llm.GenerationParams{})
	if err != nil {
		e.logger.WarnContext(ctx, "direct answer failed", "request_id", req.ID, "error", err)
		return ""
	}
	return answer
}

// applyRecordedChoices replays profile state over fresh resolutions: open
// choices the user already answered become deferrals, and phased plans the
// user already confirmed drop their confirmation hold, so neither is asked
// twice.
func (e *Engine) applyRecordedChoices(ctx context.Context, userID string, resolutions []datatypes.Resolution) []datatypes.Resolution {
	if e.profiles == nil || userID == "" {
		return resolutions
	}
	p, err := e.profiles.GetProfile(ctx, userID)
	if err != nil {
		e.logger.WarnContext(ctx, "profile load failed", "error", err)
		return resolutions
	}
	if p == nil || (len(p.ResolvedChoices) == 0 && len(p.ConfirmedPlans) == 0) {
		return resolutions
	}

	for i, res := range resolutions {
		c := res.Conflict
		key := profile.ChoiceKey(c.GoalA, c.GoalB)

		switch res.Kind {
		case datatypes.ResolutionUserChoice:
			chosen, ok := p.ResolvedChoices[key]
			if !ok {
				continue
			}
			deferred := c.GoalB
			if chosen == c.GoalB {
				deferred = c.GoalA
			}
			resolutions[i] = datatypes.Resolution{
				Conflict: c,
				Kind:     datatypes.ResolutionDefer,
				First:    chosen,
				Deferred: deferred,
				Note:     fmt.Sprintf("applied your earlier choice of %s", chosen),
			}
		case datatypes.ResolutionPhased:
			if !res.NeedsConfirmation || !p.ConfirmedPlans[key] {
				continue
			}
			resolutions[i].NeedsConfirmation = false
			resolutions[i].Note = fmt.Sprintf("proceeding with your confirmed phased plan: %s first", res.First)
		}
	}
	return resolutions
}

// persistProfile saves extracted goals for follow-up turns. Failure is
// logged and swallowed; losing cross-turn memory never fails a request.
func (e *Engine) persistProfile(ctx context.Context, userID string, goals []datatypes.Goal) {
	if e.profiles == nil || userID == "" || len(goals) == 0 {
		return
	}
	p, err := e.profiles.GetProfile(ctx, userID)
	if err != nil {
		e.logger.WarnContext(ctx, "profile load failed", "error", err)
		return
	}
	if p == nil {
		p = &profile.Profile{UserID: userID}
	}
	p.KnownGoals = goals
	if err := e.profiles.SaveProfile(ctx, p); err != nil {
		e.logger.WarnContext(ctx, "profile save failed", "error", err)
	}
}

// pendingPlans filters the phased resolutions still awaiting confirmation.
func pendingPlans(resolutions []datatypes.Resolution) []datatypes.Resolution {
	var out []datatypes.Resolution
	for _, r := range resolutions {
		if r.Kind == datatypes.ResolutionPhased && r.NeedsConfirmation {
			out = append(out, r)
		}
	}
	return out
}

// dispatchableDomains drops domains whose extracted goals were all held by
// an unconfirmed phased plan. Domains the classifier matched without any
// extracted goal keep their slot: there is nothing to hold back there.
func dispatchableDomains(domains []datatypes.Domain, graph *goalgraph.Graph, plan dispatch.Plan, pending []datatypes.Resolution) []datatypes.Domain {
	if len(pending) == 0 {
		return domains
	}

	held := make(map[datatypes.Domain]bool)
	for _, r := range pending {
		for _, g := range graph.Goals() {
			if g.ID == r.Conflict.GoalA || g.ID == r.Conflict.GoalB {
				held[g.Domain] = true
			}
		}
	}

	var out []datatypes.Domain
	for _, d := range domains {
		if held[d] && len(plan.GoalsByDomain[d]) == 0 {
			continue
		}
		out = append(out, d)
	}
	return out
}

// openResolutions filters the user-choice resolutions out of the full list
// for the response's OpenChoices field.
func openResolutions(resolutions []datatypes.Resolution) []datatypes.Resolution {
	var out []datatypes.Resolution
	for _, r := range resolutions {
		if r.Kind == datatypes.ResolutionUserChoice {
			out = append(out, r)
		}
	}
	return out
}

// orderDomainsByRank orders candidate domains by their best-ranked goal so
// sequential dispatch works highest priority first. Domains without goals
// keep their classifier order after the ranked ones.
func orderDomainsByRank(domains []datatypes.Domain, entries []priority.Entry) []datatypes.Domain {
	if len(entries) == 0 || len(domains) < 2 {
		out := make([]datatypes.Domain, len(domains))
		copy(out, domains)
		return out
	}

	candidate := make(map[datatypes.Domain]bool, len(domains))
	for _, d := range domains {
		candidate[d] = true
	}

	var out []datatypes.Domain
	seen := make(map[datatypes.Domain]bool, len(domains))
	for _, en := range entries {
		d := en.Goal.Domain
		if candidate[d] && !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, d := range domains {
		if !seen[d] {
			out = append(out, d)
		}
	}
	return out
}

// buildPlan assigns goals to domains and, for full orchestration, derives
// the phase waves from the requires graph.
//
// Goals deferred by an auto-resolution sit out this cycle; a domain whose
// goals were all deferred still appears in the decision but gets no goal
// context. Both goals of a phased plan that still needs confirmation are
// held back entirely: the dispatcher must not act on a proposal the caller
// has not confirmed.
func buildPlan(decision datatypes.StrategyDecision, graph *goalgraph.Graph, entries []priority.Entry, resolutions []datatypes.Resolution) dispatch.Plan {
	excluded := make(map[string]bool)
	for _, r := range resolutions {
		switch {
		case r.Kind == datatypes.ResolutionDefer && r.Deferred != "":
			excluded[r.Deferred] = true
		case r.Kind == datatypes.ResolutionPhased && r.NeedsConfirmation:
			excluded[r.Conflict.GoalA] = true
			excluded[r.Conflict.GoalB] = true
		}
	}

	goalsByDomain := make(map[datatypes.Domain][]datatypes.Goal)
	for _, en := range entries {
		if excluded[en.Goal.ID] {
			continue
		}
		goalsByDomain[en.Goal.Domain] = append(goalsByDomain[en.Goal.Domain], en.Goal)
	}

	plan := dispatch.Plan{GoalsByDomain: goalsByDomain}
	if decision.Strategy == datatypes.StrategyFullOrchestration {
		plan.Phases = buildPhases(decision.Domains, graph, excluded)
	}
	return plan
}

// buildPhases layers candidate domains by requires depth: a domain runs in
// the earliest wave after every domain its goals require. Depth ties keep
// enumeration order inside a wave.
func buildPhases(domains []datatypes.Domain, graph *goalgraph.Graph, excluded map[string]bool) [][]datatypes.Domain {
	if len(domains) == 0 {
		return nil
	}

	// Goal depth along requires edges; TopologicalRequires guarantees
	// prerequisites are visited first.
	depth := make(map[string]int)
	prereqs := make(map[string][]string)
	for _, edge := range graph.EdgesOfType(datatypes.EdgeRequires) {
		// edge.From requires edge.To: To runs in an earlier wave.
		prereqs[edge.From] = append(prereqs[edge.From], edge.To)
	}
	for _, id := range graph.TopologicalRequires() {
		d := 0
		for _, pre := range prereqs[id] {
			if depth[pre]+1 > d {
				d = depth[pre] + 1
			}
		}
		depth[id] = d
	}

	// Domain depth is the deepest of its live goals.
	domainDepth := make(map[datatypes.Domain]int)
	maxDepth := 0
	for _, g := range graph.Goals() {
		if excluded[g.ID] {
			continue
		}
		if depth[g.ID] > domainDepth[g.Domain] {
			domainDepth[g.Domain] = depth[g.ID]
		}
		if domainDepth[g.Domain] > maxDepth {
			maxDepth = domainDepth[g.Domain]
		}
	}

	var phases [][]datatypes.Domain
	for d := 0; d <= maxDepth; d++ {
		var wave []datatypes.Domain
		for _, domain := range domains {
			if domainDepth[domain] == d && hasDomainGoals(graph, domain, excluded) {
				wave = append(wave, domain)
			}
		}
		if len(wave) > 0 {
			phases = append(phases, wave)
		}
	}

	// Candidate domains with no goals at all still get invoked, in one
	// trailing wave, so classifier-only domains are not dropped.
	var tail []datatypes.Domain
	for _, domain := range domains {
		if !hasDomainGoals(graph, domain, excluded) {
			tail = append(tail, domain)
		}
	}
	if len(tail) > 0 {
		phases = append(phases, tail)
	}
	return phases
}

func hasDomainGoals(graph *goalgraph.Graph, domain datatypes.Domain, excluded map[string]bool) bool {
	for _, g := range graph.Goals() {
		if g.Domain == domain && !excluded[g.ID] {
			return true
		}
	}
	return false
}
