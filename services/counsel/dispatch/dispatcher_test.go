// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
)

// fakeWorker is a scriptable worker for dispatcher tests.
type fakeWorker struct {
	domain  datatypes.Domain
	delay   time.Duration
	err     error
	invoked int
	lastWC  WorkContext
}

func (w *fakeWorker) Domain() datatypes.Domain { return w.domain }

func (w *fakeWorker) Invoke(ctx context.Context, req datatypes.Request, wc WorkContext) (*datatypes.WorkerResult, error) {
	w.invoked++
	w.lastWC = wc
	if w.delay > 0 {
		select {
		case <-time.After(w.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if w.err != nil {
		return nil, w.err
	}
	return &datatypes.WorkerResult{
		Domain:  w.domain,
		Summary: "advice from " + w.domain.String(),
	}, nil
}

func mustRegistry(t *testing.T, workers ...Worker) *Registry {
	t.Helper()
	r, err := NewRegistry(workers...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

func decision(s datatypes.Strategy, domains ...datatypes.Domain) datatypes.StrategyDecision {
	return datatypes.StrategyDecision{Strategy: s, Domains: domains}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		&fakeWorker{domain: datatypes.DomainCareer},
		&fakeWorker{domain: datatypes.DomainCareer},
	)
	if err == nil {
		t.Fatal("duplicate domain registration must fail")
	}
}

func TestRun_Direct_InvokesNoWorkers(t *testing.T) {
	career := &fakeWorker{domain: datatypes.DomainCareer}
	d := NewDispatcher(mustRegistry(t, career), nil)

	out, err := d.Run(context.Background(), datatypes.Request{ID: "r1"},
		decision(datatypes.StrategyDirect), Plan{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if career.invoked != 0 {
		t.Error("direct strategy must not invoke any worker")
	}
	if len(out.Results) != 0 || len(out.Failures) != 0 {
		t.Error("direct outcome must be empty")
	}
}

func TestRun_SingleSpecialist(t *testing.T) {
	career := &fakeWorker{domain: datatypes.DomainCareer}
	finance := &fakeWorker{domain: datatypes.DomainFinance}
	d := NewDispatcher(mustRegistry(t, career, finance), nil)

	out, err := d.Run(context.Background(), datatypes.Request{ID: "r1"},
		decision(datatypes.StrategySingleSpecialist, datatypes.DomainCareer, datatypes.DomainFinance),
		Plan{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if career.invoked != 1 || finance.invoked != 0 {
		t.Errorf("only the first domain runs: career=%d finance=%d", career.invoked, finance.invoked)
	}
	if len(out.Results) != 1 || out.Results[0].Domain != datatypes.DomainCareer {
		t.Errorf("unexpected results: %+v", out.Results)
	}
}

func TestRun_Parallel_FailureIsolation(t *testing.T) {
	career := &fakeWorker{domain: datatypes.DomainCareer}
	finance := &fakeWorker{domain: datatypes.DomainFinance, err: errors.New("model unavailable")}
	wellness := &fakeWorker{domain: datatypes.DomainWellness}
	d := NewDispatcher(mustRegistry(t, career, finance, wellness), nil)

	out, err := d.Run(context.Background(), datatypes.Request{ID: "r1"},
		decision(datatypes.StrategyParallel,
			datatypes.DomainCareer, datatypes.DomainFinance, datatypes.DomainWellness),
		Plan{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("surviving workers must still report: %+v", out.Results)
	}
	if len(out.Failures) != 1 || out.Failures[0].Domain != datatypes.DomainFinance {
		t.Fatalf("the failed worker must be marked: %+v", out.Failures)
	}
	if !out.Partial {
		t.Error("mixed success and failure must set Partial")
	}
}

func TestRun_Parallel_DeterministicOrder(t *testing.T) {
	// Wellness finishes first but must still aggregate last.
	career := &fakeWorker{domain: datatypes.DomainCareer, delay: 30 * time.Millisecond}
	wellness := &fakeWorker{domain: datatypes.DomainWellness}
	d := NewDispatcher(mustRegistry(t, career, wellness), nil)

	out, err := d.Run(context.Background(), datatypes.Request{ID: "r1"},
		decision(datatypes.StrategyParallel, datatypes.DomainCareer, datatypes.DomainWellness),
		Plan{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out.Results))
	}
	if out.Results[0].Domain != datatypes.DomainCareer || out.Results[1].Domain != datatypes.DomainWellness {
		t.Errorf("aggregation must follow input order, got %v then %v",
			out.Results[0].Domain, out.Results[1].Domain)
	}
}

func TestRun_Parallel_LatencyIsMaxNotSum(t *testing.T) {
	perWorker := 40 * time.Millisecond
	workers := []Worker{
		&fakeWorker{domain: datatypes.DomainCareer, delay: perWorker},
		&fakeWorker{domain: datatypes.DomainRelationship, delay: perWorker},
		&fakeWorker{domain: datatypes.DomainFinance, delay: perWorker},
	}
	d := NewDispatcher(mustRegistry(t, workers...), nil)

	start := time.Now()
	_, err := d.Run(context.Background(), datatypes.Request{ID: "r1"},
		decision(datatypes.StrategyParallel,
			datatypes.DomainCareer, datatypes.DomainRelationship, datatypes.DomainFinance),
		Plan{})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if elapsed >= 3*perWorker {
		t.Errorf("parallel latency must track the slowest worker, not the sum: %v", elapsed)
	}
}

func TestRun_Parallel_TimeoutMarkedNotFatal(t *testing.T) {
	slow := &fakeWorker{domain: datatypes.DomainCareer, delay: 200 * time.Millisecond}
	fast := &fakeWorker{domain: datatypes.DomainFinance}
	d := NewDispatcher(mustRegistry(t, slow, fast), nil,
		WithWorkerTimeout(20*time.Millisecond))

	out, err := d.Run(context.Background(), datatypes.Request{ID: "r1"},
		decision(datatypes.StrategyParallel, datatypes.DomainCareer, datatypes.DomainFinance),
		Plan{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(out.Failures) != 1 || !out.Failures[0].TimedOut {
		t.Fatalf("slow worker must be marked timed out: %+v", out.Failures)
	}
	if len(out.Results) != 1 || out.Results[0].Domain != datatypes.DomainFinance {
		t.Errorf("fast worker must still report: %+v", out.Results)
	}
}

func TestRun_Sequential_FeedsPriorResults(t *testing.T) {
	career := &fakeWorker{domain: datatypes.DomainCareer}
	finance := &fakeWorker{domain: datatypes.DomainFinance}
	d := NewDispatcher(mustRegistry(t, career, finance), nil)

	out, err := d.Run(context.Background(), datatypes.Request{ID: "r1"},
		decision(datatypes.StrategySequential, datatypes.DomainCareer, datatypes.DomainFinance),
		Plan{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out.Results))
	}
	if len(career.lastWC.Prior) != 0 {
		t.Error("first worker must see no prior results")
	}
	if len(finance.lastWC.Prior) != 1 || finance.lastWC.Prior[0].Domain != datatypes.DomainCareer {
		t.Errorf("second worker must see the first's result: %+v", finance.lastWC.Prior)
	}
}

func TestRun_Sequential_HaltsOnFailure(t *testing.T) {
	career := &fakeWorker{domain: datatypes.DomainCareer}
	finance := &fakeWorker{domain: datatypes.DomainFinance, err: errors.New("boom")}
	wellness := &fakeWorker{domain: datatypes.DomainWellness}
	d := NewDispatcher(mustRegistry(t, career, finance, wellness), nil)

	out, err := d.Run(context.Background(), datatypes.Request{ID: "r1"},
		decision(datatypes.StrategySequential,
			datatypes.DomainCareer, datatypes.DomainFinance, datatypes.DomainWellness),
		Plan{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if wellness.invoked != 0 {
		t.Error("workers after the failure must not run")
	}
	if len(out.Skipped) != 1 || out.Skipped[0] != datatypes.DomainWellness {
		t.Errorf("skipped domains must be reported: %v", out.Skipped)
	}
	if !out.Partial {
		t.Error("completed prefix plus failure must set Partial")
	}
}

func TestRun_Phased_WavesSeePriorResults(t *testing.T) {
	career := &fakeWorker{domain: datatypes.DomainCareer}
	finance := &fakeWorker{domain: datatypes.DomainFinance}
	wellness := &fakeWorker{domain: datatypes.DomainWellness}
	d := NewDispatcher(mustRegistry(t, career, finance, wellness), nil)

	plan := Plan{Phases: [][]datatypes.Domain{
		{datatypes.DomainCareer, datatypes.DomainFinance},
		{datatypes.DomainWellness},
	}}
	out, err := d.Run(context.Background(), datatypes.Request{ID: "r1"},
		decision(datatypes.StrategyFullOrchestration,
			datatypes.DomainCareer, datatypes.DomainFinance, datatypes.DomainWellness),
		plan)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(out.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out.Results))
	}
	if len(wellness.lastWC.Prior) != 2 {
		t.Errorf("second wave must see both first-wave results: %+v", wellness.lastWC.Prior)
	}
	if len(career.lastWC.Prior) != 0 {
		t.Error("first wave must see no prior results")
	}
}

func TestRun_CancelledContext(t *testing.T) {
	career := &fakeWorker{domain: datatypes.DomainCareer}
	d := NewDispatcher(mustRegistry(t, career), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Run(ctx, datatypes.Request{ID: "r1"},
		decision(datatypes.StrategyParallel, datatypes.DomainCareer), Plan{})
	if err == nil {
		t.Fatal("already-cancelled context must fail fast")
	}
	if career.invoked != 0 {
		t.Error("no worker may start after cancellation")
	}
}

func TestRun_UnregisteredDomainIsFailure(t *testing.T) {
	career := &fakeWorker{domain: datatypes.DomainCareer}
	d := NewDispatcher(mustRegistry(t, career), nil)

	out, err := d.Run(context.Background(), datatypes.Request{ID: "r1"},
		decision(datatypes.StrategyParallel, datatypes.DomainCareer, datatypes.DomainFinance),
		Plan{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(out.Failures) != 1 || out.Failures[0].Domain != datatypes.DomainFinance {
		t.Errorf("missing worker must surface as a failure: %+v", out.Failures)
	}
}

func TestRun_GoalsReachWorker(t *testing.T) {
	career := &fakeWorker{domain: datatypes.DomainCareer}
	d := NewDispatcher(mustRegistry(t, career), nil)

	goals := []datatypes.Goal{{
		ID: "g1", Title: "ask for promotion", Domain: datatypes.DomainCareer,
		Urgency: 7, Impact: 9, Preference: 8, DependencyWeight: 6, ResourceAvailability: 8,
	}}
	plan := Plan{GoalsByDomain: map[datatypes.Domain][]datatypes.Goal{
		datatypes.DomainCareer: goals,
	}}
	_, err := d.Run(context.Background(), datatypes.Request{ID: "r1"},
		decision(datatypes.StrategySingleSpecialist, datatypes.DomainCareer), plan)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(career.lastWC.Goals) != 1 || career.lastWC.Goals[0].ID != "g1" {
		t.Errorf("assigned goals must reach the worker: %+v", career.lastWC.Goals)
	}
}

func TestRateLimiter_DeniesOverLimit(t *testing.T) {
	rl := NewRateLimiter(map[datatypes.Domain]int{datatypes.DomainCareer: 2})
	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow(datatypes.DomainCareer); !ok {
			t.Fatalf("call %d within limit must be allowed", i)
		}
	}
	ok, retry := rl.Allow(datatypes.DomainCareer)
	if ok {
		t.Fatal("third call must be rate limited")
	}
	if retry <= 0 {
		t.Errorf("retry-after must be positive, got %v", retry)
	}
	// Unconfigured domains are never limited.
	if ok, _ := rl.Allow(datatypes.DomainFinance); !ok {
		t.Error("unconfigured domain must not be limited")
	}
}

func TestDispatcher_RateLimitedWorkerFails(t *testing.T) {
	career := &fakeWorker{domain: datatypes.DomainCareer}
	rl := NewRateLimiter(map[datatypes.Domain]int{datatypes.DomainCareer: 1})
	d := NewDispatcher(mustRegistry(t, career), nil, WithRateLimiter(rl))

	req := datatypes.Request{ID: "r1"}
	dec := decision(datatypes.StrategySingleSpecialist, datatypes.DomainCareer)
	if out, _ := d.Run(context.Background(), req, dec, Plan{}); len(out.Results) != 1 {
		t.Fatal("first invocation must pass")
	}
	out, _ := d.Run(context.Background(), req, dec, Plan{})
	if len(out.Failures) != 1 {
		t.Fatalf("second invocation must be rate limited: %+v", out)
	}
	if career.invoked != 1 {
		t.Error("the limited invocation must never reach the worker")
	}
}
