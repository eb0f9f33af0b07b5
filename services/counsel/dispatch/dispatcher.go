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
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
)

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "counsel",
		Subsystem: "dispatch",
		Name:      "total",
		Help:      "Dispatch runs by strategy",
	}, []string{"strategy"})
	workerInvocationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "counsel",
		Subsystem: "dispatch",
		Name:      "worker_invocation_total",
		Help:      "Worker invocations by domain and outcome",
	}, []string{"domain", "outcome"})
	workerLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "counsel",
		Subsystem: "dispatch",
		Name:      "worker_latency_seconds",
		Help:      "Per-worker invocation latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"domain"})
)

var dispatchTracer = otel.Tracer("waypoint.counsel.dispatch")

// defaultWorkerTimeout bounds a single worker invocation. A worker that
// blows the budget is recorded as a timed-out failure; the others proceed.
const defaultWorkerTimeout = 30 * time.Second

// parallelConcurrency caps concurrent worker invocations in parallel and
// phased modes.
const parallelConcurrency = 4

// Plan is the executable shape of a strategy decision: which goals each
// domain works on, and for phased orchestration, the phase grouping.
type Plan struct {
	GoalsByDomain map[datatypes.Domain][]datatypes.Goal

	// Phases groups domains into ordered waves for full orchestration.
	// Ignored by the other strategies.
	Phases [][]datatypes.Domain
}

// Outcome aggregates one dispatch run. Results are in domain-enumeration
// order regardless of completion order, so identical inputs always produce
// an identically ordered outcome.
type Outcome struct {
	Results  []datatypes.WorkerResult
	Failures []datatypes.WorkerFailure

	// Partial is true when at least one worker failed but others produced
	// results.
	Partial bool

	// Skipped lists domains never invoked because an earlier sequential
	// step failed or the run was cancelled.
	Skipped []datatypes.Domain
}

// Dispatcher routes a strategy decision to its execution mode.
//
// Thread Safety: safe for concurrent use; all mutable state is per-call.
type Dispatcher struct {
	registry *Registry
	limiter  *RateLimiter
	logger   *slog.Logger
	timeout  time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkerTimeout overrides the per-worker invocation budget.
func WithWorkerTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.timeout = d }
}

// WithRateLimiter installs a per-domain invocation limiter. Nil disables
// limiting.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(dp *Dispatcher) { dp.limiter = rl }
}

// NewDispatcher constructs a Dispatcher over the given registry. A nil
// logger falls back to the default.
func NewDispatcher(registry *Registry, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		registry: registry,
		logger:   logger,
		timeout:  defaultWorkerTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes a strategy decision.
//
// Description:
//
//	direct             — no workers are invoked; the outcome is empty and
//	                     the caller composes the answer itself.
//	single_specialist  — the first domain in the decision is invoked once.
//	parallel           — every domain is invoked concurrently with an
//	                     independent timeout; one failure never cancels the
//	                     siblings.
//	sequential         — domains run one at a time, each seeing the results
//	                     of its predecessors; the first failure halts the
//	                     chain and the rest are marked skipped.
//	full_orchestration — plan.Phases runs as ordered waves, parallel within
//	                     a wave, each wave seeing all prior results.
//
//	Cancellation is cooperative: an expired parent ctx stops new
//	invocations at the next boundary and no partial merge happens after
//	cancellation, but in-flight workers run to their own timeout.
//
// Inputs:
//   - ctx: parent context; cancellation stops the run at the next boundary.
//   - req: the originating request.
//   - decision: the strategy and domain list to execute.
//   - plan: goal assignments and, for full orchestration, the phase waves.
//
// Outputs:
//   - Outcome: results and failures; never nil fields fabricated.
//   - error: only for unexecutable input (unknown strategy, ctx already
//     cancelled). Worker failures are data, not errors.
func (d *Dispatcher) Run(ctx context.Context, req datatypes.Request, decision datatypes.StrategyDecision, plan Plan) (Outcome, error) {
	ctx, span := dispatchTracer.Start(ctx, "dispatch.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("strategy", decision.Strategy.String()),
		attribute.Int("domains", len(decision.Domains)),
	)
	dispatchTotal.WithLabelValues(decision.Strategy.String()).Inc()

	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	switch decision.Strategy {
	case datatypes.StrategyDirect:
		return Outcome{}, nil
	case datatypes.StrategySingleSpecialist:
		return d.runSingle(ctx, req, decision.Domains, plan), nil
	case datatypes.StrategyParallel:
		return d.runParallel(ctx, req, decision.Domains, plan, nil), nil
	case datatypes.StrategySequential:
		return d.runSequential(ctx, req, decision.Domains, plan), nil
	case datatypes.StrategyFullOrchestration:
		return d.runPhased(ctx, req, plan), nil
	default:
		return Outcome{}, fmt.Errorf("dispatch: unknown strategy %d", int(decision.Strategy))
	}
}

func (d *Dispatcher) runSingle(ctx context.Context, req datatypes.Request, domains []datatypes.Domain, plan Plan) Outcome {
	if len(domains) == 0 {
		return Outcome{}
	}
	var out Outcome
	domain := domains[0]
	res, fail := d.invoke(ctx, req, domain, WorkContext{Goals: plan.GoalsByDomain[domain]})
	if fail != nil {
		out.Failures = append(out.Failures, *fail)
	} else {
		out.Results = append(out.Results, *res)
	}
	return out
}

// runParallel fans out over the domains with per-worker timeouts. prior is
// passed through to every worker (set by phased mode, nil otherwise).
func (d *Dispatcher) runParallel(ctx context.Context, req datatypes.Request, domains []datatypes.Domain, plan Plan, prior []datatypes.WorkerResult) Outcome {
	type slot struct {
		result  *datatypes.WorkerResult
		failure *datatypes.WorkerFailure
	}
	slots := make([]slot, len(domains))

	// Plain errgroup, not WithContext: one worker's failure must not cancel
	// its siblings. Each invocation carries its own timeout.
	var g errgroup.Group
	sem := make(chan struct{}, parallelConcurrency)

	for i, domain := range domains {
		i, domain := i, domain
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			wc := WorkContext{Goals: plan.GoalsByDomain[domain], Prior: prior}
			slots[i].result, slots[i].failure = d.invoke(ctx, req, domain, wc)
			return nil
		})
	}
	_ = g.Wait()

	// Merge only after every worker has settled, and not at all if the run
	// was cancelled out from under us.
	var out Outcome
	if ctx.Err() != nil {
		out.Skipped = append(out.Skipped, domains...)
		return out
	}
	for _, s := range slots {
		if s.failure != nil {
			out.Failures = append(out.Failures, *s.failure)
		} else if s.result != nil {
			out.Results = append(out.Results, *s.result)
		}
	}
	out.Partial = len(out.Failures) > 0 && len(out.Results) > 0
	return out
}

func (d *Dispatcher) runSequential(ctx context.Context, req datatypes.Request, domains []datatypes.Domain, plan Plan) Outcome {
	var out Outcome
	for i, domain := range domains {
		if ctx.Err() != nil {
			out.Skipped = append(out.Skipped, domains[i:]...)
			return out
		}

		wc := WorkContext{
			Goals: plan.GoalsByDomain[domain],
			Prior: append([]datatypes.WorkerResult(nil), out.Results...),
		}
		res, fail := d.invoke(ctx, req, domain, wc)
		if fail != nil {
			// A broken chain cannot feed its successors real context, so the
			// rest are skipped rather than run on incomplete input.
			out.Failures = append(out.Failures, *fail)
			out.Skipped = append(out.Skipped, domains[i+1:]...)
			out.Partial = len(out.Results) > 0
			d.logger.WarnContext(ctx, "sequential dispatch halted",
				"failed_domain", domain.String(), "skipped", len(out.Skipped))
			return out
		}
		out.Results = append(out.Results, *res)
	}
	return out
}

func (d *Dispatcher) runPhased(ctx context.Context, req datatypes.Request, plan Plan) Outcome {
	var out Outcome
	for i, wave := range plan.Phases {
		if ctx.Err() != nil {
			for _, rest := range plan.Phases[i:] {
				out.Skipped = append(out.Skipped, rest...)
			}
			return out
		}

		prior := append([]datatypes.WorkerResult(nil), out.Results...)
		waveOut := d.runParallel(ctx, req, wave, plan, prior)
		out.Results = append(out.Results, waveOut.Results...)
		out.Failures = append(out.Failures, waveOut.Failures...)
		out.Skipped = append(out.Skipped, waveOut.Skipped...)
	}
	out.Partial = len(out.Failures) > 0 && len(out.Results) > 0
	return out
}

// invoke runs one worker with the per-invocation timeout and translates
// every failure mode into a WorkerFailure record.
func (d *Dispatcher) invoke(ctx context.Context, req datatypes.Request, domain datatypes.Domain, wc WorkContext) (*datatypes.WorkerResult, *datatypes.WorkerFailure) {
	worker, ok := d.registry.Lookup(domain)
	if !ok {
		workerInvocationTotal.WithLabelValues(domain.String(), "unregistered").Inc()
		return nil, &datatypes.WorkerFailure{Domain: domain, Reason: "no worker registered"}
	}

	if d.limiter != nil {
		if allowed, retryAfter := d.limiter.Allow(domain); !allowed {
			workerInvocationTotal.WithLabelValues(domain.String(), "rate_limited").Inc()
			return nil, &datatypes.WorkerFailure{
				Domain: domain,
				Reason: fmt.Sprintf("rate limited, retry in %s", retryAfter.Round(time.Millisecond)),
			}
		}
	}

	invokeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	res, err := worker.Invoke(invokeCtx, req, wc)
	workerLatencySeconds.WithLabelValues(domain.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		timedOut := invokeCtx.Err() == context.DeadlineExceeded
		outcome := "error"
		if timedOut {
			outcome = "timeout"
		}
		workerInvocationTotal.WithLabelValues(domain.String(), outcome).Inc()
		d.logger.WarnContext(ctx, "worker invocation failed",
			"domain", domain.String(), "timed_out", timedOut, "error", err)
		return nil, &datatypes.WorkerFailure{Domain: domain, Reason: err.Error(), TimedOut: timedOut}
	}
	if res == nil {
		workerInvocationTotal.WithLabelValues(domain.String(), "empty").Inc()
		return nil, &datatypes.WorkerFailure{Domain: domain, Reason: "worker returned no result"}
	}

	workerInvocationTotal.WithLabelValues(domain.String(), "ok").Inc()
	result := *res
	result.Domain = domain
	return &result, nil
}
