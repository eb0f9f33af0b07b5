// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is checks across package boundaries.
var (
	// ErrValidation is wrapped by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrCycle is wrapped by every *CycleError.
	ErrCycle = errors.New("requires cycle")

	// ErrWorkerFailure is wrapped by every *WorkerFailure used as an error.
	ErrWorkerFailure = errors.New("worker failure")

	// ErrCrisisOverride marks the deliberate crisis short-circuit. Not a
	// failure: callers seeing it must deliver the Referral unchanged.
	ErrCrisisOverride = errors.New("crisis override")
)

// ValidationError reports malformed Goal or Edge input: a missing field, an
// out-of-range factor, or a reference to a non-existent goal id.
//
// Recovery: the engine drops the offending goal with a logged reason where
// possible, and surfaces the error only when the whole request becomes
// unprocessable.
type ValidationError struct {
	// GoalID identifies the offending goal; empty for edge errors.
	GoalID string

	// Field is the struct field or edge endpoint that failed.
	Field string

	// Reason is a human-readable description of the violation.
	Reason string
}

func (e *ValidationError) Error() string {
	if e.GoalID != "" {
		return fmt.Sprintf("validation failed: goal %q field %s: %s", e.GoalID, e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// CycleError reports a `requires` cycle in the goal graph. It is always
// surfaced and never auto-resolved: choosing which edge to break would
// silently alter user intent.
type CycleError struct {
	// Members lists every goal id on the cycle, in walk order.
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("requires cycle among goals [%s]", strings.Join(e.Members, ", "))
}

// Unwrap makes errors.Is(err, ErrCycle) true.
func (e *CycleError) Unwrap() error { return ErrCycle }

// WorkerFailure records a domain worker timeout or error. It doubles as the
// explicit partial-result marker in Response.Failures — a failed worker is
// never silently dropped and its output is never fabricated.
type WorkerFailure struct {
	Domain   Domain
	Reason   string
	TimedOut bool
}

func (e *WorkerFailure) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("worker failure: domain %s timed out", e.Domain)
	}
	return fmt.Sprintf("worker failure: domain %s: %s", e.Domain, e.Reason)
}

// Unwrap makes errors.Is(err, ErrWorkerFailure) true.
func (e *WorkerFailure) Unwrap() error { return ErrWorkerFailure }

// UnresolvedConflict is a control signal, not a true error: a high-severity
// conflict the engine refuses to auto-resolve. It carries both options so the
// caller can present the decision.
type UnresolvedConflict struct {
	Conflict Conflict
	Options  []ResolutionOption
}

func (e *UnresolvedConflict) Error() string {
	return fmt.Sprintf("unresolved conflict between %q and %q (gap %.1f)",
		e.Conflict.GoalA, e.Conflict.GoalB, e.Conflict.ScoreGap)
}
