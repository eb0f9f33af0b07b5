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
	"github.com/go-playground/validator/v10"
)

// goalValidator is shared and concurrency-safe per the validator docs.
var goalValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateGoal checks the structural contract of an externally-supplied goal:
// non-empty id and title, domain in the closed enumeration, every factor in
// [1,10]. Goal extraction is an untyped LLM boundary, so the engine
// re-validates every field here rather than trusting the caller.
//
// Outputs:
//   - error: nil on success, otherwise a *ValidationError naming the first
//     offending field.
func ValidateGoal(g Goal) error {
	if err := goalValidator.Struct(g); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{
				GoalID: g.ID,
				Field:  fe.Field(),
				Reason: "failed constraint " + fe.Tag(),
			}
		}
		return &ValidationError{GoalID: g.ID, Field: "goal", Reason: err.Error()}
	}
	if !g.Domain.Valid() {
		return &ValidationError{GoalID: g.ID, Field: "Domain", Reason: "not a member of the domain enumeration"}
	}
	return nil
}

// ValidateEdge checks that an edge references two existing goal ids and does
// not point at itself. Membership is checked against the supplied id set so
// the caller controls which goals are considered present.
func ValidateEdge(e Edge, known map[string]bool) error {
	if e.From == "" || e.To == "" {
		return &ValidationError{Field: "edge", Reason: "empty endpoint"}
	}
	if e.From == e.To {
		return &ValidationError{GoalID: e.From, Field: "edge", Reason: "self edge"}
	}
	if !known[e.From] {
		return &ValidationError{GoalID: e.From, Field: "edge.from", Reason: "references non-existent goal id"}
	}
	if !known[e.To] {
		return &ValidationError{GoalID: e.To, Field: "edge.to", Reason: "references non-existent goal id"}
	}
	return nil
}

// asValidationErrors is a tiny errors.As shim kept separate so ValidateGoal
// reads linearly.
func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		*target = verrs
		return true
	}
	return false
}
