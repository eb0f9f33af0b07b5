// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model of the counsel engine:
// domains, goals, goal edges, priority scores, conflicts, strategy decisions,
// crisis flags, and the error taxonomy. All enum types follow the same
// pattern: an int type with String() and a fail-safe Parse helper that maps
// unknown input to the safest value rather than failing.
//
// Thread Safety: all types in this package are plain values. None carry
// internal synchronization; callers must not share mutable instances across
// goroutines without their own coordination. The engine itself treats every
// instance as immutable once constructed.
package datatypes

import "fmt"

// =============================================================================
// Domain
// =============================================================================

// Domain identifies one fixed life area handled by a dedicated specialist
// worker. The enumeration is closed: domains are not created or destroyed at
// runtime, and aggregation order throughout the engine is the order of this
// enumeration.
type Domain int

const (
	DomainCareer Domain = iota
	DomainRelationship
	DomainFinance
	DomainWellness

	// domainCount is the number of valid domains. Keep last.
	domainCount
)

// AllDomains returns every domain in enumeration order. The returned slice
// is freshly allocated; callers may modify it.
func AllDomains() []Domain {
	out := make([]Domain, 0, int(domainCount))
	for d := Domain(0); d < domainCount; d++ {
		out = append(out, d)
	}
	return out
}

// Valid reports whether d is a member of the closed domain enumeration.
func (d Domain) Valid() bool {
	return d >= 0 && d < domainCount
}

// String returns the canonical lowercase name of the domain.
func (d Domain) String() string {
	switch d {
	case DomainCareer:
		return "career"
	case DomainRelationship:
		return "relationship"
	case DomainFinance:
		return "finance"
	case DomainWellness:
		return "wellness"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// ParseDomain converts a canonical domain name to its enum value.
//
// Outputs:
//   - Domain: the parsed domain; DomainCareer when ok is false.
//   - bool: false when the name is not a member of the enumeration.
func ParseDomain(name string) (Domain, bool) {
	switch name {
	case "career":
		return DomainCareer, true
	case "relationship":
		return DomainRelationship, true
	case "finance":
		return DomainFinance, true
	case "wellness":
		return DomainWellness, true
	default:
		return DomainCareer, false
	}
}

// =============================================================================
// Strategy
// =============================================================================

// Strategy is the dispatch mode chosen for a request.
type Strategy int

const (
	// StrategyDirect answers without invoking any domain worker.
	StrategyDirect Strategy = iota

	// StrategySingleSpecialist invokes exactly one domain worker.
	StrategySingleSpecialist

	// StrategyParallel invokes all candidate workers concurrently.
	StrategyParallel

	// StrategySequential invokes workers one at a time in priority order,
	// feeding each worker's output forward as context to the next.
	StrategySequential

	// StrategyFullOrchestration runs the full goal pipeline (graph, ranking,
	// conflict resolution) and then phased sub-dispatches.
	StrategyFullOrchestration
)

// String returns the canonical name of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategySingleSpecialist:
		return "single_specialist"
	case StrategyParallel:
		return "parallel"
	case StrategySequential:
		return "sequential"
	case StrategyFullOrchestration:
		return "full_orchestration"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// =============================================================================
// Crisis
// =============================================================================

// CrisisCategory classifies the kind of crisis signal found in request text.
type CrisisCategory int

const (
	CrisisNone CrisisCategory = iota
	CrisisMentalHealth
	CrisisAbuse
	CrisisLegalEmergency
	CrisisMedicalEmergency
)

// String returns the canonical name of the crisis category.
func (c CrisisCategory) String() string {
	switch c {
	case CrisisNone:
		return "none"
	case CrisisMentalHealth:
		return "mental_health"
	case CrisisAbuse:
		return "abuse"
	case CrisisLegalEmergency:
		return "legal_emergency"
	case CrisisMedicalEmergency:
		return "medical_emergency"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// ParseCrisisCategory converts a lexicon category name to its enum value.
// Unknown names map to CrisisMentalHealth — the guard must bias toward
// escalation, so a misspelled category in the lexicon still escalates.
func ParseCrisisCategory(name string) (CrisisCategory, bool) {
	switch name {
	case "none":
		return CrisisNone, true
	case "mental_health":
		return CrisisMentalHealth, true
	case "abuse":
		return CrisisAbuse, true
	case "legal_emergency":
		return CrisisLegalEmergency, true
	case "medical_emergency":
		return CrisisMedicalEmergency, true
	default:
		return CrisisMentalHealth, false
	}
}

// CrisisTier is the severity tier of a crisis lexicon match.
// Ordering matters: higher values take precedence over lower ones.
type CrisisTier int

const (
	TierNone CrisisTier = iota
	TierModerate
	TierHigh
	TierCritical
)

// String returns the canonical name of the tier.
func (t CrisisTier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierModerate:
		return "moderate"
	case TierHigh:
		return "high"
	case TierCritical:
		return "critical"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ParseCrisisTier converts a lexicon tier name to its enum value. Unknown
// tier names map to TierCritical (fail toward escalation).
func ParseCrisisTier(name string) (CrisisTier, bool) {
	switch name {
	case "moderate":
		return TierModerate, true
	case "high":
		return TierHigh, true
	case "critical":
		return TierCritical, true
	default:
		return TierCritical, false
	}
}

// CrisisFlag is the result of the escalation guard's lexicon scan. When
// Category is not CrisisNone the rest of the pipeline is skipped and a fixed
// referral response is returned.
type CrisisFlag struct {
	Category CrisisCategory
	Tier     CrisisTier

	// MatchedPhrase is the lexicon phrase that fired, for audit logging.
	// Never echoed back to the user.
	MatchedPhrase string
}

// Triggered reports whether the guard found any crisis signal.
func (f CrisisFlag) Triggered() bool {
	return f.Category != CrisisNone
}

// CrisisContact is one entry of the fixed crisis-resource directory.
type CrisisContact struct {
	Name         string
	Contact      string
	Availability string
}

// Referral is the fixed, non-negotiable response returned on a crisis
// override. Contact identifiers are hard configuration, never model output.
type Referral struct {
	Category CrisisCategory
	Message  string
	Contacts []CrisisContact
}

// =============================================================================
// Request / Goal / Edge
// =============================================================================

// Request is the immutable input to one orchestration cycle. It is created
// per incoming query, never mutated, and discarded once a Response has been
// produced.
type Request struct {
	ID          string
	UserID      string
	Text        string
	ContextRefs []string
}

// Goal is one extracted unit of user intent. The five factor scores are
// integers in [1,10]; they are set by goal extraction and never mutated
// afterward except by explicit re-scoring on a follow-up turn.
//
// Validator tags cover the structural contract; ValidateGoal enforces them
// plus the enum-membership check the tags cannot express.
type Goal struct {
	ID     string `json:"id" validate:"required"`
	Title  string `json:"title" validate:"required"`
	Domain Domain `json:"-"`

	Urgency              int `json:"urgency" validate:"min=1,max=10"`
	Impact               int `json:"impact" validate:"min=1,max=10"`
	Preference           int `json:"preference" validate:"min=1,max=10"`
	DependencyWeight     int `json:"dependency_weight" validate:"min=1,max=10"`
	ResourceAvailability int `json:"resource_availability" validate:"min=1,max=10"`

	// ResourceTags name the limited resources this goal competes for
	// (e.g. "time", "money", "energy"). Supplied by extraction; preserved
	// verbatim so new resources need no code change.
	ResourceTags []string `json:"resource_tags,omitempty"`
}

// EdgeType is the relation type of a directed goal edge.
type EdgeType int

const (
	EdgeEnables EdgeType = iota
	EdgeRequires
	EdgeConflicts
	EdgeSupports
)

// String returns the canonical name of the edge type.
func (t EdgeType) String() string {
	switch t {
	case EdgeEnables:
		return "enables"
	case EdgeRequires:
		return "requires"
	case EdgeConflicts:
		return "conflicts"
	case EdgeSupports:
		return "supports"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ParseEdgeType converts an edge type name to its enum value.
func ParseEdgeType(name string) (EdgeType, bool) {
	switch name {
	case "enables":
		return EdgeEnables, true
	case "requires":
		return EdgeRequires, true
	case "conflicts":
		return EdgeConflicts, true
	case "supports":
		return EdgeSupports, true
	default:
		return EdgeEnables, false
	}
}

// Edge is a directed, typed relation between two goal ids. A `conflicts`
// edge is symmetric in effect even though it is stored directed.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Type EdgeType `json:"-"`
}

// =============================================================================
// PriorityScore
// =============================================================================

// PriorityCategory is the band a priority score falls into.
type PriorityCategory int

const (
	PriorityLow PriorityCategory = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the canonical name of the priority category.
func (c PriorityCategory) String() string {
	switch c {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// PriorityScore is a derived, read-only value attached to a goal. It is
// always recomputed from the goal's factors, never cached across factor
// mutation.
type PriorityScore struct {
	Value    float64
	Category PriorityCategory
}

// =============================================================================
// Conflict / Resolution
// =============================================================================

// ConflictKind distinguishes user- or edge-marked conflicts from those
// inferred by resource contention.
type ConflictKind int

const (
	ConflictExplicit ConflictKind = iota
	ConflictImplicit
)

// String returns the canonical name of the conflict kind.
func (k ConflictKind) String() string {
	switch k {
	case ConflictExplicit:
		return "explicit"
	case ConflictImplicit:
		return "implicit"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ConflictSeverity encodes how hard a conflict is to resolve. A large score
// gap means one goal clearly dominates, so the conflict is LOW severity; a
// near tie is HIGH severity because neither goal obviously wins.
type ConflictSeverity int

const (
	SeverityLow ConflictSeverity = iota
	SeverityMedium
	SeverityHigh
)

// String returns the canonical name of the severity.
func (s ConflictSeverity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Conflict pairs two goals competing for the same resource. Ephemeral:
// recomputed per orchestration cycle, never persisted.
type Conflict struct {
	GoalA string
	GoalB string
	Kind  ConflictKind

	Severity ConflictSeverity

	// ScoreGap is |scoreA - scoreB| at detection time.
	ScoreGap float64

	// Resource is the shared resource tag for implicit conflicts; empty for
	// explicit ones.
	Resource string
}

// ResolutionKind is the policy chosen for a detected conflict.
type ResolutionKind int

const (
	// ResolutionDefer proceeds with the higher-scored goal and defers the
	// other with an explicit note. Applied automatically for low severity.
	ResolutionDefer ResolutionKind = iota

	// ResolutionPhased proposes higher-first-then-transition phasing.
	// Requires caller confirmation before dispatch proceeds.
	ResolutionPhased

	// ResolutionUserChoice returns the tie to the caller as an open choice.
	// The dispatcher must not silently pick a side.
	ResolutionUserChoice
)

// String returns the canonical name of the resolution kind.
func (k ResolutionKind) String() string {
	switch k {
	case ResolutionDefer:
		return "defer"
	case ResolutionPhased:
		return "phased"
	case ResolutionUserChoice:
		return "user_choice"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ResolutionOption is one side of an open user choice, with enough context
// for the caller to present the trade-off.
type ResolutionOption struct {
	GoalID   string
	Score    float64
	TradeOff string
}

// Resolution is the resolver's proposal for one conflict.
type Resolution struct {
	Conflict Conflict
	Kind     ResolutionKind

	// First and Deferred are set for defer and phased resolutions.
	First    string
	Deferred string

	// Note explains the proposal in caller-facing terms.
	Note string

	// Options carries both sides of a user-choice resolution.
	Options []ResolutionOption

	// NeedsConfirmation is true when dispatch must wait for the caller
	// (phased plans and open choices).
	NeedsConfirmation bool
}

// =============================================================================
// StrategyDecision / Signals
// =============================================================================

// Signals are the boolean complexity inputs derived from request text by the
// signal detector but consumed as plain values by the scorer.
type Signals struct {
	DeepAnalysisRequested bool
	CrossDomainDependency bool
	ConflictPossible      bool
	UserUncertain         bool
}

// StrategyDecision is the outcome of strategy selection: the dispatch mode
// plus the ordered list of domains to invoke. Immutable once produced.
type StrategyDecision struct {
	Strategy        Strategy
	Domains         []Domain
	ComplexityScore int

	// Reason is a short operator-facing explanation of the choice.
	Reason string
}

// =============================================================================
// Worker I/O
// =============================================================================

// WorkerResult is the structured output of one domain worker invocation.
type WorkerResult struct {
	Domain          Domain
	Summary         string
	Recommendations []string
	SavedReferences []string
}

// DroppedGoal records a goal discarded during validation, with the reason,
// so the caller can see what was ignored rather than silently losing it.
type DroppedGoal struct {
	GoalID string
	Reason string
}

// Response is the aggregate outcome of one orchestration cycle. Every path
// through the engine — crisis override, validation failure, partial worker
// failure — produces a structured Response, never a bare error.
type Response struct {
	RequestID string
	Strategy  Strategy

	// Crisis and Referral are set when the escalation guard fired; all other
	// fields except RequestID are zero in that case.
	Crisis   *CrisisFlag
	Referral *Referral

	// Answer is the direct-path answer when no worker was invoked.
	Answer string

	// Results holds worker outputs in domain-enumeration order regardless of
	// completion order.
	Results []WorkerResult

	// Failures marks workers that failed or timed out. Partial is true when
	// at least one failure occurred but other results are present.
	Failures []WorkerFailure
	Partial  bool

	Conflicts   []Conflict
	Resolutions []Resolution

	// OpenChoices are high-severity conflicts the engine refuses to resolve;
	// the caller owns the decision.
	OpenChoices []Resolution

	// PendingPlans are phased plans awaiting caller confirmation. The goals
	// they cover were withheld from dispatch this cycle; confirming the plan
	// lets the next cycle proceed with it.
	PendingPlans []Resolution

	// Phases is the executed phase plan for full orchestration.
	Phases [][]Domain

	DroppedGoals []DroppedGoal
}
