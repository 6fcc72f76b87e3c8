/*
Package generic provides the core crew rostering types.

PURPOSE:
  This package holds the shared vocabulary of the engine: calendar days,
  roster periods, pilots, requests and conflicts. Every other package
  (roster, priority, conflict, alerts, requests, store, api) speaks in these
  types, so they stay free of persistence and transport concerns.

KEY CONCEPTS IN THIS FILE (types.go):
  - Rank: Captain / First Officer cohort
  - Category: LEAVE, FLIGHT or LEAVE_BID
  - Status: PENDING -> APPROVED | DENIED (terminal once decided)
  - Pilot: roster membership with seniority (lower = more senior)
  - Conflict: advisory scheduling problem attached to a request

DESIGN PRINCIPLES:
  1. Whole days only: TimePoint is a date, ranges are inclusive
  2. Explicit variants: request details are a closed sum type (request.go)
  3. Derived data is recomputed: priority scores and conflict flags are
     refreshed on every read used for approval ordering

SEE ALSO:
  - request.go: Request and the Details sum type
  - period.go: DateRange and RosterPeriod
  - store.go: Persistence interfaces
*/
package generic

import "fmt"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PilotID string
type RequestID string

// =============================================================================
// RANK - Crew cohort
// =============================================================================

type Rank string

const (
	RankCaptain      Rank = "CAPTAIN"
	RankFirstOfficer Rank = "FIRST_OFFICER"
)

// Ranks lists every cohort in display order.
var Ranks = []Rank{RankCaptain, RankFirstOfficer}

func (r Rank) Valid() bool {
	return r == RankCaptain || r == RankFirstOfficer
}

// ParseRank accepts the canonical names plus the common short forms.
func ParseRank(s string) (Rank, error) {
	switch s {
	case "CAPTAIN", "Captain", "captain", "CPT":
		return RankCaptain, nil
	case "FIRST_OFFICER", "First Officer", "first_officer", "FO":
		return RankFirstOfficer, nil
	}
	return "", &ValidationError{Field: "rank", Reason: fmt.Sprintf("unknown rank %q", s)}
}

// =============================================================================
// CATEGORY AND WORKFLOW STATUS
// =============================================================================

type Category string

const (
	CategoryLeave    Category = "LEAVE"
	CategoryFlight   Category = "FLIGHT"
	CategoryLeaveBid Category = "LEAVE_BID"
)

func (c Category) Valid() bool {
	return c == CategoryLeave || c == CategoryFlight || c == CategoryLeaveBid
}

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
)

// Terminal reports whether the request has been decided.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// Active reports whether the request holds (or may hold) the pilot's days.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// =============================================================================
// PILOT - Crew roster entry
// =============================================================================

type Pilot struct {
	ID        PilotID
	Name      string
	Email     string
	Rank      Rank
	Seniority int // lower = more senior; duplicates are possible
	Active    bool
}

// =============================================================================
// CONFLICT - Advisory scheduling problem
// =============================================================================

type ConflictType string

const (
	ConflictOverlap      ConflictType = "OVERLAP"
	ConflictDuplicate    ConflictType = "DUPLICATE"
	ConflictAvailability ConflictType = "AVAILABILITY_THRESHOLD"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityWeight = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast compares severities by escalation order.
func (s Severity) AtLeast(other Severity) bool {
	return severityWeight[s] >= severityWeight[other]
}

// Conflict is one detected problem with a candidate request.
type Conflict struct {
	Type      ConflictType
	Severity  Severity
	Message   string
	RelatedID RequestID  // the sibling request involved, if any
	Date      *TimePoint // worst day for availability conflicts
	Blocking  bool       // blocks submission rather than merely warning
}

// HasCritical reports whether any conflict is CRITICAL.
func HasCritical(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
