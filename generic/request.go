/*
request.go - Pilot request model (leave, flight and leave-bid requests)

PURPOSE:
  A single Request type covers every kind of pilot request. What differs
  per kind lives in Details, a closed sum type: only the variants declared
  here implement it, so a type switch over Details sees every case.

REQUEST LIFECYCLE:
  ┌──────────────────────────────────────────────────────────────┐
  │                                                              │
  │  Submitted ──▶ PENDING ──approve──▶ APPROVED (terminal)      │
  │                   │                                          │
  │                   └────deny────▶ DENIED   (terminal)         │
  │                                                              │
  └──────────────────────────────────────────────────────────────┘

DERIVED FIELDS:
  DaysCount      inclusive span, End - Start + 1
  PeriodCode     roster period containing Start
  PriorityScore  recomputed whenever the approval queue is read
  Conflicts      advisory snapshot from submission; recomputed at approval

SEE ALSO:
  - conflict/detector.go: category-aware conflict rules
  - requests/service.go: lifecycle orchestration
*/
package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// DETAILS - Category-specific payload (sum type)
// =============================================================================

// Details is implemented only by the variants in this file.
type Details interface {
	Category() Category
	sealed()
}

// LeaveDetails describes an ordinary leave request.
type LeaveDetails struct {
	LeaveType string `json:"leave_type,omitempty"` // ANNUAL, SICK, COMPASSIONATE ...
	Reason    string `json:"reason,omitempty"`
}

// FlightDetails describes a request to be rostered on (or released for)
// specific flying.
type FlightDetails struct {
	FlightNumbers []string `json:"flight_numbers,omitempty"`
	Destination   string   `json:"destination,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}

// LeaveBidDetails is a leave bid placed for a future roster period.
type LeaveBidDetails struct {
	Preference int    `json:"preference,omitempty"` // 1 = first choice
	Reason     string `json:"reason,omitempty"`
}

func (LeaveDetails) Category() Category    { return CategoryLeave }
func (FlightDetails) Category() Category   { return CategoryFlight }
func (LeaveBidDetails) Category() Category { return CategoryLeaveBid }

func (LeaveDetails) sealed()    {}
func (FlightDetails) sealed()   {}
func (LeaveBidDetails) sealed() {}

// EmptyDetails returns the zero variant for a category.
func EmptyDetails(c Category) (Details, error) {
	switch c {
	case CategoryLeave:
		return LeaveDetails{}, nil
	case CategoryFlight:
		return FlightDetails{}, nil
	case CategoryLeaveBid:
		return LeaveBidDetails{}, nil
	}
	return nil, &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", c)}
}

// =============================================================================
// CANDIDATE - A request as submitted
// =============================================================================

// Candidate is what a pilot submits. Rank, seniority, period and score are
// derived by the request service from the crew roster and calendar.
type Candidate struct {
	PilotID PilotID
	Details Details
	Start   TimePoint
	End     TimePoint
}

func (c Candidate) Category() Category {
	if c.Details == nil {
		return ""
	}
	return c.Details.Category()
}

// =============================================================================
// REQUEST
// =============================================================================

type Request struct {
	ID        RequestID
	PilotID   PilotID
	Rank      Rank
	Seniority int

	Details Details

	Start      TimePoint
	End        TimePoint
	PeriodCode string

	Status        Status
	PriorityScore int
	Conflicts     []Conflict

	DecidedBy    string
	DecidedAt    *time.Time
	DenialReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Category is derived from the details variant.
func (r Request) Category() Category {
	if r.Details == nil {
		return ""
	}
	return r.Details.Category()
}

// Range returns the inclusive span of the request.
func (r Request) Range() DateRange {
	return DateRange{Start: r.Start, End: r.End}
}

// DaysCount is the inclusive day span.
func (r Request) DaysCount() int {
	return r.Range().DayCount()
}

// SameSubmission reports whether two requests are the identical
// (pilot, category, start, end) tuple.
func (r Request) SameSubmission(other Request) bool {
	return r.PilotID == other.PilotID &&
		r.Category() == other.Category() &&
		r.Start.Equal(other.Start) &&
		r.End.Equal(other.End)
}

// MaxRequestDays caps the inclusive span of one request at a leap year.
// Validation, period expansion and conflict scans all walk the span day by
// day.
const MaxRequestDays = 366

// Validate checks the fields every request must carry before it reaches
// the calendar, scorer or detector.
func (r Request) Validate() error {
	if r.PilotID == "" {
		return &ValidationError{Field: "pilot_id", Reason: "required"}
	}
	if !r.Rank.Valid() {
		return &ValidationError{Field: "rank", Reason: fmt.Sprintf("unknown rank %q", r.Rank)}
	}
	if r.Details == nil {
		return &ValidationError{Field: "category", Reason: "required"}
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return &ValidationError{Field: "start_date", Reason: "start and end dates are required"}
	}
	if r.End.Before(r.Start) {
		return &ValidationError{Field: "end_date", Reason: "end date before start date"}
	}
	if r.DaysCount() > MaxRequestDays {
		return &ValidationError{Field: "end_date", Reason: fmt.Sprintf("span exceeds %d days", MaxRequestDays)}
	}
	if r.Seniority < 1 {
		return &ValidationError{Field: "seniority", Reason: "must be positive"}
	}
	return nil
}
