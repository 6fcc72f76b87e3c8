/*
store.go - Persistence interfaces for requests, crew, periods and alerts

PURPOSE:
  Defines the interface between the rostering logic and the database.
  The core never persists anything itself: the request service, the
  conflict detector and the alert engine compute over data handed to
  them through these interfaces. SQLite, PostgreSQL and in-memory
  implementations live under store/.

KEY INTERFACES:
  RequestStore: Pilot requests (create, status update, filtered reads)
  PilotStore:   Crew roster records
  CrewRoster:   Read-only crew size lookup used by the conflict detector
  PeriodStore:  Roster period status overrides (boundaries are derived)
  AlertStore:   Fired milestone markers and the delivery log
  TxStore:      All of the above plus WithTx for check-then-write

PERIODS ARE DERIVED:
  Period boundaries come from the roster calendar. Only the status is
  stored; a period with no stored status is OPEN.

APPROVAL ATOMICITY:
  Approving a request re-runs conflict detection and flips the status
  inside WithTx, so two approvals that would jointly breach crew
  availability cannot both commit against the same snapshot.

IMPLEMENTATIONS:
  - store/memory: In-memory for tests and demos
  - store/sqlite: SQLite (mattn/go-sqlite3)
  - store/postgres: PostgreSQL (lib/pq)

SEE ALSO:
  - requests/service.go: Main consumer
  - alerts/engine.go: AlertStore consumer
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// REQUESTS
// =============================================================================

// RequestFilter narrows ListRequests. Zero values mean "any".
type RequestFilter struct {
	PilotID    PilotID
	Rank       Rank
	PeriodCode string
	Statuses   []Status
	Overlaps   *DateRange // requests whose span intersects this range
	StartYear  int        // requests whose start date falls in this year
}

// Matches applies the filter to a single request. Stores that filter in
// SQL use it only for the conditions they cannot express.
func (f RequestFilter) Matches(r Request) bool {
	if f.PilotID != "" && r.PilotID != f.PilotID {
		return false
	}
	if f.Rank != "" && r.Rank != f.Rank {
		return false
	}
	if f.PeriodCode != "" && r.PeriodCode != f.PeriodCode {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Overlaps != nil && !r.Range().Overlaps(*f.Overlaps) {
		return false
	}
	if f.StartYear != 0 && r.Start.Year() != f.StartYear {
		return false
	}
	return true
}

type RequestStore interface {
	// CreateRequest persists a new request. Returns ErrDuplicateSubmission
	// if the ID already exists.
	CreateRequest(ctx context.Context, r Request) error

	// UpdateRequest overwrites status, score, conflicts and decision fields.
	UpdateRequest(ctx context.Context, r Request) error

	// GetRequest returns a *NotFoundError when the ID is unknown.
	GetRequest(ctx context.Context, id RequestID) (Request, error)

	// ListRequests returns matches ordered by start date, then ID.
	ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error)
}

// =============================================================================
// CREW
// =============================================================================

type PilotStore interface {
	SavePilot(ctx context.Context, p Pilot) error
	GetPilot(ctx context.Context, id PilotID) (Pilot, error)
	// ListPilots returns pilots of the rank, or all pilots when rank is "".
	ListPilots(ctx context.Context, rank Rank) ([]Pilot, error)
}

// CrewRoster reports how many pilots of a rank are rostered over a span.
type CrewRoster interface {
	CrewSize(ctx context.Context, rank Rank, span DateRange) (int, error)
}

// =============================================================================
// PERIODS
// =============================================================================

type PeriodStore interface {
	// PeriodStatus returns the stored status, or (PeriodOpen, false) when
	// nothing has been recorded for the code.
	PeriodStatus(ctx context.Context, code string) (PeriodStatus, bool, error)
	SetPeriodStatus(ctx context.Context, code string, status PeriodStatus) error
}

// =============================================================================
// ALERTS
// =============================================================================

// DeliveryOutcome is the result reported by a notifier.
type DeliveryOutcome string

const (
	DeliveryDelivered DeliveryOutcome = "DELIVERED"
	DeliveryAccepted  DeliveryOutcome = "ACCEPTED" // attempted and logged by the collaborator
	DeliveryFailed    DeliveryOutcome = "FAILED"
)

// Advances reports whether the outcome may advance the fired marker.
func (o DeliveryOutcome) Advances() bool {
	return o == DeliveryDelivered || o == DeliveryAccepted
}

// DeliveryRecord is one row of the alert delivery log.
type DeliveryRecord struct {
	ID          string
	PeriodCode  string
	Milestone   int
	DaysUntil   int
	Outcome     DeliveryOutcome
	Detail      string
	Recipients  []string
	AttemptedAt time.Time
}

type AlertStore interface {
	// FiredMilestones returns milestone -> fired_at for the period.
	FiredMilestones(ctx context.Context, code string) (map[int]time.Time, error)
	// ClaimMilestone records (code, milestone) as fired at at. It reports
	// false when the pair was already recorded, so exactly one of several
	// concurrent callers wins.
	ClaimMilestone(ctx context.Context, code string, milestone int, at time.Time) (bool, error)
	// ReleaseMilestone drops a claim whose delivery failed.
	ReleaseMilestone(ctx context.Context, code string, milestone int) error

	LogDelivery(ctx context.Context, rec DeliveryRecord) error
	// ListDeliveries returns newest first; code "" means every period.
	ListDeliveries(ctx context.Context, code string, limit int) ([]DeliveryRecord, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

type Store interface {
	RequestStore
	PilotStore
	CrewRoster
	PeriodStore
	AlertStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
