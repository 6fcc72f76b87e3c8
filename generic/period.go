package generic

import "fmt"

// =============================================================================
// DATE RANGE - Inclusive span of calendar days
// =============================================================================

// DateRange is an inclusive [Start, End] span of days.
type DateRange struct {
	Start TimePoint
	End   TimePoint
}

// NewDateRange rejects ranges that end before they start.
func NewDateRange(start, end TimePoint) (DateRange, error) {
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("%w: %s to %s", ErrInvalidRange, start, end)
	}
	return DateRange{Start: start, End: end}, nil
}

// Contains returns true if the time point is within [Start, End].
func (r DateRange) Contains(t TimePoint) bool {
	return t.AfterOrEqual(r.Start) && t.BeforeOrEqual(r.End)
}

// Overlaps returns true if the two inclusive ranges share at least one day.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(r.End)
}

// DayCount is the inclusive length: End - Start + 1.
func (r DateRange) DayCount() int {
	return DaysBetween(r.Start, r.End) + 1
}

// Days returns all days in the range as a slice of TimePoints.
func (r DateRange) Days() []TimePoint {
	days := make([]TimePoint, 0, r.DayCount())
	for current := r.Start; current.BeforeOrEqual(r.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}

// =============================================================================
// ROSTER PERIOD - A fixed scheduling window
// =============================================================================

// PeriodStatus is the publication lifecycle of a roster period.
// Transitions only move forward: OPEN -> LOCKED -> PUBLISHED -> ARCHIVED.
type PeriodStatus string

const (
	PeriodOpen      PeriodStatus = "OPEN"
	PeriodLocked    PeriodStatus = "LOCKED"
	PeriodPublished PeriodStatus = "PUBLISHED"
	PeriodArchived  PeriodStatus = "ARCHIVED"
)

var periodStatusOrder = map[PeriodStatus]int{
	PeriodOpen:      0,
	PeriodLocked:    1,
	PeriodPublished: 2,
	PeriodArchived:  3,
}

// Valid reports whether s is a known status.
func (s PeriodStatus) Valid() bool {
	_, ok := periodStatusOrder[s]
	return ok
}

// CanTransitionTo allows only a move to a strictly later status.
func (s PeriodStatus) CanTransitionTo(next PeriodStatus) bool {
	from, ok := periodStatusOrder[s]
	if !ok {
		return false
	}
	to, ok := periodStatusOrder[next]
	return ok && to > from
}

// RosterPeriod is one 28-day window. Boundaries are derived from the
// calendar anchor; persisted copies are a cache plus the status.
type RosterPeriod struct {
	Code     string
	Sequence int
	Year     int
	Start    TimePoint
	End      TimePoint
	Deadline TimePoint
	Status   PeriodStatus
}

// Range returns the inclusive span of the period.
func (p RosterPeriod) Range() DateRange {
	return DateRange{Start: p.Start, End: p.End}
}

// Contains returns true if the date falls inside the period.
func (p RosterPeriod) Contains(t TimePoint) bool {
	return p.Range().Contains(t)
}

// DaysUntilDeadline is deadline - today; negative once the deadline passed.
func (p RosterPeriod) DaysUntilDeadline(today TimePoint) int {
	return DaysBetween(today, p.Deadline)
}
