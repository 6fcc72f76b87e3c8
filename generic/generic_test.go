/*
generic_test.go - Behaviour tests for the shared rostering types

PURPOSE:
  Pins down the small pieces every other package leans on: inclusive day
  arithmetic, floor division for dates before the anchor, the forward-only
  period lifecycle, request validation and error classification.

READING THESE TESTS:
  Each test has GIVEN/WHEN/THEN comments explaining the scenario.
*/
package generic_test

import (
	"errors"
	"testing"
	"time"

	"github.com/warp/crew-roster/generic"
)

func date(s string) generic.TimePoint {
	return generic.MustParseDate(s)
}

// =============================================================================
// DAYS AND RANGES
// =============================================================================

func TestDateRange_DayCountIsInclusive(t *testing.T) {
	// GIVEN: a request from the 10th to the 15th
	r := generic.DateRange{Start: date("2026-01-10"), End: date("2026-01-15")}

	// THEN: both ends count
	if got := r.DayCount(); got != 6 {
		t.Errorf("expected 6 days, got %d", got)
	}
	if got := len(r.Days()); got != 6 {
		t.Errorf("expected 6 enumerated days, got %d", got)
	}

	single := generic.DateRange{Start: date("2026-01-10"), End: date("2026-01-10")}
	if single.DayCount() != 1 {
		t.Errorf("single-day range should count 1 day, got %d", single.DayCount())
	}
}

func TestDateRange_Overlaps(t *testing.T) {
	a := generic.DateRange{Start: date("2026-01-10"), End: date("2026-01-15")}

	cases := []struct {
		name string
		b    generic.DateRange
		want bool
	}{
		{"partial", generic.DateRange{Start: date("2026-01-12"), End: date("2026-01-20")}, true},
		{"touching end", generic.DateRange{Start: date("2026-01-15"), End: date("2026-01-16")}, true},
		{"day after", generic.DateRange{Start: date("2026-01-16"), End: date("2026-01-20")}, false},
		{"day before", generic.DateRange{Start: date("2026-01-01"), End: date("2026-01-09")}, false},
		{"enclosing", generic.DateRange{Start: date("2026-01-01"), End: date("2026-01-31")}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := a.Overlaps(tc.b); got != tc.want {
				t.Errorf("Overlaps(%s, %s) = %v, want %v", a, tc.b, got, tc.want)
			}
			if got := tc.b.Overlaps(a); got != tc.want {
				t.Errorf("overlap should be symmetric for %s", tc.b)
			}
		})
	}
}

func TestNewDateRange_RejectsReversedRange(t *testing.T) {
	_, err := generic.NewDateRange(date("2026-01-15"), date("2026-01-10"))
	if !errors.Is(err, generic.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if !generic.IsClientError(err) {
		t.Errorf("reversed range should classify as a client error")
	}
}

func TestDaysBetween_AcrossDST(t *testing.T) {
	// Dates are UTC midnights so DST never produces a 23h "day".
	if got := generic.DaysBetween(date("2026-03-01"), date("2026-04-01")); got != 31 {
		t.Errorf("expected 31, got %d", got)
	}
	if got := generic.DaysBetween(date("2025-12-06"), date("2025-11-15")); got != -21 {
		t.Errorf("expected -21, got %d", got)
	}
}

func TestDaysBetween_Centuries(t *testing.T) {
	// 400 Gregorian years are exactly 146097 days.
	cases := []struct {
		from, to string
		want     int
	}{
		{"1700-01-01", "2100-01-01", 146097},
		{"2100-01-01", "1700-01-01", -146097},
		{"0001-01-01", "9999-12-31", 3652058},
	}
	for _, tc := range cases {
		if got := generic.DaysBetween(date(tc.from), date(tc.to)); got != tc.want {
			t.Errorf("DaysBetween(%s, %s) = %d, want %d", tc.from, tc.to, got, tc.want)
		}
	}

	r := generic.DateRange{Start: date("1700-01-01"), End: date("2100-01-01")}
	if got := r.DayCount(); got != 146098 {
		t.Errorf("expected 146098 days, got %d", got)
	}
}

func TestFloorDiv_NegativeOffsets(t *testing.T) {
	cases := []struct{ a, b, div, mod int }{
		{0, 28, 0, 0},
		{27, 28, 0, 27},
		{28, 28, 1, 0},
		{-1, 28, -1, 27},
		{-28, 28, -1, 0},
		{-29, 28, -2, 27},
	}
	for _, tc := range cases {
		if got := generic.FloorDiv(tc.a, tc.b); got != tc.div {
			t.Errorf("FloorDiv(%d, %d) = %d, want %d", tc.a, tc.b, got, tc.div)
		}
		if got := generic.FloorMod(tc.a, tc.b); got != tc.mod {
			t.Errorf("FloorMod(%d, %d) = %d, want %d", tc.a, tc.b, got, tc.mod)
		}
	}
}

func TestParseDate(t *testing.T) {
	tp, err := generic.ParseDate("2025-12-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp.Year() != 2025 || tp.Month() != time.December || tp.Day() != 6 {
		t.Errorf("parsed wrong date: %s", tp)
	}

	_, err = generic.ParseDate("06/12/2025")
	var ve *generic.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != "date" {
		t.Errorf("expected field 'date', got %q", ve.Field)
	}
}

// =============================================================================
// PERIOD LIFECYCLE
// =============================================================================

func TestPeriodStatus_ForwardOnly(t *testing.T) {
	// GIVEN: the linear lifecycle OPEN -> LOCKED -> PUBLISHED -> ARCHIVED
	if !generic.PeriodOpen.CanTransitionTo(generic.PeriodLocked) {
		t.Error("OPEN -> LOCKED should be allowed")
	}
	if !generic.PeriodOpen.CanTransitionTo(generic.PeriodArchived) {
		t.Error("skipping forward should be allowed")
	}

	// THEN: nothing moves backwards or stays put
	if generic.PeriodPublished.CanTransitionTo(generic.PeriodLocked) {
		t.Error("PUBLISHED -> LOCKED must be rejected")
	}
	if generic.PeriodLocked.CanTransitionTo(generic.PeriodLocked) {
		t.Error("self transition must be rejected")
	}
	if generic.PeriodStatus("DRAFT").CanTransitionTo(generic.PeriodOpen) {
		t.Error("unknown status must be rejected")
	}
}

func TestRosterPeriod_DaysUntilDeadline(t *testing.T) {
	p := generic.RosterPeriod{
		Code:     "RP01/2026",
		Start:    date("2025-12-06"),
		End:      date("2026-01-02"),
		Deadline: date("2025-11-15"),
	}

	if got := p.DaysUntilDeadline(date("2025-11-20")); got != -5 {
		t.Errorf("expected -5 after the deadline, got %d", got)
	}
	if got := p.DaysUntilDeadline(date("2025-10-25")); got != 21 {
		t.Errorf("expected 21, got %d", got)
	}
	if !p.Contains(date("2026-01-01")) {
		t.Error("period spanning the new year should contain Jan 1")
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

func validRequest() generic.Request {
	return generic.Request{
		PilotID:   "P-001",
		Rank:      generic.RankCaptain,
		Seniority: 3,
		Details:   generic.LeaveDetails{LeaveType: "ANNUAL"},
		Start:     date("2026-01-10"),
		End:       date("2026-01-15"),
		Status:    generic.StatusPending,
	}
}

func TestRequest_CategoryFollowsDetails(t *testing.T) {
	r := validRequest()
	if r.Category() != generic.CategoryLeave {
		t.Errorf("expected LEAVE, got %s", r.Category())
	}

	r.Details = generic.FlightDetails{FlightNumbers: []string{"WR101"}}
	if r.Category() != generic.CategoryFlight {
		t.Errorf("expected FLIGHT, got %s", r.Category())
	}

	r.Details = generic.LeaveBidDetails{Preference: 1}
	if r.Category() != generic.CategoryLeaveBid {
		t.Errorf("expected LEAVE_BID, got %s", r.Category())
	}
}

func TestRequest_Validate(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(*generic.Request)
		field string
	}{
		{"missing pilot", func(r *generic.Request) { r.PilotID = "" }, "pilot_id"},
		{"unknown rank", func(r *generic.Request) { r.Rank = "PURSER" }, "rank"},
		{"no details", func(r *generic.Request) { r.Details = nil }, "category"},
		{"reversed dates", func(r *generic.Request) { r.End = date("2026-01-01") }, "end_date"},
		{"zero seniority", func(r *generic.Request) { r.Seniority = 0 }, "seniority"},
		{"span over a year", func(r *generic.Request) { r.End = r.Start.AddDays(generic.MaxRequestDays) }, "end_date"},
	}

	if err := validRequest().Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRequest()
			tc.mut(&r)
			err := r.Validate()

			var ve *generic.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, ve.Field)
			}
			if !errors.Is(err, generic.ErrValidation) {
				t.Errorf("ValidationError should unwrap to ErrValidation")
			}
		})
	}
}

func TestRequest_SameSubmission(t *testing.T) {
	a := validRequest()
	b := validRequest()
	b.ID = "other"
	b.Details = generic.LeaveDetails{LeaveType: "SICK"}

	if !a.SameSubmission(b) {
		t.Error("same pilot, category and dates should be the same submission")
	}

	b.Details = generic.FlightDetails{}
	if a.SameSubmission(b) {
		t.Error("different category is not a duplicate")
	}
}

func TestParseRank(t *testing.T) {
	for _, in := range []string{"CAPTAIN", "Captain", "CPT"} {
		if r, err := generic.ParseRank(in); err != nil || r != generic.RankCaptain {
			t.Errorf("ParseRank(%q) = %v, %v", in, r, err)
		}
	}
	if r, err := generic.ParseRank("FO"); err != nil || r != generic.RankFirstOfficer {
		t.Errorf("ParseRank(FO) = %v, %v", r, err)
	}
	if _, err := generic.ParseRank("PURSER"); !generic.IsClientError(err) {
		t.Errorf("unknown rank should be a client error, got %v", err)
	}
}

// =============================================================================
// ERRORS
// =============================================================================

func TestErrorClassification(t *testing.T) {
	conflictErr := &generic.ConflictError{
		RequestID: "R-1",
		Conflicts: []generic.Conflict{{Type: generic.ConflictOverlap, Severity: generic.SeverityCritical, Message: "overlaps R-0"}},
	}
	if !errors.Is(conflictErr, generic.ErrConflictBlocked) {
		t.Error("ConflictError should unwrap to ErrConflictBlocked")
	}
	if !generic.IsClientError(conflictErr) {
		t.Error("ConflictError should be a client error")
	}

	nf := &generic.NotFoundError{Kind: "request", Key: "R-404"}
	if !generic.IsNotFound(nf) || generic.IsClientError(nf) {
		t.Error("NotFoundError should only classify as not found")
	}

	te := &generic.TransitionError{Subject: "request", ID: "R-1", From: "APPROVED", To: "DENIED"}
	if !errors.Is(te, generic.ErrInvalidTransition) {
		t.Error("TransitionError should unwrap to ErrInvalidTransition")
	}

	if !generic.IsRetryable(errors.Join(errors.New("timeout"), generic.ErrAlertDelivery)) {
		t.Error("delivery failures are retryable")
	}
}

func TestSeverity_AtLeast(t *testing.T) {
	if !generic.SeverityCritical.AtLeast(generic.SeverityHigh) {
		t.Error("CRITICAL >= HIGH")
	}
	if generic.SeverityLow.AtLeast(generic.SeverityMedium) {
		t.Error("LOW < MEDIUM")
	}
	if !generic.HasCritical([]generic.Conflict{{Severity: generic.SeverityLow}, {Severity: generic.SeverityCritical}}) {
		t.Error("HasCritical should find the CRITICAL entry")
	}
}
