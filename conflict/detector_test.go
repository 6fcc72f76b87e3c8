package conflict_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/crew-roster/conflict"
	"github.com/warp/crew-roster/generic"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

type staticCrew int

func (c staticCrew) CrewSize(context.Context, generic.Rank, generic.DateRange) (int, error) {
	return int(c), nil
}

type failingCrew struct{}

func (failingCrew) CrewSize(context.Context, generic.Rank, generic.DateRange) (int, error) {
	return 0, errors.New("roster service unavailable")
}

func d(s string) generic.TimePoint { return generic.MustParseDate(s) }

func leave(id, pilot, start, end string, status generic.Status) generic.Request {
	return generic.Request{
		ID:        generic.RequestID(id),
		PilotID:   generic.PilotID(pilot),
		Rank:      generic.RankCaptain,
		Seniority: 5,
		Details:   generic.LeaveDetails{LeaveType: "ANNUAL"},
		Start:     d(start),
		End:       d(end),
		Status:    status,
	}
}

func flight(id, pilot, start, end string, status generic.Status) generic.Request {
	r := leave(id, pilot, start, end, status)
	r.Details = generic.FlightDetails{FlightNumbers: []string{"WR100"}}
	return r
}

// noAvailability disables the crew check so tests can focus on overlaps.
func noAvailability() *conflict.Detector {
	return conflict.NewDetector(map[generic.Rank]int{generic.RankCaptain: 0, generic.RankFirstOfficer: 0}, zap.NewNop())
}

func ofType(res conflict.Result, t generic.ConflictType) []generic.Conflict {
	var out []generic.Conflict
	for _, c := range res.Conflicts {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// OVERLAP
// =============================================================================

func TestDetect_OverlapSamePilotOnly(t *testing.T) {
	// GIVEN: pilot X holds an approved leave 12-20 Jan
	det := noAvailability()
	existing := leave("R-1", "X", "2026-01-12", "2026-01-20", generic.StatusApproved)
	candidate := leave("", "X", "2026-01-10", "2026-01-15", generic.StatusPending)

	// WHEN: X asks for 10-15 Jan
	res := det.Detect(context.Background(), candidate, []generic.Request{existing}, staticCrew(50))

	// THEN: a CRITICAL overlap blocks approval
	overlaps := ofType(res, generic.ConflictOverlap)
	require.Len(t, overlaps, 1)
	assert.Equal(t, generic.SeverityCritical, overlaps[0].Severity)
	assert.Equal(t, generic.RequestID("R-1"), overlaps[0].RelatedID)
	assert.False(t, overlaps[0].Blocking, "overlaps warn at submission")
	assert.False(t, res.CanApprove)

	// AND: the same dates for pilot Y do not conflict with X's leave
	other := leave("", "Y", "2026-01-10", "2026-01-15", generic.StatusPending)
	res = det.Detect(context.Background(), other, []generic.Request{existing}, staticCrew(50))
	assert.Empty(t, res.Conflicts)
	assert.True(t, res.CanApprove)
}

func TestDetect_CrossCategoryOverlapIsHigh(t *testing.T) {
	det := noAvailability()
	existing := flight("R-1", "X", "2026-01-12", "2026-01-12", generic.StatusPending)
	candidate := leave("", "X", "2026-01-10", "2026-01-15", generic.StatusPending)

	res := det.Detect(context.Background(), candidate, []generic.Request{existing}, staticCrew(50))

	overlaps := ofType(res, generic.ConflictOverlap)
	require.Len(t, overlaps, 1)
	assert.Equal(t, generic.SeverityHigh, overlaps[0].Severity)
	assert.True(t, res.CanApprove, "HIGH conflicts warn but do not block approval")
}

func TestDetect_IgnoresDecidedAndNonOverlapping(t *testing.T) {
	det := noAvailability()
	siblings := []generic.Request{
		leave("R-1", "X", "2026-01-10", "2026-01-15", generic.StatusDenied),
		leave("R-2", "X", "2026-01-16", "2026-01-20", generic.StatusApproved),
		leave("R-3", "X", "2026-01-01", "2026-01-09", generic.StatusPending),
	}
	candidate := leave("", "X", "2026-01-10", "2026-01-15", generic.StatusPending)

	res := det.Detect(context.Background(), candidate, siblings, staticCrew(50))
	assert.Empty(t, res.Conflicts)
}

func TestDetect_SkipsCandidateItself(t *testing.T) {
	// At approval time the stored candidate is among the siblings.
	det := noAvailability()
	candidate := leave("R-9", "X", "2026-01-10", "2026-01-15", generic.StatusPending)

	res := det.Detect(context.Background(), candidate, []generic.Request{candidate}, staticCrew(50))
	assert.Empty(t, res.Conflicts)
	assert.True(t, res.CanApprove)
}

// =============================================================================
// DUPLICATE
// =============================================================================

func TestDetect_DuplicatePendingBlocks(t *testing.T) {
	det := noAvailability()
	existing := leave("R-1", "X", "2026-01-10", "2026-01-15", generic.StatusPending)
	candidate := leave("", "X", "2026-01-10", "2026-01-15", generic.StatusPending)

	res := det.Detect(context.Background(), candidate, []generic.Request{existing}, staticCrew(50))

	dups := ofType(res, generic.ConflictDuplicate)
	require.Len(t, dups, 1)
	assert.Equal(t, generic.SeverityCritical, dups[0].Severity)
	assert.True(t, dups[0].Blocking)
	assert.Empty(t, ofType(res, generic.ConflictOverlap), "the duplicate is not reported twice")
	assert.Len(t, res.Blocking(), 1)
}

func TestDetect_IdenticalApprovedIsOverlapNotDuplicate(t *testing.T) {
	det := noAvailability()
	existing := leave("R-1", "X", "2026-01-10", "2026-01-15", generic.StatusApproved)
	candidate := leave("", "X", "2026-01-10", "2026-01-15", generic.StatusPending)

	res := det.Detect(context.Background(), candidate, []generic.Request{existing}, staticCrew(50))

	assert.Empty(t, ofType(res, generic.ConflictDuplicate))
	require.Len(t, ofType(res, generic.ConflictOverlap), 1)
	assert.Empty(t, res.Blocking())
}

func TestDetect_DifferentCategorySameDatesIsNotDuplicate(t *testing.T) {
	det := noAvailability()
	existing := flight("R-1", "X", "2026-01-10", "2026-01-15", generic.StatusPending)
	candidate := leave("", "X", "2026-01-10", "2026-01-15", generic.StatusPending)

	res := det.Detect(context.Background(), candidate, []generic.Request{existing}, staticCrew(50))
	assert.Empty(t, ofType(res, generic.ConflictDuplicate))
}

// =============================================================================
// CREW AVAILABILITY
// =============================================================================

func TestDetect_AvailabilityWorstDay(t *testing.T) {
	// GIVEN: 12 captains, minimum 10, two others away on the 12th
	det := conflict.NewDetector(map[generic.Rank]int{generic.RankCaptain: 10}, zap.NewNop())
	siblings := []generic.Request{
		leave("R-1", "A", "2026-01-12", "2026-01-13", generic.StatusApproved),
		leave("R-2", "B", "2026-01-12", "2026-01-12", generic.StatusPending),
		// Same pilot twice only counts once.
		flight("R-3", "B", "2026-01-12", "2026-01-12", generic.StatusPending),
		// A first officer does not reduce captain availability.
		func() generic.Request {
			r := leave("R-4", "F", "2026-01-10", "2026-01-15", generic.StatusApproved)
			r.Rank = generic.RankFirstOfficer
			return r
		}(),
	}
	candidate := leave("", "X", "2026-01-10", "2026-01-15", generic.StatusPending)

	// WHEN
	res := det.Detect(context.Background(), candidate, siblings, staticCrew(12))

	// THEN: on the 12th three captains are away, leaving 9 of 10
	avail := ofType(res, generic.ConflictAvailability)
	require.Len(t, avail, 1)
	assert.Equal(t, generic.SeverityLow, avail[0].Severity)
	require.NotNil(t, avail[0].Date)
	assert.Equal(t, "2026-01-12", avail[0].Date.String())

	assert.True(t, res.CrewImpact.Checked)
	assert.Equal(t, 12, res.CrewImpact.CrewSize)
	assert.Equal(t, 3, res.CrewImpact.PeakAway)
	assert.Equal(t, 9, res.CrewImpact.MinAvailable)
	assert.Equal(t, 1, res.CrewImpact.DaysBelow)
	assert.False(t, res.Degraded)
	assert.True(t, res.CanApprove)
}

func TestDetect_AvailabilitySeverityBands(t *testing.T) {
	cases := []struct {
		name    string
		crew    int
		minimum int
		want    generic.Severity
	}{
		{"10% short", 10, 10, generic.SeverityLow},     // 9 of 10
		{"25% short", 4, 4, generic.SeverityMedium},    // 3 of 4
		{"30% short", 8, 10, generic.SeverityHigh},     // 7 of 10
		{"50% short", 3, 4, generic.SeverityHigh},      // 2 of 4
		{"70% short", 4, 10, generic.SeverityCritical}, // 3 of 10
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			det := conflict.NewDetector(map[generic.Rank]int{generic.RankCaptain: tc.minimum}, zap.NewNop())
			candidate := leave("", "X", "2026-01-10", "2026-01-10", generic.StatusPending)

			res := det.Detect(context.Background(), candidate, nil, staticCrew(tc.crew))

			avail := ofType(res, generic.ConflictAvailability)
			require.Len(t, avail, 1)
			assert.Equal(t, tc.want, avail[0].Severity)
			assert.Equal(t, tc.want != generic.SeverityCritical, res.CanApprove)
		})
	}
}

func TestDetect_NoAvailabilityConflictAtMinimum(t *testing.T) {
	det := conflict.NewDetector(map[generic.Rank]int{generic.RankCaptain: 10}, zap.NewNop())
	candidate := leave("", "X", "2026-01-10", "2026-01-12", generic.StatusPending)

	res := det.Detect(context.Background(), candidate, nil, staticCrew(11))

	assert.Empty(t, res.Conflicts)
	assert.Equal(t, 10, res.CrewImpact.MinAvailable)
}

func TestDetect_DefaultMinimum(t *testing.T) {
	det := conflict.NewDetector(nil, nil)
	assert.Equal(t, conflict.DefaultMinimumCrew, det.MinimumCrew(generic.RankFirstOfficer))
}

// =============================================================================
// DEGRADATION
// =============================================================================

func TestDetect_CrewLookupFailureDegrades(t *testing.T) {
	// GIVEN: the crew roster lookup fails
	core, logs := observer.New(zapcore.WarnLevel)
	det := conflict.NewDetector(map[generic.Rank]int{generic.RankCaptain: 10}, zap.New(core))
	existing := leave("R-1", "X", "2026-01-12", "2026-01-20", generic.StatusApproved)
	candidate := leave("", "X", "2026-01-10", "2026-01-15", generic.StatusPending)

	// WHEN
	res := det.Detect(context.Background(), candidate, []generic.Request{existing}, failingCrew{})

	// THEN: availability is skipped and flagged, overlap still reported
	assert.True(t, res.Degraded)
	assert.False(t, res.CrewImpact.Checked)
	assert.Empty(t, ofType(res, generic.ConflictAvailability))
	assert.Len(t, ofType(res, generic.ConflictOverlap), 1)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "crew availability check skipped", entry.Message)
	assert.Equal(t, "X", entry.ContextMap()["pilot_id"])
}

func TestDetect_NilCrewDegrades(t *testing.T) {
	det := conflict.NewDetector(map[generic.Rank]int{generic.RankCaptain: 10}, zap.NewNop())
	candidate := leave("", "X", "2026-01-10", "2026-01-15", generic.StatusPending)

	res := det.Detect(context.Background(), candidate, nil, nil)
	assert.True(t, res.Degraded)
	assert.True(t, res.CanApprove)
}
