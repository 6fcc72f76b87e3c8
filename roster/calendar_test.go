package roster_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/crew-roster/generic"
	"github.com/warp/crew-roster/roster"
)

func d(s string) generic.TimePoint { return generic.MustParseDate(s) }

func testCalendar(t *testing.T) *roster.Calendar {
	t.Helper()
	cal, err := roster.New(roster.Anchor{Code: "RP12/2025", Start: d("2025-10-11")})
	require.NoError(t, err)
	return cal
}

func TestPeriodFor_AnchorPeriod(t *testing.T) {
	cal := testCalendar(t)

	p := cal.PeriodFor(d("2025-10-11"))
	assert.Equal(t, "RP12/2025", p.Code)
	assert.Equal(t, "2025-10-11", p.Start.String())
	assert.Equal(t, "2025-11-07", p.End.String())
	assert.Equal(t, "2025-09-20", p.Deadline.String())
	assert.Equal(t, generic.PeriodOpen, p.Status)
}

func TestPeriodFor_RP01_2026_YearBoundary(t *testing.T) {
	// GIVEN: anchor RP12/2025 starting 2025-10-11
	cal := testCalendar(t)

	// WHEN: looking up a date inside the period two after the anchor
	p := cal.PeriodFor(d("2025-12-20"))

	// THEN: it is RP01/2026 even though it starts in December 2025
	assert.Equal(t, "RP01/2026", p.Code)
	assert.Equal(t, 1, p.Sequence)
	assert.Equal(t, 2026, p.Year)
	assert.Equal(t, "2025-12-06", p.Start.String())
	assert.Equal(t, "2026-01-02", p.End.String())
	assert.Equal(t, "2025-11-15", p.Deadline.String())

	// AND: both sides of 31 December resolve to the same period
	assert.Equal(t, p, cal.PeriodFor(d("2025-12-31")))
	assert.Equal(t, p, cal.PeriodFor(d("2026-01-01")))

	// AND: RP13/2025 precedes it with no gap
	prev := cal.Previous(p)
	assert.Equal(t, "RP13/2025", prev.Code)
	assert.Equal(t, "2025-12-05", prev.End.String())
}

func TestPeriodFor_HistoricalDates(t *testing.T) {
	cal := testCalendar(t)

	// The day before the anchor belongs to RP11/2025.
	p := cal.PeriodFor(d("2025-10-10"))
	assert.Equal(t, "RP11/2025", p.Code)
	assert.Equal(t, "2025-09-13", p.Start.String())
	assert.Equal(t, "2025-10-10", p.End.String())

	// Thirteen periods earlier is the same slot one roster year back.
	old := cal.PeriodFor(d("2024-10-13"))
	assert.Equal(t, "RP12/2024", old.Code)
	assert.Equal(t, "2024-10-12", old.Start.String())
}

func TestPeriodFor_PartitionsEveryDay(t *testing.T) {
	// Property: every date is in exactly one period, consecutive periods are
	// contiguous and every deadline is start - 21.
	cal := testCalendar(t)

	prev := cal.PeriodFor(d("2023-01-01"))
	for day := d("2023-01-01"); day.Before(d("2028-01-01")); day = day.AddDays(1) {
		p := cal.PeriodFor(day)
		require.True(t, p.Contains(day), "period %s must contain %s", p.Code, day)
		assert.Equal(t, 28, p.Range().DayCount())
		assert.Equal(t, p.Start.AddDays(-21), p.Deadline)

		if p.Code != prev.Code {
			require.Equal(t, prev.End.AddDays(1), p.Start, "gap between %s and %s", prev.Code, p.Code)
			require.Equal(t, cal.Next(prev), p)
		}
		prev = p
	}
}

func TestPeriodFor_FarFromAnchor(t *testing.T) {
	// Centuries away from the 2025 anchor the day offset no longer fits a
	// time.Duration; lookups must stay total.
	cal := testCalendar(t)

	for _, from := range []string{"0001-01-01", "1700-01-01", "2400-02-27", "9999-11-01"} {
		prev := cal.PeriodFor(d(from))
		for day := d(from); day.Before(d(from).AddDays(60)); day = day.AddDays(1) {
			p := cal.PeriodFor(day)
			require.True(t, p.Contains(day), "period %s must contain %s", p.Code, day)
			if p.Code != prev.Code {
				require.Equal(t, prev.End.AddDays(1), p.Start)
			}
			prev = p
		}
	}

	last := cal.PeriodFor(d("9999-12-31"))
	assert.True(t, last.Contains(d("9999-12-31")), last.Code)
	assert.Equal(t, 28, last.Range().DayCount())
}

func TestPeriodByCode_RoundTrip(t *testing.T) {
	cal := testCalendar(t)

	for _, code := range []string{"RP12/2025", "RP13/2025", "RP01/2026", "RP07/2024", "RP13/2030"} {
		p, err := cal.PeriodByCode(code)
		require.NoError(t, err)
		assert.Equal(t, code, p.Code)
		assert.Equal(t, p, cal.PeriodFor(p.Start))
		assert.Equal(t, p, cal.PeriodFor(p.End))
	}
}

func TestPeriodByCode_Invalid(t *testing.T) {
	cal := testCalendar(t)

	for _, code := range []string{"", "RP/2026", "RP00/2026", "RP14/2026", "XX01/2026", "RP01-2026", "RP01/26"} {
		_, err := cal.PeriodByCode(code)
		assert.ErrorIs(t, err, generic.ErrValidation, "code %q", code)
	}
}

func TestPeriodsBetween(t *testing.T) {
	cal := testCalendar(t)

	periods, err := cal.PeriodsBetween(d("2025-11-20"), d("2026-02-01"))
	require.NoError(t, err)

	codes := make([]string, len(periods))
	for i, p := range periods {
		codes[i] = p.Code
	}
	assert.Equal(t, []string{"RP13/2025", "RP01/2026", "RP02/2026", "RP03/2026"}, codes)

	_, err = cal.PeriodsBetween(d("2026-02-01"), d("2025-11-20"))
	assert.ErrorIs(t, err, generic.ErrInvalidRange)
}

func TestPeriodsBetween_SingleDay(t *testing.T) {
	cal := testCalendar(t)

	periods, err := cal.PeriodsBetween(d("2026-01-01"), d("2026-01-01"))
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, "RP01/2026", periods[0].Code)
}

func TestNew_CustomOptions(t *testing.T) {
	cal, err := roster.New(
		roster.Anchor{Code: "RP01/2026", Start: d("2026-01-05")},
		roster.WithPeriodLength(14),
		roster.WithDeadlineLead(7),
		roster.WithPeriodsPerYear(26),
	)
	require.NoError(t, err)

	p := cal.PeriodFor(d("2026-01-19"))
	assert.Equal(t, "RP02/2026", p.Code)
	assert.Equal(t, "2026-02-01", p.End.String())
	assert.Equal(t, "2026-01-12", p.Deadline.String())
}

func TestNew_RejectsBadAnchor(t *testing.T) {
	_, err := roster.New(roster.Anchor{Code: "RP14/2025", Start: d("2025-10-11")})
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = roster.New(roster.Anchor{Code: "RP12/2025"})
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = roster.New(roster.Anchor{Code: "RP12/2025", Start: d("2025-10-11")}, roster.WithPeriodLength(0))
	assert.ErrorIs(t, err, generic.ErrValidation)
}
