/*
Package roster provides the roster period calendar.

PURPOSE:
  Maps any calendar date to the 28-day roster period that contains it.
  Boundaries are pure arithmetic from a single anchor period supplied at
  construction time; nothing about a period is stored except its status.

ALGORITHM:
  offset   = date - anchor.Start            (may be negative)
  index    = floor(offset / 28)
  start    = anchor.Start + index*28
  end      = start + 27
  deadline = start - 21

CODE NUMBERING:
  Codes run RP01..RP13 and then roll over to the next roster year, counted
  on from the anchor's code. The year in a code is the roster year of the
  cycle, NOT the calendar year of the start date:

    anchor RP12/2025 @ 2025-10-11
    RP13/2025  2025-11-08 .. 2025-12-05
    RP01/2026  2025-12-06 .. 2026-01-02   (deadline 2025-11-15)
    RP02/2026  2026-01-03 .. 2026-01-30

  A period straddling 31 December takes the roster year of its cycle, so
  RP01/2026 begins in December 2025. Periods are never dropped or
  duplicated around the new year.

SEE ALSO:
  - generic/period.go: RosterPeriod and the status lifecycle
  - requests/service.go: Assigns requests to periods
*/
package roster

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/teambition/rrule-go"

	"github.com/warp/crew-roster/generic"
)

const (
	DefaultPeriodLength   = 28
	DefaultDeadlineLead   = 21
	DefaultPeriodsPerYear = 13

	// maxEnumerated bounds PeriodsBetween; about 75 years of periods.
	maxEnumerated = 1000
)

// Anchor is one known period: its code and first day.
type Anchor struct {
	Code  string
	Start generic.TimePoint
}

// Calendar computes roster periods from an anchor. Safe for concurrent use.
type Calendar struct {
	anchor         Anchor
	anchorOrdinal  int
	periodLength   int
	deadlineLead   int
	periodsPerYear int
}

type Option func(*Calendar)

func WithPeriodLength(days int) Option { return func(c *Calendar) { c.periodLength = days } }
func WithDeadlineLead(days int) Option { return func(c *Calendar) { c.deadlineLead = days } }
func WithPeriodsPerYear(n int) Option  { return func(c *Calendar) { c.periodsPerYear = n } }

// New validates the anchor and options.
func New(anchor Anchor, opts ...Option) (*Calendar, error) {
	c := &Calendar{
		anchor:         anchor,
		periodLength:   DefaultPeriodLength,
		deadlineLead:   DefaultDeadlineLead,
		periodsPerYear: DefaultPeriodsPerYear,
	}
	for _, opt := range opts {
		opt(c)
	}

	if anchor.Start.IsZero() {
		return nil, &generic.ValidationError{Field: "anchor.start", Reason: "required"}
	}
	if c.periodLength < 1 {
		return nil, &generic.ValidationError{Field: "period_length", Reason: "must be positive"}
	}
	if c.deadlineLead < 0 {
		return nil, &generic.ValidationError{Field: "deadline_lead", Reason: "must not be negative"}
	}
	if c.periodsPerYear < 1 {
		return nil, &generic.ValidationError{Field: "periods_per_year", Reason: "must be positive"}
	}

	seq, year, err := ParseCode(anchor.Code)
	if err != nil {
		return nil, err
	}
	if seq > c.periodsPerYear {
		return nil, &generic.ValidationError{Field: "anchor.code", Reason: fmt.Sprintf("sequence %d exceeds %d periods per year", seq, c.periodsPerYear)}
	}
	c.anchorOrdinal = year*c.periodsPerYear + seq - 1
	return c, nil
}

// MustNew panics on an invalid anchor. For tests and compiled-in defaults.
func MustNew(anchor Anchor, opts ...Option) *Calendar {
	c, err := New(anchor, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Calendar) Anchor() Anchor    { return c.anchor }
func (c *Calendar) PeriodLength() int { return c.periodLength }
func (c *Calendar) DeadlineLead() int { return c.deadlineLead }

// =============================================================================
// LOOKUPS
// =============================================================================

// PeriodFor returns the period containing d. Total: every date maps to
// exactly one period. Status is OPEN; callers overlay stored status.
func (c *Calendar) PeriodFor(d generic.TimePoint) generic.RosterPeriod {
	offset := generic.DaysBetween(c.anchor.Start, d)
	return c.byIndex(generic.FloorDiv(offset, c.periodLength))
}

// Next returns the period immediately after p.
func (c *Calendar) Next(p generic.RosterPeriod) generic.RosterPeriod {
	return c.byIndex(c.indexOf(p.Start) + 1)
}

// Previous returns the period immediately before p.
func (c *Calendar) Previous(p generic.RosterPeriod) generic.RosterPeriod {
	return c.byIndex(c.indexOf(p.Start) - 1)
}

// PeriodByCode resolves a code like "RP01/2026".
func (c *Calendar) PeriodByCode(code string) (generic.RosterPeriod, error) {
	seq, year, err := ParseCode(code)
	if err != nil {
		return generic.RosterPeriod{}, err
	}
	if seq > c.periodsPerYear {
		return generic.RosterPeriod{}, &generic.ValidationError{Field: "code", Reason: fmt.Sprintf("sequence %d exceeds %d periods per year", seq, c.periodsPerYear)}
	}
	ordinal := year*c.periodsPerYear + seq - 1
	return c.byIndex(ordinal - c.anchorOrdinal), nil
}

// PeriodsBetween lists every period intersecting [from, to], in order.
// Period starts are enumerated with an RRULE of FREQ=DAILY;INTERVAL=<length>.
func (c *Calendar) PeriodsBetween(from, to generic.TimePoint) ([]generic.RosterPeriod, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s to %s", generic.ErrInvalidRange, from, to)
	}
	first := c.PeriodFor(from)

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.DAILY,
		Interval: c.periodLength,
		Dtstart:  first.Start.Time,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build period rule: %w", err)
	}

	starts := rule.Between(first.Start.Time, to.Time, true)
	if len(starts) > maxEnumerated {
		return nil, &generic.ValidationError{Field: "to", Reason: fmt.Sprintf("range spans more than %d periods", maxEnumerated)}
	}

	periods := make([]generic.RosterPeriod, 0, len(starts))
	for _, s := range starts {
		periods = append(periods, c.PeriodFor(generic.FromTime(s)))
	}
	return periods, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (c *Calendar) indexOf(start generic.TimePoint) int {
	return generic.FloorDiv(generic.DaysBetween(c.anchor.Start, start), c.periodLength)
}

func (c *Calendar) byIndex(i int) generic.RosterPeriod {
	start := c.anchor.Start.AddDays(i * c.periodLength)
	ordinal := c.anchorOrdinal + i
	seq := generic.FloorMod(ordinal, c.periodsPerYear) + 1
	year := generic.FloorDiv(ordinal, c.periodsPerYear)

	return generic.RosterPeriod{
		Code:     FormatCode(seq, year),
		Sequence: seq,
		Year:     year,
		Start:    start,
		End:      start.AddDays(c.periodLength - 1),
		Deadline: start.AddDays(-c.deadlineLead),
		Status:   generic.PeriodOpen,
	}
}

// =============================================================================
// CODES
// =============================================================================

// FormatCode renders "RP<seq>/<year>" with a two-digit sequence.
func FormatCode(seq, year int) string {
	return fmt.Sprintf("RP%02d/%d", seq, year)
}

// ParseCode splits "RP01/2026" into (1, 2026).
func ParseCode(code string) (seq, year int, err error) {
	invalid := &generic.ValidationError{Field: "code", Reason: fmt.Sprintf("invalid roster period code %q (want RPnn/yyyy)", code)}

	rest, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(code)), "RP")
	if !ok {
		return 0, 0, invalid
	}
	seqStr, yearStr, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, 0, invalid
	}
	seq, err = strconv.Atoi(seqStr)
	if err != nil || seq < 1 {
		return 0, 0, invalid
	}
	year, err = strconv.Atoi(yearStr)
	if err != nil || len(yearStr) != 4 {
		return 0, 0, invalid
	}
	return seq, year, nil
}
