/*
Package conflict detects scheduling conflicts for a candidate request.

PURPOSE:
  Given a candidate request, the sibling requests that intersect its span
  and the crew roster, reports every overlap, duplicate submission and
  crew-availability shortfall. Results are advisory at submission and
  authoritative at approval, where the request service re-runs detection
  inside the approving transaction.

CHECKS:
  OVERLAP       same pilot, sibling PENDING/APPROVED, spans intersect
                CRITICAL for the same category, HIGH across categories
  DUPLICATE     identical (pilot, category, start, end) still PENDING
                CRITICAL and blocking: resubmission is refused
  AVAILABILITY  per day of the candidate span, distinct same-rank pilots
                away (siblings + candidate) vs the roster size; flags the
                worst day when available crew < configured minimum

AVAILABILITY SEVERITY (shortfall / minimum):
  <= 10%  LOW
  <= 25%  MEDIUM
  <= 50%  HIGH
  >  50%  CRITICAL

DEGRADATION:
  If the crew roster lookup fails the availability check is skipped, a
  warning is logged and Result.Degraded is set. Overlap and duplicate
  checks only use the pilot's own requests and always run.

SEE ALSO:
  - generic/types.go: Conflict, Severity
  - requests/service.go: Supplies siblings and calls Detect
*/
package conflict

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/crew-roster/generic"
)

var (
	tenPercent = decimal.NewFromFloat(0.10)
	quarter    = decimal.NewFromFloat(0.25)
	half       = decimal.NewFromFloat(0.50)
	hundred    = decimal.NewFromInt(100)
)

// DefaultMinimumCrew is used for ranks missing from the configured minimums.
const DefaultMinimumCrew = 10

// =============================================================================
// RESULT
// =============================================================================

// CrewImpact summarises the availability check for the candidate's rank.
type CrewImpact struct {
	Rank         generic.Rank
	CrewSize     int
	Minimum      int
	PeakAway     int // most same-rank pilots away on one day, candidate included
	MinAvailable int
	WorstDate    *generic.TimePoint
	DaysBelow    int // days of the span below the minimum
	Checked      bool
}

type Result struct {
	Conflicts  []generic.Conflict
	CrewImpact CrewImpact
	CanApprove bool
	Degraded   bool
}

// Blocking returns the conflicts that refuse submission outright.
func (r Result) Blocking() []generic.Conflict {
	var out []generic.Conflict
	for _, c := range r.Conflicts {
		if c.Blocking {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// DETECTOR
// =============================================================================

type Detector struct {
	minimumCrew map[generic.Rank]int
	logger      *zap.Logger
}

// NewDetector copies minimumCrew. A nil logger is replaced with a no-op.
func NewDetector(minimumCrew map[generic.Rank]int, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	mins := make(map[generic.Rank]int, len(minimumCrew))
	for k, v := range minimumCrew {
		mins[k] = v
	}
	return &Detector{minimumCrew: mins, logger: logger}
}

// MinimumCrew returns the configured minimum for rank.
func (d *Detector) MinimumCrew(rank generic.Rank) int {
	if m, ok := d.minimumCrew[rank]; ok {
		return m
	}
	return DefaultMinimumCrew
}

// Detect runs every check. siblings may contain the candidate itself (at
// approval time); it is skipped by ID.
func (d *Detector) Detect(ctx context.Context, candidate generic.Request, siblings []generic.Request, crew generic.CrewRoster) Result {
	others := make([]generic.Request, 0, len(siblings))
	for _, s := range siblings {
		if candidate.ID != "" && s.ID == candidate.ID {
			continue
		}
		if !s.Status.Active() {
			continue
		}
		others = append(others, s)
	}

	var conflicts []generic.Conflict
	conflicts = append(conflicts, d.duplicates(candidate, others)...)
	conflicts = append(conflicts, d.overlaps(candidate, others)...)

	res := Result{}
	impact, availability, err := d.availability(ctx, candidate, others, crew)
	if err != nil {
		res.Degraded = true
		d.logger.Warn("crew availability check skipped",
			zap.String("pilot_id", string(candidate.PilotID)),
			zap.String("rank", string(candidate.Rank)),
			zap.String("start", candidate.Start.String()),
			zap.String("end", candidate.End.String()),
			zap.Error(err))
	} else {
		conflicts = append(conflicts, availability...)
	}

	res.Conflicts = conflicts
	res.CrewImpact = impact
	res.CanApprove = !generic.HasCritical(conflicts)
	return res
}

// =============================================================================
// OVERLAP AND DUPLICATE
// =============================================================================

func (d *Detector) duplicates(candidate generic.Request, others []generic.Request) []generic.Conflict {
	var out []generic.Conflict
	for _, s := range others {
		if s.Status != generic.StatusPending || !candidate.SameSubmission(s) {
			continue
		}
		out = append(out, generic.Conflict{
			Type:      generic.ConflictDuplicate,
			Severity:  generic.SeverityCritical,
			Message:   fmt.Sprintf("identical %s already pending as %s", describe(candidate.Details), s.ID),
			RelatedID: s.ID,
			Blocking:  true,
		})
	}
	return out
}

func (d *Detector) overlaps(candidate generic.Request, others []generic.Request) []generic.Conflict {
	var out []generic.Conflict
	span := candidate.Range()
	for _, s := range others {
		if s.PilotID != candidate.PilotID || !span.Overlaps(s.Range()) {
			continue
		}
		// Already reported as DUPLICATE.
		if s.Status == generic.StatusPending && candidate.SameSubmission(s) {
			continue
		}

		severity := generic.SeverityHigh
		if s.Category() == candidate.Category() {
			severity = generic.SeverityCritical
		}
		out = append(out, generic.Conflict{
			Type:     generic.ConflictOverlap,
			Severity: severity,
			Message: fmt.Sprintf("overlaps %s %s %s %s",
				lower(s.Status), describe(s.Details), s.ID, s.Range()),
			RelatedID: s.ID,
		})
	}
	return out
}

// =============================================================================
// CREW AVAILABILITY
// =============================================================================

func (d *Detector) availability(ctx context.Context, candidate generic.Request, others []generic.Request, crew generic.CrewRoster) (CrewImpact, []generic.Conflict, error) {
	impact := CrewImpact{Rank: candidate.Rank, Minimum: d.MinimumCrew(candidate.Rank)}
	if impact.Minimum <= 0 {
		return impact, nil, nil
	}
	if crew == nil {
		return impact, nil, generic.ErrAvailabilityDegraded
	}

	span := candidate.Range()
	size, err := crew.CrewSize(ctx, candidate.Rank, span)
	if err != nil {
		return impact, nil, fmt.Errorf("%w: %v", generic.ErrAvailabilityDegraded, err)
	}
	impact.CrewSize = size
	impact.Checked = true
	impact.MinAvailable = size

	var worst *generic.TimePoint
	worstShortfall := 0
	for _, day := range span.Days() {
		away := map[generic.PilotID]struct{}{candidate.PilotID: {}}
		for _, s := range others {
			if s.Rank != candidate.Rank || !takesPilotAway(s.Details) {
				continue
			}
			if s.Range().Contains(day) {
				away[s.PilotID] = struct{}{}
			}
		}

		available := size - len(away)
		if len(away) > impact.PeakAway {
			impact.PeakAway = len(away)
		}
		if available < impact.MinAvailable {
			impact.MinAvailable = available
		}
		if available < impact.Minimum {
			impact.DaysBelow++
			if shortfall := impact.Minimum - available; shortfall > worstShortfall {
				worstShortfall = shortfall
				worst = &day
			}
		}
	}

	if worst == nil {
		return impact, nil, nil
	}
	impact.WorstDate = worst

	ratio := decimal.NewFromInt(int64(worstShortfall)).Div(decimal.NewFromInt(int64(impact.Minimum)))
	return impact, []generic.Conflict{{
		Type:     generic.ConflictAvailability,
		Severity: severityFor(ratio),
		Message: fmt.Sprintf("%s availability drops to %d of minimum %d on %s (%s%% short, %d day(s) below minimum)",
			lower(candidate.Rank), impact.Minimum-worstShortfall, impact.Minimum, worst,
			ratio.Mul(hundred).Round(0).String(), impact.DaysBelow),
		Date: worst,
	}}, nil
}

// severityFor maps a shortfall ratio onto the severity bands.
func severityFor(ratio decimal.Decimal) generic.Severity {
	switch {
	case ratio.LessThanOrEqual(tenPercent):
		return generic.SeverityLow
	case ratio.LessThanOrEqual(quarter):
		return generic.SeverityMedium
	case ratio.LessThanOrEqual(half):
		return generic.SeverityHigh
	default:
		return generic.SeverityCritical
	}
}

// takesPilotAway reports whether a request removes the pilot from the
// available pool on its days.
func takesPilotAway(details generic.Details) bool {
	switch details.(type) {
	case generic.LeaveDetails, generic.LeaveBidDetails:
		return true
	case generic.FlightDetails:
		// Requested flying is rostered outside the reserve pool.
		return true
	}
	return false
}

func describe(details generic.Details) string {
	switch details.(type) {
	case generic.LeaveDetails:
		return "leave request"
	case generic.FlightDetails:
		return "flight request"
	case generic.LeaveBidDetails:
		return "leave bid"
	}
	return "request"
}

// lower turns enum values like FIRST_OFFICER into "first officer".
func lower[T ~string](s T) string {
	return strings.ReplaceAll(strings.ToLower(string(s)), "_", " ")
}
